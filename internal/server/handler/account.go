package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nftbazaar/marketd/internal/domain"
	"github.com/nftbazaar/marketd/internal/service"
)

// AccountService defines the per-account views the handler serves.
type AccountService interface {
	OwnedAssets(ctx context.Context, address string, opts domain.ListOpts) ([]domain.Listing, error)
	CreatedAssets(ctx context.Context, address string, opts domain.ListOpts) ([]domain.Listing, error)
}

// AccountHandler serves the per-account asset endpoints.
type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// ListOwned returns the items the address currently owns.
// GET /api/accounts/{address}/assets
func (h *AccountHandler) ListOwned(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.accounts.OwnedAssets)
}

// ListCreated returns the items the address has listed for sale.
// GET /api/accounts/{address}/created
func (h *AccountHandler) ListCreated(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.accounts.CreatedAssets)
}

func (h *AccountHandler) list(
	w http.ResponseWriter,
	r *http.Request,
	query func(context.Context, string, domain.ListOpts) ([]domain.Listing, error),
) {
	address := r.PathValue("address")
	if !service.ValidAddress(address) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	opts := parseListOpts(r)
	listings, err := query(r.Context(), address, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: account query failed",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	if listings == nil {
		listings = []domain.Listing{}
	}

	writeJSON(w, http.StatusOK, listListingsResponse{
		Listings: listings,
		Count:    len(listings),
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
}
