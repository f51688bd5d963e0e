package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// FeeService exposes the current listing fee.
type FeeService interface {
	ListingFee(ctx context.Context) (wei string, ether string, err error)
}

// FeeHandler serves the listing-fee endpoint.
type FeeHandler struct {
	market FeeService
	logger *slog.Logger
}

// NewFeeHandler creates a FeeHandler.
func NewFeeHandler(market FeeService, logger *slog.Logger) *FeeHandler {
	return &FeeHandler{market: market, logger: logger}
}

// GetListingFee returns the fee a seller must attach when listing.
// GET /api/listing-fee
func (h *FeeHandler) GetListingFee(w http.ResponseWriter, r *http.Request) {
	wei, ether, err := h.market.ListingFee(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: listing fee lookup failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"fee_wei":   wei,
		"fee_ether": ether,
	})
}
