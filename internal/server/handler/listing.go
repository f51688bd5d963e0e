package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nftbazaar/marketd/internal/domain"
	"github.com/nftbazaar/marketd/internal/service"
)

// maxImageBytes bounds listing image uploads (16 MiB).
const maxImageBytes = 16 << 20

// ListingService defines what the listing handler needs from the service
// layer.
type ListingService interface {
	CreateListing(ctx context.Context, req service.CreateListingRequest) (domain.Listing, error)
	Browse(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error)
	GetListing(ctx context.Context, itemID uint64) (domain.Listing, error)
	Buy(ctx context.Context, itemID uint64) error
}

// ListingHandler serves the listing endpoints.
type ListingHandler struct {
	market ListingService
	logger *slog.Logger
}

// NewListingHandler creates a ListingHandler.
func NewListingHandler(market ListingService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{market: market, logger: logger}
}

// listListingsResponse wraps the browse output with pagination metadata.
type listListingsResponse struct {
	Listings []domain.Listing `json:"listings"`
	Count    int              `json:"count"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// ListListings returns the unsold listings with metadata attached.
// GET /api/listings?limit=50&offset=0
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	listings, err := h.market.Browse(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: browse failed",
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

// GetListing returns a single unsold listing.
// GET /api/listings/{id}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || itemID == 0 {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	listing, err := h.market.GetListing(r.Context(), itemID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listing)
}

// CreateListing mints and lists an asset from a multipart form carrying
// name, description, price_ether, and an image file.
// POST /api/listings
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable image upload")
		return
	}

	req := service.CreateListingRequest{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		Image:       image,
		PriceEther:  r.FormValue("price_ether"),
	}

	listing, err := h.market.CreateListing(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create listing failed",
			slog.String("name", req.Name),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, listing)
}

// BuyListing purchases an unsold item at its asking price.
// POST /api/listings/{id}/buy
func (h *ListingHandler) BuyListing(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || itemID == 0 {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	if err := h.market.Buy(r.Context(), itemID); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: buy failed",
			slog.Uint64("item_id", itemID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"item_id": itemID,
		"sold":    true,
	})
}
