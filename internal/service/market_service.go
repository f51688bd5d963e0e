// Package service implements the marketplace use cases on top of the ledger
// gateways, content storage, and caches.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nftbazaar/marketd/internal/domain"
)

// MetadataResolver resolves token metadata URIs to their documents.
type MetadataResolver interface {
	Resolve(ctx context.Context, uri string) (domain.TokenMetadata, error)
	ResolveAll(ctx context.Context, uris []string) []*domain.TokenMetadata
}

// MarketService handles listing creation, browsing, and purchases.
type MarketService struct {
	market   domain.Marketplace
	tokens   domain.TokenLedger
	storage  domain.StorageGateway
	resolver MetadataResolver
	listings domain.ListingCache
	logger   *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
// The listing cache may be nil, in which case every browse hits the ledger.
func NewMarketService(
	market domain.Marketplace,
	tokens domain.TokenLedger,
	storage domain.StorageGateway,
	resolver MetadataResolver,
	listings domain.ListingCache,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		market:   market,
		tokens:   tokens,
		storage:  storage,
		resolver: resolver,
		listings: listings,
		logger:   logger,
	}
}

// CreateListingRequest carries everything needed to mint and list an asset.
// Image holds the raw asset bytes; PriceEther is a decimal ether amount.
type CreateListingRequest struct {
	Name        string
	Description string
	Image       []byte
	PriceEther  string
}

// Validate checks the request fields before any upload happens.
func (r CreateListingRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(r.Description) == "" {
		return errors.New("description is required")
	}
	if len(r.Image) == 0 {
		return errors.New("image is required")
	}
	if strings.TrimSpace(r.PriceEther) == "" {
		return errors.New("price is required")
	}
	return nil
}

// CreateListing runs the full mint-and-list pipeline: upload the asset
// bytes, pin the metadata document, mint a token bound to the metadata URL,
// and create the market item. It returns the new listing.
//
// Uploads that succeed before a later step fails are left pinned; they are
// content-addressed and harmless.
func (s *MarketService) CreateListing(ctx context.Context, req CreateListingRequest) (domain.Listing, error) {
	if err := req.Validate(); err != nil {
		return domain.Listing{}, fmt.Errorf("market_service: create listing: %w", err)
	}

	priceWei, err := EtherToWei(req.PriceEther)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("market_service: create listing: %w", err)
	}

	imageCID, err := s.storage.Add(ctx, req.Image)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("market_service: upload image: %w", err)
	}

	meta := domain.TokenMetadata{
		Name:        req.Name,
		Description: req.Description,
		Image:       s.storage.GatewayURL(imageCID),
	}
	metaCID, err := s.storage.AddJSON(ctx, meta)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("market_service: upload metadata: %w", err)
	}
	metadataURI := s.storage.GatewayURL(metaCID)

	tokenID, err := s.tokens.CreateToken(ctx, metadataURI)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("market_service: mint token: %w", err)
	}

	itemID, err := s.market.CreateMarketItem(ctx, "", tokenID, priceWei)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("market_service: list token %d: %w", tokenID, err)
	}

	s.invalidateListings(ctx)

	s.logger.InfoContext(ctx, "market_service: listing created",
		slog.Uint64("item_id", itemID),
		slog.Uint64("token_id", tokenID),
		slog.String("price_wei", priceWei.String()),
		slog.String("metadata_uri", metadataURI),
	)

	item, err := s.findItem(ctx, itemID)
	if err != nil {
		// The listing exists on the ledger even if the read-back failed.
		s.logger.WarnContext(ctx, "market_service: listing read-back failed",
			slog.Uint64("item_id", itemID),
			slog.String("error", err.Error()),
		)
		item = domain.MarketItem{ItemID: itemID, TokenID: tokenID, PriceWei: priceWei}
	}

	return domain.Listing{
		MarketItem:  item,
		PriceEther:  WeiToEther(item.PriceWei),
		MetadataURI: metadataURI,
		Metadata:    &meta,
	}, nil
}

// Browse returns the current unsold listings joined with their metadata,
// in ascending item ID order. The snapshot is served from cache when fresh.
func (s *MarketService) Browse(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	if s.listings != nil {
		cached, err := s.listings.GetSnapshot(ctx)
		if err == nil {
			return paginate(cached, opts), nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "market_service: listing cache read failed",
				slog.String("error", err.Error()),
			)
		}
	}

	items, err := s.market.GetMarketItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: fetch market items: %w", err)
	}

	listings := s.join(ctx, items)

	if s.listings != nil {
		if err := s.listings.SetSnapshot(ctx, listings); err != nil {
			s.logger.WarnContext(ctx, "market_service: listing cache write failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return paginate(listings, opts), nil
}

// GetListing returns a single unsold listing joined with its metadata.
func (s *MarketService) GetListing(ctx context.Context, itemID uint64) (domain.Listing, error) {
	item, err := s.findItem(ctx, itemID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("market_service: get item %d: %w", itemID, err)
	}

	joined := s.join(ctx, []domain.MarketItem{item})
	return joined[0], nil
}

// Buy purchases an unsold item at its asking price. The item lookup only
// sees the unsold snapshot, so a miss is not conclusive: the sale still
// runs and the marketplace reports whether the item is unknown or already
// sold.
func (s *MarketService) Buy(ctx context.Context, itemID uint64) error {
	item, err := s.findItem(ctx, itemID)
	if err != nil && !errors.Is(err, domain.ErrItemNotFound) {
		return fmt.Errorf("market_service: buy item %d: %w", itemID, err)
	}

	if err := s.market.CreateMarketSale(ctx, item.TokenContract, itemID); err != nil {
		return fmt.Errorf("market_service: buy item %d: %w", itemID, err)
	}

	s.invalidateListings(ctx)

	s.logger.InfoContext(ctx, "market_service: item sold",
		slog.Uint64("item_id", itemID),
		slog.String("price_wei", item.PriceString()),
	)
	return nil
}

// ListingFee returns the current fee for creating a listing in both wei and
// ether denominations.
func (s *MarketService) ListingFee(ctx context.Context) (wei string, ether string, err error) {
	fee, err := s.market.GetListingPrice(ctx)
	if err != nil {
		return "", "", fmt.Errorf("market_service: fetch listing fee: %w", err)
	}
	return fee.String(), WeiToEther(fee), nil
}

// join resolves metadata for a page of items, tolerating unresolved entries.
func (s *MarketService) join(ctx context.Context, items []domain.MarketItem) []domain.Listing {
	uris := make([]string, len(items))
	for i, it := range items {
		uri, err := s.tokens.TokenURI(ctx, it.TokenID)
		if err != nil {
			s.logger.WarnContext(ctx, "market_service: token uri lookup failed",
				slog.Uint64("token_id", it.TokenID),
				slog.String("error", err.Error()),
			)
			continue
		}
		uris[i] = uri
	}

	metas := s.resolver.ResolveAll(ctx, uris)

	listings := make([]domain.Listing, len(items))
	for i, it := range items {
		listings[i] = domain.Listing{
			MarketItem:  it,
			PriceEther:  WeiToEther(it.PriceWei),
			MetadataURI: uris[i],
			Metadata:    metas[i],
		}
	}
	return listings
}

func (s *MarketService) findItem(ctx context.Context, itemID uint64) (domain.MarketItem, error) {
	items, err := s.market.GetMarketItems(ctx)
	if err != nil {
		return domain.MarketItem{}, err
	}
	for _, it := range items {
		if it.ItemID == itemID {
			return it, nil
		}
	}
	return domain.MarketItem{}, domain.ErrItemNotFound
}

func (s *MarketService) invalidateListings(ctx context.Context) {
	if s.listings == nil {
		return
	}
	if err := s.listings.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
			slog.String("error", err.Error()),
		)
	}
}

func paginate(listings []domain.Listing, opts domain.ListOpts) []domain.Listing {
	if opts.Limit <= 0 && opts.Offset <= 0 {
		return listings
	}
	if opts.Offset >= len(listings) {
		return []domain.Listing{}
	}
	end := len(listings)
	if opts.Limit > 0 && opts.Offset+opts.Limit < end {
		end = opts.Offset + opts.Limit
	}
	return listings[opts.Offset:end]
}
