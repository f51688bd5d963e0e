package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/nftbazaar/marketd/internal/domain"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidAddress reports whether s looks like a hex Ethereum address.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// AccountService serves per-account asset views from the off-chain index:
// tokens an account owns and items it has listed for sale.
type AccountService struct {
	store    domain.ListingStore
	tokens   domain.TokenLedger
	resolver MetadataResolver
	logger   *slog.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(
	store domain.ListingStore,
	tokens domain.TokenLedger,
	resolver MetadataResolver,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		store:    store,
		tokens:   tokens,
		resolver: resolver,
		logger:   logger,
	}
}

// OwnedAssets returns the items currently owned by the address, metadata
// attached.
func (s *AccountService) OwnedAssets(ctx context.Context, address string, opts domain.ListOpts) ([]domain.Listing, error) {
	if !ValidAddress(address) {
		return nil, fmt.Errorf("account_service: %w: bad address %q", domain.ErrNotFound, address)
	}

	items, err := s.store.ListByOwner(ctx, address, opts)
	if err != nil {
		return nil, fmt.Errorf("account_service: list owned by %s: %w", address, err)
	}
	return s.join(ctx, items), nil
}

// CreatedAssets returns the items the address has listed, sold or not.
func (s *AccountService) CreatedAssets(ctx context.Context, address string, opts domain.ListOpts) ([]domain.Listing, error) {
	if !ValidAddress(address) {
		return nil, fmt.Errorf("account_service: %w: bad address %q", domain.ErrNotFound, address)
	}

	items, err := s.store.ListBySeller(ctx, address, opts)
	if err != nil {
		return nil, fmt.Errorf("account_service: list created by %s: %w", address, err)
	}
	return s.join(ctx, items), nil
}

func (s *AccountService) join(ctx context.Context, items []domain.MarketItem) []domain.Listing {
	uris := make([]string, len(items))
	for i, it := range items {
		uri, err := s.tokens.TokenURI(ctx, it.TokenID)
		if err != nil {
			s.logger.WarnContext(ctx, "account_service: token uri lookup failed",
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
