package domain

import (
	"context"
	"math/big"
)

// Marketplace is the statically declared contract of the marketplace ledger.
// Two implementations exist: the on-chain gateway (internal/chain) and the
// in-process reference ledger (internal/ledger). Both must satisfy the same
// semantics: monotonic item IDs, a single Listed->Sold transition per item,
// and atomic application of each mutation.
type Marketplace interface {
	// CreateMarketItem lists an already-minted token for sale at the given
	// price in wei, attaching payment equal to the current listing fee. It
	// returns the allocated item ID.
	CreateMarketItem(ctx context.Context, tokenContract string, tokenID uint64, priceWei *big.Int) (uint64, error)

	// CreateMarketSale purchases an unsold item, attaching payment equal to
	// its price.
	CreateMarketSale(ctx context.Context, tokenContract string, itemID uint64) error

	// GetListingPrice returns the fee in wei required to create a listing.
	GetListingPrice(ctx context.Context) (*big.Int, error)

	// GetMarketItems returns a snapshot of all unsold items in ascending
	// item ID order.
	GetMarketItems(ctx context.Context) ([]MarketItem, error)
}

// TokenLedger is the consumed surface of the token (NFT) contract.
type TokenLedger interface {
	// CreateToken mints a new token owned by the caller and associates the
	// metadata URI with it, returning the token ID.
	CreateToken(ctx context.Context, metadataURI string) (uint64, error)

	// TokenURI returns the metadata URI associated with a token.
	TokenURI(ctx context.Context, tokenID uint64) (string, error)

	// OwnerOf returns the current owner of a token.
	OwnerOf(ctx context.Context, tokenID uint64) (string, error)
}

// StorageGateway uploads blobs and JSON documents to content-addressed
// storage and resolves content paths to retrieval URLs.
type StorageGateway interface {
	Add(ctx context.Context, data []byte) (string, error)
	AddJSON(ctx context.Context, v any) (string, error)
	GatewayURL(path string) string
}
