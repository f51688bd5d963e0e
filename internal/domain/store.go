package domain

import (
	"context"
	"io"
	"time"
)

// ListingStore persists the off-chain index of market items. The chain is
// the source of truth; rows here are derived from contract events and carry
// tx hash and block number provenance.
type ListingStore interface {
	Upsert(ctx context.Context, item MarketItem) error
	MarkSold(ctx context.Context, itemID uint64, buyer, txHash string, blockNumber uint64) error
	GetByID(ctx context.Context, itemID uint64) (MarketItem, error)
	ListUnsold(ctx context.Context, opts ListOpts) ([]MarketItem, error)
	ListBySeller(ctx context.Context, seller string, opts ListOpts) ([]MarketItem, error)
	ListByOwner(ctx context.Context, owner string, opts ListOpts) ([]MarketItem, error)
	CountUnsold(ctx context.Context) (int64, error)
}

// EventStore journals decoded chain events and tracks the indexer's
// last-seen block watermark so catch-up scans resume where they left off.
type EventStore interface {
	Append(ctx context.Context, event ChainEvent) error
	ListSince(ctx context.Context, since time.Time, opts ListOpts) ([]ChainEvent, error)
	LastSeenBlock(ctx context.Context) (uint64, error)
	SetLastSeenBlock(ctx context.Context, block uint64) error
}

// MetadataCache caches resolved token metadata keyed by metadata URI.
type MetadataCache interface {
	Get(ctx context.Context, uri string) (TokenMetadata, error)
	Set(ctx context.Context, uri string, meta TokenMetadata) error
}

// ListingCache caches the browse snapshot and single-item lookups.
type ListingCache interface {
	GetSnapshot(ctx context.Context) ([]Listing, error)
	SetSnapshot(ctx context.Context, listings []Listing) error
	Invalidate(ctx context.Context) error
}

// SignalBus is a lightweight pub/sub fabric used to fan chain events out to
// the WebSocket hub and the notifier.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter limits request rates per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter writes immutable objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader reads objects back from blob storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
}
