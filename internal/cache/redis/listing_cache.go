package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nftbazaar/marketd/internal/domain"
)

// snapshotTTL is short: the snapshot is also invalidated explicitly on
// every listing or sale, so the TTL only covers missed invalidations.
const snapshotTTL = 30 * time.Second

const snapshotKey = "listings:unsold"

// ListingCache implements domain.ListingCache using a single JSON-serialized
// snapshot of the unsold listings page.
type ListingCache struct {
	rdb *redis.Client
}

// NewListingCache creates a ListingCache backed by the given Client.
func NewListingCache(c *Client) *ListingCache {
	return &ListingCache{rdb: c.Underlying()}
}

// GetSnapshot returns the cached browse snapshot, or domain.ErrNotFound on
// a miss.
func (lc *ListingCache) GetSnapshot(ctx context.Context) ([]domain.Listing, error) {
	data, err := lc.rdb.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get listing snapshot: %w", err)
	}

	var listings []domain.Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("redis: unmarshal listing snapshot: %w", err)
	}
	return listings, nil
}

// SetSnapshot stores the browse snapshot.
func (lc *ListingCache) SetSnapshot(ctx context.Context, listings []domain.Listing) error {
	data, err := json.Marshal(listings)
	if err != nil {
		return fmt.Errorf("redis: marshal listing snapshot: %w", err)
	}
	if err := lc.rdb.Set(ctx, snapshotKey, data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set listing snapshot: %w", err)
	}
	return nil
}

// Invalidate drops the snapshot.
func (lc *ListingCache) Invalidate(ctx context.Context) error {
	if err := lc.rdb.Del(ctx, snapshotKey).Err(); err != nil {
		return fmt.Errorf("redis: invalidate listing snapshot: %w", err)
	}
	return nil
}

var _ domain.ListingCache = (*ListingCache)(nil)
