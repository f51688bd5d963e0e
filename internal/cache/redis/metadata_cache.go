package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nftbazaar/marketd/internal/domain"
)

// Metadata documents are immutable once pinned, so the TTL exists only to
// bound memory, not to keep entries fresh.
const metadataTTL = 24 * time.Hour

// MetadataCache implements domain.MetadataCache using Redis string values
// keyed by a hash of the metadata URI.
//
// Key schema:
//
//	meta:{sha256(uri)} - JSON-serialized TokenMetadata
type MetadataCache struct {
	rdb *redis.Client
}

// NewMetadataCache creates a MetadataCache backed by the given Client.
func NewMetadataCache(c *Client) *MetadataCache {
	return &MetadataCache{rdb: c.Underlying()}
}

func metadataKey(uri string) string {
	sum := sha256.Sum256([]byte(uri))
	return "meta:" + hex.EncodeToString(sum[:])
}

// Get retrieves cached metadata for a URI. It returns domain.ErrNotFound on
// a cache miss.
func (mc *MetadataCache) Get(ctx context.Context, uri string) (domain.TokenMetadata, error) {
	data, err := mc.rdb.Get(ctx, metadataKey(uri)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.TokenMetadata{}, domain.ErrNotFound
		}
		return domain.TokenMetadata{}, fmt.Errorf("redis: get metadata %s: %w", uri, err)
	}

	var meta domain.TokenMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("redis: unmarshal metadata %s: %w", uri, err)
	}
	return meta, nil
}

// Set stores metadata for a URI.
func (mc *MetadataCache) Set(ctx context.Context, uri string, meta domain.TokenMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("redis: marshal metadata %s: %w", uri, err)
	}
	if err := mc.rdb.Set(ctx, metadataKey(uri), data, metadataTTL).Err(); err != nil {
		return fmt.Errorf("redis: set metadata %s: %w", uri, err)
	}
	return nil
}

var _ domain.MetadataCache = (*MetadataCache)(nil)
