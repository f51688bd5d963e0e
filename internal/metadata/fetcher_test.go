package metadata

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nftbazaar/marketd/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memCache is an in-memory domain.MetadataCache for tests.
type memCache struct {
	mu   sync.Mutex
	data map[string]domain.TokenMetadata
	sets int
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string]domain.TokenMetadata)}
}

func (c *memCache) Get(_ context.Context, uri string) (domain.TokenMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	meta, ok := c.data[uri]
	if !ok {
		return domain.TokenMetadata{}, domain.ErrNotFound
	}
	return meta, nil
}

func (c *memCache) Set(_ context.Context, uri string, meta domain.TokenMetadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[uri] = meta
	c.sets++
	return nil
}

func serveMetadata(t *testing.T, docs map[string]domain.TokenMetadata) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		meta, ok := docs[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(meta)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestResolve(t *testing.T) {
	srv, _ := serveMetadata(t, map[string]domain.TokenMetadata{
		"/1.json": {Name: "Sunrise", Description: "First light", Image: "https://ipfs.io/ipfs/Qm1"},
	})

	f := NewFetcher(nil, discard())
	meta, err := f.Resolve(context.Background(), srv.URL+"/1.json")
	require.NoError(t, err)
	assert.Equal(t, "Sunrise", meta.Name)
	assert.Equal(t, "First light", meta.Description)
}

func TestResolveCaches(t *testing.T) {
	srv, hits := serveMetadata(t, map[string]domain.TokenMetadata{
		"/1.json": {Name: "Sunrise"},
	})

	cache := newMemCache()
	f := NewFetcher(cache, discard())

	for range 3 {
		meta, err := f.Resolve(context.Background(), srv.URL+"/1.json")
		require.NoError(t, err)
		assert.Equal(t, "Sunrise", meta.Name)
	}

	assert.Equal(t, int64(1), hits.Load())
	assert.Equal(t, 1, cache.sets)
}

func TestResolveNotFoundIsPermanent(t *testing.T) {
	srv, hits := serveMetadata(t, nil)

	f := NewFetcher(nil, discard())
	_, err := f.Resolve(context.Background(), srv.URL+"/missing.json")
	require.ErrorIs(t, err, domain.ErrMetadataFetch)

	// 404 must not be retried.
	assert.Equal(t, int64(1), hits.Load())
}

func TestResolveRetriesServerError(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(domain.TokenMetadata{Name: "Eventually"})
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(nil, discard())
	meta, err := f.Resolve(context.Background(), srv.URL+"/1.json")
	require.NoError(t, err)
	assert.Equal(t, "Eventually", meta.Name)
	assert.GreaterOrEqual(t, calls.Load(), int64(3))
}

func TestResolveAllPreservesOrder(t *testing.T) {
	srv, _ := serveMetadata(t, map[string]domain.TokenMetadata{
		"/a.json": {Name: "A"},
		"/c.json": {Name: "C"},
	})

	f := NewFetcher(nil, discard(), WithConcurrency(2))
	uris := []string{
		srv.URL + "/a.json",
		srv.URL + "/b.json", // 404, tolerated
		srv.URL + "/c.json",
		"", // skipped
	}

	out := f.ResolveAll(context.Background(), uris)
	require.Len(t, out, 4)

	require.NotNil(t, out[0])
	assert.Equal(t, "A", out[0].Name)
	assert.Nil(t, out[1])
	require.NotNil(t, out[2])
	assert.Equal(t, "C", out[2].Name)
	assert.Nil(t, out[3])
}

func TestResolveMalformedDocument(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, "{not json")
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(nil, discard())
	_, err := f.Resolve(context.Background(), srv.URL+"/1.json")
	require.ErrorIs(t, err, domain.ErrMetadataFetch)
	assert.Equal(t, int64(1), calls.Load())
}
