// Package metadata resolves token metadata URIs to their JSON documents.
// Fetches are cached, retried with exponential backoff, and fanned out
// concurrently when a whole listing page needs resolving.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/nftbazaar/marketd/internal/domain"
)

const (
	defaultFetchTimeout = 10 * time.Second
	defaultConcurrency  = 8
	maxDocumentBytes    = 1 << 20
	maxRetryElapsed     = 15 * time.Second
)

// Fetcher resolves metadata URIs over HTTP with a read-through cache.
type Fetcher struct {
	http        *http.Client
	cache       domain.MetadataCache
	concurrency int
	logger      *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client used for fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.http = c }
}

// WithConcurrency bounds the number of in-flight fetches in ResolveAll.
func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// NewFetcher creates a Fetcher. The cache may be nil, in which case every
// resolve goes to the network.
func NewFetcher(cache domain.MetadataCache, logger *slog.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		http:        &http.Client{Timeout: defaultFetchTimeout},
		cache:       cache,
		concurrency: defaultConcurrency,
		logger:      logger.With(slog.String("component", "metadata")),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Resolve fetches the metadata document at uri, consulting the cache first.
// Transient HTTP failures are retried with exponential backoff.
func (f *Fetcher) Resolve(ctx context.Context, uri string) (domain.TokenMetadata, error) {
	if f.cache != nil {
		meta, err := f.cache.Get(ctx, uri)
		if err == nil {
			return meta, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			f.logger.WarnContext(ctx, "metadata cache read failed",
				slog.String("uri", uri),
				slog.String("error", err.Error()),
			)
		}
	}

	var meta domain.TokenMetadata
	op := func() error {
		m, err := f.fetch(ctx, uri)
		if err != nil {
			return err
		}
		meta = m
		return nil
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(maxRetryElapsed),
	), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return domain.TokenMetadata{}, errors.Join(domain.ErrMetadataFetch,
			fmt.Errorf("metadata: resolve %s: %w", uri, err))
	}

	if f.cache != nil {
		if err := f.cache.Set(ctx, uri, meta); err != nil {
			f.logger.WarnContext(ctx, "metadata cache write failed",
				slog.String("uri", uri),
				slog.String("error", err.Error()),
			)
		}
	}
	return meta, nil
}

// ResolveAll resolves many URIs concurrently, preserving input order. A URI
// that cannot be resolved yields a nil entry rather than failing the page;
// an empty URI is skipped outright.
func (f *Fetcher) ResolveAll(ctx context.Context, uris []string) []*domain.TokenMetadata {
	out := make([]*domain.TokenMetadata, len(uris))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for i, uri := range uris {
		if uri == "" {
			continue
		}
		g.Go(func() error {
			meta, err := f.Resolve(gctx, uri)
			if err != nil {
				f.logger.WarnContext(gctx, "metadata unresolved",
					slog.String("uri", uri),
					slog.String("error", err.Error()),
				)
				return nil
			}
			out[i] = &meta
			return nil
		})
	}

	// Workers never return errors; Wait only observes context cancellation.
	_ = g.Wait()
	return out
}

// permanentStatus reports whether an HTTP status will not improve on retry.
func permanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

func (f *Fetcher) fetch(ctx context.Context, uri string) (domain.TokenMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return domain.TokenMetadata{}, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return domain.TokenMetadata{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("status %d", resp.StatusCode)
		if permanentStatus(resp.StatusCode) {
			return domain.TokenMetadata{}, backoff.Permanent(err)
		}
		return domain.TokenMetadata{}, err
	}

	var meta domain.TokenMetadata
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentBytes))
	if err := dec.Decode(&meta); err != nil {
		return domain.TokenMetadata{}, backoff.Permanent(fmt.Errorf("decode document: %w", err))
	}
	return meta, nil
}
