package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nftbazaar/marketd/internal/indexer"
	"github.com/nftbazaar/marketd/internal/server"
	"github.com/nftbazaar/marketd/internal/server/handler"
	"github.com/nftbazaar/marketd/internal/server/ws"
)

// shutdownGrace bounds how long in-flight HTTP requests may take once the
// context is cancelled.
const shutdownGrace = 10 * time.Second

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ServeMode runs the HTTP and WebSocket API only.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// IndexMode runs the chain indexer, notifications, and archive loop
// without the API.
func (a *App) IndexMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting index mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startIndexer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs everything: API, indexer, notifications, and archives.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startIndexer(ctx, g, deps)
	return g.Wait()
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "http server disabled")
		return
	}

	pingers := make(map[string]handler.Pinger, len(deps.Pingers))
	for name, ping := range deps.Pingers {
		pingers[name] = pingFunc(ping)
	}

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(pingers, a.logger),
		Listings: handler.NewListingHandler(deps.Market, a.logger),
		Accounts: handler.NewAccountHandler(deps.Accounts, a.logger),
		Fees:     handler.NewFeeHandler(deps.Market, a.logger),
	}

	hub := ws.NewHub(deps.SignalBus, indexer.EventChannel, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.New(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func (a *App) startIndexer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Watcher == nil {
		a.logger.WarnContext(ctx, "indexer unavailable, no event source wired",
			slog.String("backend", a.cfg.Chain.Backend),
		)
		return
	}

	ix := indexer.New(
		deps.Watcher,
		deps.EventStore,
		deps.ListingStore,
		deps.ListingCache,
		deps.SignalBus,
		a.logger,
	)
	g.Go(func() error {
		return ix.Run(ctx)
	})

	g.Go(func() error {
		return deps.Notifier.Watch(ctx, deps.SignalBus, indexer.EventChannel)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps)
		})
	}
}

// archiveLoop periodically drains the event journal to blob storage and
// snapshots the open listings.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	since := time.Now().UTC().Add(-interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		start := time.Now().UTC()
		key, count, err := deps.Archiver.ArchiveEvents(ctx, since)
		if err != nil {
			a.logger.ErrorContext(ctx, "event archive failed",
				slog.String("error", err.Error()),
			)
		} else {
			since = start
			if count > 0 {
				a.logger.InfoContext(ctx, "archived events",
					slog.String("key", key),
					slog.Int("count", count),
				)
			}
		}

		key, count, err = deps.Archiver.SnapshotListings(ctx)
		if err != nil {
			a.logger.ErrorContext(ctx, "listing snapshot failed",
				slog.String("error", err.Error()),
			)
		} else {
			a.logger.InfoContext(ctx, "snapshotted listings",
				slog.String("key", key),
				slog.Int("count", count),
			)
		}
	}
}
