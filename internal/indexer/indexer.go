// Package indexer keeps the off-chain index in sync with the marketplace
// contract: it replays missed events from the last checkpoint, then follows
// the live log stream, projecting each event into the listing store.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nftbazaar/marketd/internal/domain"
)

// EventChannel is the Pub/Sub channel indexed events are announced on.
const EventChannel = "market.events"

// resubscribeDelay spaces reconnection attempts after a dropped stream.
const resubscribeDelay = 5 * time.Second

// EventSource produces decoded marketplace events, live or historical.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan domain.ChainEvent, error)
	ScanPast(ctx context.Context, fromBlock, toBlock uint64) ([]domain.ChainEvent, error)
}

// Indexer projects chain events into the listing store and fans them out on
// the signal bus. The cache and bus are optional.
type Indexer struct {
	source   EventSource
	events   domain.EventStore
	listings domain.ListingStore
	cache    domain.ListingCache
	bus      domain.SignalBus
	logger   *slog.Logger
}

// New creates an Indexer with all required dependencies.
func New(
	source EventSource,
	events domain.EventStore,
	listings domain.ListingStore,
	cache domain.ListingCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *Indexer {
	return &Indexer{
		source:   source,
		events:   events,
		listings: listings,
		cache:    cache,
		bus:      bus,
		logger:   logger.With(slog.String("component", "indexer")),
	}
}

// Run catches up from the stored checkpoint and then follows the live
// stream until the context is cancelled. Dropped subscriptions are retried
// with a fresh catch-up scan, so no events are lost across the gap.
func (ix *Indexer) Run(ctx context.Context) error {
	for {
		if err := ix.catchUp(ctx); err != nil {
			ix.logger.ErrorContext(ctx, "catch-up scan failed",
				slog.String("error", err.Error()),
			)
		}

		err := ix.follow(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			ix.logger.WarnContext(ctx, "event stream dropped, resubscribing",
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(resubscribeDelay):
		}
	}
}

// CatchUp runs a single historical scan without following the live stream.
// The index mode of the daemon calls this on a timer.
func (ix *Indexer) CatchUp(ctx context.Context) error {
	return ix.catchUp(ctx)
}

func (ix *Indexer) catchUp(ctx context.Context) error {
	last, err := ix.events.LastSeenBlock(ctx)
	if err != nil {
		return fmt.Errorf("indexer: read checkpoint: %w", err)
	}

	from := uint64(0)
	if last > 0 {
		from = last + 1
	}

	events, err := ix.source.ScanPast(ctx, from, 0)
	if err != nil {
		return fmt.Errorf("indexer: scan from block %d: %w", from, err)
	}

	for _, ev := range events {
		if err := ix.apply(ctx, ev); err != nil {
			return err
		}
	}

	if len(events) > 0 {
		ix.logger.InfoContext(ctx, "catch-up complete",
			slog.Uint64("from_block", from),
			slog.Int("events", len(events)),
		)
	}
	return nil
}

func (ix *Indexer) follow(ctx context.Context) error {
	stream, err := ix.source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("indexer: subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream:
			if !ok {
				return errors.New("indexer: event stream closed")
			}
			if err := ix.apply(ctx, ev); err != nil {
				ix.logger.ErrorContext(ctx, "event apply failed",
					slog.String("type", string(ev.Type)),
					slog.Uint64("item_id", ev.ItemID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// apply projects one event into the store, journals it, advances the
// checkpoint, and announces it. Projection failures abort; everything after
// the journal write is best-effort.
func (ix *Indexer) apply(ctx context.Context, ev domain.ChainEvent) error {
	switch ev.Type {
	case domain.EventItemCreated:
		item := domain.MarketItem{
			ItemID:        ev.ItemID,
			TokenContract: ev.TokenContract,
			TokenID:       ev.TokenID,
			Seller:        ev.Seller,
			Owner:         domain.ZeroAddress,
			PriceWei:      ev.Price,
			Sold:          false,
			TxHash:        ev.TxHash,
			BlockNumber:   ev.BlockNumber,
		}
		if err := ix.listings.Upsert(ctx, item); err != nil {
			return fmt.Errorf("indexer: project created item %d: %w", ev.ItemID, err)
		}

	case domain.EventItemSold:
		err := ix.listings.MarkSold(ctx, ev.ItemID, ev.Buyer, ev.TxHash, ev.BlockNumber)
		if err != nil && !errors.Is(err, domain.ErrItemNotFound) {
			return fmt.Errorf("indexer: project sold item %d: %w", ev.ItemID, err)
		}
		if errors.Is(err, domain.ErrItemNotFound) {
			// Sale observed before its listing; the next catch-up scan
			// replays both in order.
			ix.logger.WarnContext(ctx, "sale for unknown item",
				slog.Uint64("item_id", ev.ItemID),
			)
		}

	default:
		ix.logger.WarnContext(ctx, "unknown event type",
			slog.String("type", string(ev.Type)),
		)
		return nil
	}

	if err := ix.events.Append(ctx, ev); err != nil {
		ix.logger.WarnContext(ctx, "event journal write failed",
			slog.String("error", err.Error()),
		)
	}
	if err := ix.events.SetLastSeenBlock(ctx, ev.BlockNumber); err != nil {
		ix.logger.WarnContext(ctx, "checkpoint advance failed",
			slog.String("error", err.Error()),
		)
	}

	if ix.cache != nil {
		if err := ix.cache.Invalidate(ctx); err != nil {
			ix.logger.WarnContext(ctx, "cache invalidate failed",
				slog.String("error", err.Error()),
			)
		}
	}

	if ix.bus != nil {
		payload, err := json.Marshal(ev)
		if err == nil {
			err = ix.bus.Publish(ctx, EventChannel, payload)
		}
		if err != nil {
			ix.logger.WarnContext(ctx, "event publish failed",
				slog.String("error", err.Error()),
			)
		}
	}

	ix.logger.InfoContext(ctx, "event indexed",
		slog.String("type", string(ev.Type)),
		slog.Uint64("item_id", ev.ItemID),
		slog.Uint64("block", ev.BlockNumber),
	)
	return nil
}
