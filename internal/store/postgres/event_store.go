package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nftbazaar/marketd/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. Events are
// deduplicated on (tx_hash, event_type, item_id) so replays during catch-up
// scans are harmless.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by the given pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append journals a decoded chain event. Duplicate events are ignored.
func (s *EventStore) Append(ctx context.Context, event domain.ChainEvent) error {
	const query = `
		INSERT INTO chain_events (
			event_type, item_id, token_contract, token_id,
			seller, buyer, price_wei, tx_hash, block_number, observed_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7::numeric, $8, $9, $10
		)
		ON CONFLICT (tx_hash, event_type, item_id) DO NOTHING`

	var priceWei any
	if event.Price != nil {
		priceWei = event.Price.String()
	}

	observedAt := event.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, query,
		string(event.Type), event.ItemID, event.TokenContract, event.TokenID,
		event.Seller, event.Buyer, priceWei, event.TxHash, event.BlockNumber,
		observedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %s item %d: %w", event.Type, event.ItemID, err)
	}
	return nil
}

// ListSince returns events observed at or after the given time, oldest
// first.
func (s *EventStore) ListSince(ctx context.Context, since time.Time, opts domain.ListOpts) ([]domain.ChainEvent, error) {
	const query = `
		SELECT event_type, item_id, token_contract, token_id,
		       seller, buyer, COALESCE(price_wei::text, ''), tx_hash,
		       block_number, observed_at
		FROM chain_events
		WHERE observed_at >= $3
		ORDER BY observed_at, id
		LIMIT $1 OFFSET $2`

	opts = opts.Clamp(500)
	rows, err := s.pool.Query(ctx, query, opts.Limit, opts.Offset, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []domain.ChainEvent
	for rows.Next() {
		var (
			ev       domain.ChainEvent
			evType   string
			priceWei string
		)
		err := rows.Scan(
			&evType, &ev.ItemID, &ev.TokenContract, &ev.TokenID,
			&ev.Seller, &ev.Buyer, &priceWei, &ev.TxHash,
			&ev.BlockNumber, &ev.ObservedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		ev.Type = domain.EventType(evType)
		if priceWei != "" {
			if price, ok := new(big.Int).SetString(priceWei, 10); ok {
				ev.Price = price
				ev.PriceWei = priceWei
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate events: %w", err)
	}
	return events, nil
}

// LastSeenBlock returns the indexer's catch-up watermark.
func (s *EventStore) LastSeenBlock(ctx context.Context) (uint64, error) {
	var block uint64
	err := s.pool.QueryRow(ctx,
		`SELECT last_seen_block FROM indexer_checkpoint WHERE id = 1`,
	).Scan(&block)
	if err != nil {
		return 0, fmt.Errorf("postgres: read checkpoint: %w", err)
	}
	return block, nil
}

// SetLastSeenBlock advances the watermark. It never moves backwards.
func (s *EventStore) SetLastSeenBlock(ctx context.Context, block uint64) error {
	const query = `
		UPDATE indexer_checkpoint
		SET last_seen_block = GREATEST(last_seen_block, $1), updated_at = NOW()
		WHERE id = 1`

	if _, err := s.pool.Exec(ctx, query, block); err != nil {
		return fmt.Errorf("postgres: advance checkpoint to %d: %w", block, err)
	}
	return nil
}

var _ domain.EventStore = (*EventStore)(nil)
