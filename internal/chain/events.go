package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/nftbazaar/marketd/internal/domain"
)

// eventChanBuffer is the buffer size for subscription event channels.
const eventChanBuffer = 100

// ParseLog decodes a marketplace contract log into a domain.ChainEvent. It
// returns (nil, nil) for logs emitted by other contracts or with unknown
// event signatures.
func (m *Marketplace) ParseLog(lg types.Log) (*domain.ChainEvent, error) {
	if lg.Address != m.address || len(lg.Topics) == 0 {
		return nil, nil
	}

	switch lg.Topics[0] {
	case m.abi.Events["MarketItemCreated"].ID:
		return m.parseItemCreated(lg)
	case m.abi.Events["MarketItemSold"].ID:
		return m.parseItemSold(lg)
	default:
		return nil, nil
	}
}

func (m *Marketplace) parseItemCreated(lg types.Log) (*domain.ChainEvent, error) {
	if len(lg.Topics) < 4 {
		return nil, fmt.Errorf("chain: MarketItemCreated log %s: %d topics", lg.TxHash.Hex(), len(lg.Topics))
	}

	ev := &domain.ChainEvent{
		Type:          domain.EventItemCreated,
		ItemID:        new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(),
		TokenContract: common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
		TokenID:       new(big.Int).SetBytes(lg.Topics[3].Bytes()).Uint64(),
		TxHash:        lg.TxHash.Hex(),
		BlockNumber:   lg.BlockNumber,
		ObservedAt:    time.Now().UTC(),
	}

	fields := make(map[string]any)
	if err := m.abi.UnpackIntoMap(fields, "MarketItemCreated", lg.Data); err != nil {
		return nil, fmt.Errorf("chain: unpack MarketItemCreated: %w", err)
	}
	if seller, ok := fields["seller"].(common.Address); ok {
		ev.Seller = seller.Hex()
	}
	if price, ok := fields["price"].(*big.Int); ok {
		ev.Price = price
		ev.PriceWei = price.String()
	}
	return ev, nil
}

func (m *Marketplace) parseItemSold(lg types.Log) (*domain.ChainEvent, error) {
	if len(lg.Topics) < 3 {
		return nil, fmt.Errorf("chain: MarketItemSold log %s: %d topics", lg.TxHash.Hex(), len(lg.Topics))
	}

	// The Sold event does not carry the NFT contract; the listing row
	// projected from the Created event holds it. Left empty here rather
	// than guessed.
	ev := &domain.ChainEvent{
		Type:        domain.EventItemSold,
		ItemID:      new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(),
		Buyer:       common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
		TxHash:      lg.TxHash.Hex(),
		BlockNumber: lg.BlockNumber,
		ObservedAt:  time.Now().UTC(),
	}

	fields := make(map[string]any)
	if err := m.abi.UnpackIntoMap(fields, "MarketItemSold", lg.Data); err != nil {
		return nil, fmt.Errorf("chain: unpack MarketItemSold: %w", err)
	}
	if tokenID, ok := fields["tokenId"].(*big.Int); ok {
		ev.TokenID = tokenID.Uint64()
	}
	if price, ok := fields["price"].(*big.Int); ok {
		ev.Price = price
		ev.PriceWei = price.String()
	}
	return ev, nil
}

// EventWatcher streams decoded marketplace events, either live over a
// WebSocket RPC subscription or by scanning historical blocks.
type EventWatcher struct {
	market *Marketplace
	logger *slog.Logger
}

// NewEventWatcher creates an EventWatcher over the given marketplace
// binding. Live subscriptions require the binding's client to be connected
// over WebSocket.
func NewEventWatcher(market *Marketplace, logger *slog.Logger) *EventWatcher {
	return &EventWatcher{
		market: market,
		logger: logger.With(slog.String("component", "event_watcher")),
	}
}

// Subscribe opens a live log subscription filtered to the marketplace
// contract and returns a channel of decoded events. The channel closes when
// the context is cancelled or the subscription errors.
func (w *EventWatcher) Subscribe(ctx context.Context) (<-chan domain.ChainEvent, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{w.market.address},
	}

	logs := make(chan types.Log, eventChanBuffer)
	sub, err := w.market.client.eth.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, fmt.Errorf("chain: subscribe logs: %w", err)
	}

	out := make(chan domain.ChainEvent, eventChanBuffer)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				w.logger.ErrorContext(ctx, "log subscription failed",
					slog.String("error", err.Error()),
				)
				return
			case lg := <-logs:
				ev, perr := w.market.ParseLog(lg)
				if perr != nil {
					w.logger.WarnContext(ctx, "undecodable log",
						slog.String("tx_hash", lg.TxHash.Hex()),
						slog.String("error", perr.Error()),
					)
					continue
				}
				if ev == nil {
					continue
				}
				select {
				case out <- *ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// ScanPast fetches and decodes all marketplace logs in [fromBlock, toBlock].
// A toBlock of 0 means the current head.
func (w *EventWatcher) ScanPast(ctx context.Context, fromBlock, toBlock uint64) ([]domain.ChainEvent, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{w.market.address},
		FromBlock: new(big.Int).SetUint64(fromBlock),
	}
	if toBlock > 0 {
		query.ToBlock = new(big.Int).SetUint64(toBlock)
	}

	logs, err := w.market.client.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("chain: filter logs from %d: %w", fromBlock, err)
	}

	events := make([]domain.ChainEvent, 0, len(logs))
	for _, lg := range logs {
		ev, perr := w.market.ParseLog(lg)
		if perr != nil {
			w.logger.WarnContext(ctx, "undecodable log",
				slog.String("tx_hash", lg.TxHash.Hex()),
				slog.String("error", perr.Error()),
			)
			continue
		}
		if ev != nil {
			events = append(events, *ev)
		}
	}
	return events, nil
}
