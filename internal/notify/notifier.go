// Package notify delivers marketplace alerts to operator channels. The
// notifier follows the signal bus, formats indexed chain events, and fans
// them out to every configured sender.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nftbazaar/marketd/internal/domain"
	"github.com/nftbazaar/marketd/internal/service"
)

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the sender in logs ("telegram", "discord").
	Name() string
}

// Notifier dispatches marketplace events to all registered senders. When an
// allow-list of event types is configured, everything else is dropped.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool
	logger  *slog.Logger
}

// New creates a Notifier. An empty events slice allows every event type.
func New(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		allowed[domain.EventType(strings.TrimSpace(e))] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Watch consumes event payloads from the bus channel until the context is
// cancelled or the subscription closes.
func (n *Notifier) Watch(ctx context.Context, bus domain.SignalBus, channel string) error {
	stream, err := bus.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", channel, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-stream:
			if !ok {
				return nil
			}
			var ev domain.ChainEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				n.logger.WarnContext(ctx, "undecodable bus payload",
					slog.String("error", err.Error()),
				)
				continue
			}
			n.Announce(ctx, ev)
		}
	}
}

// Announce formats and dispatches a single event, honoring the allow-list.
// Delivery failures are logged, not returned; one slow webhook must not
// stall the event loop.
func (n *Notifier) Announce(ctx context.Context, ev domain.ChainEvent) {
	if len(n.events) > 0 && !n.events[ev.Type] {
		return
	}

	title, message := format(ev)
	if title == "" {
		return
	}

	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
}

func format(ev domain.ChainEvent) (title, message string) {
	price := service.WeiToEther(ev.Price)
	switch ev.Type {
	case domain.EventItemCreated:
		return "New listing",
			fmt.Sprintf("Item #%d (token %d) listed by %s for %s ETH\ntx %s",
				ev.ItemID, ev.TokenID, short(ev.Seller), price, ev.TxHash)
	case domain.EventItemSold:
		return "Item sold",
			fmt.Sprintf("Item #%d bought by %s for %s ETH\ntx %s",
				ev.ItemID, short(ev.Buyer), price, ev.TxHash)
	default:
		return "", ""
	}
}

// short elides the middle of an address for readability.
func short(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:8] + "..." + addr[len(addr)-4:]
}

// postJSON is shared by the webhook-style senders.
func postJSON(ctx context.Context, client *http.Client, url string, payload any, name string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: unexpected status %d: %s", name, resp.StatusCode, string(respBody))
	}
	return nil
}
