package notify

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nftbazaar/marketd/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	mu       sync.Mutex
	titles   []string
	messages []string
	fail     bool
}

func (s *recordingSender) Send(_ context.Context, title, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return assert.AnError
	}
	s.titles = append(s.titles, title)
	s.messages = append(s.messages, message)
	return nil
}

func (s *recordingSender) Name() string { return "recording" }

func soldEvent() domain.ChainEvent {
	return domain.ChainEvent{
		Type:   domain.EventItemSold,
		ItemID: 7,
		Buyer:  "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Price:  big.NewInt(1_500_000_000_000_000_000),
		TxHash: "0xbb",
	}
}

func TestAnnounceSale(t *testing.T) {
	sender := &recordingSender{}
	n := New([]Sender{sender}, nil, discard())

	n.Announce(context.Background(), soldEvent())

	require.Len(t, sender.titles, 1)
	assert.Equal(t, "Item sold", sender.titles[0])
	assert.Contains(t, sender.messages[0], "#7")
	assert.Contains(t, sender.messages[0], "1.5 ETH")
	assert.Contains(t, sender.messages[0], "0x709979...79C8")
}

func TestAnnounceFiltersEventTypes(t *testing.T) {
	sender := &recordingSender{}
	n := New([]Sender{sender}, []string{string(domain.EventItemCreated)}, discard())

	n.Announce(context.Background(), soldEvent())
	assert.Empty(t, sender.titles)

	n.Announce(context.Background(), domain.ChainEvent{
		Type:   domain.EventItemCreated,
		ItemID: 1,
		Seller: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		Price:  big.NewInt(100),
		TxHash: "0xaa",
	})
	require.Len(t, sender.titles, 1)
	assert.Equal(t, "New listing", sender.titles[0])
}

func TestAnnounceToleratesSenderFailure(t *testing.T) {
	failing := &recordingSender{fail: true}
	working := &recordingSender{}
	n := New([]Sender{failing, working}, nil, discard())

	n.Announce(context.Background(), soldEvent())
	require.Len(t, working.titles, 1)
}

func TestAnnounceIgnoresUnknownTypes(t *testing.T) {
	sender := &recordingSender{}
	n := New([]Sender{sender}, nil, discard())

	n.Announce(context.Background(), domain.ChainEvent{Type: "SomethingElse"})
	assert.Empty(t, sender.titles)
}
