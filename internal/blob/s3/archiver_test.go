package s3blob

import (
	"bytes"
	"context"
	"io"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nftbazaar/marketd/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemWriter() *memWriter {
	return &memWriter{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = buf
	w.types[path] = contentType
	return nil
}

type staticEvents struct {
	events []domain.ChainEvent
}

func (s *staticEvents) ListSince(_ context.Context, _ time.Time, opts domain.ListOpts) ([]domain.ChainEvent, error) {
	if opts.Offset >= len(s.events) {
		return nil, nil
	}
	end := min(opts.Offset+opts.Limit, len(s.events))
	return s.events[opts.Offset:end], nil
}

type staticListings struct {
	items []domain.MarketItem
}

func (s *staticListings) ListUnsold(_ context.Context, opts domain.ListOpts) ([]domain.MarketItem, error) {
	if opts.Offset >= len(s.items) {
		return nil, nil
	}
	end := min(opts.Offset+opts.Limit, len(s.items))
	return s.items[opts.Offset:end], nil
}

func TestArchiveEvents(t *testing.T) {
	writer := newMemWriter()
	events := &staticEvents{events: []domain.ChainEvent{
		{Type: domain.EventItemCreated, ItemID: 1, TxHash: "0xaa", BlockNumber: 10},
		{Type: domain.EventItemSold, ItemID: 1, TxHash: "0xbb", BlockNumber: 11},
	}}

	a := NewArchiver(writer, events, &staticListings{})
	key, n, err := a.ArchiveEvents(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, strings.HasPrefix(key, "archive/events/"))
	assert.True(t, strings.HasSuffix(key, ".jsonl"))

	body := writer.objects[key]
	require.NotNil(t, body)
	lines := bytes.Split(bytes.TrimSpace(body), []byte("\n"))
	assert.Len(t, lines, 2)
	assert.Equal(t, "application/x-ndjson", writer.types[key])
}

func TestArchiveEventsEmptyWindow(t *testing.T) {
	writer := newMemWriter()
	a := NewArchiver(writer, &staticEvents{}, &staticListings{})

	key, n, err := a.ArchiveEvents(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, key)
	assert.Empty(t, writer.objects)
}

func TestSnapshotListings(t *testing.T) {
	writer := newMemWriter()
	listings := &staticListings{items: []domain.MarketItem{
		{ItemID: 1, TokenID: 5, PriceWei: big.NewInt(100)},
		{ItemID: 2, TokenID: 6, PriceWei: big.NewInt(200)},
	}}

	a := NewArchiver(writer, &staticEvents{}, listings)
	key, n, err := a.SnapshotListings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, strings.HasPrefix(key, "snapshots/listings/"))
	assert.Contains(t, string(writer.objects[key]), `"item_id":1`)
}
