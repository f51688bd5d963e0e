package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nftbazaar/marketd/internal/domain"
	"github.com/nftbazaar/marketd/internal/ledger"
)

const (
	feeRecipient = "0x0000000000000000000000000000000000000fee"
	sellerAddr   = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	buyerAddr    = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

// fakeStorage is an in-memory domain.StorageGateway. Documents are assigned
// sequential fake CIDs.
type fakeStorage struct {
	next int
	docs map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{docs: make(map[string][]byte)}
}

func (f *fakeStorage) Add(_ context.Context, data []byte) (string, error) {
	f.next++
	cid := fmt.Sprintf("QmFake%d", f.next)
	f.docs[cid] = data
	return cid, nil
}

func (f *fakeStorage) AddJSON(ctx context.Context, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return f.Add(ctx, data)
}

func (f *fakeStorage) GatewayURL(path string) string {
	return "https://gateway.test/ipfs/" + path
}

// fakeResolver resolves metadata straight out of the fake storage, so the
// pipeline round-trips without a network.
type fakeResolver struct {
	storage *fakeStorage
}

func (r *fakeResolver) Resolve(_ context.Context, uri string) (domain.TokenMetadata, error) {
	const prefix = "https://gateway.test/ipfs/"
	data, ok := r.storage.docs[uri[len(prefix):]]
	if !ok {
		return domain.TokenMetadata{}, domain.ErrMetadataFetch
	}
	var meta domain.TokenMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.TokenMetadata{}, err
	}
	return meta, nil
}

func (r *fakeResolver) ResolveAll(ctx context.Context, uris []string) []*domain.TokenMetadata {
	out := make([]*domain.TokenMetadata, len(uris))
	for i, uri := range uris {
		if uri == "" {
			continue
		}
		meta, err := r.Resolve(ctx, uri)
		if err == nil {
			out[i] = &meta
		}
	}
	return out
}

type harness struct {
	ledger  *ledger.Ledger
	book    *ledger.TokenBook
	storage *fakeStorage
}

func newHarness() *harness {
	h := &harness{
		ledger:  ledger.New(ether(1), feeRecipient),
		book:    ledger.NewTokenBook(),
		storage: newFakeStorage(),
	}
	h.ledger.BindCustody(h.book)
	return h
}

// svc builds a MarketService acting as the given caller.
func (h *harness) svc(caller string) *MarketService {
	return NewMarketService(
		ledger.NewSession(h.ledger, caller),
		ledger.NewTokenSession(h.book, caller),
		h.storage,
		&fakeResolver{storage: h.storage},
		nil,
		discard(),
	)
}

func TestCreateListing(t *testing.T) {
	h := newHarness()
	s := h.svc(sellerAddr)

	listing, err := s.CreateListing(context.Background(), CreateListingRequest{
		Name:        "Sunrise",
		Description: "First light over the ridge",
		Image:       []byte("fake-png-bytes"),
		PriceEther:  "1.5",
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), listing.ItemID)
	assert.Equal(t, "1.5", listing.PriceEther)
	require.NotNil(t, listing.Metadata)
	assert.Equal(t, "Sunrise", listing.Metadata.Name)
	assert.Contains(t, listing.Metadata.Image, "https://gateway.test/ipfs/")
	assert.Contains(t, listing.MetadataURI, "https://gateway.test/ipfs/")

	// The token's URI must point at the pinned metadata document.
	uri, err := h.book.URI(1)
	require.NoError(t, err)
	assert.Equal(t, listing.MetadataURI, uri)
}

func TestCreateListingValidation(t *testing.T) {
	s := newHarness().svc(sellerAddr)
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateListingRequest
	}{
		{"missing name", CreateListingRequest{Description: "d", Image: []byte("i"), PriceEther: "1"}},
		{"missing description", CreateListingRequest{Name: "n", Image: []byte("i"), PriceEther: "1"}},
		{"missing image", CreateListingRequest{Name: "n", Description: "d", PriceEther: "1"}},
		{"missing price", CreateListingRequest{Name: "n", Description: "d", Image: []byte("i")}},
		{"zero price", CreateListingRequest{Name: "n", Description: "d", Image: []byte("i"), PriceEther: "0"}},
		{"negative price", CreateListingRequest{Name: "n", Description: "d", Image: []byte("i"), PriceEther: "-1"}},
		{"garbled price", CreateListingRequest{Name: "n", Description: "d", Image: []byte("i"), PriceEther: "a lot"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.CreateListing(ctx, tc.req)
			assert.Error(t, err)
		})
	}
}

func TestBrowseAndBuy(t *testing.T) {
	h := newHarness()
	seller := h.svc(sellerAddr)
	buyer := h.svc(buyerAddr)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		_, err := seller.CreateListing(ctx, CreateListingRequest{
			Name:        fmt.Sprintf("Piece %d", i),
			Description: "test piece",
			Image:       []byte{byte(i)},
			PriceEther:  "100",
		})
		require.NoError(t, err)
	}

	listings, err := buyer.Browse(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "Piece 1", listings[0].Metadata.Name)
	assert.Equal(t, "100", listings[0].PriceEther)

	require.NoError(t, buyer.Buy(ctx, listings[0].ItemID))

	listings, err = buyer.Browse(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "Piece 2", listings[0].Metadata.Name)
}

func TestGetListing(t *testing.T) {
	h := newHarness()
	seller := h.svc(sellerAddr)
	ctx := context.Background()

	created, err := seller.CreateListing(ctx, CreateListingRequest{
		Name:        "Solo",
		Description: "one of one",
		Image:       []byte{1},
		PriceEther:  "2",
	})
	require.NoError(t, err)

	got, err := seller.GetListing(ctx, created.ItemID)
	require.NoError(t, err)
	assert.Equal(t, created.ItemID, got.ItemID)
	assert.Equal(t, "Solo", got.Metadata.Name)
	assert.Equal(t, "2", got.PriceEther)

	_, err = seller.GetListing(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestBuyErrors(t *testing.T) {
	h := newHarness()
	buyer := h.svc(buyerAddr)
	ctx := context.Background()

	err := buyer.Buy(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)

	seller := h.svc(sellerAddr)
	listing, err := seller.CreateListing(ctx, CreateListingRequest{
		Name: "One", Description: "only one", Image: []byte("i"), PriceEther: "1",
	})
	require.NoError(t, err)

	require.NoError(t, buyer.Buy(ctx, listing.ItemID))

	// A second purchase of the same item must report the sale, not a miss.
	err = buyer.Buy(ctx, listing.ItemID)
	assert.ErrorIs(t, err, domain.ErrItemAlreadySold)
}

func TestListingFee(t *testing.T) {
	s := newHarness().svc(sellerAddr)

	wei, eth, err := s.ListingFee(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ether(1).String(), wei)
	assert.Equal(t, "1", eth)
}

func TestBrowsePagination(t *testing.T) {
	h := newHarness()
	seller := h.svc(sellerAddr)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := seller.CreateListing(ctx, CreateListingRequest{
			Name: fmt.Sprintf("P%d", i), Description: "d", Image: []byte{byte(i)}, PriceEther: "1",
		})
		require.NoError(t, err)
	}

	page, err := seller.Browse(ctx, domain.ListOpts{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(3), page[0].ItemID)
	assert.Equal(t, uint64(4), page[1].ItemID)

	empty, err := seller.Browse(ctx, domain.ListOpts{Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEtherToWei(t *testing.T) {
	wei, err := EtherToWei("0.025")
	require.NoError(t, err)
	assert.Equal(t, "25000000000000000", wei.String())

	wei, err = EtherToWei("100")
	require.NoError(t, err)
	assert.Equal(t, ether(100), wei)

	_, err = EtherToWei("0.0000000000000000001")
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = EtherToWei("-3")
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
}

func TestWeiToEther(t *testing.T) {
	assert.Equal(t, "1.5", WeiToEther(big.NewInt(1_500_000_000_000_000_000)))
	assert.Equal(t, "0.025", WeiToEther(big.NewInt(25_000_000_000_000_000)))
	assert.Equal(t, "0", WeiToEther(nil))
}
