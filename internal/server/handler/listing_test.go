package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nftbazaar/marketd/internal/domain"
	"github.com/nftbazaar/marketd/internal/service"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeListingService struct {
	listings []domain.Listing
	created  *service.CreateListingRequest
	buyErr   error
	bought   []uint64
}

func (f *fakeListingService) CreateListing(_ context.Context, req service.CreateListingRequest) (domain.Listing, error) {
	if err := req.Validate(); err != nil {
		return domain.Listing{}, err
	}
	f.created = &req
	return domain.Listing{
		MarketItem: domain.MarketItem{ItemID: 1, PriceWei: big.NewInt(100)},
		PriceEther: req.PriceEther,
	}, nil
}

func (f *fakeListingService) Browse(context.Context, domain.ListOpts) ([]domain.Listing, error) {
	return f.listings, nil
}

func (f *fakeListingService) GetListing(_ context.Context, itemID uint64) (domain.Listing, error) {
	for _, l := range f.listings {
		if l.ItemID == itemID {
			return l, nil
		}
	}
	return domain.Listing{}, domain.ErrItemNotFound
}

func (f *fakeListingService) Buy(_ context.Context, itemID uint64) error {
	if f.buyErr != nil {
		return f.buyErr
	}
	f.bought = append(f.bought, itemID)
	return nil
}

func newMux(svc ListingService) *http.ServeMux {
	h := NewListingHandler(svc, discard())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/listings", h.ListListings)
	mux.HandleFunc("GET /api/listings/{id}", h.GetListing)
	mux.HandleFunc("POST /api/listings", h.CreateListing)
	mux.HandleFunc("POST /api/listings/{id}/buy", h.BuyListing)
	return mux
}

func multipartBody(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		part, err := mw.CreateFormFile("image", "art.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestListListings(t *testing.T) {
	svc := &fakeListingService{listings: []domain.Listing{
		{MarketItem: domain.MarketItem{ItemID: 1, PriceWei: big.NewInt(100)}, PriceEther: "0.0000000000000001"},
	}}

	rec := httptest.NewRecorder()
	newMux(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Listings []domain.Listing `json:"listings"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Listings, 1)
	assert.Equal(t, uint64(1), resp.Listings[0].ItemID)
}

func TestListListingsEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux(&fakeListingService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"listings":[]`)
}

func TestGetListing(t *testing.T) {
	svc := &fakeListingService{listings: []domain.Listing{
		{MarketItem: domain.MarketItem{ItemID: 3, PriceWei: big.NewInt(100)}, PriceEther: "0.0000000000000001"},
	}}

	rec := httptest.NewRecorder()
	newMux(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings/3", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Listing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, uint64(3), got.ItemID)
}

func TestGetListingNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux(&fakeListingService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings/9", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateListing(t *testing.T) {
	svc := &fakeListingService{}

	body, contentType := multipartBody(t, map[string]string{
		"name":        "Sunrise",
		"description": "First light",
		"price_ether": "1.5",
	}, []byte("png-bytes"))

	req := httptest.NewRequest(http.MethodPost, "/api/listings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	newMux(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.created)
	assert.Equal(t, "Sunrise", svc.created.Name)
	assert.Equal(t, []byte("png-bytes"), svc.created.Image)
}

func TestCreateListingMissingImage(t *testing.T) {
	body, contentType := multipartBody(t, map[string]string{
		"name":        "Sunrise",
		"description": "First light",
		"price_ether": "1.5",
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/listings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	newMux(&fakeListingService{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuyListing(t *testing.T) {
	svc := &fakeListingService{}

	rec := httptest.NewRecorder()
	newMux(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/listings/7/buy", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uint64{7}, svc.bought)
	assert.Contains(t, rec.Body.String(), `"sold":true`)
}

func TestBuyListingErrors(t *testing.T) {
	cases := []struct {
		name   string
		target string
		buyErr error
		want   int
	}{
		{"bad id", "/api/listings/abc/buy", nil, http.StatusBadRequest},
		{"zero id", "/api/listings/0/buy", nil, http.StatusBadRequest},
		{"not found", "/api/listings/7/buy", domain.ErrItemNotFound, http.StatusNotFound},
		{"already sold", "/api/listings/7/buy", domain.ErrItemAlreadySold, http.StatusConflict},
		{"wallet down", "/api/listings/7/buy", domain.ErrWalletUnavailable, http.StatusServiceUnavailable},
		{"reverted", "/api/listings/7/buy", domain.ErrTransactionReverted, http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newMux(&fakeListingService{buyErr: tc.buyErr}).ServeHTTP(rec,
				httptest.NewRequest(http.MethodPost, tc.target, nil))
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}
