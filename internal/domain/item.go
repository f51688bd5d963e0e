package domain

import (
	"encoding/json"
	"math/big"
	"time"
)

// ZeroAddress is the Ethereum zero address. Unsold items are owned by it
// while the token sits in marketplace escrow.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// MarketItem is one entry in the marketplace ledger. An item is created in
// the Listed state (Sold false, Owner zero) and transitions exactly once to
// Sold when a buyer pays the asking price.
type MarketItem struct {
	ItemID        uint64    `json:"item_id"`
	TokenContract string    `json:"token_contract"`
	TokenID       uint64    `json:"token_id"`
	Seller        string    `json:"seller"`
	Owner         string    `json:"owner"`
	PriceWei      *big.Int  `json:"-"`
	Sold          bool      `json:"sold"`
	TxHash        string    `json:"tx_hash,omitempty"`
	BlockNumber   uint64    `json:"block_number,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Unsold reports whether the item is still available for purchase.
func (m MarketItem) Unsold() bool {
	return !m.Sold
}

// PriceString returns the price in wei as a decimal string, or "0" when the
// price is unset.
func (m MarketItem) PriceString() string {
	if m.PriceWei == nil {
		return "0"
	}
	return m.PriceWei.String()
}

// itemJSON carries the wire form of MarketItem. The price travels as a
// decimal string since wei amounts overflow JSON numbers.
type itemJSON struct {
	ItemID        uint64    `json:"item_id"`
	TokenContract string    `json:"token_contract"`
	TokenID       uint64    `json:"token_id"`
	Seller        string    `json:"seller"`
	Owner         string    `json:"owner"`
	PriceWei      string    `json:"price_wei"`
	Sold          bool      `json:"sold"`
	TxHash        string    `json:"tx_hash,omitempty"`
	BlockNumber   uint64    `json:"block_number,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (m MarketItem) wire() itemJSON {
	return itemJSON{
		ItemID:        m.ItemID,
		TokenContract: m.TokenContract,
		TokenID:       m.TokenID,
		Seller:        m.Seller,
		Owner:         m.Owner,
		PriceWei:      m.PriceString(),
		Sold:          m.Sold,
		TxHash:        m.TxHash,
		BlockNumber:   m.BlockNumber,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func (w itemJSON) item() MarketItem {
	price, ok := new(big.Int).SetString(w.PriceWei, 10)
	if !ok {
		price = big.NewInt(0)
	}
	return MarketItem{
		ItemID:        w.ItemID,
		TokenContract: w.TokenContract,
		TokenID:       w.TokenID,
		Seller:        w.Seller,
		Owner:         w.Owner,
		PriceWei:      price,
		Sold:          w.Sold,
		TxHash:        w.TxHash,
		BlockNumber:   w.BlockNumber,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
}

// MarshalJSON renders the price as a decimal string.
func (m MarketItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.wire())
}

// UnmarshalJSON parses the wire form back, including the price string.
func (m *MarketItem) UnmarshalJSON(data []byte) error {
	var w itemJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = w.item()
	return nil
}

// TokenMetadata is the JSON document stored on IPFS and referenced by a
// token's metadata URI.
type TokenMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// Listing is the API-facing view of a market item: the ledger entry joined
// with its token metadata and a human-readable price.
type Listing struct {
	MarketItem
	PriceEther  string         `json:"price_ether"`
	MetadataURI string         `json:"metadata_uri,omitempty"`
	Metadata    *TokenMetadata `json:"metadata,omitempty"`
}

type listingJSON struct {
	itemJSON
	PriceEther  string         `json:"price_ether"`
	MetadataURI string         `json:"metadata_uri,omitempty"`
	Metadata    *TokenMetadata `json:"metadata,omitempty"`
}

// MarshalJSON flattens the embedded item and the listing fields into one
// object. Without this the embedded item's marshaler would win and drop the
// listing fields.
func (l Listing) MarshalJSON() ([]byte, error) {
	return json.Marshal(listingJSON{
		itemJSON:    l.MarketItem.wire(),
		PriceEther:  l.PriceEther,
		MetadataURI: l.MetadataURI,
		Metadata:    l.Metadata,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (l *Listing) UnmarshalJSON(data []byte) error {
	var w listingJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*l = Listing{
		MarketItem:  w.itemJSON.item(),
		PriceEther:  w.PriceEther,
		MetadataURI: w.MetadataURI,
		Metadata:    w.Metadata,
	}
	return nil
}

// ListOpts carries pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// Clamp bounds the options to sane values: limit in [1, max], offset >= 0.
func (o ListOpts) Clamp(max int) ListOpts {
	if o.Limit <= 0 || o.Limit > max {
		o.Limit = max
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
