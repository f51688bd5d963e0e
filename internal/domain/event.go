package domain

import (
	"math/big"
	"time"
)

// EventType identifies a marketplace contract event.
type EventType string

const (
	EventItemCreated EventType = "MarketItemCreated"
	EventItemSold    EventType = "MarketItemSold"
)

// ChainEvent is a decoded marketplace contract log. Price is nil for event
// types that do not carry one.
type ChainEvent struct {
	Type          EventType `json:"type"`
	ItemID        uint64    `json:"item_id"`
	TokenContract string    `json:"token_contract"`
	TokenID       uint64    `json:"token_id"`
	Seller        string    `json:"seller,omitempty"`
	Buyer         string    `json:"buyer,omitempty"`
	Price         *big.Int  `json:"-"`
	PriceWei      string    `json:"price_wei,omitempty"`
	TxHash        string    `json:"tx_hash"`
	BlockNumber   uint64    `json:"block_number"`
	ObservedAt    time.Time `json:"observed_at"`
}
