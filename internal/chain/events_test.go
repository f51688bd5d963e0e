package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nftbazaar/marketd/internal/domain"
)

const (
	testMarketAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	testTokenAddr  = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
	testSellerAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testBuyerAddr  = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func newTestMarketplace(t *testing.T) *Marketplace {
	t.Helper()
	m, err := NewMarketplace(nil, testMarketAddr, testTokenAddr, nil)
	require.NoError(t, err)
	return m
}

func hashUint64(v uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(v))
}

func TestParseLogItemCreated(t *testing.T) {
	m := newTestMarketplace(t)

	price := big.NewInt(1_000_000_000_000_000_000)
	data, err := m.abi.Events["MarketItemCreated"].Inputs.NonIndexed().Pack(
		common.HexToAddress(testSellerAddr),
		common.Address{},
		price,
		false,
	)
	require.NoError(t, err)

	lg := types.Log{
		Address: common.HexToAddress(testMarketAddr),
		Topics: []common.Hash{
			m.abi.Events["MarketItemCreated"].ID,
			hashUint64(7),
			common.BytesToHash(common.HexToAddress(testTokenAddr).Bytes()),
			hashUint64(42),
		},
		Data:        data,
		BlockNumber: 120,
		TxHash:      common.HexToHash("0x01"),
	}

	ev, err := m.ParseLog(lg)
	require.NoError(t, err)
	require.NotNil(t, ev)

	assert.Equal(t, domain.EventItemCreated, ev.Type)
	assert.Equal(t, uint64(7), ev.ItemID)
	assert.Equal(t, common.HexToAddress(testTokenAddr).Hex(), ev.TokenContract)
	assert.Equal(t, uint64(42), ev.TokenID)
	assert.Equal(t, common.HexToAddress(testSellerAddr).Hex(), ev.Seller)
	assert.Equal(t, price.String(), ev.PriceWei)
	assert.Equal(t, uint64(120), ev.BlockNumber)
}

func TestParseLogItemSold(t *testing.T) {
	m := newTestMarketplace(t)

	price := big.NewInt(500)
	data, err := m.abi.Events["MarketItemSold"].Inputs.NonIndexed().Pack(
		big.NewInt(42),
		price,
	)
	require.NoError(t, err)

	lg := types.Log{
		Address: common.HexToAddress(testMarketAddr),
		Topics: []common.Hash{
			m.abi.Events["MarketItemSold"].ID,
			hashUint64(7),
			common.BytesToHash(common.HexToAddress(testBuyerAddr).Bytes()),
		},
		Data:        data,
		BlockNumber: 121,
		TxHash:      common.HexToHash("0x02"),
	}

	ev, err := m.ParseLog(lg)
	require.NoError(t, err)
	require.NotNil(t, ev)

	assert.Equal(t, domain.EventItemSold, ev.Type)
	assert.Equal(t, uint64(7), ev.ItemID)
	assert.Equal(t, common.HexToAddress(testBuyerAddr).Hex(), ev.Buyer)
	assert.Equal(t, uint64(42), ev.TokenID)
	assert.Equal(t, "500", ev.PriceWei)
	// The Sold log names no NFT contract, so the event must not invent one.
	assert.Empty(t, ev.TokenContract)
}

func TestParseLogIgnoresForeign(t *testing.T) {
	m := newTestMarketplace(t)

	// Wrong contract address.
	ev, err := m.ParseLog(types.Log{
		Address: common.HexToAddress(testTokenAddr),
		Topics:  []common.Hash{m.abi.Events["MarketItemCreated"].ID},
	})
	require.NoError(t, err)
	assert.Nil(t, ev)

	// Unknown event signature.
	ev, err = m.ParseLog(types.Log{
		Address: common.HexToAddress(testMarketAddr),
		Topics:  []common.Hash{common.HexToHash("0xdead")},
	})
	require.NoError(t, err)
	assert.Nil(t, ev)

	// No topics at all.
	ev, err = m.ParseLog(types.Log{Address: common.HexToAddress(testMarketAddr)})
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestParseLogTruncatedTopics(t *testing.T) {
	m := newTestMarketplace(t)

	_, err := m.ParseLog(types.Log{
		Address: common.HexToAddress(testMarketAddr),
		Topics: []common.Hash{
			m.abi.Events["MarketItemCreated"].ID,
			hashUint64(7),
		},
	})
	assert.Error(t, err)
}
