package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenAddressDefaulting(t *testing.T) {
	m := newTestMarketplace(t)

	addr, err := m.tokenAddress("")
	require.NoError(t, err)
	assert.Equal(t, testTokenAddr, addr.Hex())

	other := "0x000000000000000000000000000000000000dEaD"
	addr, err = m.tokenAddress(other)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(other), addr)

	bare, err := NewMarketplace(nil, testMarketAddr, "", nil)
	require.NoError(t, err)
	_, err = bare.tokenAddress("")
	require.Error(t, err)
}

// The defaulted address must land in the calldata, so a listing created
// without an explicit contract escrows from the configured token, never
// from the zero address.
func TestCreateMarketItemCalldataTokenContract(t *testing.T) {
	m := newTestMarketplace(t)

	nft, err := m.tokenAddress("")
	require.NoError(t, err)

	data, err := m.abi.Pack("createMarketItem", nft, big.NewInt(42), big.NewInt(100))
	require.NoError(t, err)

	// First argument slot follows the 4-byte selector; the address fills
	// the slot's trailing 20 bytes.
	require.GreaterOrEqual(t, len(data), 36)
	packed := common.BytesToAddress(data[4:36])
	assert.Equal(t, common.HexToAddress(testTokenAddr), packed)
	assert.NotEqual(t, common.Address{}, packed)
}
