package domain

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Listing embeds MarketItem, so a promoted marshaler would silently drop
// the listing-level fields. This guards the flattened wire form.
func TestListingJSONRoundTrip(t *testing.T) {
	price, _ := new(big.Int).SetString("1500000000000000000", 10)
	in := Listing{
		MarketItem: MarketItem{
			ItemID:   7,
			TokenID:  3,
			Seller:   "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
			Owner:    ZeroAddress,
			PriceWei: price,
		},
		PriceEther:  "1.5",
		MetadataURI: "https://ipfs.io/ipfs/QmX",
		Metadata:    &TokenMetadata{Name: "Sunrise"},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "1500000000000000000", raw["price_wei"])
	assert.Equal(t, "1.5", raw["price_ether"])

	var out Listing
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.ItemID, out.ItemID)
	assert.Equal(t, 0, out.PriceWei.Cmp(price))
	assert.Equal(t, "1.5", out.PriceEther)
	require.NotNil(t, out.Metadata)
	assert.Equal(t, "Sunrise", out.Metadata.Name)
}
