package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nftbazaar/marketd/internal/domain"
)

const (
	feeRecipient = "0x00000000000000000000000000000000000000fe"
	seller       = "0x0000000000000000000000000000000000000001"
	buyer        = "0x0000000000000000000000000000000000000002"
	nftContract  = "0x00000000000000000000000000000000000000aa"
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newTestLedger() *Ledger {
	// 0.025 ether, the fee the reference deployment charges.
	fee := new(big.Int).Mul(big.NewInt(25), big.NewInt(1e15))
	return New(fee, feeRecipient)
}

func TestCreateMarketItem(t *testing.T) {
	l := newTestLedger()

	id, err := l.CreateMarketItem(seller, nftContract, 1, ether(100), l.GetListingPrice())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	items := l.GetMarketItems()
	require.Len(t, items, 1)
	assert.Equal(t, seller, items[0].Seller)
	assert.Equal(t, domain.ZeroAddress, items[0].Owner)
	assert.False(t, items[0].Sold)
	assert.Zero(t, items[0].PriceWei.Cmp(ether(100)))

	// The listed token is held in escrow.
	holder, ok := l.EscrowHolder(nftContract, 1)
	require.True(t, ok)
	assert.Equal(t, id, holder)

	// The listing fee accrued to the fee recipient.
	assert.Zero(t, l.Balance(feeRecipient).Cmp(l.GetListingPrice()))
}

func TestCreateMarketItemValidation(t *testing.T) {
	l := newTestLedger()

	_, err := l.CreateMarketItem(seller, nftContract, 1, big.NewInt(0), l.GetListingPrice())
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = l.CreateMarketItem(seller, nftContract, 1, big.NewInt(-5), l.GetListingPrice())
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = l.CreateMarketItem(seller, nftContract, 1, ether(1), nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientFee)

	// Over- and underpaying the fee both fail; the fee must match exactly.
	over := new(big.Int).Add(l.GetListingPrice(), big.NewInt(1))
	_, err = l.CreateMarketItem(seller, nftContract, 1, ether(1), over)
	assert.ErrorIs(t, err, domain.ErrInsufficientFee)

	_, err = l.CreateMarketItem(seller, nftContract, 1, ether(1), big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrInsufficientFee)

	// Nothing was listed and no fee accrued.
	assert.Empty(t, l.GetMarketItems())
	assert.Zero(t, l.Balance(feeRecipient).Sign())
}

func TestItemIDsMonotonicAndUnique(t *testing.T) {
	l := newTestLedger()

	seen := make(map[uint64]bool)
	for i := uint64(1); i <= 10; i++ {
		id, err := l.CreateMarketItem(seller, nftContract, i, ether(1), l.GetListingPrice())
		require.NoError(t, err)
		assert.False(t, seen[id], "item id %d reused", id)
		assert.Equal(t, i, id)
		seen[id] = true
	}
}

func TestCreateMarketSale(t *testing.T) {
	l := newTestLedger()
	id, err := l.CreateMarketItem(seller, nftContract, 7, ether(100), l.GetListingPrice())
	require.NoError(t, err)

	require.NoError(t, l.CreateMarketSale(buyer, id, ether(100)))

	// The item no longer appears among purchasable listings.
	assert.Empty(t, l.GetMarketItems())

	it, err := l.GetItem(id)
	require.NoError(t, err)
	assert.True(t, it.Sold)
	assert.Equal(t, buyer, it.Owner)
	assert.NotEqual(t, it.Seller, it.Owner)

	// Proceeds reached the seller, escrow was released.
	assert.Zero(t, l.Balance(seller).Cmp(ether(100)))
	_, held := l.EscrowHolder(nftContract, 7)
	assert.False(t, held)
}

func TestCreateMarketSaleValidation(t *testing.T) {
	l := newTestLedger()
	id, err := l.CreateMarketItem(seller, nftContract, 1, ether(100), l.GetListingPrice())
	require.NoError(t, err)

	assert.ErrorIs(t, l.CreateMarketSale(buyer, 999, ether(100)), domain.ErrItemNotFound)
	assert.ErrorIs(t, l.CreateMarketSale(buyer, id, ether(99)), domain.ErrIncorrectPayment)
	assert.ErrorIs(t, l.CreateMarketSale(buyer, id, nil), domain.ErrIncorrectPayment)

	require.NoError(t, l.CreateMarketSale(buyer, id, ether(100)))

	// Already-sold always fails the same way, regardless of payment amount.
	assert.ErrorIs(t, l.CreateMarketSale(buyer, id, ether(100)), domain.ErrItemAlreadySold)
	assert.ErrorIs(t, l.CreateMarketSale(buyer, id, ether(1)), domain.ErrItemAlreadySold)
	assert.ErrorIs(t, l.CreateMarketSale(buyer, id, nil), domain.ErrItemAlreadySold)
}

func TestGetMarketItemsIdempotent(t *testing.T) {
	l := newTestLedger()
	for i := uint64(1); i <= 3; i++ {
		_, err := l.CreateMarketItem(seller, nftContract, i, ether(int64(i)), l.GetListingPrice())
		require.NoError(t, err)
	}

	first := l.GetMarketItems()
	second := l.GetMarketItems()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ItemID, second[i].ItemID)
		assert.Zero(t, first[i].PriceWei.Cmp(second[i].PriceWei))
	}

	// The snapshot is a copy: mutating it does not leak into the ledger.
	first[0].Sold = true
	first[0].PriceWei.SetInt64(0)
	again := l.GetMarketItems()
	assert.False(t, again[0].Sold)
	assert.NotZero(t, again[0].PriceWei.Sign())
}

func TestPriceImmutableAfterCreation(t *testing.T) {
	l := newTestLedger()
	price := ether(42)
	id, err := l.CreateMarketItem(seller, nftContract, 1, price, l.GetListingPrice())
	require.NoError(t, err)

	// Mutating the caller's big.Int must not change the stored price.
	price.SetInt64(1)

	it, err := l.GetItem(id)
	require.NoError(t, err)
	assert.Zero(t, it.PriceWei.Cmp(ether(42)))
}

// TestMarketSaleScenario mirrors the reference flow: mint two tokens, list
// both at 100 ether, have a second account buy the first, and verify exactly
// one purchasable item remains with the first item owned by the buyer.
func TestMarketSaleScenario(t *testing.T) {
	l := newTestLedger()
	book := NewTokenBook()

	tok1, err := book.Mint(seller, "https://example.com/1")
	require.NoError(t, err)
	tok2, err := book.Mint(seller, "https://example.com/2")
	require.NoError(t, err)

	item1, err := l.CreateMarketItem(seller, nftContract, tok1, ether(100), l.GetListingPrice())
	require.NoError(t, err)
	_, err = l.CreateMarketItem(seller, nftContract, tok2, ether(100), l.GetListingPrice())
	require.NoError(t, err)

	require.NoError(t, l.CreateMarketSale(buyer, item1, ether(100)))

	items := l.GetMarketItems()
	require.Len(t, items, 1)
	assert.Equal(t, tok2, items[0].TokenID)

	uri, err := book.URI(items[0].TokenID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/2", uri)

	sold, err := l.GetItem(item1)
	require.NoError(t, err)
	assert.Equal(t, buyer, sold.Owner)
}

func TestSessionAdapter(t *testing.T) {
	l := newTestLedger()
	sellerSess := NewSession(l, seller)
	buyerSess := NewSession(l, buyer)

	ctx := context.Background()

	fee, err := sellerSess.GetListingPrice(ctx)
	require.NoError(t, err)
	assert.Zero(t, fee.Cmp(l.GetListingPrice()))

	id, err := sellerSess.CreateMarketItem(ctx, nftContract, 3, ether(5))
	require.NoError(t, err)

	require.NoError(t, buyerSess.CreateMarketSale(ctx, nftContract, id))

	items, err := buyerSess.GetMarketItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestTokenCustodyFollowsSale(t *testing.T) {
	l := newTestLedger()
	book := NewTokenBook()
	l.BindCustody(book)

	ctx := context.Background()
	tok, err := NewTokenSession(book, seller).CreateToken(ctx, "https://example.com/1")
	require.NoError(t, err)

	sellerSess := NewSession(l, seller)
	id, err := sellerSess.CreateMarketItem(ctx, nftContract, tok, ether(5))
	require.NoError(t, err)

	owner, err := book.Owner(tok)
	require.NoError(t, err)
	assert.Equal(t, EscrowAccount, owner, "listed token should sit in escrow")

	buyerSess := NewSession(l, buyer)
	require.NoError(t, buyerSess.CreateMarketSale(ctx, nftContract, id))

	owner, err = book.Owner(tok)
	require.NoError(t, err)
	assert.Equal(t, buyer, owner, "token custody should have moved to the buyer")
}

func TestCustodyRejectsListingByNonOwner(t *testing.T) {
	l := newTestLedger()
	book := NewTokenBook()
	l.BindCustody(book)

	ctx := context.Background()
	tok, err := NewTokenSession(book, seller).CreateToken(ctx, "https://example.com/1")
	require.NoError(t, err)

	_, err = NewSession(l, buyer).CreateMarketItem(ctx, nftContract, tok, ether(5))
	require.Error(t, err)

	// Nothing listed, token untouched.
	assert.Empty(t, l.GetMarketItems())
	owner, err := book.Owner(tok)
	require.NoError(t, err)
	assert.Equal(t, seller, owner)
}

func TestTokenBookMalformedURI(t *testing.T) {
	book := NewTokenBook()
	_, err := book.Mint(seller, "not a url")
	assert.Error(t, err)
	_, err = book.Mint(seller, "/relative/only")
	assert.Error(t, err)
}
