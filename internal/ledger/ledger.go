// Package ledger implements the marketplace ledger as an in-process state
// machine. It reproduces the external behavior of the marketplace contract:
// monotonic item IDs, listing-fee collection, token escrow between listing
// and sale, and a single Listed->Sold transition per item. All mutations are
// serialized under one mutex so no partial state is ever observable, which
// stands in for the serialized transaction execution the host chain provides
// to the on-chain implementation.
package ledger

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/nftbazaar/marketd/internal/domain"
)

// EscrowAccount stands in for the marketplace contract's own address: it
// holds custody of every listed token until the sale completes.
const EscrowAccount = "0x00000000000000000000000000000000000e5c80"

// Custody moves token ownership alongside listings and sales, the way the
// marketplace contract calls transferFrom on the token contract.
type Custody interface {
	Transfer(tokenID uint64, from, to string) error
}

// Ledger holds the authoritative item mapping together with the fee and
// balance bookkeeping. Items are never deleted; the full history is retained.
type Ledger struct {
	mu sync.Mutex

	listingFee   *big.Int
	feeRecipient string
	custody      Custody

	nextItemID uint64
	items      map[uint64]*domain.MarketItem

	// escrow maps (tokenContract, tokenID) to the item currently holding the
	// token in custody. An entry exists only while the item is unsold.
	escrow map[tokenKey]uint64

	// balances accrues proceeds per account: listing fees to the fee
	// recipient, sale proceeds to sellers.
	balances map[string]*big.Int
}

type tokenKey struct {
	contract string
	tokenID  uint64
}

// New creates a Ledger with the given listing fee (in wei) and fee recipient
// account. The fee is fixed for the lifetime of the ledger.
func New(listingFee *big.Int, feeRecipient string) *Ledger {
	return &Ledger{
		listingFee:   new(big.Int).Set(listingFee),
		feeRecipient: feeRecipient,
		nextItemID:   1,
		items:        make(map[uint64]*domain.MarketItem),
		escrow:       make(map[tokenKey]uint64),
		balances:     make(map[string]*big.Int),
	}
}

// BindCustody attaches a token custody backend. Once bound, listings move
// the token from the seller to EscrowAccount and sales release it to the
// buyer; a listing by an account that does not hold the token fails.
func (l *Ledger) BindCustody(c Custody) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.custody = c
}

// CreateMarketItem lists a token for sale. The caller must attach payment
// exactly equal to the listing fee and a price greater than zero. On success
// the token moves into escrow and a new unsold item is allocated.
func (l *Ledger) CreateMarketItem(caller, tokenContract string, tokenID uint64, priceWei, payment *big.Int) (uint64, error) {
	if priceWei == nil || priceWei.Sign() <= 0 {
		return 0, domain.ErrInvalidPrice
	}
	if payment == nil || payment.Cmp(l.listingFee) != 0 {
		return 0, domain.ErrInsufficientFee
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.custody != nil {
		if err := l.custody.Transfer(tokenID, caller, EscrowAccount); err != nil {
			return 0, err
		}
	}

	id := l.nextItemID
	l.nextItemID++

	now := time.Now().UTC()
	l.items[id] = &domain.MarketItem{
		ItemID:        id,
		TokenContract: tokenContract,
		TokenID:       tokenID,
		Seller:        caller,
		Owner:         domain.ZeroAddress,
		PriceWei:      new(big.Int).Set(priceWei),
		Sold:          false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	l.escrow[tokenKey{tokenContract, tokenID}] = id
	l.credit(l.feeRecipient, l.listingFee)

	return id, nil
}

// CreateMarketSale purchases an unsold item. The buyer must attach payment
// exactly equal to the item's price. The payment transfer to the seller, the
// escrow release, and the state transition happen under one lock section.
func (l *Ledger) CreateMarketSale(buyer string, itemID uint64, payment *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	it, ok := l.items[itemID]
	if !ok {
		return domain.ErrItemNotFound
	}
	if it.Sold {
		return domain.ErrItemAlreadySold
	}
	if payment == nil || payment.Cmp(it.PriceWei) != 0 {
		return domain.ErrIncorrectPayment
	}

	if l.custody != nil {
		if err := l.custody.Transfer(it.TokenID, EscrowAccount, buyer); err != nil {
			return err
		}
	}

	l.credit(it.Seller, payment)
	delete(l.escrow, tokenKey{it.TokenContract, it.TokenID})
	it.Owner = buyer
	it.Sold = true
	it.UpdatedAt = time.Now().UTC()

	return nil
}

// GetListingPrice returns the fee required to create a listing.
func (l *Ledger) GetListingPrice() *big.Int {
	return new(big.Int).Set(l.listingFee)
}

// GetMarketItems returns a snapshot of all unsold items in ascending item ID
// order. The snapshot is a copy valid at call time; later mutations do not
// affect it.
func (l *Ledger) GetMarketItems() []domain.MarketItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.MarketItem, 0, len(l.items))
	for _, it := range l.items {
		if it.Sold {
			continue
		}
		cp := *it
		cp.PriceWei = new(big.Int).Set(it.PriceWei)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// GetItem returns a single item by ID regardless of sale status.
func (l *Ledger) GetItem(itemID uint64) (domain.MarketItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	it, ok := l.items[itemID]
	if !ok {
		return domain.MarketItem{}, domain.ErrItemNotFound
	}
	cp := *it
	cp.PriceWei = new(big.Int).Set(it.PriceWei)
	return cp, nil
}

// EscrowHolder returns the item ID holding the given token in custody, or
// false if the token is not escrowed.
func (l *Ledger) EscrowHolder(tokenContract string, tokenID uint64) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.escrow[tokenKey{tokenContract, tokenID}]
	return id, ok
}

// Balance returns the accrued proceeds of an account in wei.
func (l *Ledger) Balance(account string) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// credit must be called with l.mu held.
func (l *Ledger) credit(account string, amount *big.Int) {
	b, ok := l.balances[account]
	if !ok {
		b = new(big.Int)
		l.balances[account] = b
	}
	b.Add(b, amount)
}

// ---------------------------------------------------------------------------
// Session adapter
// ---------------------------------------------------------------------------

// Session binds a Ledger to a caller account and attaches the correct
// payment to each operation, satisfying domain.Marketplace. It is the
// embedded-mode counterpart of the on-chain gateway, where the signer's
// account and the transaction value play the same roles.
type Session struct {
	ledger *Ledger
	caller string
}

// NewSession creates a Session acting as the given account.
func NewSession(l *Ledger, caller string) *Session {
	return &Session{ledger: l, caller: caller}
}

// CreateMarketItem lists a token, attaching the current listing fee.
func (s *Session) CreateMarketItem(ctx context.Context, tokenContract string, tokenID uint64, priceWei *big.Int) (uint64, error) {
	return s.ledger.CreateMarketItem(s.caller, tokenContract, tokenID, priceWei, s.ledger.GetListingPrice())
}

// CreateMarketSale purchases an item, attaching payment equal to its price.
func (s *Session) CreateMarketSale(ctx context.Context, tokenContract string, itemID uint64) error {
	it, err := s.ledger.GetItem(itemID)
	if err != nil {
		return err
	}
	return s.ledger.CreateMarketSale(s.caller, itemID, it.PriceWei)
}

// GetListingPrice returns the listing fee.
func (s *Session) GetListingPrice(ctx context.Context) (*big.Int, error) {
	return s.ledger.GetListingPrice(), nil
}

// GetMarketItems returns the unsold snapshot.
func (s *Session) GetMarketItems(ctx context.Context) ([]domain.MarketItem, error) {
	return s.ledger.GetMarketItems(), nil
}
