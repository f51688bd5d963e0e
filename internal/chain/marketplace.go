package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/nftbazaar/marketd/internal/domain"
	"github.com/nftbazaar/marketd/internal/wallet"
)

// Marketplace is the on-chain implementation of domain.Marketplace: a static
// binding over the marketplace ledger contract. Writes are signed with the
// gateway's wallet; the listing fee and item price are attached as
// transaction value exactly as the contract requires.
type Marketplace struct {
	client  *Client
	wallet  *wallet.Wallet
	address common.Address
	token   common.Address
	abi     abi.ABI
}

// NewMarketplace parses the marketplace ABI and binds it to the contract at
// the given address. tokenAddr is the NFT contract substituted into calls
// when the caller does not name one; it may be empty if every caller passes
// an explicit contract. The wallet may be nil for read-only use; write
// operations then fail with domain.ErrWalletUnavailable.
func NewMarketplace(client *Client, contractAddr, tokenAddr string, w *wallet.Wallet) (*Marketplace, error) {
	parsed, err := abi.JSON(strings.NewReader(marketplaceABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse marketplace abi: %w", err)
	}

	addr := common.HexToAddress(contractAddr)
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("chain: marketplace address is the zero address")
	}

	return &Marketplace{
		client:  client,
		wallet:  w,
		address: addr,
		token:   common.HexToAddress(tokenAddr),
		abi:     parsed,
	}, nil
}

// tokenAddress resolves the NFT contract for a call, falling back to the
// configured default when the caller passes none. The zero address is never
// a valid target; the contract would try to escrow from it and revert.
func (m *Marketplace) tokenAddress(tokenContract string) (common.Address, error) {
	addr := common.HexToAddress(tokenContract)
	if addr == (common.Address{}) {
		addr = m.token
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("chain: no token contract given and no default configured")
	}
	return addr, nil
}

// Address returns the bound contract address.
func (m *Marketplace) Address() string {
	return m.address.Hex()
}

// GetListingPrice returns the fee in wei required to create a listing.
func (m *Marketplace) GetListingPrice(ctx context.Context) (*big.Int, error) {
	data, err := m.abi.Pack("getListingPrice")
	if err != nil {
		return nil, fmt.Errorf("chain: pack getListingPrice: %w", err)
	}

	out, err := m.client.call(ctx, m.address, data)
	if err != nil {
		return nil, err
	}

	var fee *big.Int
	if err := m.abi.UnpackIntoInterface(&fee, "getListingPrice", out); err != nil {
		return nil, fmt.Errorf("chain: unpack getListingPrice: %w", err)
	}
	return fee, nil
}

// CreateMarketItem lists a token for sale, attaching the current listing fee
// as transaction value. The allocated item ID is recovered from the
// MarketItemCreated event in the receipt.
func (m *Marketplace) CreateMarketItem(ctx context.Context, tokenContract string, tokenID uint64, priceWei *big.Int) (uint64, error) {
	if m.wallet == nil {
		return 0, domain.ErrWalletUnavailable
	}
	if priceWei == nil || priceWei.Sign() <= 0 {
		return 0, domain.ErrInvalidPrice
	}

	nft, err := m.tokenAddress(tokenContract)
	if err != nil {
		return 0, err
	}

	fee, err := m.GetListingPrice(ctx)
	if err != nil {
		return 0, err
	}

	data, err := m.abi.Pack("createMarketItem",
		nft,
		new(big.Int).SetUint64(tokenID),
		priceWei,
	)
	if err != nil {
		return 0, fmt.Errorf("chain: pack createMarketItem: %w", err)
	}

	receipt, err := m.client.transact(ctx, m.wallet, m.address, fee, data)
	if err != nil {
		return 0, err
	}

	for _, lg := range receipt.Logs {
		ev, perr := m.ParseLog(*lg)
		if perr != nil || ev == nil {
			continue
		}
		if ev.Type == domain.EventItemCreated {
			return ev.ItemID, nil
		}
	}
	return 0, fmt.Errorf("chain: tx %s mined without MarketItemCreated event", receipt.TxHash.Hex())
}

// CreateMarketSale purchases an unsold item, attaching its price as
// transaction value.
func (m *Marketplace) CreateMarketSale(ctx context.Context, tokenContract string, itemID uint64) error {
	if m.wallet == nil {
		return domain.ErrWalletUnavailable
	}

	nft, err := m.tokenAddress(tokenContract)
	if err != nil {
		return err
	}

	price, err := m.itemPrice(ctx, itemID)
	if err != nil {
		return err
	}

	data, err := m.abi.Pack("createMarketSale",
		nft,
		new(big.Int).SetUint64(itemID),
	)
	if err != nil {
		return fmt.Errorf("chain: pack createMarketSale: %w", err)
	}

	_, err = m.client.transact(ctx, m.wallet, m.address, price, data)
	return err
}

// marketItemResult mirrors the contract's MarketItem tuple layout.
type marketItemResult struct {
	ItemId      *big.Int
	NftContract common.Address
	TokenId     *big.Int
	Seller      common.Address
	Owner       common.Address
	Price       *big.Int
	Sold        bool
}

// GetMarketItems returns all unsold items in ascending item ID order, as the
// contract stores them.
func (m *Marketplace) GetMarketItems(ctx context.Context) ([]domain.MarketItem, error) {
	data, err := m.abi.Pack("getMarketItems")
	if err != nil {
		return nil, fmt.Errorf("chain: pack getMarketItems: %w", err)
	}

	out, err := m.client.call(ctx, m.address, data)
	if err != nil {
		return nil, err
	}

	var raw []marketItemResult
	if err := m.abi.UnpackIntoInterface(&raw, "getMarketItems", out); err != nil {
		return nil, fmt.Errorf("chain: unpack getMarketItems: %w", err)
	}

	items := make([]domain.MarketItem, 0, len(raw))
	for _, r := range raw {
		items = append(items, domain.MarketItem{
			ItemID:        r.ItemId.Uint64(),
			TokenContract: r.NftContract.Hex(),
			TokenID:       r.TokenId.Uint64(),
			Seller:        r.Seller.Hex(),
			Owner:         r.Owner.Hex(),
			PriceWei:      r.Price,
			Sold:          r.Sold,
		})
	}
	return items, nil
}

// itemPrice resolves the asking price for an item from the unsold snapshot.
func (m *Marketplace) itemPrice(ctx context.Context, itemID uint64) (*big.Int, error) {
	items, err := m.GetMarketItems(ctx)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.ItemID == itemID {
			return it.PriceWei, nil
		}
	}
	// Not in the unsold snapshot: either sold or never created. The
	// contract distinguishes the two cases when the sale executes; here
	// the item is simply not purchasable.
	return nil, domain.ErrItemNotFound
}
