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

// TokenLedger is the on-chain implementation of domain.TokenLedger, bound to
// the token contract that mints ownership tokens and records metadata URIs.
type TokenLedger struct {
	client  *Client
	wallet  *wallet.Wallet
	address common.Address
	abi     abi.ABI
}

// NewTokenLedger binds the token ABI to the contract at the given address.
func NewTokenLedger(client *Client, contractAddr string, w *wallet.Wallet) (*TokenLedger, error) {
	parsed, err := abi.JSON(strings.NewReader(tokenABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse token abi: %w", err)
	}

	addr := common.HexToAddress(contractAddr)
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("chain: token address is the zero address")
	}

	return &TokenLedger{
		client:  client,
		wallet:  w,
		address: addr,
		abi:     parsed,
	}, nil
}

// Address returns the bound contract address.
func (t *TokenLedger) Address() string {
	return t.address.Hex()
}

// CreateToken mints a new token with the given metadata URI and returns the
// token ID, recovered from the Transfer event in the receipt.
func (t *TokenLedger) CreateToken(ctx context.Context, metadataURI string) (uint64, error) {
	if t.wallet == nil {
		return 0, domain.ErrWalletUnavailable
	}

	data, err := t.abi.Pack("createToken", metadataURI)
	if err != nil {
		return 0, fmt.Errorf("chain: pack createToken: %w", err)
	}

	receipt, err := t.client.transact(ctx, t.wallet, t.address, nil, data)
	if err != nil {
		return 0, err
	}

	// ERC-721 mints emit Transfer(0x0, owner, tokenId) with all three
	// fields indexed; the token ID is the third topic.
	transferSig := t.abi.Events["Transfer"].ID
	for _, lg := range receipt.Logs {
		if lg.Address != t.address || len(lg.Topics) != 4 || lg.Topics[0] != transferSig {
			continue
		}
		return new(big.Int).SetBytes(lg.Topics[3].Bytes()).Uint64(), nil
	}
	return 0, fmt.Errorf("chain: tx %s mined without Transfer event", receipt.TxHash.Hex())
}

// TokenURI returns the metadata URI associated with a token.
func (t *TokenLedger) TokenURI(ctx context.Context, tokenID uint64) (string, error) {
	data, err := t.abi.Pack("tokenURI", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return "", fmt.Errorf("chain: pack tokenURI: %w", err)
	}

	out, err := t.client.call(ctx, t.address, data)
	if err != nil {
		return "", err
	}

	var uri string
	if err := t.abi.UnpackIntoInterface(&uri, "tokenURI", out); err != nil {
		return "", fmt.Errorf("chain: unpack tokenURI: %w", err)
	}
	return uri, nil
}

// OwnerOf returns the current owner of a token.
func (t *TokenLedger) OwnerOf(ctx context.Context, tokenID uint64) (string, error) {
	data, err := t.abi.Pack("ownerOf", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return "", fmt.Errorf("chain: pack ownerOf: %w", err)
	}

	out, err := t.client.call(ctx, t.address, data)
	if err != nil {
		return "", err
	}

	var owner common.Address
	if err := t.abi.UnpackIntoInterface(&owner, "ownerOf", out); err != nil {
		return "", fmt.Errorf("chain: unpack ownerOf: %w", err)
	}
	return owner.Hex(), nil
}
