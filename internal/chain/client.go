// Package chain implements the on-chain gateways for the marketplace and
// token contracts using go-ethereum. Reads go through eth_call; writes are
// signed locally, submitted, and awaited until mined. Contract revert
// reasons are mapped onto the domain error taxonomy so callers never see raw
// RPC errors for known failure modes.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/nftbazaar/marketd/internal/domain"
)

// receiptPollInterval is how often a pending transaction's receipt is polled
// while waiting for it to be mined.
const receiptPollInterval = 2 * time.Second

// Client wraps an ethclient connection with the helpers both gateways share.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
}

// Dial connects to an Ethereum JSON-RPC endpoint and verifies the chain ID.
func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: chain id: %w", err)
	}

	return &Client{eth: eth, chainID: chainID}, nil
}

// ChainID returns the connected chain's ID.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Eth returns the underlying ethclient for gateways that need direct access.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

// Close shuts the RPC connection down.
func (c *Client) Close() {
	c.eth.Close()
}

// call performs a read-only eth_call against the given contract.
func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{
		To:   &to,
		Data: data,
	}
	out, err := c.eth.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s: %w", to.Hex(), err)
	}
	return out, nil
}

// waitMined polls for the transaction's receipt until the context expires.
// A receipt with a failed status yields domain.ErrTransactionReverted.
func (c *Client) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, tx.Hash())
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("chain: tx %s: %w", tx.Hash().Hex(), domain.ErrTransactionReverted)
			}
			return receipt, nil
		}
		if err != ethereum.NotFound {
			return nil, fmt.Errorf("chain: receipt for %s: %w", tx.Hash().Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chain: waiting for tx %s: %w", tx.Hash().Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
