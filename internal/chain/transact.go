package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/nftbazaar/marketd/internal/wallet"
)

// transact builds, signs, submits, and awaits a contract write. Gas is
// priced EIP-1559 style: tip from the node's suggestion, fee cap at twice
// the head base fee plus the tip. The call blocks until the transaction is
// mined or the context expires; there is no abort path once submitted.
func (c *Client) transact(ctx context.Context, w *wallet.Wallet, to common.Address, value *big.Int, data []byte) (*types.Receipt, error) {
	from := w.Address()

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("chain: pending nonce: %w", err)
	}

	tipCap, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: suggest tip cap: %w", err)
	}

	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: head header: %w", err)
	}

	feeCap := new(big.Int).Add(
		tipCap,
		new(big.Int).Mul(head.BaseFee, big.NewInt(2)),
	)

	msg := ethereum.CallMsg{
		From:      from,
		To:        &to,
		Value:     value,
		Data:      data,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
	}
	gas, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		// Estimation executes the call, so contract revert reasons
		// surface here before anything is submitted.
		return nil, mapRevert(fmt.Errorf("chain: estimate gas: %w", err))
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signed, err := w.SignTx(tx, c.chainID)
	if err != nil {
		return nil, err
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, mapRevert(fmt.Errorf("chain: send tx: %w", err))
	}

	return c.waitMined(ctx, signed)
}
