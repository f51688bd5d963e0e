package service

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/nftbazaar/marketd/internal/domain"
)

// weiPerEther is 10^18.
var weiPerEther = decimal.New(1, 18)

// EtherToWei converts a decimal ether amount ("1.5", "0.025") to wei. The
// amount must be positive and must not carry sub-wei precision.
func EtherToWei(ether string) (*big.Int, error) {
	d, err := decimal.NewFromString(ether)
	if err != nil {
		return nil, fmt.Errorf("%w: parse amount %q: %v", domain.ErrInvalidPrice, ether, err)
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount %q must be positive", domain.ErrInvalidPrice, ether)
	}

	wei := d.Mul(weiPerEther)
	if !wei.IsInteger() {
		return nil, fmt.Errorf("%w: amount %q has sub-wei precision", domain.ErrInvalidPrice, ether)
	}
	return wei.BigInt(), nil
}

// WeiToEther renders a wei amount as a decimal ether string with trailing
// zeros trimmed.
func WeiToEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}
