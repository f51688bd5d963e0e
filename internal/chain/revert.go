package chain

import (
	"errors"
	"strings"

	"github.com/nftbazaar/marketd/internal/domain"
)

// revertReasons maps the marketplace contract's require messages to domain
// sentinel errors. The strings must match the deployed contract exactly.
var revertReasons = map[string]error{
	"price must be greater than zero": domain.ErrInvalidPrice,
	"payment must equal listing fee":  domain.ErrInsufficientFee,
	"payment must equal asking price": domain.ErrIncorrectPayment,
	"item already sold":               domain.ErrItemAlreadySold,
	"item does not exist":             domain.ErrItemNotFound,
}

// mapRevert inspects an RPC error for a known revert reason and joins the
// matching domain error so callers can use errors.Is. Unknown reverts are
// tagged domain.ErrTransactionReverted; non-revert errors pass through.
func mapRevert(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	for reason, sentinel := range revertReasons {
		if strings.Contains(msg, reason) {
			return errors.Join(sentinel, err)
		}
	}

	if strings.Contains(msg, "execution reverted") {
		return errors.Join(domain.ErrTransactionReverted, err)
	}

	return err
}
