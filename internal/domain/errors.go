package domain

import "errors"

// Ledger errors. These mirror the revert conditions of the marketplace
// contract so the on-chain gateway and the in-process ledger agree on the
// failure taxonomy.
var (
	ErrInvalidPrice     = errors.New("price must be greater than zero")
	ErrInsufficientFee  = errors.New("payment does not equal the listing fee")
	ErrIncorrectPayment = errors.New("payment does not equal the asking price")
	ErrItemAlreadySold  = errors.New("item already sold")
	ErrItemNotFound     = errors.New("item not found")
)

// Orchestration errors surfaced by the wallet, storage, and chain layers.
var (
	ErrWalletUnavailable   = errors.New("wallet unavailable")
	ErrTransactionRejected = errors.New("transaction rejected by signer")
	ErrTransactionReverted = errors.New("transaction reverted on chain")
	ErrUpload              = errors.New("storage upload failed")
	ErrMetadataFetch       = errors.New("metadata fetch failed")
	ErrNotFound            = errors.New("not found")
)
