// Package wallet loads the operator's signing key and exposes the signing
// capability the chain gateways need. A key can be supplied as raw hex (for
// development) or as a password-encrypted key file produced by EncryptKey.
package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/nftbazaar/marketd/internal/domain"
)

// KeyConfig carries the information Load needs to resolve a private key.
type KeyConfig struct {
	// RawPrivateKey is the hex-encoded private key, with or without the 0x
	// prefix. If non-empty it takes precedence over the encrypted file.
	RawPrivateKey string

	// EncryptedKeyPath points to a JSON file produced by EncryptKey.
	EncryptedKeyPath string

	// KeyPassword decrypts the file at EncryptedKeyPath.
	KeyPassword string
}

// Wallet holds a secp256k1 private key and its derived account address. It
// is the process-wide signing capability: one owner per session, never
// shared across concurrent transaction flows (callers serialize submits).
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// Load resolves a Wallet from the config. It returns
// domain.ErrWalletUnavailable when no key source is configured at all, so
// callers can distinguish "no wallet" from "bad wallet".
func Load(cfg KeyConfig) (*Wallet, error) {
	keyHex := cfg.RawPrivateKey

	if keyHex == "" && cfg.EncryptedKeyPath != "" {
		decrypted, err := DecryptKeyFile(cfg.EncryptedKeyPath, cfg.KeyPassword)
		if err != nil {
			return nil, fmt.Errorf("wallet: decrypt key file: %w", err)
		}
		keyHex = decrypted
	}

	if keyHex == "" {
		return nil, domain.ErrWalletUnavailable
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid private key: %w", err)
	}

	return &Wallet{
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the account derived from the wallet's key.
func (w *Wallet) Address() common.Address {
	return w.address
}

// SignTx signs a transaction for the given chain using the EIP-155 signer.
func (w *Wallet) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("wallet: sign tx: %w", err)
	}
	return signed, nil
}
