package ledger

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/nftbazaar/marketd/internal/domain"
)

// TokenBook is the in-process counterpart of the token contract: it mints
// monotonically numbered tokens and records each token's metadata URI and
// owner. Like Ledger, it exists so the full mint-list-buy flow can run
// without a chain, with semantics identical to the on-chain gateway.
type TokenBook struct {
	mu     sync.Mutex
	nextID uint64
	uris   map[uint64]string
	owners map[uint64]string
}

// NewTokenBook creates an empty TokenBook. Token IDs start at 1.
func NewTokenBook() *TokenBook {
	return &TokenBook{
		nextID: 1,
		uris:   make(map[uint64]string),
		owners: make(map[uint64]string),
	}
}

// Mint creates a token owned by the given account with the given metadata
// URI. The URI must parse as an absolute URL.
func (b *TokenBook) Mint(owner, metadataURI string) (uint64, error) {
	u, err := url.Parse(metadataURI)
	if err != nil || !u.IsAbs() {
		return 0, fmt.Errorf("ledger: malformed metadata uri %q", metadataURI)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.uris[id] = metadataURI
	b.owners[id] = owner
	return id, nil
}

// URI returns the metadata URI of a token.
func (b *TokenBook) URI(tokenID uint64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	uri, ok := b.uris[tokenID]
	if !ok {
		return "", domain.ErrItemNotFound
	}
	return uri, nil
}

// Owner returns the current owner of a token.
func (b *TokenBook) Owner(tokenID uint64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	owner, ok := b.owners[tokenID]
	if !ok {
		return "", domain.ErrItemNotFound
	}
	return owner, nil
}

// Transfer moves a token between owners, failing unless from currently
// holds it. The Ledger calls this to escrow tokens on listing and release
// them to the buyer on sale.
func (b *TokenBook) Transfer(tokenID uint64, from, to string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	owner, ok := b.owners[tokenID]
	if !ok {
		return domain.ErrItemNotFound
	}
	if owner != from {
		return fmt.Errorf("ledger: token %d held by %s, not %s", tokenID, owner, from)
	}
	b.owners[tokenID] = to
	return nil
}

// TokenSession binds a TokenBook to a caller account, satisfying
// domain.TokenLedger.
type TokenSession struct {
	book   *TokenBook
	caller string
}

// NewTokenSession creates a TokenSession acting as the given account.
func NewTokenSession(b *TokenBook, caller string) *TokenSession {
	return &TokenSession{book: b, caller: caller}
}

// CreateToken mints a token owned by the session account.
func (s *TokenSession) CreateToken(ctx context.Context, metadataURI string) (uint64, error) {
	return s.book.Mint(s.caller, metadataURI)
}

// TokenURI returns the metadata URI of a token.
func (s *TokenSession) TokenURI(ctx context.Context, tokenID uint64) (string, error) {
	return s.book.URI(tokenID)
}

// OwnerOf returns the owner of a token.
func (s *TokenSession) OwnerOf(ctx context.Context, tokenID uint64) (string, error) {
	return s.book.Owner(tokenID)
}
