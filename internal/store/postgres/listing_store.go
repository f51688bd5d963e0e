package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nftbazaar/marketd/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a ListingStore backed by the given pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

const listingColumns = `
	item_id, token_contract, token_id, seller, owner,
	price_wei::text, sold, tx_hash, block_number, created_at, updated_at`

// Upsert inserts or updates a market item keyed by its ledger item ID.
func (s *ListingStore) Upsert(ctx context.Context, item domain.MarketItem) error {
	const query = `
		INSERT INTO market_items (
			item_id, token_contract, token_id, seller, owner,
			price_wei, sold, tx_hash, block_number, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::numeric, $7, $8, $9, NOW(), NOW()
		)
		ON CONFLICT (item_id) DO UPDATE SET
			token_contract = EXCLUDED.token_contract,
			token_id       = EXCLUDED.token_id,
			seller         = EXCLUDED.seller,
			owner          = EXCLUDED.owner,
			price_wei      = EXCLUDED.price_wei,
			sold           = EXCLUDED.sold,
			tx_hash        = EXCLUDED.tx_hash,
			block_number   = EXCLUDED.block_number,
			updated_at     = NOW()`

	owner := item.Owner
	if owner == "" {
		owner = domain.ZeroAddress
	}

	_, err := s.pool.Exec(ctx, query,
		item.ItemID, item.TokenContract, item.TokenID, item.Seller, owner,
		item.PriceString(), item.Sold, item.TxHash, item.BlockNumber,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert item %d: %w", item.ItemID, err)
	}
	return nil
}

// MarkSold records the one-way Listed to Sold transition. The WHERE clause
// keeps a replayed sale event from touching other rows.
func (s *ListingStore) MarkSold(ctx context.Context, itemID uint64, buyer, txHash string, blockNumber uint64) error {
	const query = `
		UPDATE market_items
		SET owner = $2, sold = TRUE, tx_hash = $3, block_number = $4,
		    updated_at = NOW()
		WHERE item_id = $1`

	tag, err := s.pool.Exec(ctx, query, itemID, buyer, txHash, blockNumber)
	if err != nil {
		return fmt.Errorf("postgres: mark item %d sold: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark item %d sold: %w", itemID, domain.ErrItemNotFound)
	}
	return nil
}

// GetByID fetches a single item.
func (s *ListingStore) GetByID(ctx context.Context, itemID uint64) (domain.MarketItem, error) {
	query := `SELECT ` + listingColumns + ` FROM market_items WHERE item_id = $1`

	item, err := scanItem(s.pool.QueryRow(ctx, query, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MarketItem{}, domain.ErrItemNotFound
	}
	if err != nil {
		return domain.MarketItem{}, fmt.Errorf("postgres: get item %d: %w", itemID, err)
	}
	return item, nil
}

// ListUnsold returns unsold items in ascending item ID order.
func (s *ListingStore) ListUnsold(ctx context.Context, opts domain.ListOpts) ([]domain.MarketItem, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM market_items
		WHERE NOT sold
		ORDER BY item_id
		LIMIT $1 OFFSET $2`
	return s.list(ctx, query, opts)
}

// ListBySeller returns every item the address has listed, sold or not.
func (s *ListingStore) ListBySeller(ctx context.Context, seller string, opts domain.ListOpts) ([]domain.MarketItem, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM market_items
		WHERE lower(seller) = lower($3)
		ORDER BY item_id
		LIMIT $1 OFFSET $2`
	return s.list(ctx, query, opts, seller)
}

// ListByOwner returns items currently owned by the address.
func (s *ListingStore) ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.MarketItem, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM market_items
		WHERE lower(owner) = lower($3)
		ORDER BY item_id
		LIMIT $1 OFFSET $2`
	return s.list(ctx, query, opts, owner)
}

// CountUnsold returns the number of unsold items.
func (s *ListingStore) CountUnsold(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM market_items WHERE NOT sold`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count unsold: %w", err)
	}
	return n, nil
}

func (s *ListingStore) list(ctx context.Context, query string, opts domain.ListOpts, extra ...any) ([]domain.MarketItem, error) {
	opts = opts.Clamp(500)

	args := append([]any{opts.Limit, opts.Offset}, extra...)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list items: %w", err)
	}
	defer rows.Close()

	var items []domain.MarketItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate items: %w", err)
	}
	return items, nil
}

func scanItem(row pgx.Row) (domain.MarketItem, error) {
	var (
		item     domain.MarketItem
		priceWei string
	)
	err := row.Scan(
		&item.ItemID, &item.TokenContract, &item.TokenID, &item.Seller, &item.Owner,
		&priceWei, &item.Sold, &item.TxHash, &item.BlockNumber,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return domain.MarketItem{}, err
	}

	price, ok := new(big.Int).SetString(priceWei, 10)
	if !ok {
		return domain.MarketItem{}, fmt.Errorf("bad price_wei %q for item %d", priceWei, item.ItemID)
	}
	item.PriceWei = price
	return item, nil
}

var _ domain.ListingStore = (*ListingStore)(nil)
