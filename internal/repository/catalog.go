package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"telegram-shop-bot/internal/model"
)

// CatalogRepository is the inventory store: catalog entries, the single-use
// code pool for discrete products, and the quantity counter for bulk ones.
type CatalogRepository struct {
	db Querier
}

// NewCatalogRepository creates a new CatalogRepository instance.
func NewCatalogRepository(db Querier) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *CatalogRepository) WithTx(tx pgx.Tx) *CatalogRepository {
	return &CatalogRepository{db: tx}
}

// UpsertProduct creates or updates a catalog entry. Bulk products get a
// zeroed quantity row on first insert.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, p *model.Product) error {
	if !p.Category.Valid() {
		return fmt.Errorf("invalid category %q", p.Category)
	}
	const query = `
		INSERT INTO products (key, name, price, category)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key)
		DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, category = EXCLUDED.category
	`
	if _, err := r.db.Exec(ctx, query, p.Key, p.Name, p.Price, p.Category); err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	if p.Category == model.CategoryBulk {
		const seed = `
			INSERT INTO bulk_stock (product_key, quantity)
			VALUES ($1, 0)
			ON CONFLICT (product_key) DO NOTHING
		`
		if _, err := r.db.Exec(ctx, seed, p.Key); err != nil {
			return fmt.Errorf("failed to seed bulk stock: %w", err)
		}
	}
	return nil
}

// DeleteProduct removes a catalog entry together with its codes and
// quantity counter. Used for retiring bad listings, not for fulfillment.
func (r *CatalogRepository) DeleteProduct(ctx context.Context, key string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM codes WHERE product_key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete codes: %w", err)
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM bulk_stock WHERE product_key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete bulk stock: %w", err)
	}
	return nil
}

// GetProduct retrieves a catalog entry by key.
func (r *CatalogRepository) GetProduct(ctx context.Context, key string) (*model.Product, error) {
	const query = `SELECT key, name, price, category FROM products WHERE key = $1`
	var p model.Product
	err := r.db.QueryRow(ctx, query, key).Scan(&p.Key, &p.Name, &p.Price, &p.Category)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// ListByCategory returns catalog entries of one category, cheapest first.
func (r *CatalogRepository) ListByCategory(ctx context.Context, cat model.Category) ([]*model.Product, error) {
	const query = `SELECT key, name, price, category FROM products WHERE category = $1 ORDER BY price ASC`
	rows, err := r.db.Query(ctx, query, cat)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.Key, &p.Name, &p.Price, &p.Category); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}

// StockLevel returns the sellable stock for a product: the count of
// available codes for discrete products, the quantity counter for bulk ones.
func (r *CatalogRepository) StockLevel(ctx context.Context, key string) (int64, error) {
	p, err := r.GetProduct(ctx, key)
	if err != nil {
		return 0, err
	}
	if p.Category == model.CategoryDiscrete {
		const query = `SELECT COUNT(*) FROM codes WHERE product_key = $1 AND NOT consumed`
		var n int64
		if err := r.db.QueryRow(ctx, query, key).Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to count codes: %w", err)
		}
		return n, nil
	}
	const query = `SELECT quantity FROM bulk_stock WHERE product_key = $1`
	var qty int64
	if err := r.db.QueryRow(ctx, query, key).Scan(&qty); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get quantity: %w", err)
	}
	return qty, nil
}

// AllocateCode atomically consumes the oldest available code for the
// product, marking it with the buyer and the consumption time, and returns
// its value. Codes are handed out in insertion order. SKIP LOCKED keeps
// concurrent buyers from ever receiving the same code; each one either gets
// a distinct row or ErrOutOfStock.
func (r *CatalogRepository) AllocateCode(ctx context.Context, key string, buyerID int64) (string, error) {
	const query = `
		UPDATE codes
		SET consumed = TRUE, consumed_by = $2, consumed_at = NOW()
		WHERE id = (
			SELECT id FROM codes
			WHERE product_key = $1 AND NOT consumed
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING value
	`
	var value string
	err := r.db.QueryRow(ctx, query, key, buyerID).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrOutOfStock
		}
		return "", fmt.Errorf("failed to allocate code: %w", err)
	}
	return value, nil
}

// IngestCodes inserts new available codes for a product, skipping blanks and
// values already present for that key. Returns (inserted, duplicateSkipped).
func (r *CatalogRepository) IngestCodes(ctx context.Context, key string, values []string) (inserted, skipped int, err error) {
	const query = `
		INSERT INTO codes (product_key, value)
		VALUES ($1, $2)
		ON CONFLICT (product_key, value) DO NOTHING
	`
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		tag, err := r.db.Exec(ctx, query, key, v)
		if err != nil {
			return inserted, skipped, fmt.Errorf("failed to ingest code: %w", err)
		}
		if tag.RowsAffected() == 0 {
			skipped++
		} else {
			inserted++
		}
	}
	return inserted, skipped, nil
}

// RemoveCodes deletes matching codes for the product, available or consumed.
// Returns the number removed. Used for correcting bad batches.
func (r *CatalogRepository) RemoveCodes(ctx context.Context, key string, values []string) (int64, error) {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	if len(cleaned) == 0 {
		return 0, nil
	}
	const query = `DELETE FROM codes WHERE product_key = $1 AND value = ANY($2)`
	tag, err := r.db.Exec(ctx, query, key, cleaned)
	if err != nil {
		return 0, fmt.Errorf("failed to remove codes: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListCodes returns all codes for a product in insertion order.
func (r *CatalogRepository) ListCodes(ctx context.Context, key string) ([]model.Code, error) {
	const query = `
		SELECT id, product_key, value, consumed, consumed_by, consumed_at
		FROM codes
		WHERE product_key = $1
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}
	defer rows.Close()

	var codes []model.Code
	for rows.Next() {
		var c model.Code
		if err := rows.Scan(&c.ID, &c.ProductKey, &c.Value, &c.Consumed, &c.ConsumedBy, &c.ConsumedAt); err != nil {
			return nil, fmt.Errorf("failed to scan code: %w", err)
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// AdjustQuantity atomically adds delta (possibly negative) to a bulk
// product's counter. An adjustment that would take the counter below zero is
// rejected with ErrQuantityFloor, never clamped. Returns the new quantity.
func (r *CatalogRepository) AdjustQuantity(ctx context.Context, key string, delta int64) (int64, error) {
	const query = `
		UPDATE bulk_stock
		SET quantity = quantity + $2
		WHERE product_key = $1 AND quantity + $2 >= 0
		RETURNING quantity
	`
	var qty int64
	err := r.db.QueryRow(ctx, query, key, delta).Scan(&qty)
	if err == nil {
		return qty, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to adjust quantity: %w", err)
	}

	// No row updated: missing counter and floored counter report differently.
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bulk_stock WHERE product_key = $1)`, key).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to check bulk stock: %w", err)
	}
	if !exists {
		return 0, ErrProductNotFound
	}
	return 0, ErrQuantityFloor
}
