package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"telegram-shop-bot/internal/model"
)

const orderColumns = `order_id, user_id, product_key, product_name, price, reference, status, created_at, updated_at`

// OrderRepository persists bulk orders and their exactly-once status
// transitions.
type OrderRepository struct {
	db Querier
}

// NewOrderRepository creates a new OrderRepository instance.
func NewOrderRepository(db Querier) *OrderRepository {
	return &OrderRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *OrderRepository) WithTx(tx pgx.Tx) *OrderRepository {
	return &OrderRepository{db: tx}
}

// NewOrderID generates an externally presentable order id.
func NewOrderID() string {
	return "ORD-" + strings.ToUpper(uuid.NewString()[:8])
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(
		&o.OrderID, &o.UserID, &o.ProductKey, &o.ProductName, &o.Price,
		&o.Reference, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	return &o, nil
}

// Create inserts a Pending order with the price captured at placement time.
func (r *OrderRepository) Create(ctx context.Context, o *model.Order) error {
	const query = `
		INSERT INTO orders (order_id, user_id, product_key, product_name, price, reference, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, o.OrderID, o.UserID, o.ProductKey, o.ProductName, o.Price, o.Reference, model.OrderPending)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetByID retrieves an order.
func (r *OrderRepository) GetByID(ctx context.Context, orderID string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`
	return scanOrder(r.db.QueryRow(ctx, query, orderID))
}

// GetForUpdate retrieves an order holding a row lock for the duration of the
// surrounding transaction. The admin decision gateway uses this so that the
// status check and the transition are one atomic read-modify-write.
func (r *OrderRepository) GetForUpdate(ctx context.Context, orderID string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1 FOR UPDATE`
	return scanOrder(r.db.QueryRow(ctx, query, orderID))
}

// Transition moves a Pending order to a terminal state. The update is a
// compare-and-set on status: a second call on an already-terminal record
// affects zero rows and reports ErrAlreadyDecided.
func (r *OrderRepository) Transition(ctx context.Context, orderID string, next model.OrderStatus) error {
	if !model.OrderPending.CanTransition(next) {
		return fmt.Errorf("illegal order transition to %q", next)
	}
	const query = `
		UPDATE orders SET status = $2, updated_at = NOW()
		WHERE order_id = $1 AND status = $3
	`
	tag, err := r.db.Exec(ctx, query, orderID, next, model.OrderPending)
	if err != nil {
		return fmt.Errorf("failed to transition order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyDecided
	}
	return nil
}

// ListPendingByUser returns the user's pending orders, newest first.
func (r *OrderRepository) ListPendingByUser(ctx context.Context, userID int64, limit int) ([]*model.Order, error) {
	query := `
		SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, userID, model.OrderPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending orders: %w", err)
	}
	defer rows.Close()

	var orders []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
