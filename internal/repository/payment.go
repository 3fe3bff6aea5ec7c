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

const paymentColumns = `pay_id, user_id, amount, method, tx_ref, proof_ref, status, created_at, updated_at`

// PaymentRepository persists top-up requests and the admin-managed payment
// methods offered during the add-funds flow.
type PaymentRepository struct {
	db Querier
}

// NewPaymentRepository creates a new PaymentRepository instance.
func NewPaymentRepository(db Querier) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *PaymentRepository) WithTx(tx pgx.Tx) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

// NewPaymentID generates an externally presentable payment id.
func NewPaymentID() string {
	return "PAY-" + strings.ToUpper(uuid.NewString()[:8])
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	err := row.Scan(
		&p.PayID, &p.UserID, &p.Amount, &p.Method, &p.TxRef, &p.ProofRef,
		&p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	return &p, nil
}

// Create inserts a Pending top-up request.
func (r *PaymentRepository) Create(ctx context.Context, p *model.Payment) error {
	const query = `
		INSERT INTO payments (pay_id, user_id, amount, method, tx_ref, proof_ref, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, p.PayID, p.UserID, p.Amount, p.Method, p.TxRef, p.ProofRef, model.PaymentPending)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetByID retrieves a top-up request.
func (r *PaymentRepository) GetByID(ctx context.Context, payID string) (*model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE pay_id = $1`
	return scanPayment(r.db.QueryRow(ctx, query, payID))
}

// GetForUpdate retrieves a top-up request holding a row lock for the
// duration of the surrounding transaction.
func (r *PaymentRepository) GetForUpdate(ctx context.Context, payID string) (*model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE pay_id = $1 FOR UPDATE`
	return scanPayment(r.db.QueryRow(ctx, query, payID))
}

// Transition moves a Pending request to a terminal state via compare-and-set
// on status; zero rows affected reports ErrAlreadyDecided.
func (r *PaymentRepository) Transition(ctx context.Context, payID string, next model.PaymentStatus) error {
	if !model.PaymentPending.CanTransition(next) {
		return fmt.Errorf("illegal payment transition to %q", next)
	}
	const query = `
		UPDATE payments SET status = $2, updated_at = NOW()
		WHERE pay_id = $1 AND status = $3
	`
	tag, err := r.db.Exec(ctx, query, payID, next, model.PaymentPending)
	if err != nil {
		return fmt.Errorf("failed to transition payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyDecided
	}
	return nil
}

// ========== Payment methods ==========

// UpsertMethod creates or updates a payment method.
func (r *PaymentRepository) UpsertMethod(ctx context.Context, name, details string) error {
	const query = `
		INSERT INTO payment_methods (name, details)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET details = EXCLUDED.details
	`
	if _, err := r.db.Exec(ctx, query, name, details); err != nil {
		return fmt.Errorf("failed to upsert payment method: %w", err)
	}
	return nil
}

// DeleteMethod removes a payment method.
func (r *PaymentRepository) DeleteMethod(ctx context.Context, name string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM payment_methods WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete payment method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMethodNotFound
	}
	return nil
}

// GetMethod retrieves one payment method.
func (r *PaymentRepository) GetMethod(ctx context.Context, name string) (*model.PaymentMethod, error) {
	const query = `SELECT name, details FROM payment_methods WHERE name = $1`
	var m model.PaymentMethod
	err := r.db.QueryRow(ctx, query, name).Scan(&m.Name, &m.Details)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMethodNotFound
		}
		return nil, fmt.Errorf("failed to get payment method: %w", err)
	}
	return &m, nil
}

// ListMethods returns all payment methods sorted by name.
func (r *PaymentRepository) ListMethods(ctx context.Context) ([]model.PaymentMethod, error) {
	rows, err := r.db.Query(ctx, `SELECT name, details FROM payment_methods ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	defer rows.Close()

	var methods []model.PaymentMethod
	for rows.Next() {
		var m model.PaymentMethod
		if err := rows.Scan(&m.Name, &m.Details); err != nil {
			return nil, fmt.Errorf("failed to scan payment method: %w", err)
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}
