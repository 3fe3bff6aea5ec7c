package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"telegram-shop-bot/internal/model"
	"telegram-shop-bot/internal/repository"
)

// OrderDecision reports a decided bulk order, with the buyer's resulting
// ledger state for notification.
type OrderDecision struct {
	Order     *model.Order
	Approved  bool
	Remaining int64
	LowStock  bool
}

// PaymentDecision reports a decided top-up.
type PaymentDecision struct {
	Payment    *model.Payment
	Approved   bool
	NewBalance int64
	NewDue     int64
}

// AdminService is the decision gateway for pending orders and payments,
// plus catalog and account administration. Decisions are idempotent at the
// store level: the first one wins and every later attempt reports
// ErrAlreadyDecided.
type AdminService struct {
	pool     *pgxpool.Pool
	accounts *repository.AccountRepository
	catalog  *repository.CatalogRepository
	orders   *repository.OrderRepository
	payments *repository.PaymentRepository
	history  *repository.HistoryRepository
	lowStock int64

	maintenance atomic.Bool
}

// NewAdminService creates a new AdminService instance.
func NewAdminService(
	pool *pgxpool.Pool,
	accounts *repository.AccountRepository,
	catalog *repository.CatalogRepository,
	orders *repository.OrderRepository,
	payments *repository.PaymentRepository,
	history *repository.HistoryRepository,
	lowStock int64,
	maintenance bool,
) *AdminService {
	s := &AdminService{
		pool:     pool,
		accounts: accounts,
		catalog:  catalog,
		orders:   orders,
		payments: payments,
		history:  history,
		lowStock: lowStock,
	}
	s.maintenance.Store(maintenance)
	return s
}

// Maintenance reports whether the shop is closed to non-admin traffic.
func (s *AdminService) Maintenance() bool { return s.maintenance.Load() }

// SetMaintenance toggles the shop gate at runtime.
func (s *AdminService) SetMaintenance(on bool) {
	s.maintenance.Store(on)
	log.Warn().Bool("maintenance", on).Msg("Maintenance mode changed")
}

// ApproveOrder completes a pending bulk order: one unit of quantity stock
// is consumed and the order transitions to COMPLETED, in one transaction.
// If the stock floor would be crossed the approval fails and the order
// stays pending; funds were already reserved at placement so no ledger
// mutation happens here.
func (s *AdminService) ApproveOrder(ctx context.Context, orderID string) (*OrderDecision, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin decision tx: %w", err)
	}
	defer tx.Rollback(ctx)

	orders := s.orders.WithTx(tx)
	catalog := s.catalog.WithTx(tx)

	o, err := orders.GetForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != model.OrderPending {
		return nil, repository.ErrAlreadyDecided
	}

	remaining, err := catalog.AdjustQuantity(ctx, o.ProductKey, -1)
	if err != nil {
		if errors.Is(err, repository.ErrQuantityFloor) {
			log.Warn().
				Str("order_id", orderID).
				Str("product", o.ProductKey).
				Msg("Approval refused: quantity stock exhausted")
			return nil, repository.ErrOutOfStock
		}
		return nil, err
	}

	if err := orders.Transition(ctx, orderID, model.OrderCompleted); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit approval: %w", err)
	}

	o.Status = model.OrderCompleted
	s.recordHistory(ctx, o.UserID, model.HistoryOrder,
		fmt.Sprintf("Order %s approved: %s to %s", o.OrderID, o.ProductName, o.Reference))

	log.Info().
		Str("order_id", orderID).
		Int64("user_id", o.UserID).
		Int64("remaining", remaining).
		Msg("Order approved")

	return &OrderDecision{
		Order:     o,
		Approved:  true,
		Remaining: remaining,
		LowStock:  remaining <= s.lowStock,
	}, nil
}

// RejectOrder refunds the reserved funds to the buyer's balance and
// transitions the order to REJECTED. The refund is balance-only: due taken
// on at placement stays, reflecting that the credit was actually extended.
func (s *AdminService) RejectOrder(ctx context.Context, orderID string) (*OrderDecision, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin decision tx: %w", err)
	}
	defer tx.Rollback(ctx)

	orders := s.orders.WithTx(tx)
	accounts := s.accounts.WithTx(tx)

	o, err := orders.GetForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != model.OrderPending {
		return nil, repository.ErrAlreadyDecided
	}

	if err := accounts.Refund(ctx, o.UserID, o.Price); err != nil {
		return nil, err
	}
	if err := orders.Transition(ctx, orderID, model.OrderRejected); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit rejection: %w", err)
	}

	o.Status = model.OrderRejected
	s.recordHistory(ctx, o.UserID, model.HistoryOrder,
		fmt.Sprintf("Order %s rejected, %d refunded", o.OrderID, o.Price))

	log.Info().
		Str("order_id", orderID).
		Int64("user_id", o.UserID).
		Int64("refund", o.Price).
		Msg("Order rejected")

	return &OrderDecision{Order: o, Approved: false}, nil
}

// ApprovePayment credits the top-up amount to the buyer, paying down due
// first, and transitions the payment to APPROVED in one transaction.
func (s *AdminService) ApprovePayment(ctx context.Context, payID string) (*PaymentDecision, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin decision tx: %w", err)
	}
	defer tx.Rollback(ctx)

	payments := s.payments.WithTx(tx)
	accounts := s.accounts.WithTx(tx)

	p, err := payments.GetForUpdate(ctx, payID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PaymentPending {
		return nil, repository.ErrAlreadyDecided
	}

	balance, due, err := accounts.CreditTopUp(ctx, p.UserID, p.Amount)
	if err != nil {
		return nil, err
	}
	if err := payments.Transition(ctx, payID, model.PaymentApproved); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit approval: %w", err)
	}

	p.Status = model.PaymentApproved
	s.recordHistory(ctx, p.UserID, model.HistoryPayment,
		fmt.Sprintf("Top-up %s approved: %d credited", p.PayID, p.Amount))

	log.Info().
		Str("pay_id", payID).
		Int64("user_id", p.UserID).
		Int64("amount", p.Amount).
		Int64("balance", balance).
		Int64("due", due).
		Msg("Payment approved")

	return &PaymentDecision{Payment: p, Approved: true, NewBalance: balance, NewDue: due}, nil
}

// RejectPayment transitions the payment to REJECTED. Nothing was credited
// at submission, so there is nothing to reverse.
func (s *AdminService) RejectPayment(ctx context.Context, payID string) (*PaymentDecision, error) {
	p, err := s.payments.GetByID(ctx, payID)
	if err != nil {
		return nil, err
	}
	if err := s.payments.Transition(ctx, payID, model.PaymentRejected); err != nil {
		return nil, err
	}

	p.Status = model.PaymentRejected
	s.recordHistory(ctx, p.UserID, model.HistoryPayment,
		fmt.Sprintf("Top-up %s rejected", p.PayID))

	log.Info().Str("pay_id", payID).Int64("user_id", p.UserID).Msg("Payment rejected")
	return &PaymentDecision{Payment: p, Approved: false}, nil
}

// UpsertProduct creates or updates a catalog entry.
func (s *AdminService) UpsertProduct(ctx context.Context, p *model.Product) error {
	if !p.Category.Valid() {
		return ErrWrongCategory
	}
	if p.Price <= 0 {
		return ErrInvalidAmount
	}
	if err := s.catalog.UpsertProduct(ctx, p); err != nil {
		return err
	}
	log.Info().Str("product", p.Key).Int64("price", p.Price).Msg("Product upserted")
	return nil
}

// DeleteProduct removes a catalog entry with its codes and quantity row.
func (s *AdminService) DeleteProduct(ctx context.Context, key string) error {
	if err := s.catalog.DeleteProduct(ctx, key); err != nil {
		return err
	}
	log.Warn().Str("product", key).Msg("Product deleted")
	return nil
}

// IngestCodes loads activation codes into a discrete product's pool,
// skipping values already present.
func (s *AdminService) IngestCodes(ctx context.Context, key string, values []string) (inserted, skipped int, err error) {
	p, err := s.catalog.GetProduct(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	if p.Category != model.CategoryDiscrete {
		return 0, 0, ErrWrongCategory
	}
	inserted, skipped, err = s.catalog.IngestCodes(ctx, key, values)
	if err != nil {
		return 0, 0, err
	}
	log.Info().
		Str("product", key).
		Int("inserted", inserted).
		Int("skipped", skipped).
		Msg("Codes ingested")
	return inserted, skipped, nil
}

// RemoveCodes deletes unconsumed codes by value and returns how many went.
func (s *AdminService) RemoveCodes(ctx context.Context, key string, values []string) (int64, error) {
	removed, err := s.catalog.RemoveCodes(ctx, key, values)
	if err != nil {
		return 0, err
	}
	log.Info().Str("product", key).Int64("removed", removed).Msg("Codes removed")
	return removed, nil
}

// AdjustQuantity shifts a bulk product's quantity stock by delta and
// returns the new level. Deltas that would drive the level negative are
// rejected whole; nothing is clamped.
func (s *AdminService) AdjustQuantity(ctx context.Context, key string, delta int64) (int64, error) {
	p, err := s.catalog.GetProduct(ctx, key)
	if err != nil {
		return 0, err
	}
	if p.Category != model.CategoryBulk {
		return 0, ErrWrongCategory
	}
	level, err := s.catalog.AdjustQuantity(ctx, key, delta)
	if err != nil {
		return 0, err
	}
	log.Info().Str("product", key).Int64("delta", delta).Int64("level", level).Msg("Quantity adjusted")
	return level, nil
}

// StockLevel returns the current sellable stock for a product.
func (s *AdminService) StockLevel(ctx context.Context, key string) (int64, error) {
	return s.catalog.StockLevel(ctx, key)
}

// ListCodes returns all codes for a discrete product, consumed included.
func (s *AdminService) ListCodes(ctx context.Context, key string) ([]model.Code, error) {
	return s.catalog.ListCodes(ctx, key)
}

// GrantBonus credits promotional funds straight to a user's bonus pool.
func (s *AdminService) GrantBonus(ctx context.Context, userID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := s.accounts.AddBonus(ctx, userID, amount); err != nil {
		return err
	}
	s.recordHistory(ctx, userID, model.HistorySystem, fmt.Sprintf("Bonus granted: %d", amount))
	log.Info().Int64("user_id", userID).Int64("amount", amount).Msg("Bonus granted")
	return nil
}

// SetDueLimit raises or lowers a user's credit ceiling. Lowering below the
// currently outstanding due is refused by the store.
func (s *AdminService) SetDueLimit(ctx context.Context, userID, limit int64) error {
	if limit < 0 {
		return ErrInvalidAmount
	}
	if err := s.accounts.SetDueLimit(ctx, userID, limit); err != nil {
		return err
	}
	log.Info().Int64("user_id", userID).Int64("due_limit", limit).Msg("Due limit changed")
	return nil
}

// UpsertMethod creates or updates a payment method shown to buyers.
func (s *AdminService) UpsertMethod(ctx context.Context, name, details string) error {
	return s.payments.UpsertMethod(ctx, name, details)
}

// DeleteMethod removes a payment method.
func (s *AdminService) DeleteMethod(ctx context.Context, name string) error {
	return s.payments.DeleteMethod(ctx, name)
}

// PurgeHistory drops history entries older than the retention window and
// returns how many were removed.
func (s *AdminService) PurgeHistory(ctx context.Context, retention time.Duration) (int64, error) {
	return s.history.Purge(ctx, retention)
}

func (s *AdminService) recordHistory(ctx context.Context, userID int64, kind, text string) {
	if err := s.history.Add(ctx, userID, kind, text); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to record history entry")
	}
}
