package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"telegram-shop-bot/internal/model"
	"telegram-shop-bot/internal/repository"
)

// referenceRule validates buyer-supplied fulfillment references: the
// destination account handle bulk orders are delivered to.
const referenceRule = "required,number,min=10,max=12"

// Quote is the live price and stock snapshot shown at the confirmation step.
// It is advisory only; every commit re-validates against current data.
type Quote struct {
	Product *model.Product
	Stock   int64
}

// DiscreteResult reports a committed discrete purchase.
type DiscreteResult struct {
	Product     *model.Product
	Code        string
	FromBalance int64
	ToDue       int64
	OldBalance  int64
	OldDue      int64
	NewBalance  int64
	NewDue      int64
	Remaining   int64
	LowStock    bool
}

// OrderResult reports a placed (still pending) bulk order.
type OrderResult struct {
	Order       *model.Order
	FromBalance int64
	ToDue       int64
	OldBalance  int64
	OldDue      int64
	NewBalance  int64
	NewDue      int64
}

// PurchaseService drives both acquisition flows: the discrete
// confirm-then-deliver flow and the bulk two-phase reserve-then-review flow.
type PurchaseService struct {
	pool     *pgxpool.Pool
	accounts *repository.AccountRepository
	catalog  *repository.CatalogRepository
	orders   *repository.OrderRepository
	history  *repository.HistoryRepository
	referral *ReferralService
	validate *validator.Validate
	lowStock int64
}

// NewPurchaseService creates a new PurchaseService instance.
func NewPurchaseService(
	pool *pgxpool.Pool,
	accounts *repository.AccountRepository,
	catalog *repository.CatalogRepository,
	orders *repository.OrderRepository,
	history *repository.HistoryRepository,
	referral *ReferralService,
	lowStockThreshold int64,
) *PurchaseService {
	return &PurchaseService{
		pool:     pool,
		accounts: accounts,
		catalog:  catalog,
		orders:   orders,
		history:  history,
		referral: referral,
		validate: validator.New(),
		lowStock: lowStockThreshold,
	}
}

// QuoteProduct re-reads the live price and stock for the confirmation
// prompt. The category must match the flow the user is in.
func (s *PurchaseService) QuoteProduct(ctx context.Context, key string, cat model.Category) (*Quote, error) {
	p, err := s.catalog.GetProduct(ctx, key)
	if err != nil {
		return nil, err
	}
	if p.Category != cat {
		return nil, ErrWrongCategory
	}
	stock, err := s.catalog.StockLevel(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Quote{Product: p, Stock: stock}, nil
}

// ValidateReference checks a buyer-supplied fulfillment reference against
// the fixed destination-handle pattern.
func (s *PurchaseService) ValidateReference(reference string) error {
	if err := s.validate.Var(reference, referenceRule); err != nil {
		return ErrInvalidReference
	}
	return nil
}

// BuyDiscrete commits a confirmed discrete purchase. The catalog entry and
// stock are re-validated against live data (the confirmation quote may be
// stale), the settlement is computed, and only after a code has been
// allocated is the ledger debit applied; a buyer is never debited for a
// code that does not exist. Allocation, debit and spend counter move in one
// transaction.
func (s *PurchaseService) BuyDiscrete(ctx context.Context, buyerID int64, productKey string) (*DiscreteResult, error) {
	p, err := s.catalog.GetProduct(ctx, productKey)
	if err != nil {
		return nil, err
	}
	if p.Category != model.CategoryDiscrete {
		return nil, ErrWrongCategory
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin purchase tx: %w", err)
	}
	defer tx.Rollback(ctx)

	accounts := s.accounts.WithTx(tx)
	catalog := s.catalog.WithTx(tx)

	acct, err := accounts.GetForUpdate(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if acct.Banned {
		return nil, ErrAccountBanned
	}

	fromBalance, toDue, ok := acct.SpendableFor(p.Price)
	if !ok {
		return nil, repository.ErrInsufficientFunds
	}

	// Inventory before ledger: if the pool drained since the confirmation
	// prompt this aborts with no ledger mutation.
	code, err := catalog.AllocateCode(ctx, productKey, buyerID)
	if err != nil {
		if errors.Is(err, repository.ErrOutOfStock) {
			log.Warn().
				Int64("user_id", buyerID).
				Str("product", productKey).
				Msg("Allocation race: stock drained between confirm and commit")
		}
		return nil, err
	}

	if err := accounts.ApplySettlement(ctx, buyerID, fromBalance, toDue, p.Price); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit purchase: %w", err)
	}

	// Post-commit bookkeeping is best-effort and never rolls the sale back.
	s.recordHistory(ctx, buyerID, model.HistoryCode, fmt.Sprintf("%s code delivered: %s", p.Name, code))
	s.recordHistory(ctx, buyerID, model.HistoryPurchase, fmt.Sprintf("Spent %d on %s", p.Price, p.Name))
	s.referral.MaybeCredit(ctx, buyerID, p.Price)

	remaining, err := s.catalog.StockLevel(ctx, productKey)
	if err != nil {
		log.Error().Err(err).Str("product", productKey).Msg("Failed to read remaining stock")
		remaining = -1
	}

	return &DiscreteResult{
		Product:     p,
		Code:        code,
		FromBalance: fromBalance,
		ToDue:       toDue,
		OldBalance:  acct.Balance,
		OldDue:      acct.Due,
		NewBalance:  acct.Balance - fromBalance,
		NewDue:      acct.Due + toDue,
		Remaining:   remaining,
		LowStock:    remaining >= 0 && remaining <= s.lowStock,
	}, nil
}

// PlaceOrder commits a confirmed bulk order: the settlement is applied
// immediately (reservation) and a Pending order is created with the price
// captured now, before any admin has acted. Quantity stock is not touched
// here; approval is the fulfillment commitment point.
func (s *PurchaseService) PlaceOrder(ctx context.Context, buyerID int64, productKey, reference string) (*OrderResult, error) {
	if err := s.ValidateReference(reference); err != nil {
		return nil, err
	}

	p, err := s.catalog.GetProduct(ctx, productKey)
	if err != nil {
		return nil, err
	}
	if p.Category != model.CategoryBulk {
		return nil, ErrWrongCategory
	}

	stock, err := s.catalog.StockLevel(ctx, productKey)
	if err != nil {
		return nil, err
	}
	if stock <= 0 {
		log.Warn().
			Int64("user_id", buyerID).
			Str("product", productKey).
			Msg("Bulk order attempt with no quantity in stock")
		return nil, repository.ErrOutOfStock
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin order tx: %w", err)
	}
	defer tx.Rollback(ctx)

	accounts := s.accounts.WithTx(tx)
	orders := s.orders.WithTx(tx)

	acct, err := accounts.GetForUpdate(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if acct.Banned {
		return nil, ErrAccountBanned
	}

	fromBalance, toDue, ok := acct.SpendableFor(p.Price)
	if !ok {
		return nil, repository.ErrInsufficientFunds
	}

	if err := accounts.ApplySettlement(ctx, buyerID, fromBalance, toDue, p.Price); err != nil {
		return nil, err
	}

	order := &model.Order{
		OrderID:     repository.NewOrderID(),
		UserID:      buyerID,
		ProductKey:  p.Key,
		ProductName: p.Name,
		Price:       p.Price,
		Reference:   reference,
		Status:      model.OrderPending,
	}
	if err := orders.Create(ctx, order); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}

	s.recordHistory(ctx, buyerID, model.HistoryOrder,
		fmt.Sprintf("Order %s placed: %s for %d, ref %s", order.OrderID, p.Name, p.Price, reference))
	// Funds are reserved now, so the purchase qualifies now; a later
	// reject does not claw the referral bonus back.
	s.referral.MaybeCredit(ctx, buyerID, p.Price)

	return &OrderResult{
		Order:       order,
		FromBalance: fromBalance,
		ToDue:       toDue,
		OldBalance:  acct.Balance,
		OldDue:      acct.Due,
		NewBalance:  acct.Balance - fromBalance,
		NewDue:      acct.Due + toDue,
	}, nil
}

// LookupOrder returns an order if requesterID owns it or isAdmin is set.
// Foreign orders report not-found rather than existence.
func (s *PurchaseService) LookupOrder(ctx context.Context, orderID string, requesterID int64, isAdmin bool) (*model.Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != requesterID && !isAdmin {
		return nil, repository.ErrOrderNotFound
	}
	return o, nil
}

// PendingOrders returns the user's pending orders, newest first.
func (s *PurchaseService) PendingOrders(ctx context.Context, userID int64, limit int) ([]*model.Order, error) {
	return s.orders.ListPendingByUser(ctx, userID, limit)
}

// ListProducts returns the catalog entries for one category.
func (s *PurchaseService) ListProducts(ctx context.Context, cat model.Category) ([]*model.Product, error) {
	return s.catalog.ListByCategory(ctx, cat)
}

func (s *PurchaseService) recordHistory(ctx context.Context, userID int64, kind, text string) {
	if err := s.history.Add(ctx, userID, kind, text); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to record history")
	}
}
