package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"telegram-shop-bot/internal/model"
	"telegram-shop-bot/internal/repository"
)

// TopUpRequest carries a buyer's submitted top-up before it becomes a
// pending payment record.
type TopUpRequest struct {
	UserID   int64
	Amount   int64
	Method   string
	TxRef    string
	ProofRef *string
}

// TopUpService handles the request side of the top-up flow. The money
// itself only moves when an admin approves the pending payment.
type TopUpService struct {
	accounts      *repository.AccountRepository
	payments      *repository.PaymentRepository
	history       *repository.HistoryRepository
	minAmount     int64
	proofRequired bool
}

// NewTopUpService creates a new TopUpService instance.
func NewTopUpService(
	accounts *repository.AccountRepository,
	payments *repository.PaymentRepository,
	history *repository.HistoryRepository,
	minAmount int64,
	proofRequired bool,
) *TopUpService {
	return &TopUpService{
		accounts:      accounts,
		payments:      payments,
		history:       history,
		minAmount:     minAmount,
		proofRequired: proofRequired,
	}
}

// MinAmount returns the smallest accepted top-up amount.
func (s *TopUpService) MinAmount() int64 { return s.minAmount }

// ProofRequired reports whether submissions must carry a proof attachment.
func (s *TopUpService) ProofRequired() bool { return s.proofRequired }

// ValidateAmount checks a buyer-entered top-up amount against the floor.
func (s *TopUpService) ValidateAmount(amount int64) error {
	if amount < s.minAmount {
		return ErrInvalidAmount
	}
	return nil
}

// Methods returns the configured payment methods, or ErrNoMethods when the
// admins have not set up any, so the flow can refuse to start.
func (s *TopUpService) Methods(ctx context.Context) ([]model.PaymentMethod, error) {
	methods, err := s.payments.ListMethods(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	if len(methods) == 0 {
		return nil, ErrNoMethods
	}
	return methods, nil
}

// Submit validates the request and records a pending payment. Nothing is
// credited here; the balance changes only on approval.
func (s *TopUpService) Submit(ctx context.Context, req TopUpRequest) (*model.Payment, error) {
	if err := s.ValidateAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.TxRef == "" {
		return nil, ErrInvalidReference
	}
	if s.proofRequired && req.ProofRef == nil {
		return nil, ErrInvalidReference
	}
	if _, err := s.payments.GetMethod(ctx, req.Method); err != nil {
		return nil, err
	}

	p := &model.Payment{
		PayID:    repository.NewPaymentID(),
		UserID:   req.UserID,
		Amount:   req.Amount,
		Method:   req.Method,
		TxRef:    req.TxRef,
		ProofRef: req.ProofRef,
		Status:   model.PaymentPending,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	if err := s.history.Add(ctx, req.UserID, model.HistoryPayment,
		fmt.Sprintf("Top-up %s submitted: %d via %s", p.PayID, p.Amount, p.Method)); err != nil {
		log.Error().Err(err).Str("pay_id", p.PayID).Msg("Failed to record top-up history")
	}

	log.Info().
		Str("pay_id", p.PayID).
		Int64("user_id", req.UserID).
		Int64("amount", req.Amount).
		Str("method", req.Method).
		Msg("Top-up request submitted")
	return p, nil
}

// Lookup returns a payment if it belongs to userID, or unconditionally for
// admins. Foreign payments read as not found.
func (s *TopUpService) Lookup(ctx context.Context, payID string, userID int64, isAdmin bool) (*model.Payment, error) {
	p, err := s.payments.GetByID(ctx, payID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && p.UserID != userID {
		return nil, repository.ErrPaymentNotFound
	}
	return p, nil
}
