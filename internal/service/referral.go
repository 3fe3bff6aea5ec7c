package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"telegram-shop-bot/internal/repository"
)

// CreditNotice reports a referral bonus that was just paid, for post-commit
// notification of the referrer and the admins.
type CreditNotice struct {
	ReferrerID int64
	BuyerID    int64
	Bonus      int64
}

// ReferralService awards the one-time referral bonus when a referred
// buyer's purchase crosses the configured threshold.
type ReferralService struct {
	accounts    *repository.AccountRepository
	credits     *repository.ReferralRepository
	enabled     bool
	bonus       int64
	minPurchase int64

	// onCredit, if set, is invoked after a bonus has been committed.
	onCredit func(CreditNotice)
}

// NewReferralService creates a new ReferralService instance.
func NewReferralService(
	accounts *repository.AccountRepository,
	credits *repository.ReferralRepository,
	enabled bool,
	bonus, minPurchase int64,
) *ReferralService {
	return &ReferralService{
		accounts:    accounts,
		credits:     credits,
		enabled:     enabled,
		bonus:       bonus,
		minPurchase: minPurchase,
	}
}

// OnCredit registers a callback fired after each committed bonus. The
// callback must not block; it runs outside any ledger lock.
func (s *ReferralService) OnCredit(fn func(CreditNotice)) {
	s.onCredit = fn
}

// MaybeCredit pays the buyer's referrer the one-time bonus if the program
// is enabled, the purchase amount meets the threshold, the buyer has a
// referrer, and no credit marker exists yet for the pair. The marker
// check-and-set and the bonus credit are linearized in one transaction by
// the repository, so concurrent qualifying purchases credit at most once.
// Failures are logged and swallowed; a purchase never fails because the
// referral bookkeeping did.
func (s *ReferralService) MaybeCredit(ctx context.Context, buyerID, purchaseAmount int64) {
	if !s.enabled || purchaseAmount < s.minPurchase {
		return
	}

	buyer, err := s.accounts.GetByID(ctx, buyerID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", buyerID).Msg("Referral check: failed to load buyer")
		return
	}
	if buyer.ReferrerID == nil {
		return
	}
	referrerID := *buyer.ReferrerID

	credited, err := s.credits.CreditOnce(ctx, referrerID, buyerID, s.bonus)
	if err != nil {
		log.Error().Err(err).
			Int64("referrer_id", referrerID).
			Int64("buyer_id", buyerID).
			Msg("Referral credit failed")
		return
	}
	if !credited {
		return
	}

	log.Info().
		Int64("referrer_id", referrerID).
		Int64("buyer_id", buyerID).
		Int64("bonus", s.bonus).
		Msg("Referral bonus credited")

	if s.onCredit != nil {
		s.onCredit(CreditNotice{ReferrerID: referrerID, BuyerID: buyerID, Bonus: s.bonus})
	}
}

// Link records referrerID as userID's referrer if none is set yet and the
// ids differ. Violations are silently ignored: referral links arrive in
// untrusted /start payloads.
func (s *ReferralService) Link(ctx context.Context, userID, referrerID int64) {
	exists, err := s.accounts.Exists(ctx, referrerID)
	if err != nil || !exists {
		return
	}
	if err := s.accounts.SetReferrer(ctx, userID, referrerID); err != nil {
		return
	}
	log.Info().Int64("user_id", userID).Int64("referrer_id", referrerID).Msg("Referral link recorded")
}
