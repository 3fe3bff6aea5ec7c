package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"telegram-shop-bot/internal/model"
	"telegram-shop-bot/internal/repository"
)

// startPayloadPrefix marks a referral deep link payload: /start ref_<id>.
const startPayloadPrefix = "ref_"

// AccountService manages account lifecycle: registration on first contact,
// profile reads, history, and moderation.
type AccountService struct {
	accounts *repository.AccountRepository
	history  *repository.HistoryRepository
	referral *ReferralService
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	accounts *repository.AccountRepository,
	history *repository.HistoryRepository,
	referral *ReferralService,
) *AccountService {
	return &AccountService{accounts: accounts, history: history, referral: referral}
}

// Touch upserts the account for userID and returns it. On the very first
// contact the startPayload is inspected for a referral deep link and, when
// valid, the referrer link is recorded. Links on later contacts are ignored
// because the referrer column is write-once.
func (s *AccountService) Touch(ctx context.Context, userID int64, name, startPayload string) (*model.Account, error) {
	acct, err := s.accounts.Ensure(ctx, userID, name)
	if err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}

	if acct.ReferrerID == nil {
		if referrerID, ok := parseReferralPayload(startPayload); ok && referrerID != userID {
			s.referral.Link(ctx, userID, referrerID)
		}
	}
	return acct, nil
}

// Profile returns the account for userID.
func (s *AccountService) Profile(ctx context.Context, userID int64) (*model.Account, error) {
	return s.accounts.GetByID(ctx, userID)
}

// History returns the user's recent history entries, optionally filtered
// by kind, newest first.
func (s *AccountService) History(ctx context.Context, userID int64, kind string, limit int) ([]model.HistoryEntry, error) {
	return s.history.ListByUser(ctx, userID, kind, limit)
}

// ReferralSummary returns the buyers whose first qualifying purchase paid
// a bonus to this referrer.
func (s *AccountService) ReferralSummary(ctx context.Context, referrerID int64, limit int) ([]model.ReferralCredit, error) {
	return s.referral.credits.ListByReferrer(ctx, referrerID, limit)
}

// IsBanned reports whether the account exists and is banned. Unknown
// accounts are not banned: they have not registered yet.
func (s *AccountService) IsBanned(ctx context.Context, userID int64) bool {
	acct, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return false
	}
	return acct.Banned
}

// Ban flags the account and logs the action.
func (s *AccountService) Ban(ctx context.Context, userID int64) error {
	if err := s.accounts.SetBanned(ctx, userID, true); err != nil {
		return err
	}
	log.Warn().Int64("user_id", userID).Msg("Account banned")
	return nil
}

// Unban clears the ban flag.
func (s *AccountService) Unban(ctx context.Context, userID int64) error {
	if err := s.accounts.SetBanned(ctx, userID, false); err != nil {
		return err
	}
	log.Info().Int64("user_id", userID).Msg("Account unbanned")
	return nil
}

// Warn increments the account's warning counter and returns the new count.
func (s *AccountService) Warn(ctx context.Context, userID int64) (int, error) {
	return s.accounts.AddWarning(ctx, userID)
}

// parseReferralPayload extracts the referrer id from a /start deep link
// payload. Malformed payloads are simply not referral links.
func parseReferralPayload(payload string) (int64, bool) {
	raw, ok := strings.CutPrefix(payload, startPayloadPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
