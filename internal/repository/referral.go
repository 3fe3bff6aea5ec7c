package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-shop-bot/internal/model"
)

// ReferralRepository owns the referral credit markers. A marker's presence
// is the source of truth for "this referrer was already paid for this
// buyer"; the referred account's history is never consulted.
type ReferralRepository struct {
	pool *pgxpool.Pool
}

// NewReferralRepository creates a new ReferralRepository instance.
func NewReferralRepository(pool *pgxpool.Pool) *ReferralRepository {
	return &ReferralRepository{pool: pool}
}

// CreditOnce pays the referrer's bonus for the given buyer at most once.
// The marker insert and the ledger credit run in one transaction: the
// (referrer, buyer) primary key makes ON CONFLICT DO NOTHING the atomic
// check-and-set, so two concurrent qualifying purchases cannot both pass
// the check. Returns whether a credit was actually applied.
func (r *ReferralRepository) CreditOnce(ctx context.Context, referrerID, buyerID, amount int64) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin referral tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const mark = `
		INSERT INTO referral_credits (referrer_id, buyer_id, amount, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (referrer_id, buyer_id) DO NOTHING
	`
	tag, err := tx.Exec(ctx, mark, referrerID, buyerID, amount)
	if err != nil {
		return false, fmt.Errorf("failed to insert credit marker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already credited for this buyer.
		return false, nil
	}

	const credit = `
		UPDATE accounts
		SET bonus = bonus + $2, referral_bonus_earned = referral_bonus_earned + $2
		WHERE user_id = $1
	`
	ctag, err := tx.Exec(ctx, credit, referrerID, amount)
	if err != nil {
		return false, fmt.Errorf("failed to credit referrer: %w", err)
	}
	if ctag.RowsAffected() == 0 {
		// Referrer account vanished; roll the marker back with the tx.
		return false, ErrAccountNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit referral credit: %w", err)
	}
	return true, nil
}

// IsCredited reports whether the (referrer, buyer) pair already has a marker.
func (r *ReferralRepository) IsCredited(ctx context.Context, referrerID, buyerID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM referral_credits WHERE referrer_id = $1 AND buyer_id = $2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, referrerID, buyerID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check credit marker: %w", err)
	}
	return exists, nil
}

// ListByReferrer returns the credits a referrer has earned, newest first.
func (r *ReferralRepository) ListByReferrer(ctx context.Context, referrerID int64, limit int) ([]model.ReferralCredit, error) {
	const query = `
		SELECT referrer_id, buyer_id, amount, created_at
		FROM referral_credits
		WHERE referrer_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, referrerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list referral credits: %w", err)
	}
	defer rows.Close()

	var credits []model.ReferralCredit
	for rows.Next() {
		var c model.ReferralCredit
		if err := rows.Scan(&c.ReferrerID, &c.BuyerID, &c.Amount, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan referral credit: %w", err)
		}
		credits = append(credits, c)
	}
	return credits, rows.Err()
}
