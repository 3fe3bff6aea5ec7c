package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"telegram-shop-bot/internal/model"
)

const accountColumns = `user_id, name, balance, bonus, due, due_limit, total_purchase,
	referrer_id, referral_count, referral_bonus_earned, banned, warnings, created_at, last_active_at`

// AccountRepository is the ledger store: balance, bonus, due, due limit,
// cumulative spend and referral linkage per user.
type AccountRepository struct {
	db Querier
}

// NewAccountRepository creates a new AccountRepository instance.
func NewAccountRepository(db Querier) *AccountRepository {
	return &AccountRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
	return &AccountRepository{db: tx}
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.UserID, &a.Name, &a.Balance, &a.Bonus, &a.Due, &a.DueLimit, &a.TotalPurchase,
		&a.ReferrerID, &a.ReferralCount, &a.ReferralBonusEarned, &a.Banned, &a.Warnings,
		&a.CreatedAt, &a.LastActiveAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &a, nil
}

// Ensure creates the account on first contact and refreshes name and
// last-active time on every later one. Accounts are never deleted.
func (r *AccountRepository) Ensure(ctx context.Context, userID int64, name string) (*model.Account, error) {
	query := `
		INSERT INTO accounts (user_id, name, created_at, last_active_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET name = EXCLUDED.name, last_active_at = NOW()
		RETURNING ` + accountColumns
	return scanAccount(r.db.QueryRow(ctx, query, userID, name))
}

// GetByID retrieves an account. Returns ErrAccountNotFound if absent.
func (r *AccountRepository) GetByID(ctx context.Context, userID int64) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1`
	return scanAccount(r.db.QueryRow(ctx, query, userID))
}

// GetForUpdate retrieves an account holding a row lock for the duration of
// the surrounding transaction. Must be called on a tx-bound repository.
func (r *AccountRepository) GetForUpdate(ctx context.Context, userID int64) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 FOR UPDATE`
	return scanAccount(r.db.QueryRow(ctx, query, userID))
}

// ApplySettlement commits a purchase debit in a single update: fromBalance
// leaves the balance, toDue is added to due, and price is added to the
// cumulative spend. The WHERE clause re-checks the funds invariant so a
// concurrent writer can never push balance below zero or due past its limit;
// zero rows affected means the settlement no longer fits.
func (r *AccountRepository) ApplySettlement(ctx context.Context, userID, fromBalance, toDue, price int64) error {
	const query = `
		UPDATE accounts
		SET balance = balance - $2,
		    due = due + $3,
		    total_purchase = total_purchase + $4,
		    last_active_at = NOW()
		WHERE user_id = $1 AND balance >= $2 AND due + $3 <= due_limit
	`
	tag, err := r.db.Exec(ctx, query, userID, fromBalance, toDue, price)
	if err != nil {
		return fmt.Errorf("failed to apply settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// Refund returns a previously reserved amount to the balance. Due is not
// retroactively reduced; top-up approval is the only path that pays due down.
func (r *AccountRepository) Refund(ctx context.Context, userID, amount int64) error {
	const query = `UPDATE accounts SET balance = balance + $2 WHERE user_id = $1`
	tag, err := r.db.Exec(ctx, query, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to refund: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// CreditTopUp credits an approved top-up and automatically pays outstanding
// due down from the new balance, all in one update. Returns the resulting
// balance and due.
func (r *AccountRepository) CreditTopUp(ctx context.Context, userID, amount int64) (balance, due int64, err error) {
	const query = `
		UPDATE accounts
		SET balance = balance + $2 - LEAST(balance + $2, due),
		    due = due - LEAST(balance + $2, due)
		WHERE user_id = $1
		RETURNING balance, due
	`
	err = r.db.QueryRow(ctx, query, userID, amount).Scan(&balance, &due)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, ErrAccountNotFound
		}
		return 0, 0, fmt.Errorf("failed to credit top-up: %w", err)
	}
	return balance, due, nil
}

// AddBonus adds to the separate redeemable bonus credit.
func (r *AccountRepository) AddBonus(ctx context.Context, userID, amount int64) error {
	const query = `UPDATE accounts SET bonus = bonus + $2 WHERE user_id = $1`
	tag, err := r.db.Exec(ctx, query, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to add bonus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetDueLimit sets the maximum credit that may be extended to the user.
func (r *AccountRepository) SetDueLimit(ctx context.Context, userID, limit int64) error {
	const query = `UPDATE accounts SET due_limit = $2 WHERE user_id = $1 AND $2 >= due`
	tag, err := r.db.Exec(ctx, query, userID, limit)
	if err != nil {
		return fmt.Errorf("failed to set due limit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetBanned suspends or restores activity for the account. The ledger row
// is preserved either way.
func (r *AccountRepository) SetBanned(ctx context.Context, userID int64, banned bool) error {
	const query = `UPDATE accounts SET banned = $2 WHERE user_id = $1`
	tag, err := r.db.Exec(ctx, query, userID, banned)
	if err != nil {
		return fmt.Errorf("failed to set banned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// AddWarning increments the account's warning counter and returns the new count.
func (r *AccountRepository) AddWarning(ctx context.Context, userID int64) (int, error) {
	const query = `UPDATE accounts SET warnings = warnings + 1 WHERE user_id = $1 RETURNING warnings`
	var warnings int
	err := r.db.QueryRow(ctx, query, userID).Scan(&warnings)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to add warning: %w", err)
	}
	return warnings, nil
}

// SetReferrer links the account to its referrer. The link is set at most
// once and never to the account itself; a violating call returns
// ErrReferrerSet without mutating anything. On success the referrer's
// referral_count is incremented in the same statement, so the link and the
// counter can never diverge.
func (r *AccountRepository) SetReferrer(ctx context.Context, userID, referrerID int64) error {
	const query = `
		WITH linked AS (
			UPDATE accounts SET referrer_id = $2
			WHERE user_id = $1 AND referrer_id IS NULL AND user_id <> $2
			RETURNING user_id
		), bumped AS (
			UPDATE accounts SET referral_count = referral_count + 1
			WHERE user_id = $2 AND EXISTS (SELECT 1 FROM linked)
		)
		SELECT EXISTS (SELECT 1 FROM linked)
	`
	var linked bool
	if err := r.db.QueryRow(ctx, query, userID, referrerID).Scan(&linked); err != nil {
		return fmt.Errorf("failed to set referrer: %w", err)
	}
	if !linked {
		return ErrReferrerSet
	}
	return nil
}

// Exists checks if an account with the given id exists.
func (r *AccountRepository) Exists(ctx context.Context, userID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM accounts WHERE user_id = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check account existence: %w", err)
	}
	return exists, nil
}
