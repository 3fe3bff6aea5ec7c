package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"telegram-shop-bot/internal/model"
)

// HistoryRepository is the rolling short-lived activity log. Entries are
// best-effort context for users and admins, not a durable audit trail.
type HistoryRepository struct {
	db Querier
}

// NewHistoryRepository creates a new HistoryRepository instance.
func NewHistoryRepository(db Querier) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *HistoryRepository) WithTx(tx pgx.Tx) *HistoryRepository {
	return &HistoryRepository{db: tx}
}

// Add appends one entry.
func (r *HistoryRepository) Add(ctx context.Context, userID int64, kind, text string) error {
	const query = `
		INSERT INTO history (user_id, kind, text, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	if _, err := r.db.Exec(ctx, query, userID, kind, text); err != nil {
		return fmt.Errorf("failed to add history: %w", err)
	}
	return nil
}

// ListByUser returns the user's entries of one kind, newest first. An empty
// kind matches all kinds.
func (r *HistoryRepository) ListByUser(ctx context.Context, userID int64, kind string, limit int) ([]model.HistoryEntry, error) {
	const query = `
		SELECT id, user_id, kind, text, created_at
		FROM history
		WHERE user_id = $1 AND ($2 = '' OR kind = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, userID, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &e.Text, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Purge removes entries older than the retention window and returns the
// number removed.
func (r *HistoryRepository) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	const query = `DELETE FROM history WHERE created_at < $1`
	tag, err := r.db.Exec(ctx, query, time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to purge history: %w", err)
	}
	return tag.RowsAffected(), nil
}
