// Package repository provides data access layer implementations.
//
// Every method runs against a Querier, which both *pgxpool.Pool and pgx.Tx
// satisfy. Multi-row invariants (settlement, allocation, status transitions)
// are enforced in SQL so they hold under arbitrary concurrency; orchestrators
// that need cross-repository atomicity open one pgx transaction and rebind
// the repositories onto it with WithTx.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Common errors for repository operations.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrMethodNotFound  = errors.New("payment method not found")

	// ErrOutOfStock is returned when no available code (or bulk quantity)
	// remains for a product.
	ErrOutOfStock = errors.New("out of stock")

	// ErrInsufficientFunds is returned when a settlement would overdraw the
	// balance or push due past due_limit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrQuantityFloor is returned when a quantity adjustment would make a
	// bulk counter negative. Counters are never clamped.
	ErrQuantityFloor = errors.New("quantity would go negative")

	// ErrAlreadyDecided is returned when a status transition targets a
	// record that is already in a terminal state.
	ErrAlreadyDecided = errors.New("already decided")

	// ErrReferrerSet is returned when an account's referrer is assigned a
	// second time or to the account itself.
	ErrReferrerSet = errors.New("referrer already set or invalid")
)

// Querier is the subset of pgx executable interfaces the repositories need.
// *pgxpool.Pool and pgx.Tx both implement it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
