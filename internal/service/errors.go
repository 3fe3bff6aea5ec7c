// Package service provides business logic implementations.
package service

import "errors"

// Common errors for orchestrator operations. Storage failures are wrapped
// and surfaced separately; everything here is recoverable by the caller.
var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidReference = errors.New("invalid fulfillment reference")
	ErrWrongCategory    = errors.New("product category does not match flow")
	ErrAccountBanned    = errors.New("account is banned")
	ErrNoMethods        = errors.New("no payment methods configured")
)
