package handler

import (
	"errors"
	"time"

	"telegram-shop-bot/internal/pkg/lock"
	"telegram-shop-bot/internal/repository"
	"telegram-shop-bot/internal/service"
)

// lockTimeout bounds how long a handler waits on the per-user lock before
// giving up; beyond this the user is hammering buttons faster than commits
// complete.
const lockTimeout = 10 * time.Second

// userMessage maps engine errors to buyer-facing text. Unknown errors get
// the generic line; details stay in the logs.
func userMessage(err error) string {
	switch {
	case errors.Is(err, repository.ErrOutOfStock):
		return "😔 Out of stock, please check back later."
	case errors.Is(err, repository.ErrInsufficientFunds):
		return "💸 Insufficient funds: your balance plus available credit does not cover this."
	case errors.Is(err, repository.ErrProductNotFound):
		return "❌ That item is no longer available."
	case errors.Is(err, repository.ErrOrderNotFound):
		return "❌ No such order."
	case errors.Is(err, repository.ErrPaymentNotFound):
		return "❌ No such payment."
	case errors.Is(err, repository.ErrAlreadyDecided):
		return "⚠️ Already decided by another admin."
	case errors.Is(err, service.ErrInvalidAmount):
		return "❌ Invalid amount."
	case errors.Is(err, service.ErrInvalidReference):
		return "❌ Invalid reference, please check it and try again."
	case errors.Is(err, service.ErrAccountBanned):
		return "🚫 Your account is suspended."
	case errors.Is(err, service.ErrNoMethods):
		return "😔 No payment methods are configured right now."
	case errors.Is(err, lock.ErrLockTimeout):
		return "⏳ Busy processing your previous action, please wait."
	default:
		return errGeneric
	}
}
