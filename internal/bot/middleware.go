package bot

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-shop-bot/internal/config"
	"telegram-shop-bot/internal/service"
)

// WhitelistMiddleware is the membership gate: with a non-empty whitelist
// only the listed chats may use the bot. Users first seen in a whitelisted
// chat may also talk to the bot privately. A negative verdict drops the
// update with no reply and no side effects. Admins always pass.
func WhitelistMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	var (
		mu      sync.Mutex
		members = make(map[int64]bool)
	)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			sender := c.Sender()
			if chat == nil || sender == nil {
				return nil
			}
			if len(cfg.Whitelist.Chats) == 0 || cfg.IsAdmin(sender.ID) {
				return next(c)
			}

			if chat.Type == tele.ChatPrivate {
				mu.Lock()
				known := members[sender.ID]
				mu.Unlock()
				if !known {
					log.Debug().
						Int64("user_id", sender.ID).
						Msg("Ignoring private chat from user outside whitelisted chats")
					return nil
				}
				return next(c)
			}

			if !cfg.IsChatAllowed(chat.ID) {
				log.Debug().
					Int64("chat_id", chat.ID).
					Msg("Ignoring update from non-whitelisted chat")
				return nil
			}

			mu.Lock()
			members[sender.ID] = true
			mu.Unlock()
			return next(c)
		}
	}
}

// AccessMiddleware gates all traffic: banned accounts are silently
// ignored and maintenance mode pauses everyone except the admins.
func AccessMiddleware(cfg *config.Config, accounts *service.AccountService, admin *service.AdminService) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}
			if cfg.IsAdmin(sender.ID) {
				return next(c)
			}

			if admin.Maintenance() {
				return c.Send("🔧 The shop is under maintenance. Please try again later.")
			}
			if accounts.IsBanned(context.Background(), sender.ID) {
				log.Debug().Int64("user_id", sender.ID).Msg("Ignoring banned account")
				return nil
			}
			return next(c)
		}
	}
}

// AdminMiddleware restricts a handler group to the configured admin ids.
func AdminMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}
			if !cfg.IsAdmin(sender.ID) {
				log.Warn().
					Int64("user_id", sender.ID).
					Str("command", c.Text()).
					Msg("Non-admin attempted admin command")
				return c.Reply("❌ Admin access required.")
			}
			return next(c)
		}
	}
}

// LoggingMiddleware logs every incoming update.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			logEvent := log.Debug()
			if sender := c.Sender(); sender != nil {
				logEvent = logEvent.
					Int64("user_id", sender.ID).
					Str("username", sender.Username)
			}
			if cb := c.Callback(); cb != nil {
				logEvent = logEvent.Str("callback", cb.Data)
			}
			logEvent.
				Str("text", c.Text()).
				Msg("Received update")

			return next(c)
		}
	}
}

// RecoveryMiddleware recovers from handler panics so one bad update
// cannot take the poller down.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Msg("Recovered from panic in handler")
					_ = c.Reply("❌ Something went wrong, please try again later.")
				}
			}()
			return next(c)
		}
	}
}
