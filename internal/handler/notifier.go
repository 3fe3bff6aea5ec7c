package handler

import (
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

// Notifier fans messages out to the admin subscriber list and delivers
// decision outcomes back to buyers. Sends are fire-and-forget: a blocked
// or unreachable recipient never stalls a handler or another recipient.
type Notifier struct {
	bot      *tele.Bot
	adminIDs []int64
}

// NewNotifier creates a new Notifier instance.
func NewNotifier(bot *tele.Bot, adminIDs []int64) *Notifier {
	return &Notifier{bot: bot, adminIDs: adminIDs}
}

// Broadcast sends text with an optional markup to every admin subscriber.
// Failures are logged per recipient and do not affect the others.
func (n *Notifier) Broadcast(text string, markup *tele.ReplyMarkup) {
	for _, id := range n.adminIDs {
		go func(id int64) {
			var err error
			if markup != nil {
				_, err = n.bot.Send(&tele.User{ID: id}, text, markup, tele.ModeMarkdown)
			} else {
				_, err = n.bot.Send(&tele.User{ID: id}, text, tele.ModeMarkdown)
			}
			if err != nil {
				log.Error().Err(err).Int64("admin_id", id).Msg("Admin notification failed")
			}
		}(id)
	}
}

// NotifyUser sends text to a single user, best-effort.
func (n *Notifier) NotifyUser(userID int64, text string) {
	go func() {
		if _, err := n.bot.Send(&tele.User{ID: userID}, text, tele.ModeMarkdown); err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("User notification failed")
		}
	}()
}
