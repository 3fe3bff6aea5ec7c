// Package handler provides Telegram bot command and callback handlers.
package handler

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"telegram-shop-bot/internal/dialog"
	"telegram-shop-bot/internal/service"
	"telegram-shop-bot/internal/shop"
)

const errGeneric = "❌ Something went wrong, please try again later."

// AccountHandler handles registration, profile, history and referral views.
type AccountHandler struct {
	accounts *service.AccountService
	dialogs  *dialog.Engine
	botName  string
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *service.AccountService, dialogs *dialog.Engine, botName string) *AccountHandler {
	return &AccountHandler{accounts: accounts, dialogs: dialogs, botName: botName}
}

// HandleStart registers the sender, records a referral deep link when one
// is present, and shows the main menu.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	name := sender.Username
	if name == "" {
		name = sender.FirstName
	}

	// /start <payload> arrives as message payload in telebot.
	payload := c.Message().Payload

	acct, err := h.accounts.Touch(ctx, sender.ID, name, payload)
	if err != nil {
		return c.Send(errGeneric)
	}

	h.dialogs.Clear(sender.ID)

	greeting := fmt.Sprintf(
		"👋 Welcome, *%s*!\n\n💰 Balance: %d\n📉 Due: %d / %d\n\nPick an option below.",
		acct.Name, acct.Balance, acct.Due, acct.DueLimit,
	)
	return c.Send(greeting, shop.BuildMainMenu(), tele.ModeMarkdown)
}

// HandleProfile shows the account card.
func (h *AccountHandler) HandleProfile(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	acct, err := h.accounts.Profile(ctx, sender.ID)
	if err != nil {
		return c.Send(errGeneric)
	}
	return c.Send(shop.FormatProfile(acct), tele.ModeMarkdown)
}

// HandleHistory shows the sender's recent activity, newest first.
func (h *AccountHandler) HandleHistory(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	entries, err := h.accounts.History(ctx, sender.ID, "", 20)
	if err != nil {
		return c.Send(errGeneric)
	}
	if len(entries) == 0 {
		return c.Send("📜 No recent activity.")
	}

	var b strings.Builder
	b.WriteString("📜 *Recent activity*\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "`%s` %s\n", e.CreatedAt.Format("01-02 15:04"), e.Text)
	}
	return c.Send(b.String(), tele.ModeMarkdown)
}

// HandleReferral shows the sender's personal invite link and bonus tally.
func (h *AccountHandler) HandleReferral(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	acct, err := h.accounts.Profile(ctx, sender.ID)
	if err != nil {
		return c.Send(errGeneric)
	}

	link := fmt.Sprintf("https://t.me/%s?start=ref_%d", h.botName, sender.ID)

	var b strings.Builder
	fmt.Fprintf(&b,
		"🤝 *Referral program*\n\nYour link:\n%s\n\n"+
			"Referred users: %d\nBonus earned: %d\n",
		link, acct.ReferralCount, acct.ReferralBonusEarned,
	)
	credits, err := h.accounts.ReferralSummary(ctx, sender.ID, 5)
	if err == nil && len(credits) > 0 {
		b.WriteString("\nRecent bonuses:\n")
		for _, cr := range credits {
			fmt.Fprintf(&b, "`%s` +%d\n", cr.CreatedAt.Format("01-02"), cr.Amount)
		}
	}
	b.WriteString("\nYou earn a bonus when a referred user makes their first qualifying purchase.")
	return c.Send(b.String(), tele.ModeMarkdown)
}

// HandleCancel abandons whatever flow the sender is in.
func (h *AccountHandler) HandleCancel(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	h.dialogs.Clear(sender.ID)
	return c.Send("✖️ Cancelled.", shop.BuildMainMenu())
}
