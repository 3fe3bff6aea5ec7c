package handler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-shop-bot/internal/dialog"
	"telegram-shop-bot/internal/model"
	"telegram-shop-bot/internal/pkg/lock"
	"telegram-shop-bot/internal/service"
	"telegram-shop-bot/internal/shop"
)

// ShopHandler drives the discrete purchase flow: pick a product, confirm,
// receive a code.
type ShopHandler struct {
	purchases *service.PurchaseService
	dialogs   *dialog.Engine
	userLock  *lock.UserLock
	notifier  *Notifier
}

// NewShopHandler creates a new ShopHandler.
func NewShopHandler(
	purchases *service.PurchaseService,
	dialogs *dialog.Engine,
	userLock *lock.UserLock,
	notifier *Notifier,
) *ShopHandler {
	return &ShopHandler{purchases: purchases, dialogs: dialogs, userLock: userLock, notifier: notifier}
}

// HandleCodesMenu lists the discrete catalog.
func (h *ShopHandler) HandleCodesMenu(c tele.Context) error {
	ctx := context.Background()

	products, err := h.purchases.ListProducts(ctx, model.CategoryDiscrete)
	if err != nil {
		return c.Send(errGeneric)
	}
	if len(products) == 0 {
		return c.Send("😔 No code products available right now.")
	}
	return c.Send("🎟 *Codes*\n\nPick a product:", shop.BuildProductPanel(products, shop.CallbackBuy), tele.ModeMarkdown)
}

// HandleBuyCallback reacts to a product pick: shows the live quote and
// arms the confirmation step.
func (h *ShopHandler) HandleBuyCallback(c tele.Context, productKey string) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	quote, err := h.purchases.QuoteProduct(ctx, productKey, model.CategoryDiscrete)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: userMessage(err), ShowAlert: true})
	}
	if quote.Stock <= 0 {
		return c.Respond(&tele.CallbackResponse{Text: "😔 Out of stock.", ShowAlert: true})
	}

	h.dialogs.Set(sender.ID, dialog.StepCodeConfirm, map[string]string{"product": productKey})
	return c.Edit(shop.FormatQuote(quote.Product, quote.Stock), shop.BuildConfirmPanel(), tele.ModeMarkdown)
}

// HandleConfirm commits the armed discrete purchase. The per-user lock
// serializes double-taps on the confirm button; the store re-validates
// stock and funds regardless.
func (h *ShopHandler) HandleConfirm(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	state := h.dialogs.Get(sender.ID)
	productKey := state.Payload["product"]
	if state.Step != dialog.StepCodeConfirm || productKey == "" {
		return c.Respond(&tele.CallbackResponse{Text: "⚠️ Nothing to confirm."})
	}

	var res *service.DiscreteResult
	err := h.userLock.WithLockContext(ctx, sender.ID, lockTimeout, func() error {
		var err error
		res, err = h.purchases.BuyDiscrete(ctx, sender.ID, productKey)
		return err
	})
	h.dialogs.Clear(sender.ID)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", sender.ID).Str("product", productKey).Msg("Discrete purchase failed")
		return c.Edit(userMessage(err))
	}

	if res.LowStock {
		h.notifier.Broadcast(fmt.Sprintf(
			"⚠️ Low stock: *%s* has %d codes left.", res.Product.Name, res.Remaining,
		), nil)
	}

	msg := fmt.Sprintf(
		"✅ *%s*\n\nYour code:\n`%s`\n\n💰 Balance: %d → %d\n📉 Due: %d → %d",
		res.Product.Name, res.Code,
		res.OldBalance, res.NewBalance,
		res.OldDue, res.NewDue,
	)
	return c.Edit(msg, tele.ModeMarkdown)
}
