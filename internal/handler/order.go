package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-shop-bot/internal/dialog"
	"telegram-shop-bot/internal/model"
	"telegram-shop-bot/internal/pkg/lock"
	"telegram-shop-bot/internal/service"
	"telegram-shop-bot/internal/shop"
)

// OrderHandler drives the bulk order flow: pick a product, supply the
// fulfillment reference, confirm, then wait for an admin decision.
type OrderHandler struct {
	purchases *service.PurchaseService
	dialogs   *dialog.Engine
	userLock  *lock.UserLock
	notifier  *Notifier
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(
	purchases *service.PurchaseService,
	dialogs *dialog.Engine,
	userLock *lock.UserLock,
	notifier *Notifier,
) *OrderHandler {
	return &OrderHandler{purchases: purchases, dialogs: dialogs, userLock: userLock, notifier: notifier}
}

// HandleOrdersMenu lists the bulk catalog.
func (h *OrderHandler) HandleOrdersMenu(c tele.Context) error {
	ctx := context.Background()

	products, err := h.purchases.ListProducts(ctx, model.CategoryBulk)
	if err != nil {
		return c.Send(errGeneric)
	}
	if len(products) == 0 {
		return c.Send("😔 No order products available right now.")
	}
	return c.Send("💎 *Orders*\n\nPick a package:", shop.BuildProductPanel(products, shop.CallbackOrder), tele.ModeMarkdown)
}

// HandleOrderCallback reacts to a package pick: checks stock and asks for
// the fulfillment reference.
func (h *OrderHandler) HandleOrderCallback(c tele.Context, productKey string) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	quote, err := h.purchases.QuoteProduct(ctx, productKey, model.CategoryBulk)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: userMessage(err), ShowAlert: true})
	}
	if quote.Stock <= 0 {
		return c.Respond(&tele.CallbackResponse{Text: "😔 Out of stock.", ShowAlert: true})
	}

	h.dialogs.Set(sender.ID, dialog.StepOrderReference, map[string]string{"product": productKey})
	return c.Edit(
		"🔢 Send the destination account id this order should be delivered to (digits only):",
	)
}

// HandleReferenceText consumes the typed fulfillment reference and arms
// the confirmation step.
func (h *OrderHandler) HandleReferenceText(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	reference := strings.TrimSpace(c.Text())
	if err := h.purchases.ValidateReference(reference); err != nil {
		return c.Send(userMessage(err))
	}

	state := h.dialogs.Get(sender.ID)
	productKey := state.Payload["product"]
	quote, err := h.purchases.QuoteProduct(ctx, productKey, model.CategoryBulk)
	if err != nil {
		h.dialogs.Clear(sender.ID)
		return c.Send(userMessage(err))
	}

	h.dialogs.Advance(sender.ID, dialog.StepOrderConfirm, map[string]string{"reference": reference})
	return c.Send(shop.FormatQuote(quote.Product, quote.Stock)+"\n\nDeliver to: `"+reference+"`",
		shop.BuildConfirmPanel(), tele.ModeMarkdown)
}

// HandleConfirm commits the armed order: funds are reserved immediately
// and the admins are notified with decision buttons.
func (h *OrderHandler) HandleConfirm(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	state := h.dialogs.Get(sender.ID)
	productKey := state.Payload["product"]
	reference := state.Payload["reference"]
	if state.Step != dialog.StepOrderConfirm || productKey == "" || reference == "" {
		return c.Respond(&tele.CallbackResponse{Text: "⚠️ Nothing to confirm."})
	}

	var res *service.OrderResult
	err := h.userLock.WithLockContext(ctx, sender.ID, lockTimeout, func() error {
		var err error
		res, err = h.purchases.PlaceOrder(ctx, sender.ID, productKey, reference)
		return err
	})
	h.dialogs.Clear(sender.ID)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", sender.ID).Str("product", productKey).Msg("Order placement failed")
		return c.Edit(userMessage(err))
	}

	h.notifier.Broadcast(shop.FormatPendingOrder(res.Order), shop.BuildOrderDecisionPanel(res.Order.OrderID))

	return c.Edit(shop.FormatOrderReceipt(res.Order), tele.ModeMarkdown)
}

// HandleLookupPrompt lists the sender's open orders and arms the lookup
// step for a specific id.
func (h *OrderHandler) HandleLookupPrompt(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	var b strings.Builder
	pending, err := h.purchases.PendingOrders(ctx, sender.ID, 5)
	if err == nil && len(pending) > 0 {
		b.WriteString("⏳ Your open orders:\n")
		for _, o := range pending {
			fmt.Fprintf(&b, "`%s` %s (%d💰)\n", o.OrderID, o.ProductName, o.Price)
		}
		b.WriteString("\n")
	}
	b.WriteString("🔎 Send the order id (ORD-...):")

	h.dialogs.Set(sender.ID, dialog.StepOrderLookup, nil)
	return c.Send(b.String(), tele.ModeMarkdown)
}

// HandleLookupText resolves a typed order id for its owner.
func (h *OrderHandler) HandleLookupText(c tele.Context, isAdmin bool) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	orderID := strings.ToUpper(strings.TrimSpace(c.Text()))
	h.dialogs.Clear(sender.ID)

	o, err := h.purchases.LookupOrder(ctx, orderID, sender.ID, isAdmin)
	if err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(shop.FormatOrderStatus(o), tele.ModeMarkdown)
}
