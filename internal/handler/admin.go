package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"telegram-shop-bot/internal/dialog"
	"telegram-shop-bot/internal/model"
	"telegram-shop-bot/internal/service"
	"telegram-shop-bot/internal/shop"
)

// AdminHandler exposes catalog, account and decision administration. All
// of it sits behind the admin middleware; these handlers trust the sender.
type AdminHandler struct {
	admin     *service.AdminService
	accounts  *service.AccountService
	dialogs   *dialog.Engine
	notifier  *Notifier
	retention time.Duration
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	admin *service.AdminService,
	accounts *service.AccountService,
	dialogs *dialog.Engine,
	notifier *Notifier,
	retention time.Duration,
) *AdminHandler {
	return &AdminHandler{admin: admin, accounts: accounts, dialogs: dialogs, notifier: notifier, retention: retention}
}

// HandleDecisionCallback routes an approve/reject button press. The first
// decision wins; every later press reports that to the pressing admin.
func (h *AdminHandler) HandleDecisionCallback(c tele.Context, data string) error {
	ctx := context.Background()

	switch {
	case strings.HasPrefix(data, shop.CallbackApproveOrder):
		return h.decideOrder(ctx, c, strings.TrimPrefix(data, shop.CallbackApproveOrder), true)
	case strings.HasPrefix(data, shop.CallbackRejectOrder):
		return h.decideOrder(ctx, c, strings.TrimPrefix(data, shop.CallbackRejectOrder), false)
	case strings.HasPrefix(data, shop.CallbackApprovePayment):
		return h.decidePayment(ctx, c, strings.TrimPrefix(data, shop.CallbackApprovePayment), true)
	case strings.HasPrefix(data, shop.CallbackRejectPayment):
		return h.decidePayment(ctx, c, strings.TrimPrefix(data, shop.CallbackRejectPayment), false)
	}
	return nil
}

func (h *AdminHandler) decideOrder(ctx context.Context, c tele.Context, orderID string, approve bool) error {
	var (
		res *service.OrderDecision
		err error
	)
	if approve {
		res, err = h.admin.ApproveOrder(ctx, orderID)
	} else {
		res, err = h.admin.RejectOrder(ctx, orderID)
	}
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: userMessage(err), ShowAlert: true})
	}

	o := res.Order
	if approve {
		h.notifier.NotifyUser(o.UserID, fmt.Sprintf(
			"✅ Order `%s` approved! %s is on its way to `%s`.", o.OrderID, o.ProductName, o.Reference))
		if res.LowStock {
			h.notifier.Broadcast(fmt.Sprintf(
				"⚠️ Low stock: *%s* has %d units left.", o.ProductName, res.Remaining), nil)
		}
	} else {
		h.notifier.NotifyUser(o.UserID, fmt.Sprintf(
			"❌ Order `%s` was rejected. %d has been refunded to your balance.", o.OrderID, o.Price))
	}

	verdict := "rejected ❌"
	if approve {
		verdict = "approved ✅"
	}
	return c.Edit(fmt.Sprintf("%s\n\n*Decision:* %s by %s",
		shop.FormatPendingOrder(o), verdict, c.Sender().FirstName), tele.ModeMarkdown)
}

func (h *AdminHandler) decidePayment(ctx context.Context, c tele.Context, payID string, approve bool) error {
	var (
		res *service.PaymentDecision
		err error
	)
	if approve {
		res, err = h.admin.ApprovePayment(ctx, payID)
	} else {
		res, err = h.admin.RejectPayment(ctx, payID)
	}
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: userMessage(err), ShowAlert: true})
	}

	p := res.Payment
	if approve {
		h.notifier.NotifyUser(p.UserID, fmt.Sprintf(
			"✅ Top-up `%s` approved. Balance: %d, due: %d.", p.PayID, res.NewBalance, res.NewDue))
	} else {
		h.notifier.NotifyUser(p.UserID, fmt.Sprintf(
			"❌ Top-up `%s` was rejected. Contact support if you believe this is a mistake.", p.PayID))
	}

	verdict := "rejected ❌"
	if approve {
		verdict = "approved ✅"
	}
	return c.Edit(fmt.Sprintf("%s\n\n*Decision:* %s by %s",
		shop.FormatPendingPayment(p), verdict, c.Sender().FirstName), tele.ModeMarkdown)
}

// HandleProduct creates or updates a catalog entry.
// Usage: /admin_product key|name|price|DISCRETE|BULK
func (h *AdminHandler) HandleProduct(c tele.Context) error {
	ctx := context.Background()

	parts := strings.Split(c.Message().Payload, "|")
	if len(parts) != 4 {
		return c.Send("Usage: /admin_product key|name|price|DISCRETE or BULK")
	}
	price, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
	if err != nil {
		return c.Send("❌ Price must be a whole number.")
	}

	p := &model.Product{
		Key:      strings.TrimSpace(parts[0]),
		Name:     strings.TrimSpace(parts[1]),
		Price:    price,
		Category: model.Category(strings.ToUpper(strings.TrimSpace(parts[3]))),
	}
	if err := h.admin.UpsertProduct(ctx, p); err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(fmt.Sprintf("✅ Product `%s` saved.", p.Key), tele.ModeMarkdown)
}

// HandleDeleteProduct removes a catalog entry and everything under it.
// Usage: /admin_delproduct key
func (h *AdminHandler) HandleDeleteProduct(c tele.Context) error {
	ctx := context.Background()

	key := strings.TrimSpace(c.Message().Payload)
	if key == "" {
		return c.Send("Usage: /admin_delproduct key")
	}
	if err := h.admin.DeleteProduct(ctx, key); err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(fmt.Sprintf("🗑 Product `%s` deleted.", key), tele.ModeMarkdown)
}

// HandleCodes starts a code ingestion: the next message from this admin is
// treated as the batch, one code per line.
// Usage: /admin_codes key
func (h *AdminHandler) HandleCodes(c tele.Context) error {
	sender := c.Sender()
	key := strings.TrimSpace(c.Message().Payload)
	if key == "" {
		return c.Send("Usage: /admin_codes key")
	}
	h.dialogs.Set(sender.ID, dialog.StepAdminCodesPaste, map[string]string{"product": key})
	return c.Send("📥 Paste the codes, one per line:")
}

// HandleCodesPaste ingests the pasted batch.
func (h *AdminHandler) HandleCodesPaste(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()

	state := h.dialogs.Get(sender.ID)
	h.dialogs.Clear(sender.ID)

	values := splitLines(c.Text())
	if len(values) == 0 {
		return c.Send("❌ No codes found in that message.")
	}

	inserted, skipped, err := h.admin.IngestCodes(ctx, state.Payload["product"], values)
	if err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(fmt.Sprintf("✅ Ingested %d codes (%d duplicates skipped).", inserted, skipped))
}

// HandleRemoveCodes starts a code removal batch.
// Usage: /admin_removecodes key
func (h *AdminHandler) HandleRemoveCodes(c tele.Context) error {
	sender := c.Sender()
	key := strings.TrimSpace(c.Message().Payload)
	if key == "" {
		return c.Send("Usage: /admin_removecodes key")
	}
	h.dialogs.Set(sender.ID, dialog.StepAdminRemovePaste, map[string]string{"product": key})
	return c.Send("📤 Paste the codes to remove, one per line:")
}

// HandleRemoveCodesPaste removes the pasted unconsumed codes.
func (h *AdminHandler) HandleRemoveCodesPaste(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()

	state := h.dialogs.Get(sender.ID)
	h.dialogs.Clear(sender.ID)

	values := splitLines(c.Text())
	if len(values) == 0 {
		return c.Send("❌ No codes found in that message.")
	}

	removed, err := h.admin.RemoveCodes(ctx, state.Payload["product"], values)
	if err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(fmt.Sprintf("✅ Removed %d unconsumed codes.", removed))
}

// HandleQuantity shifts a bulk product's stock level.
// Usage: /admin_qty key delta   (delta may be negative)
func (h *AdminHandler) HandleQuantity(c tele.Context) error {
	ctx := context.Background()

	args := strings.Fields(c.Message().Payload)
	if len(args) != 2 {
		return c.Send("Usage: /admin_qty key delta")
	}
	delta, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return c.Send("❌ Delta must be a whole number.")
	}

	level, err := h.admin.AdjustQuantity(ctx, args[0], delta)
	if err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(fmt.Sprintf("✅ `%s` stock is now %d.", args[0], level), tele.ModeMarkdown)
}

// HandleStock shows the sellable stock for a product.
// Usage: /admin_stock key
func (h *AdminHandler) HandleStock(c tele.Context) error {
	ctx := context.Background()

	key := strings.TrimSpace(c.Message().Payload)
	if key == "" {
		return c.Send("Usage: /admin_stock key")
	}
	level, err := h.admin.StockLevel(ctx, key)
	if err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(fmt.Sprintf("📦 `%s`: %d in stock.", key, level), tele.ModeMarkdown)
}

// HandleBonus credits promotional funds to a user.
// Usage: /admin_bonus user_id amount
func (h *AdminHandler) HandleBonus(c tele.Context) error {
	ctx := context.Background()

	userID, amount, err := parseUserAmount(c.Message().Payload)
	if err != nil {
		return c.Send("Usage: /admin_bonus user_id amount")
	}
	if err := h.admin.GrantBonus(ctx, userID, amount); err != nil {
		return c.Send(userMessage(err))
	}
	h.notifier.NotifyUser(userID, fmt.Sprintf("🎁 You received a bonus of %d!", amount))
	return c.Send(fmt.Sprintf("✅ Bonus of %d granted to `%d`.", amount, userID), tele.ModeMarkdown)
}

// HandleDueLimit changes a user's credit ceiling.
// Usage: /admin_duelimit user_id limit
func (h *AdminHandler) HandleDueLimit(c tele.Context) error {
	ctx := context.Background()

	userID, limit, err := parseUserAmount(c.Message().Payload)
	if err != nil {
		return c.Send("Usage: /admin_duelimit user_id limit")
	}
	if err := h.admin.SetDueLimit(ctx, userID, limit); err != nil {
		return c.Send("❌ Refused: the limit cannot drop below the outstanding due.")
	}
	return c.Send(fmt.Sprintf("✅ Due limit for `%d` set to %d.", userID, limit), tele.ModeMarkdown)
}

// HandleMethod creates or updates a payment method.
// Usage: /admin_method name|details
func (h *AdminHandler) HandleMethod(c tele.Context) error {
	ctx := context.Background()

	parts := strings.SplitN(c.Message().Payload, "|", 2)
	if len(parts) != 2 {
		return c.Send("Usage: /admin_method name|details")
	}
	name := strings.TrimSpace(parts[0])
	details := strings.TrimSpace(parts[1])
	if name == "" || details == "" {
		return c.Send("Usage: /admin_method name|details")
	}
	if err := h.admin.UpsertMethod(ctx, name, details); err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(fmt.Sprintf("✅ Method `%s` saved.", name), tele.ModeMarkdown)
}

// HandleDeleteMethod removes a payment method.
// Usage: /admin_delmethod name
func (h *AdminHandler) HandleDeleteMethod(c tele.Context) error {
	ctx := context.Background()

	name := strings.TrimSpace(c.Message().Payload)
	if name == "" {
		return c.Send("Usage: /admin_delmethod name")
	}
	if err := h.admin.DeleteMethod(ctx, name); err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(fmt.Sprintf("🗑 Method `%s` deleted.", name), tele.ModeMarkdown)
}

// HandleMaintenance toggles the shop gate.
// Usage: /admin_maintenance on|off
func (h *AdminHandler) HandleMaintenance(c tele.Context) error {
	switch strings.ToLower(strings.TrimSpace(c.Message().Payload)) {
	case "on":
		h.admin.SetMaintenance(true)
		return c.Send("🔒 Maintenance mode ON. Non-admin traffic is paused.")
	case "off":
		h.admin.SetMaintenance(false)
		return c.Send("🔓 Maintenance mode OFF.")
	default:
		return c.Send("Usage: /admin_maintenance on|off")
	}
}

// HandlePurge drops history entries past the retention window.
func (h *AdminHandler) HandlePurge(c tele.Context) error {
	ctx := context.Background()

	removed, err := h.admin.PurgeHistory(ctx, h.retention)
	if err != nil {
		return c.Send(errGeneric)
	}
	return c.Send(fmt.Sprintf("🧹 Purged %d history entries.", removed))
}

// HandleBan suspends an account.
// Usage: /admin_ban user_id
func (h *AdminHandler) HandleBan(c tele.Context) error {
	ctx := context.Background()

	userID, err := strconv.ParseInt(strings.TrimSpace(c.Message().Payload), 10, 64)
	if err != nil {
		return c.Send("Usage: /admin_ban user_id")
	}
	if err := h.accounts.Ban(ctx, userID); err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(fmt.Sprintf("🚫 `%d` banned.", userID), tele.ModeMarkdown)
}

// HandleUnban lifts a suspension.
// Usage: /admin_unban user_id
func (h *AdminHandler) HandleUnban(c tele.Context) error {
	ctx := context.Background()

	userID, err := strconv.ParseInt(strings.TrimSpace(c.Message().Payload), 10, 64)
	if err != nil {
		return c.Send("Usage: /admin_unban user_id")
	}
	if err := h.accounts.Unban(ctx, userID); err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(fmt.Sprintf("✅ `%d` unbanned.", userID), tele.ModeMarkdown)
}

// HandleWarn records a warning against an account and notifies the user.
// Usage: /admin_warn user_id
func (h *AdminHandler) HandleWarn(c tele.Context) error {
	ctx := context.Background()

	userID, err := strconv.ParseInt(strings.TrimSpace(c.Message().Payload), 10, 64)
	if err != nil {
		return c.Send("Usage: /admin_warn user_id")
	}
	count, err := h.accounts.Warn(ctx, userID)
	if err != nil {
		return c.Send(userMessage(err))
	}
	h.notifier.NotifyUser(userID, fmt.Sprintf("⚠️ You received a warning (%d total). Repeated violations lead to a ban.", count))
	return c.Send(fmt.Sprintf("⚠️ `%d` now has %d warnings.", userID, count), tele.ModeMarkdown)
}

func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func parseUserAmount(payload string) (int64, int64, error) {
	args := strings.Fields(payload)
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("expected two arguments")
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return userID, amount, nil
}
