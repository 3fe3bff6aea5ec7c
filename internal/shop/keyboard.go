// Package shop builds the Telegram panels and messages the purchase
// flows present to buyers and admins.
package shop

import (
	"fmt"

	tele "gopkg.in/telebot.v3"

	"telegram-shop-bot/internal/model"
)

// Callback data prefixes.
const (
	CallbackBuy     = "buy:"    // buy:<product_key>       discrete item picked
	CallbackOrder   = "order:"  // order:<product_key>     bulk item picked
	CallbackMethod  = "method:" // method:<name>           top-up method picked
	CallbackConfirm = "confirm" // commit the pending flow
	CallbackCancel  = "cancel"  // abandon the pending flow

	CallbackApproveOrder   = "adm_ord_ok:" // adm_ord_ok:<order_id>
	CallbackRejectOrder    = "adm_ord_no:" // adm_ord_no:<order_id>
	CallbackApprovePayment = "adm_pay_ok:" // adm_pay_ok:<pay_id>
	CallbackRejectPayment  = "adm_pay_no:" // adm_pay_no:<pay_id>
)

// Main menu button labels. The reply keyboard sends these as plain text.
const (
	BtnCodes    = "🎟 Codes"
	BtnOrders   = "💎 Orders"
	BtnAddMoney = "💰 Add Money"
	BtnProfile  = "👤 Profile"
	BtnHistory  = "📜 History"
	BtnReferral = "🤝 Referral"
	BtnLookup   = "🔎 Track Order"
	BtnCancel   = "✖️ Cancel"
)

// BuildMainMenu creates the persistent reply keyboard shown after /start.
func BuildMainMenu() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true}
	markup.Reply(
		markup.Row(markup.Text(BtnCodes), markup.Text(BtnOrders)),
		markup.Row(markup.Text(BtnAddMoney), markup.Text(BtnProfile)),
		markup.Row(markup.Text(BtnHistory), markup.Text(BtnReferral)),
		markup.Row(markup.Text(BtnLookup), markup.Text(BtnCancel)),
	)
	return markup
}

// BuildProductPanel lists products of one category as inline buttons, two
// per row, carrying the product key in the callback data.
func BuildProductPanel(products []*model.Product, prefix string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	var rows []tele.Row
	var currentRow []tele.Btn
	for i, p := range products {
		btn := markup.Data(fmt.Sprintf("%s (%d💰)", p.Name, p.Price), prefix+p.Key)
		currentRow = append(currentRow, btn)
		if len(currentRow) == 2 || i == len(products)-1 {
			rows = append(rows, markup.Row(currentRow...))
			currentRow = nil
		}
	}
	rows = append(rows, markup.Row(markup.Data("✖️ Cancel", CallbackCancel)))

	markup.Inline(rows...)
	return markup
}

// BuildConfirmPanel creates the confirm/cancel pair shown before a
// purchase or order commits.
func BuildConfirmPanel() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.Data("✅ Confirm", CallbackConfirm),
		markup.Data("✖️ Cancel", CallbackCancel),
	))
	return markup
}

// BuildMethodPanel lists payment methods for the top-up flow.
func BuildMethodPanel(methods []model.PaymentMethod) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	var rows []tele.Row
	for _, m := range methods {
		rows = append(rows, markup.Row(markup.Data(m.Name, CallbackMethod+m.Name)))
	}
	rows = append(rows, markup.Row(markup.Data("✖️ Cancel", CallbackCancel)))

	markup.Inline(rows...)
	return markup
}

// BuildOrderDecisionPanel creates the approve/reject pair attached to the
// admin notification for a pending order.
func BuildOrderDecisionPanel(orderID string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.Data("✅ Approve", CallbackApproveOrder+orderID),
		markup.Data("❌ Reject", CallbackRejectOrder+orderID),
	))
	return markup
}

// BuildPaymentDecisionPanel creates the approve/reject pair attached to
// the admin notification for a pending top-up.
func BuildPaymentDecisionPanel(payID string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.Data("✅ Approve", CallbackApprovePayment+payID),
		markup.Data("❌ Reject", CallbackRejectPayment+payID),
	))
	return markup
}

// FormatProfile renders the account card.
func FormatProfile(a *model.Account) string {
	return fmt.Sprintf(
		"👤 *%s* (`%d`)\n\n"+
			"💰 Balance: %d\n"+
			"🎁 Bonus: %d\n"+
			"📉 Due: %d / %d\n"+
			"🛒 Total purchased: %d (%s)\n"+
			"🤝 Referrals: %d (earned %d)",
		a.Name, a.UserID,
		a.Balance, a.Bonus, a.Due, a.DueLimit,
		a.TotalPurchase, spendTier(a.TotalPurchase), a.ReferralCount, a.ReferralBonusEarned,
	)
}

// spendTier buckets lifetime spend into the loyalty label shown on the
// profile card.
func spendTier(total int64) string {
	switch {
	case total >= 10000:
		return "💎 VIP"
	case total >= 2000:
		return "🥇 Gold"
	case total >= 500:
		return "🥈 Silver"
	default:
		return "🥉 Bronze"
	}
}

// FormatQuote renders the pre-purchase confirmation message.
func FormatQuote(p *model.Product, stock int64) string {
	return fmt.Sprintf(
		"🛒 *%s*\n\nPrice: %d💰\nIn stock: %d\n\nConfirm purchase?",
		p.Name, p.Price, stock,
	)
}

// FormatOrderReceipt renders the buyer-side receipt for a placed order.
func FormatOrderReceipt(o *model.Order) string {
	return fmt.Sprintf(
		"📦 Order `%s` placed.\n\n%s → `%s`\nPaid: %d💰\nStatus: %s\n\n"+
			"You will be notified once an admin reviews it.",
		o.OrderID, o.ProductName, o.Reference, o.Price, o.Status,
	)
}

// FormatOrderStatus renders the lookup view of an order.
func FormatOrderStatus(o *model.Order) string {
	return fmt.Sprintf(
		"📦 Order `%s`\n%s → `%s`\nPrice: %d💰\nStatus: %s\nPlaced: %s",
		o.OrderID, o.ProductName, o.Reference, o.Price, o.Status,
		o.CreatedAt.Format("2006-01-02 15:04"),
	)
}

// FormatPendingOrder renders the admin notification for a new order.
func FormatPendingOrder(o *model.Order) string {
	return fmt.Sprintf(
		"📦 New order `%s`\nBuyer: `%d`\n%s → `%s`\nPrice: %d💰",
		o.OrderID, o.UserID, o.ProductName, o.Reference, o.Price,
	)
}

// FormatPendingPayment renders the admin notification for a new top-up.
func FormatPendingPayment(p *model.Payment) string {
	return fmt.Sprintf(
		"💰 New top-up `%s`\nUser: `%d`\nAmount: %d\nMethod: %s\nTx ref: `%s`",
		p.PayID, p.UserID, p.Amount, p.Method, p.TxRef,
	)
}
