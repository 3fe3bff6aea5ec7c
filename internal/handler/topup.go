package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-shop-bot/internal/dialog"
	"telegram-shop-bot/internal/service"
	"telegram-shop-bot/internal/shop"
)

// TopUpHandler drives the add-funds flow: amount, method, transaction
// reference, optional proof, then an admin review.
type TopUpHandler struct {
	topups   *service.TopUpService
	dialogs  *dialog.Engine
	notifier *Notifier
}

// NewTopUpHandler creates a new TopUpHandler.
func NewTopUpHandler(topups *service.TopUpService, dialogs *dialog.Engine, notifier *Notifier) *TopUpHandler {
	return &TopUpHandler{topups: topups, dialogs: dialogs, notifier: notifier}
}

// HandleAddMoney starts the flow by asking for the amount. The method list
// is checked first so the user is not walked into a dead end.
func (h *TopUpHandler) HandleAddMoney(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	if _, err := h.topups.Methods(ctx); err != nil {
		return c.Send(userMessage(err))
	}

	h.dialogs.Set(sender.ID, dialog.StepTopUpAmount, nil)
	return c.Send(fmt.Sprintf("💰 How much do you want to add? (minimum %d)", h.topups.MinAmount()))
}

// HandleAmountText consumes the typed amount and shows the method picker.
func (h *TopUpHandler) HandleAmountText(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	amount, err := strconv.ParseInt(strings.TrimSpace(c.Text()), 10, 64)
	if err != nil {
		return c.Send("❌ Please send a whole number.")
	}
	if err := h.topups.ValidateAmount(amount); err != nil {
		return c.Send(fmt.Sprintf("❌ Minimum top-up is %d.", h.topups.MinAmount()))
	}

	methods, err := h.topups.Methods(ctx)
	if err != nil {
		h.dialogs.Clear(sender.ID)
		return c.Send(userMessage(err))
	}

	h.dialogs.Advance(sender.ID, dialog.StepTopUpMethod, map[string]string{
		"amount": strconv.FormatInt(amount, 10),
	})
	return c.Send("💳 Pick a payment method:", shop.BuildMethodPanel(methods))
}

// HandleMethodCallback reacts to a method pick: shows where to send the
// money and asks for the transaction reference.
func (h *TopUpHandler) HandleMethodCallback(c tele.Context, methodName string) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	state := h.dialogs.Get(sender.ID)
	if state.Step != dialog.StepTopUpMethod {
		return c.Respond(&tele.CallbackResponse{Text: "⚠️ Start over with Add Money."})
	}

	methods, err := h.topups.Methods(ctx)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: userMessage(err), ShowAlert: true})
	}
	var details string
	for _, m := range methods {
		if m.Name == methodName {
			details = m.Details
			break
		}
	}
	if details == "" {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Unknown method.", ShowAlert: true})
	}

	h.dialogs.Advance(sender.ID, dialog.StepTopUpReference, map[string]string{"method": methodName})
	return c.Edit(fmt.Sprintf(
		"💳 *%s*\n\n%s\n\nSend %s of the amount, then reply with the transaction id.",
		methodName, details, state.Payload["amount"],
	), tele.ModeMarkdown)
}

// HandleReferenceText consumes the typed transaction reference and either
// asks for proof or submits immediately.
func (h *TopUpHandler) HandleReferenceText(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	txRef := strings.TrimSpace(c.Text())
	if txRef == "" {
		return c.Send("❌ Please send the transaction id.")
	}

	if h.topups.ProofRequired() {
		h.dialogs.Advance(sender.ID, dialog.StepTopUpProof, map[string]string{"tx_ref": txRef})
		return c.Send("📎 Now send a screenshot of the payment.")
	}

	h.dialogs.Advance(sender.ID, dialog.StepTopUpProof, map[string]string{"tx_ref": txRef})
	return h.submit(c, nil)
}

// HandleProofText reminds a user who typed text while the flow is waiting
// for an attachment.
func (h *TopUpHandler) HandleProofText(c tele.Context) error {
	return c.Send("📎 Please send a photo or file as proof.")
}

// HandleProofMedia consumes the proof attachment and submits the request.
func (h *TopUpHandler) HandleProofMedia(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	state := h.dialogs.Get(sender.ID)
	if state.Step != dialog.StepTopUpProof {
		return nil
	}

	var fileID string
	if p := c.Message().Photo; p != nil {
		fileID = p.FileID
	} else if d := c.Message().Document; d != nil {
		fileID = d.FileID
	}
	if fileID == "" {
		return c.Send("📎 Please send a photo or file as proof.")
	}
	return h.submit(c, &fileID)
}

func (h *TopUpHandler) submit(c tele.Context, proofRef *string) error {
	ctx := context.Background()
	sender := c.Sender()

	state := h.dialogs.Get(sender.ID)
	amount, _ := strconv.ParseInt(state.Payload["amount"], 10, 64)

	req := service.TopUpRequest{
		UserID:   sender.ID,
		Amount:   amount,
		Method:   state.Payload["method"],
		TxRef:    state.Payload["tx_ref"],
		ProofRef: proofRef,
	}
	h.dialogs.Clear(sender.ID)

	p, err := h.topups.Submit(ctx, req)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", sender.ID).Msg("Top-up submission failed")
		return c.Send(userMessage(err))
	}

	h.notifier.Broadcast(shop.FormatPendingPayment(p), shop.BuildPaymentDecisionPanel(p.PayID))

	return c.Send(fmt.Sprintf(
		"✅ Top-up request `%s` submitted for %d.\nYou will be notified once it is reviewed.",
		p.PayID, p.Amount,
	), tele.ModeMarkdown)
}
