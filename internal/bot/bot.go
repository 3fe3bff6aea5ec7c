// Package bot provides the Telegram bot initialization, routing and
// handler registration.
package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-shop-bot/internal/config"
	"telegram-shop-bot/internal/dialog"
	"telegram-shop-bot/internal/handler"
	"telegram-shop-bot/internal/pkg/lock"
	"telegram-shop-bot/internal/service"
	"telegram-shop-bot/internal/shop"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot     *tele.Bot
	cfg     *config.Config
	dialogs *dialog.Engine

	accountHandler *handler.AccountHandler
	shopHandler    *handler.ShopHandler
	orderHandler   *handler.OrderHandler
	topupHandler   *handler.TopUpHandler
	adminHandler   *handler.AdminHandler
}

// Dependencies holds everything the bot handlers need.
type Dependencies struct {
	Config          *config.Config
	AccountService  *service.AccountService
	PurchaseService *service.PurchaseService
	TopUpService    *service.TopUpService
	AdminService    *service.AdminService
	Dialogs         *dialog.Engine
	UserLock        *lock.UserLock
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:     teleBot,
		cfg:     deps.Config,
		dialogs: deps.Dialogs,
	}

	notifier := handler.NewNotifier(teleBot, deps.Config.Admin.IDs)

	b.accountHandler = handler.NewAccountHandler(deps.AccountService, deps.Dialogs, teleBot.Me.Username)
	b.shopHandler = handler.NewShopHandler(deps.PurchaseService, deps.Dialogs, deps.UserLock, notifier)
	b.orderHandler = handler.NewOrderHandler(deps.PurchaseService, deps.Dialogs, deps.UserLock, notifier)
	b.topupHandler = handler.NewTopUpHandler(deps.TopUpService, deps.Dialogs, notifier)
	b.adminHandler = handler.NewAdminHandler(
		deps.AdminService, deps.AccountService, deps.Dialogs, notifier,
		deps.Config.Shop.HistoryRetention,
	)

	b.registerMiddleware(deps.AccountService, deps.AdminService)
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all global middleware.
func (b *Bot) registerMiddleware(accounts *service.AccountService, admin *service.AdminService) {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(LoggingMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(AccessMiddleware(b.cfg, accounts, admin))
}

// registerHandlers registers all command, text and callback handlers.
func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/cancel", b.accountHandler.HandleCancel)

	// Admin commands
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/admin_product", b.adminHandler.HandleProduct)
	adminGroup.Handle("/admin_delproduct", b.adminHandler.HandleDeleteProduct)
	adminGroup.Handle("/admin_codes", b.adminHandler.HandleCodes)
	adminGroup.Handle("/admin_removecodes", b.adminHandler.HandleRemoveCodes)
	adminGroup.Handle("/admin_qty", b.adminHandler.HandleQuantity)
	adminGroup.Handle("/admin_stock", b.adminHandler.HandleStock)
	adminGroup.Handle("/admin_bonus", b.adminHandler.HandleBonus)
	adminGroup.Handle("/admin_duelimit", b.adminHandler.HandleDueLimit)
	adminGroup.Handle("/admin_method", b.adminHandler.HandleMethod)
	adminGroup.Handle("/admin_delmethod", b.adminHandler.HandleDeleteMethod)
	adminGroup.Handle("/admin_ban", b.adminHandler.HandleBan)
	adminGroup.Handle("/admin_unban", b.adminHandler.HandleUnban)
	adminGroup.Handle("/admin_warn", b.adminHandler.HandleWarn)
	adminGroup.Handle("/admin_maintenance", b.adminHandler.HandleMaintenance)
	adminGroup.Handle("/admin_purge", b.adminHandler.HandlePurge)

	// Free text drives the menu buttons and the multi-step flows.
	b.bot.Handle(tele.OnText, b.handleText)

	// Top-up proof attachments.
	b.bot.Handle(tele.OnPhoto, b.topupHandler.HandleProofMedia)
	b.bot.Handle(tele.OnDocument, b.topupHandler.HandleProofMedia)

	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// handleText routes plain messages: menu buttons first, then whatever
// step the sender's dialog is at.
func (b *Bot) handleText(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	switch c.Text() {
	case shop.BtnCodes:
		b.dialogs.Clear(sender.ID)
		return b.shopHandler.HandleCodesMenu(c)
	case shop.BtnOrders:
		b.dialogs.Clear(sender.ID)
		return b.orderHandler.HandleOrdersMenu(c)
	case shop.BtnAddMoney:
		b.dialogs.Clear(sender.ID)
		return b.topupHandler.HandleAddMoney(c)
	case shop.BtnProfile:
		return b.accountHandler.HandleProfile(c)
	case shop.BtnHistory:
		return b.accountHandler.HandleHistory(c)
	case shop.BtnReferral:
		return b.accountHandler.HandleReferral(c)
	case shop.BtnLookup:
		return b.orderHandler.HandleLookupPrompt(c)
	case shop.BtnCancel:
		return b.accountHandler.HandleCancel(c)
	}

	state := b.dialogs.Get(sender.ID)
	switch state.Step {
	case dialog.StepOrderReference:
		return b.orderHandler.HandleReferenceText(c)
	case dialog.StepOrderLookup:
		return b.orderHandler.HandleLookupText(c, b.cfg.IsAdmin(sender.ID))
	case dialog.StepTopUpAmount:
		return b.topupHandler.HandleAmountText(c)
	case dialog.StepTopUpReference:
		return b.topupHandler.HandleReferenceText(c)
	case dialog.StepTopUpProof:
		return b.topupHandler.HandleProofText(c)
	case dialog.StepAdminCodesPaste:
		if b.cfg.IsAdmin(sender.ID) {
			return b.adminHandler.HandleCodesPaste(c)
		}
	case dialog.StepAdminRemovePaste:
		if b.cfg.IsAdmin(sender.ID) {
			return b.adminHandler.HandleRemoveCodesPaste(c)
		}
	}
	return nil
}

// handleCallback routes inline button presses by data prefix.
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	sender := c.Sender()
	if callback == nil || sender == nil {
		return nil
	}

	// Telebot v3 may prefix callback data with \f.
	data := strings.TrimPrefix(callback.Data, "\f")

	switch {
	case strings.HasPrefix(data, shop.CallbackBuy):
		return b.shopHandler.HandleBuyCallback(c, strings.TrimPrefix(data, shop.CallbackBuy))

	case strings.HasPrefix(data, shop.CallbackOrder):
		return b.orderHandler.HandleOrderCallback(c, strings.TrimPrefix(data, shop.CallbackOrder))

	case strings.HasPrefix(data, shop.CallbackMethod):
		return b.topupHandler.HandleMethodCallback(c, strings.TrimPrefix(data, shop.CallbackMethod))

	case data == shop.CallbackConfirm:
		switch b.dialogs.Get(sender.ID).Step {
		case dialog.StepCodeConfirm:
			return b.shopHandler.HandleConfirm(c)
		case dialog.StepOrderConfirm:
			return b.orderHandler.HandleConfirm(c)
		}
		return c.Respond(&tele.CallbackResponse{Text: "⚠️ Nothing to confirm."})

	case data == shop.CallbackCancel:
		b.dialogs.Clear(sender.ID)
		return c.Edit("✖️ Cancelled.")

	case strings.HasPrefix(data, "adm_"):
		if !b.cfg.IsAdmin(sender.ID) {
			log.Warn().Int64("user_id", sender.ID).Str("data", data).Msg("Non-admin pressed decision button")
			return c.Respond(&tele.CallbackResponse{Text: "❌ Admin access required.", ShowAlert: true})
		}
		return b.adminHandler.HandleDecisionCallback(c, data)
	}

	return nil
}

// Start starts the bot polling. Blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Str("bot", b.bot.Me.Username).Msg("Starting bot")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot")
	b.bot.Stop()
}
