// Package main is the entry point for the Telegram shop bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"telegram-shop-bot/internal/bot"
	"telegram-shop-bot/internal/config"
	"telegram-shop-bot/internal/dialog"
	"telegram-shop-bot/internal/pkg/db"
	"telegram-shop-bot/internal/pkg/lock"
	"telegram-shop-bot/internal/repository"
	"telegram-shop-bot/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Repositories
	accountRepo := repository.NewAccountRepository(dbPool.Pool)
	catalogRepo := repository.NewCatalogRepository(dbPool.Pool)
	orderRepo := repository.NewOrderRepository(dbPool.Pool)
	paymentRepo := repository.NewPaymentRepository(dbPool.Pool)
	historyRepo := repository.NewHistoryRepository(dbPool.Pool)
	referralRepo := repository.NewReferralRepository(dbPool.Pool)

	// Services
	referralService := service.NewReferralService(
		accountRepo,
		referralRepo,
		cfg.Referral.Enabled,
		cfg.Referral.Bonus,
		cfg.Referral.MinPurchase,
	)
	accountService := service.NewAccountService(accountRepo, historyRepo, referralService)
	purchaseService := service.NewPurchaseService(
		dbPool.Pool,
		accountRepo,
		catalogRepo,
		orderRepo,
		historyRepo,
		referralService,
		cfg.Shop.LowStockThreshold,
	)
	topUpService := service.NewTopUpService(
		accountRepo,
		paymentRepo,
		historyRepo,
		cfg.TopUp.MinAmount,
		cfg.TopUp.ProofRequired,
	)
	adminService := service.NewAdminService(
		dbPool.Pool,
		accountRepo,
		catalogRepo,
		orderRepo,
		paymentRepo,
		historyRepo,
		cfg.Shop.LowStockThreshold,
		cfg.Shop.Maintenance,
	)

	userLock := lock.NewUserLock()
	dialogs := dialog.NewEngine()

	deps := &bot.Dependencies{
		Config:          cfg,
		AccountService:  accountService,
		PurchaseService: purchaseService,
		TopUpService:    topUpService,
		AdminService:    adminService,
		Dialogs:         dialogs,
		UserLock:        userLock,
	}

	telegramBot, err := bot.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Periodic history cleanup keeps the activity log short-lived.
	go runHistoryCleaner(ctx, historyRepo, cfg.Shop.HistoryRetention)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// runHistoryCleaner purges expired history entries once per hour.
func runHistoryCleaner(ctx context.Context, history *repository.HistoryRepository, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := history.Purge(ctx, retention)
			if err != nil {
				log.Error().Err(err).Msg("History purge failed")
				continue
			}
			if removed > 0 {
				log.Info().Int64("removed", removed).Msg("History purged")
			}
		}
	}
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: accounts table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			user_id BIGINT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			balance BIGINT NOT NULL DEFAULT 0,
			bonus BIGINT NOT NULL DEFAULT 0,
			due BIGINT NOT NULL DEFAULT 0,
			due_limit BIGINT NOT NULL DEFAULT 0,
			total_purchase BIGINT NOT NULL DEFAULT 0,
			referrer_id BIGINT,
			referral_count INT NOT NULL DEFAULT 0,
			referral_bonus_earned BIGINT NOT NULL DEFAULT 0,
			banned BOOLEAN NOT NULL DEFAULT FALSE,
			warnings INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_active_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: accounts table created")

	// Migration 2: products and stock
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			key VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			price BIGINT NOT NULL,
			category VARCHAR(16) NOT NULL
		);
		CREATE TABLE IF NOT EXISTS codes (
			id BIGSERIAL PRIMARY KEY,
			product_key VARCHAR(64) NOT NULL,
			value TEXT NOT NULL,
			consumed BOOLEAN NOT NULL DEFAULT FALSE,
			consumed_by BIGINT,
			consumed_at TIMESTAMPTZ,
			UNIQUE (product_key, value)
		);
		CREATE INDEX IF NOT EXISTS idx_codes_available ON codes(product_key, id) WHERE NOT consumed;
		CREATE TABLE IF NOT EXISTS bulk_stock (
			product_key VARCHAR(64) PRIMARY KEY,
			quantity BIGINT NOT NULL DEFAULT 0
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: catalog tables created")

	// Migration 3: orders and payments
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS orders (
			order_id VARCHAR(32) PRIMARY KEY,
			user_id BIGINT NOT NULL,
			product_key VARCHAR(64) NOT NULL,
			product_name VARCHAR(255) NOT NULL,
			price BIGINT NOT NULL,
			reference VARCHAR(32) NOT NULL,
			status VARCHAR(16) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders(user_id, status, created_at DESC);
		CREATE TABLE IF NOT EXISTS payments (
			pay_id VARCHAR(32) PRIMARY KEY,
			user_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			method VARCHAR(64) NOT NULL,
			tx_ref TEXT NOT NULL,
			proof_ref TEXT,
			status VARCHAR(16) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS payment_methods (
			name VARCHAR(64) PRIMARY KEY,
			details TEXT NOT NULL
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: order and payment tables created")

	// Migration 4: history and referral credits
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS history (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			kind VARCHAR(16) NOT NULL,
			text TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_history_user_time ON history(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_history_time ON history(created_at);
		CREATE TABLE IF NOT EXISTS referral_credits (
			referrer_id BIGINT NOT NULL,
			buyer_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (referrer_id, buyer_id)
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: history and referral tables created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
