// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"telegram-shop-bot/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool.
// Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = applySchema(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// applySchema creates the tables the repositories expect.
func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
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
		CREATE TABLE IF NOT EXISTS bulk_stock (
			product_key VARCHAR(64) PRIMARY KEY,
			quantity BIGINT NOT NULL DEFAULT 0
		);
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
		CREATE TABLE IF NOT EXISTS history (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			kind VARCHAR(16) NOT NULL,
			text TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS referral_credits (
			referrer_id BIGINT NOT NULL,
			buyer_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (referrer_id, buyer_id)
		);
	`)
	return err
}

// seedAccount creates an account and forces its ledger fields.
func seedAccount(t *testing.T, pool *pgxpool.Pool, userID, balance, due, dueLimit int64) {
	t.Helper()
	ctx := context.Background()

	repo := NewAccountRepository(pool)
	_, err := repo.Ensure(ctx, userID, "tester")
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		`UPDATE accounts SET balance = $2, due = $3, due_limit = $4 WHERE user_id = $1`,
		userID, balance, due, dueLimit)
	require.NoError(t, err)
}

// ============================================================================
// AccountRepository
// ============================================================================

func TestAccountRepository_Ensure(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	acct, err := repo.Ensure(ctx, 100, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), acct.UserID)
	assert.Equal(t, "alice", acct.Name)
	assert.Equal(t, int64(0), acct.Balance)
	assert.Nil(t, acct.ReferrerID)

	// Second contact updates the name, keeps the ledger
	acct, err = repo.Ensure(ctx, 100, "alice_renamed")
	require.NoError(t, err)
	assert.Equal(t, "alice_renamed", acct.Name)
	assert.Equal(t, int64(0), acct.Balance)
}

func TestAccountRepository_ApplySettlement(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	// Balance fully covers the price
	seedAccount(t, pool, 1, 500, 0, 100)
	err := repo.ApplySettlement(ctx, 1, 300, 0, 300)
	require.NoError(t, err)

	acct, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(200), acct.Balance)
	assert.Equal(t, int64(0), acct.Due)
	assert.Equal(t, int64(300), acct.TotalPurchase)

	// Remainder goes to due within the limit
	seedAccount(t, pool, 2, 100, 0, 100)
	err = repo.ApplySettlement(ctx, 2, 100, 50, 150)
	require.NoError(t, err)

	acct, err = repo.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), acct.Balance)
	assert.Equal(t, int64(50), acct.Due)

	// Due limit would be exceeded: nothing changes
	seedAccount(t, pool, 3, 100, 80, 100)
	err = repo.ApplySettlement(ctx, 3, 100, 50, 150)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	acct, err = repo.GetByID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(100), acct.Balance)
	assert.Equal(t, int64(80), acct.Due)

	// Balance would go negative: nothing changes
	seedAccount(t, pool, 4, 50, 0, 0)
	err = repo.ApplySettlement(ctx, 4, 100, 0, 100)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestAccountRepository_CreditTopUp(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	// Credit pays due down first
	seedAccount(t, pool, 1, 0, 80, 100)
	balance, due, err := repo.CreditTopUp(ctx, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)
	assert.Equal(t, int64(0), due)

	// Credit smaller than due leaves the rest outstanding
	seedAccount(t, pool, 2, 0, 80, 100)
	balance, due, err = repo.CreditTopUp(ctx, 2, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
	assert.Equal(t, int64(30), due)

	// No due at all
	seedAccount(t, pool, 3, 10, 0, 0)
	balance, due, err = repo.CreditTopUp(ctx, 3, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)
	assert.Equal(t, int64(0), due)
}

func TestAccountRepository_SetDueLimit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	seedAccount(t, pool, 1, 0, 60, 100)

	// Raising is fine
	require.NoError(t, repo.SetDueLimit(ctx, 1, 200))

	// Lowering below the outstanding due is refused
	err := repo.SetDueLimit(ctx, 1, 50)
	assert.Error(t, err)

	acct, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(200), acct.DueLimit)
}

func TestAccountRepository_SetReferrer(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	_, err := repo.Ensure(ctx, 1, "referrer")
	require.NoError(t, err)
	_, err = repo.Ensure(ctx, 2, "buyer")
	require.NoError(t, err)

	require.NoError(t, repo.SetReferrer(ctx, 2, 1))

	acct, err := repo.GetByID(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, acct.ReferrerID)
	assert.Equal(t, int64(1), *acct.ReferrerID)

	referrer, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, referrer.ReferralCount)

	// The column is write-once
	err = repo.SetReferrer(ctx, 2, 99)
	assert.ErrorIs(t, err, ErrReferrerSet)

	// Self-referral is refused
	_, err = repo.Ensure(ctx, 3, "loner")
	require.NoError(t, err)
	err = repo.SetReferrer(ctx, 3, 3)
	assert.ErrorIs(t, err, ErrReferrerSet)

	// A refused link never moves anyone's counter; the link and the
	// bump land in the same statement.
	err = repo.SetReferrer(ctx, 3, 1)
	require.NoError(t, err)
	err = repo.SetReferrer(ctx, 3, 1)
	assert.ErrorIs(t, err, ErrReferrerSet)
	referrer, err = repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, referrer.ReferralCount)
}

// ============================================================================
// CatalogRepository
// ============================================================================

func seedDiscreteProduct(t *testing.T, pool *pgxpool.Pool, key string, codes []string) {
	t.Helper()
	ctx := context.Background()

	repo := NewCatalogRepository(pool)
	err := repo.UpsertProduct(ctx, &model.Product{
		Key: key, Name: key, Price: 100, Category: model.CategoryDiscrete,
	})
	require.NoError(t, err)

	if len(codes) > 0 {
		_, _, err = repo.IngestCodes(ctx, key, codes)
		require.NoError(t, err)
	}
}

func TestCatalogRepository_IngestCodes(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewCatalogRepository(pool)
	ctx := context.Background()

	seedDiscreteProduct(t, pool, "uc60", nil)

	inserted, skipped, err := repo.IngestCodes(ctx, "uc60", []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)
	assert.Equal(t, 0, skipped)

	// Duplicates are skipped, not errors
	inserted, skipped, err = repo.IngestCodes(ctx, "uc60", []string{"B", "C", "D"})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 2, skipped)

	stock, err := repo.StockLevel(ctx, "uc60")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stock)
}

func TestCatalogRepository_AllocateCode_FIFO(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewCatalogRepository(pool)
	ctx := context.Background()

	seedDiscreteProduct(t, pool, "uc60", []string{"first", "second", "third"})

	code, err := repo.AllocateCode(ctx, "uc60", 1)
	require.NoError(t, err)
	assert.Equal(t, "first", code)

	code, err = repo.AllocateCode(ctx, "uc60", 2)
	require.NoError(t, err)
	assert.Equal(t, "second", code)

	code, err = repo.AllocateCode(ctx, "uc60", 3)
	require.NoError(t, err)
	assert.Equal(t, "third", code)

	_, err = repo.AllocateCode(ctx, "uc60", 4)
	assert.ErrorIs(t, err, ErrOutOfStock)
}

func TestCatalogRepository_AllocateCode_Concurrent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewCatalogRepository(pool)
	ctx := context.Background()

	const n = 20
	codes := make([]string, n)
	for i := range codes {
		codes[i] = string(rune('a'+i%26)) + string(rune('0'+i/26))
	}
	seedDiscreteProduct(t, pool, "uc60", codes)

	// n concurrent buyers, n codes: everyone gets a distinct one
	var wg sync.WaitGroup
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(buyer int64) {
			defer wg.Done()
			code, err := repo.AllocateCode(ctx, "uc60", buyer)
			if err == nil {
				results <- code
			}
		}(int64(i + 1))
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for code := range results {
		assert.False(t, seen[code], "code %q allocated twice", code)
		seen[code] = true
	}
	assert.Len(t, seen, n)

	_, err := repo.AllocateCode(ctx, "uc60", 999)
	assert.ErrorIs(t, err, ErrOutOfStock)
}

func TestCatalogRepository_AdjustQuantity(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewCatalogRepository(pool)
	ctx := context.Background()

	err := repo.UpsertProduct(ctx, &model.Product{
		Key: "diamonds", Name: "Diamonds", Price: 500, Category: model.CategoryBulk,
	})
	require.NoError(t, err)

	level, err := repo.AdjustQuantity(ctx, "diamonds", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), level)

	level, err = repo.AdjustQuantity(ctx, "diamonds", -3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), level)

	// Deltas that would cross zero are rejected whole
	_, err = repo.AdjustQuantity(ctx, "diamonds", -3)
	assert.ErrorIs(t, err, ErrQuantityFloor)

	level, err = repo.StockLevel(ctx, "diamonds")
	require.NoError(t, err)
	assert.Equal(t, int64(2), level)

	// Unknown product is a different failure
	_, err = repo.AdjustQuantity(ctx, "nope", 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCatalogRepository_DeleteProduct(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewCatalogRepository(pool)
	ctx := context.Background()

	seedDiscreteProduct(t, pool, "uc60", []string{"A", "B"})

	require.NoError(t, repo.DeleteProduct(ctx, "uc60"))

	_, err := repo.GetProduct(ctx, "uc60")
	assert.ErrorIs(t, err, ErrProductNotFound)

	codes, err := repo.ListCodes(ctx, "uc60")
	require.NoError(t, err)
	assert.Empty(t, codes)
}

// ============================================================================
// OrderRepository
// ============================================================================

func seedOrder(t *testing.T, pool *pgxpool.Pool, userID int64) *model.Order {
	t.Helper()
	ctx := context.Background()

	repo := NewOrderRepository(pool)
	o := &model.Order{
		OrderID:     NewOrderID(),
		UserID:      userID,
		ProductKey:  "diamonds",
		ProductName: "Diamonds",
		Price:       500,
		Reference:   "1234567890",
		Status:      model.OrderPending,
	}
	require.NoError(t, repo.Create(ctx, o))
	return o
}

func TestOrderRepository_Transition(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewOrderRepository(pool)
	ctx := context.Background()

	o := seedOrder(t, pool, 1)

	require.NoError(t, repo.Transition(ctx, o.OrderID, model.OrderCompleted))

	got, err := repo.GetByID(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCompleted, got.Status)

	// A second decision loses
	err = repo.Transition(ctx, o.OrderID, model.OrderRejected)
	assert.ErrorIs(t, err, ErrAlreadyDecided)

	got, err = repo.GetByID(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCompleted, got.Status)
}

func TestOrderRepository_Transition_Concurrent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewOrderRepository(pool)
	ctx := context.Background()

	o := seedOrder(t, pool, 1)

	// Two admins race on the same order; exactly one decision sticks
	var wg sync.WaitGroup
	outcomes := make(chan error, 2)
	for _, next := range []model.OrderStatus{model.OrderCompleted, model.OrderRejected} {
		wg.Add(1)
		go func(next model.OrderStatus) {
			defer wg.Done()
			outcomes <- repo.Transition(ctx, o.OrderID, next)
		}(next)
	}
	wg.Wait()
	close(outcomes)

	var wins, losses int
	for err := range outcomes {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, ErrAlreadyDecided)
			losses++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	got, err := repo.GetByID(ctx, o.OrderID)
	require.NoError(t, err)
	assert.True(t, got.Status.Terminal())
}

func TestOrderRepository_ListPendingByUser(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewOrderRepository(pool)
	ctx := context.Background()

	first := seedOrder(t, pool, 1)
	second := seedOrder(t, pool, 1)
	decided := seedOrder(t, pool, 1)
	seedOrder(t, pool, 2)

	require.NoError(t, repo.Transition(ctx, decided.OrderID, model.OrderRejected))

	pending, err := repo.ListPendingByUser(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	ids := []string{pending[0].OrderID, pending[1].OrderID}
	assert.Contains(t, ids, first.OrderID)
	assert.Contains(t, ids, second.OrderID)
}

// ============================================================================
// PaymentRepository
// ============================================================================

func TestPaymentRepository_Lifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPaymentRepository(pool)
	ctx := context.Background()

	p := &model.Payment{
		PayID:  NewPaymentID(),
		UserID: 1,
		Amount: 200,
		Method: "bank",
		TxRef:  "TX-1",
		Status: model.PaymentPending,
	}
	require.NoError(t, repo.Create(ctx, p))

	require.NoError(t, repo.Transition(ctx, p.PayID, model.PaymentApproved))

	err := repo.Transition(ctx, p.PayID, model.PaymentRejected)
	assert.ErrorIs(t, err, ErrAlreadyDecided)

	got, err := repo.GetByID(ctx, p.PayID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentApproved, got.Status)

	_, err = repo.GetByID(ctx, "PAY-MISSING")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestPaymentRepository_Methods(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPaymentRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.UpsertMethod(ctx, "bank", "Account 123"))
	require.NoError(t, repo.UpsertMethod(ctx, "wallet", "ID 456"))
	require.NoError(t, repo.UpsertMethod(ctx, "bank", "Account 789"))

	methods, err := repo.ListMethods(ctx)
	require.NoError(t, err)
	require.Len(t, methods, 2)

	m, err := repo.GetMethod(ctx, "bank")
	require.NoError(t, err)
	assert.Equal(t, "Account 789", m.Details)

	require.NoError(t, repo.DeleteMethod(ctx, "wallet"))
	_, err = repo.GetMethod(ctx, "wallet")
	assert.ErrorIs(t, err, ErrMethodNotFound)
}

// ============================================================================
// HistoryRepository
// ============================================================================

func TestHistoryRepository_Purge(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewHistoryRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.Add(ctx, 1, model.HistoryPurchase, "recent"))
	require.NoError(t, repo.Add(ctx, 1, model.HistoryPurchase, "old"))

	// Age one entry past the window
	_, err := pool.Exec(ctx,
		`UPDATE history SET created_at = NOW() - INTERVAL '25 hours' WHERE text = 'old'`)
	require.NoError(t, err)

	removed, err := repo.Purge(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	entries, err := repo.ListByUser(ctx, 1, "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "recent", entries[0].Text)
}

func TestHistoryRepository_KindFilter(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewHistoryRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.Add(ctx, 1, model.HistoryCode, "code line"))
	require.NoError(t, repo.Add(ctx, 1, model.HistoryOrder, "order line"))

	entries, err := repo.ListByUser(ctx, 1, model.HistoryOrder, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "order line", entries[0].Text)

	entries, err = repo.ListByUser(ctx, 1, "", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

// ============================================================================
// ReferralRepository
// ============================================================================

func TestReferralRepository_CreditOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	accounts := NewAccountRepository(pool)
	repo := NewReferralRepository(pool)
	ctx := context.Background()

	_, err := accounts.Ensure(ctx, 1, "referrer")
	require.NoError(t, err)
	_, err = accounts.Ensure(ctx, 2, "buyer")
	require.NoError(t, err)

	credited, err := repo.CreditOnce(ctx, 1, 2, 20)
	require.NoError(t, err)
	assert.True(t, credited)

	referrer, err := accounts.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(20), referrer.Bonus)
	assert.Equal(t, int64(20), referrer.ReferralBonusEarned)

	// Second qualifying purchase by the same buyer pays nothing
	credited, err = repo.CreditOnce(ctx, 1, 2, 20)
	require.NoError(t, err)
	assert.False(t, credited)

	referrer, err = accounts.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(20), referrer.Bonus)
}

func TestReferralRepository_CreditOnce_Concurrent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	accounts := NewAccountRepository(pool)
	repo := NewReferralRepository(pool)
	ctx := context.Background()

	_, err := accounts.Ensure(ctx, 1, "referrer")
	require.NoError(t, err)
	_, err = accounts.Ensure(ctx, 2, "buyer")
	require.NoError(t, err)

	// Concurrent qualifying purchases credit exactly once
	const n = 10
	var wg sync.WaitGroup
	results := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			credited, err := repo.CreditOnce(ctx, 1, 2, 20)
			if err == nil {
				results <- credited
			}
		}()
	}
	wg.Wait()
	close(results)

	var wins int
	for credited := range results {
		if credited {
			wins++
		}
	}
	assert.Equal(t, 1, wins)

	referrer, err := accounts.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(20), referrer.Bonus)
}
