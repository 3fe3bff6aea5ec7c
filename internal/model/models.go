// Package model defines the data records owned by the purchase engine.
package model

import "time"

// Category classifies how a product is fulfilled.
type Category string

const (
	// CategoryDiscrete products hand out one pre-provisioned single-use code per sale.
	CategoryDiscrete Category = "DISCRETE"
	// CategoryBulk products decrement a shared quantity counter after admin approval.
	CategoryBulk Category = "BULK"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategoryDiscrete || c == CategoryBulk
}

// OrderStatus is the lifecycle state of a bulk order.
// The only legal transitions are Pending->Completed and Pending->Rejected.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderRejected  OrderStatus = "REJECTED"
)

// CanTransition reports whether an order may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	return s == OrderPending && (next == OrderCompleted || next == OrderRejected)
}

// Terminal reports whether s is a terminal state.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderRejected
}

// PaymentStatus is the lifecycle state of a top-up request.
// The only legal transitions are Pending->Approved and Pending->Rejected.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentApproved PaymentStatus = "APPROVED"
	PaymentRejected PaymentStatus = "REJECTED"
)

// CanTransition reports whether a payment may move from s to next.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	return s == PaymentPending && (next == PaymentApproved || next == PaymentRejected)
}

// Terminal reports whether s is a terminal state.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentApproved || s == PaymentRejected
}

// Account is a user's ledger row.
// Invariants: balance, bonus, due >= 0 and due <= due_limit between transactions.
type Account struct {
	UserID              int64     `db:"user_id"`
	Name                string    `db:"name"`
	Balance             int64     `db:"balance"`
	Bonus               int64     `db:"bonus"`
	Due                 int64     `db:"due"`
	DueLimit            int64     `db:"due_limit"`
	TotalPurchase       int64     `db:"total_purchase"`
	ReferrerID          *int64    `db:"referrer_id"`
	ReferralCount       int       `db:"referral_count"`
	ReferralBonusEarned int64     `db:"referral_bonus_earned"`
	Banned              bool      `db:"banned"`
	Warnings            int       `db:"warnings"`
	CreatedAt           time.Time `db:"created_at"`
	LastActiveAt        time.Time `db:"last_active_at"`
}

// SpendableFor returns how much of price the account can cover, split into
// the part paid from balance and the part extended as due. ok is false when
// the remainder would push due past due_limit.
func (a *Account) SpendableFor(price int64) (fromBalance, toDue int64, ok bool) {
	fromBalance = a.Balance
	if fromBalance > price {
		fromBalance = price
	}
	toDue = price - fromBalance
	if toDue > 0 && a.Due+toDue > a.DueLimit {
		return 0, 0, false
	}
	return fromBalance, toDue, true
}

// Product is a catalog entry.
type Product struct {
	Key      string   `db:"key"`
	Name     string   `db:"name"`
	Price    int64    `db:"price"`
	Category Category `db:"category"`
}

// Code is one single-use secret in a discrete product's pool.
// A code moves Available->Consumed exactly once.
type Code struct {
	ID         int64      `db:"id"`
	ProductKey string     `db:"product_key"`
	Value      string     `db:"value"`
	Consumed   bool       `db:"consumed"`
	ConsumedBy *int64     `db:"consumed_by"`
	ConsumedAt *time.Time `db:"consumed_at"`
}

// Order is a bulk purchase awaiting (or past) an admin decision.
// Price is captured at placement and never re-read from the catalog.
type Order struct {
	OrderID     string      `db:"order_id"`
	UserID      int64       `db:"user_id"`
	ProductKey  string      `db:"product_key"`
	ProductName string      `db:"product_name"`
	Price       int64       `db:"price"`
	Reference   string      `db:"reference"`
	Status      OrderStatus `db:"status"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

// Payment is a top-up request awaiting (or past) an admin decision.
type Payment struct {
	PayID     string        `db:"pay_id"`
	UserID    int64         `db:"user_id"`
	Amount    int64         `db:"amount"`
	Method    string        `db:"method"`
	TxRef     string        `db:"tx_ref"`
	ProofRef  *string       `db:"proof_ref"`
	Status    PaymentStatus `db:"status"`
	CreatedAt time.Time     `db:"created_at"`
	UpdatedAt time.Time     `db:"updated_at"`
}

// PaymentMethod is an admin-managed way to send funds.
type PaymentMethod struct {
	Name    string `db:"name"`
	Details string `db:"details"`
}

// HistoryEntry is one line of the rolling short-lived activity log.
type HistoryEntry struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Kind      string    `db:"kind"`
	Text      string    `db:"text"`
	CreatedAt time.Time `db:"created_at"`
}

// History entry kinds.
const (
	HistoryCode     = "code"     // delivered activation code
	HistoryPurchase = "purchase" // money spent
	HistoryOrder    = "order"    // bulk order lifecycle
	HistoryPayment  = "payment"  // top-up lifecycle
	HistorySystem   = "sys"      // engine-internal notes
)

// ReferralCredit marks that a referrer was paid for a referred buyer.
// Its presence is the source of truth for "already credited".
type ReferralCredit struct {
	ReferrerID int64     `db:"referrer_id"`
	BuyerID    int64     `db:"buyer_id"`
	Amount     int64     `db:"amount"`
	CreatedAt  time.Time `db:"created_at"`
}
