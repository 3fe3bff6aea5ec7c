// Property-based tests for the order decision state machine.
package service

import (
	"testing"

	"pgregory.net/rapid"

	"telegram-shop-bot/internal/model"
)

// decisionModel mirrors the approve/reject semantics of a pending order:
// the first decision wins, approval needs a unit of stock, rejection
// refunds the captured price exactly once.
type decisionModel struct {
	status   model.OrderStatus
	stock    int64
	price    int64
	refunded int64
}

func (m *decisionModel) approve() bool {
	if m.status != model.OrderPending {
		return false
	}
	if m.stock <= 0 {
		// Approval refused, order stays open for a restock or a reject
		return false
	}
	m.stock--
	m.status = model.OrderCompleted
	return true
}

func (m *decisionModel) reject() bool {
	if m.status != model.OrderPending {
		return false
	}
	m.refunded += m.price
	m.status = model.OrderRejected
	return true
}

// TestDecisionIdempotenceProperty runs random decision sequences against a
// single order and checks that at most one decision ever applies, stock
// moves at most one unit, and the refund is paid at most once.
func TestDecisionIdempotenceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initialStock := rapid.Int64Range(0, 5).Draw(t, "initialStock")
		price := rapid.Int64Range(1, 1000).Draw(t, "price")

		m := &decisionModel{
			status: model.OrderPending,
			stock:  initialStock,
			price:  price,
		}

		numAttempts := rapid.IntRange(1, 20).Draw(t, "numAttempts")
		applied := 0
		for i := 0; i < numAttempts; i++ {
			var ok bool
			if rapid.Bool().Draw(t, "isApprove") {
				ok = m.approve()
			} else {
				ok = m.reject()
			}
			if ok {
				applied++
			}
		}

		if applied > 1 {
			t.Fatalf("%d decisions applied to one order", applied)
		}
		if m.status == model.OrderPending && applied != 0 {
			t.Fatalf("order still pending after a decision applied")
		}
		if m.status.Terminal() && applied != 1 {
			t.Fatalf("order terminal without exactly one applied decision")
		}

		switch m.status {
		case model.OrderCompleted:
			if m.stock != initialStock-1 {
				t.Fatalf("approval moved stock %d -> %d", initialStock, m.stock)
			}
			if m.refunded != 0 {
				t.Fatalf("approval paid a refund of %d", m.refunded)
			}
		case model.OrderRejected:
			if m.stock != initialStock {
				t.Fatalf("rejection moved stock %d -> %d", initialStock, m.stock)
			}
			if m.refunded != price {
				t.Fatalf("rejection refunded %d, want %d", m.refunded, price)
			}
		case model.OrderPending:
			if m.stock != initialStock || m.refunded != 0 {
				t.Fatalf("pending order mutated: stock %d refund %d", m.stock, m.refunded)
			}
		}
	})
}

// TestStatusTransitions pins the legal lifecycle edges for orders and
// payments.
func TestStatusTransitions(t *testing.T) {
	orderCases := []struct {
		from, to model.OrderStatus
		want     bool
	}{
		{model.OrderPending, model.OrderCompleted, true},
		{model.OrderPending, model.OrderRejected, true},
		{model.OrderCompleted, model.OrderRejected, false},
		{model.OrderRejected, model.OrderCompleted, false},
		{model.OrderCompleted, model.OrderPending, false},
		{model.OrderRejected, model.OrderPending, false},
	}
	for _, tc := range orderCases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("order %s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}

	payCases := []struct {
		from, to model.PaymentStatus
		want     bool
	}{
		{model.PaymentPending, model.PaymentApproved, true},
		{model.PaymentPending, model.PaymentRejected, true},
		{model.PaymentApproved, model.PaymentRejected, false},
		{model.PaymentRejected, model.PaymentApproved, false},
	}
	for _, tc := range payCases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("payment %s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
