// Package dialog holds the per-user multi-step conversation state.
//
// State is process-local and ephemeral: it is cleared on flow completion or
// cancellation, silently replaced by the next Set, and lost on restart.
// Every orchestrator re-validates catalog and ledger data at commit time, so
// stale dialog state can never corrupt a transaction.
package dialog

import (
	"sync"
	"time"
)

// Step tags the point a user has reached in a flow. The set is closed;
// handlers switch exhaustively over it.
type Step string

// User-facing flow steps.
const (
	StepNone           Step = ""
	StepCodeConfirm    Step = "code_confirm"    // discrete purchase awaiting Confirm
	StepOrderReference Step = "order_reference" // bulk purchase awaiting fulfillment reference
	StepOrderConfirm   Step = "order_confirm"   // bulk purchase awaiting Confirm
	StepTopUpAmount    Step = "topup_amount"    // add funds awaiting amount
	StepTopUpMethod    Step = "topup_method"    // add funds awaiting method pick
	StepTopUpReference Step = "topup_reference" // add funds awaiting transaction reference
	StepTopUpProof     Step = "topup_proof"     // add funds awaiting proof attachment
	StepOrderLookup    Step = "order_lookup"    // awaiting an order id to look up
)

// Admin flow steps. Most admin operations are single commands with
// arguments; only the batch paste flows need a second message.
const (
	StepAdminCodesPaste  Step = "admin_codes_paste"  // awaiting pasted code batch
	StepAdminRemovePaste Step = "admin_remove_paste" // awaiting codes to remove
)

// State is one user's current step and accumulated flow data.
type State struct {
	Step    Step
	Payload map[string]string
	Updated time.Time
}

const shardCount = 32

type shard struct {
	mu     sync.Mutex
	states map[int64]State
}

// Engine is a sharded map from user id to dialog state.
type Engine struct {
	shards [shardCount]*shard
}

// NewEngine creates an empty dialog engine.
func NewEngine() *Engine {
	e := &Engine{}
	for i := range e.shards {
		e.shards[i] = &shard{states: make(map[int64]State)}
	}
	return e
}

func (e *Engine) shardFor(userID int64) *shard {
	return e.shards[uint64(userID)%shardCount]
}

// Set replaces any prior state for the user unconditionally.
// A nil payload is stored as an empty map.
func (e *Engine) Set(userID int64, step Step, payload map[string]string) {
	if payload == nil {
		payload = map[string]string{}
	}
	s := e.shardFor(userID)
	s.mu.Lock()
	s.states[userID] = State{Step: step, Payload: payload, Updated: time.Now()}
	s.mu.Unlock()
}

// Get returns the user's current state. Absent users get StepNone and an
// empty payload, never an error.
func (e *Engine) Get(userID int64) State {
	s := e.shardFor(userID)
	s.mu.Lock()
	st, ok := s.states[userID]
	s.mu.Unlock()
	if !ok {
		return State{Step: StepNone, Payload: map[string]string{}}
	}
	return st
}

// Clear removes the user's state. No-op if absent.
func (e *Engine) Clear(userID int64) {
	s := e.shardFor(userID)
	s.mu.Lock()
	delete(s.states, userID)
	s.mu.Unlock()
}

// Advance stores step while carrying the existing payload forward, with
// extra merged on top. The read and the write happen under one shard lock,
// so two in-flight updates for the same user can never drop each other's
// payload keys.
func (e *Engine) Advance(userID int64, step Step, extra map[string]string) {
	s := e.shardFor(userID)
	s.mu.Lock()
	cur := s.states[userID]
	merged := make(map[string]string, len(cur.Payload)+len(extra))
	for k, v := range cur.Payload {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	s.states[userID] = State{Step: step, Payload: merged, Updated: time.Now()}
	s.mu.Unlock()
}
