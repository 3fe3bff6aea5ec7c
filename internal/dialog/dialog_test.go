package dialog

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngine_GetAbsent(t *testing.T) {
	e := NewEngine()

	state := e.Get(1)
	assert.Equal(t, StepNone, state.Step)
	assert.NotNil(t, state.Payload)
	assert.Empty(t, state.Payload)
}

func TestEngine_SetReplaces(t *testing.T) {
	e := NewEngine()

	e.Set(1, StepTopUpAmount, nil)
	e.Set(1, StepCodeConfirm, map[string]string{"product": "uc60"})

	state := e.Get(1)
	assert.Equal(t, StepCodeConfirm, state.Step)
	assert.Equal(t, "uc60", state.Payload["product"])
}

func TestEngine_Clear(t *testing.T) {
	e := NewEngine()

	e.Set(1, StepCodeConfirm, map[string]string{"product": "uc60"})
	e.Clear(1)

	state := e.Get(1)
	assert.Equal(t, StepNone, state.Step)

	// Clearing an absent user is a no-op
	e.Clear(2)
}

func TestEngine_AdvanceMergesPayload(t *testing.T) {
	e := NewEngine()

	e.Set(1, StepOrderReference, map[string]string{"product": "diamonds"})
	e.Advance(1, StepOrderConfirm, map[string]string{"reference": "1234567890"})

	state := e.Get(1)
	assert.Equal(t, StepOrderConfirm, state.Step)
	assert.Equal(t, "diamonds", state.Payload["product"])
	assert.Equal(t, "1234567890", state.Payload["reference"])
}

func TestEngine_ConcurrentAdvanceKeepsAllKeys(t *testing.T) {
	e := NewEngine()

	// Two in-flight updates for the same user must never drop each
	// other's payload keys, whichever order their merges land in.
	for i := 0; i < 1000; i++ {
		e.Set(1, StepOrderReference, map[string]string{"product": "diamonds"})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			e.Advance(1, StepOrderConfirm, map[string]string{"reference": "1234567890"})
		}()
		go func() {
			defer wg.Done()
			e.Advance(1, StepOrderConfirm, map[string]string{"note": "rush"})
		}()
		wg.Wait()

		state := e.Get(1)
		assert.Equal(t, "diamonds", state.Payload["product"])
		assert.Equal(t, "1234567890", state.Payload["reference"])
		assert.Equal(t, "rush", state.Payload["note"])
	}
}

func TestEngine_UsersAreIsolated(t *testing.T) {
	e := NewEngine()

	e.Set(1, StepCodeConfirm, map[string]string{"product": "a"})
	e.Set(2, StepTopUpAmount, map[string]string{"amount": "50"})

	assert.Equal(t, StepCodeConfirm, e.Get(1).Step)
	assert.Equal(t, StepTopUpAmount, e.Get(2).Step)

	e.Clear(1)
	assert.Equal(t, StepNone, e.Get(1).Step)
	assert.Equal(t, StepTopUpAmount, e.Get(2).Step)
}

func TestEngine_ConcurrentAccess(t *testing.T) {
	e := NewEngine()

	// Hammer the engine from many goroutines across many users; the
	// race detector is the real assertion here.
	var wg sync.WaitGroup
	for u := int64(0); u < 64; u++ {
		wg.Add(1)
		go func(u int64) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				e.Set(u, StepTopUpAmount, map[string]string{"i": fmt.Sprint(i)})
				_ = e.Get(u)
				e.Advance(u, StepTopUpMethod, map[string]string{"m": "bank"})
				e.Clear(u)
			}
		}(u)
	}
	wg.Wait()

	for u := int64(0); u < 64; u++ {
		assert.Equal(t, StepNone, e.Get(u).Step)
	}
}
