// Property-based tests for per-user serialization.
package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// TestConcurrentSerializationProperty checks that concurrent read-modify-write
// operations under the per-user lock produce the same result as running them
// sequentially.
func TestConcurrentSerializationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := rapid.Int64Range(1000, 100000).Draw(t, "initial")
		numOps := rapid.IntRange(2, 20).Draw(t, "numOps")
		userID := rapid.Int64Range(1, 1000000).Draw(t, "userID")

		amounts := make([]int64, numOps)
		expected := initial
		for i := range amounts {
			amounts[i] = rapid.Int64Range(-500, 500).Draw(t, "amount")
			expected += amounts[i]
		}

		ul := NewUserLock()
		balance := initial

		var wg sync.WaitGroup
		wg.Add(numOps)
		for _, amount := range amounts {
			go func(amount int64) {
				defer wg.Done()
				ul.Lock(userID)
				defer ul.Unlock(userID)
				balance += amount
			}(amount)
		}
		wg.Wait()

		if balance != expected {
			t.Fatalf("balance mismatch: expected %d, got %d (initial=%d, numOps=%d)",
				expected, balance, initial, numOps)
		}
	})
}

// TestWithLockProperty checks that WithLock serializes closures the same way
// explicit Lock/Unlock does, and that distinct users never block each other's
// final tallies.
func TestWithLockProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numUsers := rapid.IntRange(1, 5).Draw(t, "numUsers")
		opsPerUser := rapid.IntRange(2, 10).Draw(t, "opsPerUser")

		ul := NewUserLock()
		balances := make([]int64, numUsers)

		var wg sync.WaitGroup
		for u := 0; u < numUsers; u++ {
			for i := 0; i < opsPerUser; i++ {
				wg.Add(1)
				go func(u int) {
					defer wg.Done()
					_ = ul.WithLock(int64(u+1), func() error {
						balances[u]++
						return nil
					})
				}(u)
			}
		}
		wg.Wait()

		for u := 0; u < numUsers; u++ {
			if balances[u] != int64(opsPerUser) {
				t.Fatalf("user %d: expected %d ops, got %d", u+1, opsPerUser, balances[u])
			}
		}
	})
}

func TestTryLock(t *testing.T) {
	ul := NewUserLock()

	if !ul.TryLock(1) {
		t.Fatal("TryLock on a free lock should succeed")
	}
	if ul.TryLock(1) {
		t.Fatal("TryLock on a held lock should fail")
	}
	// A different user is unaffected
	if !ul.TryLock(2) {
		t.Fatal("TryLock for another user should succeed")
	}
	ul.Unlock(1)
	ul.Unlock(2)

	if !ul.TryLock(1) {
		t.Fatal("TryLock after Unlock should succeed")
	}
	ul.Unlock(1)
}

func TestWithLockContextTimeout(t *testing.T) {
	ul := NewUserLock()

	ul.Lock(1)
	defer ul.Unlock(1)

	err := ul.WithLockContext(context.Background(), 1, 50*time.Millisecond, func() error {
		t.Fatal("closure must not run when the lock is held")
		return nil
	})
	if err != ErrLockTimeout {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}
