package capacity

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"arbiter-hq/tollgate/pkg/core"
)

func testClock() *core.ManualClock {
	return core.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func testPM(rpm, tpm int) core.ProviderModel {
	return core.ProviderModel{
		Provider:          "openai",
		Model:             "gpt-4o",
		RequestsPerMinute: rpm,
		TokensPerMinute:   tpm,
	}
}

// ============================================================================
// Reservation Tests
// ============================================================================

func TestCheckAndReserve_RequestLimit(t *testing.T) {
	clock := testClock()
	ledger := NewLedger(Config{}, clock)
	pm := testPM(3, 0)

	granted := 0
	var retries []time.Duration
	for i := 0; i < 5; i++ {
		dec := ledger.CheckAndReserve(pm, 100)
		if dec.Granted {
			granted++
			if dec.Reservation == nil {
				t.Fatal("granted decision must carry a reservation")
			}
		} else {
			retries = append(retries, dec.RetryAfter)
		}
	}

	if granted != 3 {
		t.Fatalf("granted = %d, want exactly 3", granted)
	}
	for _, retry := range retries {
		if retry <= 0 || retry > time.Minute {
			t.Errorf("retryAfter = %v, want within (0, 60s]", retry)
		}
	}
}

func TestCheckAndReserve_TokenLimit(t *testing.T) {
	clock := testClock()
	ledger := NewLedger(Config{}, clock)
	pm := testPM(0, 1000)

	if dec := ledger.CheckAndReserve(pm, 800); !dec.Granted {
		t.Fatal("first reservation within token limit should be granted")
	}

	dec := ledger.CheckAndReserve(pm, 300)
	if dec.Granted {
		t.Fatal("reservation exceeding token limit should be denied")
	}
	if dec.RetryAfter <= 0 {
		t.Errorf("denied decision should carry a positive retryAfter, got %v", dec.RetryAfter)
	}
}

func TestCheckAndReserve_Unlimited(t *testing.T) {
	clock := testClock()
	ledger := NewLedger(Config{}, clock)
	pm := testPM(0, 0)

	for i := 0; i < 1000; i++ {
		if dec := ledger.CheckAndReserve(pm, 50000); !dec.Granted {
			t.Fatalf("unlimited model denied at reservation %d", i)
		}
	}
}

func TestCheckAndReserve_RetryAfterIsSufficient(t *testing.T) {
	clock := testClock()
	ledger := NewLedger(Config{}, clock)
	pm := testPM(3, 0)

	for i := 0; i < 3; i++ {
		if dec := ledger.CheckAndReserve(pm, 0); !dec.Granted {
			t.Fatal("warm-up reservation denied")
		}
	}

	dec := ledger.CheckAndReserve(pm, 0)
	if dec.Granted {
		t.Fatal("saturated model should deny")
	}

	// Waiting exactly retryAfter must be enough: the advertised wait is
	// never stale.
	clock.Advance(dec.RetryAfter)
	if dec = ledger.CheckAndReserve(pm, 0); !dec.Granted {
		t.Errorf("reservation should be granted after waiting the advertised retryAfter")
	}
}

func TestCheckAndReserve_WindowDecay(t *testing.T) {
	clock := testClock()
	ledger := NewLedger(Config{}, clock)
	pm := testPM(4, 0)

	for i := 0; i < 4; i++ {
		if dec := ledger.CheckAndReserve(pm, 0); !dec.Granted {
			t.Fatal("warm-up reservation denied")
		}
	}
	if dec := ledger.CheckAndReserve(pm, 0); dec.Granted {
		t.Fatal("saturated model should deny")
	}

	// A full window later all prior consumption has decayed away.
	clock.Advance(time.Minute)
	for i := 0; i < 4; i++ {
		if dec := ledger.CheckAndReserve(pm, 0); !dec.Granted {
			t.Fatalf("reservation %d denied after full window elapsed", i)
		}
	}
}

// ============================================================================
// Release Tests
// ============================================================================

func TestRelease_GivesBackOnFailure(t *testing.T) {
	clock := testClock()
	ledger := NewLedger(Config{}, clock)
	pm := testPM(2, 0)

	first := ledger.CheckAndReserve(pm, 100)
	second := ledger.CheckAndReserve(pm, 100)
	if !first.Granted || !second.Granted {
		t.Fatal("warm-up reservations denied")
	}
	if dec := ledger.CheckAndReserve(pm, 100); dec.Granted {
		t.Fatal("third reservation should be denied")
	}

	// Call never reached the provider: zero actuals give everything back.
	ledger.Release(first.Reservation, 0, 0)

	if dec := ledger.CheckAndReserve(pm, 100); !dec.Granted {
		t.Error("capacity should be available again after a zero-actual release")
	}
}

func TestRelease_RefundsTokenDelta(t *testing.T) {
	clock := testClock()
	ledger := NewLedger(Config{}, clock)
	pm := testPM(0, 1000)

	dec := ledger.CheckAndReserve(pm, 900)
	if !dec.Granted {
		t.Fatal("reservation denied")
	}

	// Actual usage was far below the estimate; the delta is refunded.
	ledger.Release(dec.Reservation, 300, 1)

	snap := ledger.Remaining(pm)
	if snap.Tokens != 700 {
		t.Errorf("remaining tokens = %d, want 700 after refund", snap.Tokens)
	}
}

func TestRelease_DoubleReleaseIsNoOp(t *testing.T) {
	clock := testClock()
	ledger := NewLedger(Config{}, clock)
	pm := testPM(0, 1000)

	dec := ledger.CheckAndReserve(pm, 500)
	if !dec.Granted {
		t.Fatal("reservation denied")
	}

	ledger.Release(dec.Reservation, 0, 0)
	ledger.Release(dec.Reservation, 0, 0)

	snap := ledger.Remaining(pm)
	if snap.Tokens != 1000 {
		t.Errorf("remaining tokens = %d, want 1000 (double release must not double-refund)", snap.Tokens)
	}
}

func TestRelease_ChargesWhenEstimateLow(t *testing.T) {
	clock := testClock()
	ledger := NewLedger(Config{}, clock)
	pm := testPM(0, 1000)

	dec := ledger.CheckAndReserve(pm, 100)
	if !dec.Granted {
		t.Fatal("reservation denied")
	}

	// Actual usage exceeded the estimate; the ledger charges the overage.
	ledger.Release(dec.Reservation, 600, 1)

	snap := ledger.Remaining(pm)
	if snap.Tokens != 400 {
		t.Errorf("remaining tokens = %d, want 400 after correction", snap.Tokens)
	}
}

// ============================================================================
// Introspection Tests
// ============================================================================

func TestRemaining(t *testing.T) {
	clock := testClock()
	ledger := NewLedger(Config{}, clock)
	pm := testPM(10, 5000)

	ledger.CheckAndReserve(pm, 1200)

	snap := ledger.Remaining(pm)
	if snap.Requests != 9 {
		t.Errorf("remaining requests = %d, want 9", snap.Requests)
	}
	if snap.Tokens != 3800 {
		t.Errorf("remaining tokens = %d, want 3800", snap.Tokens)
	}
	if !snap.ResetAt.After(clock.Now()) {
		t.Errorf("ResetAt = %v, want after now", snap.ResetAt)
	}
}

func TestHasCapacity_DoesNotReserve(t *testing.T) {
	clock := testClock()
	ledger := NewLedger(Config{}, clock)
	pm := testPM(1, 0)

	for i := 0; i < 5; i++ {
		if !ledger.HasCapacity(pm, 100) {
			t.Fatal("HasCapacity must not consume capacity")
		}
	}
	if dec := ledger.CheckAndReserve(pm, 100); !dec.Granted {
		t.Error("reservation should still be granted after HasCapacity probes")
	}
}

func TestLowCapacityWarning(t *testing.T) {
	clock := testClock()

	var fired atomic.Int64
	ledger := NewLedger(Config{
		WarnThreshold: 0.35,
		OnLowCapacity: func(pm core.ProviderModel, snap Snapshot) {
			fired.Add(1)
		},
	}, clock)
	pm := testPM(3, 0)

	ledger.CheckAndReserve(pm, 0) // 2/3 remaining, no warning
	if fired.Load() != 0 {
		t.Fatal("warning fired too early")
	}

	ledger.CheckAndReserve(pm, 0) // 1/3 remaining <= 0.35, warn
	if fired.Load() == 0 {
		t.Error("warning should fire when remaining fraction drops below threshold")
	}
}

// ============================================================================
// Concurrency Tests
// ============================================================================

func TestCheckAndReserve_NoReservationLeak(t *testing.T) {
	clock := testClock()
	ledger := NewLedger(Config{}, clock)
	pm := testPM(100, 0)

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if dec := ledger.CheckAndReserve(pm, 0); dec.Granted {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if granted.Load() != 100 {
		t.Errorf("granted = %d, want exactly 100 under concurrent admission", granted.Load())
	}
}

func TestDistinctModelsDoNotContend(t *testing.T) {
	clock := testClock()
	ledger := NewLedger(Config{}, clock)

	a := testPM(1, 0)
	b := core.ProviderModel{Provider: "anthropic", Model: "claude-sonnet-4", RequestsPerMinute: 1}

	if dec := ledger.CheckAndReserve(a, 0); !dec.Granted {
		t.Fatal("model a should be granted")
	}
	if dec := ledger.CheckAndReserve(b, 0); !dec.Granted {
		t.Error("saturating model a must not affect model b")
	}
}
