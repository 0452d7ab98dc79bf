package admission

import (
	"errors"
	"testing"
	"time"

	"arbiter-hq/tollgate/pkg/capacity"
	"arbiter-hq/tollgate/pkg/core"
	"arbiter-hq/tollgate/pkg/costs"
	"arbiter-hq/tollgate/pkg/failover"
)

func newFixture(t *testing.T) (*core.ManualClock, *capacity.Ledger, *costs.Ledger) {
	t.Helper()
	clock := core.NewManualClock(time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC))
	capLedger := capacity.NewLedger(capacity.Config{Window: time.Minute}, clock)
	costLedger := costs.NewLedger(costs.Config{
		Limits: map[costs.Period]float64{costs.PeriodDaily: 10.0},
	}, clock)
	return clock, capLedger, costLedger
}

func request(id string, target core.ProviderModel, fallbacks ...core.ProviderModel) *core.CallRequest {
	return &core.CallRequest{
		ID:              id,
		Target:          target,
		Fallbacks:       fallbacks,
		EstimatedTokens: 100,
		Priority:        core.PriorityNormal,
	}
}

// ============================================================================
// Decision Order Tests
// ============================================================================

func TestDecide_BurstAdmitsUpToLimit(t *testing.T) {
	clock, capLedger, costLedger := newFixture(t)
	target := core.ProviderModel{Provider: "openai", Model: "gpt-4o", RequestsPerMinute: 3}
	d := NewDecider(costLedger, capLedger, nil, clock)

	var admitted, delayed int
	for i := 0; i < 5; i++ {
		dec := d.Decide(request("req", target))
		switch dec.Verdict {
		case VerdictAdmit:
			admitted++
		case VerdictDelay:
			delayed++
			if dec.RetryAfter <= 0 || dec.RetryAfter > time.Minute {
				t.Errorf("delay %d retryAfter = %v, want within (0, 60s]", i, dec.RetryAfter)
			}
		default:
			t.Fatalf("request %d: unexpected verdict %v", i, dec.Verdict)
		}
	}

	if admitted != 3 || delayed != 2 {
		t.Errorf("admitted=%d delayed=%d, want 3 and 2", admitted, delayed)
	}
}

func TestDecide_BudgetBreachRejectsBeforeCapacity(t *testing.T) {
	clock, capLedger, costLedger := newFixture(t)
	// $1.00 per call: 1000 estimated tokens at $1.00/1K input.
	target := core.ProviderModel{Provider: "openai", Model: "gpt-4o", CostPer1KInput: 1.0}
	costLedger.AddSpend(clock.Now(), target, 9.50)

	d := NewDecider(costLedger, capLedger, nil, clock)
	req := request("req", target)
	req.EstimatedTokens = 1000

	dec := d.Decide(req)
	if dec.Verdict != VerdictReject {
		t.Fatalf("verdict = %v, want reject", dec.Verdict)
	}
	if !errors.Is(dec.Err, core.ErrBudgetExceeded) {
		t.Errorf("err = %v, want BudgetExceeded", dec.Err)
	}
	if dec.Reservation != nil {
		t.Error("a budget rejection must not hold a reservation")
	}
}

func TestDecide_BudgetNeverQueues(t *testing.T) {
	clock, capLedger, costLedger := newFixture(t)
	target := core.ProviderModel{Provider: "openai", Model: "gpt-4o", CostPer1KInput: 1.0}
	costLedger.AddSpend(clock.Now(), target, 10.0)

	d := NewDecider(costLedger, capLedger, nil, clock)
	req := request("req", target)
	req.EstimatedTokens = 1000

	if dec := d.Decide(req); dec.Verdict == VerdictDelay {
		t.Error("budget-capped work must be rejected, not delayed")
	}
}

func TestDecide_FailsOverToFallback(t *testing.T) {
	clock, capLedger, costLedger := newFixture(t)
	primary := core.ProviderModel{Provider: "openai", Model: "gpt-4o", RequestsPerMinute: 1}
	fallback := core.ProviderModel{Provider: "anthropic", Model: "claude-sonnet-4"}
	d := NewDecider(costLedger, capLedger, nil, clock)

	// Saturate the primary.
	if dec := d.Decide(request("r1", primary, fallback)); dec.Verdict != VerdictAdmit || dec.FailedOver {
		t.Fatalf("first call should admit on primary, got %+v", dec)
	}

	dec := d.Decide(request("r2", primary, fallback))
	if dec.Verdict != VerdictAdmit {
		t.Fatalf("verdict = %v, want admit via fallback", dec.Verdict)
	}
	if !dec.FailedOver {
		t.Error("FailedOver should be set when the fallback served")
	}
	if dec.Target.Key() != fallback.Key() {
		t.Errorf("target = %q, want %q", dec.Target.Key(), fallback.Key())
	}
}

func TestDecide_DelayWhenAllSaturated(t *testing.T) {
	clock, capLedger, costLedger := newFixture(t)
	primary := core.ProviderModel{Provider: "openai", Model: "gpt-4o", RequestsPerMinute: 1}
	fallback := core.ProviderModel{Provider: "anthropic", Model: "claude-sonnet-4", RequestsPerMinute: 1}
	d := NewDecider(costLedger, capLedger, nil, clock)

	d.Decide(request("r1", primary, fallback))
	d.Decide(request("r2", primary, fallback))

	dec := d.Decide(request("r3", primary, fallback))
	if dec.Verdict != VerdictDelay {
		t.Fatalf("verdict = %v, want delay", dec.Verdict)
	}
	if dec.RetryAfter <= 0 {
		t.Errorf("retryAfter = %v, want positive", dec.RetryAfter)
	}
}

func TestDecide_RejectsWaitCertainToExpire(t *testing.T) {
	clock, capLedger, costLedger := newFixture(t)
	target := core.ProviderModel{Provider: "openai", Model: "gpt-4o", RequestsPerMinute: 1}
	d := NewDecider(costLedger, capLedger, nil, clock)

	d.Decide(request("r1", target))

	req := request("r2", target)
	req.Deadline = clock.Now().Add(time.Second)

	dec := d.Decide(req)
	if dec.Verdict != VerdictReject {
		t.Fatalf("verdict = %v, want reject", dec.Verdict)
	}
	if !errors.Is(dec.Err, core.ErrDeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", dec.Err)
	}
}

func TestDecide_ReleasedReservationReadmits(t *testing.T) {
	clock, capLedger, costLedger := newFixture(t)
	target := core.ProviderModel{Provider: "openai", Model: "gpt-4o", TokensPerMinute: 100}
	d := NewDecider(costLedger, capLedger, nil, clock)

	dec := d.Decide(request("r1", target))
	if dec.Verdict != VerdictAdmit {
		t.Fatalf("first call should admit, got %v", dec.Verdict)
	}

	// Call failed before reaching the provider: full refund.
	capLedger.Release(dec.Reservation, 0, 0)

	if dec = d.Decide(request("r2", target)); dec.Verdict != VerdictAdmit {
		t.Errorf("refunded capacity should admit the next call, got %v", dec.Verdict)
	}
}

// ============================================================================
// Router Integration Tests
// ============================================================================

func TestDecide_RouterDeprioritizesCoolingPrimary(t *testing.T) {
	clock, capLedger, costLedger := newFixture(t)
	primary := core.ProviderModel{Provider: "openai", Model: "gpt-4o"}
	fallback := core.ProviderModel{Provider: "anthropic", Model: "claude-sonnet-4"}

	router := failover.NewRouter(capLedger, 30*time.Second, clock)
	router.MarkSaturated(primary, nil)

	d := NewDecider(costLedger, capLedger, router, clock)
	dec := d.Decide(request("r1", primary, fallback))
	if dec.Verdict != VerdictAdmit {
		t.Fatalf("verdict = %v, want admit", dec.Verdict)
	}
	if dec.Target.Key() != fallback.Key() {
		t.Errorf("cooling primary should yield to fallback, got %q", dec.Target.Key())
	}
	if !dec.FailedOver {
		t.Error("serving from the fallback should be recorded as a failover")
	}
}
