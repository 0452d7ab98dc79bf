package sched

import (
	"testing"
	"time"

	"arbiter-hq/tollgate/pkg/core"
)

var t0 = time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

func entry(id string, p core.Priority, enqueuedAt time.Time) *Entry {
	return &Entry{
		Req:        &core.CallRequest{ID: id, Priority: p},
		EnqueuedAt: enqueuedAt,
		ReleaseAt:  enqueuedAt,
	}
}

// ============================================================================
// Ordering Tests
// ============================================================================

func TestPopReady_HigherPriorityFirst(t *testing.T) {
	q := NewQueue(10)

	// A LOW entry enqueued before a HIGH one: HIGH still wins.
	q.Push(entry("low", core.PriorityLow, t0))
	q.Push(entry("high", core.PriorityHigh, t0.Add(time.Second)))

	now := t0.Add(2 * time.Second)
	if e := q.PopReady(now); e.Req.ID != "high" {
		t.Errorf("first pop = %q, want high", e.Req.ID)
	}
	if e := q.PopReady(now); e.Req.ID != "low" {
		t.Errorf("second pop = %q, want low", e.Req.ID)
	}
}

func TestPopReady_FIFOWithinLevel(t *testing.T) {
	q := NewQueue(10)
	q.Push(entry("first", core.PriorityNormal, t0))
	q.Push(entry("second", core.PriorityNormal, t0.Add(time.Second)))
	q.Push(entry("third", core.PriorityNormal, t0.Add(2*time.Second)))

	now := t0.Add(time.Minute)
	for _, want := range []string{"first", "second", "third"} {
		if e := q.PopReady(now); e.Req.ID != want {
			t.Fatalf("pop = %q, want %q", e.Req.ID, want)
		}
	}
}

func TestPush_RequeuePreservesPosition(t *testing.T) {
	q := NewQueue(10)
	q.Push(entry("newer", core.PriorityNormal, t0.Add(time.Second)))

	// A re-queued entry keeps its original enqueue time and so goes
	// ahead of entries that arrived after it.
	q.Push(entry("older", core.PriorityNormal, t0))

	if e := q.PopReady(t0.Add(time.Minute)); e.Req.ID != "older" {
		t.Errorf("pop = %q, want the re-queued older entry", e.Req.ID)
	}
}

func TestPopReady_SkipsUnreleasedEntries(t *testing.T) {
	q := NewQueue(10)

	backingOff := entry("backing-off", core.PriorityNormal, t0)
	backingOff.ReleaseAt = t0.Add(time.Minute)
	q.Push(backingOff)
	q.Push(entry("ready", core.PriorityNormal, t0.Add(time.Second)))

	now := t0.Add(2 * time.Second)
	if e := q.PopReady(now); e == nil || e.Req.ID != "ready" {
		t.Fatalf("pop = %v, want the ready entry past the backing-off one", e)
	}
	if e := q.PopReady(now); e != nil {
		t.Errorf("pop = %q, want nil while the remaining entry backs off", e.Req.ID)
	}
	if e := q.PopReady(t0.Add(time.Minute)); e == nil || e.Req.ID != "backing-off" {
		t.Errorf("pop after release time = %v, want backing-off", e)
	}
}

// ============================================================================
// Capacity Tests
// ============================================================================

func TestPush_RejectsAtCapacity(t *testing.T) {
	q := NewQueue(2)
	if !q.Push(entry("a", core.PriorityNormal, t0)) || !q.Push(entry("b", core.PriorityNormal, t0)) {
		t.Fatal("pushes within capacity should succeed")
	}
	if q.Push(entry("c", core.PriorityCritical, t0)) {
		t.Error("push at capacity should fail regardless of priority")
	}
	if q.Len() != 2 {
		t.Errorf("len = %d, want 2", q.Len())
	}

	q.PopReady(t0.Add(time.Second))
	if !q.Push(entry("c", core.PriorityCritical, t0)) {
		t.Error("push should succeed once room frees up")
	}
}

// ============================================================================
// Expiry Tests
// ============================================================================

func TestExpireBefore_DropsOnlyExpired(t *testing.T) {
	q := NewQueue(10)

	expiring := entry("expiring", core.PriorityHigh, t0)
	expiring.ExpiresAt = t0.Add(5 * time.Second)
	q.Push(expiring)

	durable := entry("durable", core.PriorityLow, t0)
	q.Push(durable) // no expiry

	expired := q.ExpireBefore(t0.Add(10 * time.Second))
	if len(expired) != 1 || expired[0].Req.ID != "expiring" {
		t.Fatalf("expired = %v, want just the expiring entry", expired)
	}
	if q.Len() != 1 {
		t.Errorf("len = %d, want 1 survivor", q.Len())
	}
	if e := q.PopReady(t0.Add(11 * time.Second)); e.Req.ID != "durable" {
		t.Errorf("survivor = %q, want durable", e.Req.ID)
	}
}

// ============================================================================
// Removal & Wakeup Tests
// ============================================================================

func TestRemove_ExtractsByID(t *testing.T) {
	q := NewQueue(10)
	q.Push(entry("a", core.PriorityNormal, t0))
	q.Push(entry("b", core.PriorityNormal, t0.Add(time.Second)))

	if e := q.Remove("a"); e == nil || e.Req.ID != "a" {
		t.Fatalf("remove = %v, want entry a", e)
	}
	if e := q.Remove("a"); e != nil {
		t.Error("second remove of the same ID should return nil")
	}
	if q.Len() != 1 {
		t.Errorf("len = %d, want 1", q.Len())
	}
}

func TestNextWake_EarliestOfReleaseAndExpiry(t *testing.T) {
	q := NewQueue(10)

	if _, ok := q.NextWake(); ok {
		t.Fatal("empty queue has no wake time")
	}

	late := entry("late", core.PriorityNormal, t0)
	late.ReleaseAt = t0.Add(time.Minute)
	q.Push(late)

	soon := entry("soon", core.PriorityNormal, t0)
	soon.ReleaseAt = t0.Add(45 * time.Second)
	soon.ExpiresAt = t0.Add(10 * time.Second)
	q.Push(soon)

	next, ok := q.NextWake()
	if !ok {
		t.Fatal("expected a wake time")
	}
	if want := t0.Add(10 * time.Second); !next.Equal(want) {
		t.Errorf("next wake = %v, want the earliest expiry %v", next, want)
	}
}

func TestWake_SignaledOnPush(t *testing.T) {
	q := NewQueue(10)
	q.Push(entry("a", core.PriorityNormal, t0))

	select {
	case <-q.Wake():
	default:
		t.Error("push should signal the wake channel")
	}
}
