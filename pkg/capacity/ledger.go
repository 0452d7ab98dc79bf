package capacity

import (
	"sync"
	"time"

	"arbiter-hq/tollgate/pkg/core"
)

// DefaultWindow is the rolling window for rate limits.
const DefaultWindow = time.Minute

// Config configures the capacity ledger.
type Config struct {
	// Window is the rolling window size for rate limits. Default: 1 minute.
	Window time.Duration

	// WarnThreshold is the remaining-capacity fraction (0.0-1.0) below
	// which OnLowCapacity fires. Zero disables warnings.
	WarnThreshold float64

	// OnLowCapacity is called after a granted reservation leaves less than
	// WarnThreshold of either dimension. Called without ledger locks held;
	// must not block.
	OnLowCapacity func(pm core.ProviderModel, snap Snapshot)
}

// Decision is the result of a reservation attempt.
type Decision struct {
	// Granted indicates the reservation was made.
	Granted bool

	// RetryAfter is how long until enough capacity frees up (if denied).
	// Never negative.
	RetryAfter time.Duration

	// Reservation is the handle to release after the call completes
	// (nil if denied).
	Reservation *Reservation
}

// Reservation is an optimistic capacity deduction made before the external
// call executes. It must be released exactly once with the actual
// consumption; releasing with zero actuals gives the reservation back.
type Reservation struct {
	pm       core.ProviderModel
	tokens   int64
	requests int64
	released bool
}

// Target returns the provider/model this reservation was made against.
func (r *Reservation) Target() core.ProviderModel { return r.pm }

// Snapshot is a read-only view of remaining capacity for one provider/model.
type Snapshot struct {
	// Requests is the number of requests still admissible in the window.
	Requests int64

	// Tokens is the number of tokens still admissible in the window.
	Tokens int64

	// ResetAt is when the current sub-window rolls over and previously
	// consumed capacity begins to decay.
	ResetAt time.Time
}

// Ledger tracks consumed requests and tokens per (provider, model) within
// rolling windows and answers how much capacity remains.
//
// Reservation and release are serialized per entry; distinct provider/models
// never contend with each other.
type Ledger struct {
	clock         core.Clock
	window        time.Duration
	warnThreshold float64
	onLow         func(core.ProviderModel, Snapshot)

	mu      sync.RWMutex
	entries map[string]*entry
}

// entry holds the counters for one (provider, model).
type entry struct {
	mu       sync.Mutex
	pm       core.ProviderModel
	requests slidingCounter
	tokens   slidingCounter
}

// NewLedger creates a capacity ledger. A nil clock defaults to real time.
func NewLedger(cfg Config, clock core.Clock) *Ledger {
	if clock == nil {
		clock = core.RealClock{}
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return &Ledger{
		clock:         clock,
		window:        window,
		warnThreshold: cfg.WarnThreshold,
		onLow:         cfg.OnLowCapacity,
		entries:       make(map[string]*entry),
	}
}

// CheckAndReserve attempts to reserve one request unit and estimatedTokens
// tokens for the given provider/model. Both dimensions must fit; a denial
// reserves nothing and reports the maximum wait across the failing
// dimensions.
func (l *Ledger) CheckAndReserve(pm core.ProviderModel, estimatedTokens int) *Decision {
	e := l.entry(pm)
	now := l.clock.Now()
	est := int64(estimatedTokens)

	e.mu.Lock()
	reqOK := e.requests.fits(now, 1)
	tokOK := e.tokens.fits(now, est)

	if !reqOK || !tokOK {
		retry := e.requests.waitFor(now, 1)
		if w := e.tokens.waitFor(now, est); w > retry {
			retry = w
		}
		e.mu.Unlock()
		return &Decision{Granted: false, RetryAfter: retry}
	}

	e.requests.add(now, 1)
	e.tokens.add(now, est)
	snap := e.snapshotLocked(now)
	e.mu.Unlock()

	l.maybeWarn(pm, snap)

	return &Decision{
		Granted:     true,
		Reservation: &Reservation{pm: pm, tokens: est, requests: 1},
	}
}

// Release reconciles a reservation with the actual consumption reported by
// the provider. The delta between reserved and actual amounts is refunded
// (or charged, if the estimate was low). Releasing with zero actuals gives
// the whole reservation back, e.g. when the call never reached the provider.
//
// Releasing the same reservation twice is a no-op.
func (l *Ledger) Release(r *Reservation, actualTokens, actualRequests int) {
	if r == nil {
		return
	}

	e := l.entry(r.pm)
	now := l.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if r.released {
		return
	}
	r.released = true

	e.tokens.add(now, int64(actualTokens)-r.tokens)
	e.requests.add(now, int64(actualRequests)-r.requests)
}

// Remaining returns a read-only snapshot of remaining capacity for the given
// provider/model.
func (l *Ledger) Remaining(pm core.ProviderModel) Snapshot {
	e := l.entry(pm)
	now := l.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(now)
}

// HasCapacity reports whether one request with estimatedTokens would be
// granted right now, without reserving anything. The failover router uses
// this for candidate filtering.
func (l *Ledger) HasCapacity(pm core.ProviderModel, estimatedTokens int) bool {
	e := l.entry(pm)
	now := l.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests.fits(now, 1) && e.tokens.fits(now, int64(estimatedTokens))
}

// entry returns the counters for pm, creating them on first use from the
// ProviderModel's static limits.
func (l *Ledger) entry(pm core.ProviderModel) *entry {
	key := pm.Key()

	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()
	if ok {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.entries[key]; ok {
		return e
	}
	e = &entry{
		pm:       pm,
		requests: newSlidingCounter(int64(pm.RequestsPerMinute), l.window),
		tokens:   newSlidingCounter(int64(pm.TokensPerMinute), l.window),
	}
	l.entries[key] = e
	return e
}

// snapshotLocked builds a Snapshot. Caller must hold the entry lock.
func (e *entry) snapshotLocked(now time.Time) Snapshot {
	return Snapshot{
		Requests: e.requests.available(now),
		Tokens:   e.tokens.available(now),
		ResetAt:  e.requests.resetAt(now),
	}
}

// maybeWarn fires the low-capacity callback when remaining capacity in
// either limited dimension falls to or below the warn threshold.
func (l *Ledger) maybeWarn(pm core.ProviderModel, snap Snapshot) {
	if l.onLow == nil || l.warnThreshold <= 0 {
		return
	}

	low := false
	if pm.RequestsPerMinute > 0 {
		frac := float64(snap.Requests) / float64(pm.RequestsPerMinute)
		low = low || frac <= l.warnThreshold
	}
	if pm.TokensPerMinute > 0 {
		frac := float64(snap.Tokens) / float64(pm.TokensPerMinute)
		low = low || frac <= l.warnThreshold
	}
	if low {
		l.onLow(pm, snap)
	}
}
