package core

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts the time source so that windows, backoff, and scheduler
// wakeups are deterministic under test. Production code uses RealClock;
// tests use ManualClock and advance time explicitly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that delivers the current time once d has
	// elapsed. The channel is never closed.
	After(d time.Duration) <-chan time.Time
}

// RealClock is the production Clock backed by the time package.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now() }

// After implements Clock.
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// ManualClock is a Clock whose time only moves when Advance or Set is
// called. Pending After waiters fire, in deadline order, as time passes
// them. ManualClock is safe for concurrent use.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*manualWaiter
}

type manualWaiter struct {
	at time.Time
	ch chan time.Time
}

// NewManualClock creates a ManualClock starting at the given time.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now implements Clock.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After implements Clock. A non-positive duration fires immediately.
func (c *ManualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	at := c.now.Add(d)
	if d <= 0 {
		ch <- c.now
		return ch
	}

	c.waiters = append(c.waiters, &manualWaiter{at: at, ch: ch})
	return ch
}

// Advance moves the clock forward by d, firing any waiters whose deadline
// is reached.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.fireLocked()
	c.mu.Unlock()
}

// Set moves the clock to t. Moving backwards is not supported and panics:
// both ledger windows and the scheduler assume monotonic time.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.Before(c.now) {
		panic("core: ManualClock cannot move backwards")
	}
	c.now = t
	c.fireLocked()
}

// fireLocked delivers to all waiters whose deadline has passed.
// Caller must hold the lock.
func (c *ManualClock) fireLocked() {
	sort.Slice(c.waiters, func(i, j int) bool {
		return c.waiters[i].at.Before(c.waiters[j].at)
	})

	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			w.ch <- c.now
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
}
