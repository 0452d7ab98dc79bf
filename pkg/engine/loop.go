package engine

import (
	"context"
	"time"

	"arbiter-hq/tollgate/pkg/admission"
	"arbiter-hq/tollgate/pkg/core"
	"arbiter-hq/tollgate/pkg/sched"
)

// schedule is the engine's single scheduler goroutine. It wakes on the
// earliest of a queued entry's release time, an expiry, or a new
// enqueue, then drains expired entries and re-admits released ones one
// at a time in priority order. Serializing re-admission here is what
// keeps queue ordering intact under concurrent submissions.
func (e *Engine) schedule(ctx context.Context) {
	defer close(e.done)

	for {
		now := e.clock.Now()

		for _, entry := range e.queue.ExpireBefore(now) {
			e.expire(entry)
		}

		for {
			entry := e.queue.PopReady(e.clock.Now())
			if entry == nil {
				break
			}
			e.readmit(entry)
		}

		var timer <-chan time.Time
		if next, ok := e.queue.NextWake(); ok {
			wait := next.Sub(e.clock.Now())
			if wait < 0 {
				wait = 0
			}
			timer = e.clock.After(wait)
		}

		select {
		case <-ctx.Done():
			return
		case <-e.queue.Wake():
		case <-timer:
		}
	}
}

// readmit runs an admission pass for a released entry and hands the
// result to its waiting Submit goroutine. A renewed delay re-parks the
// entry with its original enqueue time, so it keeps its place in line.
func (e *Engine) readmit(entry *sched.Entry) {
	dec := e.decider.Decide(entry.Req)

	if dec.Verdict == admission.VerdictDelay {
		entry.ReleaseAt = e.clock.Now().Add(dec.RetryAfter)
		if e.queue.Push(entry) {
			return
		}
		// Capacity was taken by newer submissions while this entry was
		// out of the queue. Surface it as QueueFull.
		dec = admission.Decision{
			Verdict: admission.VerdictReject,
			Err:     &core.QueueFullError{Capacity: e.queue.Capacity()},
		}
	}

	if !e.deliver(entry.Req.ID, dec) && dec.Reservation != nil {
		// Waiter cancelled between pop and delivery.
		e.capacity.Release(dec.Reservation, 0, 0)
	}
}

// expire reports a queued entry whose deadline passed while waiting.
func (e *Engine) expire(entry *sched.Entry) {
	err := &core.DeadlineExceededError{
		RequestID: entry.Req.ID,
		Deadline:  entry.ExpiresAt,
	}
	e.deliver(entry.Req.ID, admission.Decision{Verdict: admission.VerdictReject, Err: err})
	e.log.Debug("queued request expired",
		"request_id", entry.Req.ID,
		"queued_for", e.clock.Now().Sub(entry.EnqueuedAt),
	)
}
