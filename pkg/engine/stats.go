package engine

import (
	"sync/atomic"

	"arbiter-hq/tollgate/pkg/core"
)

// Stats is a snapshot of engine activity since start.
type Stats struct {
	// Submitted counts all requests accepted by Submit.
	Submitted int64

	// Succeeded, Rejected, Expired, GaveUp, and Cancelled count
	// terminal outcomes by status.
	Succeeded int64
	Rejected  int64
	Expired   int64
	GaveUp    int64
	Cancelled int64

	// Queued is the current scheduler queue depth.
	Queued int
}

type stats struct {
	submitted atomic.Int64
	succeeded atomic.Int64
	rejected  atomic.Int64
	expired   atomic.Int64
	gaveUp    atomic.Int64
	cancelled atomic.Int64
}

func (s *stats) record(status core.Status) {
	s.submitted.Add(1)
	switch status {
	case core.StatusSucceeded:
		s.succeeded.Add(1)
	case core.StatusRejected:
		s.rejected.Add(1)
	case core.StatusExpired:
		s.expired.Add(1)
	case core.StatusGaveUp:
		s.gaveUp.Add(1)
	case core.StatusCancelled:
		s.cancelled.Add(1)
	}
}

// Stats returns a snapshot of engine counters and queue depth.
func (e *Engine) Stats() Stats {
	return Stats{
		Submitted: e.stats.submitted.Load(),
		Succeeded: e.stats.succeeded.Load(),
		Rejected:  e.stats.rejected.Load(),
		Expired:   e.stats.expired.Load(),
		GaveUp:    e.stats.gaveUp.Load(),
		Cancelled: e.stats.cancelled.Load(),
		Queued:    e.queue.Len(),
	}
}
