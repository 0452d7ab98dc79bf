package sched

import (
	"sync"
	"time"

	"arbiter-hq/tollgate/pkg/core"
)

// DefaultCapacity bounds the queue when the configured capacity is zero.
const DefaultCapacity = 1024

// Entry wraps a request awaiting re-admission.
type Entry struct {
	// Req is the queued request.
	Req *core.CallRequest

	// EnqueuedAt orders entries within a priority level. On a re-queue
	// after backoff the original enqueue time is kept, so a request
	// does not lose its place by having been tried.
	EnqueuedAt time.Time

	// ReleaseAt is the earliest instant the entry may be offered for
	// re-admission.
	ReleaseAt time.Time

	// ExpiresAt drops the entry as expired once passed. Zero means the
	// entry never expires on its own.
	ExpiresAt time.Time

	seq uint64
}

func (e *Entry) before(other *Entry) bool {
	if !e.EnqueuedAt.Equal(other.EnqueuedAt) {
		return e.EnqueuedAt.Before(other.EnqueuedAt)
	}
	return e.seq < other.seq
}

// Queue is a bounded, priority-partitioned holding area. Safe for
// concurrent use.
type Queue struct {
	mu       sync.Mutex
	levels   map[core.Priority][]*Entry
	size     int
	capacity int
	seq      uint64
	wake     chan struct{}
}

// NewQueue creates a queue holding at most capacity entries across all
// priority levels. A non-positive capacity takes DefaultCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		levels:   make(map[core.Priority][]*Entry),
		capacity: capacity,
		wake:     make(chan struct{}, 1),
	}
}

// Wake is signaled whenever an entry is pushed. The scheduling loop
// selects on it alongside its timer.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

// Push inserts an entry, keeping within-level order by enqueue time.
// Returns false when the queue is at capacity; the caller must reject
// the request rather than wait for room.
func (q *Queue) Push(e *Entry) bool {
	q.mu.Lock()
	if q.size >= q.capacity {
		q.mu.Unlock()
		return false
	}
	q.seq++
	e.seq = q.seq

	level := q.levels[e.Req.Priority]
	// Almost always an append: re-queued entries are the only ones that
	// carry an older enqueue time.
	i := len(level)
	for i > 0 && e.before(level[i-1]) {
		i--
	}
	level = append(level, nil)
	copy(level[i+1:], level[i:])
	level[i] = e
	q.levels[e.Req.Priority] = level
	q.size++
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// PopReady removes and returns the highest-priority entry whose release
// time has passed, oldest first within a level. Returns nil when
// nothing is eligible.
func (q *Queue) PopReady(now time.Time) *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := len(core.Priorities) - 1; i >= 0; i-- {
		p := core.Priorities[i]
		level := q.levels[p]
		for j, e := range level {
			if e.ReleaseAt.After(now) {
				continue
			}
			q.levels[p] = append(level[:j], level[j+1:]...)
			q.size--
			return e
		}
	}
	return nil
}

// ExpireBefore removes and returns every entry whose expiry has passed.
// The caller reports each as DeadlineExceeded; expired work is never
// retried.
func (q *Queue) ExpireBefore(now time.Time) []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var expired []*Entry
	for p, level := range q.levels {
		kept := level[:0]
		for _, e := range level {
			if !e.ExpiresAt.IsZero() && !e.ExpiresAt.After(now) {
				expired = append(expired, e)
				q.size--
			} else {
				kept = append(kept, e)
			}
		}
		q.levels[p] = kept
	}
	return expired
}

// Remove extracts the entry for the given request ID, typically on
// caller cancellation. Returns nil if no such entry is queued.
func (q *Queue) Remove(requestID string) *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	for p, level := range q.levels {
		for j, e := range level {
			if e.Req.ID == requestID {
				q.levels[p] = append(level[:j], level[j+1:]...)
				q.size--
				return e
			}
		}
	}
	return nil
}

// NextWake returns the earliest instant at which the queue's state can
// change on its own: the soonest release or expiry across all entries.
// The second return is false when the queue is empty.
func (q *Queue) NextWake() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var next time.Time
	for _, level := range q.levels {
		for _, e := range level {
			next = earlier(next, e.ReleaseAt)
			if !e.ExpiresAt.IsZero() {
				next = earlier(next, e.ExpiresAt)
			}
		}
	}
	return next, !next.IsZero()
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Capacity returns the configured maximum size.
func (q *Queue) Capacity() int {
	return q.capacity
}

func earlier(a, b time.Time) time.Time {
	if a.IsZero() || b.Before(a) {
		return b
	}
	return a
}
