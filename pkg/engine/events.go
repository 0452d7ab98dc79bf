package engine

import (
	"time"

	"arbiter-hq/tollgate/pkg/core"
)

// EventType identifies a lifecycle transition surfaced to subscribers.
type EventType string

const (
	// EventAdmitted fires when a request wins a capacity reservation.
	EventAdmitted EventType = "admitted"

	// EventDelayed fires when a request parks in the queue.
	EventDelayed EventType = "delayed"

	// EventRetried fires when the retry controller schedules another attempt.
	EventRetried EventType = "retried"

	// EventFailedOver fires when a request is served by a fallback target.
	EventFailedOver EventType = "failed_over"

	// EventSucceeded fires on a successful attempt.
	EventSucceeded EventType = "succeeded"

	// EventGaveUp fires when the retry budget is exhausted or a fatal
	// error ends the attempt sequence.
	EventGaveUp EventType = "gave_up"

	// EventRejected fires on an admission rejection.
	EventRejected EventType = "rejected"

	// EventExpired fires when a queued request passes its deadline.
	EventExpired EventType = "expired"

	// EventCancelled fires when the caller cancels a waiting request.
	EventCancelled EventType = "cancelled"
)

// Event is one lifecycle transition of a request.
type Event struct {
	// Type is the transition kind.
	Type EventType

	// RequestID identifies the request.
	RequestID string

	// Target is the provider/model involved, when one is known.
	Target core.ProviderModel

	// Priority is the request's priority level.
	Priority core.Priority

	// Attempt is the attempt number for execution events (0 otherwise).
	Attempt int

	// FailedOver is true on admission events whose target is a fallback
	// rather than the request's primary.
	FailedOver bool

	// Wait is the delay associated with delayed/retried events.
	Wait time.Duration

	// Err is the classified error for failure events.
	Err error

	// At is when the transition happened.
	At time.Time
}

// Handler receives lifecycle events. Handlers run synchronously on the
// goroutine that produced the event and must not block.
type Handler func(Event)
