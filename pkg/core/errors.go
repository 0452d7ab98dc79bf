package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the admission taxonomy. Callers match these with
// errors.Is; the rich error types below carry the details.
var (
	// ErrBudgetExceeded is returned when a cost budget is breached.
	// Budget failures are fail-fast: never queued, never retried.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrQueueFull is returned when the scheduler queue is at capacity.
	ErrQueueFull = errors.New("request queue full")

	// ErrDeadlineExceeded is returned when a request expired while queued
	// or a projected delay exceeds the remaining time to its deadline.
	ErrDeadlineExceeded = errors.New("deadline exceeded")

	// ErrRateLimited marks a provider-declared rate limit. It drives a
	// retry decision and only surfaces when retries are exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransientProvider marks a network or 5xx-class provider failure.
	ErrTransientProvider = errors.New("transient provider error")

	// ErrFatalProvider marks a non-retryable provider failure
	// (4xx non-rate-limit, e.g. an invalid request).
	ErrFatalProvider = errors.New("fatal provider error")

	// ErrGaveUp is returned when the retry budget is exhausted. The last
	// attempt's error is attached via Unwrap.
	ErrGaveUp = errors.New("gave up after retries")

	// ErrCancelled is returned when the caller cancelled the request while
	// it was queued or backing off.
	ErrCancelled = errors.New("request cancelled")
)

// BudgetExceededError reports a cost budget breach.
type BudgetExceededError struct {
	// Period is the budget period that was breached ("daily", "weekly", "monthly").
	Period string

	// Limit is the configured budget in USD.
	Limit float64

	// Spent is the current spend in USD.
	Spent float64
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s budget of $%.2f exceeded ($%.2f spent)", e.Period, e.Limit, e.Spent)
}

// Is implements error matching for errors.Is().
func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}

// QueueFullError reports that the scheduler queue rejected an enqueue.
type QueueFullError struct {
	// Capacity is the configured maximum queue size.
	Capacity int
}

// Error implements the error interface.
func (e *QueueFullError) Error() string {
	return fmt.Sprintf("request queue full (capacity %d)", e.Capacity)
}

// Is implements error matching for errors.Is().
func (e *QueueFullError) Is(target error) bool {
	return target == ErrQueueFull
}

// DeadlineExceededError reports that a request cannot complete before its
// deadline, either because it expired while queued or because the minimum
// wait for capacity exceeds the remaining time.
type DeadlineExceededError struct {
	// RequestID is the affected request.
	RequestID string

	// Deadline is the request's configured deadline.
	Deadline time.Time

	// Needed is the minimum wait that was required, if known.
	Needed time.Duration
}

// Error implements the error interface.
func (e *DeadlineExceededError) Error() string {
	if e.Needed > 0 {
		return fmt.Sprintf("request %s cannot meet deadline: needs %s more capacity wait", e.RequestID, e.Needed)
	}
	return fmt.Sprintf("request %s deadline exceeded", e.RequestID)
}

// Is implements error matching for errors.Is().
func (e *DeadlineExceededError) Is(target error) bool {
	return target == ErrDeadlineExceeded
}

// RateLimitedError reports a provider-declared rate limit on one attempt.
type RateLimitedError struct {
	// Target is the provider/model that rate limited the attempt.
	Target ProviderModel

	// Signal is the parsed rate limit metadata, if any.
	Signal *RateLimitSignal

	// Message is the provider's error message.
	Message string
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	if e.Signal != nil && e.Signal.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited (retry after %s): %s", e.Target.Key(), e.Signal.RetryAfter, e.Message)
	}
	return fmt.Sprintf("%s rate limited: %s", e.Target.Key(), e.Message)
}

// Is implements error matching for errors.Is().
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// TransientProviderError reports a retryable provider failure.
type TransientProviderError struct {
	// Target is the provider/model where the failure occurred.
	Target ProviderModel

	// StatusCode is the HTTP status code (0 for network-level failures).
	StatusCode int

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *TransientProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s transient error (status %d): %v", e.Target.Key(), e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s transient error: %v", e.Target.Key(), e.Cause)
}

// Is implements error matching for errors.Is().
func (e *TransientProviderError) Is(target error) bool {
	return target == ErrTransientProvider
}

// Unwrap returns the underlying error for error chain traversal.
func (e *TransientProviderError) Unwrap() error {
	return e.Cause
}

// FatalProviderError reports a non-retryable provider failure.
type FatalProviderError struct {
	// Target is the provider/model that rejected the request.
	Target ProviderModel

	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the provider's error message.
	Message string
}

// Error implements the error interface.
func (e *FatalProviderError) Error() string {
	return fmt.Sprintf("%s fatal error (status %d): %s", e.Target.Key(), e.StatusCode, e.Message)
}

// Is implements error matching for errors.Is().
func (e *FatalProviderError) Is(target error) bool {
	return target == ErrFatalProvider
}

// GaveUpError reports retry exhaustion with the last attempt's error attached.
type GaveUpError struct {
	// RequestID is the affected request.
	RequestID string

	// Attempts is the number of execution tries made.
	Attempts int

	// LastErr is the classified error from the final attempt.
	LastErr error
}

// Error implements the error interface.
func (e *GaveUpError) Error() string {
	return fmt.Sprintf("request %s gave up after %d attempts: %v", e.RequestID, e.Attempts, e.LastErr)
}

// Is implements error matching for errors.Is().
func (e *GaveUpError) Is(target error) bool {
	return target == ErrGaveUp
}

// Unwrap returns the last attempt's error for error chain traversal.
func (e *GaveUpError) Unwrap() error {
	return e.LastErr
}

// Classify maps a classified error to its AttemptOutcome. Errors that do not
// belong to the taxonomy are treated as transient: the propagation policy
// requires every transport error to be converted before reaching the engine,
// so an unclassified error is a transport bug, and retrying is the safer
// default.
func Classify(err error) AttemptOutcome {
	switch {
	case err == nil:
		return AttemptSucceeded
	case errors.Is(err, ErrRateLimited):
		return AttemptRateLimited
	case errors.Is(err, ErrFatalProvider):
		return AttemptFatal
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return AttemptFatal
	default:
		return AttemptTransient
	}
}

// SignalOf extracts the provider rate limit signal from a classified error,
// or nil if the error carries none.
func SignalOf(err error) *RateLimitSignal {
	var rle *RateLimitedError
	if errors.As(err, &rle) {
		return rle.Signal
	}
	return nil
}
