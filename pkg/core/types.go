package core

import (
	"time"
)

// Priority orders CallRequests in the scheduler queue. Higher values are
// served first. Among equal priorities, older requests are served first.
type Priority int

const (
	// PriorityBulk is for batch processing, the lowest priority.
	PriorityBulk Priority = iota

	// PriorityLow is for background tasks.
	PriorityLow

	// PriorityNormal is the default for standard requests.
	PriorityNormal

	// PriorityHigh is for user-facing requests.
	PriorityHigh

	// PriorityCritical is for system-critical requests.
	PriorityCritical
)

// String returns the priority name for logging and statistics.
func (p Priority) String() string {
	switch p {
	case PriorityBulk:
		return "bulk"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Priorities lists all priority levels from lowest to highest.
// This is used by the scheduler to partition its queue.
var Priorities = []Priority{
	PriorityBulk,
	PriorityLow,
	PriorityNormal,
	PriorityHigh,
	PriorityCritical,
}

// ProviderModel identifies a (provider, model) pair together with its static
// limits and per-token prices. Values are immutable once loaded from
// configuration; many CallRequests reference the same ProviderModel.
type ProviderModel struct {
	// Provider is the provider name (e.g., "openai", "anthropic").
	Provider string

	// Model is the model name (e.g., "gpt-4o", "claude-sonnet-4").
	Model string

	// RequestsPerMinute is the request rate limit for this model.
	RequestsPerMinute int

	// TokensPerMinute is the token rate limit for this model.
	TokensPerMinute int

	// CostPer1KInput is the price in USD per 1000 prompt tokens.
	CostPer1KInput float64

	// CostPer1KOutput is the price in USD per 1000 completion tokens.
	CostPer1KOutput float64
}

// Key returns the canonical "provider/model" identifier used as a map key
// by the ledgers and the failover router.
func (pm ProviderModel) Key() string {
	return pm.Provider + "/" + pm.Model
}

// IsZero reports whether the ProviderModel is the zero value.
func (pm ProviderModel) IsZero() bool {
	return pm.Provider == "" && pm.Model == ""
}

// CallRequest is one unit of outbound work submitted to the engine.
//
// The caller fills Target, EstimatedTokens, Priority, and optionally
// Fallbacks and Deadline. The engine owns the request from Submit until a
// terminal outcome and assigns ID and ArrivedAt if unset.
type CallRequest struct {
	// ID uniquely identifies the request. Assigned by the engine if empty.
	ID string

	// Target is the primary provider/model for this request.
	Target ProviderModel

	// Fallbacks is an ordered list of alternative provider/models to try
	// when Target is saturated or erroring. May be empty.
	Fallbacks []ProviderModel

	// EstimatedTokens is the caller's estimate of total tokens this request
	// will consume. If zero, the engine estimates from PromptText.
	EstimatedTokens int

	// PromptText optionally carries the prompt for token estimation.
	PromptText string

	// Priority orders the request in the scheduler queue.
	Priority Priority

	// Payload is the opaque request body handed to the transport.
	Payload any

	// ArrivedAt is when the engine accepted the request.
	ArrivedAt time.Time

	// Deadline is the wall-clock time by which the request must reach a
	// terminal outcome. Zero means no deadline. Total elapsed time across
	// queueing, retries, and backoff never exceeds it.
	Deadline time.Time

	// Metadata carries caller-defined key/value pairs surfaced on events.
	Metadata map[string]string
}

// HasDeadline reports whether the request carries a deadline.
func (r *CallRequest) HasDeadline() bool {
	return !r.Deadline.IsZero()
}

// Remaining returns the time left until the deadline, or a negative duration
// if it has already passed. Returns false if no deadline is set.
func (r *CallRequest) Remaining(now time.Time) (time.Duration, bool) {
	if !r.HasDeadline() {
		return 0, false
	}
	return r.Deadline.Sub(now), true
}

// AttemptOutcome classifies how a single execution try ended.
type AttemptOutcome int

const (
	// AttemptSucceeded means the provider returned a usable response.
	AttemptSucceeded AttemptOutcome = iota

	// AttemptRateLimited means the provider declared a rate limit (429-class).
	AttemptRateLimited

	// AttemptTransient means a network or 5xx-class failure occurred.
	AttemptTransient

	// AttemptFatal means a non-retryable failure occurred (4xx non-rate-limit).
	AttemptFatal
)

// String returns the outcome name for logging and events.
func (o AttemptOutcome) String() string {
	switch o {
	case AttemptSucceeded:
		return "succeeded"
	case AttemptRateLimited:
		return "rate_limited"
	case AttemptTransient:
		return "transient_error"
	case AttemptFatal:
		return "fatal_error"
	default:
		return "unknown"
	}
}

// Attempt records one execution try of a CallRequest. The retry controller
// owns the attempt sequence for the lifetime of a request.
type Attempt struct {
	// Number is the 1-based attempt number.
	Number int

	// Target is the provider/model this attempt was issued against.
	Target ProviderModel

	// StartedAt is when the transport call began.
	StartedAt time.Time

	// Outcome classifies how the attempt ended.
	Outcome AttemptOutcome

	// Signal carries provider-declared rate limit metadata, if any.
	Signal *RateLimitSignal

	// BackoffApplied is the delay that preceded this attempt (zero for the
	// first attempt). The retry controller uses it to keep successive
	// delays monotonically non-decreasing.
	BackoffApplied time.Duration

	// Err is the classified error for failed attempts.
	Err error
}

// RateLimitSignal carries rate limit state declared by a provider in a
// response, parsed by a providerhint.Hinter. All fields are optional;
// zero values mean the provider did not declare them.
type RateLimitSignal struct {
	// RequestsRemaining is the number of requests left in the provider window.
	RequestsRemaining int

	// RequestsLimit is the provider's request limit for the window.
	RequestsLimit int

	// TokensRemaining is the number of tokens left in the provider window.
	TokensRemaining int

	// TokensLimit is the provider's token limit for the window.
	TokensLimit int

	// ResetAt is when the provider window resets.
	ResetAt time.Time

	// RetryAfter is the provider-declared wait before retrying.
	RetryAfter time.Duration
}

// Exhausted reports whether the signal declares zero remaining capacity
// in either dimension.
func (s *RateLimitSignal) Exhausted() bool {
	if s == nil {
		return false
	}
	if s.RequestsLimit > 0 && s.RequestsRemaining <= 0 {
		return true
	}
	if s.TokensLimit > 0 && s.TokensRemaining <= 0 {
		return true
	}
	return false
}

// UsageRatio returns the fraction of the provider request window consumed
// (0.0 = fresh, 1.0 = exhausted) and whether the ratio is known.
func (s *RateLimitSignal) UsageRatio() (float64, bool) {
	if s == nil || s.RequestsLimit <= 0 {
		return 0, false
	}
	return 1.0 - float64(s.RequestsRemaining)/float64(s.RequestsLimit), true
}

// Status is the terminal state of a CallRequest.
type Status int

const (
	// StatusSucceeded means an attempt completed successfully.
	StatusSucceeded Status = iota

	// StatusRejected means admission was refused (budget, queue, deadline).
	StatusRejected

	// StatusExpired means the request expired while queued.
	StatusExpired

	// StatusGaveUp means the retry budget was exhausted.
	StatusGaveUp

	// StatusCancelled means the caller cancelled the request.
	StatusCancelled
)

// String returns the status name for logging and events.
func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusRejected:
		return "rejected"
	case StatusExpired:
		return "expired"
	case StatusGaveUp:
		return "gave_up"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Usage is the consumption reported by the transport for a completed call.
type Usage struct {
	// InputTokens is the number of prompt tokens consumed.
	InputTokens int

	// OutputTokens is the number of completion tokens produced.
	OutputTokens int
}

// TotalTokens returns the combined token count.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// Outcome is the terminal result of a CallRequest returned by Submit.
type Outcome struct {
	// RequestID is the request this outcome belongs to.
	RequestID string

	// Status is the terminal state.
	Status Status

	// Target is the provider/model that served (or last attempted) the call.
	Target ProviderModel

	// FailedOver indicates the serving target differs from the primary.
	FailedOver bool

	// Attempts is the number of execution tries made.
	Attempts int

	// Usage is the actual consumption (zero unless Status is Succeeded).
	Usage Usage

	// Cost is the actual spend in USD (zero unless Status is Succeeded).
	Cost float64

	// TotalWait is the cumulative time spent queued or backing off.
	TotalWait time.Duration

	// Err is the classified terminal error (nil when Status is Succeeded).
	Err error
}
