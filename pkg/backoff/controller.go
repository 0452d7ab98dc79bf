package backoff

import (
	"log/slog"
	"math/rand"
	"time"

	"arbiter-hq/tollgate/pkg/core"
)

// Defaults applied by Policy.withDefaults for zero-valued fields.
const (
	DefaultMaxAttempts  = 5
	DefaultBaseDelay    = 1 * time.Second
	DefaultMaxDelay     = 60 * time.Second
	DefaultMaxTotalWait = 5 * time.Minute
	DefaultJitter       = 0.2
)

// Action is the controller's verdict on a failed attempt.
type Action int

const (
	// ActionRetry schedules another attempt after Decision.Delay.
	ActionRetry Action = iota
	// ActionGiveUp ends the retry sequence; Decision.Reason explains why.
	ActionGiveUp
)

// String returns a short name for logging.
func (a Action) String() string {
	if a == ActionRetry {
		return "retry"
	}
	return "give_up"
}

// Decision is the controller's answer for one failed attempt.
type Decision struct {
	Action Action

	// Delay is how long to wait before retrying. Only meaningful for
	// ActionRetry; never negative.
	Delay time.Duration

	// Reason carries the classified give-up cause: the fatal provider
	// error itself, a GaveUpError on exhaustion, or a
	// DeadlineExceededError when the next wait cannot fit.
	Reason error
}

// Policy bounds a retry sequence.
type Policy struct {
	// MaxAttempts is the total number of attempts allowed, the first
	// try included.
	MaxAttempts int

	// BaseDelay seeds the exponential: attempt n waits
	// BaseDelay * 2^(n-1), capped at MaxDelay, before jitter.
	BaseDelay time.Duration

	// MaxDelay caps a single backoff wait.
	MaxDelay time.Duration

	// MaxTotalWait caps the sum of all backoff waits for one request.
	MaxTotalWait time.Duration

	// JitterFraction spreads each delay uniformly within
	// [delay*(1-j), delay*(1+j)].
	JitterFraction float64
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxTotalWait <= 0 {
		p.MaxTotalWait = DefaultMaxTotalWait
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	return p
}

// Controller computes retry decisions from a request's attempt history.
// Stateless apart from its policy, so one controller serves all
// requests concurrently.
type Controller struct {
	policy Policy
	clock  core.Clock
	rand   func() float64
}

// NewController builds a controller with the given policy. Zero policy
// fields take package defaults.
func NewController(policy Policy, clock core.Clock) *Controller {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &Controller{
		policy: policy.withDefaults(),
		clock:  clock,
		rand:   rand.Float64,
	}
}

// WithRand substitutes the jitter source. Tests use it to pin delays.
func (c *Controller) WithRand(fn func() float64) *Controller {
	c.rand = fn
	return c
}

// NextAttempt classifies the most recent attempt and decides whether
// the request gets another try. attempts must be non-empty and ordered
// oldest first.
func (c *Controller) NextAttempt(req *core.CallRequest, attempts []core.Attempt) Decision {
	last := attempts[len(attempts)-1]

	if last.Outcome == core.AttemptFatal {
		slog.Debug("giving up on fatal error",
			"request_id", req.ID,
			"attempt", last.Number,
			"error", last.Err,
		)
		return Decision{Action: ActionGiveUp, Reason: last.Err}
	}

	if len(attempts) >= c.policy.MaxAttempts {
		return Decision{Action: ActionGiveUp, Reason: &core.GaveUpError{
			RequestID: req.ID,
			Attempts:  len(attempts),
			LastErr:   last.Err,
		}}
	}

	delay := c.delayFor(last)

	// Delays never shrink across a retry sequence.
	if delay < last.BackoffApplied {
		delay = last.BackoffApplied
	}

	var waited time.Duration
	for _, a := range attempts {
		waited += a.BackoffApplied
	}
	if waited+delay > c.policy.MaxTotalWait {
		return Decision{Action: ActionGiveUp, Reason: &core.GaveUpError{
			RequestID: req.ID,
			Attempts:  len(attempts),
			LastErr:   last.Err,
		}}
	}

	if remaining, ok := req.Remaining(c.clock.Now()); ok && delay > remaining {
		return Decision{Action: ActionGiveUp, Reason: &core.DeadlineExceededError{
			RequestID: req.ID,
			Deadline:  req.Deadline,
			Needed:    delay,
		}}
	}

	slog.Debug("retry scheduled",
		"request_id", req.ID,
		"attempt", last.Number,
		"delay", delay,
	)
	return Decision{Action: ActionRetry, Delay: delay}
}

// delayFor computes the pre-clamp wait for the attempt after last. A
// provider reset hint on a rate-limited attempt wins over the
// exponential schedule.
func (c *Controller) delayFor(last core.Attempt) time.Duration {
	if last.Outcome == core.AttemptRateLimited && last.Signal != nil {
		if hint := c.hintDelay(last.Signal); hint > 0 {
			return hint
		}
	}

	exp := c.policy.BaseDelay << uint(last.Number-1)
	if exp <= 0 || exp > c.policy.MaxDelay {
		exp = c.policy.MaxDelay
	}

	j := c.policy.JitterFraction
	if j > 0 {
		factor := 1 + j*(2*c.rand()-1)
		exp = time.Duration(float64(exp) * factor)
	}
	if exp < 0 {
		exp = 0
	}
	return exp
}

func (c *Controller) hintDelay(sig *core.RateLimitSignal) time.Duration {
	if sig.RetryAfter > 0 {
		return sig.RetryAfter
	}
	if !sig.ResetAt.IsZero() {
		if d := sig.ResetAt.Sub(c.clock.Now()); d > 0 {
			return d
		}
	}
	return 0
}
