package providerhint

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"arbiter-hq/tollgate/pkg/core"
)

// Hinter extracts rate limit metadata from one provider's responses.
type Hinter interface {
	// ParseSignal reads the provider's rate limit headers. Returns nil
	// when the response carries no recognizable rate limit metadata.
	ParseSignal(headers http.Header) *core.RateLimitSignal

	// IsRateLimit reports whether a response status (with its body)
	// indicates a rate limit rather than some other failure.
	IsRateLimit(statusCode int, body []byte) bool
}

// For returns the hinter for a provider name, falling back to the
// generic header convention for unknown providers.
func For(provider string, clock core.Clock) Hinter {
	if clock == nil {
		clock = core.RealClock{}
	}
	switch strings.ToLower(provider) {
	case "openai":
		return &OpenAI{clock: clock}
	case "anthropic":
		return &Anthropic{clock: clock}
	default:
		return NewGeneric(clock)
	}
}

// OpenAI parses the x-ratelimit-* header family. Reset times are
// relative durations like "1s", "2m3s", or "1h2m3s".
type OpenAI struct {
	clock core.Clock
}

// ParseSignal implements Hinter.
func (o *OpenAI) ParseSignal(headers http.Header) *core.RateLimitSignal {
	sig := &core.RateLimitSignal{
		RequestsRemaining: headerInt(headers, "x-ratelimit-remaining-requests"),
		RequestsLimit:     headerInt(headers, "x-ratelimit-limit-requests"),
		TokensRemaining:   headerInt(headers, "x-ratelimit-remaining-tokens"),
		TokensLimit:       headerInt(headers, "x-ratelimit-limit-tokens"),
		RetryAfter:        parseRetryAfter(headers.Get("Retry-After"), o.clock),
	}

	reset := headers.Get("x-ratelimit-reset-requests")
	if reset == "" {
		reset = headers.Get("x-ratelimit-reset-tokens")
	}
	if d, err := time.ParseDuration(reset); err == nil && d > 0 {
		sig.ResetAt = o.clock.Now().Add(d)
	}

	if empty(sig) {
		return nil
	}
	return sig
}

// IsRateLimit implements Hinter. OpenAI occasionally reports rate
// limits as 503 with "rate" in the error body.
func (o *OpenAI) IsRateLimit(statusCode int, body []byte) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	if statusCode == http.StatusServiceUnavailable {
		return strings.Contains(strings.ToLower(string(body)), "rate")
	}
	return false
}

// Anthropic parses the anthropic-ratelimit-* header family. Reset times
// are RFC 3339 timestamps.
type Anthropic struct {
	clock core.Clock
}

// ParseSignal implements Hinter.
func (a *Anthropic) ParseSignal(headers http.Header) *core.RateLimitSignal {
	sig := &core.RateLimitSignal{
		RequestsRemaining: headerInt(headers, "anthropic-ratelimit-requests-remaining"),
		RequestsLimit:     headerInt(headers, "anthropic-ratelimit-requests-limit"),
		TokensRemaining:   headerInt(headers, "anthropic-ratelimit-tokens-remaining"),
		TokensLimit:       headerInt(headers, "anthropic-ratelimit-tokens-limit"),
		RetryAfter:        parseRetryAfter(headers.Get("Retry-After"), a.clock),
	}

	reset := headers.Get("anthropic-ratelimit-requests-reset")
	if reset == "" {
		reset = headers.Get("anthropic-ratelimit-tokens-reset")
	}
	if t, err := time.Parse(time.RFC3339, reset); err == nil {
		sig.ResetAt = t
	}

	if empty(sig) {
		return nil
	}
	return sig
}

// IsRateLimit implements Hinter. 529 is Anthropic's overloaded status.
func (a *Anthropic) IsRateLimit(statusCode int, _ []byte) bool {
	return statusCode == http.StatusTooManyRequests || statusCode == 529
}

// Generic parses the de facto standard x-ratelimit-remaining/limit/reset
// convention. Header names are configurable for APIs that rename them.
type Generic struct {
	clock core.Clock

	// RemainingHeader, LimitHeader, and ResetHeader override the
	// default x-ratelimit-* names.
	RemainingHeader string
	LimitHeader     string
	ResetHeader     string
}

// NewGeneric returns a Generic hinter with the default header names.
func NewGeneric(clock core.Clock) *Generic {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &Generic{
		clock:           clock,
		RemainingHeader: "x-ratelimit-remaining",
		LimitHeader:     "x-ratelimit-limit",
		ResetHeader:     "x-ratelimit-reset",
	}
}

// ParseSignal implements Hinter. The reset header may be a Unix
// timestamp in seconds or milliseconds, or an RFC 3339 timestamp.
func (g *Generic) ParseSignal(headers http.Header) *core.RateLimitSignal {
	sig := &core.RateLimitSignal{
		RequestsRemaining: headerInt(headers, g.RemainingHeader),
		RequestsLimit:     headerInt(headers, g.LimitHeader),
		RetryAfter:        parseRetryAfter(headers.Get("Retry-After"), g.clock),
	}

	if reset := headers.Get(g.ResetHeader); reset != "" {
		if ts, err := strconv.ParseFloat(reset, 64); err == nil {
			if ts > 1e12 { // milliseconds
				ts /= 1000
			}
			sig.ResetAt = time.Unix(int64(ts), 0).UTC()
		} else if t, err := time.Parse(time.RFC3339, reset); err == nil {
			sig.ResetAt = t
		}
	}

	if empty(sig) {
		return nil
	}
	return sig
}

// IsRateLimit implements Hinter.
func (g *Generic) IsRateLimit(statusCode int, _ []byte) bool {
	return statusCode == http.StatusTooManyRequests
}

func headerInt(headers http.Header, name string) int {
	v := headers.Get(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// parseRetryAfter handles both delay-seconds and HTTP-date forms.
func parseRetryAfter(v string, clock core.Clock) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(clock.Now()); d > 0 {
			return d
		}
	}
	return 0
}

func empty(s *core.RateLimitSignal) bool {
	return s.RequestsRemaining == 0 && s.RequestsLimit == 0 &&
		s.TokensRemaining == 0 && s.TokensLimit == 0 &&
		s.ResetAt.IsZero() && s.RetryAfter == 0
}
