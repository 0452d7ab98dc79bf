package providerhint

import (
	"net/http"
	"testing"
	"time"

	"arbiter-hq/tollgate/pkg/core"
)

func headers(kv map[string]string) http.Header {
	h := make(http.Header)
	for k, v := range kv {
		h.Set(k, v)
	}
	return h
}

// ============================================================================
// OpenAI Tests
// ============================================================================

func TestOpenAI_ParsesHeaderFamily(t *testing.T) {
	clock := core.NewManualClock(time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC))
	h := For("openai", clock)

	sig := h.ParseSignal(headers(map[string]string{
		"x-ratelimit-remaining-requests": "42",
		"x-ratelimit-limit-requests":     "500",
		"x-ratelimit-remaining-tokens":   "39000",
		"x-ratelimit-limit-tokens":       "40000",
		"x-ratelimit-reset-requests":     "1h2m3s",
	}))

	if sig == nil {
		t.Fatal("expected a signal")
	}
	if sig.RequestsRemaining != 42 || sig.RequestsLimit != 500 {
		t.Errorf("requests = %d/%d, want 42/500", sig.RequestsRemaining, sig.RequestsLimit)
	}
	if sig.TokensRemaining != 39000 || sig.TokensLimit != 40000 {
		t.Errorf("tokens = %d/%d, want 39000/40000", sig.TokensRemaining, sig.TokensLimit)
	}
	want := clock.Now().Add(time.Hour + 2*time.Minute + 3*time.Second)
	if !sig.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", sig.ResetAt, want)
	}
}

func TestOpenAI_ShortRelativeReset(t *testing.T) {
	clock := core.NewManualClock(time.Unix(1000, 0))
	h := For("openai", clock)

	sig := h.ParseSignal(headers(map[string]string{"x-ratelimit-reset-tokens": "250ms"}))
	if sig == nil {
		t.Fatal("expected a signal")
	}
	if want := clock.Now().Add(250 * time.Millisecond); !sig.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", sig.ResetAt, want)
	}
}

func TestOpenAI_RateLimitClassification(t *testing.T) {
	h := For("openai", nil)

	if !h.IsRateLimit(429, nil) {
		t.Error("429 is always a rate limit")
	}
	if !h.IsRateLimit(503, []byte(`{"error": "Rate limit reached"}`)) {
		t.Error("503 with a rate-related body is a rate limit")
	}
	if h.IsRateLimit(503, []byte(`{"error": "upstream timeout"}`)) {
		t.Error("plain 503 is not a rate limit")
	}
	if h.IsRateLimit(400, nil) {
		t.Error("400 is not a rate limit")
	}
}

// ============================================================================
// Anthropic Tests
// ============================================================================

func TestAnthropic_ParsesHeaderFamily(t *testing.T) {
	clock := core.NewManualClock(time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC))
	h := For("anthropic", clock)

	sig := h.ParseSignal(headers(map[string]string{
		"anthropic-ratelimit-requests-remaining": "0",
		"anthropic-ratelimit-requests-limit":     "50",
		"anthropic-ratelimit-requests-reset":     "2026-03-11T12:00:45Z",
		"Retry-After":                            "45",
	}))

	if sig == nil {
		t.Fatal("expected a signal")
	}
	if !sig.Exhausted() {
		t.Error("zero remaining of a positive limit should read as exhausted")
	}
	if want := time.Date(2026, 3, 11, 12, 0, 45, 0, time.UTC); !sig.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", sig.ResetAt, want)
	}
	if sig.RetryAfter != 45*time.Second {
		t.Errorf("RetryAfter = %v, want 45s", sig.RetryAfter)
	}
}

func TestAnthropic_OverloadedCountsAsRateLimit(t *testing.T) {
	h := For("anthropic", nil)
	if !h.IsRateLimit(529, nil) {
		t.Error("529 overloaded should classify as a rate limit")
	}
	if !h.IsRateLimit(429, nil) {
		t.Error("429 should classify as a rate limit")
	}
}

// ============================================================================
// Generic Tests
// ============================================================================

func TestGeneric_UnixTimestampReset(t *testing.T) {
	clock := core.NewManualClock(time.Unix(1_700_000_000, 0))
	h := NewGeneric(clock)

	sig := h.ParseSignal(headers(map[string]string{
		"x-ratelimit-remaining": "3",
		"x-ratelimit-limit":     "60",
		"x-ratelimit-reset":     "1700000060",
	}))

	if sig == nil {
		t.Fatal("expected a signal")
	}
	if want := time.Unix(1_700_000_060, 0).UTC(); !sig.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", sig.ResetAt, want)
	}
}

func TestGeneric_MillisecondTimestampReset(t *testing.T) {
	h := NewGeneric(core.NewManualClock(time.Unix(1000, 0)))

	sig := h.ParseSignal(headers(map[string]string{"x-ratelimit-reset": "1700000060000"}))
	if sig == nil {
		t.Fatal("expected a signal")
	}
	if want := time.Unix(1_700_000_060, 0).UTC(); !sig.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v (milliseconds downscaled)", sig.ResetAt, want)
	}
}

func TestGeneric_CustomHeaderNames(t *testing.T) {
	h := NewGeneric(core.NewManualClock(time.Unix(1000, 0)))
	h.RemainingHeader = "x-quota-left"
	h.LimitHeader = "x-quota-max"

	sig := h.ParseSignal(headers(map[string]string{
		"x-quota-left": "7",
		"x-quota-max":  "100",
	}))
	if sig == nil || sig.RequestsRemaining != 7 || sig.RequestsLimit != 100 {
		t.Errorf("signal = %+v, want 7/100 from renamed headers", sig)
	}
}

func TestParseSignal_NoMetadataReturnsNil(t *testing.T) {
	for _, name := range []string{"openai", "anthropic", "other"} {
		h := For(name, nil)
		if sig := h.ParseSignal(headers(map[string]string{"Content-Type": "application/json"})); sig != nil {
			t.Errorf("%s: signal = %+v, want nil without rate limit headers", name, sig)
		}
	}
}

func TestParseRetryAfter_HTTPDate(t *testing.T) {
	clock := core.NewManualClock(time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC))
	date := time.Date(2026, 3, 11, 12, 0, 30, 0, time.UTC).Format(http.TimeFormat)

	if got := parseRetryAfter(date, clock); got != 30*time.Second {
		t.Errorf("parseRetryAfter(date) = %v, want 30s", got)
	}
	if got := parseRetryAfter("not-a-date", clock); got != 0 {
		t.Errorf("parseRetryAfter(garbage) = %v, want 0", got)
	}
}
