package main

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"arbiter-hq/tollgate/pkg/core"
)

// ============================================================================
// Stub Transport Tests
// ============================================================================

func TestStubTransport_RateLimitSignalPerProviderFamily(t *testing.T) {
	tests := []struct {
		name   string
		target core.ProviderModel
	}{
		{"openai headers", core.ProviderModel{Provider: "openai", Model: "gpt-4o", RequestsPerMinute: 500}},
		{"anthropic headers", core.ProviderModel{Provider: "anthropic", Model: "claude-sonnet-4", RequestsPerMinute: 300}},
		{"generic headers", core.ProviderModel{Provider: "mistral", Model: "mistral-large", RequestsPerMinute: 120}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &stubTransport{
				rng:       rand.New(rand.NewSource(1)),
				limitRate: 1.0,
			}

			_, err := transport.Execute(context.Background(), tt.target, nil)

			var rl *core.RateLimitedError
			if !errors.As(err, &rl) {
				t.Fatalf("err = %v, want a rate limited error", err)
			}
			if rl.Signal == nil {
				t.Fatal("rate limit error should carry a parsed signal")
			}
			if rl.Signal.RequestsLimit != tt.target.RequestsPerMinute {
				t.Errorf("signal limit = %d, want %d", rl.Signal.RequestsLimit, tt.target.RequestsPerMinute)
			}
			if !rl.Signal.Exhausted() {
				t.Error("a saturated response should parse as exhausted")
			}
			if rl.Signal.RetryAfter <= 0 {
				t.Errorf("retry after = %s, want positive", rl.Signal.RetryAfter)
			}
		})
	}
}

func TestStubTransport_SuccessReportsUsage(t *testing.T) {
	transport := &stubTransport{rng: rand.New(rand.NewSource(1))}
	target := core.ProviderModel{Provider: "openai", Model: "gpt-4o", RequestsPerMinute: 500}

	res, err := transport.Execute(context.Background(), target, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Usage.InputTokens <= 0 || res.Usage.OutputTokens <= 0 {
		t.Errorf("usage = %+v, want positive token counts", res.Usage)
	}
}
