package engine

import (
	"context"

	"arbiter-hq/tollgate/pkg/core"
)

// Result is what a transport reports for a completed call.
type Result struct {
	// Usage is the actual token consumption from the provider response.
	Usage core.Usage

	// Signal carries provider rate limit headers parsed from the
	// response, if any. Present on both successes and failures.
	Signal *core.RateLimitSignal

	// Response is the opaque provider response handed back to the caller.
	Response any
}

// Transport executes one call against a provider. Implementations own
// the HTTP client, request body construction, and credentials; the
// engine owns everything before and after the call.
//
// Errors must be classified into the core taxonomy (RateLimitedError,
// TransientProviderError, FatalProviderError) before being returned. A
// rate-limited error should carry the parsed signal so the retry
// controller can honor the provider's reset hint.
type Transport interface {
	Execute(ctx context.Context, target core.ProviderModel, payload any) (*Result, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, target core.ProviderModel, payload any) (*Result, error)

// Execute implements Transport.
func (f TransportFunc) Execute(ctx context.Context, target core.ProviderModel, payload any) (*Result, error) {
	return f(ctx, target, payload)
}
