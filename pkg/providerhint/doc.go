// Package providerhint parses provider-declared rate limit metadata out
// of HTTP responses.
//
// Each provider publishes limits differently: OpenAI uses x-ratelimit-*
// headers with relative reset durations ("1h2m3s"), Anthropic uses
// anthropic-ratelimit-* headers with RFC 3339 reset timestamps and a 529
// overload status, and most other APIs follow the de facto
// x-ratelimit-remaining/limit/reset convention with Unix timestamps.
// A Hinter normalizes all of these into a core.RateLimitSignal so the
// rest of the engine never sees raw headers.
package providerhint
