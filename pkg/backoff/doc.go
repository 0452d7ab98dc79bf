// Package backoff decides whether and when a failed attempt is retried.
//
// The controller classifies the most recent attempt: a fatal provider
// error gives up immediately, a provider-declared rate limit honors the
// provider's reset hint when one is present, and transient failures use
// jittered exponential backoff. Give-up triggers are the configured
// attempt ceiling, the cumulative wait ceiling, and the request
// deadline, whichever fires first.
//
// Successive retry delays for one request never shrink: jitter is
// clamped so each delay is at least the previous one. Randomness is
// injectable so tests run deterministically.
package backoff
