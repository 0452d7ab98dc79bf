// Package keys rotates API keys for a provider and benches keys that
// hit rate limits.
//
// A manager holds the key pool and a rotation strategy. When a key
// reports a rate limit it enters a cooldown sized from the provider's
// signal (retry-after or reset time) or the configured default, and the
// pool skips it until the cooldown passes. Keys are never logged in
// full; Masked renders the "sk-a...f9x2" form.
package keys
