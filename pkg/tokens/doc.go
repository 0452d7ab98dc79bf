// Package tokens estimates token consumption for prompts before a call
// is admitted.
//
// The BPE estimator wraps tiktoken and is accurate for OpenAI-family
// models; encoders are initialized lazily because tiktoken may download
// encoding data on first use. The character estimator divides prompt
// length by a model-specific characters-per-token ratio, which stays
// within a few percent for typical English text and never fails, so it
// doubles as the fallback when an encoding is unavailable.
package tokens
