// Package core contains the shared domain types for the Tollgate admission
// engine.
//
// # Overview
//
// Every other package in this repository speaks in terms of the types defined
// here:
//
//   - ProviderModel: a (provider, model) pair with its static limits and prices
//   - CallRequest: one unit of outbound work, with priority and deadline
//   - Attempt: a single execution try of a CallRequest
//   - RateLimitSignal: provider-declared rate limit state parsed from a response
//   - Outcome: the terminal result of a CallRequest
//
// The package also defines the error taxonomy (BudgetExceeded, QueueFull,
// DeadlineExceeded, RateLimited, ...) used across the admission decider, the
// scheduler, and the orchestrator, and the Clock capability that makes every
// time-dependent component deterministic under test.
//
// # Ownership
//
// A CallRequest is created by the caller and owned by the engine from Submit
// until a terminal outcome. ProviderModel values are immutable once loaded
// from configuration; many CallRequests reference the same ProviderModel.
package core
