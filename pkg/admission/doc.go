// Package admission decides whether a call request proceeds now, waits,
// or is turned away.
//
// # Decision Order
//
// Checks run in a fixed sequence:
//
//  1. Cost budget: if the projected spend of this call would breach any
//     configured budget period the request is rejected immediately.
//     Budget-capped work is never queued, since waiting cannot make
//     money reappear.
//  2. Primary target capacity: a granted reservation admits the call.
//  3. Fallback targets, in configured order: the first with capacity
//     admits the call as a failover.
//  4. Otherwise the request is delayed by the smallest retry-after
//     across all candidates, unless that wait would overrun the
//     request's deadline, in which case it is rejected up front.
//
// The decider holds no locks of its own; all shared state lives in the
// capacity and cost ledgers it consults.
package admission
