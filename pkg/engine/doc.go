// Package engine is the public entry point of the admission and
// scheduling engine. It ties the capacity and cost ledgers, the
// admission decider, the retry controller, the failover router, and the
// priority queue into one request lifecycle.
//
// # Lifecycle
//
// Submit drives a request end to end in the caller's goroutine:
//
//	PENDING -> ADMITTED -> SUCCEEDED
//	                    -> RETRYING -> ADMITTED | GAVE_UP
//	        -> QUEUED   -> ADMITTED | EXPIRED
//	        -> REJECTED
//
// Admission rejections (budget, full queue, unmeetable deadline) are
// fail-fast. A delayed request parks in the priority queue; a single
// scheduler goroutine re-admits released entries one at a time in
// priority order, so queue ordering holds even under concurrent
// submissions. Retries back off in the submitting goroutine with a
// cancellable wait.
//
// # Locking
//
// The engine holds no lock while the transport executes. Capacity is
// reserved optimistically before the call and reconciled by Release
// afterward; the ledgers serialize only their own mutations.
package engine
