// Package sched holds call requests waiting for capacity to free up.
//
// The queue is priority-partitioned: one FIFO sequence per priority
// level, served highest level first, oldest first within a level. An
// entry becomes eligible once its release time passes; an older entry
// that is not yet releasable does not block a younger one that is.
//
// The queue is a pure data structure guarded by its own mutex. It never
// sleeps and never touches the ledgers; the engine's scheduling loop
// drives it, waking on the earliest of the next release time, the next
// expiry, or a new enqueue (signaled on Wake).
package sched
