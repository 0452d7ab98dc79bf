// Package failover selects alternative provider/model targets when the
// primary is saturated or erroring.
//
// The router is pure selection logic: given a request's ordered fallback
// list and the set of targets already tried in the current attempt
// sequence, it returns the first candidate that still has capacity. It
// never retries or invokes a transport itself.
//
// Targets that reported a rate-limit signal can be placed in a cooldown
// via MarkSaturated; cooling targets sort behind healthy ones so the
// router prefers fresh capacity without permanently abandoning a
// configured fallback.
package failover
