// Tollgate is an admission control and resilience engine for outbound
// LLM API calls.
//
// It enforces per-provider/model rate limits and spend budgets, queues
// requests by priority when capacity is exhausted, retries failed calls
// with jittered exponential backoff, and fails over to alternate
// targets when a primary is saturated.
//
// Usage:
//
//	# Check a configuration file
//	tollgate validate --config tollgate.yaml
//
//	# Replay a synthetic workload through the engine
//	tollgate simulate --config tollgate.yaml --requests 500
//
//	# Show version information
//	tollgate version
package main

func main() {
	Execute()
}
