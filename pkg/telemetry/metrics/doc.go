// Package metrics registers Prometheus collectors for the admission
// engine.
//
// The Collector subscribes to engine events via engine.Subscribe and
// translates them into counters and histograms; gauges for queue depth
// and budget usage are refreshed by polling the engine and cost ledger.
// Exposing the registry over HTTP is the embedding application's
// concern.
package metrics
