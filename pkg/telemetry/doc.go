// Package telemetry groups Tollgate's observability: structured logging
// (telemetry/logging) and Prometheus metrics (telemetry/metrics).
package telemetry
