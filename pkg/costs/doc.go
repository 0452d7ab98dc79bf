// Package costs implements the cost ledger: cumulative spend tracking per
// calendar budget period (day, ISO week, month) with hard limits and alert
// thresholds.
//
// # Periods
//
// Budget periods are calendar-aligned, not rolling: the daily period starts
// at midnight, the weekly period on Monday midnight, the monthly period on
// the first of the month. When a period rolls over its spend resets to zero
// and its alerts re-arm; rollover is atomic from the ledger's perspective.
//
// # Spend
//
// Spend is computed from actual token usage only, never from estimates, so
// the ledger cannot suffer phantom budget exhaustion. Admission instead asks
// CheckProjected with the candidate call's estimated cost, which rejects
// calls that would push any configured period over its limit.
//
// # Alerts
//
// Alert callbacks register per (period, threshold) and fire at most once per
// period when the used fraction crosses the threshold upward, including
// under concurrent spend updates that cross it simultaneously.
package costs
