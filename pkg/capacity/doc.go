// Package capacity implements the capacity ledger: a per-(provider, model)
// tracker of consumed requests and tokens within rolling time windows.
//
// # Algorithm
//
// Each tracked dimension (requests, tokens) uses a sliding-window counter
// rather than a fixed bucket. The window is split into two adjacent
// sub-windows of half the window size; the estimated usage over the rolling
// window blends the current sub-window count with the previous one, decayed
// by how far the current sub-window has progressed:
//
//	estimate = current + previous * (1 - elapsed/subWindow)
//
// This avoids the boundary-burst problem of fixed windows while keeping
// memory constant per (provider, model).
//
// # Reservations
//
// Admission deducts capacity optimistically before the external call runs
// (one request unit plus the estimated token count), bounding concurrent
// over-admission. After the call completes, Release reconciles the ledger to
// the actual consumption and refunds the difference; releasing with zero
// actuals gives the whole reservation back.
//
// # Thread Safety
//
// The ledger serializes reservation and release per (provider, model) with a
// per-entry mutex. No lock is held while an external call executes.
package capacity
