package store

import (
	"context"
	"time"

	"arbiter-hq/tollgate/pkg/core"
	"arbiter-hq/tollgate/pkg/costs"
)

// SpendRecord is one journaled call: when it completed, what it targeted,
// and what it consumed.
type SpendRecord struct {
	// ID uniquely identifies the record (the engine's request ID).
	ID string

	// At is when the call completed.
	At time.Time

	// Provider and Model identify the target actually used, after any
	// failover.
	Provider string
	Model    string

	// InputTokens and OutputTokens are the actual reported usage.
	InputTokens  int
	OutputTokens int

	// Cost is the call's cost in USD.
	Cost float64
}

// Target returns the record's provider/model pair.
func (r SpendRecord) Target() core.ProviderModel {
	return core.ProviderModel{Provider: r.Provider, Model: r.Model}
}

// Backend persists spend records.
type Backend interface {
	// Append journals one record.
	Append(ctx context.Context, rec SpendRecord) error

	// Since returns all records at or after the given time, oldest
	// first.
	Since(ctx context.Context, t time.Time) ([]SpendRecord, error)

	// PurgeBefore deletes records strictly older than the given time
	// and reports how many were removed.
	PurgeBefore(ctx context.Context, t time.Time) (int64, error)

	// Close releases backend resources.
	Close() error
}

// RecordOutcome journals a successful outcome. Non-success outcomes spent
// nothing and are not journaled.
func RecordOutcome(ctx context.Context, b Backend, out *core.Outcome, at time.Time) error {
	if out == nil || out.Status != core.StatusSucceeded {
		return nil
	}
	return b.Append(ctx, SpendRecord{
		ID:           out.RequestID,
		At:           at,
		Provider:     out.Target.Provider,
		Model:        out.Target.Model,
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
		Cost:         out.Cost,
	})
}

// WarmStart replays journaled spend since the given time into a cost
// ledger, so budget accounting picks up where the previous process left
// off. The ledger's own period bookkeeping discards records that fall
// outside a period. Returns the number of records replayed.
func WarmStart(ctx context.Context, b Backend, since time.Time, ledger *costs.Ledger) (int, error) {
	recs, err := b.Since(ctx, since)
	if err != nil {
		return 0, err
	}
	for _, rec := range recs {
		ledger.AddSpend(rec.At, rec.Target(), rec.Cost)
	}
	return len(recs), nil
}
