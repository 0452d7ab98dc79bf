package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryBackend is an in-process journal. Records are kept sorted by
// completion time.
type MemoryBackend struct {
	mu   sync.RWMutex
	recs []SpendRecord
}

// NewMemoryBackend returns an empty in-memory journal.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Append journals one record.
func (m *MemoryBackend) Append(_ context.Context, rec SpendRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recs = append(m.recs, rec)
	// Appends normally arrive in time order; sort only when one did not.
	n := len(m.recs)
	if n > 1 && m.recs[n-1].At.Before(m.recs[n-2].At) {
		sort.SliceStable(m.recs, func(i, j int) bool { return m.recs[i].At.Before(m.recs[j].At) })
	}
	return nil
}

// Since returns all records at or after t, oldest first.
func (m *MemoryBackend) Since(_ context.Context, t time.Time) ([]SpendRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := sort.Search(len(m.recs), func(i int) bool { return !m.recs[i].At.Before(t) })
	out := make([]SpendRecord, len(m.recs)-i)
	copy(out, m.recs[i:])
	return out, nil
}

// PurgeBefore deletes records strictly older than t.
func (m *MemoryBackend) PurgeBefore(_ context.Context, t time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := sort.Search(len(m.recs), func(i int) bool { return !m.recs[i].At.Before(t) })
	if i == 0 {
		return 0, nil
	}
	m.recs = append(m.recs[:0], m.recs[i:]...)
	return int64(i), nil
}

// Close is a no-op for the in-memory journal.
func (m *MemoryBackend) Close() error { return nil }
