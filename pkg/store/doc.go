// Package store journals per-call spend so budget ledgers survive process
// restarts.
//
// The journal is deliberately small: one append-only record per completed
// call, a range read used to warm-start the cost ledger on boot, and a
// purge used by the retention janitor. It is not a usage analytics store;
// records outside the longest live accounting period are dead weight and
// the janitor removes them on a cron schedule.
//
// Two Backend implementations are provided: an in-memory journal for
// tests and single-run tools, and a SQLite journal (modernc.org/sqlite,
// no cgo) for persistence.
package store
