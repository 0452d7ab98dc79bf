package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteConfig contains configuration for the SQLite journal.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

const schema = `
CREATE TABLE IF NOT EXISTS spend (
	id            TEXT PRIMARY KEY,
	at            INTEGER NOT NULL,
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost          REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_spend_at ON spend (at);
`

// SQLiteBackend journals spend records in a SQLite database. Times are
// stored as Unix milliseconds.
type SQLiteBackend struct {
	db  *sql.DB
	log *slog.Logger
}

// NewSQLiteBackend opens (creating if needed) the journal database at
// cfg.Path and ensures the schema exists.
func NewSQLiteBackend(cfg SQLiteConfig, logger *slog.Logger) (*SQLiteBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %q: %w", cfg.Path, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", cfg.BusyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	logger.Info("spend journal opened", "path", cfg.Path)
	return &SQLiteBackend{db: db, log: logger}, nil
}

// Append journals one record. Re-appending an existing request ID
// replaces the row, which makes replays after a crash idempotent.
func (s *SQLiteBackend) Append(ctx context.Context, rec SpendRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO spend (id, at, provider, model, input_tokens, output_tokens, cost)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.At.UnixMilli(), rec.Provider, rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.Cost,
	)
	if err != nil {
		return fmt.Errorf("failed to journal spend for %q: %w", rec.ID, err)
	}
	return nil
}

// Since returns all records at or after t, oldest first.
func (s *SQLiteBackend) Since(ctx context.Context, t time.Time) ([]SpendRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, at, provider, model, input_tokens, output_tokens, cost
		FROM spend WHERE at >= ? ORDER BY at ASC`, t.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	defer rows.Close()

	var out []SpendRecord
	for rows.Next() {
		var rec SpendRecord
		var atMillis int64
		if err := rows.Scan(&rec.ID, &atMillis, &rec.Provider, &rec.Model,
			&rec.InputTokens, &rec.OutputTokens, &rec.Cost); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		rec.At = time.UnixMilli(atMillis)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return out, nil
}

// PurgeBefore deletes records strictly older than t.
func (s *SQLiteBackend) PurgeBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM spend WHERE at < ?`, t.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to purge journal: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
