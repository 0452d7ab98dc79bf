package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JanitorConfig configures the retention janitor.
type JanitorConfig struct {
	// RetentionDays is how far back records are kept. Zero disables
	// the janitor.
	RetentionDays int

	// Schedule is the cron expression purge runs on, e.g. "0 3 * * *"
	// for daily at 3 AM.
	Schedule string
}

// Janitor purges journal records past their retention horizon on a cron
// schedule.
type Janitor struct {
	backend Backend
	cfg     JanitorConfig
	cron    *cron.Cron
	log     *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewJanitor creates a retention janitor over the given backend.
func NewJanitor(backend Backend, cfg JanitorConfig, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		backend: backend,
		cfg:     cfg,
		cron:    cron.New(),
		log:     logger,
	}
}

// Start schedules purge runs until the context is cancelled. With zero
// retention days the janitor does nothing.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cfg.RetentionDays <= 0 {
		j.log.Info("journal retention not configured, janitor idle")
		return nil
	}

	if _, err := cron.ParseStandard(j.cfg.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", j.cfg.Schedule, err)
	}
	if _, err := j.cron.AddFunc(j.cfg.Schedule, func() { j.Purge(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule journal purge: %w", err)
	}

	j.cron.Start()
	j.running = true
	j.log.Info("journal janitor started",
		"schedule", j.cfg.Schedule,
		"retention_days", j.cfg.RetentionDays,
	)

	go func() {
		<-ctx.Done()
		j.Stop()
	}()
	return nil
}

// Purge runs one purge cycle immediately.
func (j *Janitor) Purge(ctx context.Context) {
	horizon := time.Now().AddDate(0, 0, -j.cfg.RetentionDays)

	deleted, err := j.backend.PurgeBefore(ctx, horizon)
	if err != nil {
		j.log.Error("journal purge failed", "error", err)
		return
	}
	if deleted > 0 {
		j.log.Info("journal purge completed", "deleted", deleted, "horizon", horizon)
	} else {
		j.log.Debug("journal purge completed, nothing to delete")
	}
}

// Stop stops the scheduler and waits for a running purge to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		<-j.cron.Stop().Done()
		j.running = false
		j.log.Info("journal janitor stopped")
	}
}
