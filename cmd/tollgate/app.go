package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"arbiter-hq/tollgate/pkg/backoff"
	"arbiter-hq/tollgate/pkg/capacity"
	"arbiter-hq/tollgate/pkg/config"
	"arbiter-hq/tollgate/pkg/core"
	"arbiter-hq/tollgate/pkg/costs"
	"arbiter-hq/tollgate/pkg/engine"
	"arbiter-hq/tollgate/pkg/keys"
	"arbiter-hq/tollgate/pkg/store"
	"arbiter-hq/tollgate/pkg/telemetry/logging"
	"arbiter-hq/tollgate/pkg/telemetry/metrics"
	"arbiter-hq/tollgate/pkg/tokens"
)

// app holds the assembled components for one run. It is the only place
// where the pieces are constructed and wired together.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	clock    core.Clock
	capacity *capacity.Ledger
	costs    *costs.Ledger
	keys     map[string]*keys.Manager
	journal  store.Backend
	janitor  *store.Janitor
	engine   *engine.Engine
	metrics  *metrics.Collector
}

// buildApp assembles the full stack from configuration. The transport is
// supplied by the caller; the simulate command injects a stub, an
// embedding application injects its HTTP client.
func buildApp(ctx context.Context, cfg *config.Config, transport engine.Transport) (*app, error) {
	logCfg := logging.Config{
		Level:      cfg.Telemetry.Logging.Level,
		Format:     cfg.Telemetry.Logging.Format,
		RedactKeys: cfg.Telemetry.Logging.RedactKeys,
	}
	if verbose {
		logCfg.Level = "debug"
	}
	log, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}

	clock := core.RealClock{}

	capLedger := capacity.NewLedger(capacity.Config{
		Window:        cfg.Capacity.Window,
		WarnThreshold: cfg.Capacity.WarnThreshold,
		OnLowCapacity: func(pm core.ProviderModel, snap capacity.Snapshot) {
			log.Warn("capacity running low",
				"target", pm.Key(),
				"requests_left", snap.Requests,
				"tokens_left", snap.Tokens,
			)
		},
	}, clock)

	loc, err := time.LoadLocation(cfg.Budgets.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid budget timezone %q: %w", cfg.Budgets.Timezone, err)
	}
	costLedger := costs.NewLedger(costs.Config{
		Limits: map[costs.Period]float64{
			costs.PeriodDaily:   cfg.Budgets.Daily,
			costs.PeriodWeekly:  cfg.Budgets.Weekly,
			costs.PeriodMonthly: cfg.Budgets.Monthly,
		},
		Location: loc,
	}, clock)
	for _, p := range costs.Periods {
		for _, th := range cfg.Budgets.AlertThresholds {
			costLedger.RegisterAlert(p, th, func(a costs.Alert) {
				log.Warn("budget threshold crossed",
					"period", a.Period.String(),
					"threshold", a.Threshold,
					"spent", a.Spent,
					"limit", a.Limit,
				)
			})
		}
	}

	keyMgrs := make(map[string]*keys.Manager, len(cfg.Providers))
	for name, p := range cfg.Providers {
		if len(p.APIKeys) == 0 {
			continue
		}
		mgr, err := keys.NewManager(p.APIKeys, keys.Strategy(p.KeyStrategy), p.KeyCooldown, clock)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		keyMgrs[name] = mgr
	}

	var journal store.Backend
	switch cfg.Store.Backend {
	case "sqlite":
		journal, err = store.NewSQLiteBackend(store.SQLiteConfig{
			Path:        cfg.Store.SQLite.Path,
			BusyTimeout: cfg.Store.SQLite.BusyTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
	default:
		journal = store.NewMemoryBackend()
	}

	// Replay the journal tail so budgets survive restarts. A month plus
	// a week covers every live accounting period.
	since := clock.Now().AddDate(0, -1, -7)
	replayed, err := store.WarmStart(ctx, journal, since, costLedger)
	if err != nil {
		journal.Close()
		return nil, fmt.Errorf("journal warm start failed: %w", err)
	}
	if replayed > 0 {
		log.Info("budgets warm-started from journal", "records", replayed)
	}

	janitor := store.NewJanitor(journal, store.JanitorConfig{
		RetentionDays: cfg.Store.Retention.Days,
		Schedule:      cfg.Store.Retention.Schedule,
	}, log)
	if err := janitor.Start(ctx); err != nil {
		journal.Close()
		return nil, err
	}

	var estimator tokens.Estimator
	switch cfg.Estimation.Mode {
	case "chars":
		estimator = &tokens.CharEstimator{Ratios: cfg.Estimation.CharsPerToken}
	default:
		estimator = tokens.NewBPEEstimator()
	}

	eng, err := engine.New(engine.Options{
		Transport: transport,
		Clock:     clock,
		Capacity:  capLedger,
		Costs:     costLedger,
		Retry: backoff.Policy{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			BaseDelay:      cfg.Retry.BaseDelay,
			MaxDelay:       cfg.Retry.MaxDelay,
			MaxTotalWait:   cfg.Retry.MaxTotalWait,
			JitterFraction: cfg.Retry.Jitter,
		},
		QueueCapacity:    cfg.Queue.Capacity,
		FailoverCooldown: cfg.Failover.Cooldown,
		Estimator:        estimator,
		Logger:           log,
	})
	if err != nil {
		janitor.Stop()
		journal.Close()
		return nil, err
	}

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(metrics.Config{
			Namespace: cfg.Telemetry.Metrics.Namespace,
		}, prometheus.DefaultRegisterer)
		eng.Subscribe(collector.HandleEvent)
	}

	return &app{
		cfg:      cfg,
		log:      log,
		clock:    clock,
		capacity: capLedger,
		costs:    costLedger,
		keys:     keyMgrs,
		journal:  journal,
		janitor:  janitor,
		engine:   eng,
		metrics:  collector,
	}, nil
}

// Close shuts the stack down in dependency order.
func (a *app) Close() {
	a.engine.Close()
	a.janitor.Stop()
	if err := a.journal.Close(); err != nil {
		a.log.Error("journal close failed", "error", err)
	}
}
