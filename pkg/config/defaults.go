package config

import "time"

// Default values for configuration fields.
const (
	// Provider defaults
	DefaultKeyStrategy = "round_robin"
	DefaultKeyCooldown = 60 * time.Second

	// Capacity defaults
	DefaultCapacityWindow = 60 * time.Second
	DefaultWarnThreshold  = 0.8

	// Budget defaults
	DefaultBudgetTimezone = "UTC"

	// Retry defaults
	DefaultRetryMaxAttempts  = 5
	DefaultRetryBaseDelay    = 1 * time.Second
	DefaultRetryMaxDelay     = 60 * time.Second
	DefaultRetryMaxTotalWait = 5 * time.Minute
	DefaultRetryJitter       = 0.2

	// Queue defaults
	DefaultQueueCapacity = 1024

	// Failover defaults
	DefaultFailoverCooldown = 60 * time.Second

	// Store defaults
	DefaultStoreBackend      = "memory"
	DefaultSQLitePath        = "data/tollgate.db"
	DefaultSQLiteBusyTimeout = 5 * time.Second
	DefaultRetentionDays     = 7
	DefaultRetentionSchedule = "0 3 * * *"

	// Estimation defaults
	DefaultEstimationMode = "bpe"

	// Telemetry defaults
	DefaultLoggingLevel    = "info"
	DefaultLoggingFormat   = "json"
	DefaultMetricsNamespace = "tollgate"
)

// DefaultAlertThresholds is the budget alert ladder applied when none is
// configured.
var DefaultAlertThresholds = []float64{0.5, 0.8, 1.0}

// ApplyDefaults fills in default values for any configuration fields that
// were not explicitly set. Limits and prices are deliberately not
// defaulted; an unconfigured limit means unlimited and an unconfigured
// price means free, both of which must be the operator's choice.
func ApplyDefaults(cfg *Config) {
	for name, p := range cfg.Providers {
		if p.KeyStrategy == "" {
			p.KeyStrategy = DefaultKeyStrategy
		}
		if p.KeyCooldown == 0 {
			p.KeyCooldown = DefaultKeyCooldown
		}
		cfg.Providers[name] = p
	}

	if cfg.Capacity.Window == 0 {
		cfg.Capacity.Window = DefaultCapacityWindow
	}
	if cfg.Capacity.WarnThreshold == 0 {
		cfg.Capacity.WarnThreshold = DefaultWarnThreshold
	}

	if cfg.Budgets.AlertThresholds == nil {
		cfg.Budgets.AlertThresholds = append([]float64(nil), DefaultAlertThresholds...)
	}
	if cfg.Budgets.Timezone == "" {
		cfg.Budgets.Timezone = DefaultBudgetTimezone
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = DefaultRetryMaxAttempts
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = DefaultRetryBaseDelay
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = DefaultRetryMaxDelay
	}
	if cfg.Retry.MaxTotalWait == 0 {
		cfg.Retry.MaxTotalWait = DefaultRetryMaxTotalWait
	}
	if cfg.Retry.Jitter == 0 {
		cfg.Retry.Jitter = DefaultRetryJitter
	}

	if cfg.Queue.Capacity == 0 {
		cfg.Queue.Capacity = DefaultQueueCapacity
	}

	if cfg.Failover.Cooldown == 0 {
		cfg.Failover.Cooldown = DefaultFailoverCooldown
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Store.SQLite.BusyTimeout == 0 {
		cfg.Store.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Store.Retention.Days == 0 {
		cfg.Store.Retention.Days = DefaultRetentionDays
	}
	if cfg.Store.Retention.Schedule == "" {
		cfg.Store.Retention.Schedule = DefaultRetentionSchedule
	}

	if cfg.Estimation.Mode == "" {
		cfg.Estimation.Mode = DefaultEstimationMode
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
		// RedactKeys defaults on only when the whole logging section
		// was omitted; an explicit false stays false.
		cfg.Telemetry.Logging.RedactKeys = true
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
		cfg.Telemetry.Metrics.Enabled = true
	}
}
