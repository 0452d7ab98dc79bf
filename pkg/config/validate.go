package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g. "providers.openai.key_strategy").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

var keyStrategies = map[string]bool{
	"round_robin": true,
	"least_used":  true,
	"random":      true,
	"failover":    true,
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateProviders(cfg)...)
	errs = append(errs, validateCapacity(&cfg.Capacity)...)
	errs = append(errs, validateBudgets(&cfg.Budgets)...)
	errs = append(errs, validateRetry(&cfg.Retry)...)
	errs = append(errs, validateQueue(&cfg.Queue)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateEstimation(&cfg.Estimation)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// validateProviders checks provider and model sections, including that
// every fallback reference resolves to a configured provider/model pair.
func validateProviders(cfg *Config) []FieldError {
	var errs []FieldError

	// Deterministic error ordering for map iteration.
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, pname := range names {
		p := cfg.Providers[pname]
		field := "providers." + pname

		if !keyStrategies[p.KeyStrategy] {
			errs = append(errs, FieldError{
				Field:   field + ".key_strategy",
				Message: fmt.Sprintf("unknown strategy %q: want round_robin, least_used, random, or failover", p.KeyStrategy),
			})
		}
		if p.KeyCooldown < 0 {
			errs = append(errs, FieldError{
				Field:   field + ".key_cooldown",
				Message: "key cooldown must not be negative",
			})
		}

		models := make([]string, 0, len(p.Models))
		for mname := range p.Models {
			models = append(models, mname)
		}
		sort.Strings(models)

		for _, mname := range models {
			m := p.Models[mname]
			mfield := field + ".models." + mname

			if m.RequestsPerMinute < 0 {
				errs = append(errs, FieldError{Field: mfield + ".requests_per_minute", Message: "limit must not be negative"})
			}
			if m.TokensPerMinute < 0 {
				errs = append(errs, FieldError{Field: mfield + ".tokens_per_minute", Message: "limit must not be negative"})
			}
			if m.CostPer1KInput < 0 {
				errs = append(errs, FieldError{Field: mfield + ".cost_per_1k_input", Message: "price must not be negative"})
			}
			if m.CostPer1KOutput < 0 {
				errs = append(errs, FieldError{Field: mfield + ".cost_per_1k_output", Message: "price must not be negative"})
			}

			for i, ref := range m.Fallbacks {
				tr, err := ParseTargetRef(ref)
				if err != nil {
					errs = append(errs, FieldError{
						Field:   fmt.Sprintf("%s.fallbacks[%d]", mfield, i),
						Message: err.Error(),
					})
					continue
				}
				if _, ok := cfg.Target(tr.Provider, tr.Model); !ok {
					errs = append(errs, FieldError{
						Field:   fmt.Sprintf("%s.fallbacks[%d]", mfield, i),
						Message: fmt.Sprintf("fallback %q is not a configured provider/model", ref),
					})
				}
				if tr.Provider == pname && tr.Model == mname {
					errs = append(errs, FieldError{
						Field:   fmt.Sprintf("%s.fallbacks[%d]", mfield, i),
						Message: "a model cannot be its own fallback",
					})
				}
			}
		}
	}

	return errs
}

func validateCapacity(cfg *CapacityConfig) []FieldError {
	var errs []FieldError

	if cfg.Window <= 0 {
		errs = append(errs, FieldError{Field: "capacity.window", Message: "window must be positive"})
	}
	if cfg.WarnThreshold < 0 || cfg.WarnThreshold > 1 {
		errs = append(errs, FieldError{Field: "capacity.warn_threshold", Message: "threshold must be within [0, 1]"})
	}

	return errs
}

func validateBudgets(cfg *BudgetsConfig) []FieldError {
	var errs []FieldError

	if cfg.Daily < 0 {
		errs = append(errs, FieldError{Field: "budgets.daily", Message: "limit must not be negative"})
	}
	if cfg.Weekly < 0 {
		errs = append(errs, FieldError{Field: "budgets.weekly", Message: "limit must not be negative"})
	}
	if cfg.Monthly < 0 {
		errs = append(errs, FieldError{Field: "budgets.monthly", Message: "limit must not be negative"})
	}

	for i, th := range cfg.AlertThresholds {
		if th <= 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("budgets.alert_thresholds[%d]", i),
				Message: "threshold must be positive",
			})
		}
		if i > 0 && th <= cfg.AlertThresholds[i-1] {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("budgets.alert_thresholds[%d]", i),
				Message: "thresholds must be strictly ascending",
			})
		}
	}

	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			errs = append(errs, FieldError{
				Field:   "budgets.timezone",
				Message: fmt.Sprintf("unknown timezone %q", cfg.Timezone),
			})
		}
	}

	return errs
}

func validateRetry(cfg *RetryConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxAttempts < 1 {
		errs = append(errs, FieldError{Field: "retry.max_attempts", Message: "at least one attempt is required"})
	}
	if cfg.BaseDelay <= 0 {
		errs = append(errs, FieldError{Field: "retry.base_delay", Message: "base delay must be positive"})
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		errs = append(errs, FieldError{Field: "retry.max_delay", Message: "max delay must not be below base delay"})
	}
	if cfg.MaxTotalWait <= 0 {
		errs = append(errs, FieldError{Field: "retry.max_total_wait", Message: "max total wait must be positive"})
	}
	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		errs = append(errs, FieldError{Field: "retry.jitter", Message: "jitter must be within [0, 1]"})
	}

	return errs
}

func validateQueue(cfg *QueueConfig) []FieldError {
	var errs []FieldError

	if cfg.Capacity < 1 {
		errs = append(errs, FieldError{Field: "queue.capacity", Message: "capacity must be positive"})
	}

	return errs
}

func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory", "sqlite":
	default:
		errs = append(errs, FieldError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unknown backend %q: want memory or sqlite", cfg.Backend),
		})
	}

	if cfg.Backend == "sqlite" && cfg.SQLite.Path == "" {
		errs = append(errs, FieldError{Field: "store.sqlite.path", Message: "path is required for the sqlite backend"})
	}
	if cfg.SQLite.BusyTimeout < 0 {
		errs = append(errs, FieldError{Field: "store.sqlite.busy_timeout", Message: "busy timeout must not be negative"})
	}
	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{Field: "store.retention.days", Message: "retention days must not be negative"})
	}
	if cfg.Retention.Days > 0 {
		if _, err := cron.ParseStandard(cfg.Retention.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "store.retention.schedule",
				Message: fmt.Sprintf("invalid cron expression %q", cfg.Retention.Schedule),
			})
		}
	}

	return errs
}

func validateEstimation(cfg *EstimationConfig) []FieldError {
	var errs []FieldError

	switch cfg.Mode {
	case "bpe", "chars":
	default:
		errs = append(errs, FieldError{
			Field:   "estimation.mode",
			Message: fmt.Sprintf("unknown mode %q: want bpe or chars", cfg.Mode),
		})
	}

	for model, ratio := range cfg.CharsPerToken {
		if ratio <= 0 {
			errs = append(errs, FieldError{
				Field:   "estimation.chars_per_token." + model,
				Message: "ratio must be positive",
			})
		}
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown level %q: want debug, info, warn, or error", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown format %q: want json or text", cfg.Logging.Format),
		})
	}

	return errs
}
