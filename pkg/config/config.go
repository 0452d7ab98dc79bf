package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"arbiter-hq/tollgate/pkg/core"
)

// Config is the root configuration structure for Tollgate. It describes
// the providers and models calls may target, the capacity and budget
// limits enforced on them, and the behavior of the retry, queue, and
// failover machinery.
type Config struct {
	// Providers maps provider names (e.g. "openai", "anthropic") to
	// their configuration, including API keys and per-model limits.
	Providers map[string]ProviderConfig `yaml:"providers"`

	// Capacity configures the sliding rate limit windows.
	Capacity CapacityConfig `yaml:"capacity"`

	// Budgets configures spend limits and alert thresholds.
	Budgets BudgetsConfig `yaml:"budgets"`

	// Retry configures the per-request retry and backoff policy.
	Retry RetryConfig `yaml:"retry"`

	// Queue configures the scheduler queue for delayed requests.
	Queue QueueConfig `yaml:"queue"`

	// Failover configures target cooldown after saturation.
	Failover FailoverConfig `yaml:"failover"`

	// Store configures the usage journal backing warm starts.
	Store StoreConfig `yaml:"store"`

	// Estimation configures token estimation for requests that carry
	// prompt text but no explicit token estimate.
	Estimation EstimationConfig `yaml:"estimation"`

	// Telemetry configures logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProviderConfig contains configuration for a single LLM provider.
type ProviderConfig struct {
	// APIKeys is the pool of keys rotated across calls to this provider.
	APIKeys []string `yaml:"api_keys"`

	// KeyStrategy selects how the next key is chosen: "round_robin",
	// "least_used", "random", or "failover".
	// Default: "round_robin"
	KeyStrategy string `yaml:"key_strategy"`

	// KeyCooldown is how long a rate-limited key is benched before it
	// rejoins the pool, unless the provider's reset signal says longer.
	// Default: 60s
	KeyCooldown time.Duration `yaml:"key_cooldown"`

	// Models maps model names to their limits and pricing.
	Models map[string]ModelConfig `yaml:"models"`
}

// ModelConfig contains the static limits, pricing, and failover order
// for a single model.
type ModelConfig struct {
	// RequestsPerMinute caps admitted requests per rolling window.
	// Zero means unlimited.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// TokensPerMinute caps admitted tokens per rolling window.
	// Zero means unlimited.
	TokensPerMinute int `yaml:"tokens_per_minute"`

	// CostPer1KInput is the price in USD per 1000 input tokens.
	CostPer1KInput float64 `yaml:"cost_per_1k_input"`

	// CostPer1KOutput is the price in USD per 1000 output tokens.
	CostPer1KOutput float64 `yaml:"cost_per_1k_output"`

	// Fallbacks is the ordered list of alternative targets tried when
	// this model is saturated, as "provider/model" references.
	Fallbacks []string `yaml:"fallbacks"`
}

// CapacityConfig configures the sliding-window rate limit ledger.
type CapacityConfig struct {
	// Window is the rolling window size limits are enforced over.
	// Default: 60s
	Window time.Duration `yaml:"window"`

	// WarnThreshold is the usage fraction (0..1] past which a low
	// capacity warning fires. Zero disables warnings.
	// Default: 0.8
	WarnThreshold float64 `yaml:"warn_threshold"`
}

// BudgetsConfig configures spend limits per calendar period.
type BudgetsConfig struct {
	// Daily, Weekly, and Monthly are spend limits in USD. Zero means
	// the period is unlimited.
	Daily   float64 `yaml:"daily"`
	Weekly  float64 `yaml:"weekly"`
	Monthly float64 `yaml:"monthly"`

	// AlertThresholds is the ascending list of budget fractions at
	// which a spend alert fires once per period.
	// Default: [0.5, 0.8, 1.0]
	AlertThresholds []float64 `yaml:"alert_thresholds"`

	// Timezone is the IANA zone calendar periods roll over in.
	// Default: "UTC"
	Timezone string `yaml:"timezone"`
}

// RetryConfig bounds the per-request retry sequence.
type RetryConfig struct {
	// MaxAttempts is the total attempt cap, the first try included.
	// Default: 5
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is the delay before the first retry.
	// Default: 1s
	BaseDelay time.Duration `yaml:"base_delay"`

	// MaxDelay caps any single backoff delay.
	// Default: 60s
	MaxDelay time.Duration `yaml:"max_delay"`

	// MaxTotalWait caps the summed backoff delays for one request.
	// Default: 5m
	MaxTotalWait time.Duration `yaml:"max_total_wait"`

	// Jitter is the fractional randomization applied to each delay.
	// Default: 0.2
	Jitter float64 `yaml:"jitter"`
}

// QueueConfig configures the scheduler queue.
type QueueConfig struct {
	// Capacity is the maximum number of queued requests across all
	// priorities. Requests beyond it are rejected.
	// Default: 1024
	Capacity int `yaml:"capacity"`
}

// FailoverConfig configures saturation cooldown for targets.
type FailoverConfig struct {
	// Cooldown is how long a saturated target is deprioritized when
	// the provider gives no reset signal.
	// Default: 60s
	Cooldown time.Duration `yaml:"cooldown"`
}

// StoreConfig configures the usage journal.
type StoreConfig struct {
	// Backend selects the journal implementation: "memory" or "sqlite".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SQLite configures the sqlite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Retention configures journal cleanup.
	Retention RetentionConfig `yaml:"retention"`
}

// SQLiteConfig contains sqlite backend settings.
type SQLiteConfig struct {
	// Path is the database file location.
	// Default: "data/tollgate.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RetentionConfig controls how far back the journal keeps records.
type RetentionConfig struct {
	// Days is the retention horizon. Records older than this are
	// purged by the janitor. Zero disables cleanup.
	// Default: 7
	Days int `yaml:"days"`

	// Schedule is the cron expression the janitor runs on.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`
}

// EstimationConfig configures token estimation.
type EstimationConfig struct {
	// Mode selects the estimator: "bpe" for tiktoken-based counting
	// with a character fallback, or "chars" for the character
	// heuristic alone.
	// Default: "bpe"
	Mode string `yaml:"mode"`

	// CharsPerToken maps model name prefixes to characters-per-token
	// ratios for the character heuristic. The "default" key applies
	// when no prefix matches.
	CharsPerToken map[string]float64 `yaml:"chars_per_token"`
}

// TelemetryConfig configures logging and metrics.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is the minimum level emitted: "debug", "info", "warn",
	// or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format selects the handler: "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// RedactKeys controls whether API keys are masked in log output.
	// Default: true
	RedactKeys bool `yaml:"redact_keys"`
}

// MetricsConfig configures Prometheus collector registration.
type MetricsConfig struct {
	// Enabled controls whether collectors are registered.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace is the metric name prefix.
	// Default: "tollgate"
	Namespace string `yaml:"namespace"`
}

// TargetRef is a "provider/model" reference as written in fallback lists.
type TargetRef struct {
	Provider string
	Model    string
}

// ParseTargetRef splits a "provider/model" reference. The model part may
// itself contain slashes.
func ParseTargetRef(s string) (TargetRef, error) {
	provider, model, ok := strings.Cut(s, "/")
	if !ok || provider == "" || model == "" {
		return TargetRef{}, fmt.Errorf("invalid target reference %q: want provider/model", s)
	}
	return TargetRef{Provider: provider, Model: model}, nil
}

// Target resolves one provider/model pair from the configuration into a
// core.ProviderModel carrying its limits, pricing, and fallback order.
// Returns false when the pair is not configured.
func (c *Config) Target(provider, model string) (core.ProviderModel, bool) {
	p, ok := c.Providers[provider]
	if !ok {
		return core.ProviderModel{}, false
	}
	m, ok := p.Models[model]
	if !ok {
		return core.ProviderModel{}, false
	}
	return core.ProviderModel{
		Provider:          provider,
		Model:             model,
		RequestsPerMinute: m.RequestsPerMinute,
		TokensPerMinute:   m.TokensPerMinute,
		CostPer1KInput:    m.CostPer1KInput,
		CostPer1KOutput:   m.CostPer1KOutput,
	}, true
}

// Fallbacks resolves the configured fallback chain for one provider/model
// pair into fully populated targets. Unknown references are skipped;
// validation reports them at load time.
func (c *Config) Fallbacks(provider, model string) []core.ProviderModel {
	p, ok := c.Providers[provider]
	if !ok {
		return nil
	}
	m, ok := p.Models[model]
	if !ok {
		return nil
	}

	out := make([]core.ProviderModel, 0, len(m.Fallbacks))
	for _, ref := range m.Fallbacks {
		tr, err := ParseTargetRef(ref)
		if err != nil {
			continue
		}
		if pm, ok := c.Target(tr.Provider, tr.Model); ok {
			out = append(out, pm)
		}
	}
	return out
}

// Targets returns every configured provider/model pair, sorted by key for
// deterministic iteration.
func (c *Config) Targets() []core.ProviderModel {
	var out []core.ProviderModel
	for pname, p := range c.Providers {
		for mname := range p.Models {
			if pm, ok := c.Target(pname, mname); ok {
				out = append(out, pm)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
