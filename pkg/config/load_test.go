package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
providers:
  openai:
    api_keys: ["sk-test-1", "sk-test-2"]
    key_strategy: least_used
    models:
      gpt-4o:
        requests_per_minute: 500
        tokens_per_minute: 30000
        cost_per_1k_input: 0.005
        cost_per_1k_output: 0.015
        fallbacks: ["anthropic/claude-sonnet-4"]
  anthropic:
    api_keys: ["sk-ant-test"]
    models:
      claude-sonnet-4:
        requests_per_minute: 300
        tokens_per_minute: 20000
        cost_per_1k_input: 0.003
        cost_per_1k_output: 0.015
budgets:
  daily: 100
  weekly: 500
retry:
  max_attempts: 3
queue:
  capacity: 256
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tollgate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// ============================================================================
// Loading Tests
// ============================================================================

func TestLoadConfig_ParsesAndDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	openai := cfg.Providers["openai"]
	if openai.KeyStrategy != "least_used" {
		t.Errorf("key_strategy = %q, want the configured least_used", openai.KeyStrategy)
	}
	if openai.KeyCooldown != DefaultKeyCooldown {
		t.Errorf("key_cooldown = %v, want default %v", openai.KeyCooldown, DefaultKeyCooldown)
	}

	anthropic := cfg.Providers["anthropic"]
	if anthropic.KeyStrategy != DefaultKeyStrategy {
		t.Errorf("unset key_strategy = %q, want default %q", anthropic.KeyStrategy, DefaultKeyStrategy)
	}

	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("retry.max_attempts = %d, want configured 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay != DefaultRetryBaseDelay {
		t.Errorf("retry.base_delay = %v, want default %v", cfg.Retry.BaseDelay, DefaultRetryBaseDelay)
	}
	if cfg.Queue.Capacity != 256 {
		t.Errorf("queue.capacity = %d, want configured 256", cfg.Queue.Capacity)
	}
	if cfg.Capacity.Window != DefaultCapacityWindow {
		t.Errorf("capacity.window = %v, want default %v", cfg.Capacity.Window, DefaultCapacityWindow)
	}
	if got := cfg.Budgets.AlertThresholds; len(got) != 3 || got[0] != 0.5 {
		t.Errorf("alert thresholds = %v, want defaults", got)
	}
	if cfg.Telemetry.Logging.Level != "info" || !cfg.Telemetry.Logging.RedactKeys {
		t.Errorf("logging defaults = %+v", cfg.Telemetry.Logging)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestParseConfig_BadYAML(t *testing.T) {
	if _, err := ParseConfig([]byte("providers: [not a map")); err == nil {
		t.Fatal("expected a parse error")
	}
}

// ============================================================================
// Target Resolution Tests
// ============================================================================

func TestConfig_TargetResolution(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	pm, ok := cfg.Target("openai", "gpt-4o")
	if !ok {
		t.Fatal("configured target not found")
	}
	if pm.RequestsPerMinute != 500 || pm.TokensPerMinute != 30000 {
		t.Errorf("limits = %d rpm / %d tpm, want 500/30000", pm.RequestsPerMinute, pm.TokensPerMinute)
	}
	if pm.CostPer1KInput != 0.005 {
		t.Errorf("input price = %v, want 0.005", pm.CostPer1KInput)
	}

	if _, ok := cfg.Target("openai", "gpt-5"); ok {
		t.Error("unconfigured model should not resolve")
	}
}

func TestConfig_FallbacksResolve(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	fbs := cfg.Fallbacks("openai", "gpt-4o")
	if len(fbs) != 1 {
		t.Fatalf("fallbacks = %v, want one entry", fbs)
	}
	if fbs[0].Provider != "anthropic" || fbs[0].Model != "claude-sonnet-4" {
		t.Errorf("fallback = %s, want anthropic/claude-sonnet-4", fbs[0].Key())
	}
	if fbs[0].RequestsPerMinute != 300 {
		t.Error("resolved fallback should carry its own limits")
	}
}

func TestConfig_TargetsSorted(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	targets := cfg.Targets()
	if len(targets) != 2 {
		t.Fatalf("targets = %v, want 2", targets)
	}
	if targets[0].Key() > targets[1].Key() {
		t.Errorf("targets not sorted: %s before %s", targets[0].Key(), targets[1].Key())
	}
}

func TestParseTargetRef(t *testing.T) {
	tests := []struct {
		in       string
		provider string
		model    string
		wantErr  bool
	}{
		{"openai/gpt-4o", "openai", "gpt-4o", false},
		{"custom/org/model-v2", "custom", "org/model-v2", false},
		{"gpt-4o", "", "", true},
		{"/gpt-4o", "", "", true},
		{"openai/", "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		tr, err := ParseTargetRef(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTargetRef(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTargetRef(%q): %v", tt.in, err)
			continue
		}
		if tr.Provider != tt.provider || tr.Model != tt.model {
			t.Errorf("ParseTargetRef(%q) = %+v, want %s/%s", tt.in, tr, tt.provider, tt.model)
		}
	}
}

// ============================================================================
// Watcher Tests
// ============================================================================

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	changed := make(chan *Config, 1)
	w.OnChange = func(cfg *Config) { changed <- cfg }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)
	time.Sleep(50 * time.Millisecond) // let the watch registration land

	updated := strings.Replace(sampleYAML, "capacity: 256", "capacity: 512", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-changed:
		if cfg.Queue.Capacity != 512 {
			t.Errorf("reloaded capacity = %d, want 512", cfg.Queue.Capacity)
		}
		if w.Current().Queue.Capacity != 512 {
			t.Error("Current should serve the new snapshot")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload never fired")
	}
}

func TestWatcher_KeepsSnapshotOnBadReload(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	failed := make(chan error, 1)
	w.OnError = func(err error) { failed <- err }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("queue: [broken"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case <-failed:
		if w.Current().Queue.Capacity != 256 {
			t.Error("a failed reload must keep the previous snapshot")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload error never reported")
	}
}

func TestWatcher_InitialLoadMustSucceed(t *testing.T) {
	path := writeConfig(t, "retry: {max_attempts: -1}")
	if _, err := NewWatcher(path, nil); err == nil {
		t.Fatal("expected the initial load to fail validation")
	}
}
