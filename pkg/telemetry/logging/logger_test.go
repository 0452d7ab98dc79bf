package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// ============================================================================
// Construction Tests
// ============================================================================

func TestNew_LevelsAndFormats(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "warn", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Info("below threshold")
	if buf.Len() != 0 {
		t.Errorf("info line emitted at warn level: %s", buf.String())
	}

	log.Warn("at threshold", "component", "test")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if line["msg"] != "at threshold" || line["component"] != "test" {
		t.Errorf("line = %v", line)
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("hello", "n", 1)
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestNew_RejectsUnknownSettings(t *testing.T) {
	if _, err := New(Config{Level: "verbose"}); err == nil {
		t.Error("unknown level should fail")
	}
	if _, err := New(Config{Format: "logfmt"}); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestParseLevel_Defaults(t *testing.T) {
	lvl, err := ParseLevel("")
	if err != nil || lvl != slog.LevelInfo {
		t.Errorf("ParseLevel(\"\") = %v, %v, want info", lvl, err)
	}
}

// ============================================================================
// Redaction Tests
// ============================================================================

func TestRedaction_MasksSecretAttrs(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Format: "json", RedactKeys: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Info("key rotated",
		"api_key", "sk-live-abcdef1234567890",
		"provider", "openai",
	)

	out := buf.String()
	if strings.Contains(out, "abcdef1234567890") {
		t.Errorf("raw key leaked: %s", out)
	}
	if !strings.Contains(out, `"provider":"openai"`) {
		t.Errorf("non-secret attribute mangled: %s", out)
	}
}

func TestRedaction_MasksByValuePrefix(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Format: "json", RedactKeys: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// The attribute name gives no hint; the value shape does.
	log.Info("request", "credential", "sk-proj-9876543210fedcba")

	if strings.Contains(buf.String(), "9876543210fedcba") {
		t.Errorf("key-shaped value leaked: %s", buf.String())
	}
}

func TestRedaction_AppliesToBoundAttrs(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Format: "json", RedactKeys: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.With("api_key", "sk-bound-key-0011223344").Info("bound")

	if strings.Contains(buf.String(), "0011223344") {
		t.Errorf("bound key leaked: %s", buf.String())
	}
}

func TestRedaction_LeavesNonStringsAlone(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Format: "json", RedactKeys: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Info("usage", "tokens", 4096)
	if !strings.Contains(buf.String(), `"tokens":4096`) {
		t.Errorf("numeric attribute mangled: %s", buf.String())
	}
}
