package logging

import (
	"context"
	"log/slog"
	"strings"

	"arbiter-hq/tollgate/pkg/keys"
)

// secretAttrKeys are attribute names whose string values are always
// masked, whatever they contain.
var secretAttrKeys = map[string]bool{
	"api_key":       true,
	"key":           true,
	"token":         true,
	"authorization": true,
	"secret":        true,
}

// secretValuePrefixes mark values that are API keys no matter what the
// attribute is called.
var secretValuePrefixes = []string{"sk-", "sk_", "xoxb-", "Bearer "}

// RedactingHandler wraps a slog.Handler and masks API-key-like attribute
// values before they are written.
type RedactingHandler struct {
	inner slog.Handler
}

// NewRedactingHandler wraps the given handler.
func NewRedactingHandler(inner slog.Handler) *RedactingHandler {
	return &RedactingHandler{inner: inner}
}

// Enabled reports whether the inner handler handles the level.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle masks secret attributes and forwards the record.
func (h *RedactingHandler) Handle(ctx context.Context, rec slog.Record) error {
	clean := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

// WithAttrs masks the pre-bound attributes and forwards them.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = redactAttr(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(clean)}
}

// WithGroup forwards the group to the inner handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		clean := make([]slog.Attr, len(group))
		for i, g := range group {
			clean[i] = redactAttr(g)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	}

	if a.Value.Kind() != slog.KindString {
		return a
	}
	v := a.Value.String()

	if secretAttrKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, keys.Masked(v))
	}
	for _, prefix := range secretValuePrefixes {
		if strings.HasPrefix(v, prefix) {
			return slog.String(a.Key, keys.Masked(v))
		}
	}
	return a
}
