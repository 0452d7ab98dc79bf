// Package logging builds the process's slog.Logger from configuration.
//
// The logger is a plain slog.Logger with a JSON or text handler; when
// key redaction is enabled the handler is wrapped so that attribute
// values which look like API keys are masked before they reach the
// output. Redaction happens at the handler layer so no call site can
// forget it.
package logging
