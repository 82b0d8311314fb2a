package envflags

import (
	"context"
	"log/slog"
)

// DiagnosticLevel ranks a diagnostic for logging backends.
type DiagnosticLevel int

const (
	DiagnosticDebug DiagnosticLevel = iota
	DiagnosticInfo
	DiagnosticWarn
	DiagnosticError
)

func (l DiagnosticLevel) String() string {
	switch l {
	case DiagnosticDebug:
		return "debug"
	case DiagnosticInfo:
		return "info"
	case DiagnosticWarn:
		return "warn"
	case DiagnosticError:
		return "error"
	default:
		return "unknown"
	}
}

// Diagnostic codes emitted by the engine.
const (
	CodeMissingBinding   = "missing_binding"
	CodeSymbolConflict   = "symbol_conflict"
	CodeSymbolsUpdated   = "symbols_updated"
	CodeVariantApplied   = "variant_applied"
	CodeVariantUnchanged = "variant_unchanged"
	CodeWriteFailed      = "write_failed"
	CodePersistFailed    = "persist_failed"
	CodeHookFailed       = "hook_failed"
)

// Diagnostic is a structured, non-fatal message produced during an apply.
type Diagnostic struct {
	Level   DiagnosticLevel
	Code    string
	Variant string
	Feature string
	Message string
	Err     error
	Fields  map[string]any
}

// DiagnosticLogger records engine diagnostics.
type DiagnosticLogger interface {
	LogDiagnostic(Diagnostic)
}

// DiagnosticLoggerFunc adapts a function to DiagnosticLogger.
type DiagnosticLoggerFunc func(Diagnostic)

// LogDiagnostic implements DiagnosticLogger.
func (f DiagnosticLoggerFunc) LogDiagnostic(d Diagnostic) {
	if f != nil {
		f(d)
	}
}

type noopDiagnosticLogger struct{}

func (noopDiagnosticLogger) LogDiagnostic(Diagnostic) {}

func diagnosticLoggerOrNoop(logger DiagnosticLogger) DiagnosticLogger {
	if logger == nil {
		return noopDiagnosticLogger{}
	}
	return logger
}

type slogDiagnosticLogger struct {
	logger *slog.Logger
}

// NewSlogLogger routes diagnostics to logger. A nil logger uses slog.Default.
func NewSlogLogger(logger *slog.Logger) DiagnosticLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return slogDiagnosticLogger{logger: logger}
}

func (l slogDiagnosticLogger) LogDiagnostic(d Diagnostic) {
	attrs := make([]slog.Attr, 0, 4+len(d.Fields))
	if d.Code != "" {
		attrs = append(attrs, slog.String("code", d.Code))
	}
	if d.Variant != "" {
		attrs = append(attrs, slog.String("variant", d.Variant))
	}
	if d.Feature != "" {
		attrs = append(attrs, slog.String("feature", d.Feature))
	}
	if d.Err != nil {
		attrs = append(attrs, slog.String("error", d.Err.Error()))
	}
	for key, value := range d.Fields {
		attrs = append(attrs, slog.Any(key, value))
	}
	l.logger.LogAttrs(context.Background(), slogLevel(d.Level), d.Message, attrs...)
}

func slogLevel(level DiagnosticLevel) slog.Level {
	switch level {
	case DiagnosticDebug:
		return slog.LevelDebug
	case DiagnosticWarn:
		return slog.LevelWarn
	case DiagnosticError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
