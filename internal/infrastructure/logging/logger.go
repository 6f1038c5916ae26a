package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ak085/bacpipes/internal/infrastructure/config"
)

// Logger wraps slog.Logger for the BacPipes worker.
//
// Every subsystem logs through a Component-scoped child, so one JSON
// stream interleaves engine ticks, discovery sweeps, and sink inserts
// while staying filterable by the component field.
//
// Thread Safety: safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New builds the root logger from configuration.
//
// Format "text" is for terminals during commissioning; everything else
// (including the default "json") is machine-parsed by the log pipeline.
// Every record carries service and version fields.
func New(cfg config.LoggingConfig, version string) *Logger {
	handler := newHandler(cfg).WithAttrs([]slog.Attr{
		slog.String("service", "bacpipes"),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

// newHandler selects the output writer, level, and format.
func newHandler(cfg config.LoggingConfig) slog.Handler {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	if strings.ToLower(cfg.Format) == "text" {
		return slog.NewTextHandler(output, opts)
	}
	return slog.NewJSONHandler(output, opts)
}

// ParseLevel converts a configuration string to a slog.Level.
// Unrecognised values fall back to info rather than failing startup over
// a typo in a log setting.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component returns a child logger tagged with the subsystem name.
//
// This is the standard way subsystems obtain their logger:
//
//	pollerLog := logger.Component("poller")
//	pollerLog.Info("poll cycle complete", "polled", 12)
//	// {"component":"poller","msg":"poll cycle complete","polled":12,...}
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// With returns a child logger carrying additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default creates a logger for use before configuration is loaded: JSON to
// stdout at info level. Only the earliest startup lines should use it.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
