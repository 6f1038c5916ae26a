package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/ak085/bacpipes/internal/infrastructure/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo}, // unknown falls back, never fails
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	logger := New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "1.0.0")
	if logger == nil || logger.Logger == nil {
		t.Fatal("New() returned an unusable logger")
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}
}

// captureLogger builds a Logger writing JSON into buf, mirroring New's
// handler setup.
func captureLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level}).
		WithAttrs([]slog.Attr{
			slog.String("service", "bacpipes"),
			slog.String("version", "test"),
		})
	return &Logger{Logger: slog.New(handler)}
}

func TestOutputCarriesDefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := captureLogger(&buf, slog.LevelInfo)

	logger.Info("poll cycle complete", "polled", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["service"] != "bacpipes" {
		t.Errorf("service = %v, want bacpipes", entry["service"])
	}
	if entry["version"] != "test" {
		t.Errorf("version = %v, want test", entry["version"])
	}
	if entry["msg"] != "poll cycle complete" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["polled"] != 3.0 {
		t.Errorf("polled = %v, want 3", entry["polled"])
	}
}

func TestComponentScoping(t *testing.T) {
	var buf bytes.Buffer
	logger := captureLogger(&buf, slog.LevelInfo)

	child := logger.Component("poller")
	if child == logger {
		t.Fatal("Component() returned the parent logger")
	}
	child.Info("read failed")

	if !strings.Contains(buf.String(), `"component":"poller"`) {
		t.Errorf("component tag missing: %s", buf.String())
	}

	// The parent stays untagged.
	buf.Reset()
	logger.Info("plain")
	if strings.Contains(buf.String(), "component") {
		t.Errorf("parent logger leaked component tag: %s", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := captureLogger(&buf, slog.LevelWarn)

	logger.Debug("invisible")
	logger.Info("also invisible")
	if buf.Len() != 0 {
		t.Errorf("below-level records emitted: %s", buf.String())
	}

	logger.Warn("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("warn record missing at warn level")
	}
}
