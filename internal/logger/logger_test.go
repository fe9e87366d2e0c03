package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	log := New("warn", "text", &buf)
	log.Info("hidden")
	log.Warn("shown", "provider", "arxiv")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered at warn level: %s", out)
	}

	if !strings.Contains(out, "shown") || !strings.Contains(out, "provider=arxiv") {
		t.Errorf("expected warn message with attribute, got %s", out)
	}

	log.SetLevel("debug")
	log.Debug("now visible")

	if !strings.Contains(buf.String(), "now visible") {
		t.Error("SetLevel(debug) did not enable debug output")
	}
}

func TestLogger_JSONWith(t *testing.T) {
	var buf bytes.Buffer

	log := New("info", "json", &buf).With("run_id", "abc")
	log.Info("done")

	if !strings.Contains(buf.String(), `"run_id":"abc"`) {
		t.Errorf("expected JSON attribute from With, got %s", buf.String())
	}
}
