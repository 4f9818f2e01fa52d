package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogger_JSONWithSource(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newLogger(&buf, "debug", "json")
	log.Debug("auth.login.ok", "session_id", 7)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not JSON: %v (%q)", err, buf.String())
	}
	if line["msg"] != "auth.login.ok" || line["session_id"] != float64(7) {
		t.Fatalf("unexpected line: %v", line)
	}
	if _, ok := line[slog.SourceKey]; !ok {
		t.Fatalf("missing source: %v", line)
	}
}

func TestNewLogger_Pretty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newLogger(&buf, "info", "pretty")
	log.Debug("hidden")
	log.Warn("cors.reject", "origin", "https://evil.example")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked at info level: %q", out)
	}
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "origin=https://evil.example") {
		t.Fatalf("unexpected output: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("buffers are not terminals: %q", out)
	}
}
