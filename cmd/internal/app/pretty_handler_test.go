package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestStripANSI(t *testing.T) {
	t.Parallel()

	in := ansiBlue + "INFO" + ansiReset + " plain " + ansiRed + "ERR" + ansiReset
	if got, want := stripANSI(in), "INFO plain ERR"; got != want {
		t.Fatalf("stripANSI()=%q want=%q", got, want)
	}
	if got := visualLen(ansiGreen + "200" + ansiReset); got != 3 {
		t.Fatalf("visualLen=%d want 3", got)
	}
}

func TestPrettyHandler_FormatsAndRedacts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false))

	log.With("svc", "authd").WithGroup("req").Info("http.request",
		"method", "patch",
		"path", "/auth/refresh",
		"status", 419,
		"refresh_token", "eyJhbGciOi...",
		"note", "two words",
	)

	line := buf.String()
	for _, want := range []string{
		"INFO",
		"http.request",
		"svc=authd",
		"req.method=PATCH",
		"req.path=/auth/refresh",
		"req.status=419",
		"req.refresh_token=[redacted]",
		`req.note="two words"`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
	if strings.Contains(line, "eyJ") {
		t.Fatalf("token leaked: %q", line)
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("unexpected color codes without a terminal: %q", line)
	}
}

func TestPrettyHandler_LevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, true))

	log.Info("quiet")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %q", buf.String())
	}
	log.Error("loud", "status", 503)
	out := buf.String()
	if !strings.Contains(stripANSI(out), "ERROR loud status=503") {
		t.Fatalf("unexpected output %q", stripANSI(out))
	}
	if !strings.Contains(out, ansiRed) {
		t.Fatalf("expected color codes: %q", out)
	}
}
