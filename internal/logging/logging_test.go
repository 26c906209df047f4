package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestTraditionalHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraditionalHandler(&buf, slog.LevelInfo))

	logger.Info("job started", "type", "individual", "id", "job-1234")

	line := buf.String()
	if !strings.Contains(line, "[INFO] job started") {
		t.Fatalf("line missing level and message: %q", line)
	}
	if !strings.Contains(line, "type=individual") || !strings.Contains(line, "id=job-1234") {
		t.Fatalf("line missing attributes: %q", line)
	}
}

func TestTraditionalHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraditionalHandler(&buf, slog.LevelWarn))

	logger.Debug("noise")
	logger.Info("also noise")
	if buf.Len() != 0 {
		t.Fatalf("records below warn should be dropped, got %q", buf.String())
	}

	logger.Error("boom")
	if !strings.Contains(buf.String(), "[ERROR] boom") {
		t.Fatalf("error record missing: %q", buf.String())
	}
}

func TestTraditionalHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(NewTraditionalHandler(&buf, slog.LevelInfo))

	scoped := base.With("worker", 3)
	scoped.Info("processing", "input", "a.png")

	line := buf.String()
	if !strings.Contains(line, "worker=3") || !strings.Contains(line, "input=a.png") {
		t.Fatalf("scoped attrs missing: %q", line)
	}

	buf.Reset()
	base.Info("plain")
	if strings.Contains(buf.String(), "worker=3") {
		t.Fatalf("With must not mutate the parent handler: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
