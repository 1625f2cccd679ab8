package logging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"skyshield/interceptor/internal/config"
)

func fileLogger(t *testing.T, level string) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	logger, err := New(config.LoggingConfig{
		Level:      level,
		Path:       path,
		MaxSizeMB:  8,
		MaxBackups: 1,
		MaxAgeDays: 1,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return logger, path
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if raw == "" {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			t.Fatalf("unmarshal log line %q: %v", raw, err)
		}
		lines = append(lines, payload)
	}
	return lines
}

func TestLoggerWritesStructuredJSON(t *testing.T) {
	logger, path := fileLogger(t, "debug")
	logger.Info("torque applied",
		Float64("sim_time", 1.25),
		Int("joint", 3),
		Duration("cycle", 2*time.Millisecond),
		Error(errors.New("boom")),
	)
	if err := logger.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %d", len(lines))
	}
	entry := lines[0]
	if entry["service"] != "interceptor" {
		t.Fatalf("expected service field, got %v", entry["service"])
	}
	if entry["message"] != "torque applied" || entry["level"] != "info" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["sim_time"] != 1.25 {
		t.Fatalf("expected sim_time 1.25, got %v", entry["sim_time"])
	}
	if entry["cycle"] != "2ms" {
		t.Fatalf("expected rendered duration, got %v", entry["cycle"])
	}
	if entry["error"] != "boom" {
		t.Fatalf("expected error string, got %v", entry["error"])
	}
}

func TestLoggerHonorsLevelFloor(t *testing.T) {
	logger, path := fileLogger(t, "warn")
	logger.Debug("hidden")
	logger.Info("also hidden")
	logger.Warn("visible")
	if err := logger.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 1 || lines[0]["message"] != "visible" {
		t.Fatalf("expected only the warning, got %v", lines)
	}
}

func TestWithDerivesIsolatedLogger(t *testing.T) {
	logger, path := fileLogger(t, "debug")
	derived := logger.With(String("loop", "control"))
	derived.Info("tick")
	logger.Info("plain")
	if err := logger.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %d", len(lines))
	}
	if lines[0]["loop"] != "control" {
		t.Fatalf("expected derived field on first line, got %v", lines[0])
	}
	if _, ok := lines[1]["loop"]; ok {
		t.Fatalf("expected base logger without derived field, got %v", lines[1])
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "debug", Path: ""}); err == nil {
		t.Fatal("expected missing path to be rejected")
	}
	if _, err := New(config.LoggingConfig{Level: "verbose", Path: "x.log", MaxSizeMB: 1}); err == nil {
		t.Fatal("expected unknown level to be rejected")
	}
	if _, err := New(config.LoggingConfig{Level: "info", Path: filepath.Join(t.TempDir(), "x.log")}); err == nil {
		t.Fatal("expected non-positive max size to be rejected")
	}
}

func TestHTTPTraceMiddlewarePropagatesTraceID(t *testing.T) {
	logger := NewTestLogger()
	var seen string
	handler := HTTPTraceMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))

	//1.- An incoming trace id must be reused rather than regenerated.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(TraceIDHeader, "abc123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != "abc123" {
		t.Fatalf("expected propagated trace id, got %q", seen)
	}
	if rec.Header().Get(TraceIDHeader) != "abc123" {
		t.Fatalf("expected echoed trace header, got %q", rec.Header().Get(TraceIDHeader))
	}

	//2.- Requests without a trace id get a generated one.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get(TraceIDHeader) == "" {
		t.Fatal("expected generated trace header")
	}
}

func TestLoggerFromContextFallsBack(t *testing.T) {
	if LoggerFromContext(context.Background()) == nil {
		t.Fatal("expected global fallback logger")
	}
	logger := NewTestLogger()
	ctx := ContextWithLogger(context.Background(), logger)
	if LoggerFromContext(ctx) != logger {
		t.Fatal("expected context logger to win")
	}
}
