package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
)

type logRecord struct {
	Level    string `json:"level"`
	Msg      string `json:"msg"`
	Provider string `json:"provider"`
}

func captureJSON(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := Logger
	Logger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	t.Cleanup(func() { Logger = original })
	return &buf
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer

	// Use JSON handler for easier parsing in tests
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	testLogger := slog.New(handler)

	originalLogger := Logger
	Logger = testLogger
	defer func() { Logger = originalLogger }()

	tests := []struct {
		name  string
		fn    func(msg string, args ...any)
		level string
		msg   string
	}{
		{
			name:  "Info",
			fn:    Info,
			level: "INFO",
			msg:   "info message",
		},
		{
			name:  "Error",
			fn:    Error,
			level: "ERROR",
			msg:   "error message",
		},
		{
			name:  "Warn",
			fn:    Warn,
			level: "WARN",
			msg:   "warn message",
		},
		{
			name:  "Debug",
			fn:    Debug,
			level: "DEBUG",
			msg:   "debug message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.fn(tt.msg)

			var rec logRecord
			if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
				t.Fatalf("failed to unmarshal log output: %v", err)
			}

			if rec.Msg != tt.msg {
				t.Errorf("expected msg %q, got %q", tt.msg, rec.Msg)
			}
			if rec.Level != tt.level {
				t.Errorf("expected level %q, got %q", tt.level, rec.Level)
			}
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	if Logger == nil {
		t.Error("Logger should be initialized")
	}
}

func TestWithProvider(t *testing.T) {
	buf := captureJSON(t)

	WithProvider("gemini").Warn("backoff applied")

	var rec logRecord
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("failed to unmarshal log output: %v", err)
	}
	if rec.Provider != "gemini" {
		t.Errorf("expected provider %q, got %q", "gemini", rec.Provider)
	}
	if rec.Level != "WARN" {
		t.Errorf("expected level WARN, got %q", rec.Level)
	}
}

func TestSetLevel(t *testing.T) {
	defer SetLevel("info")

	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"info", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetLevel(tt.name)
			if got := level.Level(); got != tt.want {
				t.Errorf("SetLevel(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestSetOutput(t *testing.T) {
	t.Cleanup(func() { SetOutput(os.Stderr) })
	defer SetLevel("info")

	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel("warn")

	Info("hidden")
	Warn("shown", "provider", "gemini")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written below warn level: %q", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "provider=gemini") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestSetOutputWhileLogging(t *testing.T) {
	t.Cleanup(func() { SetOutput(os.Stderr) })
	SetOutput(io.Discard)

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				Info("tick", "worker", i)
			}
		}()
	}

	var buf bytes.Buffer
	SetOutput(&buf)
	wg.Wait()
	SetOutput(io.Discard)

	Info("after")
	if strings.Contains(buf.String(), "msg=after") {
		t.Error("record written to a replaced output")
	}
}
