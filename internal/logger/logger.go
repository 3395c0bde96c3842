// Package logger provides a simple wrapper around slog for structured logging.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	level  = new(slog.LevelVar)
	output = newSwitchWriter(os.Stderr)
)

// Logger is the global logger instance.
var Logger = slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: level}))

// switchWriter forwards writes to a destination that can be replaced while
// other goroutines are logging.
type switchWriter struct {
	dst atomic.Pointer[io.Writer]
}

func newSwitchWriter(w io.Writer) *switchWriter {
	s := &switchWriter{}
	s.dst.Store(&w)
	return s
}

func (s *switchWriter) Write(p []byte) (int, error) {
	return (*s.dst.Load()).Write(p)
}

// SetLevel sets the minimum level of the default handler. Unknown names
// fall back to info.
func SetLevel(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

// SetOutput sends the default handler's records to w. It is safe to call
// while other goroutines log.
func SetOutput(w io.Writer) {
	output.dst.Store(&w)
}

// WithProvider returns the global logger scoped to a provider.
func WithProvider(provider string) *slog.Logger {
	return Logger.With("provider", provider)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}
