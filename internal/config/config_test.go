package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/j-veylop/llm-quota-governor/internal/governor"
)

func TestGetEnvString(t *testing.T) {
	key := "TEST_ENV_STRING"
	t.Setenv(key, "test_value")

	if got := getEnvString(key, "default"); got != "test_value" {
		t.Errorf("getEnvString() = %q, want %q", got, "test_value")
	}
	if got := getEnvString("NON_EXISTENT", "default"); got != "default" {
		t.Errorf("getEnvString() = %q, want %q", got, "default")
	}
}

func TestGetEnvDuration(t *testing.T) {
	key := "TEST_ENV_DURATION"

	tests := []struct {
		name       string
		envVal     string
		defaultVal time.Duration
		want       time.Duration
	}{
		{"ValidDuration", "1m", time.Second, time.Minute},
		{"ValidSeconds", "60", time.Second, 60 * time.Second},
		{"Invalid", "invalid", time.Second, time.Second},
		{"Empty", "", time.Second, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(key, tt.envVal)
			if got := getEnvDuration(key, tt.defaultVal); got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvIntAndBool(t *testing.T) {
	t.Setenv("TEST_ENV_INT", "42")
	t.Setenv("TEST_ENV_BAD_INT", "many")
	t.Setenv("TEST_ENV_BOOL", "false")
	t.Setenv("TEST_ENV_BAD_BOOL", "perhaps")

	if got := getEnvInt("TEST_ENV_INT", 1); got != 42 {
		t.Errorf("getEnvInt() = %d, want 42", got)
	}
	if got := getEnvInt("TEST_ENV_BAD_INT", 1); got != 1 {
		t.Errorf("getEnvInt(invalid) = %d, want 1", got)
	}
	if got := getEnvBool("TEST_ENV_BOOL", true); got {
		t.Error("getEnvBool() = true, want false")
	}
	if got := getEnvBool("TEST_ENV_BAD_BOOL", true); !got {
		t.Error("getEnvBool(invalid) = false, want the default")
	}
}

func TestEnsureDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir")

	if err := ensureDir(path); err != nil {
		t.Fatalf("ensureDir() failed: %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("directory was not created")
	}
	if err := ensureDir(""); err != nil {
		t.Error("ensureDir(\"\") should not error")
	}
}

func TestGetDefaultPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Skipping test because user home dir cannot be found")
	}

	if got, want := getDefaultDatabasePath(), filepath.Join(home, ".config", "qgov", "qgov.db"); got != want {
		t.Errorf("getDefaultDatabasePath() = %q, want %q", got, want)
	}
	if got, want := getDefaultLimitsPath(), filepath.Join(home, ".config", "qgov", "limits.yaml"); got != want {
		t.Errorf("getDefaultLimitsPath() = %q, want %q", got, want)
	}
}

func TestGetEnvPaths(t *testing.T) {
	paths := getEnvPaths()
	cwd, _ := os.Getwd()

	found := false
	for _, p := range paths {
		if p == filepath.Join(cwd, ".env") {
			found = true
			break
		}
	}
	if !found {
		t.Error("getEnvPaths() missing current directory .env")
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("QGOV_DATABASE_PATH", filepath.Join(tmpDir, "data", "qgov.db"))
	t.Setenv("QGOV_LIMITS_PATH", filepath.Join(tmpDir, "limits.yaml"))
	t.Setenv("QGOV_REFRESH_INTERVAL", "2s")
	t.Setenv("QGOV_NOTIFY", "false")
	t.Setenv("QGOV_EVENT_BUFFER", "-4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.RefreshInterval != 2*time.Second {
		t.Errorf("RefreshInterval = %v, want 2s", cfg.RefreshInterval)
	}
	if cfg.Notify {
		t.Error("Notify = true, want false")
	}
	if cfg.EventBuffer != defaultEventBuffer {
		t.Errorf("EventBuffer = %d, want default %d", cfg.EventBuffer, defaultEventBuffer)
	}
	if cfg.Retention != defaultRetention {
		t.Errorf("Retention = %v, want %v", cfg.Retention, defaultRetention)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "data")); err != nil {
		t.Errorf("database directory not created: %v", err)
	}
}

func TestLoad_InvalidRefresh(t *testing.T) {
	t.Setenv("QGOV_DATABASE_PATH", filepath.Join(t.TempDir(), "qgov.db"))
	t.Setenv("QGOV_REFRESH_INTERVAL", "-1s")

	if _, err := Load(); err == nil {
		t.Error("Load() should fail for a negative refresh interval")
	}
}

const sampleLimits = `
window: 30s
poll_interval: 2s
default:
  requests_per_minute: 10
providers:
  gemini:
    requests_per_minute: 100
    tokens_per_minute: 100000
    error_threshold: 4
    base_backoff: 500ms
    max_backoff: 2m
    jitter: 0.1
alerts:
  requests_warning: 8
  backoff_alert: 45s
`

func TestParseLimits(t *testing.T) {
	l, err := ParseLimits([]byte(sampleLimits))
	if err != nil {
		t.Fatalf("ParseLimits() error = %v", err)
	}

	g, ok := l.Providers["gemini"]
	if !ok {
		t.Fatal("gemini missing")
	}
	if g.Limits.RequestsPerMinute != 100 || g.Limits.TokensPerMinute != 100000 {
		t.Errorf("gemini limits = %+v", g.Limits)
	}
	if g.ErrorThreshold != 4 || g.BaseBackoff != 500*time.Millisecond || g.MaxBackoff != 2*time.Minute || g.Jitter != 0.1 {
		t.Errorf("gemini tuning = %+v", g)
	}
	if l.Window != 30*time.Second || l.PollInterval != 2*time.Second {
		t.Errorf("window/poll = %s/%s", l.Window, l.PollInterval)
	}
	if l.ReservationTTL != governor.DefaultReservationTTL {
		t.Errorf("ReservationTTL = %s, want default", l.ReservationTTL)
	}
	if l.Default.Limits.RequestsPerMinute != 10 {
		t.Errorf("default limits = %+v", l.Default.Limits)
	}

	// Unset alert fields keep their defaults.
	if l.Alerts.RequestsWarning != 8 || l.Alerts.BackoffAlert != 45*time.Second {
		t.Errorf("alerts = %+v", l.Alerts)
	}
	if l.Alerts.TokensWarning != 2000 || l.Alerts.ErrorAlert != 5 {
		t.Errorf("alert defaults lost: %+v", l.Alerts)
	}

	cfg := l.GovernorConfig()
	if cfg.Window != 30*time.Second || cfg.Providers["gemini"].ErrorThreshold != 4 {
		t.Errorf("GovernorConfig() = %+v", cfg)
	}
}

func TestParseLimits_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"syntax", "providers: [unclosed"},
		{"no limits", "providers:\n  gemini:\n    error_threshold: 2\n"},
		{"jitter too high", "providers:\n  gemini:\n    requests_per_minute: 5\n    jitter: 0.8\n"},
		{"bad duration", "window: soon\n"},
		{"negative window", "window: -1s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseLimits([]byte(tt.doc)); !errors.Is(err, governor.ErrConfiguration) {
				t.Errorf("ParseLimits() error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestLoadLimits_Missing(t *testing.T) {
	if _, err := LoadLimits(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadLimits() should fail for a missing file")
	}
}

func TestWatchLimits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	if err := os.WriteFile(path, []byte(sampleLimits), 0o600); err != nil {
		t.Fatal(err)
	}

	var (
		mu  sync.Mutex
		got []*Limits
	)
	changed := make(chan struct{}, 4)
	w, err := WatchLimits(path, func(l *Limits) {
		mu.Lock()
		got = append(got, l)
		mu.Unlock()
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("WatchLimits() error = %v", err)
	}
	defer w.Close()

	// An invalid version is skipped.
	if err := os.WriteFile(path, []byte("window: soon\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(3 * defaultDebounce)

	updated := "providers:\n  gemini:\n    requests_per_minute: 7\n"
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for reloaded := false; !reloaded; {
		select {
		case <-changed:
			mu.Lock()
			last := got[len(got)-1]
			mu.Unlock()
			reloaded = last.Providers["gemini"].Limits.RequestsPerMinute == 7
		case <-deadline:
			t.Fatal("no reload with the updated limits")
		}
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
