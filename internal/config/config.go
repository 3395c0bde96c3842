// Package config contains everything related to configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath    string
	LimitsPath      string
	LogLevel        string
	MetricsAddr     string
	RefreshInterval time.Duration
	Retention       time.Duration
	EventBuffer     int
	Notify          bool
}

// Default values
const (
	defaultRefreshInterval = 5 * time.Second
	defaultRetention       = 7 * 24 * time.Hour
	defaultLogLevel        = "info"
	defaultEventBuffer     = 256
)

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	// Try loading .env from multiple locations
	envPaths := getEnvPaths()
	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	cfg := &Config{
		DatabasePath:    getEnvString("QGOV_DATABASE_PATH", getDefaultDatabasePath()),
		LimitsPath:      getEnvString("QGOV_LIMITS_PATH", getDefaultLimitsPath()),
		LogLevel:        getEnvString("QGOV_LOG_LEVEL", defaultLogLevel),
		MetricsAddr:     getEnvString("QGOV_METRICS_ADDR", ""),
		RefreshInterval: getEnvDuration("QGOV_REFRESH_INTERVAL", defaultRefreshInterval),
		Retention:       getEnvDuration("QGOV_RETENTION", defaultRetention),
		EventBuffer:     getEnvInt("QGOV_EVENT_BUFFER", defaultEventBuffer),
		Notify:          getEnvBool("QGOV_NOTIFY", true),
	}

	if cfg.RefreshInterval <= 0 {
		return nil, fmt.Errorf("QGOV_REFRESH_INTERVAL must be positive, got %s", cfg.RefreshInterval)
	}

	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}

	// Ensure database directory exists
	if err := ensureDir(filepath.Dir(cfg.DatabasePath)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	// Current directory
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	// Home directory locations
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "qgov", ".env"),
			filepath.Join(home, ".qgov", ".env"),
		)
	}

	// Parent directory (useful for development)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(cwd), ".env"))
	}

	return paths
}

// getDefaultDatabasePath returns the default path for the SQLite history store.
func getDefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "qgov.db"
	}
	return filepath.Join(home, ".config", "qgov", "qgov.db")
}

// getDefaultLimitsPath returns the default path for the YAML limits file.
func getDefaultLimitsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "limits.yaml"
	}
	return filepath.Join(home, ".config", "qgov", "limits.yaml")
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "1m", "500ms".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as seconds if no unit specified
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns the default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
