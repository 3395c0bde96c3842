// Package main is the entry point for the qgov monitor. It reads the history
// store written by a governed process and shows provider status, alerts and
// recent events in a terminal UI.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/llm-quota-governor/internal/app"
	"github.com/j-veylop/llm-quota-governor/internal/config"
	"github.com/j-veylop/llm-quota-governor/internal/db"
	"github.com/j-veylop/llm-quota-governor/internal/logger"
	"github.com/j-veylop/llm-quota-governor/internal/ui/tabs/dashboard"
	"github.com/j-veylop/llm-quota-governor/internal/ui/tabs/events"
	"github.com/j-veylop/llm-quota-governor/internal/ui/tabs/history"
	"github.com/j-veylop/llm-quota-governor/internal/ui/tabs/info"
	"github.com/j-veylop/llm-quota-governor/internal/version"
)

const logFileName = "qgov-monitor.log"

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-v" || os.Args[1] == "--version") {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		printUsage()
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// The alt screen owns the terminal, so logs go next to the store.
	logPath := filepath.Join(filepath.Dir(cfg.DatabasePath), logFileName)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()
	logger.SetOutput(logFile)
	logger.SetLevel(cfg.LogLevel)

	limits, err := config.LoadLimits(cfg.LimitsPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("limits file not found, using defaults", "path", cfg.LimitsPath)
		limits = config.DefaultLimits()
	case err != nil:
		return err
	}

	store, err := db.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: error closing store: %v\n", closeErr)
		}
	}()

	model := app.NewModel(app.Options{
		Source:       store,
		Thresholds:   limits.Alerts,
		PollInterval: cfg.RefreshInterval,
		EventLimit:   app.DefaultEventLimit,
	})

	state := model.State()
	model.SetTabs([]app.Tab{
		dashboard.New(state),
		history.New(state, store),
		events.New(state),
		info.New(state, cfg, limits),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	watcher, err := config.WatchLimits(cfg.LimitsPath, func(l *config.Limits) {
		p.Send(app.LimitsReloadedMsg{Limits: l})
	})
	if err != nil {
		logger.Warn("limits file will not be watched", "path", cfg.LimitsPath, "error", err)
	} else {
		defer func() { _ = watcher.Close() }()
	}

	go func() {
		<-sigChan
		p.Send(tea.Quit())
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

func printUsage() {
	fmt.Println(`qgov - rate limit and quota monitor for governed LLM workloads

Usage:
  qgov [flags]

Flags:
  -h, --help      Show this help message
  -v, --version   Show version information

Keyboard Shortcuts:
  1-4             Switch between tabs (Dashboard, History, Events, Info)
  Tab/Shift+Tab   Navigate between tabs
  j/k, Up/Down    Select a provider or scroll
  x               Dismiss the selected provider's alert
  t               Cycle the history time range
  f               Filter events by the selected provider
  r               Reload from the store
  ?               Toggle help
  q, Ctrl+C       Quit

Environment Variables:
  QGOV_DATABASE_PATH      SQLite history store (default: ~/.config/qgov/qgov.db)
  QGOV_LIMITS_PATH        YAML limits file (default: ~/.config/qgov/limits.yaml)
  QGOV_REFRESH_INTERVAL   Store polling interval (default: 5s)
  QGOV_LOG_LEVEL          debug, info, warn or error (default: info)

Configuration:
  The application looks for .env files in the following locations:
  - Current directory
  - ~/.config/qgov/.env
  - ~/.qgov/.env`)
}
