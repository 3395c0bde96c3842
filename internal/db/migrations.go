package db

import (
	"context"
	"fmt"
)

// migrations are applied in order. The schema version is the number of
// applied migrations, kept in PRAGMA user_version. Never edit an entry;
// append a new one.
var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS provider_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		provider TEXT NOT NULL,
		state TEXT NOT NULL,
		strategy TEXT NOT NULL,
		requests_used INTEGER NOT NULL DEFAULT 0,
		requests_limit INTEGER NOT NULL DEFAULT 0,
		tokens_used INTEGER NOT NULL DEFAULT 0,
		tokens_limit INTEGER NOT NULL DEFAULT 0,
		window_start TEXT NOT NULL,
		window_ms INTEGER NOT NULL,
		reset_time TEXT NOT NULL,
		consecutive_errors INTEGER NOT NULL DEFAULT 0,
		backoff_ms INTEGER NOT NULL DEFAULT 0,
		in_flight INTEGER NOT NULL DEFAULT 0,
		success_rate REAL NOT NULL DEFAULT 0,
		error_rate REAL NOT NULL DEFAULT 0,
		throughput REAL NOT NULL DEFAULT 0,
		avg_response_ms INTEGER NOT NULL DEFAULT 0,
		metric_samples INTEGER NOT NULL DEFAULT 0,
		last_adjustment TEXT,
		exhausts INTEGER NOT NULL DEFAULT 0,
		time_to_exhaustion_ms INTEGER NOT NULL DEFAULT 0,
		confidence REAL NOT NULL DEFAULT 0,
		recommended_strategy TEXT NOT NULL DEFAULT '',
		prediction_samples INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_provider_time ON provider_snapshots(provider, timestamp);
	CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON provider_snapshots(timestamp);
	`,
	`
	CREATE TABLE IF NOT EXISTS rate_limit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		type TEXT NOT NULL,
		provider TEXT NOT NULL,
		resource TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		error_type TEXT NOT NULL DEFAULT '',
		tokens INTEGER NOT NULL DEFAULT 0,
		delay_ms INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON rate_limit_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_provider_type ON rate_limit_events(provider, type, timestamp);
	`,
}

// SchemaVersion returns the number of applied migrations.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

func (db *DB) migrate(ctx context.Context) error {
	version, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if version > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, len(migrations))
	}

	for i := version; i < len(migrations); i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to apply migration %d: %w", i+1, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", i+1, err)
		}
	}
	return nil
}
