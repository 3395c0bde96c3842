package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/j-veylop/llm-quota-governor/internal/models"
)

// timeLayout keeps millisecond precision and sorts lexically.
const timeLayout = "2006-01-02 15:04:05.000"

const snapshotColumns = `
	timestamp, provider, state, strategy,
	requests_used, requests_limit, tokens_used, tokens_limit,
	window_start, window_ms, reset_time,
	consecutive_errors, backoff_ms, in_flight,
	success_rate, error_rate, throughput, avg_response_ms, metric_samples, last_adjustment,
	exhausts, time_to_exhaustion_ms, confidence, recommended_strategy, prediction_samples`

const eventColumns = `timestamp, type, provider, resource, reason, error_type, tokens, delay_ms, latency_ms`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// InsertSnapshot stores one provider snapshot.
func (db *DB) InsertSnapshot(ctx context.Context, s models.ProviderSnapshot) error {
	return insertSnapshot(ctx, db, s)
}

// Export stores a monitor tick's snapshots in one transaction.
func (db *DB) Export(ctx context.Context, snapshots []models.ProviderSnapshot) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin export: %w", err)
	}
	for _, s := range snapshots {
		if err := insertSnapshot(ctx, tx, s); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit export: %w", err)
	}
	return nil
}

func insertSnapshot(ctx context.Context, ex execer, s models.ProviderSnapshot) error {
	query := `INSERT INTO provider_snapshots (` + snapshotColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	timestamp := s.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	_, err := ex.ExecContext(ctx, query,
		formatTime(timestamp),
		s.Status.Provider,
		string(s.Status.State),
		string(s.Status.Strategy),
		s.Requests.Used,
		s.Requests.Limit,
		s.Tokens.Used,
		s.Tokens.Limit,
		formatTime(s.Requests.WindowStart),
		s.Requests.Window.Milliseconds(),
		formatTime(s.Status.ResetTime),
		s.Status.ConsecutiveErrors,
		s.Status.Backoff.Milliseconds(),
		s.Status.InFlight,
		s.Metrics.SuccessRate,
		s.Metrics.ErrorRate,
		s.Metrics.Throughput,
		s.Metrics.AverageResponseTime.Milliseconds(),
		s.Metrics.Samples,
		nullTime(s.Metrics.LastAdjustment),
		s.Prediction.Exhausts,
		s.Prediction.TimeToExhaustion.Milliseconds(),
		s.Prediction.Confidence,
		string(s.Prediction.RecommendedStrategy),
		s.Prediction.Samples,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot for %s: %w", s.Status.Provider, err)
	}
	return nil
}

// LatestSnapshots returns the newest snapshot of every provider, ordered by provider.
func (db *DB) LatestSnapshots(ctx context.Context) ([]models.ProviderSnapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM provider_snapshots
		WHERE id IN (SELECT MAX(id) FROM provider_snapshots GROUP BY provider)
		ORDER BY provider`

	return db.querySnapshots(ctx, query)
}

// SnapshotHistory returns the snapshots of a provider taken at or after
// since, oldest first, keeping at most the newest limit rows.
func (db *DB) SnapshotHistory(ctx context.Context, provider string, since time.Time, limit int) ([]models.ProviderSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM (
			SELECT id, ` + snapshotColumns + `
			FROM provider_snapshots
			WHERE provider = ? AND timestamp >= ?
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		) ORDER BY timestamp ASC, id ASC`

	return db.querySnapshots(ctx, query, provider, formatTime(since), limit)
}

func (db *DB) querySnapshots(ctx context.Context, query string, args ...any) ([]models.ProviderSnapshot, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.ProviderSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSnapshot(row rowScanner) (models.ProviderSnapshot, error) {
	var (
		s                                 models.ProviderSnapshot
		timestamp, windowStart, resetTime string
		lastAdjustment                    sql.NullString
		state, strategy, recommended      string
		windowMs, backoffMs, avgMs, ttlMs int64
		requestsUsed, requestsLimit       int64
		tokensUsed, tokensLimit           int64
	)

	err := row.Scan(
		&timestamp,
		&s.Status.Provider,
		&state,
		&strategy,
		&requestsUsed,
		&requestsLimit,
		&tokensUsed,
		&tokensLimit,
		&windowStart,
		&windowMs,
		&resetTime,
		&s.Status.ConsecutiveErrors,
		&backoffMs,
		&s.Status.InFlight,
		&s.Metrics.SuccessRate,
		&s.Metrics.ErrorRate,
		&s.Metrics.Throughput,
		&avgMs,
		&s.Metrics.Samples,
		&lastAdjustment,
		&s.Prediction.Exhausts,
		&ttlMs,
		&s.Prediction.Confidence,
		&recommended,
		&s.Prediction.Samples,
	)
	if err != nil {
		return s, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	if s.Timestamp, err = parseTime(timestamp); err != nil {
		return s, err
	}
	start, err := parseTime(windowStart)
	if err != nil {
		return s, err
	}
	if s.Status.ResetTime, err = parseTime(resetTime); err != nil {
		return s, err
	}
	if lastAdjustment.Valid {
		if s.Metrics.LastAdjustment, err = parseTime(lastAdjustment.String); err != nil {
			return s, err
		}
	}

	window := time.Duration(windowMs) * time.Millisecond
	s.Requests = models.QuotaUsage{
		Provider:    s.Status.Provider,
		Resource:    models.ResourceRequests,
		Used:        requestsUsed,
		Limit:       requestsLimit,
		WindowStart: start,
		Window:      window,
	}
	s.Tokens = models.QuotaUsage{
		Provider:    s.Status.Provider,
		Resource:    models.ResourceTokens,
		Used:        tokensUsed,
		Limit:       tokensLimit,
		WindowStart: start,
		Window:      window,
	}

	s.Status.State = models.State(state)
	s.Status.Strategy = models.Strategy(strategy)
	s.Status.RequestsRemaining = s.Requests.Remaining()
	s.Status.TokensRemaining = s.Tokens.Remaining()
	s.Status.Backoff = time.Duration(backoffMs) * time.Millisecond
	s.Status.IsRateLimited = s.Status.State == models.StateThrottled || s.Status.Backoff > 0
	s.Metrics.AverageResponseTime = time.Duration(avgMs) * time.Millisecond
	s.Prediction.TimeToExhaustion = time.Duration(ttlMs) * time.Millisecond
	s.Prediction.RecommendedStrategy = models.Strategy(recommended)
	return s, nil
}

// InsertEvent stores one rate limit event.
func (db *DB) InsertEvent(ctx context.Context, ev models.RateLimitEvent) error {
	return insertEvent(ctx, db, ev)
}

// InsertEvents stores a batch of events in one transaction.
func (db *DB) InsertEvents(ctx context.Context, evs []models.RateLimitEvent) error {
	if len(evs) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin event batch: %w", err)
	}
	for _, ev := range evs {
		if err := insertEvent(ctx, tx, ev); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event batch: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, ex execer, ev models.RateLimitEvent) error {
	query := `INSERT INTO rate_limit_events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	timestamp := ev.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	_, err := ex.ExecContext(ctx, query,
		formatTime(timestamp),
		string(ev.Type),
		ev.Provider,
		string(ev.Resource),
		ev.Reason,
		ev.ErrorType,
		ev.Tokens,
		ev.Delay.Milliseconds(),
		ev.Latency.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s event: %w", ev.Type, err)
	}
	return nil
}

// RecentEvents returns the most recent events, newest first.
func (db *DB) RecentEvents(ctx context.Context, limit int) ([]models.RateLimitEvent, error) {
	query := `SELECT ` + eventColumns + `
		FROM rate_limit_events
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var evs []models.RateLimitEvent
	for rows.Next() {
		var (
			ev                 models.RateLimitEvent
			timestamp          string
			typ, resource      string
			delayMs, latencyMs int64
		)
		err := rows.Scan(
			&timestamp,
			&typ,
			&ev.Provider,
			&resource,
			&ev.Reason,
			&ev.ErrorType,
			&ev.Tokens,
			&delayMs,
			&latencyMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if ev.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		ev.Type = models.EventType(typ)
		ev.Resource = models.ResourceType(resource)
		ev.Delay = time.Duration(delayMs) * time.Millisecond
		ev.Latency = time.Duration(latencyMs) * time.Millisecond
		evs = append(evs, ev)
	}
	return evs, rows.Err()
}

// EventCounts counts the events of a provider by type since the given time.
func (db *DB) EventCounts(ctx context.Context, provider string, since time.Time) (map[models.EventType]int, error) {
	query := `
		SELECT type, COUNT(*)
		FROM rate_limit_events
		WHERE provider = ? AND timestamp >= ?
		GROUP BY type
	`

	rows, err := db.QueryContext(ctx, query, provider, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[models.EventType]int)
	for rows.Next() {
		var (
			typ string
			n   int
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts[models.EventType(typ)] = n
	}
	return counts, rows.Err()
}

// Prune deletes snapshots and events older than before and returns the
// number of rows removed.
func (db *DB) Prune(ctx context.Context, before time.Time) (int64, error) {
	cutoff := formatTime(before)
	var total int64

	for _, table := range []string{"provider_snapshots", "rate_limit_events"} {
		res, err := db.ExecContext(ctx, "DELETE FROM "+table+" WHERE timestamp < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to prune %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", s, err)
	}
	return t, nil
}

// nullTime stores the zero time as NULL.
func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}
