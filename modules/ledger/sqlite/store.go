package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/flemzord/agentbridge/internal/ledger"
)

// Store implements ledger.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// Record implements ledger.Store.
func (s *Store) Record(ctx context.Context, e ledger.Entry) error {
	if e.RunID == "" {
		return ledger.ErrInvalidEntry
	}
	startedAt := e.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			run_id, session_id, model, provider, iterations, tool_calls,
			input_tokens, output_tokens, total_tokens, stop_reason, error,
			started_at, duration_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.SessionID, e.Model, e.Provider, e.Iterations, e.ToolCalls,
		e.InputTokens, e.OutputTokens, e.TotalTokens, e.StopReason, e.Error,
		startedAt.UnixNano(), int64(e.Duration),
	)
	if err != nil {
		return fmt.Errorf("sqlite: record run: %w", err)
	}
	return nil
}

// Recent implements ledger.Store.
func (s *Store) Recent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, session_id, model, provider, iterations, tool_calls,
			input_tokens, output_tokens, total_tokens, stop_reason, error,
			started_at, duration_ns
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []ledger.Entry
	for rows.Next() {
		var (
			e          ledger.Entry
			startedAt  int64
			durationNS int64
		)
		if err := rows.Scan(
			&e.RunID, &e.SessionID, &e.Model, &e.Provider, &e.Iterations, &e.ToolCalls,
			&e.InputTokens, &e.OutputTokens, &e.TotalTokens, &e.StopReason, &e.Error,
			&startedAt, &durationNS,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan run: %w", err)
		}
		e.StartedAt = time.Unix(0, startedAt).UTC()
		e.Duration = time.Duration(durationNS)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate runs: %w", err)
	}
	return entries, nil
}

// Totals implements ledger.Store.
func (s *Store) Totals(ctx context.Context) (ledger.Totals, error) {
	var t ledger.Totals
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(tool_calls), 0),
			COALESCE(SUM(total_tokens), 0)
		FROM runs`).Scan(&t.Runs, &t.Failed, &t.ToolCalls, &t.TotalTokens)
	if err != nil {
		return ledger.Totals{}, fmt.Errorf("sqlite: totals: %w", err)
	}
	return t, nil
}

// Prune implements ledger.Store.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return int(n), nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
