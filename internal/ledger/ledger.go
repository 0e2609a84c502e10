// Package ledger records one metadata row per loop execution. Rows carry
// ids, model, counters, and timings but never message content.
package ledger

import (
	"context"
	"errors"
	"time"
)

// Service is the AppContext service name under which the active Store is
// published.
const Service = "ledger.store"

// ErrInvalidEntry is returned when an entry lacks a run id.
var ErrInvalidEntry = errors.New("ledger: entry has no run id")

// Entry describes one finished loop execution.
type Entry struct {
	RunID        string
	SessionID    string
	Model        string
	Provider     string
	Iterations   int
	ToolCalls    int
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	StopReason   string
	Error        string
	StartedAt    time.Time
	Duration     time.Duration
}

// Failed reports whether the execution ended on an error.
func (e Entry) Failed() bool {
	return e.Error != ""
}

// Totals aggregates every stored entry.
type Totals struct {
	Runs        int64 `json:"runs"`
	Failed      int64 `json:"failed"`
	ToolCalls   int64 `json:"tool_calls"`
	TotalTokens int64 `json:"total_tokens"`
}

// Store persists ledger entries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Record stores an entry. Recording the same run id twice replaces
	// the previous entry.
	Record(ctx context.Context, e Entry) error

	// Recent returns up to limit entries, most recent first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Totals aggregates all stored entries.
	Totals(ctx context.Context) (Totals, error)

	// Prune deletes entries that started before cutoff and returns how
	// many were removed.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}
