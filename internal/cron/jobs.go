package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pruner deletes ledger rows that started before cutoff. ledger.Store
// satisfies it.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// LedgerPruneJob enforces the ledger retention period.
type LedgerPruneJob struct {
	Store     Pruner
	Retention time.Duration
	Logger    *slog.Logger

	// Spec defaults to "@hourly".
	Spec string

	Now func() time.Time
}

var _ Job = (*LedgerPruneJob)(nil)

func (j *LedgerPruneJob) Name() string { return "ledger_prune" }

func (j *LedgerPruneJob) Schedule() string {
	if j.Spec == "" {
		return "@hourly"
	}
	return j.Spec
}

func (j *LedgerPruneJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("ledger prune: %w", err)
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	cutoff := now().Add(-j.Retention)

	n, err := j.Store.Prune(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("ledger prune: %w", err)
	}
	if n > 0 && j.Logger != nil {
		j.Logger.Info("cron: pruned ledger rows", "count", n, "cutoff", cutoff)
	}
	return nil
}
