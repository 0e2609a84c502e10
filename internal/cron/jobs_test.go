package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingPruner struct {
	cutoffs []time.Time
	n       int
	err     error
}

func (p *recordingPruner) Prune(_ context.Context, cutoff time.Time) (int, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.n, p.err
}

func TestLedgerPruneJob(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC)
	boom := errors.New("disk full")
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name       string
		ctx        context.Context
		pruner     *recordingPruner
		wantErr    error
		wantCutoff bool
	}{
		{name: "prunes before cutoff", ctx: context.Background(), pruner: &recordingPruner{n: 3}, wantCutoff: true},
		{name: "nothing to prune", ctx: context.Background(), pruner: &recordingPruner{}, wantCutoff: true},
		{name: "store error", ctx: context.Background(), pruner: &recordingPruner{err: boom}, wantErr: boom, wantCutoff: true},
		{name: "cancelled", ctx: cancelled, pruner: &recordingPruner{}, wantErr: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			j := &LedgerPruneJob{Store: tt.pruner, Retention: 24 * time.Hour, Now: func() time.Time { return now }}

			if err := j.Run(tt.ctx); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run = %v, want %v", err, tt.wantErr)
			}
			if !tt.wantCutoff {
				if len(tt.pruner.cutoffs) != 0 {
					t.Error("Prune called on a cancelled context")
				}
				return
			}
			if len(tt.pruner.cutoffs) != 1 || !tt.pruner.cutoffs[0].Equal(now.Add(-24*time.Hour)) {
				t.Errorf("cutoffs = %v", tt.pruner.cutoffs)
			}
		})
	}
}

func TestLedgerPruneJob_Schedule(t *testing.T) {
	t.Parallel()

	j := &LedgerPruneJob{}
	if got := j.Schedule(); got != "@hourly" {
		t.Errorf("default schedule = %q", got)
	}
	j.Spec = "0 3 * * *"
	if got := j.Schedule(); got != "0 3 * * *" {
		t.Errorf("schedule = %q", got)
	}
	if err := ValidateSchedule(j.Schedule()); err != nil {
		t.Error(err)
	}
}
