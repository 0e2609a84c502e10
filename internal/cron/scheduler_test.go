package cron_test

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flemzord/agentbridge/internal/cron"
	"github.com/flemzord/agentbridge/internal/cron/crontest"
)

func newScheduler(t *testing.T) *cron.Scheduler {
	t.Helper()
	s := cron.NewScheduler(slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func TestScheduler_RegisterJob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		jobs    []*crontest.Job
		wantErr string
	}{
		{name: "expressions and descriptors", jobs: []*crontest.Job{{ID: "a", Spec: "*/5 * * * *"}, {ID: "b", Spec: "@every 90s"}}},
		{name: "duplicate", jobs: []*crontest.Job{{ID: "a", Spec: "@daily"}, {ID: "a", Spec: "@hourly"}}, wantErr: "duplicate"},
		{name: "invalid expression", jobs: []*crontest.Job{{ID: "bad", Spec: "61 * * * *"}}, wantErr: "invalid schedule"},
		{name: "seconds field", jobs: []*crontest.Job{{ID: "bad", Spec: "0 0 0 * * *"}}, wantErr: "invalid schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newScheduler(t)
			var err error
			for _, j := range tt.jobs {
				if err = s.RegisterJob(j); err != nil {
					break
				}
			}
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("RegisterJob: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("RegisterJob = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestScheduler_RegisterAfterStart(t *testing.T) {
	t.Parallel()

	s := newScheduler(t)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterJob(&crontest.Job{ID: "late", Spec: "@daily"}); err == nil {
		t.Error("RegisterJob after Start succeeded")
	}
	if err := s.Start(); err == nil {
		t.Error("second Start succeeded")
	}
}

func TestScheduler_Status(t *testing.T) {
	t.Parallel()

	s := newScheduler(t)
	fail := true
	_ = s.RegisterJob(&crontest.Job{ID: "ledger_prune", Spec: "@hourly", Fn: func(context.Context) error {
		if fail {
			return errors.New("database is locked")
		}
		return nil
	}})
	_ = s.RegisterJob(&crontest.Job{ID: "idle", Spec: "@daily"})

	if got := s.Jobs(); !slices.Equal(got, []string{"ledger_prune", "idle"}) {
		t.Errorf("Jobs = %v", got)
	}

	_, _ = s.Trigger("ledger_prune")
	st := s.Status()[0]
	if st.Runs != 1 || st.Failures != 1 || st.LastError != "database is locked" || st.LastRun.IsZero() {
		t.Errorf("after failure: %+v", st)
	}
	if !st.Next.IsZero() {
		t.Errorf("Next set before Start: %v", st.Next)
	}

	fail = false
	_, _ = s.Trigger("ledger_prune")
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	statuses := s.Status()
	if st := statuses[0]; st.Runs != 2 || st.Failures != 1 || st.LastError != "" {
		t.Errorf("after success: %+v", st)
	}
	if next := statuses[1].Next; !next.After(time.Now()) || next.Sub(time.Now()) > 24*time.Hour {
		t.Errorf("idle next = %v", next)
	}
	if statuses[1].Runs != 0 || !statuses[1].LastRun.IsZero() {
		t.Errorf("idle = %+v", statuses[1])
	}
}

func TestScheduler_Trigger(t *testing.T) {
	t.Parallel()

	s := newScheduler(t)
	job := &crontest.Job{ID: "manual", Spec: "@daily"}
	_ = s.RegisterJob(job)

	if ran, err := s.Trigger("manual"); err != nil || !ran {
		t.Fatalf("Trigger = %v, %v", ran, err)
	}
	if job.Runs() != 1 {
		t.Errorf("runs = %d", job.Runs())
	}
	if _, err := s.Trigger("missing"); !errors.Is(err, cron.ErrUnknownJob) {
		t.Errorf("err = %v, want ErrUnknownJob", err)
	}
}

func TestScheduler_NoOverlap(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	job := &crontest.Job{ID: "slow", Spec: "@daily", Fn: func(context.Context) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}}
	s := newScheduler(t)
	_ = s.RegisterJob(job)

	done := make(chan bool)
	go func() {
		ran, _ := s.Trigger("slow")
		done <- ran
	}()
	<-started

	var skipped atomic.Int32
	var wg sync.WaitGroup
	for range 5 {
		wg.Go(func() {
			if ran, _ := s.Trigger("slow"); !ran {
				skipped.Add(1)
			}
		})
	}
	wg.Wait()
	close(release)

	if !<-done {
		t.Error("first trigger did not run")
	}
	if skipped.Load() != 5 || job.Runs() != 1 {
		t.Errorf("skipped = %d, runs = %d", skipped.Load(), job.Runs())
	}
}

func TestScheduler_StopCancelsJobs(t *testing.T) {
	t.Parallel()

	var seen context.Context
	s := cron.NewScheduler(nil)
	_ = s.RegisterJob(&crontest.Job{ID: "ctx", Spec: "@daily", Fn: func(ctx context.Context) error {
		seen = ctx
		return nil
	}})
	_, _ = s.Trigger("ctx")

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop without Start: %v", err)
	}
	if seen == nil || seen.Err() == nil {
		t.Error("job context not cancelled by Stop")
	}
}

func TestScheduler_StopTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	s := cron.NewScheduler(slog.New(slog.DiscardHandler))
	_ = s.RegisterJob(&crontest.Job{ID: "stuck", Spec: "@every 1s", Fn: func(context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}})
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop = %v, want DeadlineExceeded", err)
	}
}

func TestLedgerPruneJob_Scheduled(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s := newScheduler(t)
	job := &cron.LedgerPruneJob{Store: prunerFunc(func(context.Context, time.Time) (int, error) {
		calls.Add(1)
		return 0, nil
	}), Retention: time.Hour}
	if err := s.RegisterJob(job); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Trigger("ledger_prune"); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Errorf("Prune calls = %d", calls.Load())
	}
}

type prunerFunc func(context.Context, time.Time) (int, error)

func (f prunerFunc) Prune(ctx context.Context, cutoff time.Time) (int, error) { return f(ctx, cutoff) }

func FuzzValidateSchedule(f *testing.F) {
	for _, seed := range []string{"*/5 * * * *", "0 0 1 1 *", "@hourly", "@every 1m", "", "60 * * * *", "0 25 * * *", "* * * * * *"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, spec string) {
		err := cron.ValidateSchedule(spec)
		regErr := cron.NewScheduler(slog.New(slog.DiscardHandler)).RegisterJob(&crontest.Job{ID: "j", Spec: spec})
		if (err == nil) != (regErr == nil) {
			t.Fatalf("ValidateSchedule(%q) = %v but RegisterJob = %v", spec, err, regErr)
		}
	})
}
