package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrUnknownJob is returned by Trigger for a name that was never registered.
var ErrUnknownJob = errors.New("cron: unknown job")

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether spec is an expression RegisterJob
// accepts.
func ValidateSchedule(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("cron: invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Scheduler runs registered jobs on their schedules. Jobs are registered
// before Start; a tick that finds the previous run of the same job still
// going is skipped.
type Scheduler struct {
	logger *slog.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries []*entry
	runner  *cron.Cron
}

type entry struct {
	job      Job
	schedule cron.Schedule
	running  sync.Mutex

	// guarded by Scheduler.mu
	status JobStatus
}

// NewScheduler creates an idle scheduler. A nil logger selects
// slog.Default.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{logger: logger, now: time.Now, ctx: ctx, cancel: cancel}
}

// RegisterJob parses the schedule of j and adds it. Names must be unique.
func (s *Scheduler) RegisterJob(j Job) error {
	sched, err := parser.Parse(j.Schedule())
	if err != nil {
		return fmt.Errorf("cron: job %q: invalid schedule %q: %w", j.Name(), j.Schedule(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner != nil {
		return fmt.Errorf("cron: job %q registered after start", j.Name())
	}
	if s.lookup(j.Name()) != nil {
		return fmt.Errorf("cron: duplicate job name %q", j.Name())
	}
	s.entries = append(s.entries, &entry{
		job:      j,
		schedule: sched,
		status:   JobStatus{Name: j.Name(), Schedule: j.Schedule()},
	})
	return nil
}

// Jobs returns the job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.job.Name()
	}
	return names
}

// Status returns a snapshot of every job in registration order. Next is
// only set once the scheduler runs.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]JobStatus, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.status
		if s.runner != nil {
			out[i].Next = e.schedule.Next(now)
		}
	}
	return out
}

// Start begins running jobs on their schedules.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner != nil {
		return errors.New("cron: scheduler already started")
	}
	s.runner = cron.New(cron.WithParser(parser))
	for _, e := range s.entries {
		s.runner.Schedule(e.schedule, cron.FuncJob(func() { s.run(e) }))
	}
	s.runner.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.entries))
	return nil
}

// Trigger runs the named job now, outside its schedule. It reports false
// when a previous run of the job is still in progress.
func (s *Scheduler) Trigger(name string) (bool, error) {
	s.mu.Lock()
	e := s.lookup(name)
	s.mu.Unlock()
	if e == nil {
		return false, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(e), nil
}

func (s *Scheduler) run(e *entry) bool {
	name := e.job.Name()
	if !e.running.TryLock() {
		s.logger.Warn("cron: job still running, skipping tick", "job", name)
		return false
	}
	defer e.running.Unlock()

	began := s.now()
	err := e.job.Run(s.ctx)
	took := s.now().Sub(began)

	s.mu.Lock()
	e.status.LastRun = began
	e.status.Runs++
	e.status.LastError = ""
	if err != nil {
		e.status.Failures++
		e.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("cron: job failed", "job", name, "duration", took, "error", err)
	} else {
		s.logger.Debug("cron: job completed", "job", name, "duration", took)
	}
	return true
}

// Stop cancels the context of running jobs and waits for them to return
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	runner := s.runner
	s.mu.Unlock()
	if runner == nil {
		return nil
	}

	select {
	case <-runner.Stop().Done():
		s.logger.Info("cron: scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron: waiting for running jobs: %w", ctx.Err())
	}
}

func (s *Scheduler) lookup(name string) *entry {
	for _, e := range s.entries {
		if e.job.Name() == name {
			return e
		}
	}
	return nil
}
