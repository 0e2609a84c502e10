// Package cron runs periodic background jobs such as ledger retention on
// robfig/cron schedules. A job never overlaps with itself.
package cron

import (
	"context"
	"time"
)

// Service is the AppContext service name of the shared *Scheduler.
const Service = "cron.scheduler"

// Job is a periodic task.
type Job interface {
	// Name is unique within a Scheduler.
	Name() string

	// Schedule is a five-field cron expression or a descriptor such as
	// "@hourly" or "@every 10m".
	Schedule() string

	// Run receives a context that is cancelled when the scheduler stops.
	Run(ctx context.Context) error
}

// JobStatus is a snapshot of one job, as shown by GET /status.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Next      time.Time `json:"next,omitzero"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
}
