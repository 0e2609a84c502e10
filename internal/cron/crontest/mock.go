// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync/atomic"

	"github.com/flemzord/agentbridge/internal/cron"
)

var _ cron.Job = (*Job)(nil)

// Job is a cron.Job whose body is Fn. A nil Fn succeeds.
type Job struct {
	ID   string
	Spec string
	Fn   func(ctx context.Context) error

	runs atomic.Int32
}

func (j *Job) Name() string     { return j.ID }
func (j *Job) Schedule() string { return j.Spec }

func (j *Job) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.Fn == nil {
		return nil
	}
	return j.Fn(ctx)
}

// Runs returns how many times Run was called.
func (j *Job) Runs() int { return int(j.runs.Load()) }
