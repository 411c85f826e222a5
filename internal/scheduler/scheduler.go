// Package scheduler runs OracleRouter's periodic maintenance jobs.
//
// Jobs use standard 5-field cron expressions (minute hour day-of-month month day-of-week)
// or descriptors such as "@every 1m".
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultJobTimeout bounds a single job run.
const DefaultJobTimeout = time.Minute

// Opts holds scheduler options.
type Opts struct {
	JobTimeout time.Duration
}

// Option configures a Scheduler.
type Option func(*Opts)

// WithJobTimeout sets the per-run timeout passed to each job's context.
func WithJobTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.JobTimeout = d
	}
}

// Task is one unit of scheduled work.
type Task func(ctx context.Context) error

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron       *cron.Cron
	jobTimeout time.Duration
	baseCtx    context.Context
	cancel     context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs start running once Run is called.
func NewScheduler(opts ...Option) *Scheduler {
	o := Opts{JobTimeout: DefaultJobTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = DefaultJobTimeout
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{cron: c, jobTimeout: o.JobTimeout, baseCtx: ctx, cancel: cancel}
}

// AddJob schedules task under the cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(name, spec string, task Task) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(s.baseCtx, s.jobTimeout)
		defer cancel()

		start := time.Now()
		if err := task(ctx); err != nil {
			slog.Error("Scheduler.job: run failed", "job", name, "error", err, "elapsed", time.Since(start))
			return
		}
		slog.Debug("Scheduler.job: run completed", "job", name, "elapsed", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	slog.Info("Scheduler.AddJob: job scheduled", "job", name, "schedule", spec)
	return nil
}

// Jobs returns the number of scheduled jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop halts the scheduler, cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
