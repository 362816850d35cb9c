// Package trigger starts job chains on a cron schedule.
package trigger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"relentless-relay/internal/models"
	"relentless-relay/internal/pipeline"
)

// Runner executes one invocation. *pipeline.Worker satisfies it.
type Runner interface {
	Run(ctx context.Context, resume *models.ContinuationMessage) (pipeline.Outcome, error)
}

// Scheduler runs a start-of-job invocation on every tick. A tick that fires
// while the previous one is still running is skipped.
type Scheduler struct {
	cron      *cron.Cron
	job       cron.Job
	runner    Runner
	timeout   time.Duration
	onOutcome func(pipeline.Outcome, error)
}

// New parses a standard 5-field cron expression (descriptors like @hourly are
// accepted too). timeout bounds each tick; 0 disables it. onOutcome may be nil.
func New(schedule string, runner Runner, timeout time.Duration, onOutcome func(pipeline.Outcome, error)) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("trigger: runner is required")
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("trigger: invalid schedule %q: %w", schedule, err)
	}

	logger := cron.PrintfLogger(log.Default())
	s := &Scheduler{
		cron:      cron.New(cron.WithLogger(logger)),
		runner:    runner,
		timeout:   timeout,
		onOutcome: onOutcome,
	}
	s.job = cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(s.tick))
	s.cron.Schedule(sched, s.job)
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for a running tick until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports when the next tick fires. Zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	out, err := s.runner.Run(ctx, nil)
	if err != nil {
		log.Printf("scheduled run failed job=%s invocation=%s state=%s err=%v", out.JobID, out.InvocationID, out.FailedIn, err)
	} else {
		log.Printf("scheduled run finished job=%s invocation=%s state=%s units=%d records=%d", out.JobID, out.InvocationID, out.State, out.UnitsProcessed, out.RecordsStored)
	}
	if s.onOutcome != nil {
		s.onOutcome(out, err)
	}
}
