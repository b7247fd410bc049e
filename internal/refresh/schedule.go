package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "danceimport/internal/log"
)

// Scheduler triggers Runner.Run on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	ctx    context.Context
}

// NewScheduler validates spec (standard 5-field cron) in loc. Jobs run with
// ctx, so canceling it aborts an in-flight retrieval.
func NewScheduler(ctx context.Context, spec string, loc *time.Location, runner *Runner) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		runner: runner,
		ctx:    ctx,
	}
	if _, err := s.cron.AddFunc(spec, s.job); err != nil {
		return nil, fmt.Errorf("add cron %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) job() {
	if s.ctx.Err() != nil {
		return
	}
	// Errors are already logged and counted by the runner.
	_, _ = s.runner.Run(s.ctx)
}

// Start begins cron execution.
func (s *Scheduler) Start() {
	s.cron.Start()
	appLog.Info("refresh scheduler started", "next", s.Next().Format(time.RFC3339))
}

// Next reports when the schedule fires next.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	if !entries[0].Next.IsZero() {
		return entries[0].Next
	}
	return entries[0].Schedule.Next(time.Now())
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
