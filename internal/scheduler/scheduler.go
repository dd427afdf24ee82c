// Package scheduler runs a job on a cron schedule until the context ends.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "afishacal/internal/log"
)

// Job is one scheduled unit of work. It receives the scheduler's context.
type Job func(ctx context.Context)

// Options tunes a scheduler run.
type Options struct {
	// Location is the zone the cron expression is read in. Nil means Local.
	Location *time.Location
	// RunImmediately fires the job once before waiting for the first tick.
	RunImmediately bool
}

// Run blocks until ctx is canceled, firing job on every tick of spec.
// A tick that arrives while the previous job is still running is skipped.
func Run(ctx context.Context, spec string, job Job, opts Options) error {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	id, err := c.AddFunc(spec, func() { job(ctx) })
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", spec, err)
	}

	if opts.RunImmediately {
		// Through the entry's wrapped job so the skip-if-running guard
		// covers the first run too.
		go c.Entry(id).WrappedJob.Run()
	}

	c.Start()
	appLog.Info("scheduler started", "schedule", spec, "timezone", loc.String(), "next", c.Entry(id).Next.Format(time.RFC3339))

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	appLog.Info("scheduler stopped")
	return nil
}

// Next reports the first activation of spec after from.
func Next(spec string, from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: invalid schedule %q: %w", spec, err)
	}
	return sched.Next(from), nil
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
