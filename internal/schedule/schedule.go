// Package schedule runs a job on a cron schedule until its context ends.
package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner. Runs never overlap: a tick that fires while
// the previous run is still going is skipped.
type Scheduler struct {
	cron *cron.Cron
	loc  *time.Location
}

// New creates a Scheduler evaluating schedules in timezone ("" means UTC).
func New(timezone string) (*Scheduler, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "schedule: invalid timezone %s", timezone)
	}

	logger := zapLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return &Scheduler{cron: c, loc: loc}, nil
}

// Next returns the first activation of expr after from.
func (s *Scheduler) Next(expr string, from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "schedule: parse %q", expr)
	}
	return sched.Next(from.In(s.loc)), nil
}

// Run registers job under expr and blocks until ctx is done, then waits for
// an in-flight run to finish. Job errors are logged, not returned.
func (s *Scheduler) Run(ctx context.Context, name, expr string, job Job) error {
	log := zap.L().With(zap.String("job", name), zap.String("schedule", expr))

	id, err := s.cron.AddFunc(expr, func() {
		start := time.Now()
		log.Info("schedule: job starting")
		if err := job(ctx); err != nil {
			log.Error("schedule: job failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
			return
		}
		log.Info("schedule: job complete", zap.Duration("duration", time.Since(start)))
	})
	if err != nil {
		return eris.Wrapf(err, "schedule: add job %s", name)
	}

	s.cron.Start()
	log.Info("schedule: started", zap.Time("next_run", s.cron.Entry(id).Next))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	log.Info("schedule: stopped")
	return nil
}

// zapLogger adapts the global zap logger to cron.Logger.
type zapLogger struct{}

func (zapLogger) Info(msg string, keysAndValues ...any) {
	zap.L().Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (zapLogger) Error(err error, msg string, keysAndValues ...any) {
	zap.L().Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
