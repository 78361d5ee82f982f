package worker

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs the evaluation job on cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	job    *EvaluationJob
	logger zerolog.Logger
}

// NewScheduler validates the schedules and registers the jobs. Overlapping
// runs of the same entry are skipped.
func NewScheduler(ctx context.Context, cfg ScheduleConfig, job *EvaluationJob, logger zerolog.Logger) (*Scheduler, error) {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	s := &Scheduler{cron: c, job: job, logger: logger}

	entries := []struct {
		name string
		spec string
		opts RunOptions
	}{
		{JobMatchActuals, cfg.MatchActuals, RunOptions{MatchOnly: true}},
		{JobEvaluate, cfg.GeneratePredictions, RunOptions{}},
	}
	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(e.spec); err != nil {
			return nil, fmt.Errorf("invalid %s schedule %q: %w", e.name, e.spec, err)
		}
		opts := e.opts
		if _, err := c.AddFunc(e.spec, func() { job.RunWith(ctx, opts) }); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", e.name, err)
		}
		logger.Info().Str("job", e.name).Str("schedule", e.spec).Msg("job scheduled")
	}

	return s, nil
}

// Entries returns the number of scheduled jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("scheduler stop timed out with jobs still running")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
