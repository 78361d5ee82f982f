package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/airwatch/airwatch/internal/airquality"
	"github.com/airwatch/airwatch/internal/forecast"
)

// Forecaster is the part of the forecast service the job drives.
type Forecaster interface {
	MatchActuals(ctx context.Context) (int, error)
	Generate(ctx context.Context, hours int, modelVersion string) ([]*forecast.Prediction, error)
}

// Job steps.
const (
	StepMatchActuals = "match_actuals"
	StepGenerate     = "generate_predictions"
)

// EvaluationJob resolves due predictions and generates new ones.
type EvaluationJob struct {
	config     EvaluationConfig
	forecaster Forecaster
	logger     zerolog.Logger

	metrics *EvaluationMetrics
}

// EvaluationMetrics tracks job statistics.
type EvaluationMetrics struct {
	mu sync.RWMutex

	// Counters
	Runs        int64
	FailedRuns  int64
	Matched     int64
	Generated   int64
	Fallbacks   int64
	SkippedRuns int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// EvaluationJobConfig holds configuration for creating an EvaluationJob.
type EvaluationJobConfig struct {
	Config     EvaluationConfig
	Forecaster Forecaster
	Logger     zerolog.Logger
}

// NewEvaluationJob creates a new evaluation job.
func NewEvaluationJob(cfg EvaluationJobConfig) *EvaluationJob {
	return &EvaluationJob{
		config:     cfg.Config.withDefaults(),
		forecaster: cfg.Forecaster,
		logger:     cfg.Logger,
		metrics:    &EvaluationMetrics{},
	}
}

// EvaluationResult contains the result of one run.
type EvaluationResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Matched   int
	Generated int
	Fallbacks int
	// NoData is set when generation was skipped for lack of measurements.
	NoData bool
	Errors []JobError
}

// Failed reports whether any step failed.
func (r *EvaluationResult) Failed() bool {
	return len(r.Errors) > 0
}

// JobError represents a failed step.
type JobError struct {
	Step  string
	Error string
}

// RunOptions override the configured horizon and model version for one run.
type RunOptions struct {
	Hours        int
	ModelVersion string
	MatchOnly    bool
	GenerateOnly bool
}

// Run executes the job with the configured settings.
func (j *EvaluationJob) Run(ctx context.Context) *EvaluationResult {
	return j.RunWith(ctx, RunOptions{})
}

// RunWith executes the job. Matching runs before generation so that new
// predictions never compete with stale ones. A failing step does not stop
// the next one.
func (j *EvaluationJob) RunWith(ctx context.Context, opts RunOptions) *EvaluationResult {
	startTime := time.Now()
	result := &EvaluationResult{StartTime: startTime}

	hours := opts.Hours
	if hours <= 0 {
		hours = j.config.Horizon
	}
	version := opts.ModelVersion
	if version == "" {
		version = j.config.ModelVersion
	}

	runCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	j.logger.Info().
		Int("hours", hours).
		Str("model_version", version).
		Msg("starting evaluation job")

	if j.config.MatchActuals && !opts.GenerateOnly {
		matched, err := j.forecaster.MatchActuals(runCtx)
		result.Matched = matched
		if err != nil {
			result.Errors = append(result.Errors, JobError{Step: StepMatchActuals, Error: err.Error()})
		}
	}

	if j.config.GeneratePredictions && !opts.MatchOnly {
		preds, err := j.forecaster.Generate(runCtx, hours, version)
		switch {
		case errors.Is(err, airquality.ErrNoMeasurements):
			result.NoData = true
			j.logger.Warn().Msg("no measurements yet, skipping prediction generation")
		case err != nil:
			result.Errors = append(result.Errors, JobError{Step: StepGenerate, Error: err.Error()})
		default:
			result.Generated = len(preds)
			for _, p := range preds {
				if p.Source == forecast.SourceFallback {
					result.Fallbacks++
				}
			}
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	event := j.logger.Info()
	if result.Failed() {
		event = j.logger.Error().Interface("errors", result.Errors)
	}
	event.
		Dur("duration", result.Duration).
		Int("matched", result.Matched).
		Int("generated", result.Generated).
		Int("fallbacks", result.Fallbacks).
		Msg("evaluation job completed")

	return result
}

func (j *EvaluationJob) updateMetrics(result *EvaluationResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.Runs++
	if result.Failed() {
		j.metrics.FailedRuns++
	}
	if result.NoData {
		j.metrics.SkippedRuns++
	}
	j.metrics.Matched += int64(result.Matched)
	j.metrics.Generated += int64(result.Generated)
	j.metrics.Fallbacks += int64(result.Fallbacks)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *EvaluationJob) GetMetrics() EvaluationMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return EvaluationMetrics{
		Runs:            j.metrics.Runs,
		FailedRuns:      j.metrics.FailedRuns,
		Matched:         j.metrics.Matched,
		Generated:       j.metrics.Generated,
		Fallbacks:       j.metrics.Fallbacks,
		SkippedRuns:     j.metrics.SkippedRuns,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
		TotalDuration:   j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *EvaluationJob) MetricsSnapshot() map[string]any {
	m := j.GetMetrics()
	return map[string]any{
		"runs":              m.Runs,
		"failed_runs":       m.FailedRuns,
		"skipped_runs":      m.SkippedRuns,
		"matched":           m.Matched,
		"generated":         m.Generated,
		"fallbacks":         m.Fallbacks,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
		"total_duration":    m.TotalDuration.String(),
	}
}
