package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airwatch/airwatch/internal/airquality"
	"github.com/airwatch/airwatch/internal/forecast"
	"github.com/airwatch/airwatch/internal/worker"
)

type stubForecaster struct {
	mu sync.Mutex

	matched     int
	matchErr    error
	generateErr error
	fallbacks   int

	matchCalls    int
	generateCalls int
	lastHours     int
	lastVersion   string
}

func (s *stubForecaster) MatchActuals(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matchCalls++
	return s.matched, s.matchErr
}

func (s *stubForecaster) Generate(_ context.Context, hours int, version string) ([]*forecast.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generateCalls++
	s.lastHours = hours
	s.lastVersion = version
	if s.generateErr != nil {
		return nil, s.generateErr
	}

	out := make([]*forecast.Prediction, 0, hours)
	for h := 1; h <= hours; h++ {
		source := forecast.SourceModel
		if h <= s.fallbacks {
			source = forecast.SourceFallback
		}
		out = append(out, &forecast.Prediction{HoursAhead: h, ModelVersion: version, Source: source})
	}
	return out, nil
}

func newJob(f worker.Forecaster, cfg worker.EvaluationConfig) *worker.EvaluationJob {
	return worker.NewEvaluationJob(worker.EvaluationJobConfig{
		Config:     cfg,
		Forecaster: f,
		Logger:     zerolog.Nop(),
	})
}

func TestDefaultEvaluationConfig(t *testing.T) {
	cfg := worker.DefaultEvaluationConfig()

	assert.Equal(t, 6, cfg.Horizon)
	assert.Equal(t, forecast.DefaultModelVersion, cfg.ModelVersion)
	assert.Equal(t, 5*time.Minute, cfg.Timeout)
	assert.True(t, cfg.MatchActuals)
	assert.True(t, cfg.GeneratePredictions)
}

func TestDefaultScheduleConfig(t *testing.T) {
	cfg := worker.DefaultScheduleConfig()

	assert.Equal(t, "*/15 * * * *", cfg.MatchActuals)
	assert.Equal(t, "0 * * * *", cfg.GeneratePredictions)
}

func TestEvaluationJob_Run(t *testing.T) {
	f := &stubForecaster{matched: 3, fallbacks: 2}
	job := newJob(f, worker.DefaultEvaluationConfig())

	result := job.Run(context.Background())

	assert.False(t, result.Failed())
	assert.Equal(t, 3, result.Matched)
	assert.Equal(t, 6, result.Generated)
	assert.Equal(t, 2, result.Fallbacks)
	assert.False(t, result.EndTime.Before(result.StartTime))
	assert.Equal(t, 6, f.lastHours)
	assert.Equal(t, forecast.DefaultModelVersion, f.lastVersion)
}

func TestEvaluationJob_ZeroConfigUsesDefaults(t *testing.T) {
	f := &stubForecaster{}
	job := newJob(f, worker.EvaluationConfig{MatchActuals: true, GeneratePredictions: true})

	job.Run(context.Background())

	assert.Equal(t, 6, f.lastHours)
	assert.Equal(t, forecast.DefaultModelVersion, f.lastVersion)
}

func TestEvaluationJob_RunWithOverrides(t *testing.T) {
	f := &stubForecaster{}
	job := newJob(f, worker.DefaultEvaluationConfig())

	result := job.RunWith(context.Background(), worker.RunOptions{Hours: 3, ModelVersion: "v2.0"})

	assert.Equal(t, 3, result.Generated)
	assert.Equal(t, 3, f.lastHours)
	assert.Equal(t, "v2.0", f.lastVersion)
}

func TestEvaluationJob_StepSelection(t *testing.T) {
	tests := []struct {
		name         string
		opts         worker.RunOptions
		wantMatch    int
		wantGenerate int
	}{
		{"both steps", worker.RunOptions{}, 1, 1},
		{"match only", worker.RunOptions{MatchOnly: true}, 1, 0},
		{"generate only", worker.RunOptions{GenerateOnly: true}, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &stubForecaster{}
			job := newJob(f, worker.DefaultEvaluationConfig())

			job.RunWith(context.Background(), tt.opts)

			assert.Equal(t, tt.wantMatch, f.matchCalls)
			assert.Equal(t, tt.wantGenerate, f.generateCalls)
		})
	}
}

func TestEvaluationJob_DisabledSteps(t *testing.T) {
	f := &stubForecaster{}
	cfg := worker.DefaultEvaluationConfig()
	cfg.GeneratePredictions = false
	job := newJob(f, cfg)

	job.Run(context.Background())

	assert.Equal(t, 1, f.matchCalls)
	assert.Zero(t, f.generateCalls)
}

func TestEvaluationJob_MatchFailureStillGenerates(t *testing.T) {
	f := &stubForecaster{matchErr: errors.New("database unavailable")}
	job := newJob(f, worker.DefaultEvaluationConfig())

	result := job.Run(context.Background())

	require.True(t, result.Failed())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, worker.StepMatchActuals, result.Errors[0].Step)
	assert.Equal(t, "database unavailable", result.Errors[0].Error)
	assert.Equal(t, 6, result.Generated)
}

func TestEvaluationJob_NoMeasurementsIsNotFailure(t *testing.T) {
	f := &stubForecaster{generateErr: airquality.ErrNoMeasurements}
	job := newJob(f, worker.DefaultEvaluationConfig())

	result := job.Run(context.Background())

	assert.False(t, result.Failed())
	assert.True(t, result.NoData)
	assert.Zero(t, result.Generated)

	m := job.GetMetrics()
	assert.Equal(t, int64(1), m.SkippedRuns)
	assert.Zero(t, m.FailedRuns)
}

func TestEvaluationJob_GenerateFailure(t *testing.T) {
	f := &stubForecaster{generateErr: forecast.ErrInvalidHorizon}
	job := newJob(f, worker.DefaultEvaluationConfig())

	result := job.Run(context.Background())

	require.Len(t, result.Errors, 1)
	assert.Equal(t, worker.StepGenerate, result.Errors[0].Step)
}

func TestEvaluationJob_Metrics(t *testing.T) {
	f := &stubForecaster{matched: 2, fallbacks: 1}
	job := newJob(f, worker.DefaultEvaluationConfig())

	job.Run(context.Background())
	job.Run(context.Background())

	m := job.GetMetrics()
	assert.Equal(t, int64(2), m.Runs)
	assert.Equal(t, int64(4), m.Matched)
	assert.Equal(t, int64(12), m.Generated)
	assert.Equal(t, int64(2), m.Fallbacks)
	assert.False(t, m.LastRunAt.IsZero())

	snapshot := job.MetricsSnapshot()
	assert.Equal(t, int64(2), snapshot["runs"])
	assert.Equal(t, int64(12), snapshot["generated"])
	assert.Contains(t, snapshot, "last_run_duration")
}
