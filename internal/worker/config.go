// Package worker provides background job processing for AirWatch.
package worker

import (
	"time"

	"github.com/airwatch/airwatch/internal/forecast"
)

// EvaluationConfig holds configuration for the prediction evaluation job.
type EvaluationConfig struct {
	// Horizon is the number of hourly lead times to forecast.
	// Default: 6
	Horizon int

	// ModelVersion labels generated predictions.
	// Default: forecast.DefaultModelVersion
	ModelVersion string

	// Timeout bounds one run of the job.
	// Default: 5 minutes
	Timeout time.Duration

	// MatchActuals resolves due predictions before generating new ones.
	// Default: true
	MatchActuals bool

	// GeneratePredictions forecasts from the latest measurement.
	// Default: true
	GeneratePredictions bool
}

// DefaultEvaluationConfig returns the default evaluation configuration.
func DefaultEvaluationConfig() EvaluationConfig {
	return EvaluationConfig{
		Horizon:             6,
		ModelVersion:        forecast.DefaultModelVersion,
		Timeout:             5 * time.Minute,
		MatchActuals:        true,
		GeneratePredictions: true,
	}
}

func (c EvaluationConfig) withDefaults() EvaluationConfig {
	def := DefaultEvaluationConfig()
	if c.Horizon <= 0 {
		c.Horizon = def.Horizon
	}
	if c.ModelVersion == "" {
		c.ModelVersion = def.ModelVersion
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

// ScheduleConfig holds the cron schedules of the recurring jobs. Schedules use the
// standard five-field format; an empty schedule disables the job.
type ScheduleConfig struct {
	// MatchActuals resolves due predictions.
	// Default: every 15 minutes
	MatchActuals string

	// GeneratePredictions runs the full evaluation job.
	// Default: hourly
	GeneratePredictions string
}

// DefaultScheduleConfig returns the default schedules.
func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		MatchActuals:        "*/15 * * * *",
		GeneratePredictions: "0 * * * *",
	}
}
