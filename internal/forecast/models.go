// Package forecast generates pollutant predictions, resolves them against
// later observations and evaluates their accuracy.
package forecast

import (
	"errors"
	"time"

	"github.com/airwatch/airwatch/internal/airquality"
)

// Forecast errors.
var (
	ErrInsufficientData   = errors.New("no data available for evaluation")
	ErrActualAlreadySet   = errors.New("prediction already has an actual value")
	ErrPredictionNotFound = errors.New("prediction not found")
	ErrInvalidHorizon     = errors.New("hours ahead must be between 1 and 72")
)

// Source tells how a predicted value was produced.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Prediction is a forecast for one pollutant at CreatedAt + HoursAhead.
// ActualValue is set once, when a matching observation is found.
type Prediction struct {
	ID             string
	Pollutant      airquality.Pollutant
	PredictedValue float64
	HoursAhead     int
	CreatedAt      time.Time
	TargetAt       time.Time
	ActualValue    *float64
	ModelVersion   string
	Source         Source
}

// Resolved reports whether the actual value is known.
func (p *Prediction) Resolved() bool {
	return p.ActualValue != nil
}

// Filter narrows accuracy and comparison queries. Zero values match all.
type Filter struct {
	Pollutant  airquality.Pollutant
	HoursAhead int
	Limit      int
}

// ComparisonRow is one resolved prediction next to its actual value.
type ComparisonRow struct {
	TargetAt   time.Time
	Predicted  float64
	Actual     float64
	AbsError   float64
	HoursAhead int
}

// ModelMetric is the outcome of one training run of the external model.
type ModelMetric struct {
	ID        string
	ModelName string
	ModelType string
	RMSE      float64
	MAE       float64
	R2        float64
	TrainedAt time.Time
}
