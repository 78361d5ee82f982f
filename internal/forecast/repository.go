package forecast

import (
	"context"
	"time"
)

// Repository defines persistence for predictions and model metrics.
type Repository interface {
	// InsertBatch stores predictions in one operation.
	InsertBatch(ctx context.Context, predictions []*Prediction) error

	// UnresolvedBefore returns predictions without an actual value whose
	// target time is before t, oldest target first.
	UnresolvedBefore(ctx context.Context, t time.Time) ([]*Prediction, error)

	// SetActual records the actual value of a prediction. It fails with
	// ErrActualAlreadySet if one was recorded before.
	SetActual(ctx context.Context, id string, actual float64) error

	// Resolved returns predictions with an actual value matching f, latest
	// target first.
	Resolved(ctx context.Context, f Filter) ([]*Prediction, error)

	// Upcoming returns, for each pollutant and lead time, the most recently
	// created prediction if its target lies in [from, to]. Ordered by target.
	Upcoming(ctx context.Context, from, to time.Time) ([]*Prediction, error)

	// InsertModelMetric stores the outcome of a training run.
	InsertModelMetric(ctx context.Context, m *ModelMetric) error

	// ModelMetrics returns the latest training runs, newest first.
	ModelMetrics(ctx context.Context, limit int) ([]*ModelMetric, error)
}
