package alert

import (
	"context"

	"github.com/airwatch/airwatch/internal/airquality"
)

// Repository defines persistence for alerts.
type Repository interface {
	// ApplyTransitions resolves the active alert of every pollutant in the
	// batch and inserts the new alerts. The batch is applied atomically.
	ApplyTransitions(ctx context.Context, batch []Transition) (*ApplyResult, error)

	// ActiveFor returns the active alert for a pollutant, or nil.
	ActiveFor(ctx context.Context, pollutant airquality.Pollutant) (*Alert, error)

	// Active returns every active alert, newest first.
	Active(ctx context.Context) ([]*Alert, error)

	// History returns alerts matching the filter, newest first.
	History(ctx context.Context, filter HistoryFilter) ([]*Alert, error)

	// All returns every stored alert.
	All(ctx context.Context) ([]*Alert, error)
}
