package forecast

import (
	"context"
	"time"

	"github.com/airwatch/airwatch/internal/airquality"
)

// DefaultTolerance is the half-width of the matching window around a
// prediction's target time.
const DefaultTolerance = 30 * time.Minute

// ObservationLookup returns the measurements recorded in [from, to].
type ObservationLookup interface {
	Between(ctx context.Context, from, to time.Time) ([]*airquality.Measurement, error)
}

// Resolution pairs a prediction with the observation chosen for it.
type Resolution struct {
	PredictionID string
	Actual       float64
	ObservedAt   time.Time
}

// MatchActuals resolves every prediction whose target time is before now and
// whose actual value is unset. The chosen observation is the one closest to
// the target within tolerance; ties go to the earliest. Predictions without a
// candidate are left for the next pass.
func MatchActuals(
	ctx context.Context,
	now time.Time,
	predictions []*Prediction,
	lookup ObservationLookup,
	tolerance time.Duration,
) ([]Resolution, error) {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	var out []Resolution
	for _, p := range predictions {
		if p.Resolved() || !p.TargetAt.Before(now) {
			continue
		}

		candidates, err := lookup.Between(ctx, p.TargetAt.Add(-tolerance), p.TargetAt.Add(tolerance))
		if err != nil {
			return out, err
		}

		best := closest(candidates, p.TargetAt)
		if best == nil {
			continue
		}
		out = append(out, Resolution{
			PredictionID: p.ID,
			Actual:       best.Concentration(p.Pollutant),
			ObservedAt:   best.RecordedAt,
		})
	}
	return out, nil
}

func closest(candidates []*airquality.Measurement, target time.Time) *airquality.Measurement {
	var (
		best     *airquality.Measurement
		bestDist time.Duration
	)
	for _, m := range candidates {
		dist := m.RecordedAt.Sub(target)
		if dist < 0 {
			dist = -dist
		}
		if best == nil || dist < bestDist || (dist == bestDist && m.RecordedAt.Before(best.RecordedAt)) {
			best = m
			bestDist = dist
		}
	}
	return best
}
