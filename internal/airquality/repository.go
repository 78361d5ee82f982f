package airquality

import (
	"context"
	"time"
)

// Repository defines persistence for measurements.
type Repository interface {
	// Insert stores a measurement.
	Insert(ctx context.Context, m *Measurement) error

	// Latest returns the most recently recorded measurement.
	// Returns ErrNoMeasurements when the store is empty.
	Latest(ctx context.Context) (*Measurement, error)

	// Since returns measurements recorded at or after since, oldest first.
	Since(ctx context.Context, since time.Time) ([]*Measurement, error)

	// Between returns measurements recorded in [from, to], oldest first.
	Between(ctx context.Context, from, to time.Time) ([]*Measurement, error)

	// InBBox returns located measurements inside box recorded at or after since.
	InBBox(ctx context.Context, box BBox, since time.Time) ([]*Measurement, error)
}
