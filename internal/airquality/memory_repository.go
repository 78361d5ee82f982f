package airquality

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and local runs. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu           sync.RWMutex
	measurements []*Measurement
}

// NewInMemoryRepository creates a new in-memory measurement repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// Insert stores a copy of m, keeping the slice ordered by RecordedAt.
func (r *InMemoryRepository) Insert(_ context.Context, m *Measurement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *m
	i := sort.Search(len(r.measurements), func(i int) bool {
		return r.measurements[i].RecordedAt.After(cpy.RecordedAt)
	})
	r.measurements = append(r.measurements, nil)
	copy(r.measurements[i+1:], r.measurements[i:])
	r.measurements[i] = &cpy
	return nil
}

// Latest returns the most recently recorded measurement.
func (r *InMemoryRepository) Latest(_ context.Context) (*Measurement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.measurements) == 0 {
		return nil, ErrNoMeasurements
	}
	cpy := *r.measurements[len(r.measurements)-1]
	return &cpy, nil
}

// Since returns measurements recorded at or after since.
func (r *InMemoryRepository) Since(_ context.Context, since time.Time) ([]*Measurement, error) {
	return r.filter(func(m *Measurement) bool {
		return !m.RecordedAt.Before(since)
	}), nil
}

// Between returns measurements recorded in [from, to].
func (r *InMemoryRepository) Between(_ context.Context, from, to time.Time) ([]*Measurement, error) {
	return r.filter(func(m *Measurement) bool {
		return !m.RecordedAt.Before(from) && !m.RecordedAt.After(to)
	}), nil
}

// InBBox returns located measurements inside box recorded at or after since.
func (r *InMemoryRepository) InBBox(_ context.Context, box BBox, since time.Time) ([]*Measurement, error) {
	return r.filter(func(m *Measurement) bool {
		return m.HasLocation() && !m.RecordedAt.Before(since) && box.Contains(*m.Lat, *m.Lon)
	}), nil
}

func (r *InMemoryRepository) filter(keep func(*Measurement) bool) []*Measurement {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Measurement
	for _, m := range r.measurements {
		if keep(m) {
			cpy := *m
			out = append(out, &cpy)
		}
	}
	return out
}
