package forecast

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/airwatch/airwatch/internal/airquality"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and local runs. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu          sync.RWMutex
	predictions map[string]*Prediction
	metrics     []*ModelMetric
}

// NewInMemoryRepository creates a new in-memory prediction repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		predictions: make(map[string]*Prediction),
	}
}

// InsertBatch stores copies of the predictions.
func (r *InMemoryRepository) InsertBatch(_ context.Context, predictions []*Prediction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range predictions {
		cpy := *p
		r.predictions[p.ID] = &cpy
	}
	return nil
}

// UnresolvedBefore returns unresolved predictions targeting before t.
func (r *InMemoryRepository) UnresolvedBefore(_ context.Context, t time.Time) ([]*Prediction, error) {
	out := r.filter(func(p *Prediction) bool {
		return !p.Resolved() && p.TargetAt.Before(t)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].TargetAt.Before(out[j].TargetAt) })
	return out, nil
}

// SetActual records the actual value once.
func (r *InMemoryRepository) SetActual(_ context.Context, id string, actual float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.predictions[id]
	if !ok {
		return ErrPredictionNotFound
	}
	if p.Resolved() {
		return ErrActualAlreadySet
	}
	p.ActualValue = &actual
	return nil
}

// Resolved returns resolved predictions matching f, latest target first.
func (r *InMemoryRepository) Resolved(_ context.Context, f Filter) ([]*Prediction, error) {
	out := r.filter(func(p *Prediction) bool {
		if !p.Resolved() {
			return false
		}
		if f.Pollutant != "" && p.Pollutant != f.Pollutant {
			return false
		}
		if f.HoursAhead > 0 && p.HoursAhead != f.HoursAhead {
			return false
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].TargetAt.After(out[j].TargetAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Upcoming returns the newest prediction per pollutant and lead time whose
// target lies in [from, to].
func (r *InMemoryRepository) Upcoming(_ context.Context, from, to time.Time) ([]*Prediction, error) {
	type key struct {
		pollutant airquality.Pollutant
		hours     int
	}

	r.mu.RLock()
	latest := make(map[key]*Prediction)
	for _, p := range r.predictions {
		k := key{p.Pollutant, p.HoursAhead}
		if cur, ok := latest[k]; !ok || p.CreatedAt.After(cur.CreatedAt) {
			latest[k] = p
		}
	}
	var out []*Prediction
	for _, p := range latest {
		if p.TargetAt.Before(from) || p.TargetAt.After(to) {
			continue
		}
		cpy := *p
		out = append(out, &cpy)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].TargetAt.Equal(out[j].TargetAt) {
			return out[i].Pollutant < out[j].Pollutant
		}
		return out[i].TargetAt.Before(out[j].TargetAt)
	})
	return out, nil
}

// InsertModelMetric stores a training run.
func (r *InMemoryRepository) InsertModelMetric(_ context.Context, m *ModelMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cpy := *m
	r.metrics = append(r.metrics, &cpy)
	return nil
}

// ModelMetrics returns the latest training runs, newest first.
func (r *InMemoryRepository) ModelMetrics(_ context.Context, limit int) ([]*ModelMetric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ModelMetric, 0, len(r.metrics))
	for i := len(r.metrics) - 1; i >= 0; i-- {
		cpy := *r.metrics[i]
		out = append(out, &cpy)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryRepository) filter(keep func(*Prediction) bool) []*Prediction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Prediction
	for _, p := range r.predictions {
		if keep(p) {
			cpy := *p
			out = append(out, &cpy)
		}
	}
	return out
}
