package alert

import (
	"context"
	"sort"
	"sync"

	"github.com/airwatch/airwatch/internal/airquality"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and local runs. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu     sync.RWMutex
	alerts []*Alert
}

// NewInMemoryRepository creates a new in-memory alert repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// ApplyTransitions applies the batch under one lock.
func (r *InMemoryRepository) ApplyTransitions(_ context.Context, batch []Transition) (*ApplyResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	type resolution struct {
		index int
		at    Transition
	}

	var (
		resolved []resolution
		created  []*Alert
	)
	for _, t := range batch {
		for i, a := range r.alerts {
			if a.Active && a.Pollutant == t.Pollutant {
				resolved = append(resolved, resolution{index: i, at: t})
			}
		}
		if t.Create != nil {
			cpy := *t.Create
			cpy.Active = true
			created = append(created, &cpy)
		}
	}

	for _, res := range resolved {
		at := res.at.At
		a := r.alerts[res.index]
		a.Active = false
		a.ResolvedAt = &at
	}
	r.alerts = append(r.alerts, created...)

	out := &ApplyResult{Resolved: len(resolved)}
	for _, a := range created {
		cpy := *a
		out.Created = append(out.Created, &cpy)
	}
	return out, nil
}

// ActiveFor returns the active alert for a pollutant, or nil.
func (r *InMemoryRepository) ActiveFor(_ context.Context, pollutant airquality.Pollutant) (*Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.alerts {
		if a.Active && a.Pollutant == pollutant {
			cpy := *a
			return &cpy, nil
		}
	}
	return nil, nil
}

// Active returns every active alert, newest first.
func (r *InMemoryRepository) Active(_ context.Context) ([]*Alert, error) {
	return r.selectAlerts(func(a *Alert) bool { return a.Active }, 0), nil
}

// History returns alerts matching the filter, newest first.
func (r *InMemoryRepository) History(_ context.Context, filter HistoryFilter) ([]*Alert, error) {
	return r.selectAlerts(func(a *Alert) bool {
		if filter.From != nil && a.CreatedAt.Before(*filter.From) {
			return false
		}
		if filter.To != nil && a.CreatedAt.After(*filter.To) {
			return false
		}
		return true
	}, filter.Limit), nil
}

// All returns every stored alert.
func (r *InMemoryRepository) All(_ context.Context) ([]*Alert, error) {
	return r.selectAlerts(func(*Alert) bool { return true }, 0), nil
}

func (r *InMemoryRepository) selectAlerts(keep func(*Alert) bool, limit int) []*Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Alert
	for _, a := range r.alerts {
		if keep(a) {
			cpy := *a
			out = append(out, &cpy)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
