package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/airwatch/airwatch/internal/airquality"
)

const meterName = "github.com/airwatch/airwatch/internal/alert"

// DefaultHistoryLimit caps History when the filter has no limit.
const DefaultHistoryLimit = 50

// Notifier is told about alerts after their batch has been committed.
type Notifier interface {
	AlertsRaised(ctx context.Context, alerts []*Alert) error
}

// EngineConfig holds configuration for the alert engine.
type EngineConfig struct {
	// Repository stores alerts.
	Repository Repository

	// Locker serializes mutation per pollutant (default: NewKeyedMutex()).
	Locker Locker

	// Thresholds per pollutant (default: DefaultThresholdTable()).
	Thresholds ThresholdTable

	// Notifier receives created alerts. Optional.
	Notifier Notifier

	// Logger for engine operations.
	Logger zerolog.Logger

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Engine applies the per-pollutant alert state machine.
type Engine struct {
	repo       Repository
	locker     Locker
	thresholds ThresholdTable
	notifier   Notifier
	logger     zerolog.Logger
	now        func() time.Time

	created  metric.Int64Counter
	resolved metric.Int64Counter
}

// NewEngine creates a new alert engine.
func NewEngine(cfg EngineConfig) *Engine {
	locker := cfg.Locker
	if locker == nil {
		locker = NewKeyedMutex()
	}

	thresholds := cfg.Thresholds
	if thresholds == nil {
		thresholds = DefaultThresholdTable()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		repo:       cfg.Repository,
		locker:     locker,
		thresholds: thresholds,
		notifier:   cfg.Notifier,
		logger:     cfg.Logger,
		now:        now,
	}

	meter := otel.Meter(meterName)
	var err error
	if e.created, err = meter.Int64Counter("alerts.created",
		metric.WithDescription("Alerts created"),
		metric.WithUnit("{alert}"),
	); err != nil {
		e.logger.Warn().Err(err).Msg("alerts.created counter unavailable")
	}
	if e.resolved, err = meter.Int64Counter("alerts.resolved",
		metric.WithDescription("Active alerts resolved"),
		metric.WithUnit("{alert}"),
	); err != nil {
		e.logger.Warn().Err(err).Msg("alerts.resolved counter unavailable")
	}

	return e
}

// Thresholds returns the configured threshold table.
func (e *Engine) Thresholds() ThresholdTable {
	return e.thresholds
}

// Evaluate classifies a concentration of pollutant p.
func (e *Engine) Evaluate(p airquality.Pollutant, value float64) (Level, error) {
	t, ok := e.thresholds[p]
	if !ok {
		return LevelGreen, fmt.Errorf("%w: %s", ErrUnknownPollutant, p)
	}
	return EvaluatePollutant(value, t), nil
}

// Process evaluates every pollutant of m and applies the resulting
// transitions as one batch. A green reading resolves the active alert; any
// other reading replaces it with a new one, even at an unchanged level.
func (e *Engine) Process(ctx context.Context, m *airquality.Measurement) ([]*Alert, error) {
	now := e.now().UTC()

	batch := make([]Transition, 0, len(airquality.Pollutants))
	for _, p := range airquality.Pollutants {
		t, ok := e.thresholds[p]
		if !ok {
			continue
		}
		value := m.Concentration(p)
		batch = append(batch, e.transition(p, value, EvaluatePollutant(value, t), m.Lat, m.Lon, now))
	}

	return e.apply(ctx, batch)
}

// ProcessMeasurement runs Process and reports the number of alerts created.
func (e *Engine) ProcessMeasurement(ctx context.Context, m *airquality.Measurement) (int, error) {
	created, err := e.Process(ctx, m)
	if err != nil {
		return 0, err
	}
	return len(created), nil
}

// Simulate applies a synthetic reading for one pollutant. A reading that
// classifies as green fails with ErrBelowThreshold.
func (e *Engine) Simulate(ctx context.Context, p airquality.Pollutant, value float64) (*Alert, error) {
	level, err := e.Evaluate(p, value)
	if err != nil {
		return nil, err
	}
	if level == LevelGreen {
		return nil, ErrBelowThreshold
	}

	created, err := e.apply(ctx, []Transition{e.transition(p, value, level, nil, nil, e.now().UTC())})
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

func (e *Engine) transition(p airquality.Pollutant, value float64, level Level, lat, lon *float64, now time.Time) Transition {
	t := Transition{Pollutant: p, At: now}
	if level == LevelGreen {
		return t
	}
	t.Create = &Alert{
		ID:        uuid.NewString(),
		Pollutant: p,
		Value:     value,
		Level:     level,
		Message:   Message(p, value, level),
		Active:    true,
		Lat:       lat,
		Lon:       lon,
		CreatedAt: now,
	}
	return t
}

// apply locks every pollutant in batch order and hands the batch to the
// repository.
func (e *Engine) apply(ctx context.Context, batch []Transition) ([]*Alert, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	for _, t := range batch {
		unlock, err := e.locker.Lock(ctx, string(t.Pollutant))
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", t.Pollutant, err)
		}
		defer unlock()
	}

	result, err := e.repo.ApplyTransitions(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("apply alert transitions: %w", err)
	}

	e.record(ctx, result)

	if len(result.Created) > 0 && e.notifier != nil {
		if err := e.notifier.AlertsRaised(ctx, result.Created); err != nil {
			e.logger.Warn().Err(err).Int("alerts", len(result.Created)).Msg("alert notification failed")
		}
	}

	return result.Created, nil
}

func (e *Engine) record(ctx context.Context, result *ApplyResult) {
	for _, a := range result.Created {
		if e.created != nil {
			e.created.Add(ctx, 1, metric.WithAttributes(
				attribute.String("pollutant", string(a.Pollutant)),
				attribute.String("level", string(a.Level)),
			))
		}
		e.logger.Info().
			Str("alert_id", a.ID).
			Str("pollutant", string(a.Pollutant)).
			Str("level", string(a.Level)).
			Float64("value", a.Value).
			Msg("alert raised")
	}
	if result.Resolved > 0 && e.resolved != nil {
		e.resolved.Add(ctx, int64(result.Resolved))
	}
}

// Active returns every active alert, newest first.
func (e *Engine) Active(ctx context.Context) ([]*Alert, error) {
	return e.repo.Active(ctx)
}

// History returns alerts created within the filter window, newest first.
func (e *Engine) History(ctx context.Context, filter HistoryFilter) ([]*Alert, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultHistoryLimit
	}
	return e.repo.History(ctx, filter)
}

// Statistics counts alerts by state, level and pollutant.
func (e *Engine) Statistics(ctx context.Context) (Statistics, error) {
	all, err := e.repo.All(ctx)
	if err != nil {
		return Statistics{}, err
	}

	stats := Statistics{
		ByLevel:     make(map[Level]int, len(Levels)),
		ByPollutant: make(map[airquality.Pollutant]int),
	}
	for _, l := range Levels {
		stats.ByLevel[l] = 0
	}

	since := e.now().Add(-24 * time.Hour)
	for _, a := range all {
		stats.Total++
		if a.Active {
			stats.Active++
		}
		stats.ByLevel[a.Level]++
		stats.ByPollutant[a.Pollutant]++
		if !a.CreatedAt.Before(since) {
			stats.Last24h++
		}
	}
	return stats, nil
}
