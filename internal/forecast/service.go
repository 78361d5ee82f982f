package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/airwatch/airwatch/internal/airquality"
)

const meterName = "github.com/airwatch/airwatch/internal/forecast"

// DefaultModelVersion labels predictions when the caller names no version.
const DefaultModelVersion = "v1.0"

// Features are the model inputs derived from one measurement.
type Features struct {
	SO2           float64  `json:"so2"`
	NH3           float64  `json:"nh3"`
	PM25          float64  `json:"pm25"`
	Temperature   *float64 `json:"temperature"`
	Humidity      *float64 `json:"humidity"`
	WindSpeed     *float64 `json:"wind_speed"`
	WindDirection *float64 `json:"wind_direction"`
	Pressure      *float64 `json:"pressure"`
	Hour          int      `json:"hour"`
	DayOfWeek     int      `json:"day_of_week"`
	Month         int      `json:"month"`
}

// FeaturesFrom builds model inputs from m. DayOfWeek runs 1 (Monday) to 7.
func FeaturesFrom(m *airquality.Measurement) Features {
	dow := int(m.RecordedAt.Weekday())
	if dow == 0 {
		dow = 7
	}
	return Features{
		SO2:           m.SO2,
		NH3:           m.NH3,
		PM25:          m.PM25,
		Temperature:   m.Temperature,
		Humidity:      m.Humidity,
		WindSpeed:     m.WindSpeed,
		WindDirection: m.WindDirection,
		Pressure:      m.Pressure,
		Hour:          m.RecordedAt.Hour(),
		DayOfWeek:     dow,
		Month:         int(m.RecordedAt.Month()),
	}
}

// Predictor is the external forecasting model.
type Predictor interface {
	Predict(ctx context.Context, pollutant airquality.Pollutant, hoursAhead int, features Features) (float64, error)
}

// TrainRequest asks the external model to retrain.
type TrainRequest struct {
	ModelType       string
	Hyperparameters map[string]any
}

// Trainer retrains the external forecasting model.
type Trainer interface {
	Train(ctx context.Context, req TrainRequest) (Metrics, error)
}

// Latest returns the most recent measurement.
type Latest interface {
	Latest(ctx context.Context) (*airquality.Measurement, error)
}

// Observations is the measurement store used for fallback and matching.
type Observations interface {
	Latest
	ObservationLookup
}

// ServiceConfig holds configuration for the forecast service.
type ServiceConfig struct {
	// Repository stores predictions and model metrics.
	Repository Repository

	// Observations provides measurements.
	Observations Observations

	// Predictor is the external model. When nil every prediction falls back.
	Predictor Predictor

	// Trainer retrains the external model. Optional.
	Trainer Trainer

	// Logger for service operations.
	Logger zerolog.Logger

	// PredictTimeout bounds each predictor call (default: 10 seconds).
	PredictTimeout time.Duration

	// Concurrency caps parallel predictor calls (default: 4).
	Concurrency int

	// Tolerance for matching actual values (default: DefaultTolerance).
	Tolerance time.Duration

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Service generates and evaluates predictions.
type Service struct {
	repo           Repository
	observations   Observations
	predictor      Predictor
	trainer        Trainer
	logger         zerolog.Logger
	predictTimeout time.Duration
	concurrency    int
	tolerance      time.Duration
	now            func() time.Time

	generated metric.Int64Counter
	matched   metric.Int64Counter
}

// ErrTrainerUnavailable is returned by Train when no trainer is configured.
var ErrTrainerUnavailable = errors.New("model training is not configured")

// NewService creates a new forecast service.
func NewService(cfg ServiceConfig) *Service {
	predictTimeout := cfg.PredictTimeout
	if predictTimeout == 0 {
		predictTimeout = 10 * time.Second
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Service{
		repo:           cfg.Repository,
		observations:   cfg.Observations,
		predictor:      cfg.Predictor,
		trainer:        cfg.Trainer,
		logger:         cfg.Logger,
		predictTimeout: predictTimeout,
		concurrency:    concurrency,
		tolerance:      tolerance,
		now:            now,
	}

	meter := otel.Meter(meterName)
	var err error
	if s.generated, err = meter.Int64Counter("predictions.generated",
		metric.WithDescription("Predictions generated by source"),
		metric.WithUnit("{prediction}"),
	); err != nil {
		s.logger.Warn().Err(err).Msg("predictions.generated counter unavailable")
	}
	if s.matched, err = meter.Int64Counter("predictions.matched",
		metric.WithDescription("Predictions resolved with an actual value"),
		metric.WithUnit("{prediction}"),
	); err != nil {
		s.logger.Warn().Err(err).Msg("predictions.matched counter unavailable")
	}

	return s
}

// Generate creates one prediction per pollutant for each lead time 1..hours
// from the latest measurement. Any predictor failure falls back to the
// latest observed value; only a missing measurement fails the batch.
func (s *Service) Generate(ctx context.Context, hours int, modelVersion string) ([]*Prediction, error) {
	if hours < 1 || hours > 72 {
		return nil, ErrInvalidHorizon
	}
	if modelVersion == "" {
		modelVersion = DefaultModelVersion
	}

	latest, err := s.observations.Latest(ctx)
	if err != nil {
		return nil, err
	}

	features := FeaturesFrom(latest)
	createdAt := s.now().UTC()

	predictions := make([]*Prediction, 0, len(airquality.Pollutants)*hours)
	for _, p := range airquality.Pollutants {
		for h := 1; h <= hours; h++ {
			predictions = append(predictions, &Prediction{
				ID:           uuid.NewString(),
				Pollutant:    p,
				HoursAhead:   h,
				CreatedAt:    createdAt,
				TargetAt:     createdAt.Add(time.Duration(h) * time.Hour),
				ModelVersion: modelVersion,
			})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, pred := range predictions {
		g.Go(func() error {
			pred.PredictedValue, pred.Source = s.predict(gctx, pred, features, latest)
			return nil
		})
	}
	_ = g.Wait()

	if err := s.repo.InsertBatch(ctx, predictions); err != nil {
		return nil, fmt.Errorf("store predictions: %w", err)
	}

	fallbacks := 0
	for _, p := range predictions {
		if p.Source == SourceFallback {
			fallbacks++
		}
	}
	if s.generated != nil {
		s.generated.Add(ctx, int64(len(predictions)-fallbacks), metric.WithAttributes(attribute.String("source", string(SourceModel))))
		s.generated.Add(ctx, int64(fallbacks), metric.WithAttributes(attribute.String("source", string(SourceFallback))))
	}
	s.logger.Info().
		Int("predictions", len(predictions)).
		Int("fallbacks", fallbacks).
		Str("model_version", modelVersion).
		Msg("predictions generated")

	return predictions, nil
}

func (s *Service) predict(ctx context.Context, pred *Prediction, features Features, latest *airquality.Measurement) (float64, Source) {
	fallback := latest.Concentration(pred.Pollutant)
	if s.predictor == nil {
		return fallback, SourceFallback
	}

	callCtx, cancel := context.WithTimeout(ctx, s.predictTimeout)
	defer cancel()

	value, err := s.predictor.Predict(callCtx, pred.Pollutant, pred.HoursAhead, features)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("pollutant", string(pred.Pollutant)).
			Int("hours_ahead", pred.HoursAhead).
			Msg("model unavailable, using persistence fallback")
		return fallback, SourceFallback
	}
	return value, SourceModel
}

// Upcoming returns the newest prediction per pollutant and lead time whose
// target falls within the next hours.
func (s *Service) Upcoming(ctx context.Context, hours int) ([]*Prediction, error) {
	if hours <= 0 {
		hours = 6
	}
	now := s.now().UTC()
	return s.repo.Upcoming(ctx, now, now.Add(time.Duration(hours)*time.Hour))
}

// MatchActuals resolves due predictions against stored measurements and
// returns how many were updated.
func (s *Service) MatchActuals(ctx context.Context) (int, error) {
	now := s.now().UTC()

	pending, err := s.repo.UnresolvedBefore(ctx, now)
	if err != nil {
		return 0, err
	}

	resolutions, err := MatchActuals(ctx, now, pending, s.observations, s.tolerance)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, r := range resolutions {
		err := s.repo.SetActual(ctx, r.PredictionID, r.Actual)
		if errors.Is(err, ErrActualAlreadySet) {
			continue
		}
		if err != nil {
			return updated, err
		}
		updated++
	}
	if s.matched != nil && updated > 0 {
		s.matched.Add(ctx, int64(updated))
	}

	s.logger.Info().
		Int("pending", len(pending)).
		Int("updated", updated).
		Msg("prediction actuals matched")

	return updated, nil
}

// Accuracy evaluates resolved predictions matching f.
func (s *Service) Accuracy(ctx context.Context, f Filter) (Report, error) {
	f.Limit = 0
	resolved, err := s.repo.Resolved(ctx, f)
	if err != nil {
		return Report{}, err
	}

	pairs := make([]Pair, 0, len(resolved))
	for _, p := range resolved {
		pairs = append(pairs, Pair{Predicted: p.PredictedValue, Actual: *p.ActualValue})
	}

	m, err := Evaluate(pairs)
	if err != nil {
		return Report{Filter: f}, err
	}
	return NewReport(m, f), nil
}

// AccuracyByPollutant evaluates each pollutant separately. Pollutants without
// resolved predictions are omitted.
func (s *Service) AccuracyByPollutant(ctx context.Context) (map[airquality.Pollutant]Report, error) {
	out := make(map[airquality.Pollutant]Report, len(airquality.Pollutants))
	for _, p := range airquality.Pollutants {
		report, err := s.Accuracy(ctx, Filter{Pollutant: p})
		if errors.Is(err, ErrInsufficientData) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[p] = report
	}
	return out, nil
}

// Comparison returns resolved predictions for a pollutant, latest first.
func (s *Service) Comparison(ctx context.Context, pollutant airquality.Pollutant, limit int) ([]ComparisonRow, error) {
	if limit <= 0 {
		limit = 100
	}
	resolved, err := s.repo.Resolved(ctx, Filter{Pollutant: pollutant, Limit: limit})
	if err != nil {
		return nil, err
	}

	rows := make([]ComparisonRow, 0, len(resolved))
	for _, p := range resolved {
		diff := p.PredictedValue - *p.ActualValue
		if diff < 0 {
			diff = -diff
		}
		rows = append(rows, ComparisonRow{
			TargetAt:   p.TargetAt,
			Predicted:  p.PredictedValue,
			Actual:     *p.ActualValue,
			AbsError:   diff,
			HoursAhead: p.HoursAhead,
		})
	}
	return rows, nil
}

// Train asks the external model to retrain and stores the reported metrics.
func (s *Service) Train(ctx context.Context, req TrainRequest) (*ModelMetric, error) {
	if s.trainer == nil {
		return nil, ErrTrainerUnavailable
	}
	if req.ModelType == "" {
		req.ModelType = "XGBoost"
	}

	m, err := s.trainer.Train(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("train %s: %w", req.ModelType, err)
	}

	metric := &ModelMetric{
		ID:        uuid.NewString(),
		ModelName: req.ModelType,
		ModelType: req.ModelType,
		RMSE:      m.RMSE,
		MAE:       m.MAE,
		R2:        m.R2,
		TrainedAt: s.now().UTC(),
	}
	if err := s.repo.InsertModelMetric(ctx, metric); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("model_type", req.ModelType).
		Float64("rmse", m.RMSE).
		Float64("mae", m.MAE).
		Float64("r2", m.R2).
		Msg("model trained")

	return metric, nil
}

// ModelMetrics returns the latest training runs.
func (s *Service) ModelMetrics(ctx context.Context, limit int) ([]*ModelMetric, error) {
	return s.repo.ModelMetrics(ctx, limit)
}
