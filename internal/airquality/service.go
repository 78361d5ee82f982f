package airquality

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Period is a named history window.
type Period string

const (
	Period24h Period = "24h"
	Period7d  Period = "7d"
	Period30d Period = "30d"
)

// Duration returns the window length. Unknown periods fall back to 24h.
func (p Period) Duration() time.Duration {
	switch p {
	case Period7d:
		return 7 * 24 * time.Hour
	case Period30d:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// AlertProcessor reacts to a freshly stored measurement and reports how many
// alerts it created.
type AlertProcessor interface {
	ProcessMeasurement(ctx context.Context, m *Measurement) (int, error)
}

// ServiceConfig holds configuration for the air quality service.
type ServiceConfig struct {
	// Repository stores measurements.
	Repository Repository

	// Calculator scores measurements (default: NewCalculator(nil)).
	Calculator *Calculator

	// Alerts is called after every stored measurement. Optional.
	Alerts AlertProcessor

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long to cache the latest measurement (default: 30 seconds).
	CacheTTL time.Duration

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Service ingests, scores and queries measurements.
type Service struct {
	repo       Repository
	calculator *Calculator
	alerts     AlertProcessor
	logger     zerolog.Logger
	cacheTTL   time.Duration
	now        func() time.Time

	mu          sync.RWMutex
	latest      *Measurement
	cacheExpiry time.Time
}

// NewService creates a new air quality service.
func NewService(cfg ServiceConfig) *Service {
	calculator := cfg.Calculator
	if calculator == nil {
		calculator = NewCalculator(nil)
	}

	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		repo:       cfg.Repository,
		calculator: calculator,
		alerts:     cfg.Alerts,
		logger:     cfg.Logger,
		cacheTTL:   cacheTTL,
		now:        now,
	}
}

// Calculator returns the calculator used for scoring.
func (s *Service) Calculator() *Calculator {
	return s.calculator
}

// IngestResult is the outcome of storing one measurement.
type IngestResult struct {
	Measurement   *Measurement
	AQI           Result
	AlertsCreated int

	// AlertsErr is set when the measurement was stored but alert processing
	// failed. The measurement must not be submitted again.
	AlertsErr error
}

// Ingest validates, scores and stores a measurement, then runs alert
// processing on it. Once the measurement is stored Ingest no longer fails;
// an alert processing failure is reported in IngestResult.AlertsErr.
func (s *Service) Ingest(ctx context.Context, f Fields) (*IngestResult, error) {
	m, err := NewMeasurement(f)
	if err != nil {
		return nil, err
	}

	result, err := s.calculator.CalculateMeasurement(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMeasurement, err)
	}
	aqi := result.Overall
	m.AQI = &aqi

	if err := s.repo.Insert(ctx, m); err != nil {
		return nil, err
	}
	s.InvalidateCache()

	out := &IngestResult{Measurement: m, AQI: result}

	if s.alerts != nil {
		created, err := s.alerts.ProcessMeasurement(ctx, m)
		if err != nil {
			s.logger.Error().Err(err).Str("measurement_id", m.ID).Msg("alert processing failed")
			out.AlertsErr = fmt.Errorf("process alerts: %w", err)
			return out, nil
		}
		out.AlertsCreated = created
	}

	s.logger.Info().
		Str("measurement_id", m.ID).
		Float64("aqi", aqi).
		Str("dominant", string(result.Dominant)).
		Int("alerts_created", out.AlertsCreated).
		Msg("measurement ingested")

	return out, nil
}

// Current returns the latest measurement. It uses a cached copy if one is
// available and not expired.
func (s *Service) Current(ctx context.Context) (*Measurement, error) {
	s.mu.RLock()
	if s.latest != nil && s.now().Before(s.cacheExpiry) {
		m := s.latest
		s.mu.RUnlock()
		return m, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check: another goroutine might have refreshed while we waited
	if s.latest != nil && s.now().Before(s.cacheExpiry) {
		return s.latest, nil
	}

	m, err := s.repo.Latest(ctx)
	if err != nil {
		return nil, err
	}
	s.latest = m
	s.cacheExpiry = s.now().Add(s.cacheTTL)
	return m, nil
}

// CurrentAQI scores the latest measurement.
func (s *Service) CurrentAQI(ctx context.Context) (*Measurement, Result, error) {
	m, err := s.Current(ctx)
	if err != nil {
		return nil, Result{}, err
	}
	result, err := s.calculator.CalculateMeasurement(m)
	if err != nil {
		return nil, Result{}, err
	}
	return m, result, nil
}

// InvalidateCache clears the cached latest measurement.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = nil
	s.cacheExpiry = time.Time{}
}

// History returns the measurements recorded within the period.
func (s *Service) History(ctx context.Context, period Period) ([]*Measurement, error) {
	return s.repo.Since(ctx, s.now().Add(-period.Duration()))
}

// Located returns measurements with a coordinate recorded within window.
func (s *Service) Located(ctx context.Context, window time.Duration) ([]*Measurement, error) {
	all, err := s.repo.Since(ctx, s.now().Add(-window))
	if err != nil {
		return nil, err
	}
	out := make([]*Measurement, 0, len(all))
	for _, m := range all {
		if m.HasLocation() {
			out = append(out, m)
		}
	}
	return out, nil
}

// Stats summarizes the measurements recorded within the period.
func (s *Service) Stats(ctx context.Context, period Period) (Stats, error) {
	measurements, err := s.History(ctx, period)
	if err != nil {
		return Stats{}, err
	}
	return Summarize(measurements), nil
}

// Summarize computes averages and maxima rounded to two decimals.
func Summarize(measurements []*Measurement) Stats {
	var (
		st       Stats
		aqiCount int
	)
	for _, m := range measurements {
		st.Count++
		st.AvgSO2 += m.SO2
		st.AvgNH3 += m.NH3
		st.AvgPM25 += m.PM25
		st.MaxSO2 = math.Max(st.MaxSO2, m.SO2)
		st.MaxNH3 = math.Max(st.MaxNH3, m.NH3)
		st.MaxPM25 = math.Max(st.MaxPM25, m.PM25)
		if m.AQI != nil {
			aqiCount++
			st.AvgAQI += *m.AQI
			st.MaxAQI = math.Max(st.MaxAQI, *m.AQI)
		}
	}
	if st.Count == 0 {
		return st
	}

	n := float64(st.Count)
	st.AvgSO2 = round2(st.AvgSO2 / n)
	st.AvgNH3 = round2(st.AvgNH3 / n)
	st.AvgPM25 = round2(st.AvgPM25 / n)
	if aqiCount > 0 {
		st.AvgAQI = round2(st.AvgAQI / float64(aqiCount))
	}
	return st
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
