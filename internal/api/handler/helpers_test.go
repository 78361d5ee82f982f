package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/airwatch/airwatch/internal/airquality"
	"github.com/airwatch/airwatch/internal/alert"
	"github.com/airwatch/airwatch/internal/forecast"
	"github.com/airwatch/airwatch/internal/spatial"
)

type stubTrainer struct {
	metrics forecast.Metrics
	err     error
}

func (s *stubTrainer) Train(_ context.Context, _ forecast.TrainRequest) (forecast.Metrics, error) {
	return s.metrics, s.err
}

type fixture struct {
	measurements *airquality.InMemoryRepository
	predictions  *forecast.InMemoryRepository
	service      *airquality.Service
	engine       *alert.Engine
	forecasts    *forecast.Service
	aggregator   *spatial.Aggregator
}

func newFixture(t *testing.T, trainer forecast.Trainer) *fixture {
	t.Helper()
	logger := zerolog.Nop()

	measurements := airquality.NewInMemoryRepository()
	predictions := forecast.NewInMemoryRepository()
	engine := alert.NewEngine(alert.EngineConfig{
		Repository: alert.NewInMemoryRepository(),
		Logger:     logger,
	})

	cfg := forecast.ServiceConfig{
		Repository:   predictions,
		Observations: measurements,
		Logger:       logger,
	}
	if trainer != nil {
		cfg.Trainer = trainer
	}

	return &fixture{
		measurements: measurements,
		predictions:  predictions,
		service: airquality.NewService(airquality.ServiceConfig{
			Repository: measurements,
			Alerts:     engine,
			Logger:     logger,
		}),
		engine:     engine,
		forecasts:  forecast.NewService(cfg),
		aggregator: spatial.NewAggregator(spatial.AggregatorConfig{Source: measurements, Logger: logger}),
	}
}

// ingest stores a measurement taken at recordedAt near the industrial zone.
func (f *fixture) ingest(t *testing.T, so2, nh3, pm25 float64, recordedAt time.Time) *airquality.Measurement {
	t.Helper()
	lat, lon := 33.8869, 10.0982
	result, err := f.service.Ingest(context.Background(), airquality.Fields{
		SO2:        so2,
		NH3:        nh3,
		PM25:       pm25,
		Lat:        &lat,
		Lon:        &lon,
		RecordedAt: recordedAt,
		Source:     "sensor",
	})
	require.NoError(t, err)
	return result.Measurement
}

func newRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var reader io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
