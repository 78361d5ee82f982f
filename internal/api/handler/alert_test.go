package handler_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airwatch/airwatch/internal/api/handler"
	"github.com/airwatch/airwatch/internal/api/models"
)

func newAlertHandler(f *fixture) *handler.AlertHandler {
	return handler.NewAlertHandler(f.engine, zerolog.Nop())
}

func TestAlertHandler_Simulate(t *testing.T) {
	f := newFixture(t, nil)
	h := newAlertHandler(f)

	body := map[string]any{"pollutant": "SO2", "value": 25}
	rec := serve(h.Simulate, newRequest(t, http.MethodPost, "/api/alerts/simulate", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[models.SimulateAlertResponse](t, rec)
	assert.Equal(t, "SO2", resp.Alert.Pollutant)
	assert.Equal(t, "yellow", resp.Alert.Level)
	assert.True(t, resp.Alert.IsActive)
	assert.NotEmpty(t, resp.Alert.Message)
}

func TestAlertHandler_Simulate_BelowThreshold(t *testing.T) {
	f := newFixture(t, nil)
	h := newAlertHandler(f)

	body := map[string]any{"pollutant": "SO2", "value": 19.9}
	rec := serve(h.Simulate, newRequest(t, http.MethodPost, "/api/alerts/simulate", body))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decode[models.Problem](t, rec)
	assert.Equal(t, models.ProblemTypeSimulation, problem.Type)
	assert.Contains(t, problem.Detail, "Simulation failed")
}

func TestAlertHandler_Simulate_InvalidInput(t *testing.T) {
	f := newFixture(t, nil)
	h := newAlertHandler(f)

	tests := []struct {
		name string
		body any
	}{
		{"unknown pollutant", map[string]any{"pollutant": "CO", "value": 25}},
		{"missing value", map[string]any{"pollutant": "SO2"}},
		{"negative value", map[string]any{"pollutant": "SO2", "value": -1}},
		{"missing pollutant", map[string]any{"value": 25}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h.Simulate, newRequest(t, http.MethodPost, "/api/alerts/simulate", tt.body))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			problem := decode[models.Problem](t, rec)
			assert.Equal(t, models.ProblemTypeValidation, problem.Type)
		})
	}
}

func TestAlertHandler_ActiveAndStats(t *testing.T) {
	f := newFixture(t, nil)
	h := newAlertHandler(f)

	for _, body := range []map[string]any{
		{"pollutant": "SO2", "value": 25},
		{"pollutant": "NH3", "value": 70},
		{"pollutant": "SO2", "value": 120},
	} {
		rec := serve(h.Simulate, newRequest(t, http.MethodPost, "/api/alerts/simulate", body))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := serve(h.Active, newRequest(t, http.MethodGet, "/api/alerts/active", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	active := decode[models.ActiveAlertsResponse](t, rec)
	assert.Equal(t, 2, active.Count)

	levels := make(map[string]string)
	for _, a := range active.ActiveAlerts {
		levels[a.Pollutant] = a.Level
	}
	assert.Equal(t, map[string]string{"SO2": "red", "NH3": "orange"}, levels)

	rec = serve(h.Stats, newRequest(t, http.MethodGet, "/api/alerts/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[models.AlertStatsResponse](t, rec)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 3, stats.Last24h)
	assert.Equal(t, 2, stats.ByPollutant["SO2"])
	assert.Equal(t, 1, stats.ByLevel["orange"])
}

func TestAlertHandler_History(t *testing.T) {
	f := newFixture(t, nil)
	h := newAlertHandler(f)

	for _, v := range []float64{25, 60, 120} {
		body := map[string]any{"pollutant": "SO2", "value": v}
		rec := serve(h.Simulate, newRequest(t, http.MethodPost, "/api/alerts/simulate", body))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	today := time.Now().UTC().Format(time.DateOnly)
	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format(time.DateOnly)

	t.Run("default limit", func(t *testing.T) {
		rec := serve(h.History, newRequest(t, http.MethodGet, "/api/alerts/history", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[models.AlertHistoryResponse](t, rec)
		assert.Equal(t, 3, resp.Count)
		assert.Equal(t, 50, resp.Filters.Limit)
		assert.Nil(t, resp.Filters.StartDate)
	})

	t.Run("end date covers the whole day", func(t *testing.T) {
		rec := serve(h.History, newRequest(t, http.MethodGet, "/api/alerts/history?start_date="+today+"&end_date="+today, nil))

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[models.AlertHistoryResponse](t, rec)
		assert.Equal(t, 3, resp.Count)
		require.NotNil(t, resp.Filters.StartDate)
		assert.Equal(t, today, *resp.Filters.StartDate)
		require.NotNil(t, resp.Filters.EndDate)
		assert.Equal(t, today, *resp.Filters.EndDate)
	})

	t.Run("future start date", func(t *testing.T) {
		rec := serve(h.History, newRequest(t, http.MethodGet, "/api/alerts/history?start_date="+tomorrow, nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 0, decode[models.AlertHistoryResponse](t, rec).Count)
	})

	t.Run("limit", func(t *testing.T) {
		rec := serve(h.History, newRequest(t, http.MethodGet, "/api/alerts/history?limit=2", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, decode[models.AlertHistoryResponse](t, rec).Count)
	})

	bad := []string{
		"?start_date=yesterday",
		"?end_date=2026-13-01",
		"?start_date=" + tomorrow + "&end_date=" + today,
		"?limit=0",
		"?limit=many",
	}
	for _, q := range bad {
		t.Run("rejects "+q, func(t *testing.T) {
			rec := serve(h.History, newRequest(t, http.MethodGet, "/api/alerts/history"+q, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
