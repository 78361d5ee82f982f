package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airwatch/airwatch/internal/airquality"
	"github.com/airwatch/airwatch/internal/alert"
	"github.com/airwatch/airwatch/internal/api/handler"
	"github.com/airwatch/airwatch/internal/api/models"
	"github.com/airwatch/airwatch/internal/spatial"
)

func newPollutionHandler(f *fixture) *handler.PollutionHandler {
	return handler.NewPollutionHandler(f.service, f.aggregator, zerolog.Nop())
}

func TestPollutionHandler_Ingest(t *testing.T) {
	f := newFixture(t, nil)
	h := newPollutionHandler(f)

	body := map[string]any{"so2": 25, "nh3": 0, "pm25": 0, "latitude": 33.8869, "longitude": 10.0982}
	rec := serve(h.Ingest, newRequest(t, http.MethodPost, "/api/pollution/data", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[models.IngestResponse](t, rec)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, 59.0, resp.AQI.Overall)
	assert.Equal(t, "Moderate", resp.AQI.Level)
	assert.Equal(t, "SO2", resp.AQI.Dominant)
	assert.Equal(t, 1, resp.AlertsCreated)
}

// failingAlerts fails every alert pass.
type failingAlerts struct {
	calls int
}

func (f *failingAlerts) ProcessMeasurement(context.Context, *airquality.Measurement) (int, error) {
	f.calls++
	return 0, alert.ErrLockTimeout
}

func TestPollutionHandler_Ingest_AlertFailure(t *testing.T) {
	repo := airquality.NewInMemoryRepository()
	alerts := &failingAlerts{}
	service := airquality.NewService(airquality.ServiceConfig{
		Repository: repo,
		Alerts:     alerts,
		Logger:     zerolog.Nop(),
	})
	h := handler.NewPollutionHandler(service, spatial.NewAggregator(spatial.AggregatorConfig{Source: repo}), zerolog.Nop())

	body := map[string]any{"so2": 120, "nh3": 0, "pm25": 0}
	rec := serve(h.Ingest, newRequest(t, http.MethodPost, "/api/pollution/data", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[models.IngestResponse](t, rec)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, 0, resp.AlertsCreated)
	assert.NotEmpty(t, resp.AlertsError)
	assert.NotContains(t, resp.Message, "successfully")
	assert.Equal(t, 1, alerts.calls)

	stored, err := repo.Since(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, resp.ID, stored[0].ID)
}

func TestPollutionHandler_Ingest_NoAlertsErrorOnSuccess(t *testing.T) {
	f := newFixture(t, nil)
	h := newPollutionHandler(f)

	rec := serve(h.Ingest, newRequest(t, http.MethodPost, "/api/pollution/data", map[string]any{"so2": 5, "nh3": 0, "pm25": 0}))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "alerts_error")
}

func TestPollutionHandler_Ingest_Validation(t *testing.T) {
	f := newFixture(t, nil)
	h := newPollutionHandler(f)

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"missing so2", map[string]any{"nh3": 1, "pm25": 1}, "so2"},
		{"humidity out of range", map[string]any{"so2": 1, "nh3": 1, "pm25": 1, "humidity": 120}, "humidity"},
		{"latitude without longitude", map[string]any{"so2": 1, "nh3": 1, "pm25": 1, "latitude": 33.9}, "location"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h.Ingest, newRequest(t, http.MethodPost, "/api/pollution/data", tt.body))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			problem := decode[models.Problem](t, rec)
			require.NotEmpty(t, problem.Errors)
			assert.Equal(t, tt.field, problem.Errors[0].Field)
		})
	}
}

func TestPollutionHandler_Ingest_InvalidJSON(t *testing.T) {
	f := newFixture(t, nil)
	h := newPollutionHandler(f)

	rec := serve(h.Ingest, newRequest(t, http.MethodPost, "/api/pollution/data", "{not json"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestPollutionHandler_Current_NoData(t *testing.T) {
	f := newFixture(t, nil)
	h := newPollutionHandler(f)

	for _, fn := range []http.HandlerFunc{h.Current, h.AQI} {
		rec := serve(fn, newRequest(t, http.MethodGet, "/api/pollution/current", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
}

func TestPollutionHandler_Current(t *testing.T) {
	f := newFixture(t, nil)
	h := newPollutionHandler(f)
	m := f.ingest(t, 25, 0, 0, time.Now())

	rec := serve(h.Current, newRequest(t, http.MethodGet, "/api/pollution/current", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[models.CurrentResponse](t, rec)
	assert.Equal(t, m.ID, resp.ID)
	assert.Equal(t, 25.0, resp.Pollutants.SO2)
	assert.Equal(t, 59.0, resp.AQI.Overall)
	require.NotNil(t, resp.Location.Latitude)
	assert.InDelta(t, 33.8869, *resp.Location.Latitude, 1e-9)
}

func TestPollutionHandler_AQI(t *testing.T) {
	f := newFixture(t, nil)
	h := newPollutionHandler(f)
	f.ingest(t, 25, 0, 0, time.Now())

	rec := serve(h.AQI, newRequest(t, http.MethodGet, "/api/pollution/aqi", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[models.AQIResponse](t, rec)
	assert.Equal(t, 59.0, resp.Overall)
	assert.Equal(t, "yellow", resp.Category)
	assert.NotEmpty(t, resp.Recommendations.General)
}

func TestPollutionHandler_History(t *testing.T) {
	f := newFixture(t, nil)
	h := newPollutionHandler(f)
	now := time.Now()
	f.ingest(t, 10, 20, 30, now.Add(-2*time.Hour))
	f.ingest(t, 11, 21, 31, now.Add(-48*time.Hour))

	t.Run("default period keeps every value", func(t *testing.T) {
		rec := serve(h.History, newRequest(t, http.MethodGet, "/api/pollution/history", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[models.HistoryResponse](t, rec)
		assert.Equal(t, "24h", resp.Period)
		assert.Equal(t, "all", resp.Pollutant)
		require.Equal(t, 1, resp.Count)
		require.NotNil(t, resp.Data[0].SO2)
		assert.Equal(t, 10.0, *resp.Data[0].SO2)
		assert.NotNil(t, resp.Data[0].AQI)
	})

	t.Run("single pollutant over 7d", func(t *testing.T) {
		rec := serve(h.History, newRequest(t, http.MethodGet, "/api/pollution/history?period=7d&pollutant=PM2.5", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[models.HistoryResponse](t, rec)
		assert.Equal(t, "PM2.5", resp.Pollutant)
		require.Equal(t, 2, resp.Count)
		for _, pt := range resp.Data {
			require.NotNil(t, pt.Value)
			assert.Nil(t, pt.SO2)
		}
	})

	t.Run("invalid period", func(t *testing.T) {
		rec := serve(h.History, newRequest(t, http.MethodGet, "/api/pollution/history?period=1y", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid pollutant", func(t *testing.T) {
		rec := serve(h.History, newRequest(t, http.MethodGet, "/api/pollution/history?pollutant=CO", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPollutionHandler_MapData(t *testing.T) {
	f := newFixture(t, nil)
	h := newPollutionHandler(f)
	f.ingest(t, 10, 20, 30, time.Now().Add(-10*time.Minute))
	f.ingest(t, 10, 20, 30, time.Now().Add(-3*time.Hour))

	rec := serve(h.MapData, newRequest(t, http.MethodGet, "/api/pollution/map-data", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[models.MapDataResponse](t, rec)
	require.Equal(t, 1, resp.Count)
	assert.InDelta(t, 10.0982, resp.Points[0].Lng, 1e-9)
}

func TestPollutionHandler_Heatmap(t *testing.T) {
	f := newFixture(t, nil)
	h := newPollutionHandler(f)
	f.ingest(t, 40, 20, 30, time.Now().Add(-10*time.Minute))

	t.Run("defaults to SO2 current", func(t *testing.T) {
		rec := serve(h.Heatmap, newRequest(t, http.MethodGet, "/api/pollution/heatmap", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[models.HeatmapResponse](t, rec)
		assert.Equal(t, "SO2", resp.Pollutant)
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, 40.0, resp.Points[0].Value)
		assert.Equal(t, 40.0, resp.Max)
	})

	t.Run("unknown timeframe", func(t *testing.T) {
		rec := serve(h.Heatmap, newRequest(t, http.MethodGet, "/api/pollution/heatmap?timeframe=last_week", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown metric", func(t *testing.T) {
		rec := serve(h.Heatmap, newRequest(t, http.MethodGet, "/api/pollution/heatmap?pollutant=O3", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPollutionHandler_Grid(t *testing.T) {
	f := newFixture(t, nil)
	h := newPollutionHandler(f)
	f.ingest(t, 25, 0, 0, time.Now().Add(-5*time.Minute))

	t.Run("defaults to AQI", func(t *testing.T) {
		rec := serve(h.Grid, newRequest(t, http.MethodGet, "/api/pollution/grid", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[models.GridResponse](t, rec)
		assert.Equal(t, "AQI", resp.Pollutant)
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, 59.0, resp.Cells[0].Value)
	})

	tests := []string{"0", "-0.1", "2", "abc", "NaN"}
	for _, size := range tests {
		t.Run("invalid grid_size "+size, func(t *testing.T) {
			rec := serve(h.Grid, newRequest(t, http.MethodGet, "/api/pollution/grid?grid_size="+size, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestPollutionHandler_Zones(t *testing.T) {
	f := newFixture(t, nil)
	h := newPollutionHandler(f)
	f.ingest(t, 25, 0, 0, time.Now().Add(-5*time.Minute))

	rec := serve(h.Zones, newRequest(t, http.MethodGet, "/api/pollution/zones", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[models.ZonesResponse](t, rec)
	require.Len(t, resp.Zones, 4)

	byName := make(map[string]models.ZoneResponse)
	for _, z := range resp.Zones {
		byName[z.Zone] = z
	}
	require.NotNil(t, byName["industrial"].AQI)
	assert.Equal(t, "moderate", byName["industrial"].Risk)
	assert.Nil(t, byName["coastal"].AQI)
	assert.Equal(t, "unknown", byName["coastal"].Risk)
}

func TestPollutionHandler_Stats(t *testing.T) {
	f := newFixture(t, nil)
	h := newPollutionHandler(f)
	now := time.Now()
	f.ingest(t, 10, 20, 30, now.Add(-time.Hour))
	f.ingest(t, 30, 40, 50, now.Add(-10*24*time.Hour))

	rec := serve(h.Stats, newRequest(t, http.MethodGet, "/api/pollution/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[models.StatsResponse](t, rec)
	assert.Equal(t, "30d", resp.Period)
	assert.Equal(t, 2, resp.TotalRecords)
	assert.Equal(t, 30.0, resp.Maximums.SO2)

	rec = serve(h.Stats, newRequest(t, http.MethodGet, "/api/pollution/stats?period=7d", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[models.StatsResponse](t, rec)
	assert.Equal(t, 1, resp.TotalRecords)
	assert.Equal(t, 10.0, resp.Averages.SO2)
}
