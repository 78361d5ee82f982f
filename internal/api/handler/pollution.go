package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/airwatch/airwatch/internal/airquality"
	"github.com/airwatch/airwatch/internal/api/middleware"
	"github.com/airwatch/airwatch/internal/api/models"
	"github.com/airwatch/airwatch/internal/api/response"
	"github.com/airwatch/airwatch/internal/spatial"
)

// mapDataWindow is how far back the map data endpoint looks.
const mapDataWindow = time.Hour

// PollutionHandler handles measurement endpoints.
type PollutionHandler struct {
	service    *airquality.Service
	aggregator *spatial.Aggregator
	logger     zerolog.Logger
	now        func() time.Time
}

// NewPollutionHandler creates a new PollutionHandler.
func NewPollutionHandler(service *airquality.Service, aggregator *spatial.Aggregator, logger zerolog.Logger) *PollutionHandler {
	return &PollutionHandler{
		service:    service,
		aggregator: aggregator,
		logger:     logger,
		now:        time.Now,
	}
}

// Ingest handles POST /api/pollution/data - store a measurement.
func (h *PollutionHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var input models.MeasurementRequest
	if !decodeJSON(w, r, &input, false) {
		return
	}

	result, err := h.service.Ingest(r.Context(), input.Fields(h.now()))
	if err != nil {
		var verr *airquality.ValidationError
		switch {
		case errors.As(err, &verr):
			response.BadRequest(w, r, "invalid measurement", measurementFieldErrors(verr))
		case errors.Is(err, airquality.ErrInvalidMeasurement):
			response.BadRequest(w, r, err.Error(), nil)
		default:
			serverError(w, r, h.logger, err, "failed to store measurement")
		}
		return
	}

	resp := models.IngestResponse{
		Message:       "Data stored successfully",
		ID:            result.Measurement.ID,
		AQI:           models.NewAQIResponse(result.AQI),
		AlertsCreated: result.AlertsCreated,
	}
	if result.AlertsErr != nil {
		h.logger.Error().
			Err(result.AlertsErr).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("measurement_id", result.Measurement.ID).
			Msg("measurement stored without alert processing")
		resp.Message = "Data stored, alert processing failed"
		resp.AlertsError = "alert processing failed; the measurement is stored and must not be resubmitted"
	}
	response.Created(w, r, "", resp)
}

// Current handles GET /api/pollution/current - latest measurement with AQI.
func (h *PollutionHandler) Current(w http.ResponseWriter, r *http.Request) {
	m, result, err := h.service.CurrentAQI(r.Context())
	if err != nil {
		h.currentError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewCurrentResponse(m, result))
}

// AQI handles GET /api/pollution/aqi - AQI breakdown of the latest measurement.
func (h *PollutionHandler) AQI(w http.ResponseWriter, r *http.Request) {
	_, result, err := h.service.CurrentAQI(r.Context())
	if err != nil {
		h.currentError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewAQIResponse(result))
}

func (h *PollutionHandler) currentError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, airquality.ErrNoMeasurements) {
		response.NotFound(w, r, "No data available")
		return
	}
	serverError(w, r, h.logger, err, "failed to load current measurement")
}

// History handles GET /api/pollution/history - measurements over a period.
func (h *PollutionHandler) History(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(w, r, airquality.Period24h)
	if !ok {
		return
	}
	pollutant, err := queryPollutant(r, "pollutant")
	if err != nil {
		response.BadRequest(w, r, "pollutant must be one of SO2, NH3, PM2.5", nil)
		return
	}

	ms, err := h.service.History(r.Context(), period)
	if err != nil {
		serverError(w, r, h.logger, err, "failed to load history")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewHistoryResponse(period, pollutant, ms))
}

// MapData handles GET /api/pollution/map-data - located measurements of the last hour.
func (h *PollutionHandler) MapData(w http.ResponseWriter, r *http.Request) {
	ms, err := h.service.Located(r.Context(), mapDataWindow)
	if err != nil {
		serverError(w, r, h.logger, err, "failed to load map data")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewMapDataResponse(ms))
}

// Heatmap handles GET /api/pollution/heatmap - weighted points for a metric.
func (h *PollutionHandler) Heatmap(w http.ResponseWriter, r *http.Request) {
	metric, ok := parseMetric(w, r, spatial.Metric(airquality.PollutantSO2))
	if !ok {
		return
	}
	timeframe := spatial.Timeframe(r.URL.Query().Get("timeframe"))
	if _, err := timeframe.Since(h.now()); err != nil {
		response.BadRequest(w, r, "timeframe must be one of current, last_24h, all", nil)
		return
	}

	heatmap, err := h.aggregator.Heatmap(r.Context(), h.now(), metric, timeframe)
	if err != nil {
		serverError(w, r, h.logger, err, "failed to build heatmap")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewHeatmapResponse(heatmap))
}

// Grid handles GET /api/pollution/grid - measurements averaged into cells.
func (h *PollutionHandler) Grid(w http.ResponseWriter, r *http.Request) {
	metric, ok := parseMetric(w, r, spatial.MetricAQI)
	if !ok {
		return
	}

	var cellSize float64
	if raw := r.URL.Query().Get("grid_size"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || !(v > 0 && v <= 1) {
			response.BadRequest(w, r, "grid_size must be a number in (0, 1]", nil)
			return
		}
		cellSize = v
	}

	grid, err := h.aggregator.Grid(r.Context(), h.now(), metric, cellSize)
	if err != nil {
		serverError(w, r, h.logger, err, "failed to build grid")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewGridResponse(grid))
}

// Zones handles GET /api/pollution/zones - risk per configured zone.
func (h *PollutionHandler) Zones(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	risks, err := h.aggregator.ZoneRisks(r.Context(), now)
	if err != nil {
		serverError(w, r, h.logger, err, "failed to compute zone risks")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewZonesResponse(risks, now))
}

// Stats handles GET /api/pollution/stats - summary statistics over a period.
func (h *PollutionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(w, r, airquality.Period30d)
	if !ok {
		return
	}
	stats, err := h.service.Stats(r.Context(), period)
	if err != nil {
		serverError(w, r, h.logger, err, "failed to compute stats")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewStatsResponse(period, stats))
}

func parsePeriod(w http.ResponseWriter, r *http.Request, def airquality.Period) (airquality.Period, bool) {
	switch p := airquality.Period(r.URL.Query().Get("period")); p {
	case "":
		return def, true
	case airquality.Period24h, airquality.Period7d, airquality.Period30d:
		return p, true
	default:
		response.BadRequest(w, r, "period must be one of 24h, 7d, 30d", nil)
		return "", false
	}
}

func parseMetric(w http.ResponseWriter, r *http.Request, def spatial.Metric) (spatial.Metric, bool) {
	raw := r.URL.Query().Get("pollutant")
	if raw == "" {
		return def, true
	}
	m, err := spatial.ParseMetric(raw)
	if err != nil {
		response.BadRequest(w, r, "pollutant must be one of AQI, SO2, NH3, PM2.5", nil)
		return "", false
	}
	return m, true
}
