package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/airwatch/airwatch/internal/airquality"
	"github.com/airwatch/airwatch/internal/alert"
	"github.com/airwatch/airwatch/internal/api/models"
	"github.com/airwatch/airwatch/internal/api/response"
)

// maxHistoryLimit caps the alert history page size.
const maxHistoryLimit = 500

// AlertHandler handles alert endpoints.
type AlertHandler struct {
	engine *alert.Engine
	logger zerolog.Logger
	now    func() time.Time
}

// NewAlertHandler creates a new AlertHandler.
func NewAlertHandler(engine *alert.Engine, logger zerolog.Logger) *AlertHandler {
	return &AlertHandler{engine: engine, logger: logger, now: time.Now}
}

// Active handles GET /api/alerts/active - currently active alerts.
func (h *AlertHandler) Active(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.engine.Active(r.Context())
	if err != nil {
		serverError(w, r, h.logger, err, "failed to load active alerts")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewActiveAlertsResponse(alerts, h.now()))
}

// History handles GET /api/alerts/history - past alerts, newest first.
func (h *AlertHandler) History(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "start_date", false)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	to, err := queryDate(r, "end_date", true)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if from != nil && to != nil && to.Before(*from) {
		response.BadRequest(w, r, "end_date must not be before start_date", nil)
		return
	}
	limit, err := queryInt(r, "limit", alert.DefaultHistoryLimit, 1, maxHistoryLimit)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	filter := alert.HistoryFilter{From: from, To: to, Limit: limit}
	alerts, err := h.engine.History(r.Context(), filter)
	if err != nil {
		serverError(w, r, h.logger, err, "failed to load alert history")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewAlertHistoryResponse(alerts, filter))
}

// Stats handles GET /api/alerts/stats - alert counts.
func (h *AlertHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Statistics(r.Context())
	if err != nil {
		serverError(w, r, h.logger, err, "failed to compute alert statistics")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewAlertStatsResponse(stats))
}

// Simulate handles POST /api/alerts/simulate - raise an alert for a synthetic reading.
func (h *AlertHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var input models.SimulateAlertRequest
	if !decodeJSON(w, r, &input, false) {
		return
	}
	pollutant, err := airquality.ParsePollutant(input.Pollutant)
	if err != nil {
		response.BadRequest(w, r, "pollutant must be one of SO2, NH3, PM2.5", []models.FieldError{
			{Field: "pollutant", Message: "unknown pollutant", Code: "ONEOF"},
		})
		return
	}

	created, err := h.engine.Simulate(r.Context(), pollutant, *input.Value)
	if err != nil {
		switch {
		case errors.Is(err, alert.ErrBelowThreshold):
			response.SimulationFailed(w, r, "Simulation failed: value is below the alert threshold")
		case errors.Is(err, alert.ErrUnknownPollutant):
			response.BadRequest(w, r, err.Error(), nil)
		default:
			serverError(w, r, h.logger, err, "failed to simulate alert")
		}
		return
	}

	response.Created(w, r, "", models.SimulateAlertResponse{
		Message: "Alert simulated successfully",
		Alert:   models.NewAlertResponse(created),
	})
}
