package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/airwatch/airwatch/internal/airquality"
	"github.com/airwatch/airwatch/internal/api/models"
	"github.com/airwatch/airwatch/internal/api/response"
	"github.com/airwatch/airwatch/internal/forecast"
)

const (
	// defaultHorizon is the lead time used when a request names none.
	defaultHorizon = 6

	maxHorizon         = 72
	maxComparisonLimit = 1000
)

// noEvaluationData is returned with 200 when nothing has been resolved yet.
var noEvaluationData = models.ErrorResult{Error: "No data available for evaluation"}

// PredictionHandler handles forecast endpoints.
type PredictionHandler struct {
	service *forecast.Service
	logger  zerolog.Logger
	now     func() time.Time
}

// NewPredictionHandler creates a new PredictionHandler.
func NewPredictionHandler(service *forecast.Service, logger zerolog.Logger) *PredictionHandler {
	return &PredictionHandler{service: service, logger: logger, now: time.Now}
}

// Next handles GET /api/predictions/next - upcoming predictions.
func (h *PredictionHandler) Next(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", defaultHorizon, 1, maxHorizon)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	preds, err := h.service.Upcoming(r.Context(), hours)
	if err != nil {
		serverError(w, r, h.logger, err, "failed to load predictions")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewUpcomingPredictionsResponse(hours, preds, h.now()))
}

// Accuracy handles GET /api/predictions/accuracy - RMSE, MAE and R² of resolved predictions.
func (h *PredictionHandler) Accuracy(w http.ResponseWriter, r *http.Request) {
	pollutant, err := queryPollutant(r, "pollutant")
	if err != nil {
		response.BadRequest(w, r, "pollutant must be one of SO2, NH3, PM2.5", nil)
		return
	}
	hoursAhead, err := queryInt(r, "hours_ahead", 0, 1, maxHorizon)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	report, err := h.service.Accuracy(r.Context(), forecast.Filter{Pollutant: pollutant, HoursAhead: hoursAhead})
	if err != nil {
		if errors.Is(err, forecast.ErrInsufficientData) {
			response.JSON(w, r, http.StatusOK, noEvaluationData)
			return
		}
		serverError(w, r, h.logger, err, "failed to evaluate accuracy")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewAccuracyResponse(report))
}

// Comparison handles GET /api/predictions/comparison/{pollutant} - predicted against actual.
func (h *PredictionHandler) Comparison(w http.ResponseWriter, r *http.Request) {
	pollutant, err := airquality.ParsePollutant(chi.URLParam(r, "pollutant"))
	if err != nil {
		response.BadRequest(w, r, "pollutant must be one of SO2, NH3, PM2.5", nil)
		return
	}
	limit, err := queryInt(r, "limit", 100, 1, maxComparisonLimit)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	rows, err := h.service.Comparison(r.Context(), pollutant, limit)
	if err != nil {
		serverError(w, r, h.logger, err, "failed to load comparison")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewComparisonResponse(string(pollutant), rows))
}

// Generate handles POST /api/predictions/generate - forecast every pollutant.
func (h *PredictionHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var input models.GeneratePredictionsRequest
	if !decodeJSON(w, r, &input, true) {
		return
	}
	hours := input.HoursAhead
	if hours == 0 {
		hours = defaultHorizon
	}
	version := input.ModelVersion
	if version == "" {
		version = forecast.DefaultModelVersion
	}

	preds, err := h.service.Generate(r.Context(), hours, version)
	if err != nil {
		switch {
		case errors.Is(err, forecast.ErrInvalidHorizon):
			response.BadRequest(w, r, err.Error(), nil)
		case errors.Is(err, airquality.ErrNoMeasurements):
			response.NotFound(w, r, "No data available")
		default:
			serverError(w, r, h.logger, err, "failed to generate predictions")
		}
		return
	}
	response.Created(w, r, "", models.NewGeneratePredictionsResponse(hours, version, preds))
}

// UpdateActual handles POST /api/predictions/update-actual - resolve due predictions.
func (h *PredictionHandler) UpdateActual(w http.ResponseWriter, r *http.Request) {
	updated, err := h.service.MatchActuals(r.Context())
	if err != nil {
		serverError(w, r, h.logger, err, "failed to match actual values")
		return
	}
	response.JSON(w, r, http.StatusOK, models.UpdateActualResponse{
		Message:      "Actual values updated",
		UpdatedCount: updated,
	})
}
