package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/airwatch/airwatch/internal/api/middleware"
	"github.com/airwatch/airwatch/internal/api/models"
	"github.com/airwatch/airwatch/internal/api/response"
	"github.com/airwatch/airwatch/internal/forecast"
	"github.com/airwatch/airwatch/internal/resilience"
)

// AdminHandler handles model administration endpoints.
type AdminHandler struct {
	service *forecast.Service
	logger  zerolog.Logger
	now     func() time.Time
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service *forecast.Service, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{service: service, logger: logger, now: time.Now}
}

// TrainModel handles POST /api/admin/model/train - retrain the forecasting model.
func (h *AdminHandler) TrainModel(w http.ResponseWriter, r *http.Request) {
	var input models.TrainModelRequest
	if !decodeJSON(w, r, &input, true) {
		return
	}

	metric, err := h.service.Train(r.Context(), forecast.TrainRequest{
		ModelType:       input.ModelType,
		Hyperparameters: input.Hyperparameters,
	})
	if err != nil {
		switch {
		case errors.Is(err, forecast.ErrTrainerUnavailable):
			response.ServiceUnavailable(w, r, err.Error())
		case errors.Is(err, resilience.ErrCircuitOpen):
			response.ServiceUnavailable(w, r, "model service is temporarily unavailable")
		default:
			h.logger.Error().
				Err(err).
				Str("subject", middleware.GetSubject(r.Context())).
				Msg("model training failed")
			response.BadGateway(w, r, "model training failed")
		}
		return
	}

	h.logger.Info().
		Str("subject", middleware.GetSubject(r.Context())).
		Str("model_type", metric.ModelType).
		Msg("model training requested")

	response.JSON(w, r, http.StatusOK, models.TrainModelResponse{
		Message: "Model trained successfully",
		Metric:  models.NewModelMetricResponse(metric),
	})
}

// ModelMetrics handles GET /api/admin/model/metrics - training runs and live accuracy.
func (h *AdminHandler) ModelMetrics(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20, 1, 100)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	runs, err := h.service.ModelMetrics(r.Context(), limit)
	if err != nil {
		serverError(w, r, h.logger, err, "failed to load model metrics")
		return
	}
	reports, err := h.service.AccuracyByPollutant(r.Context())
	if err != nil {
		serverError(w, r, h.logger, err, "failed to evaluate accuracy")
		return
	}

	out := models.ModelMetricsResponse{
		Metrics:   make([]models.ModelMetricResponse, 0, len(runs)),
		Accuracy:  make(map[string]models.AccuracyResponse, len(reports)),
		Timestamp: models.Timestamp(h.now()),
	}
	for _, m := range runs {
		out.Metrics = append(out.Metrics, models.NewModelMetricResponse(m))
	}
	for p, report := range reports {
		out.Accuracy[string(p)] = models.NewAccuracyResponse(report)
	}
	response.JSON(w, r, http.StatusOK, out)
}
