package models

import (
	"time"

	"github.com/airwatch/airwatch/internal/forecast"
)

// PredictionResponse is one upcoming prediction.
type PredictionResponse struct {
	ID            string    `json:"id"`
	HoursAhead    int       `json:"hours_ahead"`
	Value         float64   `json:"value"`
	PredictionFor Timestamp `json:"prediction_for"`
	CreatedAt     Timestamp `json:"created_at"`
	ModelVersion  string    `json:"model_version"`
	Source        string    `json:"source"`
}

// UpcomingPredictionsResponse groups upcoming predictions by pollutant.
type UpcomingPredictionsResponse struct {
	Hours            int                             `json:"hours"`
	Predictions      map[string][]PredictionResponse `json:"predictions"`
	TotalPredictions int                             `json:"total_predictions"`
	Timestamp        Timestamp                       `json:"timestamp"`
}

// NewUpcomingPredictionsResponse groups predictions by pollutant, keeping
// their order.
func NewUpcomingPredictionsResponse(hours int, preds []*forecast.Prediction, now time.Time) UpcomingPredictionsResponse {
	grouped := make(map[string][]PredictionResponse)
	for _, p := range preds {
		key := string(p.Pollutant)
		grouped[key] = append(grouped[key], PredictionResponse{
			ID:            p.ID,
			HoursAhead:    p.HoursAhead,
			Value:         p.PredictedValue,
			PredictionFor: Timestamp(p.TargetAt),
			CreatedAt:     Timestamp(p.CreatedAt),
			ModelVersion:  p.ModelVersion,
			Source:        string(p.Source),
		})
	}
	return UpcomingPredictionsResponse{
		Hours:            hours,
		Predictions:      grouped,
		TotalPredictions: len(preds),
		Timestamp:        Timestamp(now),
	}
}

// GeneratePredictionsRequest is the optional body of POST /api/predictions/generate.
type GeneratePredictionsRequest struct {
	HoursAhead   int    `json:"hours_ahead" validate:"omitempty,gte=1,lte=72"`
	ModelVersion string `json:"model_version" validate:"omitempty,max=32"`
}

// GeneratePredictionsResponse reports a generation run.
type GeneratePredictionsResponse struct {
	Message      string `json:"message"`
	Count        int    `json:"count"`
	Fallbacks    int    `json:"fallbacks"`
	HoursAhead   int    `json:"hours_ahead"`
	ModelVersion string `json:"model_version"`
}

// NewGeneratePredictionsResponse summarizes generated predictions.
func NewGeneratePredictionsResponse(hours int, version string, preds []*forecast.Prediction) GeneratePredictionsResponse {
	fallbacks := 0
	for _, p := range preds {
		if p.Source == forecast.SourceFallback {
			fallbacks++
		}
	}
	return GeneratePredictionsResponse{
		Message:      "Predictions generated successfully",
		Count:        len(preds),
		Fallbacks:    fallbacks,
		HoursAhead:   hours,
		ModelVersion: version,
	}
}

// AccuracyResponse is an accuracy evaluation.
type AccuracyResponse struct {
	Pollutant  string  `json:"pollutant"`
	HoursAhead *int    `json:"hours_ahead"`
	RMSE       float64 `json:"rmse"`
	MAE        float64 `json:"mae"`
	R2         float64 `json:"r2"`
	SampleSize int     `json:"sample_size"`
}

// NewAccuracyResponse converts a report.
func NewAccuracyResponse(r forecast.Report) AccuracyResponse {
	name := "all"
	if r.Filter.Pollutant != "" {
		name = string(r.Filter.Pollutant)
	}
	var hours *int
	if r.Filter.HoursAhead > 0 {
		h := r.Filter.HoursAhead
		hours = &h
	}
	return AccuracyResponse{
		Pollutant:  name,
		HoursAhead: hours,
		RMSE:       r.RMSE,
		MAE:        r.MAE,
		R2:         r.R2,
		SampleSize: r.SampleSize,
	}
}

// ComparisonPoint is one prediction next to its observed value.
type ComparisonPoint struct {
	Timestamp  Timestamp `json:"timestamp"`
	Predicted  float64   `json:"predicted"`
	Actual     float64   `json:"actual"`
	Error      float64   `json:"error"`
	HoursAhead int       `json:"hours_ahead"`
}

// ComparisonResponse lists resolved predictions of a pollutant.
type ComparisonResponse struct {
	Pollutant string            `json:"pollutant"`
	Data      []ComparisonPoint `json:"data"`
	Count     int               `json:"count"`
}

// NewComparisonResponse converts comparison rows.
func NewComparisonResponse(pollutant string, rows []forecast.ComparisonRow) ComparisonResponse {
	data := make([]ComparisonPoint, 0, len(rows))
	for _, r := range rows {
		data = append(data, ComparisonPoint{
			Timestamp:  Timestamp(r.TargetAt),
			Predicted:  r.Predicted,
			Actual:     r.Actual,
			Error:      r.AbsError,
			HoursAhead: r.HoursAhead,
		})
	}
	return ComparisonResponse{Pollutant: pollutant, Data: data, Count: len(data)}
}

// UpdateActualResponse reports how many predictions were resolved.
type UpdateActualResponse struct {
	Message      string `json:"message"`
	UpdatedCount int    `json:"updated_count"`
}

// TrainModelRequest is the optional body of POST /api/admin/model/train.
type TrainModelRequest struct {
	ModelType       string         `json:"model_type" validate:"omitempty,max=64"`
	Hyperparameters map[string]any `json:"hyperparameters"`
}

// ModelMetricResponse is one training run.
type ModelMetricResponse struct {
	ID        string    `json:"id"`
	ModelName string    `json:"model_name"`
	ModelType string    `json:"model_type"`
	RMSE      float64   `json:"rmse"`
	MAE       float64   `json:"mae"`
	R2        float64   `json:"r2"`
	TrainedAt Timestamp `json:"trained_at"`
}

// NewModelMetricResponse converts a training run.
func NewModelMetricResponse(m *forecast.ModelMetric) ModelMetricResponse {
	return ModelMetricResponse{
		ID:        m.ID,
		ModelName: m.ModelName,
		ModelType: m.ModelType,
		RMSE:      m.RMSE,
		MAE:       m.MAE,
		R2:        m.R2,
		TrainedAt: Timestamp(m.TrainedAt),
	}
}

// TrainModelResponse reports a completed training run.
type TrainModelResponse struct {
	Message string              `json:"message"`
	Metric  ModelMetricResponse `json:"metric"`
}

// ModelMetricsResponse lists training runs with live accuracy per pollutant.
type ModelMetricsResponse struct {
	Metrics   []ModelMetricResponse       `json:"metrics"`
	Accuracy  map[string]AccuracyResponse `json:"accuracy"`
	Timestamp Timestamp                   `json:"timestamp"`
}
