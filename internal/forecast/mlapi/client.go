// Package mlapi provides a client for the external forecasting model API.
package mlapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/airwatch/airwatch/internal/airquality"
	"github.com/airwatch/airwatch/internal/forecast"
	"github.com/airwatch/airwatch/internal/resilience"
)

// ProviderName identifies the model API in the resilience registry.
const ProviderName = "ml-api"

// ClientConfig holds configuration for the model API client.
type ClientConfig struct {
	// BaseURL is the API base URL (required).
	BaseURL string

	// HTTPClient executes requests. If nil, a resilient client is created.
	HTTPClient JSONDoer

	// Registry records the health of the default client. Optional.
	Registry *resilience.Registry

	// PredictTimeout bounds a /predict call (default: 10s).
	PredictTimeout time.Duration

	// TrainTimeout bounds a /train call (default: 300s).
	TrainTimeout time.Duration
}

// JSONDoer executes a request and returns the body of a 2xx response.
type JSONDoer interface {
	DoJSON(req *http.Request) ([]byte, error)
}

// Client calls the model API. It implements forecast.Predictor and
// forecast.Trainer.
type Client struct {
	baseURL        string
	httpClient     JSONDoer
	predictTimeout time.Duration
	trainTimeout   time.Duration
}

var (
	_ forecast.Predictor = (*Client)(nil)
	_ forecast.Trainer   = (*Client)(nil)
)

// NewClient creates a new model API client.
func NewClient(cfg ClientConfig) *Client {
	predictTimeout := cfg.PredictTimeout
	if predictTimeout == 0 {
		predictTimeout = 10 * time.Second
	}
	trainTimeout := cfg.TrainTimeout
	if trainTimeout == 0 {
		trainTimeout = 300 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.Timeout = trainTimeout
		rc.Registry = cfg.Registry
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:     httpClient,
		predictTimeout: predictTimeout,
		trainTimeout:   trainTimeout,
	}
}

type predictRequest struct {
	Pollutant  string            `json:"pollutant"`
	HoursAhead int               `json:"hours_ahead"`
	Features   forecast.Features `json:"features"`
}

type predictResponse struct {
	PredictedValue *float64 `json:"predicted_value"`
}

type trainRequest struct {
	ModelType       string         `json:"model_type"`
	Hyperparameters map[string]any `json:"hyperparameters,omitempty"`
}

type trainResponse struct {
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
}

// Predict asks the model for the concentration of pollutant hoursAhead hours
// after the features were observed.
func (c *Client) Predict(ctx context.Context, pollutant airquality.Pollutant, hoursAhead int, features forecast.Features) (float64, error) {
	ctx, cancel := resilience.WithTimeout(ctx, c.predictTimeout)
	defer cancel()

	var resp predictResponse
	err := c.post(ctx, "/predict", predictRequest{
		Pollutant:  string(pollutant),
		HoursAhead: hoursAhead,
		Features:   features,
	}, &resp)
	if err != nil {
		return 0, err
	}
	if resp.PredictedValue == nil {
		return 0, fmt.Errorf("predict %s: response has no predicted_value", pollutant)
	}
	return *resp.PredictedValue, nil
}

// Train asks the model API to retrain and returns the reported metrics.
func (c *Client) Train(ctx context.Context, req forecast.TrainRequest) (forecast.Metrics, error) {
	ctx, cancel := resilience.WithTimeout(ctx, c.trainTimeout)
	defer cancel()

	var resp trainResponse
	err := c.post(ctx, "/train", trainRequest{
		ModelType:       req.ModelType,
		Hyperparameters: req.Hyperparameters,
	}, &resp)
	if err != nil {
		return forecast.Metrics{}, err
	}
	return forecast.Metrics{RMSE: resp.RMSE, MAE: resp.MAE, R2: resp.R2}, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.httpClient.DoJSON(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
