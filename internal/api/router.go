// Package api provides the HTTP API for AirWatch.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/airwatch/airwatch/internal/airquality"
	"github.com/airwatch/airwatch/internal/alert"
	"github.com/airwatch/airwatch/internal/api/handler"
	"github.com/airwatch/airwatch/internal/api/middleware"
	"github.com/airwatch/airwatch/internal/auth"
	"github.com/airwatch/airwatch/internal/forecast"
	"github.com/airwatch/airwatch/internal/resilience"
	"github.com/airwatch/airwatch/internal/spatial"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	// TokenValidator checks admin bearer tokens. Admin routes reject every
	// request when it is nil.
	TokenValidator middleware.TokenValidator

	Measurements *airquality.Service
	Alerts       *alert.Engine
	Forecasts    *forecast.Service
	Aggregator   *spatial.Aggregator

	// Providers reports circuit health of external dependencies. Optional.
	Providers *resilience.Registry

	// Checks probe backing subsystems for readiness and status.
	Checks []handler.Check
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "airwatch-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Providers, cfg.Checks...)
	pollutionHandler := handler.NewPollutionHandler(cfg.Measurements, cfg.Aggregator, cfg.Logger)
	alertHandler := handler.NewAlertHandler(cfg.Alerts, cfg.Logger)
	predictionHandler := handler.NewPredictionHandler(cfg.Forecasts, cfg.Logger)
	adminHandler := handler.NewAdminHandler(cfg.Forecasts, cfg.Logger)

	ingestRateLimit := middleware.RateLimitByIP(middleware.IngestRateLimit)       // 600 req/min
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min

	r.Route("/api", func(r chi.Router) {
		// Ops endpoints (public, not rate limited)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/pollution", func(r chi.Router) {
			r.With(ingestRateLimit, middleware.RequireJSON).Post("/data", pollutionHandler.Ingest)

			r.Group(func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/current", pollutionHandler.Current)
				r.Get("/aqi", pollutionHandler.AQI)
				r.Get("/history", pollutionHandler.History)
				r.Get("/map-data", pollutionHandler.MapData)
				r.Get("/heatmap", pollutionHandler.Heatmap)
				r.Get("/grid", pollutionHandler.Grid)
				r.Get("/zones", pollutionHandler.Zones)
				r.Get("/stats", pollutionHandler.Stats)
			})
		})

		r.Route("/alerts", func(r chi.Router) {
			r.With(expensiveRateLimit, middleware.RequireJSON).Post("/simulate", alertHandler.Simulate)

			r.Group(func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/active", alertHandler.Active)
				r.Get("/history", alertHandler.History)
				r.Get("/stats", alertHandler.Stats)
			})
		})

		r.Route("/predictions", func(r chi.Router) {
			// Generation fans out to the model service
			r.With(expensiveRateLimit, middleware.RequireJSON).Post("/generate", predictionHandler.Generate)
			r.With(expensiveRateLimit).Post("/update-actual", predictionHandler.UpdateActual)

			r.Group(func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/next", predictionHandler.Next)
				r.Get("/accuracy", predictionHandler.Accuracy)
				r.Get("/comparison/{pollutant}", predictionHandler.Comparison)
			})
		})

		// Admin endpoints (authenticated, admin role)
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.TokenValidator))
			r.Use(middleware.RequireRole(auth.RoleAdmin))
			r.Use(middleware.RateLimitBySubject(middleware.AdminRateLimit)) // 10 req/min per subject

			r.Route("/model", func(r chi.Router) {
				r.With(middleware.RequireJSON).Post("/train", adminHandler.TrainModel)
				r.Get("/metrics", adminHandler.ModelMetrics)
			})
		})
	})

	return r
}
