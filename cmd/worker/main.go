// Package main provides the entrypoint for the AirWatch background worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/airwatch/airwatch/internal/airquality"
	"github.com/airwatch/airwatch/internal/config"
	"github.com/airwatch/airwatch/internal/database"
	"github.com/airwatch/airwatch/internal/forecast"
	"github.com/airwatch/airwatch/internal/forecast/mlapi"
	"github.com/airwatch/airwatch/internal/resilience"
	"github.com/airwatch/airwatch/internal/telemetry"
	"github.com/airwatch/airwatch/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "airwatch-worker"

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := zerolog.New(os.Stdout).
		Level(cfg.LogLevel()).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting AirWatch worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, cfg.TelemetryConfig(serviceName, Version))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	// Storage
	var (
		observations forecast.Observations
		repo         forecast.Repository
		probe        func(context.Context) error
	)
	switch cfg.App.Storage {
	case config.StorageMemory:
		log.Warn().Msg("using in-memory storage - the worker will not see API data")
		observations = airquality.NewInMemoryRepository()
		repo = forecast.NewInMemoryRepository()
	default:
		pool, err := database.Connect(ctx, cfg.DatabaseConfig())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		if cfg.Database.Migrate {
			if err := database.Migrate(ctx, pool); err != nil {
				log.Fatal().Err(err).Msg("failed to apply schema")
			}
		}
		observations = airquality.NewPostgresRepository(pool)
		repo = forecast.NewPostgresRepository(pool)
		probe = pool.Ping
	}

	providers := resilience.NewRegistry()
	model := mlapi.NewClient(mlapi.ClientConfig{
		BaseURL:        cfg.MLAPI.BaseURL,
		Registry:       providers,
		PredictTimeout: cfg.MLAPI.PredictTimeout,
		TrainTimeout:   cfg.MLAPI.TrainTimeout,
	})

	forecasts := forecast.NewService(forecast.ServiceConfig{
		Repository:     repo,
		Observations:   observations,
		Predictor:      model,
		Logger:         log,
		PredictTimeout: cfg.MLAPI.PredictTimeout,
		Concurrency:    cfg.Worker.Concurrency,
	})

	job := worker.NewEvaluationJob(worker.EvaluationJobConfig{
		Config: worker.EvaluationConfig{
			Horizon:             cfg.Worker.ForecastHours,
			ModelVersion:        cfg.Worker.ModelVersion,
			Timeout:             cfg.Worker.JobTimeout,
			MatchActuals:        true,
			GeneratePredictions: true,
		},
		Forecaster: forecasts,
		Logger:     log,
	})

	scheduler, err := worker.NewScheduler(ctx, worker.ScheduleConfig{
		MatchActuals:        cfg.Worker.MatchSchedule,
		GeneratePredictions: cfg.Worker.GenerateSchedule,
	}, job, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}

	// Health endpoint for the container platform
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		providerStatus := make(map[string]string)
		for _, h := range providers.All() {
			providerStatus[h.Name] = h.Status()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    "healthy",
			"version":   Version,
			"jobs":      job.MetricsSnapshot(),
			"providers": providerStatus,
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	scheduler.Start()

	if cfg.Worker.PubSubProject != "" {
		handler, err := worker.NewPubSubHandler(gctx, worker.PubSubConfig{
			ProjectID:        cfg.Worker.PubSubProject,
			SubscriptionName: cfg.Worker.PubSubSubscription,
			Dispatcher:       worker.NewDispatcher(job, probe, log),
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer func() { _ = handler.Close() }()

		g.Go(func() error {
			return handler.Start(gctx)
		})
	} else {
		log.Info().Msg("pubsub not configured, running on schedule only")
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down worker")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		scheduler.Stop(shutdownCtx)
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("worker stopped with error")
		return
	}
	log.Info().Msg("worker stopped")
}
