// Package main provides the entrypoint for the AirWatch API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/airwatch/airwatch/internal/airquality"
	"github.com/airwatch/airwatch/internal/alert"
	"github.com/airwatch/airwatch/internal/api"
	"github.com/airwatch/airwatch/internal/api/handler"
	"github.com/airwatch/airwatch/internal/api/middleware"
	"github.com/airwatch/airwatch/internal/auth"
	"github.com/airwatch/airwatch/internal/config"
	"github.com/airwatch/airwatch/internal/database"
	"github.com/airwatch/airwatch/internal/events"
	"github.com/airwatch/airwatch/internal/forecast"
	"github.com/airwatch/airwatch/internal/forecast/mlapi"
	"github.com/airwatch/airwatch/internal/resilience"
	"github.com/airwatch/airwatch/internal/spatial"
	"github.com/airwatch/airwatch/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "airwatch-api"

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		Level(cfg.LogLevel()).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.App.Environment).
		Msg("starting AirWatch API")

	// Initialize OpenTelemetry
	ctx := context.Background()
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

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	var checks []handler.Check

	// Storage
	var (
		measurementRepo airquality.Repository
		alertRepo       alert.Repository
		forecastRepo    forecast.Repository
		pool            *pgxpool.Pool
	)
	switch cfg.App.Storage {
	case config.StorageMemory:
		log.Warn().Msg("using in-memory storage - data is lost on restart")
		measurementRepo = airquality.NewInMemoryRepository()
		alertRepo = alert.NewInMemoryRepository()
		forecastRepo = forecast.NewInMemoryRepository()
	default:
		dbConfig := cfg.DatabaseConfig()
		pool, err = database.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")

		if cfg.Database.Migrate {
			if err := database.Migrate(ctx, pool); err != nil {
				log.Fatal().Err(err).Msg("failed to apply schema")
			}
		}

		measurementRepo = airquality.NewPostgresRepository(pool)
		alertRepo = alert.NewPostgresRepository(pool)
		forecastRepo = forecast.NewPostgresRepository(pool)
		checks = append(checks, handler.Check{Name: "database", Probe: pool.Ping})
	}

	// Alert locking across replicas
	var locker alert.Locker
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		locker = alert.NewRedisLocker(rdb, alert.RedisLockerConfig{
			TTL:     cfg.Redis.LockTTL,
			MaxWait: cfg.Redis.LockWait,
		})
		checks = append(checks, handler.Check{Name: "redis", Probe: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis alert locker enabled")
	}

	// Alert events
	var notifier alert.Notifier
	if cfg.Kafka.Enabled() {
		publisher, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			Logger:  log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka publisher")
		}
		defer func() { _ = publisher.Close() }()
		notifier = publisher
		log.Info().Str("topic", cfg.Kafka.Topic).Msg("kafka alert events enabled")
	}

	engine := alert.NewEngine(alert.EngineConfig{
		Repository: alertRepo,
		Locker:     locker,
		Notifier:   notifier,
		Logger:     log,
	})

	measurements := airquality.NewService(airquality.ServiceConfig{
		Repository: measurementRepo,
		Alerts:     engine,
		Logger:     log,
		CacheTTL:   cfg.App.CurrentCacheTTL,
	})

	// Model API
	providers := resilience.NewRegistry()
	model := mlapi.NewClient(mlapi.ClientConfig{
		BaseURL:        cfg.MLAPI.BaseURL,
		Registry:       providers,
		PredictTimeout: cfg.MLAPI.PredictTimeout,
		TrainTimeout:   cfg.MLAPI.TrainTimeout,
	})

	forecasts := forecast.NewService(forecast.ServiceConfig{
		Repository:     forecastRepo,
		Observations:   measurementRepo,
		Predictor:      model,
		Trainer:        model,
		Logger:         log,
		PredictTimeout: cfg.MLAPI.PredictTimeout,
		Concurrency:    cfg.Worker.Concurrency,
	})

	// Zones
	var zones []spatial.Zone
	if cfg.Spatial.ZonesFile != "" {
		zones, err = spatial.LoadZones(cfg.Spatial.ZonesFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.Spatial.ZonesFile).Msg("failed to load zones")
		}
		log.Info().Int("zones", len(zones)).Msg("zones loaded")
	}
	aggregator := spatial.NewAggregator(spatial.AggregatorConfig{
		Source: measurementRepo,
		Zones:  zones,
		Logger: log,
	})

	// Admin token validation
	signingKey := cfg.Auth.SigningKey
	if signingKey == "" {
		signingKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: signingKey,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
	})

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        metrics,
		RequireTLS:     cfg.App.RequireTLS,
		TokenValidator: jwtService,
		Measurements:   measurements,
		Alerts:         engine,
		Forecasts:      forecasts,
		Aggregator:     aggregator,
		Providers:      providers,
		Checks:         checks,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.MLAPI.TrainTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}
