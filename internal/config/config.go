// Package config loads process configuration from the environment.
//
// Values are read from the OS environment, falling back to a .env file in
// the working directory. The populated struct is validated once at startup;
// any invalid value stops the process.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/airwatch/airwatch/internal/database"
	"github.com/airwatch/airwatch/internal/telemetry"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config is the top-level process configuration.
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	MLAPI     MLAPIConfig
	Auth      AuthConfig
	Telemetry TelemetryConfig
	Worker    WorkerConfig
	Spatial   SpatialConfig
}

// AppConfig holds process-wide settings.
type AppConfig struct {
	Environment     string        `envconfig:"APP_ENV" default:"development" validate:"oneof=development test staging production"`
	Port            string        `envconfig:"APP_PORT" default:"8080" validate:"required,numeric"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s" validate:"gt=0"`
	CurrentCacheTTL time.Duration `envconfig:"CURRENT_CACHE_TTL" default:"30s" validate:"gte=0"`
	Storage         string        `envconfig:"STORAGE_DRIVER" default:"postgres" validate:"oneof=postgres memory"`
	RequireTLS      bool          `envconfig:"REQUIRE_TLS" default:"false"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432" validate:"gt=0,lte=65535"`
	User            string        `envconfig:"DB_USER" default:"airwatch"`
	Password        string        `envconfig:"DB_PASSWORD" default:"airwatch"`
	Name            string        `envconfig:"DB_NAME" default:"airwatch"`
	SSLMode         string        `envconfig:"DB_SSLMODE" default:"disable" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25" validate:"gt=0"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5" validate:"gte=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	Migrate         bool          `envconfig:"DB_MIGRATE" default:"true"`
}

// RedisConfig enables the distributed alert lock when Addr is set.
type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0" validate:"gte=0"`
	LockTTL  time.Duration `envconfig:"ALERT_LOCK_TTL" default:"10s" validate:"gt=0"`
	LockWait time.Duration `envconfig:"ALERT_LOCK_WAIT" default:"5s" validate:"gt=0"`
}

// Enabled reports whether Redis is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// KafkaConfig enables alert event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	Topic   string   `envconfig:"KAFKA_ALERT_TOPIC" default:"airwatch.alerts" validate:"required_with=Brokers"`
}

// Enabled reports whether Kafka is configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// MLAPIConfig points at the external forecasting model.
type MLAPIConfig struct {
	BaseURL        string        `envconfig:"ML_API_URL" default:"http://localhost:5000" validate:"required,url"`
	PredictTimeout time.Duration `envconfig:"ML_API_PREDICT_TIMEOUT" default:"10s" validate:"gt=0"`
	TrainTimeout   time.Duration `envconfig:"ML_API_TRAIN_TIMEOUT" default:"300s" validate:"gt=0"`
	MaxRetries     uint64        `envconfig:"ML_API_MAX_RETRIES" default:"2" validate:"lte=10"`
}

// AuthConfig holds admin token validation settings.
type AuthConfig struct {
	SigningKey string `envconfig:"JWT_SIGNING_KEY" validate:"required_if=Environment production"`
	Issuer     string `envconfig:"JWT_ISSUER" default:"airwatch"`
	Audience   string `envconfig:"JWT_AUDIENCE" default:"airwatch-admin"`

	// Environment mirrors App.Environment for validation.
	Environment string `ignored:"true"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled        bool          `envconfig:"OTEL_ENABLED" default:"false"`
	OTLPEndpoint   string        `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317" validate:"required_if=Enabled true"`
	Insecure       bool          `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
	SampleRatio    float64       `envconfig:"OTEL_TRACES_SAMPLE_RATIO" default:"1" validate:"gt=0,lte=1"`
	ExportInterval time.Duration `envconfig:"OTEL_METRIC_EXPORT_INTERVAL" default:"15s" validate:"gt=0"`
}

// WorkerConfig holds background job settings.
type WorkerConfig struct {
	PubSubProject      string        `envconfig:"PUBSUB_PROJECT_ID"`
	PubSubSubscription string        `envconfig:"PUBSUB_SUBSCRIPTION" default:"airwatch-jobs" validate:"required_with=PubSubProject"`
	MatchSchedule      string        `envconfig:"MATCH_ACTUALS_SCHEDULE" default:"*/15 * * * *" validate:"required"`
	GenerateSchedule   string        `envconfig:"GENERATE_SCHEDULE" default:"0 * * * *" validate:"required"`
	ForecastHours      int           `envconfig:"FORECAST_HOURS" default:"6" validate:"gte=1,lte=72"`
	ModelVersion       string        `envconfig:"MODEL_VERSION" default:"v1.0" validate:"required"`
	JobTimeout         time.Duration `envconfig:"JOB_TIMEOUT" default:"5m" validate:"gt=0"`
	Concurrency        int           `envconfig:"PREDICT_CONCURRENCY" default:"4" validate:"gte=1,lte=64"`
}

// SpatialConfig holds zone settings.
type SpatialConfig struct {
	ZonesFile string `envconfig:"ZONES_FILE"`
}

// ErrInvalidConfig wraps every load and validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads an optional .env file, processes the environment and validates
// the result. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.Auth.Environment = cfg.App.Environment

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// Production reports whether the process runs in production.
func (c *Config) Production() bool {
	return c.App.Environment == "production"
}

// LogLevel returns the zerolog level for App.LogLevel.
func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.App.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// DatabaseConfig returns the settings for database.Connect.
func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		Database:        c.Database.Name,
		SSLMode:         c.Database.SSLMode,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}

// TelemetryConfig returns the settings for telemetry.Init.
func (c *Config) TelemetryConfig(serviceName, version string) telemetry.Config {
	return telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    c.App.Environment,
		OTLPEndpoint:   c.Telemetry.OTLPEndpoint,
		Enabled:        c.Telemetry.Enabled,
		Insecure:       c.Telemetry.Insecure,
		SampleRatio:    c.Telemetry.SampleRatio,
		ExportInterval: c.Telemetry.ExportInterval,
	}
}
