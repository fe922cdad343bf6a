// Package config defines the configuration structure for the delay engine.
// Configuration is loaded once at process start and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> struct defaults (Lowest)
//
// Any missing required value or invalid format fails startup immediately.
package config

import (
	"time"

	"delaywatch/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"delaywatch"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	Weather       WeatherConfig
	Monitor       MonitorConfig
	Delay         DelayConfig
	Webhook       WebhookConfig
	Queue         QueueConfig
	Kafka         KafkaConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds the ops HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"20s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// WeatherConfig holds the observation API client settings.
type WeatherConfig struct {
	BaseURL   string        `envconfig:"WEATHER_BASE_URL" default:"https://api.weather.gov" validate:"required,url"`
	UserAgent string        `envconfig:"WEATHER_USER_AGENT" default:"delaywatch/1.0 (ops@delaywatch.dev)" validate:"required"`
	Timeout   time.Duration `envconfig:"WEATHER_TIMEOUT" default:"5s" validate:"gt=0"`

	MaxRetries       int           `envconfig:"WEATHER_MAX_RETRIES" default:"2" validate:"gte=0,lte=5"`
	RateLimitRPS     float64       `envconfig:"WEATHER_RATE_LIMIT_RPS" default:"5" validate:"gt=0"`
	RateLimitBurst   int           `envconfig:"WEATHER_RATE_LIMIT_BURST" default:"5" validate:"gte=1"`
	StationCacheSize int           `envconfig:"WEATHER_STATION_CACHE_SIZE" default:"1000" validate:"gte=0"`
	StationCacheTTL  time.Duration `envconfig:"WEATHER_STATION_CACHE_TTL" default:"24h"`
	MaxStationMiles  float64       `envconfig:"WEATHER_MAX_STATION_MILES" default:"100" validate:"gt=0"`
}

// MonitorConfig holds the orchestrator settings.
type MonitorConfig struct {
	Concurrency int           `envconfig:"MONITOR_CONCURRENCY" default:"4" validate:"gte=1,lte=64"`
	Interval    time.Duration `envconfig:"MONITOR_INTERVAL" default:"15m" validate:"gte=1m"`
	SiteTimeout time.Duration `envconfig:"MONITOR_SITE_TIMEOUT" default:"20s" validate:"gt=0"`
	LockTTL     time.Duration `envconfig:"MONITOR_LOCK_TTL" default:"10m" validate:"gt=0"`
	WorkerID    string        `envconfig:"MONITOR_WORKER_ID"`
}

// DelayConfig holds lifecycle and costing policy.
type DelayConfig struct {
	// CostPolicy is "fixed" (estimate once at creation, finalize at close)
	// or "refresh" (re-estimate on every continuing tick).
	CostPolicy string `envconfig:"DELAY_COST_POLICY" default:"fixed" validate:"oneof=fixed refresh"`
}

// WebhookConfig holds settings for outbound webhook delivery.
type WebhookConfig struct {
	URL             string        `envconfig:"WEBHOOK_URL" validate:"omitempty,url"`
	Secret          SecretString  `envconfig:"WEBHOOK_SECRET"`
	PreviousSecret  SecretString  `envconfig:"WEBHOOK_PREVIOUS_SECRET"`
	UserAgent       string        `envconfig:"WEBHOOK_USER_AGENT" default:"DelayWatch-Webhook/1.0"`
	Timeout         time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s"`
	MaxRedirects    int           `envconfig:"WEBHOOK_MAX_REDIRECTS" default:"3"`
	AllowPrivateIPs bool          `envconfig:"WEBHOOK_ALLOW_PRIVATE_IPS" default:"false"`
}

// QueueConfig holds the SQS alert sink settings. Empty URL disables the sink.
type QueueConfig struct {
	AlertQueueURL string `envconfig:"SQS_ALERTS" validate:"omitempty,url"`
}

// KafkaConfig holds the Kafka alert sink settings. Empty brokers disable the sink.
type KafkaConfig struct {
	Brokers      []string      `envconfig:"KAFKA_BROKERS"`
	Topic        string        `envconfig:"KAFKA_ALERT_TOPIC" default:"delay-alerts"`
	WriteTimeout time.Duration `envconfig:"KAFKA_WRITE_TIMEOUT" default:"5s"`
}

// AWSConfig holds AWS regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricsBackend  string `envconfig:"METRICS_BACKEND" default:"prometheus" validate:"oneof=prometheus cloudwatch none"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"DelayWatch"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrInconsistent indicates individually valid values that conflict.
	ErrInconsistent ConfigErrorType = "INCONSISTENT"
)
