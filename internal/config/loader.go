// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator, then cross-field rules.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// loaderDeps holds the injectable dependencies for the loader.
type loaderDeps struct {
	dotenvFiles []string
	hostname    func() (string, error)
}

func defaultDeps() loaderDeps {
	return loaderDeps{hostname: os.Hostname}
}

// LoadConfig loads and validates the configuration from the environment.
func LoadConfig() (*Config, error) {
	return loadConfigWithDeps(defaultDeps())
}

func loadConfigWithDeps(deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// godotenv does NOT override variables already present in the environment.
	_ = godotenv.Load(deps.dotenvFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if cfg.Monitor.WorkerID == "" && deps.hostname != nil {
		if h, err := deps.hostname(); err == nil {
			cfg.Monitor.WorkerID = h
		}
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if err := checkConsistency(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func checkConsistency(cfg *Config) error {
	if cfg.Webhook.URL != "" && cfg.Environment != "local" && !strings.HasPrefix(cfg.Webhook.URL, "https://") {
		return &ConfigError{
			Type:    ErrInconsistent,
			Message: "WEBHOOK_URL must use https outside local",
		}
	}
	if cfg.Webhook.URL != "" && !cfg.Webhook.Secret.IsSet() {
		return &ConfigError{
			Type:    ErrInconsistent,
			Message: "WEBHOOK_SECRET is required when WEBHOOK_URL is set",
		}
	}
	if cfg.Monitor.LockTTL < cfg.Monitor.SiteTimeout {
		return &ConfigError{
			Type:    ErrInconsistent,
			Message: fmt.Sprintf("MONITOR_LOCK_TTL (%s) must be at least MONITOR_SITE_TIMEOUT (%s)", cfg.Monitor.LockTTL, cfg.Monitor.SiteTimeout),
		}
	}
	return nil
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
