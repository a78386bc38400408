package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	// Scheduler core knobs.
	MaxWorkers            int           `env:"MAX_WORKERS" envDefault:"20" validate:"min=1,max=1000"`
	RequestTimeoutSec     int           `env:"REQUEST_TIMEOUT" envDefault:"30" validate:"min=1,max=600"`
	MaxRetries            int           `env:"MAX_RETRIES" envDefault:"3" validate:"min=0,max=20"`
	RefreshIntervalSec    int           `env:"REFRESH_INTERVAL" envDefault:"60" validate:"min=1,max=3600"`
	BackoffCapSeconds     int           `env:"BACKOFF_CAP_SECONDS" envDefault:"64" validate:"min=1,max=3600"`
	ResponseCaptureBytes  int64         `env:"RESPONSE_CAPTURE_BYTES" envDefault:"4096" validate:"min=0,max=1048576"`
	WorkerBacklogSize     int           `env:"WORKER_BACKLOG_SIZE" envDefault:"200" validate:"min=1,max=100000"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`
	LogFile     string `env:"LOG_FILE"`

	// OperatorAlertEmail receives one email per occurrence that reaches a
	// terminal FAILED state after exhausting retries. Empty disables the
	// notifier entirely.
	OperatorAlertEmail string `env:"OPERATOR_ALERT_EMAIL"`

	JWTSecret     string `env:"JWT_SECRET"`
	ResendAPIKey  string `env:"RESEND_API_KEY"         validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom    string `env:"RESEND_FROM"            validate:"required_if=Env production,required_if=Env staging"`
	MagicLinkBase string `env:"MAGIC_LINK_BASE_URL"    envDefault:"http://localhost:8080"`
}

// RequestTimeout is REQUEST_TIMEOUT as a time.Duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// RefreshInterval is REFRESH_INTERVAL as a time.Duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSec) * time.Second
}

// BackoffCap is BACKOFF_CAP_SECONDS as a time.Duration.
func (c *Config) BackoffCap() time.Duration {
	return time.Duration(c.BackoffCapSeconds) * time.Second
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
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
