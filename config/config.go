package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	Port     string `env:"PORT" envDefault:"8000" validate:"required"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090" validate:"required"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite" validate:"oneof=sqlite postgres"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"tasks.db" validate:"required_if=StoreDriver sqlite"`
	DatabaseURL string `env:"DATABASE_URL" validate:"required_if=StoreDriver postgres"`

	PollIntervalSec     int  `env:"POLL_INTERVAL_SEC" envDefault:"1" validate:"min=1,max=60"`
	DispatchTimeoutSec  int  `env:"DISPATCH_TIMEOUT_SEC" envDefault:"10" validate:"min=1,max=300"`
	DispatchConcurrency int  `env:"DISPATCH_CONCURRENCY" envDefault:"1" validate:"min=1,max=100"`
	RetryBackoffSec     int  `env:"RETRY_BACKOFF_SEC" envDefault:"0" validate:"min=0,max=3600"`
	SchedulerEnabled    bool `env:"SCHEDULER_ENABLED" envDefault:"true"`

	AttemptRetentionHours int `env:"ATTEMPT_RETENTION_HOURS" envDefault:"168" validate:"min=1"`
	ReaperIntervalSec     int `env:"REAPER_INTERVAL_SEC" envDefault:"60" validate:"min=1"`
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

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.DispatchTimeoutSec) * time.Second
}

func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffSec) * time.Second
}

func (c *Config) AttemptRetention() time.Duration {
	return time.Duration(c.AttemptRetentionHours) * time.Hour
}

func (c *Config) ReaperInterval() time.Duration {
	return time.Duration(c.ReaperIntervalSec) * time.Second
}
