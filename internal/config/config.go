// Package config loads server configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Host      string `env:"HOST" default:"0.0.0.0"`
	Port      string `env:"PORT" default:"8000"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"json"`

	MaxConnections       int           `env:"MAX_CONNECTIONS" default:"1000"`
	NotificationInterval time.Duration `env:"NOTIFICATION_INTERVAL" default:"10s"`
	PingInterval         time.Duration `env:"PING_INTERVAL" default:"30s"`
	SendBufferSize       int           `env:"SEND_BUFFER_SIZE" default:"16"`

	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" default:"30m"`
	DrainPollInterval time.Duration `env:"DRAIN_POLL_INTERVAL" default:"5s"`

	// Per-IP dial rate limiting for new WebSocket connections.
	ConnectionsPerSecond float64 `env:"CONNECTIONS_PER_SECOND" default:"10"`
	ConnectionBurst      int     `env:"CONNECTION_BURST" default:"20"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.MaxConnections < 1 {
		return fmt.Errorf("MAX_CONNECTIONS must be at least 1, got %d", cfg.MaxConnections)
	}
	if cfg.NotificationInterval < time.Second {
		return fmt.Errorf("NOTIFICATION_INTERVAL must be at least 1s, got %s", cfg.NotificationInterval)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", cfg.ShutdownTimeout)
	}
	if cfg.DrainPollInterval <= 0 || cfg.DrainPollInterval > cfg.ShutdownTimeout {
		return fmt.Errorf("DRAIN_POLL_INTERVAL must be positive and no larger than SHUTDOWN_TIMEOUT, got %s", cfg.DrainPollInterval)
	}
	if cfg.SendBufferSize < 1 {
		return fmt.Errorf("SEND_BUFFER_SIZE must be at least 1, got %d", cfg.SendBufferSize)
	}
	if cfg.ConnectionsPerSecond <= 0 {
		return fmt.Errorf("CONNECTIONS_PER_SECOND must be positive, got %f", cfg.ConnectionsPerSecond)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug/info/warn/error, got %q", cfg.LogLevel)
	}

	switch cfg.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", cfg.LogFormat)
	}

	return nil
}
