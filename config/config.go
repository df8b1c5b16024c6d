package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - jobs.go: jobs REST API, notifications hub, OAuth2 and monitoring
//   - database.go: Postgres and Redis configuration
//   - http.go: HTTP server configuration
//   - services.go: service modes, outcome recorder and relay configuration
//   - observability.go: metrics and failure notifications
type AppConfig struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http"`

	JobsAPI JobsAPIConfig `envPrefix:"JOBS_API_"`
	Hub     HubConfig     `envPrefix:"HUB_"`
	OAuth   OAuthConfig   `envPrefix:"OAUTH_"`
	Monitor MonitorConfig `envPrefix:"MONITOR_"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	Recorder RecorderConfig `envPrefix:"RECORDER_"`
	Relay    RelayConfig    `envPrefix:"RELAY_"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.JobsAPI.Sanitize()
	c.Hub.Sanitize()
	c.OAuth.Sanitize()
	c.Monitor.Sanitize()
	c.HTTP.Sanitize()
	c.Recorder.Sanitize()
	c.Relay.Sanitize()
	c.Observability.Sanitize()
}

// Validate reports configuration that cannot run: unknown services, and services or
// transports whose backing store is disabled.
func (c *AppConfig) Validate() error {
	services, err := c.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}

	var errs []error
	if c.JobsAPI.BaseURL == "" {
		errs = append(errs, errors.New("JOBS_API_BASE_URL is required"))
	}
	switch c.Monitor.Push {
	case PushSourceSignalR:
		if c.Hub.URL == "" {
			errs = append(errs, errors.New("MONITOR_PUSH=signalr requires HUB_URL"))
		}
	case PushSourceRedis:
		if !c.Redis.Enabled {
			errs = append(errs, errors.New("MONITOR_PUSH=redis requires REDIS_ENABLED"))
		}
	case PushSourceNone:
	default:
		errs = append(errs, fmt.Errorf("invalid MONITOR_PUSH %q (valid options: signalr, redis, none)", c.Monitor.Push))
	}
	if services[ServiceModeOutcomeRecorder] && !c.Postgres.Enabled {
		errs = append(errs, errors.New("the outcome-recorder service requires DB_ENABLED"))
	}
	if services[ServiceModeRelayPublisher] {
		if !c.Redis.Enabled {
			errs = append(errs, errors.New("the relay-publisher service requires REDIS_ENABLED"))
		}
		if c.Hub.URL == "" {
			errs = append(errs, errors.New("the relay-publisher service requires HUB_URL"))
		}
	}
	return errors.Join(errs...)
}

// SlogLevel maps LogLevel to a slog level; unknown values are info.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.isEnabled(ServiceModeHTTP)
}

// IsOutcomeRecorderEnabled returns true if the outcome recorder service is enabled.
func (c *AppConfig) IsOutcomeRecorderEnabled() bool {
	return c.isEnabled(ServiceModeOutcomeRecorder)
}

// IsRelayPublisherEnabled returns true if the relay publisher service is enabled.
func (c *AppConfig) IsRelayPublisherEnabled() bool {
	return c.isEnabled(ServiceModeRelayPublisher)
}

func (c *AppConfig) isEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
