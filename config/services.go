package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API with the specification watchers.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeOutcomeRecorder persists terminal job outcomes and raises failure alerts.
	ServiceModeOutcomeRecorder ServiceMode = "outcome-recorder"
	// ServiceModeRelayPublisher forwards hub events to Redis for other instances.
	ServiceModeRelayPublisher ServiceMode = "relay-publisher"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeOutcomeRecorder,
		ServiceModeRelayPublisher,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if strings.TrimSpace(servicesStr) == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeOutcomeRecorder, ServiceModeRelayPublisher:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, outcome-recorder, relay-publisher)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// RecorderConfig contains outcome recorder service configuration.
type RecorderConfig struct {
	// QueueSize bounds completed jobs waiting to be written.
	QueueSize int `env:"QUEUE_SIZE" envDefault:"256"`

	// ClaimTTL is how long a job id stays claimed by one instance when Redis is enabled.
	ClaimTTL time.Duration `env:"CLAIM_TTL" envDefault:"10m"`

	// WriteTimeout bounds each outcome write.
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`

	// UseClaims coordinates several recorders through Redis claims.
	UseClaims bool `env:"USE_CLAIMS" envDefault:"true"`
}

// Sanitize applies guardrails to outcome recorder configuration values.
func (r *RecorderConfig) Sanitize() {
	if r.QueueSize < 1 {
		r.QueueSize = 1
	}
	if r.ClaimTTL < time.Minute {
		r.ClaimTTL = time.Minute
	}
	if r.WriteTimeout < time.Second {
		r.WriteTimeout = time.Second
	}
}

// RelayConfig contains relay publisher service configuration.
type RelayConfig struct {
	// ChannelPrefix namespaces the Redis channels; shared by publishers and consumers.
	ChannelPrefix string `env:"CHANNEL_PREFIX" envDefault:"cfs:jobs:"`

	// QueueSize bounds events waiting to be published; overflow is dropped.
	QueueSize int `env:"QUEUE_SIZE" envDefault:"1024"`

	// PublishTimeout bounds each publish.
	PublishTimeout time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"5s"`
}

// Sanitize applies guardrails to relay configuration values.
func (r *RelayConfig) Sanitize() {
	r.ChannelPrefix = strings.TrimSpace(r.ChannelPrefix)
	if r.ChannelPrefix == "" {
		r.ChannelPrefix = "cfs:jobs:"
	}
	if r.QueueSize < 1 {
		r.QueueSize = 1
	}
	if r.PublishTimeout <= 0 {
		r.PublishTimeout = 5 * time.Second
	}
}
