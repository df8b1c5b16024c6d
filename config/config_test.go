package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - http",
			input:    "http",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:     "single service - outcome-recorder",
			input:    "outcome-recorder",
			expected: map[ServiceMode]bool{ServiceModeOutcomeRecorder: true},
		},
		{
			name:  "all services with spaces",
			input: " http , outcome-recorder , relay-publisher ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:            true,
				ServiceModeOutcomeRecorder: true,
				ServiceModeRelayPublisher:  true,
			},
		},
		{
			name:     "duplicate services",
			input:    "http,http,",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only commas",
			input:       " , ,",
			expectError: true,
		},
		{
			name:        "unknown service",
			input:       "http,scheduler",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestValidServiceModes(t *testing.T) {
	modes := ValidServiceModes()
	for _, mode := range modes {
		if _, err := ParseServices(string(mode)); err != nil {
			t.Errorf("service mode %s does not parse: %v", mode, err)
		}
	}
	if len(modes) != 3 {
		t.Errorf("expected 3 service modes, got %d", len(modes))
	}
}

func TestAppConfig_ParseEnv(t *testing.T) {
	t.Setenv("SERVICES", "http,outcome-recorder")
	t.Setenv("JOBS_API_BASE_URL", " https://cfs.example/jobs ")
	t.Setenv("HUB_URL", "https://cfs.example/api/notifications")
	t.Setenv("HUB_RECONNECT_DELAYS", "1s,5s")
	t.Setenv("OAUTH_TOKEN_URL", "https://login.example/token")
	t.Setenv("OAUTH_CLIENT_ID", "jobwatch")
	t.Setenv("OAUTH_SCOPES", "api://cfs/.default, ")
	t.Setenv("MONITOR_PUSH", "SignalR")
	t.Setenv("MONITOR_MODE", "Polling")
	t.Setenv("MONITOR_POLL_INTERVAL", "5s")
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("RECORDER_CLAIM_TTL", "30m")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.JobsAPI.BaseURL != "https://cfs.example/jobs" {
		t.Fatalf("expected trimmed base url, got %q", cfg.JobsAPI.BaseURL)
	}
	if want := []time.Duration{time.Second, 5 * time.Second}; !reflect.DeepEqual(cfg.Hub.ReconnectDelays, want) {
		t.Fatalf("expected reconnect delays %v, got %v", want, cfg.Hub.ReconnectDelays)
	}
	if !cfg.OAuth.IsEnabled() {
		t.Fatal("expected oauth to be enabled")
	}
	if want := []string{"api://cfs/.default"}; !reflect.DeepEqual(cfg.OAuth.Scopes, want) {
		t.Fatalf("expected scopes %v, got %v", want, cfg.OAuth.Scopes)
	}
	if cfg.Monitor.Push != PushSourceSignalR {
		t.Fatalf("expected push source to be normalised, got %q", cfg.Monitor.Push)
	}
	if cfg.Monitor.Mode != "Polling" || cfg.Monitor.Fallback != "Polling" {
		t.Fatalf("unexpected monitor settings %q/%q", cfg.Monitor.Mode, cfg.Monitor.Fallback)
	}
	if cfg.Monitor.PollInterval != 5*time.Second {
		t.Fatalf("expected poll interval 5s, got %v", cfg.Monitor.PollInterval)
	}
	if cfg.Recorder.ClaimTTL != 30*time.Minute {
		t.Fatalf("expected claim ttl 30m, got %v", cfg.Recorder.ClaimTTL)
	}
	if cfg.Relay.ChannelPrefix != "cfs:jobs:" {
		t.Fatalf("expected default channel prefix, got %q", cfg.Relay.ChannelPrefix)
	}
	if !cfg.IsHTTPServerEnabled() || !cfg.IsOutcomeRecorderEnabled() || cfg.IsRelayPublisherEnabled() {
		t.Fatalf("unexpected enabled services for %q", cfg.Services)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestAppConfig_Validate(t *testing.T) {
	base := func() AppConfig {
		return AppConfig{
			Services: "http",
			JobsAPI:  JobsAPIConfig{BaseURL: "https://cfs.example"},
			Hub:      HubConfig{URL: "https://cfs.example/hub"},
			Monitor:  MonitorConfig{Push: PushSourceSignalR},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*AppConfig) {}},
		{
			name:    "bad services",
			mutate:  func(c *AppConfig) { c.Services = "reaper" },
			wantErr: "invalid service configuration",
		},
		{
			name:    "no jobs api",
			mutate:  func(c *AppConfig) { c.JobsAPI.BaseURL = "" },
			wantErr: "JOBS_API_BASE_URL is required",
		},
		{
			name:    "signalr without hub",
			mutate:  func(c *AppConfig) { c.Hub.URL = "" },
			wantErr: "requires HUB_URL",
		},
		{
			name:    "redis push without redis",
			mutate:  func(c *AppConfig) { c.Monitor.Push = PushSourceRedis },
			wantErr: "MONITOR_PUSH=redis requires REDIS_ENABLED",
		},
		{
			name:    "unknown push",
			mutate:  func(c *AppConfig) { c.Monitor.Push = "carrier-pigeon" },
			wantErr: "invalid MONITOR_PUSH",
		},
		{
			name: "no push",
			mutate: func(c *AppConfig) {
				c.Monitor.Push = PushSourceNone
				c.Hub.URL = ""
			},
		},
		{
			name:    "recorder without db",
			mutate:  func(c *AppConfig) { c.Services = "outcome-recorder" },
			wantErr: "requires DB_ENABLED",
		},
		{
			name:    "relay without redis",
			mutate:  func(c *AppConfig) { c.Services = "relay-publisher" },
			wantErr: "relay-publisher service requires REDIS_ENABLED",
		},
		{
			name: "relay with redis",
			mutate: func(c *AppConfig) {
				c.Services = "relay-publisher"
				c.Redis.Enabled = true
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAppConfig_SlogLevel(t *testing.T) {
	for in, want := range map[string]string{
		"debug": "DEBUG",
		"warn":  "WARN",
		"error": "ERROR",
		"":      "INFO",
		"loud":  "INFO",
	} {
		cfg := AppConfig{LogLevel: in}
		if got := cfg.SlogLevel().String(); got != want {
			t.Errorf("level %q: expected %s, got %s", in, want, got)
		}
	}
}

func TestSanitizeGuardrails(t *testing.T) {
	cfg := AppConfig{
		Hub:      HubConfig{ReconnectDelays: []time.Duration{-time.Second, 0}, KeepAliveInterval: 20 * time.Second},
		Monitor:  MonitorConfig{PollInterval: time.Millisecond, MaxWatches: -1, MaxSubscriptions: -1},
		HTTP:     HTTPConfig{Addr: " ", WriteTimeout: time.Second},
		Recorder: RecorderConfig{QueueSize: 0, ClaimTTL: time.Second},
		Relay:    RelayConfig{ChannelPrefix: " "},
	}
	cfg.Sanitize()

	if !reflect.DeepEqual(cfg.Hub.ReconnectDelays, []time.Duration{0}) {
		t.Fatalf("expected negative delays to be dropped, got %v", cfg.Hub.ReconnectDelays)
	}
	if cfg.Hub.ServerTimeout != 40*time.Second {
		t.Fatalf("expected server timeout of twice the keep-alive, got %v", cfg.Hub.ServerTimeout)
	}
	if cfg.Monitor.Push != PushSourceSignalR || cfg.Monitor.PollInterval != time.Second ||
		cfg.Monitor.MaxWatches != 0 || cfg.Monitor.MaxSubscriptions != 0 {
		t.Fatalf("unexpected monitor guardrails: %+v", cfg.Monitor)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.HTTP.WriteTimeout != 5*time.Second {
		t.Fatalf("unexpected http guardrails: %+v", cfg.HTTP)
	}
	if cfg.Recorder.QueueSize != 1 || cfg.Recorder.ClaimTTL != time.Minute {
		t.Fatalf("unexpected recorder guardrails: %+v", cfg.Recorder)
	}
	if cfg.Relay.ChannelPrefix != "cfs:jobs:" {
		t.Fatalf("expected default channel prefix, got %q", cfg.Relay.ChannelPrefix)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
		Environment:   " prod ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
	if tags := cfg.GlobalTags(); tags["env"] != "prod" {
		t.Fatalf("expected env tag, got %v", tags)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		Timeout:    0,
		RetryLimit: -1,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: " ",
			Channel:    "  ",
			Username:   "",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: " ",
			Source:     "",
			Component:  "",
		},
	}

	cfg.Sanitize()

	if cfg.Timeout <= 0 {
		t.Fatalf("expected timeout to fall back to default, got %v", cfg.Timeout)
	}
	if cfg.RetryLimit < 0 {
		t.Fatalf("expected retry limit to be clamped to >= 0, got %d", cfg.RetryLimit)
	}
	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled without a webhook url")
	}
	if cfg.PagerDuty.Enabled {
		t.Fatal("expected pagerduty to be disabled without a routing key")
	}
	if cfg.PagerDuty.Source != "cfs-jobwatch" {
		t.Fatalf("expected pagerduty source default, got %q", cfg.PagerDuty.Source)
	}
	if cfg.Slack.Username != "cfs-jobwatch" {
		t.Fatalf("expected slack username default, got %q", cfg.Slack.Username)
	}

	// Disabled top-level should disable child sinks.
	cfg = ObservabilityNotificationsConfig{
		Enabled: false,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: "https://hooks.slack.com/services/test",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: "abc",
		},
	}
	cfg.Sanitize()

	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled when top-level notifications disabled")
	}
	if cfg.PagerDuty.Enabled {
		t.Fatal("expected pagerduty to be disabled when top-level notifications disabled")
	}
}
