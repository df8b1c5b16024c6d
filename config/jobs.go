package config

import (
	"strings"
	"time"
)

// JobsAPIConfig configures the jobs REST API client.
type JobsAPIConfig struct {
	// BaseURL is the jobs API root, e.g. https://cfs.example/jobs.
	BaseURL string        `env:"BASE_URL"`
	Timeout time.Duration `env:"TIMEOUT"  envDefault:"30s"`

	// RequestsPerSecond caps outbound REST calls; zero disables limiting.
	RequestsPerSecond float64 `env:"REQUESTS_PER_SECOND" envDefault:"20"`
	Burst             int     `env:"BURST"               envDefault:"10"`
}

// Sanitize applies guardrails to jobs API configuration values.
func (c *JobsAPIConfig) Sanitize() {
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RequestsPerSecond < 0 {
		c.RequestsPerSecond = 0
	}
	if c.Burst < 1 {
		c.Burst = 1
	}
}

// HubConfig configures the SignalR notifications hub connection.
type HubConfig struct {
	// URL is the hub endpoint, e.g. https://cfs.example/api/notifications.
	URL string `env:"URL"`

	// ReconnectDelays are waited before successive reconnect attempts; the last repeats.
	ReconnectDelays   []time.Duration `env:"RECONNECT_DELAYS"   envDefault:"0s,2s,10s,30s"`
	KeepAliveInterval time.Duration   `env:"KEEP_ALIVE"         envDefault:"15s"`
	ServerTimeout     time.Duration   `env:"SERVER_TIMEOUT"     envDefault:"30s"`
	HandshakeTimeout  time.Duration   `env:"HANDSHAKE_TIMEOUT"  envDefault:"15s"`
}

// Sanitize applies guardrails to hub configuration values.
func (c *HubConfig) Sanitize() {
	c.URL = strings.TrimSpace(c.URL)
	delays := c.ReconnectDelays[:0]
	for _, d := range c.ReconnectDelays {
		if d >= 0 {
			delays = append(delays, d)
		}
	}
	c.ReconnectDelays = delays
	// the server drops clients that stay silent for its timeout
	if c.ServerTimeout < 2*c.KeepAliveInterval {
		c.ServerTimeout = 2 * c.KeepAliveInterval
	}
}

// OAuthConfig configures optional OAuth2 client-credentials tokens for the jobs API
// and the hub. Tokens are only requested when TokenURL and ClientID are both set.
type OAuthConfig struct {
	TokenURL     string   `env:"TOKEN_URL"`
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	Scopes       []string `env:"SCOPES"`
}

// Sanitize trims values and drops blank scopes.
func (c *OAuthConfig) Sanitize() {
	c.TokenURL = strings.TrimSpace(c.TokenURL)
	c.ClientID = strings.TrimSpace(c.ClientID)
	scopes := c.Scopes[:0]
	for _, s := range c.Scopes {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	c.Scopes = scopes
}

// IsEnabled reports whether bearer tokens should be requested.
func (c *OAuthConfig) IsEnabled() bool {
	return c.TokenURL != "" && c.ClientID != ""
}

// PushSource selects the shared push transport feeding the registry.
type PushSource string

const (
	// PushSourceSignalR connects to the notifications hub directly.
	PushSourceSignalR PushSource = "signalr"
	// PushSourceRedis consumes events relayed over Redis pub/sub.
	PushSourceRedis PushSource = "redis"
	// PushSourceNone runs without push; subscriptions fall back to polling.
	PushSourceNone PushSource = "none"
)

// MonitorConfig configures the job registry and the specification watchers.
type MonitorConfig struct {
	Push PushSource `env:"PUSH" envDefault:"signalr"`

	// Mode and Fallback are the watchers' monitor settings: SignalR|Polling|Off and None|Polling.
	Mode     string `env:"MODE"     envDefault:"SignalR"`
	Fallback string `env:"FALLBACK" envDefault:"Polling"`

	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"10s"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`

	// MaxWatches caps concurrently watched specifications; zero means unlimited.
	MaxWatches int `env:"MAX_WATCHES" envDefault:"200"`
	// MaxSubscriptions caps subscriptions created over the HTTP API; zero means unlimited.
	MaxSubscriptions int `env:"MAX_SUBSCRIPTIONS" envDefault:"200"`

	// ErrorCapacity bounds the user-facing error list.
	ErrorCapacity int `env:"ERROR_CAPACITY" envDefault:"100"`
}

// Sanitize applies guardrails to monitor configuration values.
func (c *MonitorConfig) Sanitize() {
	c.Push = PushSource(strings.ToLower(strings.TrimSpace(string(c.Push))))
	if c.Push == "" {
		c.Push = PushSourceSignalR
	}
	if c.PollInterval < time.Second {
		c.PollInterval = time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.MaxWatches < 0 {
		c.MaxWatches = 0
	}
	if c.MaxSubscriptions < 0 {
		c.MaxSubscriptions = 0
	}
	if c.ErrorCapacity < 1 {
		c.ErrorCapacity = 1
	}
}
