package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/skillsfundingagency/cfs-jobwatch/config"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/adapters/jobsapi"
	redisadapter "github.com/skillsfundingagency/cfs-jobwatch/internal/adapters/redis"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/adapters/signalr"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
)

// errRedisRequired indicates a Redis-backed adapter was requested without a client.
var errRedisRequired = errors.New("redis client is required")

// NewTokenSource returns a client-credentials token source, or nil when OAuth is
// not configured. Tokens are cached and refreshed shortly before expiry.
//
//nolint:ireturn // oauth2.TokenSource is the type both HTTP adapters accept.
func NewTokenSource(cfg config.OAuthConfig) oauth2.TokenSource {
	if !cfg.IsEnabled() {
		return nil
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return cc.TokenSource(context.Background())
}

// NewJobsAPIClient builds the REST client backing polling and prior fetches.
func NewJobsAPIClient(cfg config.JobsAPIConfig, tokens oauth2.TokenSource, logger *slog.Logger) (*jobsapi.Client, error) {
	client, err := jobsapi.NewClient(jobsapi.Config{
		BaseURL:           cfg.BaseURL,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		TokenSource:       tokens,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create jobs api client: %w", err)
	}
	return client, nil
}

// NewHubClient builds a notifications hub client. Each consumer of raw hub events
// needs its own client because Connect binds a single handler.
func NewHubClient(cfg config.HubConfig, tokens oauth2.TokenSource, logger *slog.Logger) (*signalr.Client, error) {
	client, err := signalr.NewClient(signalr.Options{
		HubURL:            cfg.URL,
		TokenSource:       tokens,
		Logger:            logger,
		ReconnectDelays:   cfg.ReconnectDelays,
		KeepAliveInterval: cfg.KeepAliveInterval,
		ServerTimeout:     cfg.ServerTimeout,
		HandshakeTimeout:  cfg.HandshakeTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create hub client: %w", err)
	}
	return client, nil
}

// NewJobEventRelay builds the Redis pub/sub relay used both to consume and to
// publish job events.
func NewJobEventRelay(client redis.UniversalClient, cfg config.RelayConfig, logger *slog.Logger) (*redisadapter.JobEventRelay, error) {
	if client == nil {
		return nil, errRedisRequired
	}
	relay, err := redisadapter.NewJobEventRelay(redisadapter.JobEventRelayOptions{
		Client: client,
		Prefix: cfg.ChannelPrefix,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis job relay: %w", err)
	}
	return relay, nil
}

// PushDeps groups what the push transport selection may need.
type PushDeps struct {
	Config *config.AppConfig
	Redis  redis.UniversalClient
	Logger *slog.Logger
}

// NewPushTransport selects the registry's shared push transport from
// MONITOR_PUSH. It returns nil for PushSourceNone, in which case push
// subscriptions degrade to their fallback.
//
//nolint:ireturn // the concrete transport is chosen at runtime.
func NewPushTransport(deps PushDeps, tokens oauth2.TokenSource) (core.PushTransport, error) {
	if deps.Config == nil {
		return nil, errors.New("push transport config is required")
	}
	switch deps.Config.Monitor.Push {
	case config.PushSourceSignalR:
		hub, err := NewHubClient(deps.Config.Hub, tokens, deps.Logger)
		if err != nil {
			return nil, err
		}
		return hub, nil
	case config.PushSourceRedis:
		relay, err := NewJobEventRelay(deps.Redis, deps.Config.Relay, deps.Logger)
		if err != nil {
			return nil, err
		}
		return relay, nil
	case config.PushSourceNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown push source %q", deps.Config.Monitor.Push)
	}
}
