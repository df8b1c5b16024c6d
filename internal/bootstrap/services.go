package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/skillsfundingagency/cfs-jobwatch/config"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/data"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/job"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/observability/notify/pagerduty"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/observability/notify/slack"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/observability/statsd"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/service"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Registry *job.Registry
	Errors   *service.ErrorContext
	Watches  *service.WatchService
	// Outcomes is nil when the outcome store is disabled.
	Outcomes      core.OutcomeRepository
	Recorder      *service.OutcomeRecorder
	Relay         *service.RelayPublisher
	Observability ObservabilityContainer
}

// Close stops the watchers, then the registry and its push transport, then the
// metrics sink. It is safe to call on a partially built container.
func (c ServiceContainer) Close() error {
	if c.Watches != nil {
		c.Watches.Close()
	}
	var errs []error
	if c.Registry != nil {
		if err := c.Registry.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close job registry: %w", err))
		}
	}
	if c.Observability.MetricsSink != nil {
		if err := c.Observability.MetricsSink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close statsd client: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// Sink returns the metrics sink tagged with tags, or nil when metrics are disabled.
//
//nolint:ireturn // statsd.Sink is the port every metrics consumer accepts.
func (o ObservabilityContainer) Sink(tags map[string]string) statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return statsd.WithTags(o.MetricsSink, tags)
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:    true,
			Address:    cfg.Metrics.StatsdAddress,
			Prefix:     cfg.Metrics.Prefix,
			Logger:     obsLogger,
			GlobalTags: cfg.Metrics.GlobalTags(),
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{Logger: baseLogger})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:             cfg.Slack.WebhookURL,
			Channel:                cfg.Slack.Channel,
			Username:               cfg.Slack.Username,
			Timeout:                cfg.Timeout,
			RetryLimit:             cfg.RetryLimit,
			SpecificationURLPrefix: cfg.Slack.SpecificationURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Endpoint:   cfg.PagerDuty.Endpoint,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	if len(sinks) == 0 {
		baseLogger.Warn("failure notifications enabled but no sinks configured")
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:          baseLogger,
		Sinks:           sinks,
		IncludeWarnings: cfg.IncludeWarnings,
	})
}

// monitorSettings converts the configured watcher monitor settings.
func monitorSettings(cfg config.MonitorConfig) (service.MonitorSettings, error) {
	settings := service.MonitorSettings{
		Mode:     job.MonitorMode(cfg.Mode),
		Fallback: job.MonitorFallback(cfg.Fallback),
	}
	if settings.Mode != "" && !settings.Mode.Valid() {
		return settings, fmt.Errorf("invalid MONITOR_MODE %q", cfg.Mode)
	}
	if settings.Fallback != "" && !settings.Fallback.Valid() {
		return settings, fmt.Errorf("invalid MONITOR_FALLBACK %q", cfg.Fallback)
	}
	return settings, nil
}

// NewServices builds the registry, its transports and every consumer enabled by
// the configuration. On error, anything already built is closed.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	monitor, err := monitorSettings(cfg.Monitor)
	if err != nil {
		return ServiceContainer{}, err
	}

	c := ServiceContainer{Observability: buildObservability(logger, cfg.Observability)}
	tokens := NewTokenSource(cfg.OAuth)

	jobs, err := NewJobsAPIClient(cfg.JobsAPI, tokens, logger)
	if err != nil {
		return c, errors.Join(err, c.Close())
	}
	push, err := NewPushTransport(PushDeps{Config: cfg, Redis: deps.RedisClient, Logger: logger}, tokens)
	if err != nil {
		return c, errors.Join(err, c.Close())
	}

	c.Registry, err = job.NewRegistry(job.RegistryOptions{
		Fetcher:      jobs,
		Push:         push,
		Logger:       logger,
		Metrics:      c.Observability.Sink(nil),
		PollInterval: cfg.Monitor.PollInterval,
		FetchTimeout: cfg.Monitor.FetchTimeout,
		OnError: func(err error) {
			logger.Warn("job registry error", "error", err)
		},
	})
	if err != nil {
		return c, errors.Join(fmt.Errorf("create job registry: %w", err), c.Close())
	}

	c.Errors = service.NewErrorContext(service.ErrorContextOptions{
		Capacity: cfg.Monitor.ErrorCapacity,
		Logger:   logger,
	})
	c.Watches = service.NewWatchService(service.WatchServiceOptions{
		Watchers: service.WatcherOptions{
			Registry: c.Registry,
			Ports: service.WatcherPorts{
				Errors:         c.Errors,
				PublishedDates: jobs,
				Logger:         logger,
			},
			Monitor: monitor,
		},
		MaxWatches: cfg.Monitor.MaxWatches,
	})

	if deps.DB != nil {
		c.Outcomes = data.NewJobOutcomeRepo(deps.DB)
	}

	if cfg.IsOutcomeRecorderEnabled() {
		if c.Outcomes == nil {
			return c, errors.Join(errors.New("outcome recorder requires the outcome store"), c.Close())
		}
		c.Recorder = newOutcomeRecorder(c, cfg, deps.RedisClient, monitor, logger)
	}

	if cfg.IsRelayPublisherEnabled() {
		c.Relay, err = newRelayPublisher(c, cfg, deps.RedisClient, tokens, logger)
		if err != nil {
			return c, errors.Join(err, c.Close())
		}
	}

	return c, nil
}

func newOutcomeRecorder(
	c ServiceContainer,
	cfg *config.AppConfig,
	client redis.UniversalClient,
	monitor service.MonitorSettings,
	logger *slog.Logger,
) *service.OutcomeRecorder {
	stores := service.OutcomeStores{
		Outcomes: c.Outcomes,
		Alerts:   c.Observability.FailureNotifier,
	}
	if cfg.Recorder.UseClaims && client != nil {
		stores.Claims = data.NewRedisClaimRepo(client)
	}
	return service.NewOutcomeRecorder(service.OutcomeRecorderOptions{
		Registry: c.Registry,
		Stores:   stores,
		Config: service.OutcomeRecorderConfig{
			Logger:       logger,
			Metrics:      c.Observability.Sink(map[string]string{"service": string(config.ServiceModeOutcomeRecorder)}),
			Monitor:      monitor,
			QueueSize:    cfg.Recorder.QueueSize,
			ClaimTTL:     cfg.Recorder.ClaimTTL,
			WriteTimeout: cfg.Recorder.WriteTimeout,
		},
	})
}

// newRelayPublisher bridges a dedicated hub connection to Redis. It never goes
// through the registry.
func newRelayPublisher(
	c ServiceContainer,
	cfg *config.AppConfig,
	client redis.UniversalClient,
	tokens oauth2.TokenSource,
	logger *slog.Logger,
) (*service.RelayPublisher, error) {
	hub, err := NewHubClient(cfg.Hub, tokens, logger)
	if err != nil {
		return nil, err
	}
	relay, err := NewJobEventRelay(client, cfg.Relay, logger)
	if err != nil {
		return nil, err
	}
	return service.NewRelayPublisher(service.RelayPublisherOptions{
		Source:    hub,
		Publisher: relay,
		Config: service.RelayPublisherConfig{
			Logger:         logger,
			Metrics:        c.Observability.Sink(map[string]string{"service": string(config.ServiceModeRelayPublisher)}),
			QueueSize:      cfg.Relay.QueueSize,
			PublishTimeout: cfg.Relay.PublishTimeout,
		},
	}), nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
		ErrCh:    deps.errCh,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newOutcomeRecorderBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeOutcomeRecorder,
		name: "outcome recorder",
		start: func(ctx context.Context) error {
			recorder := deps.cfg.Services.Recorder
			if recorder == nil {
				return errors.New("outcome recorder not configured")
			}
			return recorder.Run(ctx)
		},
	}
}

func newRelayPublisherBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeRelayPublisher,
		name: "relay publisher",
		start: func(ctx context.Context) error {
			relay := deps.cfg.Services.Relay
			if relay == nil {
				return errors.New("relay publisher not configured")
			}
			return relay.Run(ctx)
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil || deps.cfg == nil {
		return nil
	}
	return []backgroundService{
		newOutcomeRecorderBackgroundService(deps),
		newRelayPublisherBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails,
// and closes the service container before returning.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	runErr := waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		httpConfig:  cfg.Config.HTTP,
		logger:      logger,
		backgrounds: result.Background,
	})
	if closeErr := cfg.Services.Close(); closeErr != nil {
		logger.Error("close services failed", "error", closeErr)
	}
	return runErr
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	httpConfig  config.HTTPConfig
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		if err := ShutdownHTTPServer(ShutdownConfig{
			Server:  cfg.httpServer,
			Timeout: cfg.httpConfig.ShutdownTimeout,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
