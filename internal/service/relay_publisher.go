package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/observability/metrics"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/observability/statsd"
)

const (
	defaultRelayQueueSize      = 1024
	defaultRelayPublishTimeout = 5 * time.Second
)

// RelayPublisherConfig tunes the relay.
type RelayPublisherConfig struct {
	Logger         *slog.Logger
	Metrics        statsd.Sink
	QueueSize      int
	PublishTimeout time.Duration
}

// RelayPublisherOptions configure a RelayPublisher.
type RelayPublisherOptions struct {
	Source    core.PushTransport     // Required: upstream connection, usually the notifications hub
	Publisher core.JobEventPublisher // Required
	Config    RelayPublisherConfig
}

// RelayPublisher bridges every job event from an upstream push transport to a
// publisher, so other jobwatch instances can consume events without their own
// upstream connection.
type RelayPublisher struct {
	source    core.PushTransport
	publisher core.JobEventPublisher
	logger    *slog.Logger
	metrics   statsd.Sink
	timeout   time.Duration
	queue     chan json.RawMessage
}

var _ core.PushHandler = (*RelayPublisher)(nil)

// NewRelayPublisher constructs a RelayPublisher.
func NewRelayPublisher(opts RelayPublisherOptions) *RelayPublisher {
	if opts.Source == nil {
		panic("PushTransport source is required")
	}
	if opts.Publisher == nil {
		panic("JobEventPublisher is required")
	}
	cfg := opts.Config
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultRelayQueueSize
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultRelayPublishTimeout
	}
	return &RelayPublisher{
		source:    opts.Source,
		publisher: opts.Publisher,
		logger:    logger.With("component", "relay_publisher"),
		metrics:   cfg.Metrics,
		timeout:   timeout,
		queue:     make(chan json.RawMessage, size),
	}
}

// Run connects the source, watches every job and forwards events until ctx is
// cancelled. An initial connection failure is logged; the source keeps retrying.
func (p *RelayPublisher) Run(ctx context.Context) error {
	if err := p.source.Connect(ctx, p); err != nil {
		p.logger.WarnContext(ctx, "relay source not connected yet", "error", err)
	}
	defer func() {
		if err := p.source.Close(); err != nil {
			p.logger.Warn("close relay source", "error", err)
		}
	}()
	if err := p.source.Watch(ctx, model.JobMonitoringFilter{}); err != nil {
		p.logger.WarnContext(ctx, "watch all job events", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload := <-p.queue:
			p.forward(ctx, payload)
		}
	}
}

// HandleJobMessage queues one payload for publishing. It never blocks.
func (p *RelayPublisher) HandleJobMessage(payload json.RawMessage) {
	select {
	case p.queue <- payload:
	default:
		p.logger.Warn("relay queue full; dropping job event")
		p.count("dropped")
	}
}

// HandleConnectionState logs source connection changes.
func (p *RelayPublisher) HandleConnectionState(state core.ConnectionState, err error) {
	connected := 0
	if state == core.ConnectionConnected {
		connected = 1
	}
	metrics.EmitGauge(p.metrics, "jobwatch.relay.connected", connected, nil)
	if err != nil {
		p.logger.Warn("relay source connection changed", "state", state, "error", err)
		return
	}
	p.logger.Info("relay source connection changed", "state", state)
}

func (p *RelayPublisher) forward(ctx context.Context, payload json.RawMessage) {
	var summary model.JobSummary
	if err := json.Unmarshal(payload, &summary); err != nil || summary.JobID == "" {
		if err == nil {
			err = errors.New("job event has no jobId")
		}
		p.logger.WarnContext(ctx, "dropping malformed job event", "error", err)
		p.count(metrics.ResultMalformed)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.publisher.Publish(ctx, summary); err != nil {
		p.logger.WarnContext(ctx, "publish job event", "job_id", summary.JobID, "error", err)
		p.count(metrics.ResultError)
		return
	}
	p.count(metrics.ResultSuccess)
}

func (p *RelayPublisher) count(result string) {
	if p.metrics != nil {
		p.metrics.Count("jobwatch.relay.event", 1, map[string]string{"result": result})
	}
}
