// Package redis provides Redis-based adapters for jobwatch.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	apperrors "github.com/skillsfundingagency/cfs-jobwatch/internal/errors"
)

// DefaultChannelPrefix namespaces job event channels.
const DefaultChannelPrefix = "cfs:jobs:"

const (
	defaultReceiveTimeout = 30 * time.Second
	defaultRetryDelay     = time.Second
	maxRetryDelay         = 30 * time.Second
)

// ErrClientRequired indicates the relay was built without a Redis client.
var ErrClientRequired = errors.New("redis client is required")

// JobEventRelayOptions configure a JobEventRelay.
type JobEventRelayOptions struct {
	Client redis.UniversalClient
	// Prefix defaults to DefaultChannelPrefix.
	Prefix string
	Logger *slog.Logger
	// ReceiveTimeout bounds each blocking read; an idle connection is pinged after it.
	ReceiveTimeout time.Duration
	// RetryDelay is the first wait between connection attempts; it doubles up to 30s.
	RetryDelay time.Duration
}

// JobEventRelay carries job status events over Redis pub/sub. It is a
// core.PushTransport for consumers and offers Publish for producers, so several
// jobwatch instances can share one upstream hub connection.
//
// Channels: {prefix}all, {prefix}specification:{id}, {prefix}job:{id}.
type JobEventRelay struct {
	client         redis.UniversalClient
	prefix         string
	logger         *slog.Logger
	receiveTimeout time.Duration
	retryDelay     time.Duration

	mu       sync.Mutex
	handler  core.PushHandler
	channels map[string]int
	pubsub   *redis.PubSub
	cancel   context.CancelFunc
	done     chan struct{}
}

var (
	_ core.PushTransport     = (*JobEventRelay)(nil)
	_ core.JobEventPublisher = (*JobEventRelay)(nil)
)

// NewJobEventRelay creates a relay over client.
func NewJobEventRelay(opts JobEventRelayOptions) (*JobEventRelay, error) {
	if opts.Client == nil {
		return nil, ErrClientRequired
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.ReceiveTimeout
	if timeout <= 0 {
		timeout = defaultReceiveTimeout
	}
	retry := opts.RetryDelay
	if retry <= 0 {
		retry = defaultRetryDelay
	}
	return &JobEventRelay{
		client:         opts.Client,
		prefix:         prefix,
		logger:         logger.With("component", "redis_job_relay"),
		receiveTimeout: timeout,
		retryDelay:     retry,
		channels:       make(map[string]int),
	}, nil
}

// Connect pings Redis, subscribes to every watched channel and starts the
// receive loop. When Redis is unreachable it returns the error and keeps
// retrying in the background, reporting Connected once a subscription is up.
// Calling it again only replaces the handler.
func (r *JobEventRelay) Connect(ctx context.Context, handler core.PushHandler) error {
	r.mu.Lock()
	r.handler = handler
	if r.cancel != nil {
		r.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	handler.HandleConnectionState(core.ConnectionConnecting, nil)
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.logger.WarnContext(ctx, "redis unavailable; retrying in background", "error", err)
		go r.run(runCtx, done, nil)
		return apperrors.Transport(err, 0, "ping redis")
	}

	ps := r.subscribe(runCtx)
	go r.run(runCtx, done, ps)
	if ps != nil {
		r.report(core.ConnectionConnected, nil)
	}
	return nil
}

// Watch subscribes to the channel covering filter.
func (r *JobEventRelay) Watch(ctx context.Context, filter model.JobMonitoringFilter) error {
	ch := r.channelFor(filter)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch]++
	if r.channels[ch] > 1 || r.pubsub == nil {
		return nil
	}
	if err := r.pubsub.Subscribe(ctx, ch); err != nil {
		return apperrors.Transport(err, 0, "subscribe %s", ch)
	}
	return nil
}

// Unwatch releases the channel covering filter.
func (r *JobEventRelay) Unwatch(ctx context.Context, filter model.JobMonitoringFilter) error {
	ch := r.channelFor(filter)

	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.channels[ch]
	if !ok {
		return nil
	}
	if n > 1 {
		r.channels[ch] = n - 1
		return nil
	}
	delete(r.channels, ch)
	if r.pubsub == nil {
		return nil
	}
	if err := r.pubsub.Unsubscribe(ctx, ch); err != nil {
		return apperrors.Transport(err, 0, "unsubscribe %s", ch)
	}
	return nil
}

// Close stops receiving, abandons any pending reconnect and forgets every
// watched channel.
func (r *JobEventRelay) Close() error {
	r.mu.Lock()
	ps, cancel, done, handler := r.pubsub, r.cancel, r.done, r.handler
	r.pubsub = nil
	r.cancel = nil
	r.channels = make(map[string]int)
	if cancel != nil {
		cancel()
	}
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	var err error
	if ps != nil {
		err = ps.Close()
	}
	<-done
	if handler != nil {
		handler.HandleConnectionState(core.ConnectionDisconnected, nil)
	}
	if err != nil {
		return fmt.Errorf("close redis pubsub: %w", err)
	}
	return nil
}

// Publish sends job to every channel a watcher of it could be subscribed to.
func (r *JobEventRelay) Publish(ctx context.Context, job model.JobSummary) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}

	channels := []string{r.prefix + "all"}
	if job.SpecificationID != "" {
		channels = append(channels, r.prefix+"specification:"+job.SpecificationID)
	}
	if job.JobID != "" {
		channels = append(channels, r.prefix+"job:"+job.JobID)
	}
	if job.ParentJobID != "" {
		channels = append(channels, r.prefix+"job:"+job.ParentJobID)
	}

	pipe := r.client.Pipeline()
	for _, ch := range channels {
		pipe.Publish(ctx, ch, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.Transport(err, 0, "publish job %s", job.JobID)
	}
	return nil
}

// run owns the relay's connection until ctx ends. A nil ps means Redis was
// unreachable at Connect and the subscription still has to be established.
func (r *JobEventRelay) run(ctx context.Context, done chan struct{}, ps *redis.PubSub) {
	defer close(done)
	if ps == nil {
		if ps = r.establish(ctx); ps == nil {
			return
		}
	}
	r.receive(ctx, ps)
}

// establish retries Ping and Subscribe with exponential backoff.
func (r *JobEventRelay) establish(ctx context.Context) *redis.PubSub {
	delay := r.retryDelay
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		if err := r.client.Ping(ctx).Err(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.DebugContext(ctx, "redis still unavailable", "attempt", attempt, "error", err)
			delay = min(delay*2, maxRetryDelay)
			continue
		}
		ps := r.subscribe(ctx)
		if ps == nil {
			return nil
		}
		r.logger.InfoContext(ctx, "redis job relay connected", "attempts", attempt)
		r.report(core.ConnectionConnected, nil)
		return ps
	}
}

// subscribe opens the pub/sub connection on every watched channel. It returns
// nil once the relay has been closed.
func (r *JobEventRelay) subscribe(ctx context.Context) *redis.PubSub {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx.Err() != nil {
		return nil
	}
	ps := r.client.Subscribe(ctx, r.channelListLocked()...)
	r.pubsub = ps
	return ps
}

func (r *JobEventRelay) receive(ctx context.Context, ps *redis.PubSub) {
	healthy := true
	for {
		msg, err := ps.ReceiveTimeout(ctx, r.receiveTimeout)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if pingErr := ps.Ping(ctx); pingErr == nil {
					continue
				}
			}
			if errors.Is(err, redis.ErrClosed) {
				return
			}
			if healthy {
				healthy = false
				r.logger.WarnContext(ctx, "redis job relay connection lost", "error", err)
				r.report(core.ConnectionReconnecting, err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.retryDelay):
			}
			continue
		}

		if !healthy {
			healthy = true
			r.logger.InfoContext(ctx, "redis job relay connection restored")
			r.report(core.ConnectionConnected, nil)
		}

		if m, ok := msg.(*redis.Message); ok {
			r.dispatch(json.RawMessage(m.Payload))
		}
	}
}

func (r *JobEventRelay) dispatch(payload json.RawMessage) {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h != nil {
		h.HandleJobMessage(payload)
	}
}

func (r *JobEventRelay) report(state core.ConnectionState, err error) {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h != nil {
		h.HandleConnectionState(state, err)
	}
}

func (r *JobEventRelay) channelFor(f model.JobMonitoringFilter) string {
	if id := strings.TrimSpace(f.JobID); id != "" {
		return r.prefix + "job:" + id
	}
	if id := strings.TrimSpace(f.SpecificationID); id != "" {
		return r.prefix + "specification:" + id
	}
	return r.prefix + "all"
}

func (r *JobEventRelay) channelListLocked() []string {
	out := make([]string, 0, len(r.channels))
	for ch := range r.channels {
		out = append(out, ch)
	}
	return out
}
