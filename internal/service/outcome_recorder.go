package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/job"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/observability/metrics"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/observability/notify"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/observability/statsd"
)

const (
	defaultOutcomeQueueSize    = 256
	defaultOutcomeClaimTTL     = 10 * time.Minute
	defaultOutcomeWriteTimeout = 10 * time.Second
)

// ErrRecorderRunning is returned when Run is called on a recorder that is already running.
var ErrRecorderRunning = errors.New("outcome recorder is already running")

// FailureNotifier delivers alerts for jobs that did not succeed.
type FailureNotifier interface {
	NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload)
	Enabled() bool
}

// OutcomeStores groups the recorder's persistence collaborators.
type OutcomeStores struct {
	Outcomes core.OutcomeRepository // Required
	// Claims, when set, lets several jobwatch instances share the work: only the
	// instance that claims a job id records and alerts on it.
	Claims core.ClaimStore
	Alerts FailureNotifier
}

// OutcomeRecorderConfig tunes the recorder.
type OutcomeRecorderConfig struct {
	Logger       *slog.Logger
	Metrics      statsd.Sink
	Monitor      MonitorSettings
	QueueSize    int
	ClaimTTL     time.Duration
	WriteTimeout time.Duration
}

// OutcomeRecorderOptions configure an OutcomeRecorder.
type OutcomeRecorderOptions struct {
	Registry *job.Registry // Required
	Stores   OutcomeStores
	Config   OutcomeRecorderConfig
}

// OutcomeRecorder subscribes to every known job type and persists each completed
// job once. Failed jobs that were newly recorded raise an alert.
type OutcomeRecorder struct {
	reg     *job.Registry
	stores  OutcomeStores
	logger  *slog.Logger
	metrics statsd.Sink
	monitor MonitorSettings

	claimTTL     time.Duration
	writeTimeout time.Duration

	handled *handledJobs
	queue   chan *model.JobDetails

	mu      sync.Mutex
	running bool
}

// NewOutcomeRecorder constructs an OutcomeRecorder.
func NewOutcomeRecorder(opts OutcomeRecorderOptions) *OutcomeRecorder {
	if opts.Registry == nil {
		panic("job registry is required")
	}
	if opts.Stores.Outcomes == nil {
		panic("OutcomeRepository is required")
	}

	cfg := opts.Config
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultOutcomeQueueSize
	}
	ttl := cfg.ClaimTTL
	if ttl <= 0 {
		ttl = defaultOutcomeClaimTTL
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultOutcomeWriteTimeout
	}

	return &OutcomeRecorder{
		reg:          opts.Registry,
		stores:       opts.Stores,
		logger:       logger.With("component", "outcome_recorder"),
		metrics:      cfg.Metrics,
		monitor:      cfg.Monitor.withDefaults(),
		claimTTL:     ttl,
		writeTimeout: timeout,
		handled:      newHandledJobs(0),
		queue:        make(chan *model.JobDetails, size),
	}
}

// Run subscribes to job notifications and records outcomes until ctx is cancelled.
func (r *OutcomeRecorder) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrRecorderRunning
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	h := r.reg.Open(job.HandleOptions{Name: "outcome_recorder", OnNewNotification: r.onNotification})
	defer h.Close()

	// one subscription per type avoids a match-everything filter
	for _, t := range model.AllJobTypes() {
		_, err := h.AddSub(ctx, job.AddSubscriptionRequest{
			FilterBy:        model.JobMonitoringFilter{JobTypes: []model.JobType{t}},
			MonitorMode:     r.monitor.Mode,
			MonitorFallback: r.monitor.Fallback,
			OnError: func(err error) {
				r.logger.Warn("outcome monitoring error", "job_type", t, "error", err)
			},
		})
		if err != nil {
			return fmt.Errorf("subscribe to %s outcomes: %w", t, err)
		}
	}
	r.logger.InfoContext(ctx, "outcome recorder started", "job_types", len(model.AllJobTypes()))

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "outcome recorder stopped")
			return nil
		case j := <-r.queue:
			r.process(ctx, j)
		}
	}
}

func (r *OutcomeRecorder) onNotification(n job.JobNotification) {
	j := n.LatestJob
	if j == nil || !j.IsComplete() || !r.handled.markFirst(j.JobID) {
		return
	}
	select {
	case r.queue <- j:
	default:
		// let a later redelivery try again
		r.handled.forget(j.JobID)
		r.logger.Warn("outcome queue full; dropping job", "job_id", j.JobID)
		r.emit("dropped", j)
	}
}

func (r *OutcomeRecorder) process(ctx context.Context, j *model.JobDetails) {
	ctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()
	log := r.logger.With("job_id", j.JobID, "job_type", j.JobType)

	claimKey := "outcome:" + j.JobID
	if r.stores.Claims != nil {
		claimed, err := r.stores.Claims.Claim(ctx, claimKey, r.claimTTL)
		if err != nil {
			r.handled.forget(j.JobID)
			log.ErrorContext(ctx, "claim job outcome", "error", err)
			r.emit(metrics.ResultError, j)
			return
		}
		if !claimed {
			log.DebugContext(ctx, "job outcome claimed by another instance")
			r.emit("claimed_elsewhere", j)
			return
		}
	}

	inserted, err := r.stores.Outcomes.Record(ctx, model.NewJobOutcome(j))
	if err != nil {
		r.handled.forget(j.JobID)
		log.ErrorContext(ctx, "record job outcome", "error", err)
		r.emit(metrics.ResultError, j)
		r.releaseClaim(claimKey, log)
		return
	}
	if !inserted {
		r.emit("duplicate", j)
		return
	}

	log.InfoContext(ctx, "job outcome recorded",
		"specification_id", j.SpecificationID,
		"completion_status", j.CompletionStatus,
	)
	r.emit("recorded", j)

	if j.IsFailed() && r.stores.Alerts != nil && r.stores.Alerts.Enabled() {
		r.stores.Alerts.NotifyJobFailure(ctx, notify.FailurePayload(j))
	}
}

// releaseClaim drops this instance's claim so a redelivery can retry the write. It
// uses a fresh context because the write context may already be spent.
func (r *OutcomeRecorder) releaseClaim(key string, log *slog.Logger) {
	if r.stores.Claims == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()
	if _, err := r.stores.Claims.Release(ctx, key); err != nil {
		log.WarnContext(ctx, "release job outcome claim", "error", err)
	}
}

func (r *OutcomeRecorder) emit(result string, j *model.JobDetails) {
	if r.metrics == nil {
		return
	}
	r.metrics.Count("jobwatch.outcome", 1, map[string]string{
		"result":            result,
		"job_type":          string(j.JobType),
		"completion_status": string(j.CompletionStatus),
	})
}
