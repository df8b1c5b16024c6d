package job

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/observability/statsd"
)

var (
	// ErrFetcherRequired indicates a registry cannot be constructed without a job status fetcher.
	ErrFetcherRequired = errors.New("registry job status fetcher is required")
	// ErrRegistryClosed is returned by operations on a closed registry.
	ErrRegistryClosed = errors.New("job registry is closed")
	// ErrHandleClosed is returned by AddSub on a closed handle.
	ErrHandleClosed = errors.New("registry handle is closed")

	errNoPushTransport = errors.New("no push transport configured")
	errPushUnavailable = errors.New("push connection is not established")
)

const (
	defaultPollInterval = 10 * time.Second
	defaultFetchTimeout = 30 * time.Second
)

// RegistryOptions configure a Registry.
type RegistryOptions struct {
	Fetcher      core.JobStatusFetcher
	Push         core.PushTransport // optional; push subscriptions degrade immediately without it
	Logger       *slog.Logger
	Metrics      statsd.Sink
	PollInterval time.Duration
	FetchTimeout time.Duration
	// OnError receives errors that belong to no single subscription: malformed
	// events and panicking callbacks.
	OnError func(error)
	Now     func() time.Time
}

// Registry owns every job subscription, the shared push connection, and the
// coalesced pollers. Events from all transports are reconciled one at a time by a
// single dispatcher goroutine, so notification callbacks never run concurrently.
//
// Callbacks may call AddSub, RemoveSub and friends, but must not call Flush or Close.
type Registry struct {
	fetcher      core.JobStatusFetcher
	push         core.PushTransport
	logger       *slog.Logger
	metrics      statsd.Sink
	pollInterval time.Duration
	fetchTimeout time.Duration
	onError      func(error)
	now          func() time.Time

	queue  *eventQueue
	flight singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// pushMu serialises Connect, Watch, Unwatch and Close on the push transport.
	pushMu sync.Mutex

	mu       sync.Mutex
	subs     []*subscription
	handles  map[*Handle]struct{}
	pollers  map[string]*poller
	pushOpen bool
	pushUp   bool
	closed   bool
}

// NewRegistry constructs a registry and starts its dispatcher.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Fetcher == nil {
		return nil, ErrFetcherRequired
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		fetcher:      opts.Fetcher,
		push:         opts.Push,
		logger:       logger.With("component", "job_registry"),
		metrics:      opts.Metrics,
		pollInterval: pollInterval,
		fetchTimeout: fetchTimeout,
		onError:      opts.OnError,
		now:          now,
		queue:        newEventQueue(),
		ctx:          ctx,
		cancel:       cancel,
		handles:      make(map[*Handle]struct{}),
		pollers:      make(map[string]*poller),
	}

	r.wg.Add(1)
	go r.run()
	return r, nil
}

// MustNewRegistry constructs a registry and panics on error.
func MustNewRegistry(opts RegistryOptions) *Registry {
	r, err := NewRegistry(opts)
	if err != nil {
		panic(err)
	}
	return r
}

// HandleOptions configure a consumer handle.
type HandleOptions struct {
	// Name identifies the consumer in logs.
	Name string
	// OnNewNotification fires once per changed subscription of this handle, in
	// subscription insertion order.
	OnNewNotification func(JobNotification)
}

// Handle is one consumer's view of the registry. Subscriptions added through a
// handle are owned by it and removed with it.
type Handle struct {
	reg  *Registry
	name string

	// guarded by reg.mu
	onNew  func(JobNotification)
	closed bool
}

// Open registers a new consumer handle.
func (r *Registry) Open(opts HandleOptions) *Handle {
	h := &Handle{reg: r, name: opts.Name, onNew: opts.OnNewNotification}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		h.closed = true
		h.onNew = nil
		return h
	}
	r.handles[h] = struct{}{}
	return h
}

// Name returns the consumer name given at Open.
func (h *Handle) Name() string { return h.name }

// AddSub registers a subscription and starts feeding it. Push subscriptions lazily
// connect the shared push transport; Polling subscriptions attach to a poller shared
// by every subscription with the same filter. With FetchPriorNotifications the
// current job state is fetched and queued before AddSub returns; a failed prior
// fetch is reported to OnError and does not fail the call.
func (h *Handle) AddSub(ctx context.Context, req AddSubscriptionRequest) (JobSubscription, error) {
	if err := req.Validate(); err != nil {
		return JobSubscription{}, err
	}
	r := h.reg

	filter := req.FilterBy
	filter.JobTypes = slices.Clone(filter.JobTypes)
	s := &subscription{
		id:           uuid.NewString(),
		handle:       h,
		filter:       filter,
		fetchPrior:   req.FetchPriorNotifications,
		fallback:     req.MonitorFallback,
		enabled:      !req.Disabled,
		onError:      req.OnError,
		onDisconnect: req.OnDisconnect,
		startDate:    r.now().UTC(),
		state:        InitialMonitorState(req.MonitorMode, req.MonitorFallback),
		alive:        true,
	}

	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return JobSubscription{}, ErrRegistryClosed
	case h.closed:
		r.mu.Unlock()
		return JobSubscription{}, ErrHandleClosed
	}
	r.subs = append(r.subs, s)
	if s.state.NeedsPoller() {
		r.attachPollerLocked(s)
	}
	r.mu.Unlock()

	log := r.logger.With("handle", h.name, "subscription_id", s.id)
	if filter.IsUnconstrained() {
		log.WarnContext(ctx, "subscription filter matches every job")
	}

	if s.state.Mode == MonitorModeSignalR {
		r.startPush(ctx, s)
	}
	if s.fetchPrior {
		r.fetchPrior(ctx, s)
	}

	log.DebugContext(ctx, "subscription added",
		"filter", filter.Key(),
		"monitor_mode", s.state.Mode,
		"monitor_fallback", s.fallback,
	)

	r.mu.Lock()
	defer r.mu.Unlock()
	return s.snapshot(), nil
}

// RemoveSub unregisters one of the handle's subscriptions. Unknown ids are ignored.
func (h *Handle) RemoveSub(id string) {
	r := h.reg
	r.mu.Lock()
	idx := slices.IndexFunc(r.subs, func(s *subscription) bool { return s.id == id && s.handle == h })
	if idx < 0 {
		r.mu.Unlock()
		return
	}
	rel := r.removeLocked([]*subscription{r.subs[idx]})
	r.mu.Unlock()

	r.release(rel)
	r.logger.Debug("subscription removed", "handle", h.name, "subscription_id", id)
}

// RemoveAllSubs unregisters every subscription owned by the handle.
func (h *Handle) RemoveAllSubs() {
	r := h.reg
	r.mu.Lock()
	var owned []*subscription
	for _, s := range r.subs {
		if s.handle == h {
			owned = append(owned, s)
		}
	}
	if len(owned) == 0 {
		r.mu.Unlock()
		return
	}
	rel := r.removeLocked(owned)
	r.mu.Unlock()

	r.release(rel)
	r.logger.Debug("subscriptions removed", "handle", h.name, "count", len(owned))
}

// Close removes every subscription of the handle and detaches its callback.
func (h *Handle) Close() {
	h.RemoveAllSubs()

	r := h.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	h.closed = true
	h.onNew = nil
	delete(r.handles, h)
}

// SetEnabled toggles whether a subscription receives events. It reports whether the
// subscription was found.
func (h *Handle) SetEnabled(id string, enabled bool) bool {
	r := h.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.id == id && s.handle == h {
			s.enabled = enabled
			return true
		}
	}
	return false
}

// Results returns one notification per live subscription of the handle, in insertion order.
func (h *Handle) Results() []JobNotification {
	return h.reg.results(h)
}

// Results returns one notification per live subscription, in insertion order.
func (r *Registry) Results() []JobNotification {
	return r.results(nil)
}

func (r *Registry) results(owner *Handle) []JobNotification {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]JobNotification, 0, len(r.subs))
	for _, s := range r.subs {
		if owner != nil && s.handle != owner {
			continue
		}
		out = append(out, s.notification())
	}
	return out
}

// Ingest queues a raw job status record for reconciliation. It never blocks.
func (r *Registry) Ingest(summary model.JobSummary) {
	r.queue.push(jobEvent{summary: summary, source: sourceIngest})
}

// IngestRaw queues an undecoded job status payload. Malformed payloads are dropped
// and reported through OnError.
func (r *Registry) IngestRaw(payload []byte) {
	r.queue.push(jobEvent{raw: slices.Clone(payload), source: sourceIngest})
}

// Flush waits until everything queued before the call has been processed.
func (r *Registry) Flush(ctx context.Context) error {
	b := make(barrier)
	r.queue.push(b)
	select {
	case <-b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return ErrRegistryClosed
	}
}

// Closed reports whether Close has been called.
func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close stops the dispatcher, every poller and the push transport. Subscriptions
// are dropped without further notifications.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for key, p := range r.pollers {
		p.cancel()
		delete(r.pollers, key)
	}
	for _, s := range r.subs {
		s.alive = false
	}
	r.subs = nil
	for h := range r.handles {
		h.closed = true
		h.onNew = nil
	}
	closePush := r.pushOpen
	r.pushOpen = false
	r.pushUp = false
	r.mu.Unlock()

	r.cancel()

	var err error
	if closePush {
		r.pushMu.Lock()
		err = r.push.Close()
		r.pushMu.Unlock()
	}
	r.wg.Wait()
	r.queue.drain()
	return err
}

// releaseSet holds the transport work left over after removing subscriptions.
type releaseSet struct {
	unwatch   []model.JobMonitoringFilter
	closePush bool
}

// removeLocked drops subscriptions from the live set and detaches their pollers.
func (r *Registry) removeLocked(victims []*subscription) releaseSet {
	var rel releaseSet
	for _, s := range victims {
		s.alive = false
		if s.pollerKey != "" {
			r.detachPollerLocked(s)
		}
		if s.watching {
			s.watching = false
			rel.unwatch = append(rel.unwatch, s.filter)
		}
	}
	r.subs = slices.DeleteFunc(r.subs, func(s *subscription) bool { return !s.alive })

	if r.pushOpen && !slices.ContainsFunc(r.subs, func(s *subscription) bool {
		return s.state.Mode == MonitorModeSignalR
	}) {
		r.pushOpen = false
		r.pushUp = false
		rel.closePush = true
	}
	return rel
}

// release performs push transport teardown off the caller's goroutine, so removal
// is safe from notification callbacks.
func (r *Registry) release(rel releaseSet) {
	if r.push == nil || (len(rel.unwatch) == 0 && !rel.closePush) {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.pushMu.Lock()
		defer r.pushMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), r.fetchTimeout)
		defer cancel()

		if rel.closePush {
			r.mu.Lock()
			reopened := r.pushOpen
			r.mu.Unlock()
			if !reopened {
				if err := r.push.Close(); err != nil {
					r.logger.WarnContext(ctx, "close push transport", "error", err)
				}
				r.logger.InfoContext(ctx, "push transport closed; no push subscriptions remain")
				return
			}
		}
		for _, f := range rel.unwatch {
			if err := r.push.Unwatch(ctx, f); err != nil {
				r.logger.WarnContext(ctx, "unwatch push group", "filter", f.Key(), "error", err)
			}
		}
	}()
}

// fetch collapses concurrent REST fetches for identical filters.
func (r *Registry) fetch(ctx context.Context, filter model.JobMonitoringFilter) ([]model.JobSummary, error) {
	ch := r.flight.DoChan(filter.Key(), func() (any, error) {
		fctx, cancel := context.WithTimeout(r.ctx, r.fetchTimeout)
		defer cancel()
		return r.fetcher.FetchJobs(fctx, filter)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		summaries, _ := res.Val.([]model.JobSummary)
		return summaries, nil
	}
}

func (r *Registry) fetchPrior(ctx context.Context, s *subscription) {
	summaries, err := r.fetch(ctx, s.filter)
	if err != nil {
		r.logger.WarnContext(ctx, "fetch prior job notifications", "subscription_id", s.id, "error", err)
		r.queue.push(notifyError{subID: s.id, err: err})
		return
	}
	r.enqueueSummaries(summaries, sourcePrior)
}

// enqueueSummaries queues fetched records oldest first so freshness checks keep the newest.
func (r *Registry) enqueueSummaries(summaries []model.JobSummary, source string) {
	ordered := slices.Clone(summaries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].LastUpdated.Before(ordered[j].LastUpdated)
	})
	for _, s := range ordered {
		r.queue.push(jobEvent{summary: s, source: source})
	}
}

func (r *Registry) reportError(err error) {
	if r.onError != nil {
		r.onError(err)
	}
}
