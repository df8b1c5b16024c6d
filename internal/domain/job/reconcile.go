package job

import (
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	apperrors "github.com/skillsfundingagency/cfs-jobwatch/internal/errors"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/observability/metrics"
)

// run is the dispatcher loop. It is the only goroutine that invokes consumer callbacks.
func (r *Registry) run() {
	defer r.wg.Done()
	for {
		item, ok := r.queue.pop(r.ctx)
		if !ok {
			return
		}
		r.process(item)
	}
}

func (r *Registry) process(item any) {
	switch it := item.(type) {
	case jobEvent:
		r.reconcile(it)
	case notifyError:
		r.deliverError(it)
	case pushChange:
		r.applyPushChange(it)
	case barrier:
		close(it)
	default:
		r.logger.Error("unknown dispatcher item", "type", fmt.Sprintf("%T", item))
	}
}

// reconcile updates every matching subscription and notifies the owning handles in
// subscription insertion order with the incoming snapshot. Freshness is judged per job
// id: snapshots strictly older than the one held for that job are ignored and
// snapshots carrying the same state are suppressed.
func (r *Registry) reconcile(ev jobEvent) {
	summary := ev.summary
	if ev.raw != nil {
		if err := json.Unmarshal(ev.raw, &summary); err != nil {
			r.dropMalformed(ev.source, apperrors.MalformedPayload(err, "decode job event"))
			return
		}
	}
	job, err := model.NewJobDetails(summary)
	if err != nil {
		r.dropMalformed(ev.source, apperrors.MalformedPayload(err, "normalise job event"))
		return
	}

	r.mu.Lock()
	now := r.now().UTC()
	var targets []*subscription
	var stale, suppressed int
	for _, s := range r.subs {
		if !s.enabled || !s.filter.Matches(job) {
			continue
		}
		isStale, same := s.observe(job)
		switch {
		case isStale:
			stale++
			continue
		case same:
			suppressed++
			continue
		}
		ts := now
		s.lastUpdate = &ts
		targets = append(targets, s)
	}
	r.mu.Unlock()

	jobType := string(job.JobType)
	if len(targets) == 0 && stale == 0 && suppressed == 0 {
		metrics.EmitNotification(r.metrics, metrics.NotificationMetric{Source: ev.source, JobType: jobType, Result: metrics.ResultUnmatched})
		return
	}
	if stale > 0 {
		metrics.EmitNotification(r.metrics, metrics.NotificationMetric{Source: ev.source, JobType: jobType, Result: metrics.ResultStale, Count: stale})
	}
	if suppressed > 0 {
		metrics.EmitNotification(r.metrics, metrics.NotificationMetric{Source: ev.source, JobType: jobType, Result: metrics.ResultSuppressed, Count: suppressed})
	}

	for _, s := range targets {
		r.mu.Lock()
		if !s.alive {
			r.mu.Unlock()
			continue
		}
		cb := s.handle.onNew
		n := JobNotification{Subscription: s.snapshot(), LatestJob: job}
		r.mu.Unlock()

		metrics.EmitNotification(r.metrics, metrics.NotificationMetric{Source: ev.source, JobType: jobType, Result: metrics.ResultDelivered})
		if cb == nil {
			continue
		}
		r.safeCall(s.handle.name, s.id, func() { cb(n) })
	}
}

func (r *Registry) dropMalformed(source string, err error) {
	r.logger.Warn("dropping malformed job event", "source", source, "error", err)
	metrics.EmitNotification(r.metrics, metrics.NotificationMetric{Source: source, Result: metrics.ResultMalformed, Err: err})
	r.reportError(err)
}

func (r *Registry) deliverError(it notifyError) {
	r.mu.Lock()
	type target struct {
		handle, id string
		fn         func(error)
	}
	var targets []target
	for _, s := range r.subs {
		if (it.subID != "" && s.id == it.subID) || (it.pollerKey != "" && s.pollerKey == it.pollerKey) {
			targets = append(targets, target{handle: s.handle.name, id: s.id, fn: s.onError})
		}
	}
	r.mu.Unlock()

	for _, t := range targets {
		r.safeCall(t.handle, t.id, func() { t.fn(it.err) })
	}
}

// applyPushChange runs the transport state machine for push subscriptions, attaching
// or detaching fallback pollers, firing OnDisconnect and scheduling catch-up fetches.
func (r *Registry) applyPushChange(it pushChange) {
	type disconnect struct {
		handle, id string
		fn         func()
	}
	var disconnects []disconnect
	catchUp := make(map[string]model.JobMonitoringFilter)
	moved := 0

	r.mu.Lock()
	for _, s := range r.subs {
		if it.subID != "" && s.id != it.subID {
			continue
		}
		prev := s.state
		next := prev.Next(it.ev)
		if next == prev {
			continue
		}
		s.state = next
		moved++
		metrics.EmitTransportTransition(r.metrics, metrics.TransportMetric{
			From:  string(prev.Transport),
			To:    string(next.Transport),
			Event: string(it.ev),
		})

		switch {
		case !prev.NeedsPoller() && next.NeedsPoller():
			r.attachPollerLocked(s)
		case prev.NeedsPoller() && !next.NeedsPoller():
			r.detachPollerLocked(s)
		}
		if prev.Transport == TransportPush && s.onDisconnect != nil {
			disconnects = append(disconnects, disconnect{handle: s.handle.name, id: s.id, fn: s.onDisconnect})
		}
		if next.Transport == TransportPush {
			catchUp[s.filter.Key()] = s.filter
		}
	}
	r.mu.Unlock()

	if moved == 0 {
		return
	}
	if it.ev == PushLost {
		r.logger.Warn("push connection lost", "subscriptions", moved, "error", it.err)
	} else {
		r.logger.Info("push connection restored", "subscriptions", moved)
	}

	for _, d := range disconnects {
		r.safeCall(d.handle, d.id, d.fn)
	}
	for _, f := range catchUp {
		r.scheduleCatchUp(f)
	}
}

// scheduleCatchUp fetches current state for a filter after push returns, covering
// anything missed while degraded.
func (r *Registry) scheduleCatchUp(filter model.JobMonitoringFilter) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		summaries, err := r.fetch(r.ctx, filter)
		if err != nil {
			if r.ctx.Err() == nil {
				r.logger.Warn("catch-up fetch failed", "filter", filter.Key(), "error", err)
			}
			return
		}
		r.enqueueSummaries(summaries, sourcePush)
	}()
}

// safeCall isolates one consumer callback; a panic is logged and reported as a handler error.
func (r *Registry) safeCall(handle, subID string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			err := apperrors.Handler(fmt.Errorf("panic: %v", rec), "notification callback panicked")
			r.logger.Error("notification callback panicked",
				"handle", handle,
				"subscription_id", subID,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			r.reportError(err)
		}
	}()
	fn()
}
