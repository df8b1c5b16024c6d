package job

import (
	"context"
	"time"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/observability/metrics"
)

// poller periodically fetches job status for one filter key and feeds every
// subscription attached to it.
type poller struct {
	key    string
	filter model.JobMonitoringFilter
	refs   int
	cancel context.CancelFunc
}

func (r *Registry) attachPollerLocked(s *subscription) {
	key := s.filter.Key()
	p, ok := r.pollers[key]
	if !ok {
		ctx, cancel := context.WithCancel(r.ctx)
		p = &poller{key: key, filter: s.filter, cancel: cancel}
		r.pollers[key] = p

		r.wg.Add(1)
		go r.pollLoop(ctx, p)
		r.logger.Debug("poller started", "filter", key)
	}
	p.refs++
	s.pollerKey = key
}

func (r *Registry) detachPollerLocked(s *subscription) {
	key := s.pollerKey
	s.pollerKey = ""
	p, ok := r.pollers[key]
	if !ok {
		return
	}
	p.refs--
	if p.refs > 0 {
		return
	}
	p.cancel()
	delete(r.pollers, key)
	r.logger.Debug("poller stopped", "filter", key)
}

func (r *Registry) pollLoop(ctx context.Context, p *poller) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		r.pollOnce(ctx, p)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollOnce fetches once. Errors are reported to the attached subscriptions and
// polling continues on the next tick.
func (r *Registry) pollOnce(ctx context.Context, p *poller) {
	start := time.Now()
	summaries, err := r.fetch(ctx, p.filter)
	if ctx.Err() != nil {
		return
	}

	if err != nil {
		metrics.EmitPoll(r.metrics, metrics.PollMetric{Result: metrics.ResultError, Duration: time.Since(start), Err: err})
		r.logger.WarnContext(ctx, "job status poll failed", "filter", p.key, "error", err)
		r.queue.push(notifyError{pollerKey: p.key, err: err})
		return
	}

	metrics.EmitPoll(r.metrics, metrics.PollMetric{Result: metrics.ResultSuccess, Duration: time.Since(start), Jobs: len(summaries)})
	r.enqueueSummaries(summaries, sourcePoll)
}

// ActivePollers returns the number of running pollers.
func (r *Registry) ActivePollers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pollers)
}
