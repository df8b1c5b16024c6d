package job

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
)

// pushSink adapts the registry to core.PushHandler. It only enqueues.
type pushSink struct {
	r *Registry
}

func (p pushSink) HandleJobMessage(payload json.RawMessage) {
	p.r.queue.push(jobEvent{raw: slices.Clone(payload), source: sourcePush})
}

func (p pushSink) HandleConnectionState(state core.ConnectionState, err error) {
	r := p.r

	var ev TransportEvent
	r.mu.Lock()
	switch state {
	case core.ConnectionConnected:
		r.pushUp = true
		ev = PushRestored
	case core.ConnectionReconnecting, core.ConnectionDisconnected:
		r.pushUp = false
		ev = PushLost
	default:
		r.mu.Unlock()
		return
	}
	open := r.pushOpen
	r.mu.Unlock()

	r.logger.Debug("push connection state", "state", state, "error", err)
	if !open {
		return
	}
	r.queue.push(pushChange{ev: ev, err: err})
}

var _ core.PushHandler = pushSink{}

// startPush connects the shared transport on first use and joins the subscription's
// group. An initial connect failure is handled exactly like a dropped connection.
func (r *Registry) startPush(ctx context.Context, s *subscription) {
	if r.push == nil {
		r.queue.push(pushChange{ev: PushLost, err: errNoPushTransport, subID: s.id})
		return
	}

	r.pushMu.Lock()
	defer r.pushMu.Unlock()

	r.mu.Lock()
	if !s.alive || r.closed {
		r.mu.Unlock()
		return
	}
	needConnect := !r.pushOpen
	r.pushOpen = true
	r.mu.Unlock()

	if needConnect {
		if err := r.push.Connect(ctx, pushSink{r: r}); err != nil {
			r.logger.WarnContext(ctx, "push connect failed; transport will keep retrying", "error", err)
			r.queue.push(pushChange{ev: PushLost, err: err})
		}
	}

	if err := r.push.Watch(ctx, s.filter); err != nil {
		r.logger.WarnContext(ctx, "watch push group", "subscription_id", s.id, "error", err)
		r.queue.push(notifyError{subID: s.id, err: err})
	}

	// Watch records interest even when it fails, so every Watch is paired with an Unwatch.
	r.mu.Lock()
	alive := s.alive
	s.watching = alive
	up := r.pushUp
	r.mu.Unlock()

	if !alive {
		if err := r.push.Unwatch(ctx, s.filter); err != nil {
			r.logger.WarnContext(ctx, "unwatch push group", "subscription_id", s.id, "error", err)
		}
		return
	}
	if !up {
		r.queue.push(pushChange{ev: PushLost, err: errPushUnavailable, subID: s.id})
	}
}
