package job

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
)

// Event sources, used for logging and metric tags.
const (
	sourcePush   = "push"
	sourcePoll   = "poll"
	sourcePrior  = "prior"
	sourceIngest = "ingest"
)

// queued item kinds processed by the dispatcher.
type (
	jobEvent struct {
		summary model.JobSummary
		raw     json.RawMessage
		source  string
	}
	// notifyError targets one subscription (subID) or every subscription fed by a poller.
	notifyError struct {
		subID     string
		pollerKey string
		err       error
	}
	// pushChange applies to every push subscription, or only subID when set.
	pushChange struct {
		ev    TransportEvent
		err   error
		subID string
	}
	barrier chan struct{}
)

// eventQueue is an unbounded FIFO; push never blocks.
type eventQueue struct {
	mu     sync.Mutex
	items  []any
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(item any) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop blocks until an item is available or ctx is done.
func (q *eventQueue) pop(ctx context.Context) (any, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-q.signal:
		}
	}
}

// drain returns and clears everything still queued.
func (q *eventQueue) drain() []any {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
