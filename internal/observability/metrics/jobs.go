// Package metrics emits the standard jobwatch StatsD metrics.
package metrics

import (
	"time"

	obserrors "github.com/skillsfundingagency/cfs-jobwatch/internal/observability/errors"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess    = "success"
	ResultError      = "error"
	ResultDelivered  = "delivered"
	ResultSuppressed = "suppressed"
	ResultStale      = "stale"
	ResultMalformed  = "malformed"
	ResultUnmatched  = "unmatched"
)

// NotificationMetric captures how one incoming job event was reconciled.
type NotificationMetric struct {
	Source  string
	JobType string
	Result  string
	Count   int
	Err     error
}

// EmitNotification emits a reconciliation outcome counter.
func EmitNotification(sink statsd.Sink, in NotificationMetric) {
	if sink == nil {
		return
	}
	count := int64(in.Count)
	if count <= 0 {
		count = 1
	}

	tags := map[string]string{
		"source": in.Source,
		"result": in.Result,
	}
	if in.JobType != "" {
		tags["job_type"] = in.JobType
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}
	sink.Count("jobwatch.notification", count, tags)
}

// TransportMetric captures a subscription's transport state change.
type TransportMetric struct {
	From  string
	To    string
	Event string
}

// EmitTransportTransition counts a transport state machine transition.
func EmitTransportTransition(sink statsd.Sink, in TransportMetric) {
	if sink == nil {
		return
	}
	sink.Count("jobwatch.transport.transition", 1, map[string]string{
		"from":  in.From,
		"to":    in.To,
		"event": in.Event,
	})
}

// PollMetric captures one REST poll.
type PollMetric struct {
	Result   string
	Duration time.Duration
	Jobs     int
	Err      error
}

// EmitPoll emits poll counters and timing.
func EmitPoll(sink statsd.Sink, in PollMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{"result": in.Result}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("jobwatch.poll", 1, tags)
	if in.Duration > 0 {
		sink.Timing("jobwatch.poll.duration", in.Duration, CloneTags(tags))
	}
	if in.Result == ResultSuccess {
		sink.Gauge("jobwatch.poll.jobs", float64(in.Jobs), nil)
	}
}

// EmitGauge records a gauge with optional tags.
func EmitGauge(sink statsd.Sink, name string, value int, tags map[string]string) {
	if sink == nil {
		return
	}
	sink.Gauge(name, float64(value), CloneTags(tags))
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
