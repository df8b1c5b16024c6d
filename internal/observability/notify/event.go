// Package notify defines the job failure alert payload and the sinks that deliver it.
package notify

import (
	"context"
	"strings"
	"time"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
	SeverityWarning  = "warning"
)

// JobFailurePayload captures the canonical data emitted for a job that completed unsuccessfully.
type JobFailurePayload struct {
	JobID            string
	JobType          string
	JobDescription   string
	SpecificationID  string
	CompletionStatus string
	Invoker          string
	Failures         []string
	Outcome          string
	Severity         string
	OccurredAt       time.Time
	Metadata         map[string]string
}

// FailurePayload builds the alert payload for a failed job snapshot.
func FailurePayload(job *model.JobDetails) JobFailurePayload {
	failures := make([]string, 0, len(job.Failures))
	for _, f := range job.Failures {
		if d := strings.TrimSpace(f.Description); d != "" {
			failures = append(failures, d)
		}
	}
	return JobFailurePayload{
		JobID:            job.JobID,
		JobType:          string(job.JobType),
		JobDescription:   job.JobDescription,
		SpecificationID:  job.SpecificationID,
		CompletionStatus: string(job.CompletionStatus),
		Invoker:          job.InvokerUserDisplayName,
		Failures:         failures,
		Outcome:          job.Outcome,
		Severity:         SeverityFor(job.CompletionStatus),
		OccurredAt:       job.LastUpdated,
	}
}

// SeverityFor grades a completion status. Jobs that were cancelled or replaced by
// a newer run are warnings; everything else unsuccessful is an error.
func SeverityFor(status model.CompletionStatus) string {
	switch status {
	case model.CompletionStatusCancelled, model.CompletionStatusSuperseded:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// Sink describes a destination capable of consuming job failure notifications.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

// SendJobFailure implements the Sink interface.
func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}

// Retry calls fn up to attempts times with linear backoff, stopping early on
// success or context cancellation.
func Retry(ctx context.Context, attempts int, fn func(context.Context) error) error {
	attempts = max(attempts, 1)
	var lastErr error
	for attempt := range attempts {
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * 200 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
