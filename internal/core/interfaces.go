// Package core defines the ports between the job monitoring domain and its adapters.
package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
)

// This file contains the port definitions (hexagonal architecture) between the
// job monitoring domain and its adapters. Domain and service code depend on these
// interfaces, never on a concrete transport or store.

// JobStatusFetcher retrieves current job status records matching a filter over REST.
// It backs the polling transport and prior-notification fetches.
type JobStatusFetcher interface {
	FetchJobs(ctx context.Context, filter model.JobMonitoringFilter) ([]model.JobSummary, error)
}

// PublishedDateFetcher retrieves the latest published date for a specification.
// A nil time means the specification has never been published.
type PublishedDateFetcher interface {
	LatestPublishedDate(ctx context.Context, specificationID string) (*time.Time, error)
}

// ConnectionState describes the lifecycle of a push transport connection.
type ConnectionState string

const (
	// ConnectionConnecting is reported before the first attempt completes.
	ConnectionConnecting ConnectionState = "connecting"
	// ConnectionConnected is reported after a successful (re)connect.
	ConnectionConnected ConnectionState = "connected"
	// ConnectionReconnecting is reported after an established connection drops.
	ConnectionReconnecting ConnectionState = "reconnecting"
	// ConnectionDisconnected is reported once the transport has been closed.
	ConnectionDisconnected ConnectionState = "disconnected"
)

// PushHandler receives events from a PushTransport. Implementations must not block.
type PushHandler interface {
	// HandleJobMessage receives one raw job status payload.
	HandleJobMessage(payload json.RawMessage)
	// HandleConnectionState receives connection lifecycle changes; err explains drops.
	HandleConnectionState(state ConnectionState, err error)
}

// PushTransport is a shared real-time connection emitting job status payloads.
// Connect performs the first connection attempt synchronously and keeps the
// connection alive (reconnecting with backoff) until Close is called. Watched
// groups are re-joined after every reconnect.
type PushTransport interface {
	Connect(ctx context.Context, handler PushHandler) error
	Watch(ctx context.Context, filter model.JobMonitoringFilter) error
	Unwatch(ctx context.Context, filter model.JobMonitoringFilter) error
	Close() error
}

// ErrorReporter is the user-facing error context sink.
type ErrorReporter interface {
	ReportError(ctx context.Context, report model.ErrorReport)
}

// OutcomeRepository persists terminal job outcomes.
type OutcomeRepository interface {
	// Record stores the outcome once; it returns false when the job id was already recorded.
	Record(ctx context.Context, outcome model.JobOutcome) (bool, error)
	ListBySpecification(ctx context.Context, specificationID string, limit int) ([]model.JobOutcome, error)
}

// ClaimStore grants short-lived exclusive claims shared between jobwatch instances.
type ClaimStore interface {
	// Claim reports whether the caller acquired key for ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release drops key so a later Claim can succeed. It reports whether key was held.
	Release(ctx context.Context, key string) (bool, error)
}

// JobEventPublisher forwards raw job status records to other jobwatch instances.
type JobEventPublisher interface {
	Publish(ctx context.Context, job model.JobSummary) error
}
