package service

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	apperrors "github.com/skillsfundingagency/cfs-jobwatch/internal/errors"
)

const defaultErrorCapacity = 100

// ErrorContextOptions configure an ErrorContext.
type ErrorContextOptions struct {
	Capacity int
	Logger   *slog.Logger
	Now      func() time.Time
}

// ErrorContext is the bounded, in-memory list of errors surfaced to users.
// Oldest entries are dropped once Capacity is reached.
type ErrorContext struct {
	capacity int
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries []model.ErrorReport
}

var _ core.ErrorReporter = (*ErrorContext)(nil)

// NewErrorContext constructs an ErrorContext.
func NewErrorContext(opts ErrorContextOptions) *ErrorContext {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = defaultErrorCapacity
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ErrorContext{
		capacity: capacity,
		logger:   logger.With("component", "error_context"),
		now:      now,
	}
}

// ReportError records report. Message defaults to the wrapped error's text and the
// field name to the one carried by a validation error.
func (e *ErrorContext) ReportError(ctx context.Context, report model.ErrorReport) {
	if report.Message == "" && report.Err != nil {
		report.Message = report.Err.Error()
	}
	if report.FieldName == "" {
		report.FieldName = apperrors.GetField(report.Err)
	}
	if report.ReportedAt.IsZero() {
		report.ReportedAt = e.now().UTC()
	}

	e.logger.WarnContext(ctx, "error reported",
		"message", report.Message,
		"description", report.Description,
		"job_id", report.JobID,
	)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, report)
	if over := len(e.entries) - e.capacity; over > 0 {
		e.entries = slices.Delete(e.entries, 0, over)
	}
}

// Errors returns the recorded reports, oldest first.
func (e *ErrorContext) Errors() []model.ErrorReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.entries)
}

// Clear drops every recorded report.
func (e *ErrorContext) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = nil
}
