package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/job"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	apperrors "github.com/skillsfundingagency/cfs-jobwatch/internal/errors"
)

// SubscriptionHandlersOptions configure SubscriptionHandlers.
type SubscriptionHandlersOptions struct {
	Registry  *job.Registry // Required
	Errors    core.ErrorReporter
	Validator *RequestValidator
	// MaxSubscriptions caps subscriptions owned by the HTTP handle; zero means unlimited.
	MaxSubscriptions int
}

// SubscriptionHandlers expose the registry's subscriptions. Every subscription is
// readable; only those created over HTTP can be changed or removed.
type SubscriptionHandlers struct {
	registry *job.Registry
	handle   *job.Handle
	errors   core.ErrorReporter
	validate *RequestValidator
	max      int

	mu      sync.Mutex
	pending int
}

// NewSubscriptionHandlers opens the "http" registry handle.
func NewSubscriptionHandlers(opts SubscriptionHandlersOptions) *SubscriptionHandlers {
	if opts.Registry == nil {
		panic("job registry is required")
	}
	v := opts.Validator
	if v == nil {
		v = NewRequestValidator()
	}
	return &SubscriptionHandlers{
		registry: opts.Registry,
		handle:   opts.Registry.Open(job.HandleOptions{Name: "http"}),
		errors:   opts.Errors,
		validate: v,
		max:      opts.MaxSubscriptions,
	}
}

// CreateSubscriptionRequest is the body of POST /api/subscriptions.
type CreateSubscriptionRequest struct {
	SpecificationID         string          `json:"specificationId"         validate:"max=128"`
	JobID                   string          `json:"jobId"                   validate:"max=128"`
	TriggerByEntityID       string          `json:"triggerByEntityId"       validate:"max=128"`
	IncludeChildJobs        bool            `json:"includeChildJobs"`
	JobTypes                []model.JobType `json:"jobTypes"                validate:"max=64,dive,jobtype"`
	FetchPriorNotifications bool            `json:"fetchPriorNotifications"`
	MonitorMode             string          `json:"monitorMode"             validate:"omitempty,oneof=SignalR Polling Off"`
	MonitorFallback         string          `json:"monitorFallback"         validate:"omitempty,oneof=None Polling"`
	Disabled                bool            `json:"disabled"`
}

func (r CreateSubscriptionRequest) filter() model.JobMonitoringFilter {
	return model.JobMonitoringFilter{
		JobTypes:          r.JobTypes,
		JobID:             r.JobID,
		TriggerByEntityID: r.TriggerByEntityID,
		IncludeChildJobs:  r.IncludeChildJobs,
		SpecificationID:   r.SpecificationID,
	}
}

// SetEnabledRequest is the body of PATCH /api/subscriptions/{id}.
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// List returns every live subscription with its latest job, in insertion order.
func (h *SubscriptionHandlers) List(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, h.registry.Results())
}

// Get returns one subscription with its latest job.
func (h *SubscriptionHandlers) Get(w http.ResponseWriter, r *http.Request) {
	n, ok := findNotification(h.registry.Results(), pathID(r, "id"))
	if !ok {
		WriteAppError(w, r, apperrors.NotFoundf("subscription %s not found", pathID(r, "id")))
		return
	}
	WriteJSON(w, http.StatusOK, n)
}

// Create registers a subscription owned by the HTTP handle. Monitoring errors for it
// are reported to the error context.
func (h *SubscriptionHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSubscriptionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Validate(req); err != nil {
		WriteAppError(w, r, err)
		return
	}

	if err := h.reserve(); err != nil {
		WriteAppError(w, r, err)
		return
	}
	defer h.release()

	filter := req.filter()
	sub, err := h.handle.AddSub(r.Context(), job.AddSubscriptionRequest{
		FilterBy:                filter,
		FetchPriorNotifications: req.FetchPriorNotifications,
		MonitorMode:             job.MonitorMode(req.MonitorMode),
		MonitorFallback:         job.MonitorFallback(req.MonitorFallback),
		OnError:                 h.reportError(filter),
		Disabled:                req.Disabled,
	})
	if err != nil {
		WriteAppError(w, r, registryError(err))
		return
	}
	WriteJSON(w, http.StatusCreated, sub)
}

// SetEnabled pauses or resumes an HTTP-owned subscription.
func (h *SubscriptionHandlers) SetEnabled(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	var req SetEnabledRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Validate(req); err != nil {
		WriteAppError(w, r, err)
		return
	}
	if !h.handle.SetEnabled(id, *req.Enabled) {
		WriteAppError(w, r, h.missing(id))
		return
	}
	n, _ := findNotification(h.handle.Results(), id)
	WriteJSON(w, http.StatusOK, n)
}

// Delete removes an HTTP-owned subscription.
func (h *SubscriptionHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	if _, ok := findNotification(h.handle.Results(), id); !ok {
		WriteAppError(w, r, h.missing(id))
		return
	}
	h.handle.RemoveSub(id)
	w.WriteHeader(http.StatusNoContent)
}

// reserve claims room for one more HTTP-owned subscription. Reservations cover
// creates still in flight so concurrent requests cannot overshoot the cap.
func (h *SubscriptionHandlers) reserve() error {
	if h.max <= 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.handle.Results())+h.pending >= h.max {
		return apperrors.Conflict(fmt.Sprintf("at most %d subscriptions can be created over HTTP", h.max))
	}
	h.pending++
	return nil
}

func (h *SubscriptionHandlers) release() {
	if h.max <= 0 {
		return
	}
	h.mu.Lock()
	h.pending--
	h.mu.Unlock()
}

// missing distinguishes unknown ids from subscriptions owned by another consumer.
func (h *SubscriptionHandlers) missing(id string) error {
	if _, ok := findNotification(h.registry.Results(), id); ok {
		return apperrors.Conflict("subscription " + id + " is owned by another consumer")
	}
	return apperrors.NotFoundf("subscription %s not found", id)
}

func (h *SubscriptionHandlers) reportError(filter model.JobMonitoringFilter) func(error) {
	return func(err error) {
		if h.errors == nil {
			return
		}
		h.errors.ReportError(context.Background(), model.ErrorReport{
			Err:         err,
			Description: "Job monitoring failed for " + filter.Key(),
			JobID:       filter.JobID,
		})
	}
}

func findNotification(all []job.JobNotification, id string) (job.JobNotification, bool) {
	i := slices.IndexFunc(all, func(n job.JobNotification) bool { return n.Subscription.ID == id })
	if i < 0 {
		return job.JobNotification{}, false
	}
	return all[i], true
}

func registryError(err error) error {
	if errors.Is(err, job.ErrRegistryClosed) || errors.Is(err, job.ErrHandleClosed) {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "job monitoring is shutting down")
	}
	return err
}

func notFound(r *http.Request) error {
	return apperrors.NotFoundf("no route for %s %s", r.Method, r.URL.Path)
}
