package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/job"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	apperrors "github.com/skillsfundingagency/cfs-jobwatch/internal/errors"
)

const publishedDateTimeout = 30 * time.Second

// fundingJobTypes change what has been published for a specification.
var fundingJobTypes = []model.JobType{ //nolint:gochecknoglobals // read-only routing table
	model.JobTypeRefreshFunding,
	model.JobTypeApproveAllProviderFunding,
	model.JobTypeApproveBatchProviderFunding,
	model.JobTypePublishAllProviderFunding,
	model.JobTypePublishBatchProviderFunding,
	model.JobTypeReleaseProvidersToChannels,
}

// specificationJobTypes are the remaining job kinds shown on the specification page.
var specificationJobTypes = []model.JobType{ //nolint:gochecknoglobals // read-only routing table
	model.JobTypeCreateInstructAllocation,
	model.JobTypeGenerateGraphAndInstructAllocation,
	model.JobTypeCreateInstructGenerateAggregations,
	model.JobTypeGenerateGraphAndInstructAggregations,
	model.JobTypeAssignTemplateCalculations,
	model.JobTypeEditSpecification,
	model.JobTypeReIndexPublishedProviders,
	model.JobTypeReIndexSpecificationCalculationRelation,
	model.JobTypeDetectObsoleteFundingLines,
}

// SpecificationJobsState is a snapshot of the jobs running against one specification.
type SpecificationJobsState struct {
	SpecificationID     string             `json:"specificationId"`
	LatestJob           *model.JobDetails  `json:"latestJob,omitempty"`
	HasActiveJob        bool               `json:"hasActiveJob"`
	StatusMessage       string             `json:"statusMessage,omitempty"`
	JobDescription      string             `json:"jobDescription,omitempty"`
	Failures            []model.JobFailure `json:"failures,omitempty"`
	LastJobError        string             `json:"lastJobError,omitempty"`
	MonitorError        string             `json:"monitorError,omitempty"`
	LatestPublishedDate *time.Time         `json:"latestPublishedDate,omitempty"`
	PublishedDateError  string             `json:"publishedDateError,omitempty"`
}

// SpecificationJobsWatcher follows the calculation and funding jobs of one
// specification. A successful funding job triggers a published date refetch and a
// failed job is reported to the error context, each once per job id.
type SpecificationJobsWatcher struct {
	reg     *job.Registry
	errors  core.ErrorReporter
	dates   core.PublishedDateFetcher
	logger  *slog.Logger
	monitor MonitorSettings
	router  *job.Router
	handled *handledJobs

	// runMu serialises Start and Stop.
	runMu     sync.Mutex
	handle    *job.Handle
	runCancel context.CancelFunc
	refetches sync.WaitGroup

	mu      sync.Mutex
	runCtx  context.Context
	state   SpecificationJobsState
	active  map[string]struct{}
	pending []func()
}

// NewSpecificationJobsWatcher constructs a watcher. It does nothing until Start.
func NewSpecificationJobsWatcher(opts WatcherOptions) *SpecificationJobsWatcher {
	if opts.Registry == nil {
		panic("job registry is required")
	}
	w := &SpecificationJobsWatcher{
		reg:     opts.Registry,
		errors:  opts.Ports.Errors,
		dates:   opts.Ports.PublishedDates,
		logger:  opts.logger("specification_jobs_watcher"),
		monitor: opts.Monitor.withDefaults(),
		handled: newHandledJobs(0),
		active:  make(map[string]struct{}),
	}
	w.router = job.NewRouter(w.onUnrouted).
		On(w.onFundingJob, fundingJobTypes...).
		On(w.trackJob, specificationJobTypes...)
	return w
}

// SpecificationJobTypes returns every job type the watcher subscribes to.
func SpecificationJobTypes() []model.JobType {
	return model.SortJobTypes(slices.Concat(fundingJobTypes, specificationJobTypes))
}

// Start begins watching specificationID. Starting again with the same id is a
// no-op; a different id replaces the previous watch and resets the state.
func (w *SpecificationJobsWatcher) Start(ctx context.Context, specificationID string) error {
	specificationID = strings.TrimSpace(specificationID)
	if specificationID == "" {
		return apperrors.ValidationField("specificationId", "specification id is required")
	}

	w.runMu.Lock()
	defer w.runMu.Unlock()

	if w.handle != nil && w.specificationID() == specificationID {
		return nil
	}
	w.stopLocked()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.mu.Lock()
	w.runCtx = runCtx
	w.state = SpecificationJobsState{SpecificationID: specificationID}
	w.active = make(map[string]struct{})
	w.mu.Unlock()

	h := w.reg.Open(job.HandleOptions{
		Name: "specification_jobs:" + specificationID,
		OnNewNotification: func(n job.JobNotification) {
			w.onNotification(specificationID, n)
		},
	})
	_, err := h.AddSub(ctx, job.AddSubscriptionRequest{
		FilterBy: model.JobMonitoringFilter{
			SpecificationID: specificationID,
			JobTypes:        SpecificationJobTypes(),
		},
		FetchPriorNotifications: true,
		MonitorMode:             w.monitor.Mode,
		MonitorFallback:         w.monitor.Fallback,
		OnError:                 func(err error) { w.onMonitorError(specificationID, err) },
		OnDisconnect: func() {
			w.logger.Info("job monitoring connection lost", "specification_id", specificationID)
		},
	})
	if err != nil {
		h.Close()
		cancel()
		w.mu.Lock()
		w.runCtx = nil
		w.mu.Unlock()
		w.report(ctx, model.ErrorReport{
			Err:         err,
			Description: "Could not start monitoring jobs for this specification",
		})
		return fmt.Errorf("watch specification %s jobs: %w", specificationID, err)
	}

	w.handle = h
	w.runCancel = cancel

	w.mu.Lock()
	w.refetchPublishedDateLocked(specificationID)
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "watching specification jobs", "specification_id", specificationID)
	return nil
}

// Stop ends the watch and waits for in-flight published date refetches.
func (w *SpecificationJobsWatcher) Stop() {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	w.stopLocked()
}

func (w *SpecificationJobsWatcher) stopLocked() {
	if w.handle == nil {
		return
	}
	// no refetch may be scheduled once runCtx is cleared
	w.mu.Lock()
	w.runCtx = nil
	w.mu.Unlock()

	w.handle.Close()
	w.runCancel()
	w.refetches.Wait()
	w.handle = nil
	w.runCancel = nil
}

// State returns a copy of the current state.
func (w *SpecificationJobsWatcher) State() SpecificationJobsState {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := w.state
	st.Failures = slices.Clone(st.Failures)
	if st.LatestPublishedDate != nil {
		d := *st.LatestPublishedDate
		st.LatestPublishedDate = &d
	}
	return st
}

func (w *SpecificationJobsWatcher) specificationID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.SpecificationID
}

func (w *SpecificationJobsWatcher) onNotification(specificationID string, n job.JobNotification) {
	if n.LatestJob == nil {
		return
	}

	w.mu.Lock()
	if w.state.SpecificationID != specificationID {
		w.mu.Unlock()
		return
	}
	w.router.Dispatch(n.LatestJob)
	effects := w.pending
	w.pending = nil
	w.mu.Unlock()

	for _, fn := range effects {
		fn()
	}
}

// trackJob folds a job snapshot into the state. Called with mu held.
func (w *SpecificationJobsWatcher) trackJob(j *model.JobDetails) {
	if j.IsActive() {
		w.active[j.JobID] = struct{}{}
	} else {
		delete(w.active, j.JobID)
	}
	w.state.HasActiveJob = len(w.active) > 0

	if w.state.LatestJob == nil || !j.LastUpdated.Before(w.state.LatestJob.LastUpdated) {
		w.state.LatestJob = j
		w.state.StatusMessage = statusMessage(j)
		w.state.JobDescription = j.JobDescription
		w.state.Failures = j.Failures
	}

	if j.IsFailed() && w.handled.markFirst("failed:"+j.JobID) {
		msg := failureMessage(j)
		w.state.LastJobError = msg
		w.pending = append(w.pending, func() {
			w.report(context.Background(), model.ErrorReport{
				Err:         fmt.Errorf("%s job %s: %s", j.JobType, j.JobID, strings.ToLower(string(j.CompletionStatus))),
				Description: msg,
				JobID:       j.JobID,
			})
		})
	}
}

// onFundingJob handles jobs that can change the published funding. Called with mu held.
func (w *SpecificationJobsWatcher) onFundingJob(j *model.JobDetails) {
	w.trackJob(j)
	if j.IsSuccessful() && w.handled.markFirst("published:"+j.JobID) {
		w.refetchPublishedDateLocked(w.state.SpecificationID)
	}
}

func (w *SpecificationJobsWatcher) onUnrouted(j *model.JobDetails) {
	w.logger.Debug("ignoring unrouted job type", "job_id", j.JobID, "job_type", j.JobType)
}

func (w *SpecificationJobsWatcher) onMonitorError(specificationID string, err error) {
	w.logger.Warn("job monitoring error", "specification_id", specificationID, "error", err)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.SpecificationID == specificationID {
		w.state.MonitorError = err.Error()
	}
}

// refetchPublishedDateLocked reloads the latest published date in the background.
// Called with mu held.
func (w *SpecificationJobsWatcher) refetchPublishedDateLocked(specificationID string) {
	if w.dates == nil || w.runCtx == nil {
		return
	}
	runCtx := w.runCtx

	w.refetches.Add(1)
	go func() {
		defer w.refetches.Done()
		ctx, cancel := context.WithTimeout(runCtx, publishedDateTimeout)
		defer cancel()

		date, err := w.dates.LatestPublishedDate(ctx, specificationID)

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.state.SpecificationID != specificationID || runCtx.Err() != nil {
			return
		}
		if err != nil {
			w.logger.WarnContext(ctx, "refetch latest published date",
				"specification_id", specificationID,
				"error", err,
			)
			w.state.PublishedDateError = err.Error()
			return
		}
		w.state.LatestPublishedDate = date
		w.state.PublishedDateError = ""
	}()
}

func (w *SpecificationJobsWatcher) report(ctx context.Context, report model.ErrorReport) {
	if w.errors != nil {
		w.errors.ReportError(ctx, report)
	}
}
