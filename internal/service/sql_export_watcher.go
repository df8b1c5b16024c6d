package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/job"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	apperrors "github.com/skillsfundingagency/cfs-jobwatch/internal/errors"
)

// currentExportJobTypes export the specification's current (unreleased) results.
var currentExportJobTypes = []model.JobType{ //nolint:gochecknoglobals // read-only routing table
	model.JobTypeRunSQLImport,
	model.JobTypePopulateCalculationResultsQADatabase,
}

// SQLExportState is a snapshot of SQL export activity for one specification.
type SQLExportState struct {
	SpecificationID string `json:"specificationId"`
	// IsExportingCurrent is true while a current-results export runs.
	IsExportingCurrent bool `json:"isExportingCurrent"`
	// IsExportingReleased is true while a released-data export runs.
	IsExportingReleased bool `json:"isExportingReleased"`
	// IsExportBlocked is true while a funding job prevents exporting.
	IsExportBlocked bool              `json:"isExportBlocked"`
	BlockingJob     *model.JobDetails `json:"blockingJob,omitempty"`
	LatestExportJob *model.JobDetails `json:"latestExportJob,omitempty"`
	// IsAnotherUserRunningExport is evaluated against the user passed to StateFor.
	IsAnotherUserRunningExport bool       `json:"isAnotherUserRunningExport"`
	LastExportSucceededAt      *time.Time `json:"lastExportSucceededAt,omitempty"`
	LastExportFailure          string     `json:"lastExportFailure,omitempty"`
	MonitorError               string     `json:"monitorError,omitempty"`
}

// SQLExportJobsWatcher follows SQL export jobs for one specification along with the
// funding jobs that block exporting.
type SQLExportJobsWatcher struct {
	reg     *job.Registry
	errors  core.ErrorReporter
	logger  *slog.Logger
	monitor MonitorSettings
	router  *job.Router
	handled *handledJobs

	runMu  sync.Mutex
	handle *job.Handle

	mu       sync.Mutex
	state    SQLExportState
	exports  map[string]*model.JobDetails
	blocking map[string]*model.JobDetails
	pending  []func()
}

// NewSQLExportJobsWatcher constructs a watcher. It does nothing until Start.
func NewSQLExportJobsWatcher(opts WatcherOptions) *SQLExportJobsWatcher {
	if opts.Registry == nil {
		panic("job registry is required")
	}
	w := &SQLExportJobsWatcher{
		reg:      opts.Registry,
		errors:   opts.Ports.Errors,
		logger:   opts.logger("sql_export_watcher"),
		monitor:  opts.Monitor.withDefaults(),
		handled:  newHandledJobs(0),
		exports:  make(map[string]*model.JobDetails),
		blocking: make(map[string]*model.JobDetails),
	}
	w.router = job.NewRouter(nil).
		On(w.onExportJob, currentExportJobTypes...).
		On(w.onExportJob, model.JobTypeRunReleasedSQLImport).
		On(w.onBlockingJob, fundingJobTypes...)
	return w
}

// SQLExportJobTypes returns every job type the watcher subscribes to.
func SQLExportJobTypes() []model.JobType {
	return model.SortJobTypes(slices.Concat(currentExportJobTypes, []model.JobType{model.JobTypeRunReleasedSQLImport}, fundingJobTypes))
}

// Start begins watching specificationID; see SpecificationJobsWatcher.Start.
func (w *SQLExportJobsWatcher) Start(ctx context.Context, specificationID string) error {
	specificationID = strings.TrimSpace(specificationID)
	if specificationID == "" {
		return apperrors.ValidationField("specificationId", "specification id is required")
	}

	w.runMu.Lock()
	defer w.runMu.Unlock()

	w.mu.Lock()
	same := w.handle != nil && w.state.SpecificationID == specificationID
	w.mu.Unlock()
	if same {
		return nil
	}
	w.stopLocked()

	w.mu.Lock()
	w.state = SQLExportState{SpecificationID: specificationID}
	w.exports = make(map[string]*model.JobDetails)
	w.blocking = make(map[string]*model.JobDetails)
	w.mu.Unlock()

	h := w.reg.Open(job.HandleOptions{
		Name: "sql_export:" + specificationID,
		OnNewNotification: func(n job.JobNotification) {
			w.onNotification(specificationID, n)
		},
	})
	_, err := h.AddSub(ctx, job.AddSubscriptionRequest{
		FilterBy: model.JobMonitoringFilter{
			SpecificationID: specificationID,
			JobTypes:        SQLExportJobTypes(),
		},
		FetchPriorNotifications: true,
		MonitorMode:             w.monitor.Mode,
		MonitorFallback:         w.monitor.Fallback,
		OnError:                 func(err error) { w.onMonitorError(specificationID, err) },
	})
	if err != nil {
		h.Close()
		if w.errors != nil {
			w.errors.ReportError(ctx, model.ErrorReport{
				Err:         err,
				Description: "Could not start monitoring SQL export jobs",
			})
		}
		return fmt.Errorf("watch specification %s sql export jobs: %w", specificationID, err)
	}

	w.handle = h
	return nil
}

// Stop ends the watch.
func (w *SQLExportJobsWatcher) Stop() {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	w.stopLocked()
}

func (w *SQLExportJobsWatcher) stopLocked() {
	if w.handle == nil {
		return
	}
	w.handle.Close()
	w.handle = nil
}

// State returns a copy of the current state without a user perspective.
func (w *SQLExportJobsWatcher) State() SQLExportState {
	return w.StateFor("")
}

// StateFor returns the current state as seen by userID: IsAnotherUserRunningExport
// is set when an export started by someone else is still running.
func (w *SQLExportJobsWatcher) StateFor(userID string) SQLExportState {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := w.state
	if userID != "" {
		for _, j := range w.exports {
			if j.InvokerUserID != "" && j.InvokerUserID != userID {
				st.IsAnotherUserRunningExport = true
				break
			}
		}
	}
	if st.LastExportSucceededAt != nil {
		at := *st.LastExportSucceededAt
		st.LastExportSucceededAt = &at
	}
	return st
}

func (w *SQLExportJobsWatcher) onNotification(specificationID string, n job.JobNotification) {
	if n.LatestJob == nil {
		return
	}

	w.mu.Lock()
	if w.state.SpecificationID != specificationID {
		w.mu.Unlock()
		return
	}
	w.router.Dispatch(n.LatestJob)
	w.refreshFlagsLocked()
	effects := w.pending
	w.pending = nil
	w.mu.Unlock()

	for _, fn := range effects {
		fn()
	}
}

// onExportJob tracks current and released exports. Called with mu held.
func (w *SQLExportJobsWatcher) onExportJob(j *model.JobDetails) {
	if j.IsActive() {
		w.exports[j.JobID] = j
	} else {
		delete(w.exports, j.JobID)
	}
	if w.state.LatestExportJob == nil || !j.LastUpdated.Before(w.state.LatestExportJob.LastUpdated) {
		w.state.LatestExportJob = j
	}

	switch {
	case j.IsSuccessful() && w.handled.markFirst("succeeded:"+j.JobID):
		at := j.LastUpdated
		w.state.LastExportSucceededAt = &at
		w.state.LastExportFailure = ""
	case j.IsFailed() && w.handled.markFirst("failed:"+j.JobID):
		msg := failureMessage(j)
		w.state.LastExportFailure = msg
		if w.errors != nil {
			w.pending = append(w.pending, func() {
				w.errors.ReportError(context.Background(), model.ErrorReport{
					Err:         fmt.Errorf("sql export job %s: %s", j.JobID, strings.ToLower(string(j.CompletionStatus))),
					Description: msg,
					JobID:       j.JobID,
				})
			})
		}
	}
}

// onBlockingJob tracks funding jobs that prevent exporting. Called with mu held.
func (w *SQLExportJobsWatcher) onBlockingJob(j *model.JobDetails) {
	if j.IsActive() {
		w.blocking[j.JobID] = j
	} else {
		delete(w.blocking, j.JobID)
	}
}

func (w *SQLExportJobsWatcher) refreshFlagsLocked() {
	w.state.IsExportingCurrent = false
	w.state.IsExportingReleased = false
	for _, j := range w.exports {
		if j.JobType == model.JobTypeRunReleasedSQLImport {
			w.state.IsExportingReleased = true
		} else {
			w.state.IsExportingCurrent = true
		}
	}

	w.state.BlockingJob = nil
	for _, id := range slices.Sorted(maps.Keys(w.blocking)) {
		j := w.blocking[id]
		if w.state.BlockingJob == nil || j.LastUpdated.After(w.state.BlockingJob.LastUpdated) {
			w.state.BlockingJob = j
		}
	}
	w.state.IsExportBlocked = w.state.BlockingJob != nil
}

func (w *SQLExportJobsWatcher) onMonitorError(specificationID string, err error) {
	w.logger.Warn("sql export monitoring error", "specification_id", specificationID, "error", err)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.SpecificationID == specificationID {
		w.state.MonitorError = err.Error()
	}
}
