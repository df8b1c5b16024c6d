package job

import (
	"time"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	apperrors "github.com/skillsfundingagency/cfs-jobwatch/internal/errors"
)

// AddSubscriptionRequest describes a consumer's interest in a set of jobs.
type AddSubscriptionRequest struct {
	FilterBy                model.JobMonitoringFilter
	FetchPriorNotifications bool
	MonitorMode             MonitorMode
	MonitorFallback         MonitorFallback
	// OnError receives transport and polling failures for this subscription. Required.
	OnError func(err error)
	// OnDisconnect fires when the push connection is lost for this subscription.
	OnDisconnect func()
	// Disabled registers the subscription without matching events until enabled.
	Disabled bool
}

// Validate checks the request and fills defaults.
func (r *AddSubscriptionRequest) Validate() error {
	if r.MonitorMode == "" {
		r.MonitorMode = MonitorModeSignalR
	}
	if r.MonitorFallback == "" {
		r.MonitorFallback = MonitorFallbackNone
	}
	if !r.MonitorMode.Valid() {
		return apperrors.ValidationField("monitorMode", "unsupported monitor mode "+string(r.MonitorMode))
	}
	if !r.MonitorFallback.Valid() {
		return apperrors.ValidationField("monitorFallback", "unsupported monitor fallback "+string(r.MonitorFallback))
	}
	if r.OnError == nil {
		return apperrors.ValidationField("onError", "an error handler is required")
	}
	return nil
}

// JobSubscription is a read-only snapshot of one registered subscription.
type JobSubscription struct {
	ID                      string                    `json:"id"`
	FilterBy                model.JobMonitoringFilter `json:"filterBy"`
	FetchPriorNotifications bool                      `json:"fetchPriorNotifications"`
	MonitorMode             MonitorMode               `json:"monitorMode"`
	MonitorFallback         MonitorFallback           `json:"monitorFallback"`
	Transport               TransportState            `json:"transport"`
	IsEnabled               bool                      `json:"isEnabled"`
	StartDate               time.Time                 `json:"startDate"`
	LastUpdate              *time.Time                `json:"lastUpdate,omitempty"`
	OnError                 func(error)               `json:"-"`
	OnDisconnect            func()                    `json:"-"`
}

// JobNotification pairs a subscription with a job snapshot. Delivered notifications
// carry the snapshot that changed; Results carries the most recently updated job.
// LatestJob is nil until a matching job has been seen.
type JobNotification struct {
	Subscription JobSubscription   `json:"subscription"`
	LatestJob    *model.JobDetails `json:"latestJob,omitempty"`
}

// subscription is the registry-owned mutable record behind a JobSubscription.
// All fields are guarded by Registry.mu.
type subscription struct {
	id           string
	handle       *Handle
	filter       model.JobMonitoringFilter
	fetchPrior   bool
	fallback     MonitorFallback
	enabled      bool
	onError      func(error)
	onDisconnect func()
	startDate    time.Time
	lastUpdate   *time.Time

	state     MonitorState
	latest    *model.JobDetails
	seen      map[string]*model.JobDetails // newest snapshot per job id
	pollerKey string
	watching  bool
	alive     bool
}

func (s *subscription) snapshot() JobSubscription {
	var last *time.Time
	if s.lastUpdate != nil {
		t := *s.lastUpdate
		last = &t
	}
	return JobSubscription{
		ID:                      s.id,
		FilterBy:                s.filter,
		FetchPriorNotifications: s.fetchPrior,
		MonitorMode:             s.state.Mode,
		MonitorFallback:         s.fallback,
		Transport:               s.state.Transport,
		IsEnabled:               s.enabled,
		StartDate:               s.startDate,
		LastUpdate:              last,
		OnError:                 s.onError,
		OnDisconnect:            s.onDisconnect,
	}
}

func (s *subscription) notification() JobNotification {
	return JobNotification{Subscription: s.snapshot(), LatestJob: s.latest}
}

// maxSeenJobs bounds the per-subscription freshness index.
const maxSeenJobs = 1024

// observe folds job into the subscription. It reports false when job is older than,
// or carries the same state as, the snapshot already held for the same job id.
func (s *subscription) observe(job *model.JobDetails) (stale, same bool) {
	if held, ok := s.seen[job.JobID]; ok {
		if job.LastUpdated.Before(held.LastUpdated) {
			return true, false
		}
		if held.SameState(job) {
			return false, true
		}
	}
	if s.seen == nil {
		s.seen = make(map[string]*model.JobDetails)
	}
	s.seen[job.JobID] = job
	if len(s.seen) > maxSeenJobs {
		s.evictOldestSeen()
	}
	if s.latest == nil || !job.LastUpdated.Before(s.latest.LastUpdated) {
		s.latest = job
	}
	return false, false
}

// evictOldestSeen drops the least recently updated job, preferring finished ones.
func (s *subscription) evictOldestSeen() {
	var victim *model.JobDetails
	for _, j := range s.seen {
		switch {
		case victim == nil:
			victim = j
		case victim.IsActive() && !j.IsActive():
			victim = j
		case victim.IsActive() == j.IsActive() && j.LastUpdated.Before(victim.LastUpdated):
			victim = j
		}
	}
	if victim != nil {
		delete(s.seen, victim.JobID)
	}
}
