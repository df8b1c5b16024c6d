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

	apperrors "github.com/skillsfundingagency/cfs-jobwatch/internal/errors"
)

// WatchServiceOptions configure a WatchService.
type WatchServiceOptions struct {
	Watchers WatcherOptions
	// MaxWatches caps concurrently watched specifications; zero means unlimited.
	MaxWatches int
	Now        func() time.Time
}

// SpecificationWatch is the summary of one watched specification.
type SpecificationWatch struct {
	SpecificationID string    `json:"specificationId"`
	StartedAt       time.Time `json:"startedAt"`
	HasActiveJob    bool      `json:"hasActiveJob"`
}

type specificationWatch struct {
	jobs      *SpecificationJobsWatcher
	export    *SQLExportJobsWatcher
	startedAt time.Time
}

// WatchService owns the feature watchers of every watched specification. It is the
// process-level equivalent of mounting the specification page.
type WatchService struct {
	opts       WatcherOptions
	maxWatches int
	now        func() time.Time
	logger     *slog.Logger

	mu      sync.Mutex
	watches map[string]*specificationWatch
	closed  bool
}

// NewWatchService constructs a WatchService.
func NewWatchService(opts WatchServiceOptions) *WatchService {
	if opts.Watchers.Registry == nil {
		panic("job registry is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &WatchService{
		opts:       opts.Watchers,
		maxWatches: opts.MaxWatches,
		now:        now,
		logger:     opts.Watchers.logger("watch_service"),
		watches:    make(map[string]*specificationWatch),
	}
}

// Watch starts the watchers for specificationID. It reports whether a new watch was
// created; watching an already watched specification is a no-op.
func (s *WatchService) Watch(ctx context.Context, specificationID string) (bool, error) {
	specificationID = strings.TrimSpace(specificationID)
	if specificationID == "" {
		return false, apperrors.ValidationField("specificationId", "specification id is required")
	}

	if err := s.admit(specificationID); err != nil || s.watching(specificationID) {
		return false, err
	}

	// watchers start outside the lock: the prior fetch is a REST round trip
	w := &specificationWatch{
		jobs:      NewSpecificationJobsWatcher(s.opts),
		export:    NewSQLExportJobsWatcher(s.opts),
		startedAt: s.now().UTC(),
	}
	if err := w.jobs.Start(ctx, specificationID); err != nil {
		return false, err
	}
	if err := w.export.Start(ctx, specificationID); err != nil {
		w.jobs.Stop()
		return false, err
	}

	s.mu.Lock()
	_, raced := s.watches[specificationID]
	stored := !raced && !s.closed
	if stored {
		s.watches[specificationID] = w
	}
	count := len(s.watches)
	s.mu.Unlock()

	if !stored {
		w.jobs.Stop()
		w.export.Stop()
		return false, nil
	}

	s.logger.InfoContext(ctx, "specification watch started",
		"specification_id", specificationID,
		"watches", count,
	)
	return true, nil
}

func (s *WatchService) admit(specificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.Unavailable("watch service is shutting down")
	}
	if _, ok := s.watches[specificationID]; ok {
		return nil
	}
	if s.maxWatches > 0 && len(s.watches) >= s.maxWatches {
		return apperrors.Conflict(fmt.Sprintf("at most %d specifications can be watched", s.maxWatches))
	}
	return nil
}

func (s *WatchService) watching(specificationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watches[specificationID]
	return ok
}

// Unwatch stops the watchers for specificationID and reports whether it was watched.
func (s *WatchService) Unwatch(specificationID string) bool {
	s.mu.Lock()
	w, ok := s.watches[specificationID]
	delete(s.watches, specificationID)
	s.mu.Unlock()

	if !ok {
		return false
	}
	w.jobs.Stop()
	w.export.Stop()
	s.logger.Info("specification watch stopped", "specification_id", specificationID)
	return true
}

// Jobs returns the specification jobs state of a watched specification.
func (s *WatchService) Jobs(specificationID string) (SpecificationJobsState, error) {
	w, err := s.get(specificationID)
	if err != nil {
		return SpecificationJobsState{}, err
	}
	return w.jobs.State(), nil
}

// SQLExport returns the SQL export state of a watched specification as seen by userID.
func (s *WatchService) SQLExport(specificationID, userID string) (SQLExportState, error) {
	w, err := s.get(specificationID)
	if err != nil {
		return SQLExportState{}, err
	}
	return w.export.StateFor(userID), nil
}

// List summarises every watched specification, ordered by id.
func (s *WatchService) List() []SpecificationWatch {
	s.mu.Lock()
	ids := slices.Sorted(maps.Keys(s.watches))
	watches := make([]*specificationWatch, 0, len(ids))
	for _, id := range ids {
		watches = append(watches, s.watches[id])
	}
	s.mu.Unlock()

	out := make([]SpecificationWatch, 0, len(ids))
	for i, w := range watches {
		out = append(out, SpecificationWatch{
			SpecificationID: ids[i],
			StartedAt:       w.startedAt,
			HasActiveJob:    w.jobs.State().HasActiveJob,
		})
	}
	return out
}

// Close stops every watch. Later Watch calls fail.
func (s *WatchService) Close() {
	s.mu.Lock()
	s.closed = true
	watches := s.watches
	s.watches = make(map[string]*specificationWatch)
	s.mu.Unlock()

	for _, w := range watches {
		w.jobs.Stop()
		w.export.Stop()
	}
}

func (s *WatchService) get(specificationID string) (*specificationWatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watches[specificationID]
	if !ok {
		return nil, apperrors.NotFoundf("specification %s is not being watched", specificationID)
	}
	return w, nil
}
