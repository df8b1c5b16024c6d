package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/job"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/mocks"
)

var t0 = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

// newTestRegistry builds a registry whose prior fetches return prior.
func newTestRegistry(t *testing.T, prior ...model.JobSummary) (*job.Registry, *mocks.MockJobStatusFetcher) {
	t.Helper()
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockJobStatusFetcher(ctrl)
	fetcher.EXPECT().FetchJobs(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, f model.JobMonitoringFilter) ([]model.JobSummary, error) {
			var out []model.JobSummary
			for _, s := range prior {
				d, err := model.NewJobDetails(s)
				if err == nil && f.Matches(d) {
					out = append(out, s)
				}
			}
			return out, nil
		}).AnyTimes()

	reg, err := job.NewRegistry(job.RegistryOptions{Fetcher: fetcher})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg, fetcher
}

func flush(t *testing.T, reg *job.Registry) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, reg.Flush(ctx))
}

// offline feeds subscriptions only through prior fetches and Ingest.
var offline = MonitorSettings{Mode: job.MonitorModeOff, Fallback: job.MonitorFallbackNone}

type jobOpt func(*model.JobSummary)

func withStatus(running model.RunningStatus, completion model.CompletionStatus) jobOpt {
	return func(s *model.JobSummary) {
		s.RunningStatus = running
		s.CompletionStatus = completion
	}
}

func at(ts time.Time) jobOpt {
	return func(s *model.JobSummary) { s.LastUpdated = ts }
}

func invokedBy(userID string) jobOpt {
	return func(s *model.JobSummary) { s.InvokerUserID = userID }
}

func withOutcome(outcome string) jobOpt {
	return func(s *model.JobSummary) { s.Outcome = outcome }
}

func summary(id string, jobType model.JobType, specID string, opts ...jobOpt) model.JobSummary {
	s := model.JobSummary{
		JobID:           id,
		JobType:         jobType,
		SpecificationID: specID,
		RunningStatus:   model.RunningStatusInProgress,
		LastUpdated:     t0,
	}
	for _, o := range opts {
		o(&s)
	}
	return s
}

func succeeded() jobOpt {
	return withStatus(model.RunningStatusCompleted, model.CompletionStatusSucceeded)
}

func failed() jobOpt {
	return withStatus(model.RunningStatusCompleted, model.CompletionStatusFailed)
}

// recordingReporter is a core.ErrorReporter that keeps every report.
type recordingReporter struct {
	mu      sync.Mutex
	reports []model.ErrorReport
}

func (r *recordingReporter) ReportError(_ context.Context, report model.ErrorReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func (r *recordingReporter) all() []model.ErrorReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ErrorReport(nil), r.reports...)
}

// countingSink is a statsd.Sink that tallies counters by name and result tag.
type countingSink struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newCountingSink() *countingSink { return &countingSink{counts: make(map[string]int64)} }

func (c *countingSink) Count(name string, value int64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name+":"+tags["result"]] += value
}

func (c *countingSink) Gauge(string, float64, map[string]string) {}

func (c *countingSink) Timing(string, time.Duration, map[string]string) {}

func (c *countingSink) get(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}
