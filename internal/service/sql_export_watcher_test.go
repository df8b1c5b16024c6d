package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
)

func startSQLExportWatcher(t *testing.T, reporter *recordingReporter, prior ...model.JobSummary) (*SQLExportJobsWatcher, func(model.JobSummary)) {
	t.Helper()
	reg, _ := newTestRegistry(t, prior...)
	opts := WatcherOptions{Registry: reg, Monitor: offline}
	if reporter != nil {
		opts.Ports.Errors = reporter
	}
	w := NewSQLExportJobsWatcher(opts)
	require.NoError(t, w.Start(context.Background(), "S1"))
	t.Cleanup(w.Stop)
	flush(t, reg)

	return w, func(s model.JobSummary) {
		reg.Ingest(s)
		flush(t, reg)
	}
}

func TestSQLExportJobsWatcher_ExportFlags(t *testing.T) {
	w, ingest := startSQLExportWatcher(t, nil)

	ingest(summary("E1", model.JobTypeRunSQLImport, "S1", invokedBy("u1")))
	st := w.State()
	assert.True(t, st.IsExportingCurrent)
	assert.False(t, st.IsExportingReleased)
	require.NotNil(t, st.LatestExportJob)
	assert.Equal(t, "E1", st.LatestExportJob.JobID)

	ingest(summary("R1", model.JobTypeRunReleasedSQLImport, "S1", at(t0.Add(time.Minute))))
	st = w.State()
	assert.True(t, st.IsExportingCurrent)
	assert.True(t, st.IsExportingReleased)
	assert.Equal(t, "R1", st.LatestExportJob.JobID)

	ingest(summary("E1", model.JobTypeRunSQLImport, "S1", succeeded(), at(t0.Add(2*time.Minute))))
	st = w.State()
	assert.False(t, st.IsExportingCurrent)
	assert.True(t, st.IsExportingReleased)
	require.NotNil(t, st.LastExportSucceededAt)
	assert.Equal(t, t0.Add(2*time.Minute), *st.LastExportSucceededAt)
}

func TestSQLExportJobsWatcher_BlockedByFundingJobs(t *testing.T) {
	w, ingest := startSQLExportWatcher(t, nil)

	ingest(summary("F1", model.JobTypeRefreshFunding, "S1"))
	ingest(summary("F2", model.JobTypeApproveAllProviderFunding, "S1", at(t0.Add(time.Minute))))

	st := w.State()
	assert.True(t, st.IsExportBlocked)
	require.NotNil(t, st.BlockingJob)
	assert.Equal(t, "F2", st.BlockingJob.JobID)

	ingest(summary("F2", model.JobTypeApproveAllProviderFunding, "S1", succeeded(), at(t0.Add(2*time.Minute))))
	st = w.State()
	assert.True(t, st.IsExportBlocked)
	assert.Equal(t, "F1", st.BlockingJob.JobID)

	ingest(summary("F1", model.JobTypeRefreshFunding, "S1", failed(), at(t0.Add(3*time.Minute))))
	st = w.State()
	assert.False(t, st.IsExportBlocked)
	assert.Nil(t, st.BlockingJob)
	assert.Nil(t, st.LatestExportJob)
}

func TestSQLExportJobsWatcher_OlderFundingJobStillBlocks(t *testing.T) {
	w, ingest := startSQLExportWatcher(t, nil)

	ingest(summary("E1", model.JobTypeRunSQLImport, "S1", succeeded(), at(t0.Add(30*time.Second))))
	ingest(summary("F1", model.JobTypeRefreshFunding, "S1", at(t0.Add(10*time.Second))))

	st := w.State()
	assert.True(t, st.IsExportBlocked)
	require.NotNil(t, st.BlockingJob)
	assert.Equal(t, "F1", st.BlockingJob.JobID)
	assert.Equal(t, "E1", st.LatestExportJob.JobID)
}

func TestSQLExportJobsWatcher_AnotherUserRunningExport(t *testing.T) {
	w, _ := startSQLExportWatcher(t, nil,
		summary("E1", model.JobTypeRunSQLImport, "S1", invokedBy("alice")),
	)

	assert.True(t, w.StateFor("bob").IsAnotherUserRunningExport)
	assert.False(t, w.StateFor("alice").IsAnotherUserRunningExport)
	assert.False(t, w.State().IsAnotherUserRunningExport)
	assert.True(t, w.State().IsExportingCurrent)
}

func TestSQLExportJobsWatcher_FailureReportedOnceAndClearedBySuccess(t *testing.T) {
	reporter := &recordingReporter{}
	w, ingest := startSQLExportWatcher(t, reporter)

	ingest(summary("E1", model.JobTypeRunSQLImport, "S1", failed(), withOutcome("SQL server unreachable")))
	ingest(summary("E1", model.JobTypeRunSQLImport, "S1", failed(), withOutcome("SQL server unreachable"), at(t0.Add(time.Minute))))

	st := w.State()
	assert.Equal(t, "SQL server unreachable", st.LastExportFailure)
	assert.Nil(t, st.LastExportSucceededAt)

	reports := reporter.all()
	require.Len(t, reports, 1)
	assert.Equal(t, "E1", reports[0].JobID)
	assert.Equal(t, "SQL server unreachable", reports[0].Description)

	ingest(summary("E2", model.JobTypePopulateCalculationResultsQADatabase, "S1", succeeded(), at(t0.Add(2*time.Minute))))
	st = w.State()
	assert.Empty(t, st.LastExportFailure)
	require.NotNil(t, st.LastExportSucceededAt)
	assert.Len(t, reporter.all(), 1)
}

func TestSQLExportJobsWatcher_IgnoresOtherSpecifications(t *testing.T) {
	w, ingest := startSQLExportWatcher(t, nil)

	ingest(summary("E9", model.JobTypeRunSQLImport, "S2"))
	st := w.State()
	assert.False(t, st.IsExportingCurrent)
	assert.Nil(t, st.LatestExportJob)
	assert.Equal(t, "S1", st.SpecificationID)
}

func TestSQLExportJobTypes(t *testing.T) {
	types := SQLExportJobTypes()
	assert.Contains(t, types, model.JobTypeRunSQLImport)
	assert.Contains(t, types, model.JobTypeRunReleasedSQLImport)
	assert.Contains(t, types, model.JobTypeReleaseProvidersToChannels)
	assert.NotContains(t, types, model.JobTypeEditSpecification)
}
