package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
)

func TestFailurePayload(t *testing.T) {
	job, err := model.NewJobDetails(model.JobSummary{
		JobID:                  "job-1",
		JobType:                model.JobTypeRefreshFunding,
		SpecificationID:        "spec-1",
		RunningStatus:          model.RunningStatusCompleted,
		CompletionStatus:       model.CompletionStatusFailed,
		InvokerUserDisplayName: "Ada",
		Outcomes: []model.OutcomeDetail{
			{Description: "Provider 1001 missing"},
			{Description: "  "},
			{Description: "fine", IsSuccessful: true},
		},
		LastUpdated: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	p := FailurePayload(job)
	assert.Equal(t, "job-1", p.JobID)
	assert.Equal(t, "Refreshing funding", p.JobDescription)
	assert.Equal(t, []string{"Provider 1001 missing"}, p.Failures)
	assert.Equal(t, SeverityError, p.Severity)
	assert.Equal(t, "Ada", p.Invoker)
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, SeverityWarning, SeverityFor(model.CompletionStatusCancelled))
	assert.Equal(t, SeverityWarning, SeverityFor(model.CompletionStatusSuperseded))
	assert.Equal(t, SeverityError, SeverityFor(model.CompletionStatusTimedOut))
	assert.Equal(t, SeverityError, SeverityFor(model.CompletionStatusFailed))
}

func TestRetry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Retry(ctx, 3, func(context.Context) error { return errors.New("down") })
	require.ErrorIs(t, err, context.Canceled)
}
