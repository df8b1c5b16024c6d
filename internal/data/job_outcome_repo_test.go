package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/testutil"
)

func outcomeFixture(jobID, specID string, updated time.Time) model.JobOutcome {
	return model.JobOutcome{
		JobID:              jobID,
		JobType:            model.JobTypeRefreshFunding,
		SpecificationID:    specID,
		RunningStatus:      model.RunningStatusCompleted,
		CompletionStatus:   model.CompletionStatusSucceeded,
		Outcome:            "Refresh complete",
		InvokerDisplayName: "Test User",
		LastUpdated:        updated,
	}
}

func TestJobOutcomeRepo_RecordOnce(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		now := testutil.TestTime()
		repo := NewJobOutcomeRepoWithTimeProvider(db, NewFixedTimeProvider(now))
		ctx := context.Background()

		written, err := repo.Record(ctx, outcomeFixture("job-1", "spec-1", now.Add(-time.Minute)))
		require.NoError(t, err)
		assert.True(t, written)

		written, err = repo.Record(ctx, outcomeFixture("job-1", "spec-1", now))
		require.NoError(t, err)
		assert.False(t, written, "second record of the same job must be ignored")

		got, err := repo.ListBySpecification(ctx, "spec-1", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, model.CompletionStatusSucceeded, got[0].CompletionStatus)
		assert.True(t, got[0].LastUpdated.Equal(now.Add(-time.Minute)))
		assert.True(t, got[0].RecordedAt.Equal(now))
	})
}

func TestJobOutcomeRepo_ListOrdersNewestFirst(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobOutcomeRepo(db)
		ctx := context.Background()
		base := testutil.TestTime()

		for i, id := range []string{"a", "b", "c"} {
			_, err := repo.Record(ctx, outcomeFixture(id, "spec-2", base.Add(time.Duration(i)*time.Minute)))
			require.NoError(t, err)
		}
		_, err := repo.Record(ctx, outcomeFixture("other", "spec-3", base))
		require.NoError(t, err)

		got, err := repo.ListBySpecification(ctx, "spec-2", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "c", got[0].JobID)
		assert.Equal(t, "b", got[1].JobID)
	})
}

func TestJobOutcomeRepo_Validation(t *testing.T) {
	repo := NewJobOutcomeRepo(nil)

	_, err := repo.Record(context.Background(), model.JobOutcome{JobID: "  "})
	require.ErrorIs(t, err, ErrJobIDRequired)

	_, err = repo.ListBySpecification(context.Background(), "", 10)
	require.ErrorIs(t, err, ErrSpecificationIDRequired)
}
