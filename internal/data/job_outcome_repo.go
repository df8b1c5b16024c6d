package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/data/pgxutil"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	apperrors "github.com/skillsfundingagency/cfs-jobwatch/internal/errors"
)

const (
	defaultOutcomeListLimit = 50
	maxOutcomeListLimit     = 500
)

const jobOutcomeColumns = `job_id, job_type, specification_id, running_status, completion_status,
	outcome, invoker_display_name, last_updated, recorded_at`

// JobOutcomeRepo persists terminal job outcomes in PostgreSQL.
type JobOutcomeRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ core.OutcomeRepository = (*JobOutcomeRepo)(nil)

// NewJobOutcomeRepo creates a JobOutcomeRepo over db.
func NewJobOutcomeRepo(db *sql.DB) *JobOutcomeRepo {
	return &JobOutcomeRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewJobOutcomeRepoWithTimeProvider creates a JobOutcomeRepo with a custom clock.
func NewJobOutcomeRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *JobOutcomeRepo {
	return &JobOutcomeRepo{DB: db, timeProvider: tp}
}

// Record inserts the outcome unless the job id is already stored. It reports
// whether a row was written.
func (r *JobOutcomeRepo) Record(ctx context.Context, outcome model.JobOutcome) (bool, error) {
	if strings.TrimSpace(outcome.JobID) == "" {
		return false, ErrJobIDRequired
	}

	recordedAt := r.timeProvider.Now().UTC()
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx, `
			INSERT INTO job_outcomes (
				job_id, job_type, specification_id, running_status, completion_status,
				outcome, invoker_display_name, last_updated, recorded_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (job_id) DO NOTHING
			RETURNING job_id`,
			outcome.JobID,
			string(outcome.JobType),
			outcome.SpecificationID,
			string(outcome.RunningStatus),
			string(outcome.CompletionStatus),
			outcome.Outcome,
			outcome.InvokerDisplayName,
			outcome.LastUpdated.UTC(),
			recordedAt,
		)
		var id string
		return row.Scan(&id)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("record job outcome %s: %w", outcome.JobID, apperrors.MapDBError(err))
	}
	return true, nil
}

// ListBySpecification returns the most recently updated outcomes for a specification.
func (r *JobOutcomeRepo) ListBySpecification(
	ctx context.Context,
	specificationID string,
	limit int,
) ([]model.JobOutcome, error) {
	if strings.TrimSpace(specificationID) == "" {
		return nil, ErrSpecificationIDRequired
	}
	switch {
	case limit <= 0:
		limit = defaultOutcomeListLimit
	case limit > maxOutcomeListLimit:
		limit = maxOutcomeListLimit
	}

	var out []model.JobOutcome
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+jobOutcomeColumns+`
			FROM job_outcomes
			WHERE specification_id = $1
			ORDER BY last_updated DESC, job_id
			LIMIT $2`, specificationID, limit)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.JobOutcome])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list job outcomes: %w", apperrors.MapDBError(err))
	}
	return out, nil
}
