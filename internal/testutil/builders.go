package testutil

import (
	"time"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
)

// JobSummaryBuilder builds raw job records for tests.
type JobSummaryBuilder struct {
	summary model.JobSummary
}

// NewJobSummary starts an in-progress job of the given type at TestTime.
func NewJobSummary(jobID string, jobType model.JobType) *JobSummaryBuilder {
	return &JobSummaryBuilder{summary: model.JobSummary{
		JobID:         jobID,
		JobType:       jobType,
		RunningStatus: model.RunningStatusInProgress,
		LastUpdated:   TestTime(),
	}}
}

// ForSpecification sets the specification id.
func (b *JobSummaryBuilder) ForSpecification(specificationID string) *JobSummaryBuilder {
	b.summary.SpecificationID = specificationID
	return b
}

// TriggeredBy sets the triggering entity id.
func (b *JobSummaryBuilder) TriggeredBy(entityID string) *JobSummaryBuilder {
	b.summary.EntityID = entityID
	return b
}

// ChildOf sets the parent job id.
func (b *JobSummaryBuilder) ChildOf(parentJobID string) *JobSummaryBuilder {
	b.summary.ParentJobID = parentJobID
	return b
}

// InvokedBy sets the invoking user.
func (b *JobSummaryBuilder) InvokedBy(userID, displayName string) *JobSummaryBuilder {
	b.summary.InvokerUserID = userID
	b.summary.InvokerUserDisplayName = displayName
	return b
}

// Queued marks the job as queued.
func (b *JobSummaryBuilder) Queued() *JobSummaryBuilder {
	b.summary.RunningStatus = model.RunningStatusQueued
	b.summary.CompletionStatus = ""
	return b
}

// Succeeded marks the job as completed successfully.
func (b *JobSummaryBuilder) Succeeded() *JobSummaryBuilder {
	return b.Completed(model.CompletionStatusSucceeded)
}

// Failed marks the job as failed with the given outcome and failure descriptions.
func (b *JobSummaryBuilder) Failed(outcome string, failures ...string) *JobSummaryBuilder {
	b.Completed(model.CompletionStatusFailed)
	b.summary.Outcome = outcome
	for _, f := range failures {
		b.summary.Outcomes = append(b.summary.Outcomes, model.OutcomeDetail{Description: f, JobType: b.summary.JobType})
	}
	return b
}

// Completed marks the job as completed with status.
func (b *JobSummaryBuilder) Completed(status model.CompletionStatus) *JobSummaryBuilder {
	b.summary.RunningStatus = model.RunningStatusCompleted
	b.summary.CompletionStatus = status
	return b
}

// At sets the last updated time.
func (b *JobSummaryBuilder) At(ts time.Time) *JobSummaryBuilder {
	b.summary.LastUpdated = ts
	return b
}

// After moves the last updated time forward by d.
func (b *JobSummaryBuilder) After(d time.Duration) *JobSummaryBuilder {
	b.summary.LastUpdated = b.summary.LastUpdated.Add(d)
	return b
}

// Build returns the raw record.
func (b *JobSummaryBuilder) Build() model.JobSummary {
	s := b.summary
	s.Outcomes = append([]model.OutcomeDetail(nil), s.Outcomes...)
	return s
}

// Details returns the normalised snapshot and panics on an invalid record.
func (b *JobSummaryBuilder) Details() *model.JobDetails {
	d, err := model.NewJobDetails(b.Build())
	if err != nil {
		panic(err)
	}
	return d
}

// Outcome returns the persisted form of the record. The job must be complete.
func (b *JobSummaryBuilder) Outcome() model.JobOutcome {
	return model.NewJobOutcome(b.Details())
}
