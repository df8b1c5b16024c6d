package model

import "time"

// JobOutcome is the persisted record of a job that reached the Completed stage.
type JobOutcome struct {
	JobID              string           `json:"job_id"               db:"job_id"`
	JobType            JobType          `json:"job_type"             db:"job_type"`
	SpecificationID    string           `json:"specification_id"     db:"specification_id"`
	RunningStatus      RunningStatus    `json:"running_status"       db:"running_status"`
	CompletionStatus   CompletionStatus `json:"completion_status"    db:"completion_status"`
	Outcome            string           `json:"outcome"              db:"outcome"`
	InvokerDisplayName string           `json:"invoker_display_name" db:"invoker_display_name"`
	LastUpdated        time.Time        `json:"last_updated"         db:"last_updated"`
	RecordedAt         time.Time        `json:"recorded_at"          db:"recorded_at"`
}

// NewJobOutcome builds the persisted form of a completed job snapshot.
func NewJobOutcome(job *JobDetails) JobOutcome {
	return JobOutcome{
		JobID:              job.JobID,
		JobType:            job.JobType,
		SpecificationID:    job.SpecificationID,
		RunningStatus:      job.RunningStatus,
		CompletionStatus:   job.CompletionStatus,
		Outcome:            job.Outcome,
		InvokerDisplayName: job.InvokerUserDisplayName,
		LastUpdated:        job.LastUpdated,
	}
}

// ErrorReport is one entry surfaced to the user-facing error context.
type ErrorReport struct {
	Err         error     `json:"-"`
	Message     string    `json:"message"`
	Description string    `json:"description,omitempty"`
	FieldName   string    `json:"fieldName,omitempty"`
	Suggestion  string    `json:"suggestion,omitempty"`
	JobID       string    `json:"jobId,omitempty"`
	ReportedAt  time.Time `json:"reportedAt"`
}
