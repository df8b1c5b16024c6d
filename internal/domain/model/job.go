// Package model defines the core data types shared by the job monitoring layers.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RunningStatus is the lifecycle stage reported by the jobs service.
type RunningStatus string

// CompletionStatus is the terminal result of a completed job.
type CompletionStatus string

const (
	// RunningStatusQueued indicates the job is waiting for a worker.
	RunningStatusQueued RunningStatus = "Queued"
	// RunningStatusQueuedWithService indicates the job has been handed to the owning service.
	RunningStatusQueuedWithService RunningStatus = "QueuedWithService"
	// RunningStatusInProgress indicates a worker is processing the job.
	RunningStatusInProgress RunningStatus = "InProgress"
	// RunningStatusCompleting indicates child jobs are finishing.
	RunningStatusCompleting RunningStatus = "Completing"
	// RunningStatusCompleted indicates the job has a completion status.
	RunningStatusCompleted RunningStatus = "Completed"

	// CompletionStatusSucceeded indicates the job finished successfully.
	CompletionStatusSucceeded CompletionStatus = "Succeeded"
	// CompletionStatusFailed indicates the job failed.
	CompletionStatusFailed CompletionStatus = "Failed"
	// CompletionStatusTimedOut indicates the job exceeded its allowed run time.
	CompletionStatusTimedOut CompletionStatus = "TimedOut"
	// CompletionStatusCancelled indicates the job was cancelled.
	CompletionStatusCancelled CompletionStatus = "Cancelled"
	// CompletionStatusSuperseded indicates a newer job of the same kind replaced this one.
	CompletionStatusSuperseded CompletionStatus = "Superseded"
)

// ErrMalformedJob is returned when a raw job record cannot be normalised.
var ErrMalformedJob = errors.New("malformed job record")

// Valid reports whether the running status is one of the known values.
func (s RunningStatus) Valid() bool {
	switch s {
	case RunningStatusQueued, RunningStatusQueuedWithService, RunningStatusInProgress,
		RunningStatusCompleting, RunningStatusCompleted:
		return true
	default:
		return false
	}
}

// Valid reports whether the completion status is one of the known values.
func (s CompletionStatus) Valid() bool {
	switch s {
	case CompletionStatusSucceeded, CompletionStatusFailed, CompletionStatusTimedOut,
		CompletionStatusCancelled, CompletionStatusSuperseded:
		return true
	default:
		return false
	}
}

// OutcomeDetail is one entry of a job's outcome list.
type OutcomeDetail struct {
	Description  string  `json:"description"`
	Type         string  `json:"type,omitempty"`
	JobType      JobType `json:"jobType,omitempty"`
	IsSuccessful bool    `json:"isSuccessful"`
}

// JobSummary is the raw job status record emitted by the jobs API and the notifications hub.
type JobSummary struct {
	JobID                  string           `json:"jobId"`
	JobType                JobType          `json:"jobType"`
	SpecificationID        string           `json:"specificationId,omitempty"`
	EntityID               string           `json:"entityId,omitempty"`
	ParentJobID            string           `json:"parentJobId,omitempty"`
	RunningStatus          RunningStatus    `json:"runningStatus"`
	CompletionStatus       CompletionStatus `json:"completionStatus,omitempty"`
	InvokerUserID          string           `json:"invokerUserId,omitempty"`
	InvokerUserDisplayName string           `json:"invokerUserDisplayName,omitempty"`
	Outcome                string           `json:"outcome,omitempty"`
	OutcomeType            string           `json:"outcomeType,omitempty"`
	Outcomes               []OutcomeDetail  `json:"outcomes,omitempty"`
	Created                *time.Time       `json:"created,omitempty"`
	LastUpdated            time.Time        `json:"lastUpdated"`
}

// JobFailure describes one failed step of a job.
type JobFailure struct {
	Description string  `json:"description"`
	Type        string  `json:"type,omitempty"`
	JobType     JobType `json:"jobType,omitempty"`
}

// JobDetails is an immutable, normalised snapshot of one backend job.
// Build it with NewJobDetails; never mutate a snapshot after it is shared.
type JobDetails struct {
	JobID                  string
	JobType                JobType
	SpecificationID        string
	TriggeredByEntityID    string
	ParentJobID            string
	RunningStatus          RunningStatus
	CompletionStatus       CompletionStatus
	StatusDescription      string
	JobDescription         string
	Outcome                string
	InvokerUserID          string
	InvokerUserDisplayName string
	Failures               []JobFailure
	Created                *time.Time
	LastUpdated            time.Time
}

// NewJobDetails normalises a raw job record into a JobDetails snapshot.
func NewJobDetails(raw JobSummary) (*JobDetails, error) {
	jobID := strings.TrimSpace(raw.JobID)
	if jobID == "" {
		return nil, fmt.Errorf("%w: jobId is required", ErrMalformedJob)
	}
	if !raw.RunningStatus.Valid() {
		return nil, fmt.Errorf("%w: job %s has invalid runningStatus %q", ErrMalformedJob, jobID, raw.RunningStatus)
	}
	if raw.LastUpdated.IsZero() {
		return nil, fmt.Errorf("%w: job %s has no lastUpdated", ErrMalformedJob, jobID)
	}

	completion := raw.CompletionStatus
	if raw.RunningStatus != RunningStatusCompleted {
		completion = ""
	}

	var failures []JobFailure
	for _, o := range raw.Outcomes {
		if o.IsSuccessful {
			continue
		}
		failures = append(failures, JobFailure{Description: o.Description, Type: o.Type, JobType: o.JobType})
	}

	return &JobDetails{
		JobID:                  jobID,
		JobType:                raw.JobType,
		SpecificationID:        raw.SpecificationID,
		TriggeredByEntityID:    raw.EntityID,
		ParentJobID:            raw.ParentJobID,
		RunningStatus:          raw.RunningStatus,
		CompletionStatus:       completion,
		StatusDescription:      describeStatus(raw.RunningStatus, completion),
		JobDescription:         raw.JobType.Description(),
		Outcome:                raw.Outcome,
		InvokerUserID:          raw.InvokerUserID,
		InvokerUserDisplayName: raw.InvokerUserDisplayName,
		Failures:               failures,
		Created:                raw.Created,
		LastUpdated:            raw.LastUpdated.UTC(),
	}, nil
}

// IsActive reports whether the job has not reached the Completed stage.
func (j *JobDetails) IsActive() bool {
	switch j.RunningStatus {
	case RunningStatusQueued, RunningStatusQueuedWithService, RunningStatusInProgress, RunningStatusCompleting:
		return true
	default:
		return false
	}
}

// IsComplete reports whether the job has reached the Completed stage.
func (j *JobDetails) IsComplete() bool {
	return j.RunningStatus == RunningStatusCompleted
}

// IsSuccessful reports whether the job completed with Succeeded.
func (j *JobDetails) IsSuccessful() bool {
	return j.IsComplete() && j.CompletionStatus == CompletionStatusSucceeded
}

// IsFailed reports whether the job completed with anything other than Succeeded.
func (j *JobDetails) IsFailed() bool {
	return j.IsComplete() && j.CompletionStatus != CompletionStatusSucceeded
}

// SameState reports whether other carries the same job state as j.
func (j *JobDetails) SameState(other *JobDetails) bool {
	if j == nil || other == nil {
		return j == other
	}
	return j.JobID == other.JobID &&
		j.RunningStatus == other.RunningStatus &&
		j.CompletionStatus == other.CompletionStatus &&
		j.LastUpdated.Equal(other.LastUpdated)
}

// Summary converts the snapshot back to its wire record.
func (j *JobDetails) Summary() JobSummary {
	var outcomes []OutcomeDetail
	for _, f := range j.Failures {
		outcomes = append(outcomes, OutcomeDetail{Description: f.Description, Type: f.Type, JobType: f.JobType})
	}
	return JobSummary{
		JobID:                  j.JobID,
		JobType:                j.JobType,
		SpecificationID:        j.SpecificationID,
		EntityID:               j.TriggeredByEntityID,
		ParentJobID:            j.ParentJobID,
		RunningStatus:          j.RunningStatus,
		CompletionStatus:       j.CompletionStatus,
		InvokerUserID:          j.InvokerUserID,
		InvokerUserDisplayName: j.InvokerUserDisplayName,
		Outcome:                j.Outcome,
		Outcomes:               outcomes,
		Created:                j.Created,
		LastUpdated:            j.LastUpdated,
	}
}

type jobDetailsJSON struct {
	JobID                  string           `json:"jobId"`
	JobType                JobType          `json:"jobType"`
	SpecificationID        string           `json:"specificationId,omitempty"`
	TriggeredByEntityID    string           `json:"triggeredByEntityId,omitempty"`
	ParentJobID            string           `json:"parentJobId,omitempty"`
	RunningStatus          RunningStatus    `json:"runningStatus"`
	CompletionStatus       CompletionStatus `json:"completionStatus,omitempty"`
	StatusDescription      string           `json:"statusDescription"`
	JobDescription         string           `json:"jobDescription"`
	Outcome                string           `json:"outcome,omitempty"`
	InvokerUserID          string           `json:"invokerUserId,omitempty"`
	InvokerUserDisplayName string           `json:"invokerUserDisplayName,omitempty"`
	Failures               []JobFailure     `json:"failures,omitempty"`
	Created                *time.Time       `json:"created,omitempty"`
	LastUpdated            time.Time        `json:"lastUpdated"`
	IsActive               bool             `json:"isActive"`
	IsComplete             bool             `json:"isComplete"`
	IsSuccessful           bool             `json:"isSuccessful"`
	IsFailed               bool             `json:"isFailed"`
}

// MarshalJSON encodes the snapshot together with its derived flags.
func (j *JobDetails) MarshalJSON() ([]byte, error) {
	return json.Marshal(jobDetailsJSON{
		JobID:                  j.JobID,
		JobType:                j.JobType,
		SpecificationID:        j.SpecificationID,
		TriggeredByEntityID:    j.TriggeredByEntityID,
		ParentJobID:            j.ParentJobID,
		RunningStatus:          j.RunningStatus,
		CompletionStatus:       j.CompletionStatus,
		StatusDescription:      j.StatusDescription,
		JobDescription:         j.JobDescription,
		Outcome:                j.Outcome,
		InvokerUserID:          j.InvokerUserID,
		InvokerUserDisplayName: j.InvokerUserDisplayName,
		Failures:               j.Failures,
		Created:                j.Created,
		LastUpdated:            j.LastUpdated,
		IsActive:               j.IsActive(),
		IsComplete:             j.IsComplete(),
		IsSuccessful:           j.IsSuccessful(),
		IsFailed:               j.IsFailed(),
	})
}

func describeStatus(running RunningStatus, completion CompletionStatus) string {
	switch running {
	case RunningStatusQueued, RunningStatusQueuedWithService:
		return "Job is queued"
	case RunningStatusInProgress:
		return "Job is in progress"
	case RunningStatusCompleting:
		return "Job is completing"
	case RunningStatusCompleted:
	}

	switch completion {
	case CompletionStatusSucceeded:
		return "Job completed successfully"
	case CompletionStatusCancelled:
		return "Job was cancelled"
	case CompletionStatusTimedOut:
		return "Job timed out"
	case CompletionStatusSuperseded:
		return "Job was superseded"
	case CompletionStatusFailed:
		return "Job failed"
	default:
		return "Job completed with an unknown status"
	}
}
