package model

import (
	"slices"
	"strconv"
	"strings"
)

// JobMonitoringFilter describes which jobs a subscriber cares about.
// Every populated field must match (AND semantics); empty fields match anything.
type JobMonitoringFilter struct {
	JobTypes          []JobType `json:"jobTypes,omitempty"`
	JobID             string    `json:"jobId,omitempty"`
	TriggerByEntityID string    `json:"triggerByEntityId,omitempty"`
	IncludeChildJobs  bool      `json:"includeChildJobs,omitempty"`
	SpecificationID   string    `json:"specificationId,omitempty"`
}

// Matches reports whether job satisfies every populated field of the filter.
// IncludeChildJobs widens a JobID constraint to jobs whose parent is that id.
func (f JobMonitoringFilter) Matches(job *JobDetails) bool {
	if job == nil {
		return false
	}
	if f.JobID != "" && job.JobID != f.JobID {
		if !f.IncludeChildJobs || job.ParentJobID != f.JobID {
			return false
		}
	}
	if len(f.JobTypes) > 0 && !slices.Contains(f.JobTypes, job.JobType) {
		return false
	}
	if f.SpecificationID != "" && job.SpecificationID != f.SpecificationID {
		return false
	}
	if f.TriggerByEntityID != "" && job.TriggeredByEntityID != f.TriggerByEntityID {
		return false
	}
	return true
}

// IsUnconstrained reports whether the filter matches every job.
func (f JobMonitoringFilter) IsUnconstrained() bool {
	return len(f.JobTypes) == 0 && f.JobID == "" && f.SpecificationID == "" && f.TriggerByEntityID == ""
}

// Key returns a canonical structural identity for the filter. Two filters with the
// same fields (in any job type order, duplicates ignored) share a key.
func (f JobMonitoringFilter) Key() string {
	types := make([]string, 0, len(f.JobTypes))
	for _, t := range SortJobTypes(slices.Clone(f.JobTypes)) {
		types = append(types, string(t))
	}
	types = slices.Compact(types)

	var b strings.Builder
	b.WriteString("job=")
	b.WriteString(strconv.Quote(f.JobID))
	b.WriteString(";children=")
	b.WriteString(strconv.FormatBool(f.IncludeChildJobs && f.JobID != ""))
	b.WriteString(";spec=")
	b.WriteString(strconv.Quote(f.SpecificationID))
	b.WriteString(";entity=")
	b.WriteString(strconv.Quote(f.TriggerByEntityID))
	b.WriteString(";types=")
	b.WriteString(strings.Join(types, ","))
	return b.String()
}

// SortJobTypes sorts the slice in place and returns it.
func SortJobTypes(types []JobType) []JobType {
	slices.Sort(types)
	return types
}
