package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobMonitoringFilter_Matches(t *testing.T) {
	job := func(mod func(*JobSummary)) *JobDetails {
		raw := JobSummary{
			JobID:           "J1",
			JobType:         JobTypeRefreshFunding,
			SpecificationID: "S1",
			EntityID:        "E1",
			RunningStatus:   RunningStatusInProgress,
			LastUpdated:     t0,
		}
		if mod != nil {
			mod(&raw)
		}
		j, err := NewJobDetails(raw)
		if err != nil {
			t.Fatalf("NewJobDetails: %v", err)
		}
		return j
	}

	refresh := []JobType{JobTypeRefreshFunding}

	tests := []struct {
		name   string
		filter JobMonitoringFilter
		job    *JobDetails
		want   bool
	}{
		{"spec and type match", JobMonitoringFilter{SpecificationID: "S1", JobTypes: refresh}, job(nil), true},
		{
			"other specification",
			JobMonitoringFilter{SpecificationID: "S1", JobTypes: refresh},
			job(func(r *JobSummary) { r.SpecificationID = "S2" }),
			false,
		},
		{"empty filter matches anything", JobMonitoringFilter{}, job(nil), true},
		{"empty job types imposes nothing", JobMonitoringFilter{JobTypes: []JobType{}}, job(nil), true},
		{"type not in list", JobMonitoringFilter{JobTypes: []JobType{JobTypeRunSQLImport}}, job(nil), false},
		{
			"type among several",
			JobMonitoringFilter{JobTypes: []JobType{JobTypeRunSQLImport, JobTypeRefreshFunding}},
			job(nil),
			true,
		},
		{"job id match", JobMonitoringFilter{JobID: "J1"}, job(nil), true},
		{"job id mismatch", JobMonitoringFilter{JobID: "J2"}, job(nil), false},
		{"entity match", JobMonitoringFilter{TriggerByEntityID: "E1"}, job(nil), true},
		{"entity mismatch", JobMonitoringFilter{TriggerByEntityID: "E2"}, job(nil), false},
		{
			"child without include flag",
			JobMonitoringFilter{JobID: "P1"},
			job(func(r *JobSummary) { r.ParentJobID = "P1" }),
			false,
		},
		{
			"child with include flag",
			JobMonitoringFilter{JobID: "P1", IncludeChildJobs: true},
			job(func(r *JobSummary) { r.ParentJobID = "P1" }),
			true,
		},
		{
			"child still needs other fields",
			JobMonitoringFilter{JobID: "P1", IncludeChildJobs: true, SpecificationID: "S9"},
			job(func(r *JobSummary) { r.ParentJobID = "P1" }),
			false,
		},
		{"nil job", JobMonitoringFilter{}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(tt.job))
		})
	}
}

func TestJobMonitoringFilter_Key(t *testing.T) {
	a := JobMonitoringFilter{
		SpecificationID: "S1",
		JobTypes:        []JobType{JobTypeRunSQLImport, JobTypeRefreshFunding},
	}
	b := JobMonitoringFilter{
		SpecificationID: "S1",
		JobTypes:        []JobType{JobTypeRefreshFunding, JobTypeRunSQLImport, JobTypeRefreshFunding},
	}
	c := JobMonitoringFilter{SpecificationID: "S2", JobTypes: a.JobTypes}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.Equal(t, []JobType{JobTypeRunSQLImport, JobTypeRefreshFunding}, a.JobTypes, "Key must not reorder caller slice")

	// IncludeChildJobs without a JobID has no effect on matching and therefore none on identity.
	assert.Equal(t, JobMonitoringFilter{}.Key(), JobMonitoringFilter{IncludeChildJobs: true}.Key())
}

func TestJobMonitoringFilter_IsUnconstrained(t *testing.T) {
	assert.True(t, JobMonitoringFilter{}.IsUnconstrained())
	assert.True(t, JobMonitoringFilter{IncludeChildJobs: true}.IsUnconstrained())
	assert.False(t, JobMonitoringFilter{JobID: "J1"}.IsUnconstrained())
	assert.False(t, JobMonitoringFilter{JobTypes: []JobType{JobTypeMapDataset}}.IsUnconstrained())
}
