package model

import (
	"fmt"
	"strings"
)

// JobType identifies a kind of backend job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Known needs value receiver
type JobType string

// Known job types. The set mirrors the jobs service; unknown values are carried opaquely.
const (
	JobTypeCreateInstructAllocation                JobType = "CreateInstructAllocationJob"
	JobTypeGenerateGraphAndInstructAllocation      JobType = "GenerateGraphAndInstructAllocationJob"
	JobTypeCreateInstructGenerateAggregations      JobType = "CreateInstructGenerateAggregationsAllocationJob"
	JobTypeGenerateGraphAndInstructAggregations    JobType = "GenerateGraphAndInstructGenerateAggregationAllocationJob"
	JobTypeGenerateCalcCsvResults                  JobType = "GenerateCalcCsvResultsJob"
	JobTypeValidateDataset                         JobType = "ValidateDatasetJob"
	JobTypeMapDataset                              JobType = "MapDatasetJob"
	JobTypeMapScopedDataset                        JobType = "MapScopedDatasetJob"
	JobTypeRefreshFunding                          JobType = "RefreshFundingJob"
	JobTypeApproveAllProviderFunding               JobType = "ApproveAllProviderFundingJob"
	JobTypeApproveBatchProviderFunding             JobType = "ApproveBatchProviderFundingJob"
	JobTypePublishAllProviderFunding               JobType = "PublishAllProviderFundingJob"
	JobTypePublishBatchProviderFunding             JobType = "PublishBatchProviderFundingJob"
	JobTypeReleaseProvidersToChannels              JobType = "ReleaseProvidersToChannelsJob"
	JobTypeReIndexPublishedProviders               JobType = "ReIndexPublishedProvidersJob"
	JobTypeAssignTemplateCalculations              JobType = "AssignTemplateCalculationsJob"
	JobTypeEditSpecification                       JobType = "EditSpecificationJob"
	JobTypeRunSQLImport                            JobType = "RunSqlImportJob"
	JobTypeRunReleasedSQLImport                    JobType = "RunReleasedSqlImportJob"
	JobTypePopulateCalculationResultsQADatabase    JobType = "PopulateCalculationResultsQaDatabaseJob"
	JobTypeRunConverterDatasetMerge                JobType = "RunConverterDatasetMergeJob"
	JobTypeConverterWizardActivityCsvGeneration    JobType = "ConverterWizardActivityCsvGenerationJob"
	JobTypeGeneratePublishedFundingCsv             JobType = "GeneratePublishedFundingCsvJob"
	JobTypeGeneratePublishedProviderEstateCsv      JobType = "GeneratePublishedProviderEstateCsvJob"
	JobTypeReIndexSpecificationCalculationRelation JobType = "ReIndexSpecificationCalculationRelationshipsJob"
	JobTypeDetectObsoleteFundingLines              JobType = "DetectObsoleteFundingLinesJob"
)

var jobTypeDescriptions = map[JobType]string{ //nolint:gochecknoglobals // read-only lookup table
	JobTypeCreateInstructAllocation:                "Calculation run",
	JobTypeGenerateGraphAndInstructAllocation:      "Calculation run",
	JobTypeCreateInstructGenerateAggregations:      "Calculation aggregations run",
	JobTypeGenerateGraphAndInstructAggregations:    "Calculation aggregations run",
	JobTypeGenerateCalcCsvResults:                  "Generating calculation results file",
	JobTypeValidateDataset:                         "Validating dataset",
	JobTypeMapDataset:                              "Mapping dataset",
	JobTypeMapScopedDataset:                        "Mapping scoped dataset",
	JobTypeRefreshFunding:                          "Refreshing funding",
	JobTypeApproveAllProviderFunding:               "Approving all provider funding",
	JobTypeApproveBatchProviderFunding:             "Approving batch provider funding",
	JobTypePublishAllProviderFunding:               "Releasing all provider funding",
	JobTypePublishBatchProviderFunding:             "Releasing batch provider funding",
	JobTypeReleaseProvidersToChannels:              "Releasing providers to channels",
	JobTypeReIndexPublishedProviders:               "Refreshing published providers",
	JobTypeAssignTemplateCalculations:              "Assigning template calculations",
	JobTypeEditSpecification:                       "Editing specification",
	JobTypeRunSQLImport:                            "Exporting to SQL",
	JobTypeRunReleasedSQLImport:                    "Exporting released data to SQL",
	JobTypePopulateCalculationResultsQADatabase:    "Populating calculation results QA database",
	JobTypeRunConverterDatasetMerge:                "Converter wizard dataset merge",
	JobTypeConverterWizardActivityCsvGeneration:    "Generating converter wizard activity report",
	JobTypeGeneratePublishedFundingCsv:             "Generating published funding file",
	JobTypeGeneratePublishedProviderEstateCsv:      "Generating published provider estate file",
	JobTypeReIndexSpecificationCalculationRelation: "Refreshing calculation relationships",
	JobTypeDetectObsoleteFundingLines:              "Detecting obsolete funding lines",
}

// AllJobTypes returns every known job type.
func AllJobTypes() []JobType {
	out := make([]JobType, 0, len(jobTypeDescriptions))
	for t := range jobTypeDescriptions {
		out = append(out, t)
	}
	return SortJobTypes(out)
}

// Known reports whether the job type belongs to the known set.
func (t JobType) Known() bool {
	_, ok := jobTypeDescriptions[t]
	return ok
}

// Description returns a human readable description of the job kind.
func (t JobType) Description() string {
	if d, ok := jobTypeDescriptions[t]; ok {
		return d
	}
	return string(t)
}

// UnmarshalText implements encoding.TextUnmarshaler so job types can be parsed from env and query values.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.TrimSpace(string(text))
	if v == "" {
		return fmt.Errorf("invalid JobType: %q", v)
	}
	for known := range jobTypeDescriptions {
		if strings.EqualFold(string(known), v) {
			*t = known
			return nil
		}
	}
	*t = JobType(v)
	return nil
}

// ParseJobTypes splits a comma separated list of job types, skipping blanks.
func ParseJobTypes(s string) []JobType {
	var out []JobType
	for _, part := range strings.Split(s, ",") {
		var jt JobType
		if err := jt.UnmarshalText([]byte(part)); err != nil {
			continue
		}
		out = append(out, jt)
	}
	return out
}
