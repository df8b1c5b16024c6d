package httpx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	apperrors "github.com/skillsfundingagency/cfs-jobwatch/internal/errors"
)

func TestRequestValidator(t *testing.T) {
	v := NewRequestValidator()
	enabled := true

	tests := []struct {
		name      string
		in        any
		wantField string
		wantMsg   string
	}{
		{
			name: "valid subscription",
			in: CreateSubscriptionRequest{
				SpecificationID: "S1",
				JobTypes:        []model.JobType{model.JobTypeRefreshFunding, model.JobTypeRunSQLImport},
				MonitorMode:     "Polling",
				MonitorFallback: "None",
			},
		},
		{
			name: "empty subscription",
			in:   CreateSubscriptionRequest{},
		},
		{
			name:      "unknown job type",
			in:        CreateSubscriptionRequest{JobTypes: []model.JobType{"NotAJob"}},
			wantField: "jobTypes[0]",
			wantMsg:   `jobTypes[0]: unknown job type "NotAJob"`,
		},
		{
			name:      "monitor mode",
			in:        CreateSubscriptionRequest{MonitorMode: "signalr"},
			wantField: "monitorMode",
			wantMsg:   "monitorMode must be one of: SignalR Polling Off",
		},
		{
			name:      "long id",
			in:        CreateSubscriptionRequest{JobID: string(make([]byte, 129))},
			wantField: "jobId",
			wantMsg:   "jobId cannot exceed 128 characters",
		},
		{
			name:      "enabled required",
			in:        SetEnabledRequest{},
			wantField: "enabled",
			wantMsg:   "enabled is required",
		},
		{
			name: "enabled set",
			in:   SetEnabledRequest{Enabled: &enabled},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.in)
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, tt.wantField, apperrors.GetField(err))
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}
