package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/job"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/mocks"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/service"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/testutil"
)

type apiHarness struct {
	reg      *job.Registry
	watches  *service.WatchService
	errs     *service.ErrorContext
	outcomes *mocks.MockOutcomeRepository
	handler  http.Handler
}

// newAPIHarness wires the router to a real registry whose REST fetches return prior.
func newAPIHarness(t *testing.T, prior ...model.JobSummary) *apiHarness {
	t.Helper()
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockJobStatusFetcher(ctrl)
	fetcher.EXPECT().FetchJobs(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, f model.JobMonitoringFilter) ([]model.JobSummary, error) {
			var out []model.JobSummary
			for _, s := range prior {
				d, err := model.NewJobDetails(s)
				if err == nil && f.Matches(d) {
					out = append(out, s)
				}
			}
			return out, nil
		}).AnyTimes()

	reg, err := job.NewRegistry(job.RegistryOptions{Fetcher: fetcher})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	errs := service.NewErrorContext(service.ErrorContextOptions{})
	watches := service.NewWatchService(service.WatchServiceOptions{
		Watchers: service.WatcherOptions{
			Registry: reg,
			Ports:    service.WatcherPorts{Errors: errs},
			Monitor:  service.MonitorSettings{Mode: job.MonitorModeOff, Fallback: job.MonitorFallbackNone},
		},
	})
	t.Cleanup(watches.Close)

	h := &apiHarness{
		reg:      reg,
		watches:  watches,
		errs:     errs,
		outcomes: mocks.NewMockOutcomeRepository(ctrl),
	}
	h.handler = NewRouter(RouterServices{
		Registry: reg,
		Watches:  watches,
		Errors:   errs,
		Outcomes: h.outcomes,
	})
	return h
}

func (h *apiHarness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *apiHarness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.reg.Flush(ctx))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type subscriptionBody struct {
	ID        string `json:"id"`
	IsEnabled bool   `json:"isEnabled"`
	FilterBy  struct {
		SpecificationID string   `json:"specificationId"`
		JobTypes        []string `json:"jobTypes"`
	} `json:"filterBy"`
}

type notificationBody struct {
	Subscription subscriptionBody `json:"subscription"`
	LatestJob    *struct {
		JobID          string `json:"jobId"`
		JobDescription string `json:"jobDescription"`
		IsActive       bool   `json:"isActive"`
	} `json:"latestJob"`
}

func TestSubscriptions_CreateListDelete(t *testing.T) {
	prior := testutil.NewJobSummary("R1", model.JobTypeRefreshFunding).ForSpecification("S1").Build()
	h := newAPIHarness(t, prior)

	rec := h.do(t, http.MethodPost, "/api/subscriptions", `{
		"specificationId": "S1",
		"jobTypes": ["RefreshFundingJob"],
		"fetchPriorNotifications": true,
		"monitorMode": "Off"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[subscriptionBody](t, rec)
	require.NotEmpty(t, created.ID)
	assert.True(t, created.IsEnabled)
	assert.Equal(t, "S1", created.FilterBy.SpecificationID)
	assert.Equal(t, []string{"RefreshFundingJob"}, created.FilterBy.JobTypes)

	h.flush(t)

	rec = h.do(t, http.MethodGet, "/api/subscriptions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]notificationBody](t, rec)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].LatestJob)
	assert.Equal(t, "R1", list[0].LatestJob.JobID)
	assert.Equal(t, "Refreshing funding", list[0].LatestJob.JobDescription)
	assert.True(t, list[0].LatestJob.IsActive)

	rec = h.do(t, http.MethodGet, "/api/subscriptions/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decode[notificationBody](t, rec).Subscription.ID)

	rec = h.do(t, http.MethodDelete, "/api/subscriptions/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, h.reg.Results())

	rec = h.do(t, http.MethodDelete, "/api/subscriptions/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(t, http.MethodGet, "/api/subscriptions/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubscriptions_CreateValidation(t *testing.T) {
	h := newAPIHarness(t)

	tests := []struct {
		name      string
		body      string
		wantCode  string
		wantField string
	}{
		{
			name:      "unknown job type",
			body:      `{"jobTypes":["RefreshFundingJob","MakeTeaJob"]}`,
			wantCode:  "validation",
			wantField: "jobTypes[1]",
		},
		{
			name:      "unknown monitor mode",
			body:      `{"monitorMode":"Carrier pigeon"}`,
			wantCode:  "validation",
			wantField: "monitorMode",
		},
		{
			name:      "unknown fallback",
			body:      `{"monitorFallback":"SignalR"}`,
			wantCode:  "validation",
			wantField: "monitorFallback",
		},
		{
			name:     "unknown field",
			body:     `{"specId":"S1"}`,
			wantCode: "invalid_json",
		},
		{
			name:     "malformed",
			body:     `{"specificationId":`,
			wantCode: "invalid_json",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/api/subscriptions", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			body := decode[errorBody](t, rec)
			assert.Equal(t, tt.wantCode, body.Error)
			assert.Equal(t, tt.wantField, body.Field)
		})
	}
	assert.Empty(t, h.reg.Results())
}

func TestSubscriptions_SetEnabled(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, "/api/subscriptions", `{"jobId":"J1","monitorMode":"Off"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[subscriptionBody](t, rec).ID

	rec = h.do(t, http.MethodPatch, "/api/subscriptions/"+id, `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[notificationBody](t, rec).Subscription.IsEnabled)

	rec = h.do(t, http.MethodPatch, "/api/subscriptions/"+id, `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "enabled", decode[errorBody](t, rec).Field)

	rec = h.do(t, http.MethodPatch, "/api/subscriptions/nope", `{"enabled":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubscriptions_OwnedByAnotherConsumer(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPut, "/api/specifications/S1/watch", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/subscriptions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]notificationBody](t, rec)
	require.NotEmpty(t, list)
	id := list[0].Subscription.ID

	rec = h.do(t, http.MethodDelete, "/api/subscriptions/"+id, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = h.do(t, http.MethodPatch, "/api/subscriptions/"+id, `{"enabled":false}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, h.reg.Results(), len(list))
}

func TestSubscriptions_CreateIsCapped(t *testing.T) {
	h := newAPIHarness(t)
	h.handler = NewRouter(RouterServices{Registry: h.reg, Watches: h.watches, MaxSubscriptions: 2})

	var ids []string
	for _, job := range []string{"J1", "J2"} {
		rec := h.do(t, http.MethodPost, "/api/subscriptions", `{"jobId":"`+job+`","monitorMode":"Off"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		ids = append(ids, decode[subscriptionBody](t, rec).ID)
	}

	rec := h.do(t, http.MethodPost, "/api/subscriptions", `{"jobId":"J3","monitorMode":"Off"}`)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "conflict", decode[errorBody](t, rec).Error)
	assert.Len(t, h.reg.Results(), 2)

	// subscriptions owned by other consumers do not count
	rec = h.do(t, http.MethodPut, "/api/specifications/S1/watch", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodDelete, "/api/subscriptions/"+ids[0], "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(t, http.MethodPost, "/api/subscriptions", `{"jobId":"J3","monitorMode":"Off"}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestSubscriptions_RegistryClosed(t *testing.T) {
	h := newAPIHarness(t)
	require.NoError(t, h.reg.Close())

	rec := h.do(t, http.MethodPost, "/api/subscriptions", `{"jobId":"J1","monitorMode":"Off"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", decode[errorBody](t, rec).Error)
}

func TestSpecifications_WatchLifecycle(t *testing.T) {
	prior := testutil.NewJobSummary("C1", model.JobTypeCreateInstructAllocation).
		ForSpecification("S1").
		InvokedBy("alice", "Alice").
		Build()
	h := newAPIHarness(t, prior)

	rec := h.do(t, http.MethodPut, "/api/specifications/S1/watch", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, watchResponse{SpecificationID: "S1", Created: true}, decode[watchResponse](t, rec))

	rec = h.do(t, http.MethodPut, "/api/specifications/S1/watch", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[watchResponse](t, rec).Created)

	h.flush(t)

	rec = h.do(t, http.MethodGet, "/api/watches", "")
	require.Equal(t, http.StatusOK, rec.Code)
	watches := decode[[]service.SpecificationWatch](t, rec)
	require.Len(t, watches, 1)
	assert.Equal(t, "S1", watches[0].SpecificationID)
	assert.True(t, watches[0].HasActiveJob)

	rec = h.do(t, http.MethodGet, "/api/specifications/S1/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := decode[service.SpecificationJobsState](t, rec)
	assert.True(t, jobs.HasActiveJob)
	require.NotNil(t, jobs.LatestJob)
	assert.Equal(t, "C1", jobs.LatestJob.JobID)

	rec = h.do(t, http.MethodGet, "/api/specifications/S1/sql-export?userId=bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	export := decode[service.SQLExportState](t, rec)
	assert.Equal(t, "S1", export.SpecificationID)
	assert.False(t, export.IsExportingCurrent)

	rec = h.do(t, http.MethodDelete, "/api/specifications/S1/watch", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/specifications/S1/jobs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(t, http.MethodDelete, "/api/specifications/S1/watch", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSpecifications_Outcomes(t *testing.T) {
	h := newAPIHarness(t)
	outcome := testutil.NewJobSummary("R1", model.JobTypeRefreshFunding).
		ForSpecification("S1").
		Succeeded().
		Outcome()

	gomock.InOrder(
		h.outcomes.EXPECT().ListBySpecification(gomock.Any(), "S1", 10).Return([]model.JobOutcome{outcome}, nil),
		h.outcomes.EXPECT().ListBySpecification(gomock.Any(), "S1", maxOutcomeLimit).Return(nil, nil),
		h.outcomes.EXPECT().ListBySpecification(gomock.Any(), "S1", defaultOutcomeLimit).
			Return(nil, errors.New("connection reset")),
	)

	rec := h.do(t, http.MethodGet, "/api/specifications/S1/outcomes?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[[]model.JobOutcome](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "R1", got[0].JobID)

	rec = h.do(t, http.MethodGet, "/api/specifications/S1/outcomes?limit=100000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/specifications/S1/outcomes", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "internal", body.Error)
	assert.NotContains(t, body.Message, "connection reset")
}

func TestSpecifications_OptionalServices(t *testing.T) {
	reg, err := job.NewRegistry(job.RegistryOptions{Fetcher: mocks.NewMockJobStatusFetcher(gomock.NewController(t))})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	handler := NewRouter(RouterServices{Registry: reg})

	for _, path := range []string{"/api/watches", "/api/specifications/S1/outcomes", "/api/errors"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestErrors_ListAndClear(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodGet, "/api/errors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	h.errs.ReportError(context.Background(), model.ErrorReport{
		Err:         errors.New("boom"),
		Description: "Calculation run failed",
		JobID:       "J1",
	})

	rec = h.do(t, http.MethodGet, "/api/errors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	reports := decode[[]model.ErrorReport](t, rec)
	require.Len(t, reports, 1)
	assert.Equal(t, "boom", reports[0].Message)
	assert.Equal(t, "J1", reports[0].JobID)

	rec = h.do(t, http.MethodDelete, "/api/errors", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, h.errs.Errors())
}

func TestRouter_NotFoundAndRequestID(t *testing.T) {
	h := newAPIHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/api/nothing-here", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[errorBody](t, rec).Error)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	rec = h.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestNewRouter_RequiresRegistry(t *testing.T) {
	assert.Panics(t, func() { NewRouter(RouterServices{}) })
}
