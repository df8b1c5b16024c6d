// Package jobsapi is the REST client for the jobs and publishing APIs. It backs
// the polling transport, prior-notification fetches and published-date lookups.
package jobsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	apperrors "github.com/skillsfundingagency/cfs-jobwatch/internal/errors"
)

const maxResponseBytes = 4 << 20

// ErrBaseURLRequired indicates the client was configured without a base URL.
var ErrBaseURLRequired = errors.New("jobs api base url is required")

// Config configures the REST client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond caps outbound calls; zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	// TokenSource, when set, authorises every request with a bearer token.
	TokenSource oauth2.TokenSource
	Client      *http.Client
	Logger      *slog.Logger
}

// Client calls the jobs API.
type Client struct {
	baseURL *url.URL
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var (
	_ core.JobStatusFetcher     = (*Client)(nil)
	_ core.PublishedDateFetcher = (*Client)(nil)
)

// NewClient builds a jobs API client.
func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, ErrBaseURLRequired
	}
	base, err := url.Parse(strings.TrimSuffix(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse jobs api base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("jobs api base url must be http(s), got %q", raw)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	if cfg.TokenSource != nil {
		cp := *hc
		cp.Transport = &oauth2.Transport{Source: cfg.TokenSource, Base: hc.Transport}
		hc = &cp
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: base,
		client:  hc,
		limiter: limiter,
		logger:  logger.With("component", "jobsapi"),
	}, nil
}

// FetchJobs returns the current job records relevant to filter. A job id filter
// reads that job (and its children when requested); a specification filter reads
// the latest job per type for the specification; anything else reads the latest
// jobs across all specifications. Results are narrowed with filter.Matches.
func (c *Client) FetchJobs(ctx context.Context, filter model.JobMonitoringFilter) ([]model.JobSummary, error) {
	var (
		jobs []model.JobSummary
		err  error
	)
	switch {
	case filter.JobID != "":
		jobs, err = c.jobWithChildren(ctx, filter.JobID, filter.IncludeChildJobs)
	case filter.SpecificationID != "":
		jobs, err = c.latestForSpecification(ctx, filter.SpecificationID, filter.JobTypes)
	default:
		jobs, err = c.latest(ctx, filter.JobTypes, filter.TriggerByEntityID)
	}
	if err != nil {
		return nil, err
	}
	return narrow(jobs, filter), nil
}

// JobByID reads one job. A missing job returns (nil, nil).
func (c *Client) JobByID(ctx context.Context, jobID string) (*model.JobSummary, error) {
	var job model.JobSummary
	found, err := c.getJSON(ctx, "/api/jobs/"+url.PathEscape(jobID), nil, &job)
	if err != nil || !found {
		return nil, err
	}
	return &job, nil
}

// LatestPublishedDate returns when the specification's funding was last
// published, or nil when it never was.
func (c *Client) LatestPublishedDate(ctx context.Context, specificationID string) (*time.Time, error) {
	var body struct {
		Value *time.Time `json:"value"`
	}
	path := "/api/publish/specifications/" + url.PathEscape(specificationID) + "/latest-published-date"
	found, err := c.getJSON(ctx, path, nil, &body)
	if err != nil || !found || body.Value == nil {
		return nil, err
	}
	t := body.Value.UTC()
	return &t, nil
}

func (c *Client) jobWithChildren(ctx context.Context, jobID string, children bool) ([]model.JobSummary, error) {
	job, err := c.JobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	var out []model.JobSummary
	if job != nil {
		out = append(out, *job)
	}
	if !children {
		return out, nil
	}

	var kids []*model.JobSummary
	if _, err := c.getJSON(ctx, "/api/jobs/"+url.PathEscape(jobID)+"/children", nil, &kids); err != nil {
		return nil, err
	}
	return appendNonNil(out, kids), nil
}

func (c *Client) latestForSpecification(ctx context.Context, specificationID string, types []model.JobType) ([]model.JobSummary, error) {
	var jobs []*model.JobSummary
	path := "/api/jobs/specifications/" + url.PathEscape(specificationID) + "/latest"
	if _, err := c.getJSON(ctx, path, jobTypesQuery(types, ""), &jobs); err != nil {
		return nil, err
	}
	return appendNonNil(nil, jobs), nil
}

func (c *Client) latest(ctx context.Context, types []model.JobType, entityID string) ([]model.JobSummary, error) {
	var jobs []*model.JobSummary
	if _, err := c.getJSON(ctx, "/api/jobs/latest", jobTypesQuery(types, entityID), &jobs); err != nil {
		return nil, err
	}
	return appendNonNil(nil, jobs), nil
}

// getJSON issues a GET and decodes the body into out. It reports false without
// error for 404 and 204 responses.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("wait for jobs api rate limit: %w", err)
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawPath = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return false, fmt.Errorf("create jobs api request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return false, apperrors.Transport(err, 0, "GET %s", path)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "jobs api request",
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return false, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, apperrors.Transport(
			fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet))),
			resp.StatusCode, "GET %s", path)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return false, apperrors.Transport(err, resp.StatusCode, "read %s", path)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, apperrors.MalformedPayload(err, "decode "+path)
	}
	return true, nil
}

func jobTypesQuery(types []model.JobType, entityID string) url.Values {
	q := url.Values{}
	if len(types) > 0 {
		names := make([]string, 0, len(types))
		for _, t := range model.SortJobTypes(append([]model.JobType(nil), types...)) {
			names = append(names, string(t))
		}
		q.Set("jobTypes", strings.Join(names, ","))
	}
	if entityID != "" {
		q.Set("entityId", entityID)
	}
	return q
}

func appendNonNil(dst []model.JobSummary, src []*model.JobSummary) []model.JobSummary {
	for _, j := range src {
		if j != nil {
			dst = append(dst, *j)
		}
	}
	return dst
}

// narrow drops records the filter rejects. Records that cannot be normalised are
// kept so the registry can report them as malformed.
func narrow(jobs []model.JobSummary, filter model.JobMonitoringFilter) []model.JobSummary {
	out := jobs[:0]
	for _, j := range jobs {
		details, err := model.NewJobDetails(j)
		if err != nil || filter.Matches(details) {
			out = append(out, j)
		}
	}
	return out
}
