package bandit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/bandit/pkg/tracing"
)

// API endpoint templates, named for metrics and tracing.
const (
	endpointListJobs       = "list-jobs"
	endpointListJobResults = "list-job-results"
	endpointRunJob         = "run-job"
	endpointReportMetric   = "report-metric"
	endpointOutputFile     = "output-file"
)

const (
	maxResponseBytes = 32 << 20
	maxErrorBody     = 512
)

// response is a completed API call whose body has been read.
type response struct {
	endpoint string
	method   string
	url      string
	status   int
	body     []byte
}

// fail turns a problem with a received response into a TransportError.
func (r *response) fail(err error) error {
	return &TransportError{
		Endpoint:   r.endpoint,
		Method:     r.method,
		URL:        r.url,
		StatusCode: r.status,
		Err:        err,
	}
}

// do performs one authenticated request. Non-2xx statuses are errors. No
// retries are made here.
func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, body any) (*response, error) {
	if c.baseURL == nil {
		return nil, c.cfg.RequireRemote()
	}
	rel, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid request path %q: %v", ErrValidation, path, err)
	}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	reqURL := c.baseURL.ResolveReference(rel).String()

	fail := func(status int, snippet string, err error) error {
		return &TransportError{
			Endpoint:   endpoint,
			Method:     method,
			URL:        reqURL,
			StatusCode: status,
			Body:       snippet,
			Err:        err,
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to marshal request body: %v", ErrSerialization, err)
		}
		reader = bytes.NewReader(data)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fail(0, "", fmt.Errorf("rate limiter: %w", err))
	}

	ctx, span := c.tracer.Start(ctx, method+" "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", reqURL),
			attribute.String("bandit.endpoint", endpoint),
		),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fail(0, "", fmt.Errorf("failed to create request: %w", err))
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", c.requestID())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tracing.Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(endpoint, method, 0, time.Since(start))
		terr := fail(0, "", err)
		tracing.SetError(span, terr)
		return nil, terr
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.ObserveRequest(endpoint, method, resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err != nil {
		terr := fail(resp.StatusCode, "", fmt.Errorf("failed to read response: %w", err))
		tracing.SetError(span, terr)
		return nil, terr
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		terr := fail(resp.StatusCode, snippet(payload), nil)
		tracing.SetError(span, terr)
		return nil, terr
	}

	return &response{
		endpoint: endpoint,
		method:   method,
		url:      reqURL,
		status:   resp.StatusCode,
		body:     payload,
	}, nil
}

// GetJobs lists the jobs visible to the user, in server order.
func (c *Client) GetJobs(ctx context.Context) ([]Job, error) {
	const path = "api/jobs"
	if c.cfg.IsLocal() {
		c.dryRun(http.MethodGet, path)
		return nil, nil
	}

	resp, err := c.do(ctx, endpointListJobs, http.MethodGet, path, formatJSON(), nil)
	if err != nil {
		return nil, err
	}
	raw, err := envelope(resp.body, "jobs")
	if err != nil {
		return nil, resp.fail(err)
	}
	var jobs []Job
	if err := json.Unmarshal(raw, &jobs); err != nil {
		return nil, resp.fail(fmt.Errorf("failed to decode jobs: %w", err))
	}
	return jobs, nil
}

// GetJobResults lists job results, in server order.
func (c *Client) GetJobResults(ctx context.Context) ([]JobResult, error) {
	const path = "api/job-results"
	if c.cfg.IsLocal() {
		c.dryRun(http.MethodGet, path)
		return nil, nil
	}

	resp, err := c.do(ctx, endpointListJobResults, http.MethodGet, path, formatJSON(), nil)
	if err != nil {
		return nil, err
	}
	raw, err := envelope(resp.body, "jobResults")
	if err != nil {
		return nil, resp.fail(err)
	}
	var results []JobResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, resp.fail(fmt.Errorf("failed to decode job results: %w", err))
	}
	return results, nil
}

// Run triggers a job of the user's project. The returned submission carries
// the result id to poll for.
func (c *Client) Run(ctx context.Context, project, job string) (*Submission, error) {
	path := runPath(c.cfg.Username, project, job)
	if c.cfg.IsLocal() {
		c.dryRun(http.MethodGet, path)
		return &Submission{DryRun: true}, nil
	}

	resp, err := c.do(ctx, endpointRunJob, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	data, err := decodeRecord(resp.body)
	if err != nil {
		return nil, resp.fail(fmt.Errorf("failed to decode trigger response: %w", err))
	}
	id := stringField(data, "resultId")
	if id == "" {
		return nil, fmt.Errorf("%w: trigger response for %s/%s has no resultId", ErrSubmission, project, job)
	}
	return &Submission{ResultID: id, Data: data}, nil
}

// FileRef names an output file of a job run.
type FileRef struct {
	Username string
	Project  string
	Job      string
	Filename string
	// N is the run number; empty means "latest".
	N string
}

// GetFile downloads an output file of a job run. It needs remote mode.
func (c *Client) GetFile(ctx context.Context, ref FileRef) ([]byte, error) {
	if err := c.cfg.RequireRemote(); err != nil {
		return nil, err
	}
	n := ref.N
	if n == "" {
		n = "latest"
	}
	path := joinPath("api", "projects", ref.Username, ref.Project, "jobs", ref.Job, n, "output-files", ref.Filename)
	resp, err := c.do(ctx, endpointOutputFile, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

// putReport sends a metric point for the running job.
func (c *Client) putReport(ctx context.Context, point Point) (map[string]any, error) {
	path := joinPath("api", "jobs", c.cfg.JobID, "report")
	resp, err := c.do(ctx, endpointReportMetric, http.MethodPut, path, nil, point)
	if err != nil {
		return nil, err
	}
	data, err := decodeRecord(resp.body)
	if err != nil {
		return nil, resp.fail(fmt.Errorf("failed to decode report response: %w", err))
	}
	return data, nil
}

func runPath(username, project, job string) string {
	return joinPath("api", "projects", username, project, "jobs", job)
}

// joinPath builds a relative URL path with every segment escaped.
func joinPath(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return strings.Join(escaped, "/")
}

func formatJSON() url.Values {
	return url.Values{"format": {"json"}}
}

// envelope extracts a required top-level key from a JSON object.
func envelope(body []byte, key string) (json.RawMessage, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	raw, ok := env[key]
	if !ok {
		return nil, fmt.Errorf("response has no %q key", key)
	}
	if string(raw) == "null" {
		return json.RawMessage("[]"), nil
	}
	return raw, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}
