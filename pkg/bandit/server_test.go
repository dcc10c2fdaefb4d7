package bandit

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/bandit/pkg/logging"
	"github.com/psantana5/bandit/pkg/metrics"
)

const (
	testUser   = "kermit"
	testAPIKey = "secret"
)

// fakeServer is an in-memory Bandit API.
type fakeServer struct {
	*httptest.Server

	mu        sync.Mutex
	requests  []string
	jobs      []map[string]any
	results   []map[string]any
	resultID  string
	reports   []Point
	reportErr int
	// onPoll runs before every job-results listing, with the 1-based poll count.
	onPoll func(n int, s *fakeServer)
	polls  int
	// resultsErr makes the job-results endpoint answer with this status.
	resultsErr int
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	s := &fakeServer{resultID: "r-1"}

	r := mux.NewRouter()
	r.Use(s.auth)
	r.HandleFunc("/api/jobs", s.listJobs).Methods(http.MethodGet)
	r.HandleFunc("/api/job-results", s.listResults).Methods(http.MethodGet)
	r.HandleFunc("/api/projects/{user}/{project}/jobs/{job}", s.trigger).Methods(http.MethodGet)
	r.HandleFunc("/api/projects/{user}/{project}/jobs/{job}/{n}/output-files/{file}", s.outputFile).Methods(http.MethodGet)
	r.HandleFunc("/api/jobs/{id}/report", s.report).Methods(http.MethodPut)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

func (s *fakeServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()

		user, key, ok := r.BasicAuth()
		if !ok || user != testUser || key != testAPIKey {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *fakeServer) listJobs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, map[string]any{"jobs": s.jobs})
}

func (s *fakeServer) listResults(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if s.onPoll != nil {
		s.onPoll(s.polls, s)
	}
	if s.resultsErr != 0 {
		http.Error(w, "unavailable", s.resultsErr)
		return
	}
	writeJSON(w, map[string]any{"jobResults": s.results})
}

func (s *fakeServer) trigger(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resultID == "" {
		writeJSON(w, map[string]any{"status": "OK"})
		return
	}
	writeJSON(w, map[string]any{"status": "OK", "resultId": s.resultID})
}

func (s *fakeServer) outputFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(vars["n"] + ":" + vars["file"]))
}

func (s *fakeServer) report(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reportErr != 0 {
		http.Error(w, "boom", s.reportErr)
		return
	}
	var p Point
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reports = append(s.reports, p)
	writeJSON(w, map[string]any{"status": "OK"})
}

func (s *fakeServer) setResults(results ...map[string]any) {
	s.results = results
}

func (s *fakeServer) requestLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *fakeServer) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// testEnv clears the client environment so tests only see what they set.
func testEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvUsername, EnvAPIKey, EnvURL, EnvJobID, EnvJobStatus} {
		t.Setenv(key, "")
	}
}

// jobRoot creates a job volume with its metadata directory.
func jobRoot(t *testing.T) Paths {
	t.Helper()
	paths := NewPaths(t.TempDir())
	require.NoError(t, os.MkdirAll(paths.MetadataDir, 0755))
	return paths
}

type testClient struct {
	*Client
	stdout  *bytes.Buffer
	diag    *bytes.Buffer
	metrics *metrics.Collector
}

func newTestClient(t *testing.T, opts Options, options ...Option) *testClient {
	t.Helper()
	tc := &testClient{
		stdout:  &bytes.Buffer{},
		diag:    &bytes.Buffer{},
		metrics: metrics.NewCollector(),
	}
	if opts.JobRoot == "" {
		opts.JobRoot = filepath.Join(t.TempDir(), "job")
	}
	base := []Option{
		WithStdout(tc.stdout),
		WithDiagnostic(tc.diag),
		WithMetrics(tc.metrics),
		WithLogger(logging.Nop()),
		WithPollInterval(5 * time.Millisecond),
	}
	c, err := New(opts, append(base, options...)...)
	require.NoError(t, err)
	tc.Client = c
	return tc
}

func remoteOptions(s *fakeServer, root string) Options {
	return Options{Username: testUser, APIKey: testAPIKey, URL: s.URL, JobRoot: root}
}
