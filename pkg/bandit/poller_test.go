package bandit

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAndWait_ReturnsTerminalResult(t *testing.T) {
	testEnv(t)
	s := newFakeServer(t)
	s.resultID = "r-7"
	s.onPoll = func(n int, s *fakeServer) {
		switch n {
		case 1:
			s.setResults()
		case 2:
			s.setResults(map[string]any{"id": "r-7", "status": "running"})
		default:
			s.setResults(
				map[string]any{"id": "r-6", "status": "failed"},
				map[string]any{"id": "r-7", "name": "etl", "status": "success", "n": 4},
			)
		}
	}
	c := newTestClient(t, remoteOptions(s, ""))

	result, err := c.RunAndWait(context.Background(), "dw", "etl", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "r-7", result.ID)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 4, result.N)
	assert.Equal(t, 3, s.pollCount())
}

func TestRunAndWait_FailedJobIsNotAnError(t *testing.T) {
	testEnv(t)
	s := newFakeServer(t)
	s.setResults(map[string]any{"id": "r-1", "status": "failed"})
	c := newTestClient(t, remoteOptions(s, ""))

	result, err := c.RunAndWait(context.Background(), "dw", "etl", time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
}

func TestRunAndWait_TimesOut(t *testing.T) {
	testEnv(t)
	s := newFakeServer(t)
	s.setResults(map[string]any{"id": "other", "status": "success"})
	c := newTestClient(t, remoteOptions(s, ""))

	start := time.Now()
	_, err := c.RunAndWait(context.Background(), "dw", "etl", 50*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)

	// No polling happens after the timeout is reported.
	polls := s.pollCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, polls, s.pollCount())
}

func TestRunAndWait_KeepsPollingThroughTransportErrors(t *testing.T) {
	testEnv(t)
	s := newFakeServer(t)
	s.onPoll = func(n int, s *fakeServer) {
		if n < 3 {
			s.resultsErr = http.StatusServiceUnavailable
			return
		}
		s.resultsErr = 0
		s.setResults(map[string]any{"id": "r-1", "status": "success"})
	}
	c := newTestClient(t, remoteOptions(s, ""))

	result, err := c.RunAndWait(context.Background(), "dw", "etl", time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 3, s.pollCount())
}

func TestRunAndWait_TimeoutWrapsLastTransportError(t *testing.T) {
	testEnv(t)
	s := newFakeServer(t)
	s.resultsErr = http.StatusInternalServerError
	c := newTestClient(t, remoteOptions(s, ""))

	_, err := c.RunAndWait(context.Background(), "dw", "etl", 30*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestRunAndWait_ContextCancel(t *testing.T) {
	testEnv(t)
	s := newFakeServer(t)
	c := newTestClient(t, remoteOptions(s, ""), WithPollInterval(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.RunAndWait(ctx, "dw", "etl", time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRunAndWait_LocalMode(t *testing.T) {
	testEnv(t)
	c := newTestClient(t, Options{Username: "kermit"})

	result, err := c.RunAndWait(context.Background(), "dw", "etl", time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusDryRun, result.Status)
	assert.Equal(t, "etl", result.Name)
	assert.Equal(t, "DRY RUN GET api/projects/kermit/dw/jobs/etl\n", c.stdout.String())
}

func TestWait_NeedsResultID(t *testing.T) {
	testEnv(t)
	c := newTestClient(t, Options{})
	_, err := c.Wait(context.Background(), &Submission{DryRun: true}, time.Second)
	assert.ErrorIs(t, err, ErrSubmission)
}

func TestRunSeries_RunsInOrder(t *testing.T) {
	testEnv(t)
	s := newFakeServer(t)
	s.setResults(map[string]any{"id": "r-1", "status": "success"})
	c := newTestClient(t, remoteOptions(s, ""))

	results, err := c.RunSeries(context.Background(), []SeriesJob{
		{Project: "p", Name: "a"},
		{Project: "p", Name: "b", Timeout: 1},
	}, time.Second)
	require.NoError(t, err)
	require.Len(t, results, 2)

	var triggers []string
	for _, r := range s.requestLog() {
		if strings.Contains(r, "/projects/") {
			triggers = append(triggers, r)
		}
	}
	assert.Equal(t, []string{
		"GET /api/projects/kermit/p/jobs/a",
		"GET /api/projects/kermit/p/jobs/b",
	}, triggers)
}

func TestRunSeries_AbortsAfterTimeout(t *testing.T) {
	testEnv(t)
	s := newFakeServer(t)
	c := newTestClient(t, remoteOptions(s, ""))

	results, err := c.RunSeries(context.Background(), []SeriesJob{
		{Project: "p", Name: "a", Timeout: 0.03},
		{Project: "p", Name: "b"},
	}, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "series job 0 (p/a)")
	assert.Empty(t, results)

	for _, r := range s.requestLog() {
		assert.NotContains(t, r, "/jobs/b", "job b must not be attempted")
	}
}

func TestRunSeries_AbortsAfterFailedJob(t *testing.T) {
	testEnv(t)
	s := newFakeServer(t)
	s.setResults(map[string]any{"id": "r-1", "status": "failed"})
	c := newTestClient(t, remoteOptions(s, ""))

	results, err := c.RunSeries(context.Background(), []SeriesJob{
		{Project: "p", Name: "a"},
		{Project: "p", Name: "b"},
	}, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJobFailed)
	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
}

func TestRunSeries_AllowFailureContinues(t *testing.T) {
	testEnv(t)
	s := newFakeServer(t)
	s.setResults(map[string]any{"id": "r-1", "status": "failed"})
	c := newTestClient(t, remoteOptions(s, ""))

	results, err := c.RunSeries(context.Background(), []SeriesJob{
		{Project: "p", Name: "a", AllowFailure: true},
		{Project: "p", Name: "b", AllowFailure: true},
	}, time.Second)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Equal(t, StatusFailed, results[1].Status)
}

func TestRunSeries_LocalMode(t *testing.T) {
	testEnv(t)
	c := newTestClient(t, Options{})

	results, err := c.RunSeries(context.Background(), []SeriesJob{{Project: "p", Name: "a"}, {Project: "p", Name: "b"}}, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, StatusDryRun, results[1].Status)
}

func TestSeriesJob_Timeout(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, SeriesJob{Timeout: 1.5}.timeout(time.Minute))
	assert.Equal(t, time.Minute, SeriesJob{}.timeout(time.Minute))
}
