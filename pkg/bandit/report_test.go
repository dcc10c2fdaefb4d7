package bandit

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport_DryRunWithoutJobID(t *testing.T) {
	testEnv(t)
	s := newFakeServer(t)
	paths := jobRoot(t)
	c := newTestClient(t, remoteOptions(s, paths.Root))

	ack, err := c.Report(context.Background(), "my metric", 10)
	require.NoError(t, err)
	assert.Equal(t, DryRunAck(), ack)

	assert.Equal(t, "{\"tag_name\":\"my-metric\",\"x\":0,\"y\":10}\n", c.stdout.String())
	assert.Empty(t, s.requestLog())
	_, err = os.Stat(paths.ChartsFile)
	assert.True(t, os.IsNotExist(err), "dry runs must not touch the charts log")
}

func TestReport_LocalModeIgnoresJobID(t *testing.T) {
	testEnv(t)
	t.Setenv(EnvJobID, "7")
	paths := jobRoot(t)
	c := newTestClient(t, Options{JobRoot: paths.Root})

	ack, err := c.Stream(context.Background(), "loss", 0.25)
	require.NoError(t, err)
	assert.Equal(t, "DRY RUN", ack["message"])
	_, err = os.Stat(paths.ChartsFile)
	assert.True(t, os.IsNotExist(err))
}

func TestReport_AppendsThenSends(t *testing.T) {
	testEnv(t)
	t.Setenv(EnvJobID, "42")
	s := newFakeServer(t)
	paths := jobRoot(t)
	c := newTestClient(t, remoteOptions(s, paths.Root))

	_, err := c.Report(context.Background(), "accuracy", 0.5)
	require.NoError(t, err)
	ack, err := c.ReportPoint(context.Background(), "accuracy", 1, json.Number("0.75"))
	require.NoError(t, err)
	assert.Equal(t, "OK", ack["status"])

	data, err := os.ReadFile(paths.ChartsFile)
	require.NoError(t, err)
	assert.Equal(t,
		"{\"tag_name\":\"accuracy\",\"x\":0,\"y\":0.5}\n{\"tag_name\":\"accuracy\",\"x\":1,\"y\":0.75}\n",
		string(data))

	assert.Equal(t, []string{"PUT /api/jobs/42/report", "PUT /api/jobs/42/report"}, s.requestLog())
	assert.Equal(t, []Point{{TagName: "accuracy", Y: 0.5}, {TagName: "accuracy", X: 1, Y: 0.75}}, s.reports)
	var text bytes.Buffer
	require.NoError(t, c.metrics.WriteText(&text))
	assert.Contains(t, text.String(), `bandit_client_points_total{outcome="sent"} 2`)
}

func TestReport_LogLineSurvivesFailedSend(t *testing.T) {
	testEnv(t)
	t.Setenv(EnvJobID, "42")
	s := newFakeServer(t)
	s.reportErr = http.StatusBadGateway
	paths := jobRoot(t)
	c := newTestClient(t, remoteOptions(s, paths.Root))

	_, err := c.Report(context.Background(), "rows", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)

	data, err := os.ReadFile(paths.ChartsFile)
	require.NoError(t, err)
	assert.Equal(t, "{\"tag_name\":\"rows\",\"x\":0,\"y\":3}\n", string(data))
}

func TestReport_MissingMetadataDirGoesToDiagnostic(t *testing.T) {
	testEnv(t)
	t.Setenv(EnvJobID, "42")
	s := newFakeServer(t)
	c := newTestClient(t, remoteOptions(s, t.TempDir()))

	_, err := c.Report(context.Background(), "rows", 3)
	require.NoError(t, err)
	assert.Equal(t, "{\"tag_name\":\"rows\",\"x\":0,\"y\":3}\n", c.diag.String())
	assert.Len(t, s.reports, 1)
}

func TestReport_RejectsNonNumbers(t *testing.T) {
	testEnv(t)
	c := newTestClient(t, Options{})

	for _, y := range []any{"10", nil, true, math.NaN(), math.Inf(1), json.Number("ten")} {
		_, err := c.Report(context.Background(), "x", y)
		require.Error(t, err, "%v", y)
		assert.ErrorIs(t, err, ErrValidation)
	}
	assert.Empty(t, c.stdout.String())
}

func TestNewPoint(t *testing.T) {
	p, err := NewPoint("a b c", int64(2), uint8(3))
	require.NoError(t, err)
	assert.Equal(t, Point{TagName: "a-b-c", X: 2, Y: 3}, p)

	_, err = NewPoint("t", "x", 1)
	assert.ErrorIs(t, err, ErrValidation)
}
