package bandit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobResult_KeepsUnknownFields(t *testing.T) {
	r := NewJobResult(map[string]any{"name": "x", "status": "success", "extra": "z"})

	assert.Equal(t, "x", r.Name)
	assert.Equal(t, StatusSuccess, r.Status)
	extra, ok := r.Get("extra")
	require.True(t, ok)
	assert.Equal(t, "z", extra)
	assert.Equal(t, "z", r.Data["extra"])
}

func TestJob_FromJSON(t *testing.T) {
	var jobs []Job
	require.NoError(t, json.Unmarshal([]byte(`[{"name":"etl","username":"kermit","project":"dw","schedule":"@daily"}]`), &jobs))
	require.Len(t, jobs, 1)

	assert.Equal(t, "etl", jobs[0].Name)
	assert.Equal(t, "dw", jobs[0].Project)
	assert.Equal(t, "<Job kermit/etl>", jobs[0].String())
	v, ok := jobs[0].Get("schedule")
	require.True(t, ok)
	assert.Equal(t, "@daily", v)
}

func TestJob_StatusAndExtraFields(t *testing.T) {
	in := `{"name":"x","status":"success","extra":"z"}`
	var job Job
	require.NoError(t, json.Unmarshal([]byte(in), &job))

	assert.Equal(t, "x", job.Name)
	assert.Equal(t, StatusSuccess, job.Status)
	v, ok := job.Get("extra")
	require.True(t, ok)
	assert.Equal(t, "z", v)

	job.Status = StatusFailed
	out, err := json.Marshal(job)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"x","status":"failed","extra":"z"}`, string(out))
}

func TestJobResult_JSONRoundTripPreservesRecord(t *testing.T) {
	in := `{"id":"r-9","name":"etl","status":"running","n":12345678901,"meta":{"k":[1,2]}}`
	var r JobResult
	require.NoError(t, json.Unmarshal([]byte(in), &r))

	assert.Equal(t, "r-9", r.ID)
	assert.Equal(t, 12345678901, r.N)
	assert.Equal(t, "<JobResult etl/12345678901/running>", r.String())

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestJobResult_TypedFieldsWinOnMarshal(t *testing.T) {
	r := NewJobResult(map[string]any{"id": "a", "status": "running"})
	r.Status = StatusFailed

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a","status":"failed"}`, string(out))
}

func TestJobResult_NumericID(t *testing.T) {
	var r JobResult
	require.NoError(t, json.Unmarshal([]byte(`{"id":17,"status":"success"}`), &r))
	assert.Equal(t, "17", r.ID)
}

func TestJobResult_RejectsNonObject(t *testing.T) {
	var r JobResult
	assert.Error(t, json.Unmarshal([]byte(`null`), &r))
	assert.Error(t, json.Unmarshal([]byte(`[1]`), &r))
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusDryRun.Terminal())
}
