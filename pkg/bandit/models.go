package bandit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Status is a job-result status reported by the server.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	// StatusDryRun marks synthetic results produced in local mode.
	StatusDryRun Status = "dry-run"
)

// Terminal reports whether polling stops at this status.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Job is a job definition as returned by the server. Known fields are typed;
// Data holds the complete server record, including fields the client does
// not know about.
type Job struct {
	Name     string
	Username string
	Project  string
	Status   Status
	Data     map[string]any
}

// NewJob builds a Job from an arbitrary record.
func NewJob(data map[string]any) Job {
	data = cloneRecord(data)
	return Job{
		Name:     stringField(data, "name"),
		Username: stringField(data, "username"),
		Project:  stringField(data, "project"),
		Status:   Status(stringField(data, "status")),
		Data:     data,
	}
}

// Get returns any field of the server record.
func (j Job) Get(key string) (any, bool) {
	v, ok := j.Data[key]
	return v, ok
}

func (j Job) String() string {
	return fmt.Sprintf("<Job %s/%s>", j.Username, j.Name)
}

func (j *Job) UnmarshalJSON(b []byte) error {
	data, err := decodeRecord(b)
	if err != nil {
		return err
	}
	*j = NewJob(data)
	return nil
}

func (j Job) MarshalJSON() ([]byte, error) {
	out := cloneRecord(j.Data)
	overlayString(out, "name", j.Name)
	overlayString(out, "username", j.Username)
	overlayString(out, "project", j.Project)
	overlayString(out, "status", string(j.Status))
	return json.Marshal(out)
}

// JobResult is one run of a job. ID is the correlation key matched against
// the resultId returned when the run was triggered.
type JobResult struct {
	ID     string
	Name   string
	Status Status
	N      int
	Data   map[string]any
}

// NewJobResult builds a JobResult from an arbitrary record.
func NewJobResult(data map[string]any) JobResult {
	data = cloneRecord(data)
	return JobResult{
		ID:     stringField(data, "id"),
		Name:   stringField(data, "name"),
		Status: Status(stringField(data, "status")),
		N:      intField(data, "n"),
		Data:   data,
	}
}

// Get returns any field of the server record.
func (r JobResult) Get(key string) (any, bool) {
	v, ok := r.Data[key]
	return v, ok
}

func (r JobResult) String() string {
	return fmt.Sprintf("<JobResult %s/%d/%s>", r.Name, r.N, r.Status)
}

func (r *JobResult) UnmarshalJSON(b []byte) error {
	data, err := decodeRecord(b)
	if err != nil {
		return err
	}
	*r = NewJobResult(data)
	return nil
}

func (r JobResult) MarshalJSON() ([]byte, error) {
	out := cloneRecord(r.Data)
	overlayString(out, "id", r.ID)
	overlayString(out, "name", r.Name)
	overlayString(out, "status", string(r.Status))
	if _, ok := out["n"]; ok || r.N != 0 {
		if intField(out, "n") != r.N {
			out["n"] = r.N
		}
	}
	return json.Marshal(out)
}

// Submission is the server's answer to a job trigger.
type Submission struct {
	ResultID string
	// DryRun is set when the trigger was only printed in local mode.
	DryRun bool
	Data   map[string]any
}

// decodeRecord decodes a JSON object, keeping numbers as json.Number so large
// integers survive a round trip.
func decodeRecord(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("expected a JSON object, got null")
	}
	return data, nil
}

func cloneRecord(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

// overlayString writes a typed field back into the record when it differs
// from what the record already holds.
func overlayString(data map[string]any, key, value string) {
	if _, ok := data[key]; !ok && value == "" {
		return
	}
	if stringField(data, key) != value {
		data[key] = value
	}
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
