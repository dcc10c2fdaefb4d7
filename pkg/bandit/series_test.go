package bandit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSeries_Formats(t *testing.T) {
	want := []SeriesJob{
		{Project: "dw", Name: "extract", Timeout: 120},
		{Project: "dw", Name: "load", AllowFailure: true},
	}
	files := map[string]string{
		"series.yaml": `
jobs:
  - project: dw
    name: extract
    timeout: 120
  - project: dw
    name: load
    allow_failure: true
`,
		"series.toml": `
[[jobs]]
project = "dw"
name = "extract"
timeout = 120.0

[[jobs]]
project = "dw"
name = "load"
allow_failure = true
`,
		"series.json": `{"jobs":[{"project":"dw","name":"extract","timeout":120},{"project":"dw","name":"load","allow_failure":true}]}`,
	}

	dir := t.TempDir()
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))
			jobs, err := LoadSeries(path)
			require.NoError(t, err)
			assert.Equal(t, want, jobs)
		})
	}
}

func TestParseSeries_Invalid(t *testing.T) {
	_, err := ParseSeries([]byte(`jobs: [{project: dw}]`), "yaml")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseSeries([]byte(`{"jobs":[{"project":"dw","name":"x","timeout":-1}]}`), "json")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseSeries([]byte(`{"jobs":[],"extra":1}`), "json")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseSeries([]byte(`a,b`), "csv")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLoadSeries_MissingFile(t *testing.T) {
	_, err := LoadSeries(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
