package bandit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// SeriesFile is the on-disk form of a job series:
//
//	jobs:
//	  - project: demo
//	    name: extract
//	    timeout: 120
type SeriesFile struct {
	Jobs []SeriesJob `json:"jobs" yaml:"jobs" toml:"jobs"`
}

// LoadSeries reads a series file. The format follows the extension: .yaml,
// .yml, .toml or .json.
func LoadSeries(path string) ([]SeriesJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read series file: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	jobs, err := ParseSeries(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return jobs, nil
}

// ParseSeries decodes a series document in the given format.
func ParseSeries(data []byte, format string) ([]SeriesJob, error) {
	var file SeriesFile
	var err error
	switch format {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &file)
	case "toml":
		err = toml.Unmarshal(data, &file)
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&file)
	default:
		return nil, fmt.Errorf("%w: unsupported series format %q", ErrValidation, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s series: %v", ErrValidation, format, err)
	}
	for i, job := range file.Jobs {
		if job.Project == "" || job.Name == "" {
			return nil, fmt.Errorf("%w: series job %d needs a project and a name", ErrValidation, i)
		}
		if job.Timeout < 0 {
			return nil, fmt.Errorf("%w: series job %d has a negative timeout", ErrValidation, i)
		}
	}
	return file.Jobs, nil
}
