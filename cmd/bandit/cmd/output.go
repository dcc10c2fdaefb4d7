package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/bandit/pkg/bandit"
)

// printOutput writes v as JSON or YAML, or calls table for the default table
// format.
func printOutput(w io.Writer, v any, table func(*tablewriter.Table)) error {
	switch strings.ToLower(outputFormat) {
	case "json":
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	case "yaml", "yml":
		generic, err := toGeneric(v)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return fmt.Errorf("failed to format YAML: %w", err)
		}
		return enc.Close()
	case "table", "":
		t := tablewriter.NewWriter(w)
		table(t)
		return t.Render()
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", outputFormat)
	}
}

// toGeneric round-trips v through JSON so YAML output uses the same field
// names and shapes as JSON output.
func toGeneric(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to format YAML: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to format YAML: %w", err)
	}
	return out, nil
}

func jobsTable(jobs []bandit.Job) func(*tablewriter.Table) {
	return func(t *tablewriter.Table) {
		t.Header("Project", "Name", "Owner", "Status")
		for _, j := range jobs {
			t.Append(j.Project, j.Name, j.Username, string(j.Status))
		}
	}
}

func resultsTable(results []bandit.JobResult) func(*tablewriter.Table) {
	return func(t *tablewriter.Table) {
		t.Header("ID", "Name", "Run", "Status")
		for _, r := range results {
			t.Append(r.ID, r.Name, fmt.Sprintf("%d", r.N), string(r.Status))
		}
	}
}

func recordTable(record map[string]any) func(*tablewriter.Table) {
	return func(t *tablewriter.Table) {
		keys := make([]string, 0, len(record))
		for k := range record {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		t.Header("Key", "Value")
		for _, k := range keys {
			t.Append(k, formatValue(record[k]))
		}
	}
}

// formatValue prints scalars as-is and everything else as compact JSON.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
