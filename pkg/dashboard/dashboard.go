// Package dashboard renders HTML dashboards from job output.
package dashboard

import (
	"bytes"
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/psantana5/bandit/pkg/sink"
)

// DefaultTemplate is used when no template is named.
const DefaultTemplate = "raw-html.html"

//go:embed templates/*.html
var builtin embed.FS

// ErrTemplateNotFound is returned when a template is neither a file nor a
// built-in template.
var ErrTemplateNotFound = errors.New("dashboard: template not found")

// Table is tabular data rendered as a bordered HTML table.
type Table struct {
	Header []string
	Rows   [][]string
}

var tableTemplate = template.Must(template.New("table").Parse(
	`<table class="table table-bordered">` +
		`{{ if .Header }}<thead><tr>{{ range .Header }}<th>{{ . }}</th>{{ end }}</tr></thead>{{ end }}` +
		`<tbody>{{ range .Rows }}<tr>{{ range . }}<td>{{ . }}</td>{{ end }}</tr>{{ end }}</tbody>` +
		`</table>`))

// HTML renders the table. Cell text is escaped.
func (t Table) HTML() (template.HTML, error) {
	var buf bytes.Buffer
	if err := tableTemplate.Execute(&buf, t); err != nil {
		return "", fmt.Errorf("failed to render table: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// ReadCSV reads a table whose first record is the header.
func ReadCSV(r io.Reader) (Table, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return Table{}, nil
	}
	return Table{Header: records[0], Rows: records[1:]}, nil
}

// LoadCSV reads a CSV file into a table.
func LoadCSV(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// Target is where a dashboard ends up: written under OutputDir in remote
// mode, printed to Console in local mode. FileSink picks the sink for a file
// under OutputDir and falls back to the diagnostic stream when the directory
// is missing.
type Target interface {
	IsLocal() bool
	OutputDir() string
	Console() sink.Sink
	FileSink(path string) sink.Sink
}

// Render executes a template with vars. Strings and template.HTML values are
// inserted as trusted HTML fragments, Tables are rendered, and slices of
// either become a sequence of fragments. The title variable defaults to
// "Dashboard".
//
// templateName is a template file path when such a file exists, otherwise the
// name of a built-in template.
func Render(templateName string, vars map[string]any) (string, error) {
	tmpl, err := load(templateName)
	if err != nil {
		return "", err
	}

	data := make(map[string]any, len(vars)+2)
	for k, v := range vars {
		data[k] = v
	}
	if _, ok := data["title"]; !ok {
		data["title"] = "Dashboard"
	}
	sections := make(map[string]any, len(vars))
	for k, v := range vars {
		if k != "title" {
			sections[k] = v
		}
	}
	data["sections"] = sections

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", templateName, err)
	}
	return buf.String(), nil
}

// Make renders a dashboard and delivers it to target. In remote mode the
// HTML is written to <name>.html in the output directory and the path is
// returned; in local mode it is printed and the path is empty. A missing
// output directory is not an error: the HTML goes to the diagnostic stream
// and the path is empty.
func Make(target Target, name, templateName string, vars map[string]any) (string, error) {
	if name == "" {
		return "", fmt.Errorf("dashboard name must not be empty")
	}
	html, err := Render(templateName, vars)
	if err != nil {
		return "", err
	}
	if target.IsLocal() {
		return "", target.Console().Write([]byte(html))
	}

	if !strings.HasSuffix(name, ".html") {
		name += ".html"
	}
	path := filepath.Join(target.OutputDir(), filepath.Base(name))
	written := sink.ParentExists(path)
	if err := target.FileSink(path).Write([]byte(html)); err != nil {
		return "", fmt.Errorf("failed to write dashboard: %w", err)
	}
	if !written {
		return "", nil
	}
	return path, nil
}

func load(name string) (*template.Template, error) {
	if name == "" {
		name = DefaultTemplate
	}
	funcs := template.FuncMap{"fragments": fragments}

	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		tmpl, err := template.New(filepath.Base(name)).Funcs(funcs).ParseFiles(name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		return tmpl, nil
	}

	builtinName := filepath.Base(name)
	if !strings.HasSuffix(builtinName, ".html") {
		builtinName += ".html"
	}
	tmpl, err := template.New(builtinName).Funcs(funcs).ParseFS(builtin, "templates/"+builtinName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return tmpl, nil
}

// Templates lists the built-in template names.
func Templates() []string {
	entries, err := builtin.ReadDir("templates")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// fragments normalizes a variable into HTML fragments.
func fragments(v any) ([]template.HTML, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case template.HTML:
		return []template.HTML{x}, nil
	case string:
		return []template.HTML{template.HTML(x)}, nil
	case Table:
		h, err := x.HTML()
		if err != nil {
			return nil, err
		}
		return []template.HTML{h}, nil
	case *Table:
		return fragments(*x)
	case []string:
		out := make([]template.HTML, len(x))
		for i, s := range x {
			out[i] = template.HTML(s)
		}
		return out, nil
	case []Table:
		out := make([]template.HTML, 0, len(x))
		for _, t := range x {
			h, err := t.HTML()
			if err != nil {
				return nil, err
			}
			out = append(out, h)
		}
		return out, nil
	case []any:
		var out []template.HTML
		for _, item := range x {
			f, err := fragments(item)
			if err != nil {
				return nil, err
			}
			out = append(out, f...)
		}
		return out, nil
	default:
		return []template.HTML{template.HTML(template.HTMLEscapeString(fmt.Sprint(x)))}, nil
	}
}
