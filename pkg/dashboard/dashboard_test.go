package dashboard

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/bandit/pkg/sink"
)

type fakeTarget struct {
	local bool
	dir   string
	out   bytes.Buffer
	diag  bytes.Buffer
}

func (f *fakeTarget) IsLocal() bool      { return f.local }
func (f *fakeTarget) OutputDir() string  { return f.dir }
func (f *fakeTarget) Console() sink.Sink { return sink.NewStdout(&f.out) }
func (f *fakeTarget) FileSink(path string) sink.Sink {
	return sink.ForFile(path, false, sink.NewDiagnostic(&f.diag), nil)
}

func TestRender_RawHTML(t *testing.T) {
	html, err := Render("", map[string]any{
		"title":  "Nightly <ETL>",
		"report": "<p>rows: <b>10</b></p>",
		"tables": []string{"<table id=\"a\"></table>", "<table id=\"b\"></table>"},
	})
	require.NoError(t, err)

	assert.Contains(t, html, "<title>Nightly &lt;ETL&gt;</title>")
	assert.Contains(t, html, "<p>rows: <b>10</b></p>")
	assert.Less(t, strings.Index(html, `id="a"`), strings.Index(html, `id="b"`))
}

func TestRender_TablesTemplate(t *testing.T) {
	table := Table{Header: []string{"name", "mpg"}, Rows: [][]string{{"Mazda <RX4>", "21"}}}
	html, err := Render("tables", map[string]any{"table": table})
	require.NoError(t, err)

	assert.Contains(t, html, `<table class="table table-bordered">`)
	assert.Contains(t, html, "<th>mpg</th>")
	assert.Contains(t, html, "<td>Mazda &lt;RX4&gt;</td>")
	assert.Contains(t, html, "<title>Dashboard</title>")
}

func TestRender_CustomTemplateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.html")
	require.NoError(t, os.WriteFile(path, []byte(`<ul>{{ range fragments .images }}<li>{{ . }}</li>{{ end }}</ul>`), 0644))

	html, err := Render(path, map[string]any{"images": []any{"<img src=\"a.png\">", 3}})
	require.NoError(t, err)
	assert.Equal(t, `<ul><li><img src="a.png"></li><li>3</li></ul>`, html)
}

func TestRender_UnknownTemplate(t *testing.T) {
	_, err := Render("no-such-template.html", nil)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestMake_RemoteWritesFile(t *testing.T) {
	target := &fakeTarget{dir: t.TempDir()}

	path, err := Make(target, "my dashboard", "", map[string]any{"body": "<p>hi</p>"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(target.dir, "my dashboard.html"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<p>hi</p>")
	assert.Empty(t, target.out.String())
}

func TestMake_LocalPrints(t *testing.T) {
	target := &fakeTarget{local: true, dir: t.TempDir()}

	path, err := Make(target, "report.html", "", map[string]any{"body": "<p>hi</p>"})
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Contains(t, target.out.String(), "<p>hi</p>")

	entries, err := os.ReadDir(target.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMake_MissingOutputDirGoesToDiagnostic(t *testing.T) {
	target := &fakeTarget{dir: filepath.Join(t.TempDir(), "job", "output-files")}

	path, err := Make(target, "report", "", map[string]any{"body": "<p>hi</p>"})
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Contains(t, target.diag.String(), "<p>hi</p>")
	assert.Empty(t, target.out.String())
	assert.NoDirExists(t, target.dir)
}

func TestReadCSV(t *testing.T) {
	table, err := ReadCSV(strings.NewReader("a,b\n1,2\n3,4\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, table.Header)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, table.Rows)

	_, err = ReadCSV(strings.NewReader("a,b\n1\n"))
	assert.Error(t, err)
}

func TestTemplates(t *testing.T) {
	assert.ElementsMatch(t, []string{"raw-html.html", "tables.html"}, Templates())
}
