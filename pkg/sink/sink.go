// Package sink provides the destinations the Bandit client writes serialized
// documents to: a console stream, an append-only file and a wholesale
// overwritten file.
package sink

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Sink receives one complete serialized record or document per Write call.
type Sink interface {
	Write(data []byte) error
	String() string
}

var (
	_ Sink = (*Stdout)(nil)
	_ Sink = (*AppendFile)(nil)
	_ Sink = (*OverwriteFile)(nil)
	_ Sink = (*Fallback)(nil)
)

// Stdout prints each record on its own line to a stream.
type Stdout struct {
	w    io.Writer
	name string
}

// NewStdout creates a console sink. A nil writer means os.Stdout.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{w: w, name: "stdout"}
}

// NewDiagnostic creates a console sink for the diagnostic stream. A nil
// writer means os.Stderr.
func NewDiagnostic(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stderr
	}
	return &Stdout{w: w, name: "diagnostic"}
}

func (s *Stdout) Write(data []byte) error {
	if _, err := s.w.Write(withNewline(data)); err != nil {
		return fmt.Errorf("failed to write to %s: %w", s.name, err)
	}
	return nil
}

func (s *Stdout) String() string { return s.name }

// AppendFile appends each record as one line. The file is opened in append
// mode for every write, so earlier lines are never truncated.
type AppendFile struct {
	path string
}

// NewAppendFile creates an append-only file sink.
func NewAppendFile(path string) *AppendFile {
	return &AppendFile{path: path}
}

func (a *AppendFile) Write(data []byte) error {
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", a.path, err)
	}
	if _, err := f.Write(withNewline(data)); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to %s: %w", a.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", a.path, err)
	}
	return nil
}

func (a *AppendFile) String() string { return "append:" + a.path }

// Path returns the file the sink appends to.
func (a *AppendFile) Path() string { return a.path }

// OverwriteFile replaces the whole file on every write. The document is
// written to a temporary file in the same directory and renamed over the
// destination, so readers see either the old or the new document.
type OverwriteFile struct {
	path string
}

// NewOverwriteFile creates a wholesale-overwrite file sink.
func NewOverwriteFile(path string) *OverwriteFile {
	return &OverwriteFile{path: path}
}

func (o *OverwriteFile) Write(data []byte) error {
	dir, base := filepath.Split(o.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", o.path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write %s: %w", o.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync %s: %w", o.path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close %s: %w", o.path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		cleanup()
		return fmt.Errorf("failed to chmod %s: %w", o.path, err)
	}
	if err := os.Rename(tmpName, o.path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace %s: %w", o.path, err)
	}
	return nil
}

func (o *OverwriteFile) String() string { return "overwrite:" + o.path }

// Path returns the file the sink overwrites.
func (o *OverwriteFile) Path() string { return o.path }

// Fallback writes to Primary and, when the destination's directory does not
// exist, writes the same data to Secondary instead. Other errors are returned
// unchanged.
type Fallback struct {
	Primary   Sink
	Secondary Sink
	// OnFallback is called with the primary error before the secondary write.
	OnFallback func(err error)
}

func (f *Fallback) Write(data []byte) error {
	err := f.Primary.Write(data)
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if f.OnFallback != nil {
		f.OnFallback(err)
	}
	return f.Secondary.Write(data)
}

func (f *Fallback) String() string {
	return f.Primary.String() + "|" + f.Secondary.String()
}

// ParentExists reports whether the directory containing path exists.
func ParentExists(path string) bool {
	info, err := os.Stat(filepath.Dir(path))
	return err == nil && info.IsDir()
}

// ForFile selects a file sink for path when its parent directory exists and
// the diagnostic sink otherwise. The file sink still falls back to the
// diagnostic sink if the directory disappears later.
func ForFile(path string, appendOnly bool, diag Sink, onFallback func(error)) Sink {
	if !ParentExists(path) {
		return diag
	}
	var primary Sink
	if appendOnly {
		primary = NewAppendFile(path)
	} else {
		primary = NewOverwriteFile(path)
	}
	return &Fallback{Primary: primary, Secondary: diag, OnFallback: onFallback}
}

func withNewline(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\n' {
		return data
	}
	out := make([]byte, len(data)+1)
	copy(out, data)
	out[len(data)] = '\n'
	return out
}
