package bandit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/psantana5/bandit/pkg/logging"
	"github.com/psantana5/bandit/pkg/metrics"
	"github.com/psantana5/bandit/pkg/sink"
)

// Metadata is a key/value document that is written through to its sink on
// every mutation. A mutation that cannot be encoded or persisted leaves both
// the in-memory map and the persisted document untouched.
//
// Metadata is not safe for concurrent mutation; callers serialize writes.
type Metadata struct {
	data    map[string]any
	sink    sink.Sink
	metrics *metrics.Collector
}

// NewMetadata creates a store persisting to s, starting from initial.
func NewMetadata(s sink.Sink, initial map[string]any) *Metadata {
	return &Metadata{data: cloneRecord(initial), sink: s}
}

func (c *Client) openMetadata() (*Metadata, error) {
	path := c.cfg.Paths.MetadataFile
	initial, err := loadDocument(path)
	if err != nil {
		c.logger.Warn("ignoring unreadable metadata document", logging.Fields{
			"path":  path,
			"error": err.Error(),
		})
		initial = nil
	}
	m := NewMetadata(c.FileSink(path), initial)
	m.metrics = c.metrics
	return m, nil
}

// loadDocument reads an existing JSON object. A missing file is an empty document.
func loadDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	doc, err := decodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}

// Get returns the value stored under key.
func (m *Metadata) Get(key string) (any, bool) {
	v, ok := m.data[key]
	return v, ok
}

// Set stores value under key and rewrites the whole document. The value is
// kept in its JSON form, so Get returns what a reload of the document would.
func (m *Metadata) Set(key string, value any) error {
	if key == "" {
		m.metrics.MetadataWritten(metrics.MetadataRejected)
		return fmt.Errorf("%w: metadata key must not be empty", ErrValidation)
	}
	normalized, err := normalizeValue(value)
	if err != nil {
		m.metrics.MetadataWritten(metrics.MetadataRejected)
		return fmt.Errorf("%w: metadata %q: %v", ErrSerialization, key, err)
	}
	candidate := cloneRecord(m.data)
	candidate[key] = normalized
	return m.commit(candidate)
}

// Delete removes key and rewrites the whole document. Deleting a missing key
// does nothing.
func (m *Metadata) Delete(key string) error {
	if _, ok := m.data[key]; !ok {
		return nil
	}
	candidate := cloneRecord(m.data)
	delete(candidate, key)
	return m.commit(candidate)
}

// Replace swaps the whole document for doc.
func (m *Metadata) Replace(doc map[string]any) error {
	candidate := make(map[string]any, len(doc))
	for k, v := range doc {
		normalized, err := normalizeValue(v)
		if err != nil {
			m.metrics.MetadataWritten(metrics.MetadataRejected)
			return fmt.Errorf("%w: metadata %q: %v", ErrSerialization, k, err)
		}
		candidate[k] = normalized
	}
	return m.commit(candidate)
}

// ReplaceJSON swaps the whole document for a JSON object.
func (m *Metadata) ReplaceJSON(blob []byte) error {
	doc, err := decodeRecord(blob)
	if err != nil {
		m.metrics.MetadataWritten(metrics.MetadataRejected)
		return fmt.Errorf("%w: metadata is not a JSON object: %v", ErrSerialization, err)
	}
	return m.commit(doc)
}

// Keys returns the keys in sorted order.
func (m *Metadata) Keys() []string {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys.
func (m *Metadata) Len() int { return len(m.data) }

// Snapshot returns a copy of the document.
func (m *Metadata) Snapshot() map[string]any { return cloneRecord(m.data) }

func (m *Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.data)
}

// commit persists candidate and only then makes it the in-memory document.
func (m *Metadata) commit(candidate map[string]any) error {
	doc, err := json.Marshal(candidate)
	if err != nil {
		m.metrics.MetadataWritten(metrics.MetadataRejected)
		return fmt.Errorf("%w: failed to encode metadata: %v", ErrSerialization, err)
	}
	if err := m.sink.Write(doc); err != nil {
		m.metrics.MetadataWritten(metrics.MetadataFailed)
		return fmt.Errorf("failed to persist metadata: %w", err)
	}
	m.data = candidate
	m.metrics.MetadataWritten(metrics.MetadataPersisted)
	return nil
}

func normalizeValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
