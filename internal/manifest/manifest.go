// Package manifest records which content was last exported to each file
// so later exports can tell a tracked file from a local edit.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alexjbarnes/studio-sync/internal/outdir"
	"github.com/tidwall/gjson"
)

// FileName is the manifest's name at the output root.
const FileName = ".parser_manifest.json"

// Version is the only manifest layout written.
const Version = 1

// Kind separates the two artifact families.
type Kind string

const (
	Script   Kind = "script"
	Instance Kind = "instance"
)

// Skip reasons.
const (
	ReasonLocalEdits = "local edits"
	ReasonNoEntry    = "no manifest entry"
	ReasonUnreadable = "unreadable"
	ReasonWriteError = "write failed"
	ReasonTooLarge   = "file too large"
	ReasonPathEscape = "path escapes output"
)

// SkipRecord is one artifact left untouched during an export.
type SkipRecord struct {
	Type    Kind   `json:"type"`
	RelPath string `json:"relPath"`
	Reason  string `json:"reason"`
}

// Manifest maps root-relative paths to the content hash last written
// there. Fields are declared in key order so the saved JSON is sorted.
type Manifest struct {
	Instances map[string]string `json:"instances"`
	Scripts   map[string]string `json:"scripts"`
	Skipped   []SkipRecord      `json:"skipped"`
	UpdatedAt string            `json:"updatedAt,omitempty"`
	Version   int               `json:"version"`
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{
		Instances: map[string]string{},
		Scripts:   map[string]string{},
		Skipped:   []SkipRecord{},
		Version:   Version,
	}
}

// Load reads the manifest under root. A missing, unreadable or malformed
// file yields an empty manifest; the error is returned only so callers can
// log it. Skip records from earlier runs are dropped.
func Load(root string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}

		return New(), fmt.Errorf("reading manifest: %w", err)
	}

	return Parse(data)
}

// Parse decodes manifest JSON leniently. Sections of the wrong type are
// replaced by empty ones and non-string hashes are dropped.
func Parse(data []byte) (*Manifest, error) {
	m := New()

	if !gjson.ValidBytes(data) {
		return m, fmt.Errorf("manifest is not valid JSON")
	}

	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return m, fmt.Errorf("manifest is not a JSON object")
	}

	readHashes(doc.Get("scripts"), m.Scripts)
	readHashes(doc.Get("instances"), m.Instances)

	if ts := doc.Get("updatedAt"); ts.Type == gjson.String {
		m.UpdatedAt = ts.Str
	}

	return m, nil
}

func readHashes(section gjson.Result, into map[string]string) {
	if !section.IsObject() {
		return
	}

	section.ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String {
			into[key.Str] = value.Str
		}

		return true
	})
}

func (m *Manifest) section(kind Kind) map[string]string {
	if kind == Instance {
		return m.Instances
	}

	return m.Scripts
}

// Recorded returns the hash last written to rel.
func (m *Manifest) Recorded(kind Kind, rel string) (string, bool) {
	h, ok := m.section(kind)[rel]
	return h, ok
}

// Record stores the hash written to rel.
func (m *Manifest) Record(kind Kind, rel, hash string) {
	m.section(kind)[rel] = hash
}

// Skip appends a skip record.
func (m *Manifest) Skip(kind Kind, rel, reason string) SkipRecord {
	rec := SkipRecord{Type: kind, RelPath: rel, Reason: reason}
	m.Skipped = append(m.Skipped, rec)

	return rec
}

// Len returns the number of tracked files across both sections.
func (m *Manifest) Len() int {
	return len(m.Scripts) + len(m.Instances)
}

// Encode renders the manifest as indented JSON with sorted keys and a
// trailing newline.
func (m *Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}

	return buf.Bytes(), nil
}

// Save stamps UpdatedAt and atomically replaces the manifest under root.
func Save(root string, m *Manifest, now time.Time) error {
	m.Version = Version
	m.UpdatedAt = now.UTC().Format(time.RFC3339Nano)

	data, err := m.Encode()
	if err != nil {
		return err
	}

	if err := outdir.WriteAtomic(filepath.Join(root, FileName), data); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}

	return nil
}
