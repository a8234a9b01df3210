package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Missing(t *testing.T) {
	m, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Version, m.Version)
	assert.Empty(t, m.Scripts)
	assert.Empty(t, m.Instances)
}

func TestLoad_CorruptIsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0o644))

	m, err := Load(dir)
	require.Error(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 0, m.Len())
}

func TestParse_WrongShapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"array", `[]`},
		{"scripts is list", `{"scripts": [], "instances": "x"}`},
		{"null sections", `{"scripts": null, "instances": null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := Parse([]byte(tt.in))
			require.NotNil(t, m)
			assert.NotNil(t, m.Scripts)
			assert.NotNil(t, m.Instances)
			assert.Equal(t, 0, m.Len())
		})
	}
}

func TestParse_DropsNonStringHashesAndOldSkips(t *testing.T) {
	m, err := Parse([]byte(`{
		"version": 1,
		"scripts": {"A/x.lua": "abc", "A/y.lua": 5},
		"instances": {"A/p.Part": "def"},
		"skipped": [{"type": "script", "relPath": "A/z.lua", "reason": "local edits"}],
		"updatedAt": "2026-01-01T00:00:00Z"
	}`))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"A/x.lua": "abc"}, m.Scripts)
	assert.Equal(t, map[string]string{"A/p.Part": "def"}, m.Instances)
	assert.Empty(t, m.Skipped)
	assert.Equal(t, "2026-01-01T00:00:00Z", m.UpdatedAt)
}

func TestRecordAndSkip(t *testing.T) {
	m := New()

	_, ok := m.Recorded(Script, "a.lua")
	assert.False(t, ok)

	m.Record(Script, "a.lua", "h1")
	m.Record(Instance, "a.Part", "h2")

	h, ok := m.Recorded(Script, "a.lua")
	assert.True(t, ok)
	assert.Equal(t, "h1", h)

	_, ok = m.Recorded(Instance, "a.lua")
	assert.False(t, ok, "sections are independent")

	rec := m.Skip(Instance, "b.Part", ReasonLocalEdits)
	assert.Equal(t, SkipRecord{Type: Instance, RelPath: "b.Part", Reason: "local edits"}, rec)
	assert.Len(t, m.Skipped, 1)
	assert.Equal(t, 2, m.Len())
}

func TestSave_RoundTripAndSortedKeys(t *testing.T) {
	dir := t.TempDir()
	m := New()
	m.Record(Script, "S/<b>.lua", "h")
	m.Skip(Script, "S/c.lua", ReasonNoEntry)

	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, Save(dir, m, now))

	raw, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)

	text := string(raw)
	assert.Contains(t, text, `"S/<b>.lua": "h"`)
	assert.Contains(t, text, `"updatedAt": "2026-03-04T05:06:07Z"`)
	assert.Equal(t, byte('\n'), raw[len(raw)-1])

	keys := []string{`"instances"`, `"scripts"`, `"skipped"`, `"updatedAt"`, `"version"`}
	last := -1
	for _, k := range keys {
		idx := strings.Index(text, k)
		require.Greater(t, idx, last, "key %s out of order", k)
		last = idx
	}

	loaded, err := Load(dir)
	require.NoError(t, err)

	h, ok := loaded.Recorded(Script, "S/<b>.lua")
	assert.True(t, ok)
	assert.Equal(t, "h", h)
}
