package syncer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/alexjbarnes/studio-sync/internal/errors"
	"github.com/alexjbarnes/studio-sync/internal/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffScripts_Classification(t *testing.T) {
	e, dir := newTestEngineMax(t, 1024)

	writeFile(t, dir, "ServerScriptService/Same.server.lua", "a\r\nb\r\n")
	writeFile(t, dir, "ServerScriptService/Changed.server.lua", "a\nc\n")
	writeFile(t, dir, "ServerScriptService/Big.server.lua", strings.Repeat("x", 2048))

	p := scriptPayload(t, `{"roots": [{"service": "ServerScriptService", "items": [
		{"name": "Same", "class": "Script", "path": ["ServerScriptService", "Same"], "source": "a\nb\n"},
		{"name": "Changed", "class": "Script", "path": ["ServerScriptService", "Changed"], "source": "a\nb\n"},
		{"name": "Big", "class": "Script", "path": ["ServerScriptService", "Big"], "source": ""},
		{"name": "Gone", "class": "Script", "path": ["ServerScriptService", "Gone"], "source": "x"}
	]}]}`)

	res, err := e.DiffScripts(dir, p)
	require.NoError(t, err)

	require.Len(t, res.Changes, 1)
	c := res.Changes[0]
	assert.Equal(t, "Changed", c.Name)
	assert.Equal(t, "ServerScriptService/Changed.server.lua", c.RelPath)
	assert.Equal(t, filepath.Join(dir.Root(), "ServerScriptService", "Changed.server.lua"), c.File)
	assert.Equal(t, "a\nc\n", c.LocalSource)
	assert.Equal(t, 1, c.Added)
	assert.Equal(t, 1, c.Removed)
	assert.Contains(t, c.Patch, "--- studio/ServerScriptService/Changed.server.lua")
	assert.Contains(t, c.Patch, "+++ local/ServerScriptService/Changed.server.lua")
	assert.Contains(t, c.Patch, "-b\n")
	assert.Contains(t, c.Patch, "+c\n")

	require.Len(t, res.MissingLocal, 1)
	assert.Equal(t, "Gone", res.MissingLocal[0].Name)
	assert.Empty(t, res.MissingLocal[0].File)

	require.Len(t, res.SkippedLarge, 1)
	assert.Equal(t, "Big", res.SkippedLarge[0].Name)
	assert.Equal(t, manifest.ReasonTooLarge, res.SkippedLarge[0].Reason)
}

func TestDiffScripts_DoesNotWrite(t *testing.T) {
	e, dir := newTestEngine(t)

	res, err := e.DiffScripts(dir, mainPayload(t, "print(1)"))
	require.NoError(t, err)
	assert.Len(t, res.MissingLocal, 1)

	entries, err := os.ReadDir(dir.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDiffScripts_FindsLegacyLayout(t *testing.T) {
	e, dir := newTestEngine(t)
	writeFile(t, dir, "ServerScriptService/Main.server.lua", "print(1)")

	p := scriptPayload(t, `{"roots": [{"service": "ServerScriptService", "items": [
		{"name": "Main!", "class": "Script", "path": ["ServerScriptService", "Main!"], "source": "print(1)"}
	]}]}`)

	res, err := e.DiffScripts(dir, p)
	require.NoError(t, err)

	assert.Empty(t, res.MissingLocal)
	assert.Empty(t, res.Changes)
}

func TestDiffScripts_PrefersNewestCandidate(t *testing.T) {
	e, dir := newTestEngine(t)
	writeFile(t, dir, "ServerScriptService/Main.server.lua", "stale")
	writeFile(t, dir, "ServerScriptService/Main/Main.server.lua", "print(1)")

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir.Root(), "ServerScriptService", "Main.server.lua"), old, old))

	res, err := e.DiffScripts(dir, mainPayload(t, "print(1)"))
	require.NoError(t, err)

	assert.Empty(t, res.Changes)
	assert.Empty(t, res.MissingLocal)
}

func TestDiffScripts_SymlinkedServiceFailsDiff(t *testing.T) {
	e, dir := newTestEngine(t)
	outside := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(outside, "Main.server.lua"), []byte("print(1)"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(dir.Root(), "ServerScriptService")))

	res, err := e.DiffScripts(dir, mainPayload(t, "print(1)"))
	require.ErrorIs(t, err, apperrors.ErrPathEscape)
	assert.Nil(t, res)
}

func TestDiffInstances_PartialLocalFileIsUnchanged(t *testing.T) {
	e, dir := newTestEngine(t)

	// Local file omits props and the second child entirely.
	writeFile(t, dir, "Workspace/Car.Model", `{"class": "Model", "name": "Car", "children": [
		{"class": "Part", "name": "Wheel"}
	]}`)

	p := instancePayload(t, `{"instances": [{"service": "Workspace", "name": "Car", "class": "Model",
		"tree": {"class": "Model", "name": "Car", "props": {"Anchored": true, "Size": 2.00000000001},
			"children": [
				{"class": "Part", "name": "Wheel", "props": {"Color": "red"}},
				{"class": "Part", "name": "Body"}
			]}}]}`)

	res, err := e.DiffInstances(dir, p)
	require.NoError(t, err)

	assert.Empty(t, res.Changes)
	assert.Empty(t, res.MissingLocal)
	assert.Empty(t, res.SkippedLarge)
}

func TestDiffInstances_ChangedProperty(t *testing.T) {
	e, dir := newTestEngine(t)
	writeFile(t, dir, "Workspace/Car.Model", `{"class": "Model", "name": "Car", "props": {"Anchored": false}}`)

	p := instancePayload(t, `{"instances": [{"service": "Workspace", "name": "Car", "class": "Model",
		"tree": {"class": "Model", "name": "Car", "props": {"Anchored": true}}}]}`)

	res, err := e.DiffInstances(dir, p)
	require.NoError(t, err)

	require.Len(t, res.Changes, 1)
	c := res.Changes[0]
	assert.Equal(t, "Workspace/Car.Model", c.RelPath)
	assert.Contains(t, c.Patch, `-    "Anchored": true`)
	assert.Contains(t, c.Patch, `+    "Anchored": false`)
	assert.Equal(t, 1, c.Added)
	assert.Equal(t, 1, c.Removed)
}

func TestDiffInstances_InvalidLocalIsChange(t *testing.T) {
	e, dir := newTestEngine(t)
	writeFile(t, dir, "Workspace/Car.Model", `{not json`)

	res, err := e.DiffInstances(dir, instancePayload(t, carInstance))
	require.NoError(t, err)

	require.Len(t, res.Changes, 1)
	assert.Equal(t, reasonInvalidJSON, res.Changes[0].Reason)
}

func TestDiffInstances_MissingAndOversized(t *testing.T) {
	e, dir := newTestEngineMax(t, 1024)
	writeFile(t, dir, "Workspace/Big.Part", `{"pad": "`+strings.Repeat("x", 2048)+`"}`)

	p := instancePayload(t, `{"instances": [
		{"service": "Workspace", "name": "Big", "class": "Part", "tree": {}},
		{"service": "Workspace", "name": "Nope", "class": "Part", "tree": {}},
		"not an object"
	]}`)

	res, err := e.DiffInstances(dir, p)
	require.NoError(t, err)

	require.Len(t, res.SkippedLarge, 1)
	assert.Equal(t, "Workspace/Big.Part", res.SkippedLarge[0].RelPath)
	require.Len(t, res.MissingLocal, 1)
	assert.Equal(t, "Nope", res.MissingLocal[0].Name)
}

func TestDiffInstances_SymlinkedServiceFailsDiff(t *testing.T) {
	e, dir := newTestEngine(t)
	outside := t.TempDir()

	require.NoError(t, os.Symlink(outside, filepath.Join(dir.Root(), "Workspace")))

	res, err := e.DiffInstances(dir, instancePayload(t, carInstance))
	require.ErrorIs(t, err, apperrors.ErrPathEscape)
	assert.Nil(t, res)
}

func TestDiffInstances_RoundTripAfterUpload(t *testing.T) {
	e, dir := newTestEngine(t)

	_, err := e.UploadInstances(dir, instancePayload(t, carInstance))
	require.NoError(t, err)

	res, err := e.DiffInstances(dir, instancePayload(t, carInstance))
	require.NoError(t, err)
	assert.Empty(t, res.Changes)
}

func TestLineStats(t *testing.T) {
	added, removed := lineStats("a\nb\nc\n", "a\nx\ny\nc\n")
	assert.Equal(t, 2, added)
	assert.Equal(t, 1, removed)

	added, removed = lineStats("same", "same")
	assert.Zero(t, added)
	assert.Zero(t, removed)
}
