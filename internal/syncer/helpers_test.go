package syncer

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alexjbarnes/studio-sync/internal/outdir"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *outdir.Dir) {
	t.Helper()

	return newTestEngineMax(t, DefaultMaxReadBytes)
}

func newTestEngineMax(t *testing.T, maxRead int64) (*Engine, *outdir.Dir) {
	t.Helper()

	e := New(Options{
		OutputDir:    filepath.Join(t.TempDir(), "output"),
		Decimals:     5,
		MaxReadBytes: maxRead,
	}, slog.New(slog.DiscardHandler))
	e.now = func() time.Time { return fixedNow }

	dir, err := e.Open("")
	require.NoError(t, err)

	return e, dir
}

func writeFile(t *testing.T, dir *outdir.Dir, rel, content string) {
	t.Helper()
	require.NoError(t, dir.WriteFile(rel, []byte(content)))
}

func readFile(t *testing.T, dir *outdir.Dir, rel string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir.Root(), filepath.FromSlash(rel)))
	require.NoError(t, err)

	return string(data)
}

func scriptPayload(t *testing.T, body string) ScriptPayload {
	t.Helper()

	p, err := ParseScriptPayload([]byte(body))
	require.NoError(t, err)

	return p
}

func instancePayload(t *testing.T, body string) InstancePayload {
	t.Helper()

	p, err := ParseInstancePayload([]byte(body))
	require.NoError(t, err)

	return p
}

func collapseWhitespace(s string) string {
	var b strings.Builder

	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' && (i == 0 || s[i-1] != '\\') {
			inString = !inString
		}

		if !inString && (c == ' ' || c == '\n') {
			continue
		}

		b.WriteByte(c)
	}

	return b.String()
}

func removeFile(dir *outdir.Dir, rel string) error {
	return os.Remove(filepath.Join(dir.Root(), filepath.FromSlash(rel)))
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)

	return data
}
