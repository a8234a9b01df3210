package outdir

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/alexjbarnes/studio-sync/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T, maxRead int64) *Dir {
	t.Helper()

	d, err := Open(t.TempDir(), maxRead)
	require.NoError(t, err)

	return d
}

func TestOpen_CreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b")

	d, err := Open(root, 1024)
	require.NoError(t, err)

	info, err := os.Stat(d.Root())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, filepath.IsAbs(d.Root()))
}

func TestOpen_Empty(t *testing.T) {
	_, err := Open("", 1024)
	require.Error(t, err)
}

func TestOpen_FileNotDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := Open(path, 1024)
	require.Error(t, err)
}

func TestResolve_RejectsEscape(t *testing.T) {
	d := openTemp(t, 1024)

	for _, rel := range []string{"../x", "a/../../x", "a/..", "/etc/passwd"} {
		t.Run(rel, func(t *testing.T) {
			_, err := d.Resolve(rel)
			require.ErrorIs(t, err, apperrors.ErrPathEscape)
		})
	}
}

func TestResolve_AllowsDotsInNames(t *testing.T) {
	d := openTemp(t, 1024)

	abs, err := d.Resolve("Workspace/Car..Model/a.Part")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(d.Root(), "Workspace", "Car..Model", "a.Part"), abs)
}

func TestResolve_RejectsSymlinkEscape(t *testing.T) {
	d := openTemp(t, 1024)
	outside := t.TempDir()

	require.NoError(t, os.Symlink(outside, filepath.Join(d.Root(), "link")))

	_, err := d.Resolve("link/file.lua")
	require.ErrorIs(t, err, apperrors.ErrPathEscape)
}

func TestRel_ForwardSlashes(t *testing.T) {
	d := openTemp(t, 1024)

	rel, err := d.Rel(filepath.Join(d.Root(), "ServerScriptService", "Main.server.lua"))
	require.NoError(t, err)
	assert.Equal(t, "ServerScriptService/Main.server.lua", rel)

	_, err = d.Rel(filepath.Dir(d.Root()))
	require.ErrorIs(t, err, apperrors.ErrPathEscape)
}

func TestWriteFile_CreatesParentsAndReplaces(t *testing.T) {
	d := openTemp(t, 1024)

	require.NoError(t, d.WriteFile("a/b/c.lua", []byte("one")))
	require.NoError(t, d.WriteFile("a/b/c.lua", []byte("two")))

	got, err := os.ReadFile(filepath.Join(d.Root(), "a", "b", "c.lua"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	entries, err := os.ReadDir(filepath.Join(d.Root(), "a", "b"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestWriteFile_PreservesPermissions(t *testing.T) {
	d := openTemp(t, 1024)
	path := filepath.Join(d.Root(), "x.lua")

	require.NoError(t, os.WriteFile(path, []byte("a"), 0o600))
	require.NoError(t, d.WriteFile("x.lua", []byte("b")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestReadText_NormalizesCRLF(t *testing.T) {
	d := openTemp(t, 1024)
	require.NoError(t, d.WriteFile("s.lua", []byte("a\r\nb\r\n")))

	got, err := d.ReadText("s.lua")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", got)
}

func TestReadText_Oversized(t *testing.T) {
	d := openTemp(t, 1024)
	require.NoError(t, d.WriteFile("big.lua", []byte(strings.Repeat("x", 1025))))

	_, err := d.ReadText("big.lua")
	require.ErrorIs(t, err, apperrors.ErrOversized)
}

func TestReadText_AtCeiling(t *testing.T) {
	d := openTemp(t, 1024)
	require.NoError(t, d.WriteFile("edge.lua", []byte(strings.Repeat("x", 1024))))

	got, err := d.ReadText("edge.lua")
	require.NoError(t, err)
	assert.Len(t, got, 1024)
}

func TestReadText_Missing(t *testing.T) {
	d := openTemp(t, 1024)

	_, err := d.ReadText("nope.lua")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReadText_Directory(t *testing.T) {
	d := openTemp(t, 1024)
	require.NoError(t, os.Mkdir(filepath.Join(d.Root(), "dir"), 0o755))

	_, err := d.ReadText("dir")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOpenFile_IgnoresReadCeiling(t *testing.T) {
	d := openTemp(t, 16)
	require.NoError(t, d.WriteFile("big.lua", []byte(strings.Repeat("x", 64))))

	f, err := d.OpenFile("big.lua")
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Len(t, data, 64)
}

func TestOpenFile_Errors(t *testing.T) {
	d := openTemp(t, 1024)
	require.NoError(t, os.Mkdir(filepath.Join(d.Root(), "dir"), 0o755))

	_, err := d.OpenFile("nope.lua")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = d.OpenFile("dir")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = d.OpenFile("../escape.lua")
	require.ErrorIs(t, err, apperrors.ErrPathEscape)
}

func TestNewlineWriter_MatchesNormalizeNewlines(t *testing.T) {
	inputs := []string{"", "a\nb", "a\r\nb\r\n", "a\rb", "\r\r\n", "end\r", "\r", "\n\r\n\r"}

	for _, in := range inputs {
		// Every split point, so a CRLF straddling two writes is covered.
		for i := 0; i <= len(in); i++ {
			var buf bytes.Buffer

			w := NewNewlineWriter(&buf)

			n, err := w.Write([]byte(in[:i]))
			require.NoError(t, err)
			assert.Equal(t, i, n)

			_, err = w.Write([]byte(in[i:]))
			require.NoError(t, err)
			require.NoError(t, w.Close())

			assert.Equal(t, NormalizeNewlines(in), buf.String(), "input %q split at %d", in, i)
		}
	}
}

func TestAppendFile(t *testing.T) {
	d := openTemp(t, 1024)

	require.NoError(t, d.AppendFile("log.txt", []byte("a\n")))
	require.NoError(t, d.AppendFile("log.txt", []byte("b\n")))

	got, err := d.ReadText("log.txt")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", got)
}

func TestWalk_SkipsTempFiles(t *testing.T) {
	d := openTemp(t, 1024)
	require.NoError(t, d.WriteFile("S/a.lua", []byte("1")))
	require.NoError(t, d.WriteFile("S/b/c.Part", []byte("{}")))
	require.NoError(t, os.WriteFile(filepath.Join(d.Root(), "S", TempPrefix+"123"), []byte("x"), 0o644))

	var rels []string
	require.NoError(t, d.Walk(func(f File) error {
		rels = append(rels, f.Rel)
		return nil
	}))

	assert.Equal(t, []string{"S/a.lua", "S/b/c.Part"}, rels)
}

func TestExists(t *testing.T) {
	d := openTemp(t, 1024)
	require.NoError(t, d.WriteFile("f", []byte("x")))

	assert.True(t, d.Exists("f"))
	assert.False(t, d.Exists("g"))
	assert.False(t, d.Exists("../f"))
}
