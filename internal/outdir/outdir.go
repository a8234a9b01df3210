// Package outdir provides guarded filesystem access to one export output
// directory: every path is checked against the root before any I/O, reads
// are bounded, and writes are atomic.
package outdir

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/alexjbarnes/studio-sync/internal/errors"
)

// TempPrefix starts the name of every in-flight atomic write.
const TempPrefix = ".studio-sync-write-"

// Dir is an output directory root.
type Dir struct {
	root    string
	maxRead int64
}

// Open resolves root to an absolute, symlink-free path, creating it if
// it does not exist. Reads through the returned Dir refuse files larger
// than maxRead bytes.
func Open(root string, maxRead int64) (*Dir, error) {
	if root == "" {
		return nil, fmt.Errorf("output path must not be empty")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving output path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("evaluating output path: %w", err)
	}

	info, err := os.Stat(real)
	if err != nil {
		return nil, fmt.Errorf("accessing output path: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("output path is not a directory: %s", real)
	}

	return &Dir{root: real, maxRead: maxRead}, nil
}

// Root returns the absolute path of the output directory.
func (d *Dir) Root() string {
	return d.root
}

// MaxRead returns the read ceiling in bytes.
func (d *Dir) MaxRead() int64 {
	return d.maxRead
}

// Resolve converts a forward-slash root-relative path to an absolute
// path, rejecting anything that would land outside the root, including
// through a symlink.
func (d *Dir) Resolve(rel string) (string, error) {
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %s", apperrors.ErrPathEscape, rel)
		}
	}

	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%w: absolute path %s", apperrors.ErrPathEscape, rel)
	}

	abs := filepath.Join(d.root, filepath.FromSlash(rel))
	if !d.contains(abs) {
		return "", fmt.Errorf("%w: %s", apperrors.ErrPathEscape, rel)
	}

	real, err := evalExistingPrefix(abs)
	if err != nil {
		return "", fmt.Errorf("evaluating path: %w", err)
	}

	if !d.contains(real) {
		return "", fmt.Errorf("%w: %s resolves through a symlink", apperrors.ErrPathEscape, rel)
	}

	return abs, nil
}

// Rel renders abs relative to the root with forward slashes.
func (d *Dir) Rel(abs string) (string, error) {
	if !d.contains(abs) {
		return "", fmt.Errorf("%w: %s", apperrors.ErrPathEscape, abs)
	}

	rel, err := filepath.Rel(d.root, abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", apperrors.ErrPathEscape, abs)
	}

	return filepath.ToSlash(rel), nil
}

func (d *Dir) contains(abs string) bool {
	return abs == d.root || strings.HasPrefix(abs, d.root+string(filepath.Separator))
}

// evalExistingPrefix resolves symlinks on the longest existing prefix of
// abs and appends the components that do not exist yet.
func evalExistingPrefix(abs string) (string, error) {
	real, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return real, nil
	}

	dir := filepath.Dir(abs)
	if dir == abs {
		return abs, nil
	}

	parent, err := evalExistingPrefix(dir)
	if err != nil {
		return "", err
	}

	return filepath.Join(parent, filepath.Base(abs)), nil
}

// Stat returns file info for a root-relative path.
func (d *Dir) Stat(rel string) (fs.FileInfo, error) {
	abs, err := d.Resolve(rel)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrNotFound, rel)
		}

		return nil, err
	}

	return info, nil
}

// Exists reports whether rel names a regular file.
func (d *Dir) Exists(rel string) bool {
	info, err := d.Stat(rel)
	return err == nil && info.Mode().IsRegular()
}

// ReadText reads a regular file and converts CRLF line endings to LF.
// Files over the read ceiling are refused without being read.
func (d *Dir) ReadText(rel string) (string, error) {
	abs, err := d.Resolve(rel)
	if err != nil {
		return "", err
	}

	return d.readAbs(abs, rel)
}

// OpenFile opens a regular file for streaming. Unlike ReadText it
// applies no read ceiling; the caller must not buffer the whole file.
func (d *Dir) OpenFile(rel string) (*os.File, error) {
	abs, err := d.Resolve(rel)
	if err != nil {
		return nil, err
	}

	f, _, err := openRegular(abs, rel)

	return f, err
}

func openRegular(abs, label string) (*os.File, fs.FileInfo, error) {
	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", apperrors.ErrNotFound, label)
		}

		return nil, nil, fmt.Errorf("opening %s: %w", label, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", label, err)
	}

	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s is not a regular file", apperrors.ErrNotFound, label)
	}

	return f, info, nil
}

func (d *Dir) readAbs(abs, label string) (string, error) {
	f, info, err := openRegular(abs, label)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if d.maxRead > 0 && info.Size() > d.maxRead {
		return "", fmt.Errorf("%w: %s is %d bytes", apperrors.ErrOversized, label, info.Size())
	}

	// The size can grow between Stat and Read; never hold more than the
	// ceiling plus one byte.
	limit := info.Size() + 1
	if d.maxRead > 0 {
		limit = d.maxRead + 1
	}

	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", label, err)
	}

	if d.maxRead > 0 && int64(len(data)) > d.maxRead {
		return "", fmt.Errorf("%w: %s", apperrors.ErrOversized, label)
	}

	return NormalizeNewlines(string(data)), nil
}

// NormalizeNewlines converts CRLF to LF.
func NormalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// newlineWriter converts CRLF to LF on the way through to w. A CR at the
// end of one Write is held until the next byte is seen.
type newlineWriter struct {
	w  io.Writer
	cr bool
}

// NewNewlineWriter returns a writer that applies NormalizeNewlines to a
// stream. Close flushes a held trailing CR and does not close w.
func NewNewlineWriter(w io.Writer) io.WriteCloser {
	return &newlineWriter{w: w}
}

func (n *newlineWriter) Write(p []byte) (int, error) {
	out := make([]byte, 0, len(p)+1)

	for _, c := range p {
		if n.cr {
			n.cr = false
			if c != '\n' {
				out = append(out, '\r')
			}
		}

		if c == '\r' {
			n.cr = true
			continue
		}

		out = append(out, c)
	}

	if _, err := n.w.Write(out); err != nil {
		return 0, err
	}

	return len(p), nil
}

func (n *newlineWriter) Close() error {
	if !n.cr {
		return nil
	}

	n.cr = false
	_, err := n.w.Write([]byte{'\r'})

	return err
}

// WriteFile atomically replaces rel with data, creating parent
// directories as needed.
func (d *Dir) WriteFile(rel string, data []byte) error {
	abs, err := d.Resolve(rel)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("creating parent directories: %w", err)
	}

	return WriteAtomic(abs, data)
}

// AppendFile appends data to rel, creating it if needed.
func (d *Dir) AppendFile(rel string, data []byte) error {
	abs, err := d.Resolve(rel)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", rel, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("appending to %s: %w", rel, err)
	}

	return f.Close()
}

// WriteAtomic writes data to a temp file beside path and renames it into
// place. An existing file keeps its permissions.
func WriteAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), TempPrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	perm := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

// File is one regular file found by Walk.
type File struct {
	Rel  string
	Abs  string
	Size int64
}

// Walk visits every regular file under the root in lexical order.
// Symlinks are not followed and in-flight temp files are skipped.
func (d *Dir) Walk(fn func(File) error) error {
	return filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == d.root {
				return err
			}

			return nil
		}

		if entry.IsDir() || !entry.Type().IsRegular() {
			return nil
		}

		if strings.HasPrefix(entry.Name(), TempPrefix) {
			return nil
		}

		rel, err := d.Rel(path)
		if err != nil {
			return nil
		}

		var size int64
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}

		return fn(File{Rel: rel, Abs: path, Size: size})
	})
}
