package syncer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	apperrors "github.com/alexjbarnes/studio-sync/internal/errors"
	"github.com/alexjbarnes/studio-sync/internal/manifest"
	"github.com/alexjbarnes/studio-sync/internal/outdir"
	"github.com/alexjbarnes/studio-sync/internal/tree"
)

// artifact is content about to be written to rel.
type artifact struct {
	kind manifest.Kind
	rel  string
	data []byte
	hash string
}

func hashText(s string) string {
	sum := sha256.Sum256([]byte(outdir.NormalizeNewlines(s)))
	return hex.EncodeToString(sum[:])
}

// hashTree hashes the compact encoding of a tree value.
func hashTree(v tree.Value) string {
	sum := sha256.Sum256(tree.Compact(v))
	return hex.EncodeToString(sum[:])
}

// contentHash hashes text already on disk the same way new content of
// that kind is hashed. Instance files that do not parse hash their raw
// text, which can never equal the hash of an encoded tree.
func contentHash(kind manifest.Kind, text string) string {
	if kind == manifest.Instance {
		v, err := tree.Decode([]byte(text))
		if err == nil {
			return hashTree(v)
		}
	}

	return hashText(text)
}

// diskHash returns the hash of the file currently at rel. exists is false
// when there is no file. Scripts are hashed as a stream with no size
// ceiling; instances must be parsed and so are bounded by the read limit.
func diskHash(dir *outdir.Dir, kind manifest.Kind, rel string) (hash string, exists bool, err error) {
	info, err := dir.Stat(rel)
	if errors.Is(err, apperrors.ErrNotFound) {
		return "", false, nil
	}

	if err != nil {
		return "", true, err
	}

	if !info.Mode().IsRegular() {
		return "", true, fmt.Errorf("%s is not a regular file", rel)
	}

	if kind == manifest.Script {
		h, err := streamHash(dir, rel)
		return h, true, err
	}

	text, err := dir.ReadText(rel)
	if err != nil {
		return "", true, err
	}

	return contentHash(kind, text), true, nil
}

// streamHash equals hashText of the file's contents without holding them.
func streamHash(dir *outdir.Dir, rel string) (string, error) {
	f, err := dir.OpenFile(rel)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()

	nw := outdir.NewNewlineWriter(h)
	if _, err := io.Copy(nw, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", rel, err)
	}

	if err := nw.Close(); err != nil {
		return "", fmt.Errorf("hashing %s: %w", rel, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// decide applies the overwrite policy. A file is replaced only when it is
// absent, still holds what was last recorded, or already holds the new
// content with no record to contradict it.
func decide(exists bool, recorded string, hasRecord bool, existing, next string) (bool, string) {
	switch {
	case !exists:
		return true, ""
	case hasRecord && existing == recorded:
		return true, ""
	case hasRecord:
		return false, manifest.ReasonLocalEdits
	case existing == next:
		return true, ""
	default:
		return false, manifest.ReasonNoEntry
	}
}

// write applies the overwrite policy to one artifact, recording the
// result in m. It never fails; problems become skip records.
//
// Instance files are re-read and parsed on the next pass, so one larger
// than the read limit is never written: it could not be compared later.
func (e *Engine) write(dir *outdir.Dir, m *manifest.Manifest, a artifact) bool {
	if a.kind == manifest.Instance && dir.MaxRead() > 0 && int64(len(a.data)) > dir.MaxRead() {
		e.skip(m, a, manifest.ReasonTooLarge, nil)
		return false
	}

	existing, exists, err := diskHash(dir, a.kind, a.rel)
	if err != nil {
		e.skip(m, a, skipReason(err), err)
		return false
	}

	recorded, hasRecord := m.Recorded(a.kind, a.rel)

	ok, reason := decide(exists, recorded, hasRecord, existing, a.hash)
	if !ok {
		e.skip(m, a, reason, nil)
		return false
	}

	if err := dir.WriteFile(a.rel, a.data); err != nil {
		reason := manifest.ReasonWriteError
		if errors.Is(err, apperrors.ErrPathEscape) {
			reason = manifest.ReasonPathEscape
		}

		e.skip(m, a, reason, err)
		return false
	}

	m.Record(a.kind, a.rel, a.hash)

	return true
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrOversized):
		return manifest.ReasonTooLarge
	case errors.Is(err, apperrors.ErrPathEscape):
		return manifest.ReasonPathEscape
	default:
		return manifest.ReasonUnreadable
	}
}

func (e *Engine) skip(m *manifest.Manifest, a artifact, reason string, cause error) {
	m.Skip(a.kind, a.rel, reason)

	attrs := []any{
		slog.String("type", string(a.kind)),
		slog.String("rel_path", a.rel),
		slog.String("reason", reason),
	}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}

	e.logger.Info("skipped artifact", attrs...)
}
