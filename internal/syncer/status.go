package syncer

import (
	"sort"

	"github.com/alexjbarnes/studio-sync/internal/manifest"
	"github.com/alexjbarnes/studio-sync/internal/outdir"
)

// FileState is how a tracked file compares with what was exported.
type FileState string

const (
	StateClean      FileState = "clean"
	StateModified   FileState = "modified"
	StateDeleted    FileState = "deleted"
	StateUnreadable FileState = "unreadable"
)

// StatusEntry is one tracked file.
type StatusEntry struct {
	Type    manifest.Kind `json:"type"`
	RelPath string        `json:"relPath"`
	State   FileState     `json:"state"`
	Error   string        `json:"error,omitempty"`
}

// StatusResult lists every tracked file under an output root.
type StatusResult struct {
	Output    string        `json:"output"`
	UpdatedAt string        `json:"updatedAt,omitempty"`
	Entries   []StatusEntry `json:"entries"`
	Modified  int           `json:"modified"`
	Deleted   int           `json:"deleted"`
	Clean     int           `json:"clean"`
}

type trackedEntry struct {
	kind manifest.Kind
	rel  string
	hash string
}

// trackedEntries lists manifest entries, scripts first, each sorted by
// path.
func trackedEntries(m *manifest.Manifest) []trackedEntry {
	var out []trackedEntry

	for rel, h := range m.Scripts {
		out = append(out, trackedEntry{kind: manifest.Script, rel: rel, hash: h})
	}

	for rel, h := range m.Instances {
		out = append(out, trackedEntry{kind: manifest.Instance, rel: rel, hash: h})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].kind != out[j].kind {
			return out[i].kind == manifest.Script
		}

		return out[i].rel < out[j].rel
	})

	return out
}

// checkTracked compares one tracked file with its recorded hash.
func checkTracked(dir *outdir.Dir, t trackedEntry) StatusEntry {
	entry := StatusEntry{Type: t.kind, RelPath: t.rel}

	h, exists, err := diskHash(dir, t.kind, t.rel)

	switch {
	case err != nil:
		entry.State = StateUnreadable
		entry.Error = err.Error()
	case !exists:
		entry.State = StateDeleted
	case h != t.hash:
		entry.State = StateModified
	default:
		entry.State = StateClean
	}

	return entry
}

// Status reports which tracked files were edited or deleted locally
// since they were exported. It only reads.
func (e *Engine) Status(dir *outdir.Dir) *StatusResult {
	m := e.loadManifest(dir)

	res := &StatusResult{Output: dir.Root(), UpdatedAt: m.UpdatedAt, Entries: []StatusEntry{}}

	for _, t := range trackedEntries(m) {
		entry := checkTracked(dir, t)

		switch entry.State {
		case StateClean:
			res.Clean++
		case StateModified:
			res.Modified++
		case StateDeleted:
			res.Deleted++
		case StateUnreadable:
		}

		res.Entries = append(res.Entries, entry)
	}

	return res
}
