package syncer

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	apperrors "github.com/alexjbarnes/studio-sync/internal/errors"
	"github.com/alexjbarnes/studio-sync/internal/manifest"
	"github.com/alexjbarnes/studio-sync/internal/naming"
	"github.com/alexjbarnes/studio-sync/internal/outdir"
	"github.com/alexjbarnes/studio-sync/internal/tree"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	reasonInvalidJSON = "invalid JSON"
	patchContext      = 3
)

// DiffEntry reports one snapshot item whose local file differs, is
// missing, or could not be read.
type DiffEntry struct {
	Service     string   `json:"service"`
	Name        string   `json:"name"`
	Class       string   `json:"class"`
	Path        []string `json:"path"`
	File        string   `json:"file,omitempty"`
	RelPath     string   `json:"relPath,omitempty"`
	LocalSource string   `json:"localSource,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Patch       string   `json:"patch,omitempty"`
	Added       int      `json:"added,omitempty"`
	Removed     int      `json:"removed,omitempty"`
}

// DiffResult classifies every item of a snapshot. Items that match
// their local file appear in no list.
type DiffResult struct {
	Output       string      `json:"output"`
	Changes      []DiffEntry `json:"changes"`
	MissingLocal []DiffEntry `json:"missingLocal"`
	SkippedLarge []DiffEntry `json:"skippedLarge"`
}

func newDiffResult(dir *outdir.Dir) *DiffResult {
	return &DiffResult{
		Output:       dir.Root(),
		Changes:      []DiffEntry{},
		MissingLocal: []DiffEntry{},
		SkippedLarge: []DiffEntry{},
	}
}

// readFailure files a read error under the right list.
func (r *DiffResult) readFailure(entry DiffEntry, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		entry.File, entry.RelPath = "", ""
		r.MissingLocal = append(r.MissingLocal, entry)
	case errors.Is(err, apperrors.ErrOversized):
		entry.Reason = manifest.ReasonTooLarge
		r.SkippedLarge = append(r.SkippedLarge, entry)
	default:
		entry.Reason = err.Error()
		r.SkippedLarge = append(r.SkippedLarge, entry)
	}
}

// DiffScripts compares each script's source with its local file. The
// directory is never modified. A candidate path that escapes the output
// root fails the whole diff.
func (e *Engine) DiffScripts(dir *outdir.Dir, p ScriptPayload) (*DiffResult, error) {
	records := scriptRecords(p)

	var rels []string
	for _, rec := range records {
		rels = append(rels, scriptCandidates(rec.item.Service, rec.segs, rec.item.Class)...)
	}

	if err := confine(dir, rels); err != nil {
		return nil, fmt.Errorf("diffing scripts: %w", err)
	}

	res := newDiffResult(dir)

	for _, rec := range records {
		it := rec.item
		entry := DiffEntry{Service: it.Service, Name: it.Name, Class: it.Class, Path: it.Path}

		rel, ok := findScript(dir, it.Service, rec.segs, it.Class)
		if !ok {
			res.MissingLocal = append(res.MissingLocal, entry)
			continue
		}

		entry.RelPath = rel
		entry.File = absPath(dir, rel)

		local, err := dir.ReadText(rel)
		if err != nil {
			res.readFailure(entry, err)
			continue
		}

		remote := outdir.NormalizeNewlines(it.Source)
		if local == remote {
			continue
		}

		entry.LocalSource = local
		entry.Patch = unifiedPatch(remote, local, rel)
		entry.Added, entry.Removed = lineStats(remote, local)
		res.Changes = append(res.Changes, entry)
	}

	e.logDiff("scripts", res)

	return res, nil
}

// DiffInstances compares each instance tree with its local file. The
// local file may be partial: it is merged onto the exported tree first
// so omitted properties and children do not count as changes. A path
// that escapes the output root fails the whole diff.
func (e *Engine) DiffInstances(dir *outdir.Dir, p InstancePayload) (*DiffResult, error) {
	rels := make([]string, len(p.Instances))
	for i, it := range p.Instances {
		rels[i] = instanceRel(it.Service, naming.NormalizePath(it.Service, it.Path, it.Name), it.Class)
	}

	if err := confine(dir, rels); err != nil {
		return nil, fmt.Errorf("diffing instances: %w", err)
	}

	res := newDiffResult(dir)

	for i, it := range p.Instances {
		entry := DiffEntry{Service: it.Service, Name: it.Name, Class: it.Class, Path: it.Path}
		rel := rels[i]

		if !dir.Exists(rel) {
			res.MissingLocal = append(res.MissingLocal, entry)
			continue
		}

		entry.RelPath = rel
		entry.File = absPath(dir, rel)

		text, err := dir.ReadText(rel)
		if err != nil {
			res.readFailure(entry, err)
			continue
		}

		local, err := tree.Decode([]byte(text))
		if err != nil {
			entry.Reason = reasonInvalidJSON
			res.Changes = append(res.Changes, entry)

			continue
		}

		remote := e.canon.Canonicalize(it.Tree)
		effective := e.canon.Merge(remote, e.canon.Canonicalize(local))

		if tree.Equal(effective, remote) {
			continue
		}

		from := string(tree.Pretty(remote.Value()))
		to := string(tree.Pretty(effective.Value()))

		entry.Patch = unifiedPatch(from, to, rel)
		entry.Added, entry.Removed = lineStats(from, to)
		res.Changes = append(res.Changes, entry)
	}

	e.logDiff("instances", res)

	return res, nil
}

func (e *Engine) logDiff(kind string, res *DiffResult) {
	e.logger.Debug("diff complete",
		slog.String("kind", kind),
		slog.String("output", res.Output),
		slog.Int("changes", len(res.Changes)),
		slog.Int("missing", len(res.MissingLocal)),
		slog.Int("skipped", len(res.SkippedLarge)),
	)
}

// unifiedPatch renders the edit from the exported text to the local
// text.
func unifiedPatch(remote, local, rel string) string {
	s, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(remote),
		B:        difflib.SplitLines(local),
		FromFile: "studio/" + rel,
		ToFile:   "local/" + rel,
		Context:  patchContext,
	})
	if err != nil {
		return ""
	}

	return s
}

// lineStats counts lines added and removed going from remote to local.
func lineStats(remote, local string) (added, removed int) {
	dmp := diffmatchpatch.New()

	a, b, lines := dmp.DiffLinesToChars(remote, local)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	for _, d := range diffs {
		n := countLines(d.Text)

		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		case diffmatchpatch.DiffEqual:
		}
	}

	return added, removed
}

func countLines(s string) int {
	if s == "" {
		return 0
	}

	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}

	return n
}
