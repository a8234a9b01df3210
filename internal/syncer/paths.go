package syncer

import (
	"errors"
	"strings"

	apperrors "github.com/alexjbarnes/studio-sync/internal/errors"
	"github.com/alexjbarnes/studio-sync/internal/naming"
	"github.com/alexjbarnes/studio-sync/internal/outdir"
)

// scriptRecord is a script with its normalized segments. Parent scripts
// have other scripts below them and live in a folder of their own name.
type scriptRecord struct {
	item   ScriptItem
	segs   []string
	parent bool
}

func pathKey(segs []string) string {
	return strings.Join(segs, "\x00")
}

// scriptRecords normalizes every item and marks parents: a path that is
// a strict prefix of another path in the same service.
func scriptRecords(p ScriptPayload) []scriptRecord {
	var records []scriptRecord

	paths := map[string]map[string]bool{}

	for _, root := range p.Roots {
		for _, it := range root.Items {
			segs := naming.NormalizePath(it.Service, it.Path, it.Name)
			records = append(records, scriptRecord{item: it, segs: segs})

			if paths[it.Service] == nil {
				paths[it.Service] = map[string]bool{}
			}

			paths[it.Service][pathKey(segs)] = true
		}
	}

	parents := map[string]map[string]bool{}

	for service, set := range paths {
		parents[service] = map[string]bool{}

		for key := range set {
			segs := strings.Split(key, "\x00")
			for i := 1; i < len(segs); i++ {
				prefix := pathKey(segs[:i])
				if set[prefix] {
					parents[service][prefix] = true
				}
			}
		}
	}

	for i := range records {
		records[i].parent = parents[records[i].item.Service][pathKey(records[i].segs)]
	}

	return records
}

// scriptRel lays out a script file below the output root.
func scriptRel(service string, segs []string, class string, folder bool) string {
	name := segs[len(segs)-1]

	parts := make([]string, 0, len(segs)+2)
	parts = append(parts, naming.SafeName(service))
	parts = append(parts, segs[:len(segs)-1]...)

	if folder {
		parts = append(parts, name)
	}

	parts = append(parts, name+naming.ScriptExt(class))

	return strings.Join(parts, "/")
}

// scriptCandidates lists the layouts a script may have been exported
// under: flat and folder form, in current and legacy naming.
func scriptCandidates(service string, segs []string, class string) []string {
	out := []string{
		scriptRel(service, segs, class, false),
		scriptRel(service, segs, class, true),
	}

	legacy := naming.LegacySegments(segs)
	if pathKey(legacy) != pathKey(segs) {
		out = append(out,
			scriptRel(service, legacy, class, false),
			scriptRel(service, legacy, class, true),
		)
	}

	return out
}

// findScript returns the existing candidate with the newest mtime.
func findScript(dir *outdir.Dir, service string, segs []string, class string) (string, bool) {
	var (
		best    string
		bestMod int64
		found   bool
	)

	for _, rel := range scriptCandidates(service, segs, class) {
		info, err := dir.Stat(rel)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		mod := info.ModTime().UnixNano()
		if !found || mod > bestMod {
			best, bestMod, found = rel, mod, true
		}
	}

	return best, found
}

// instanceRel lays out an instance file: the sanitized class is the
// file suffix.
func instanceRel(service string, segs []string, class string) string {
	name := segs[len(segs)-1]

	parts := make([]string, 0, len(segs)+1)
	parts = append(parts, naming.SafeName(service))
	parts = append(parts, segs[:len(segs)-1]...)
	parts = append(parts, name+"."+naming.SafeName(class))

	return strings.Join(parts, "/")
}

// confine checks every path against the output root before any I/O. A
// path that escapes, including through a symlinked folder, fails the
// whole operation rather than one item.
func confine(dir *outdir.Dir, rels []string) error {
	for _, rel := range rels {
		if _, err := dir.Resolve(rel); errors.Is(err, apperrors.ErrPathEscape) {
			return err
		}
	}

	return nil
}

func absPath(dir *outdir.Dir, rel string) string {
	abs, err := dir.Resolve(rel)
	if err != nil {
		return ""
	}

	return abs
}
