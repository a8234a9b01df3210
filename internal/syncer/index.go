package syncer

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/alexjbarnes/studio-sync/internal/naming"
	"github.com/alexjbarnes/studio-sync/internal/outdir"
	"github.com/alexjbarnes/studio-sync/internal/tree"
	"golang.org/x/text/unicode/norm"
)

// SkipLogName is the exporter-side skip log at the output root.
const SkipLogName = "skipped.txt"

// IndexItem is one artifact found on disk, with the logical path it
// corresponds to in the exporter.
type IndexItem struct {
	RelPath string   `json:"relPath"`
	Service string   `json:"service"`
	Path    []string `json:"path"`
	Name    string   `json:"name"`
	Class   string   `json:"class"`
	Size    int64    `json:"size"`
}

// Ambiguity is a file whose legacy-sanitized path matches more than one
// reference path. Its path is left as found on disk.
type Ambiguity struct {
	RelPath    string     `json:"relPath"`
	Path       []string   `json:"path"`
	Candidates [][]string `json:"candidates"`
}

// IndexResult lists the artifacts under an output root.
type IndexResult struct {
	Output    string      `json:"output"`
	Items     []IndexItem `json:"items"`
	Ambiguous []Ambiguity `json:"ambiguous,omitempty"`
}

// pathResolver maps paths reconstructed from disk onto the reference
// path set, going through legacy naming when the literal path is
// unknown.
type pathResolver struct {
	known  map[string]bool
	legacy map[string][][]string
}

func newPathResolver(paths [][]string) *pathResolver {
	r := &pathResolver{known: map[string]bool{}, legacy: map[string][][]string{}}

	for _, p := range paths {
		key := pathKey(p)
		if r.known[key] {
			continue
		}

		r.known[key] = true

		lk := pathKey(naming.LegacySegments(p))
		r.legacy[lk] = append(r.legacy[lk], p)
	}

	return r
}

func (r *pathResolver) empty() bool {
	return len(r.known) == 0
}

func (r *pathResolver) has(segs []string) bool {
	return r.known[pathKey(segs)]
}

// resolve returns the reference path for segs. When several reference
// paths share segs' legacy form, segs is returned unchanged along with
// the candidates.
func (r *pathResolver) resolve(segs []string) ([]string, [][]string) {
	if r.empty() || r.has(segs) {
		return segs, nil
	}

	matches := r.legacy[pathKey(naming.LegacySegments(segs))]

	switch len(matches) {
	case 0:
		return segs, nil
	case 1:
		return append([]string(nil), matches[0]...), nil
	default:
		return segs, matches
	}
}

type indexFilter map[string]bool

func newIndexFilter(services []string) indexFilter {
	if len(services) == 0 {
		return nil
	}

	f := indexFilter{}
	for _, s := range services {
		f[s] = true
	}

	return f
}

func (f indexFilter) allows(service string) bool {
	return f == nil || f[service]
}

func (f indexFilter) paths(paths [][]string) [][]string {
	if f == nil {
		return paths
	}

	var out [][]string
	for _, p := range paths {
		if f.allows(p[0]) {
			out = append(out, p)
		}
	}

	return out
}

// splitRel breaks a root-relative path into NFC segments.
func splitRel(rel string) []string {
	var parts []string

	for _, p := range strings.Split(rel, "/") {
		if p != "" {
			parts = append(parts, norm.NFC.String(p))
		}
	}

	return parts
}

// LocalIndex lists the script files under dir.
func (e *Engine) LocalIndex(dir *outdir.Dir, req IndexRequest) (*IndexResult, error) {
	filter := newIndexFilter(req.Services)
	resolver := newPathResolver(filter.paths(req.StudioPaths))
	res := &IndexResult{Output: dir.Root(), Items: []IndexItem{}}

	err := dir.Walk(func(f outdir.File) error {
		parts := splitRel(f.Rel)
		if len(parts) < 2 || !naming.IsScriptFile(parts[len(parts)-1]) {
			return nil
		}

		service := parts[0]
		if !filter.allows(service) {
			return nil
		}

		filename := parts[len(parts)-1]
		name := naming.ScriptNameFromFilename(filename)
		dirs := parts[1 : len(parts)-1]

		full := joinSegs(service, dirs, name)

		segs, candidates := resolver.resolve(full)

		// A script stored in a folder of its own name may be a parent
		// script; prefer whichever layout the reference set knows.
		if len(dirs) > 0 && strings.EqualFold(dirs[len(dirs)-1], name) && !resolver.empty() {
			collapsed, collapsedCandidates := resolver.resolve(joinSegs(service, dirs[:len(dirs)-1], name))
			if !resolver.has(segs) && resolver.has(collapsed) {
				segs, candidates = collapsed, collapsedCandidates
			}
		}

		if candidates != nil {
			res.Ambiguous = append(res.Ambiguous, Ambiguity{RelPath: f.Rel, Path: segs, Candidates: candidates})
		}

		res.Items = append(res.Items, IndexItem{
			RelPath: f.Rel,
			Service: service,
			Path:    segs,
			Name:    name,
			Class:   naming.ClassFromFilename(filename),
			Size:    f.Size,
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logIndex("scripts", res)

	return res, nil
}

// LocalIndexInstances lists the instance files under dir: non-script
// files whose suffix names a class and whose body is a JSON object with
// class and name fields.
func (e *Engine) LocalIndexInstances(dir *outdir.Dir, req IndexRequest) (*IndexResult, error) {
	filter := newIndexFilter(req.Services)
	resolver := newPathResolver(filter.paths(req.StudioPaths))
	res := &IndexResult{Output: dir.Root(), Items: []IndexItem{}}

	err := dir.Walk(func(f outdir.File) error {
		parts := splitRel(f.Rel)
		if len(parts) < 2 {
			return nil
		}

		filename := parts[len(parts)-1]
		if naming.IsScriptFile(filename) || strings.EqualFold(filename, SkipLogName) {
			return nil
		}

		service := parts[0]
		if !filter.allows(service) {
			return nil
		}

		ext := filepath.Ext(filename)
		class := strings.TrimPrefix(ext, ".")
		name := strings.TrimSuffix(filename, ext)

		if class == "" || name == "" {
			return nil
		}

		if !isInstanceFile(dir, f.Rel) {
			return nil
		}

		segs, candidates := resolver.resolve(joinSegs(service, parts[1:len(parts)-1], name))
		if candidates != nil {
			res.Ambiguous = append(res.Ambiguous, Ambiguity{RelPath: f.Rel, Path: segs, Candidates: candidates})
		}

		res.Items = append(res.Items, IndexItem{
			RelPath: f.Rel,
			Service: service,
			Path:    segs,
			Name:    segs[len(segs)-1],
			Class:   class,
			Size:    f.Size,
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logIndex("instances", res)

	return res, nil
}

func isInstanceFile(dir *outdir.Dir, rel string) bool {
	text, err := dir.ReadText(rel)
	if err != nil {
		return false
	}

	v, err := tree.Decode([]byte(text))
	if err != nil {
		return false
	}

	_, hasClass := v.Get("class")
	_, hasName := v.Get("name")

	return hasClass && hasName
}

func joinSegs(service string, dirs []string, name string) []string {
	out := make([]string, 0, len(dirs)+2)
	out = append(out, service)
	out = append(out, dirs...)

	return append(out, name)
}

func (e *Engine) logIndex(kind string, res *IndexResult) {
	for _, a := range res.Ambiguous {
		e.logger.Warn("ambiguous legacy path",
			slog.String("rel_path", a.RelPath),
			slog.Int("candidates", len(a.Candidates)),
		)
	}

	e.logger.Debug("index complete",
		slog.String("kind", kind),
		slog.String("output", res.Output),
		slog.Int("items", len(res.Items)),
	)
}
