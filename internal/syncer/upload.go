package syncer

import (
	"fmt"
	"log/slog"

	"github.com/alexjbarnes/studio-sync/internal/manifest"
	"github.com/alexjbarnes/studio-sync/internal/naming"
	"github.com/alexjbarnes/studio-sync/internal/outdir"
	"github.com/alexjbarnes/studio-sync/internal/tree"
)

// UploadResult summarizes one export pass.
type UploadResult struct {
	Output  string                `json:"output"`
	Wrote   int                   `json:"wrote"`
	Skipped int                   `json:"skipped"`
	Skips   []manifest.SkipRecord `json:"skips"`
}

// UploadScripts writes every script in p under dir, leaving files with
// local edits untouched. A path that escapes the output root fails the
// upload before anything is written; otherwise only a failure to persist
// the manifest is returned as an error.
func (e *Engine) UploadScripts(dir *outdir.Dir, p ScriptPayload) (*UploadResult, error) {
	m := e.loadManifest(dir)

	flags := p.InferFlags()
	flags.Scripts = true

	var arts []artifact
	for _, rec := range scriptRecords(p) {
		arts = append(arts, artifact{
			kind: manifest.Script,
			rel:  scriptRel(rec.item.Service, rec.segs, rec.item.Class, rec.parent),
			data: []byte(rec.item.Source),
			hash: hashText(rec.item.Source),
		})
	}

	return e.upload(dir, m, arts, flags, "scripts")
}

// UploadInstances canonicalizes and writes every instance tree in p.
func (e *Engine) UploadInstances(dir *outdir.Dir, p InstancePayload) (*UploadResult, error) {
	m := e.loadManifest(dir)

	flags := p.InferFlags()
	if len(m.Scripts) > 0 {
		flags.Scripts = true
	}

	var arts []artifact
	for _, it := range p.Instances {
		segs := naming.NormalizePath(it.Service, it.Path, it.Name)
		canon := e.canon.Canonicalize(it.Tree).Value()

		arts = append(arts, artifact{
			kind: manifest.Instance,
			rel:  instanceRel(it.Service, segs, it.Class),
			data: tree.Pretty(canon),
			hash: hashTree(canon),
		})
	}

	return e.upload(dir, m, arts, flags, "instances")
}

func (e *Engine) upload(dir *outdir.Dir, m *manifest.Manifest, arts []artifact, flags ExportFlags, kind string) (*UploadResult, error) {
	rels := make([]string, len(arts))
	for i, a := range arts {
		rels[i] = a.rel
	}

	if err := confine(dir, rels); err != nil {
		return nil, fmt.Errorf("uploading %s: %w", kind, err)
	}

	res := &UploadResult{Output: dir.Root()}

	for _, a := range arts {
		if e.write(dir, m, a) {
			res.Wrote++
		} else {
			res.Skipped++
		}
	}

	res.Skips = append([]manifest.SkipRecord{}, m.Skipped...)

	if err := e.writeReadme(dir, flags); err != nil {
		e.logger.Warn("writing readme", slog.String("error", err.Error()))
	}

	if err := manifest.Save(dir.Root(), m, e.now()); err != nil {
		return res, fmt.Errorf("saving manifest: %w", err)
	}

	e.logger.Info("upload complete",
		slog.String("kind", kind),
		slog.String("output", dir.Root()),
		slog.Int("wrote", res.Wrote),
		slog.Int("skipped", res.Skipped),
	)

	return res, nil
}

func (e *Engine) loadManifest(dir *outdir.Dir) *manifest.Manifest {
	m, err := manifest.Load(dir.Root())
	if err != nil {
		e.logger.Warn("manifest unreadable, starting empty",
			slog.String("output", dir.Root()),
			slog.String("error", err.Error()),
		)
	}

	return m
}
