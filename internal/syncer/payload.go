package syncer

import (
	"fmt"
	"strings"

	apperrors "github.com/alexjbarnes/studio-sync/internal/errors"
	"github.com/alexjbarnes/studio-sync/internal/tree"
)

// Item field defaults used when the exporter leaves a field out.
const (
	defaultService       = "UnknownService"
	defaultScriptName    = "Script"
	defaultScriptClass   = "Script"
	defaultInstanceName  = "Instance"
	defaultInstanceClass = "Folder"
)

// ExportFlags describe what an output directory contains.
type ExportFlags struct {
	Scripts bool `json:"scripts"`
	UI      bool `json:"ui"`
	Objects bool `json:"objects"`
}

// Union returns flags set in either f or o.
func (f ExportFlags) Union(o ExportFlags) ExportFlags {
	return ExportFlags{
		Scripts: f.Scripts || o.Scripts,
		UI:      f.UI || o.UI,
		Objects: f.Objects || o.Objects,
	}
}

// ScriptItem is one script in a snapshot.
type ScriptItem struct {
	Service string   `json:"service"`
	Name    string   `json:"name"`
	Class   string   `json:"class"`
	Path    []string `json:"path"`
	Source  string   `json:"source"`
}

// ScriptRoot groups the scripts found under one service.
type ScriptRoot struct {
	Service string       `json:"service"`
	Items   []ScriptItem `json:"items"`
}

// ScriptPayload is a script snapshot request.
type ScriptPayload struct {
	OutputFolder string
	Roots        []ScriptRoot
	Flags        ExportFlags
}

// InstanceItem is one instance tree in a snapshot.
type InstanceItem struct {
	Service string
	Name    string
	Class   string
	Path    []string
	Tree    tree.Value
	Mode    string
}

// InstancePayload is an instance snapshot request.
type InstancePayload struct {
	OutputFolder string
	Instances    []InstanceItem
	Flags        ExportFlags
}

// IndexRequest asks for a local index. StudioPaths is the exporter's
// authoritative path list, each path starting with its service.
type IndexRequest struct {
	OutputFolder string
	Services     []string
	StudioPaths  [][]string
}

// GetRequest names one file below the output root.
type GetRequest struct {
	OutputFolder string
	RelPath      string
}

// SkipEntry is an item the exporter itself declined to export.
type SkipEntry struct {
	Service string
	Name    string
	Class   string
	Path    []string
	Reason  string
}

// SkipLogRequest carries exporter-side skips.
type SkipLogRequest struct {
	OutputFolder string
	Entries      []SkipEntry
}

func decodeObject(data []byte) (tree.Value, error) {
	v, err := tree.Decode(data)
	if err != nil || v.Kind() != tree.KindMap {
		return tree.Value{}, fmt.Errorf("%w: request body must be a JSON object", apperrors.ErrMalformedInput)
	}

	return v, nil
}

// ParseScriptPayload decodes a script snapshot. Roots or items that are
// not objects are ignored.
func ParseScriptPayload(data []byte) (ScriptPayload, error) {
	v, err := decodeObject(data)
	if err != nil {
		return ScriptPayload{}, err
	}

	p := ScriptPayload{
		OutputFolder: field(v, "outputFolderName", ""),
		Flags:        flagsField(v),
	}

	roots, _ := get(v, "roots").AsList()
	for _, r := range roots {
		if r.Kind() != tree.KindMap {
			continue
		}

		root := ScriptRoot{Service: field(r, "service", defaultService)}

		items, _ := get(r, "items").AsList()
		for _, it := range items {
			if it.Kind() != tree.KindMap {
				continue
			}

			root.Items = append(root.Items, ScriptItem{
				Service: root.Service,
				Name:    field(it, "name", defaultScriptName),
				Class:   field(it, "class", defaultScriptClass),
				Path:    stringList(get(it, "path")),
				Source:  field(it, "source", ""),
			})
		}

		p.Roots = append(p.Roots, root)
	}

	return p, nil
}

// ParseInstancePayload decodes an instance snapshot. A present but
// non-list instances field rejects the request.
func ParseInstancePayload(data []byte) (InstancePayload, error) {
	v, err := decodeObject(data)
	if err != nil {
		return InstancePayload{}, err
	}

	p := InstancePayload{
		OutputFolder: field(v, "outputFolderName", ""),
		Flags:        flagsField(v),
	}

	raw, present := v.Get("instances")
	if present && raw.Kind() != tree.KindNull && raw.Kind() != tree.KindList {
		return InstancePayload{}, fmt.Errorf("%w: instances must be a list", apperrors.ErrMalformedInput)
	}

	items, _ := raw.AsList()
	for _, it := range items {
		if it.Kind() != tree.KindMap {
			continue
		}

		t := get(it, "tree")
		if t.Kind() == tree.KindNull {
			t = tree.Map(nil)
		}

		p.Instances = append(p.Instances, InstanceItem{
			Service: field(it, "service", defaultService),
			Name:    field(it, "name", defaultInstanceName),
			Class:   field(it, "class", defaultInstanceClass),
			Path:    stringList(get(it, "path")),
			Tree:    t,
			Mode:    strings.ToLower(field(it, "mode", "")),
		})
	}

	return p, nil
}

// ParseIndexRequest decodes a local index request. Paths with a blank or
// non-string segment are ignored.
func ParseIndexRequest(data []byte) (IndexRequest, error) {
	v, err := decodeObject(data)
	if err != nil {
		return IndexRequest{}, err
	}

	req := IndexRequest{OutputFolder: field(v, "outputFolderName", "")}

	services, _ := get(v, "services").AsList()
	for _, s := range services {
		if str, ok := s.AsString(); ok && strings.TrimSpace(str) != "" {
			req.Services = append(req.Services, str)
		}
	}

	paths, _ := get(v, "studioPaths").AsList()
	for _, p := range paths {
		segs, ok := p.AsList()
		if !ok || len(segs) == 0 {
			continue
		}

		path := make([]string, 0, len(segs))
		for _, s := range segs {
			str, ok := s.AsString()
			if !ok || strings.TrimSpace(str) == "" {
				path = nil
				break
			}

			path = append(path, str)
		}

		if path != nil {
			req.StudioPaths = append(req.StudioPaths, path)
		}
	}

	return req, nil
}

// ParseGetRequest decodes a single-file request.
func ParseGetRequest(data []byte) (GetRequest, error) {
	v, err := decodeObject(data)
	if err != nil {
		return GetRequest{}, err
	}

	rel, ok := get(v, "relPath").AsString()
	if !ok || strings.TrimSpace(rel) == "" {
		return GetRequest{}, fmt.Errorf("%w: relPath required", apperrors.ErrMalformedInput)
	}

	return GetRequest{OutputFolder: field(v, "outputFolderName", ""), RelPath: rel}, nil
}

// ParseSkipLogRequest decodes exporter-side skips.
func ParseSkipLogRequest(data []byte) (SkipLogRequest, error) {
	v, err := decodeObject(data)
	if err != nil {
		return SkipLogRequest{}, err
	}

	req := SkipLogRequest{OutputFolder: field(v, "outputFolderName", "")}

	entries, _ := get(v, "skipped").AsList()
	for _, e := range entries {
		if e.Kind() != tree.KindMap {
			continue
		}

		req.Entries = append(req.Entries, SkipEntry{
			Service: field(e, "service", "?"),
			Name:    field(e, "name", "?"),
			Class:   field(e, "class", "?"),
			Path:    stringList(get(e, "path")),
			Reason:  field(e, "reason", "unknown"),
		})
	}

	return req, nil
}

// InferFlags adds flags implied by the payload contents.
func (p ScriptPayload) InferFlags() ExportFlags {
	f := p.Flags
	if len(p.Roots) > 0 {
		f.Scripts = true
	}

	return f
}

// InferFlags adds flags implied by the instance modes.
func (p InstancePayload) InferFlags() ExportFlags {
	f := p.Flags
	for _, it := range p.Instances {
		switch it.Mode {
		case "ui":
			f.UI = true
		case "object":
			f.Objects = true
		}
	}

	return f
}

func get(v tree.Value, key string) tree.Value {
	e, _ := v.Get(key)
	return e
}

// field renders a scalar field as text, falling back to def when the
// field is missing or null.
func field(v tree.Value, key, def string) string {
	e, ok := v.Get(key)
	if !ok {
		return def
	}

	if s, ok := e.Text(); ok {
		return s
	}

	return def
}

func stringList(v tree.Value) []string {
	items, _ := v.AsList()

	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.AsString(); ok {
			out = append(out, s)
		}
	}

	return out
}

func flagsField(v tree.Value) ExportFlags {
	f := get(v, "exportFlags")

	return ExportFlags{
		Scripts: truthy(get(f, "scripts")),
		UI:      truthy(get(f, "ui")),
		Objects: truthy(get(f, "objects")),
	}
}

func truthy(v tree.Value) bool {
	switch v.Kind() {
	case tree.KindBool:
		b, _ := v.AsBool()
		return b
	case tree.KindInt:
		i, _ := v.AsInt()
		return i != 0
	case tree.KindFloat:
		f, _ := v.AsFloat()
		return f != 0
	case tree.KindString:
		s, _ := v.AsString()
		return s != ""
	case tree.KindList:
		l, _ := v.AsList()
		return len(l) > 0
	case tree.KindMap:
		m, _ := v.AsMap()
		return len(m) > 0
	default:
		return false
	}
}
