package syncer

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/alexjbarnes/studio-sync/internal/manifest"
	"github.com/alexjbarnes/studio-sync/internal/outdir"
	"gopkg.in/yaml.v3"
)

// ReadmeName is the summary file at the output root.
const ReadmeName = "README_Parser.md"

const (
	labelScripts = "Scripts"
	labelUI      = "UI"
	labelObjects = "Game objects"
	labelUnknown = "(unknown)"
)

type readmeFront struct {
	Contains    []string `yaml:"contains"`
	GeneratedAt string   `yaml:"generatedAt"`
}

func (f ExportFlags) labels() []string {
	var out []string
	if f.Scripts {
		out = append(out, labelScripts)
	}

	if f.UI {
		out = append(out, labelUI)
	}

	if f.Objects {
		out = append(out, labelObjects)
	}

	if len(out) == 0 {
		out = []string{labelUnknown}
	}

	return out
}

func flagsFromLabels(labels []string) ExportFlags {
	var f ExportFlags

	for _, l := range labels {
		switch l {
		case labelScripts:
			f.Scripts = true
		case labelUI:
			f.UI = true
		case labelObjects:
			f.Objects = true
		}
	}

	return f
}

// parseFrontMatter extracts the YAML block delimited by "---" lines at
// the top of content. Returns nil when there is none or it is invalid.
func parseFrontMatter(content []byte) *readmeFront {
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return nil
	}

	rest := content[4:]

	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil
	}

	var fm readmeFront
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return nil
	}

	return &fm
}

// ReadmeFlags returns the flags recorded in the README under dir.
func ReadmeFlags(dir *outdir.Dir) ExportFlags {
	text, err := dir.ReadText(ReadmeName)
	if err != nil {
		return ExportFlags{}
	}

	fm := parseFrontMatter([]byte(text))
	if fm == nil {
		return ExportFlags{}
	}

	return flagsFromLabels(fm.Contains)
}

// writeReadme regenerates the summary, keeping flags recorded by earlier
// exports to the same directory.
func (e *Engine) writeReadme(dir *outdir.Dir, flags ExportFlags) error {
	flags = flags.Union(ReadmeFlags(dir))

	front, err := yaml.Marshal(readmeFront{
		Contains:    flags.labels(),
		GeneratedAt: e.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding readme front matter: %w", err)
	}

	var b strings.Builder

	b.WriteString("---\n")
	b.Write(front)
	b.WriteString("---\n\n")
	b.WriteString("# README_Parser\n\n")
	b.WriteString("This folder is generated by the exporter plugin and the local sync server.\n\n")
	b.WriteString("## Contains\n")
	b.WriteString("- " + strings.Join(flags.labels(), ", ") + "\n\n")
	b.WriteString("## How to use\n")
	b.WriteString("1. Edit the exported files locally.\n")
	b.WriteString("2. In the plugin, open **Review & Sync** to preview and sync changes back.\n\n")
	b.WriteString("## Notes\n")
	fmt.Fprintf(&b, "- `%s` records what was last exported so local edits are never overwritten.\n", manifest.FileName)
	b.WriteString("- A file edited locally is skipped on re-export and listed in the manifest's `skipped` section.\n")
	b.WriteString("- Instance export covers a whitelisted set of properties and value types; others are omitted.\n")

	return dir.WriteFile(ReadmeName, []byte(b.String()))
}
