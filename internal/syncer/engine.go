// Package syncer reconciles snapshots exported by the authoring tool with
// the files under an output directory. Writes never replace a file whose
// content diverged from what was last exported there.
package syncer

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/alexjbarnes/studio-sync/internal/outdir"
	"github.com/alexjbarnes/studio-sync/internal/tree"
)

// DefaultMaxReadBytes is the read ceiling used when none is configured.
const DefaultMaxReadBytes = 900 * 1024

// Options configures an Engine.
type Options struct {
	// OutputDir is the default output root. Relative folder names in
	// requests resolve against its parent.
	OutputDir    string
	Decimals     int
	MaxReadBytes int64
}

// Engine runs sync operations. It holds no per-directory state, so one
// Engine serves every output directory; callers serialize writes to the
// same directory.
type Engine struct {
	opts   Options
	canon  *tree.Canonicalizer
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Engine.
func New(opts Options, logger *slog.Logger) *Engine {
	if opts.MaxReadBytes <= 0 {
		opts.MaxReadBytes = DefaultMaxReadBytes
	}

	return &Engine{
		opts:   opts,
		canon:  tree.NewCanonicalizer(opts.Decimals),
		logger: logger,
		now:    time.Now,
	}
}

// Canonicalizer returns the tree canonicalizer at the configured
// precision.
func (e *Engine) Canonicalizer() *tree.Canonicalizer {
	return e.canon
}

// Open resolves and creates the output directory for a request. A
// non-blank folder overrides the configured default.
func (e *Engine) Open(folder string) (*outdir.Dir, error) {
	root := e.opts.OutputDir
	if strings.TrimSpace(folder) != "" {
		root = folder
		if !filepath.IsAbs(root) {
			root = filepath.Join(filepath.Dir(e.opts.OutputDir), root)
		}
	}

	dir, err := outdir.Open(root, e.opts.MaxReadBytes)
	if err != nil {
		return nil, fmt.Errorf("opening output directory: %w", err)
	}

	return dir, nil
}
