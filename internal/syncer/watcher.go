package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alexjbarnes/studio-sync/internal/manifest"
	"github.com/alexjbarnes/studio-sync/internal/outdir"
	"github.com/fsnotify/fsnotify"
)

const (
	// watchTick is how often pending events are checked.
	watchTick = 200 * time.Millisecond

	// watchQuiet is how long a path must be idle before it is checked,
	// so a burst of writes is reported once.
	watchQuiet = 300 * time.Millisecond
)

// LocalEdit is a tracked file whose content no longer matches the
// manifest.
type LocalEdit struct {
	Type    manifest.Kind
	RelPath string
	State   FileState
}

// Watcher reports local edits to tracked files under one output
// directory as they happen.
type Watcher struct {
	dir     *outdir.Dir
	logger  *slog.Logger
	lock    sync.Locker
	onEdit  func(LocalEdit)
	watcher *fsnotify.Watcher

	// reported holds the last state reported per path so repeated saves
	// of the same content are reported once.
	reported map[string]FileState
}

// NewWatcher creates a Watcher for dir. lock, when non-nil, is held while
// a change is checked so an export in progress finishes first. onEdit may
// be nil.
func (e *Engine) NewWatcher(dir *outdir.Dir, lock sync.Locker, onEdit func(LocalEdit)) *Watcher {
	return &Watcher{
		dir:      dir,
		logger:   e.logger,
		lock:     lock,
		onEdit:   onEdit,
		reported: map[string]FileState{},
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	w.watcher = watcher
	defer watcher.Close()

	if err := w.addRecursive(w.dir.Root()); err != nil {
		return fmt.Errorf("watching output dir: %w", err)
	}

	w.logger.Info("watching for local edits", slog.String("dir", w.dir.Root()))

	pending := make(map[string]time.Time)

	ticker := time.NewTicker(watchTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed unexpectedly")
			}

			if w.shouldIgnore(event.Name) {
				continue
			}

			if event.Has(fsnotify.Create) {
				info, err := os.Lstat(event.Name)
				if err == nil && info.IsDir() && info.Mode()&os.ModeSymlink == 0 {
					_ = w.addRecursive(event.Name)
					continue
				}
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending[event.Name] = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed unexpectedly")
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			now := time.Now()
			for path, t := range pending {
				if now.Sub(t) < watchQuiet {
					continue
				}

				delete(pending, path)
				w.check(path)
			}
		}
	}
}

// check compares one changed path with the manifest.
func (w *Watcher) check(abs string) {
	rel, err := w.dir.Rel(abs)
	if err != nil {
		return
	}

	if w.lock != nil {
		w.lock.Lock()
		defer w.lock.Unlock()
	}

	edit, ok := w.evaluate(rel)
	if !ok {
		return
	}

	if w.reported[rel] == edit.State {
		return
	}

	w.reported[rel] = edit.State

	if edit.State == StateClean {
		return
	}

	w.logger.Warn("local edit detected",
		slog.String("type", string(edit.Type)),
		slog.String("rel_path", rel),
		slog.String("state", string(edit.State)),
	)

	if w.onEdit != nil {
		w.onEdit(edit)
	}
}

// evaluate returns the state of rel if the manifest tracks it.
func (w *Watcher) evaluate(rel string) (LocalEdit, bool) {
	m, err := manifest.Load(w.dir.Root())
	if err != nil {
		return LocalEdit{}, false
	}

	for _, kind := range []manifest.Kind{manifest.Script, manifest.Instance} {
		hash, ok := m.Recorded(kind, rel)
		if !ok {
			continue
		}

		entry := checkTracked(w.dir, trackedEntry{kind: kind, rel: rel, hash: hash})

		return LocalEdit{Type: kind, RelPath: rel, State: entry.State}, true
	}

	return LocalEdit{}, false
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != w.dir.Root() && w.shouldIgnore(path) {
			return filepath.SkipDir
		}

		if d.Type()&os.ModeSymlink != 0 {
			return filepath.SkipDir
		}

		return w.watcher.Add(path)
	})
}

// shouldIgnore skips files the sync engine itself maintains, in-flight
// atomic writes, hidden files and editor swap files.
func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)

	switch {
	case base == manifest.FileName, base == ReadmeName, base == SkipLogName:
		return true
	case strings.HasPrefix(base, outdir.TempPrefix), strings.HasPrefix(base, "."):
		return true
	case strings.HasSuffix(base, "~"), strings.HasSuffix(base, ".swp"):
		return true
	default:
		return false
	}
}
