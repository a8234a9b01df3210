// Package server provides the HTTP JSON transport for studio-sync.
package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/alexjbarnes/studio-sync/internal/errors"
	"github.com/alexjbarnes/studio-sync/internal/outdir"
	"github.com/alexjbarnes/studio-sync/internal/state"
	"github.com/alexjbarnes/studio-sync/internal/syncer"
)

// maxBodyBytes bounds request bodies. Full place exports are large.
const maxBodyBytes = 64 << 20

// Config holds dependencies for building the HTTP handler.
type Config struct {
	Engine *syncer.Engine
	Logger *slog.Logger

	// History is optional. Without it nothing is recorded and /history
	// returns an empty list.
	History History

	// Locks is shared with anything else that touches output directories,
	// such as the watcher. A fresh set is created when nil.
	Locks *Locks

	// MCPHandler is mounted at /mcp when set.
	MCPHandler http.Handler
}

// Server serves the sync endpoints.
type Server struct {
	engine  *syncer.Engine
	logger  *slog.Logger
	history History
	locks   *Locks
	now     func() time.Time
}

// New creates a Server from cfg.
func New(cfg Config) *Server {
	locks := cfg.Locks
	if locks == nil {
		locks = NewLocks()
	}

	return &Server{
		engine:  cfg.Engine,
		logger:  cfg.Logger,
		history: cfg.History,
		locks:   locks,
		now:     time.Now,
	}
}

// NewMux builds the HTTP mux with the upload, diff, index, get, status
// and history endpoints.
func NewMux(cfg Config) *http.ServeMux {
	s := New(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /upload_instances", s.handleUploadInstances)
	mux.HandleFunc("POST /skipped", s.handleSkipped)
	mux.HandleFunc("POST /diff", s.handleDiff)
	mux.HandleFunc("POST /diff_instances", s.handleDiffInstances)
	mux.HandleFunc("POST /local_index", s.handleLocalIndex)
	mux.HandleFunc("POST /local_index_instances", s.handleLocalIndexInstances)
	mux.HandleFunc("POST /local_get", s.handleLocalGet)
	mux.HandleFunc("POST /local_get_instances", s.handleLocalGetInstances)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /history", s.handleHistory)

	if cfg.MCPHandler != nil {
		mux.Handle("/mcp", cfg.MCPHandler)
	}

	return mux
}

// readBody reads the request body up to maxBodyBytes.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperrors.ErrOversized
		}

		return nil, err
	}

	return data, nil
}

// withLock runs fn while holding the write lock for dir.
func (s *Server) withLock(dir *outdir.Dir, fn func()) {
	mu := s.locks.For(dir.Root())
	mu.Lock()
	defer mu.Unlock()

	fn()
}

func (s *Server) record(kind string, dir *outdir.Dir, wrote, skipped int) {
	if s.history == nil {
		return
	}

	op := state.Operation{
		Kind:    kind,
		Output:  dir.Root(),
		Wrote:   wrote,
		Skipped: skipped,
		At:      s.now(),
	}

	if err := s.history.Record(op); err != nil {
		s.logger.Warn("recording operation",
			slog.String("kind", kind),
			slog.String("output", dir.Root()),
			slog.String("error", err.Error()),
		)
	}
}

// queryLimit parses the limit query parameter. Missing or invalid values
// fall back to the history default.
func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return state.DefaultHistoryLimit
	}

	return n
}
