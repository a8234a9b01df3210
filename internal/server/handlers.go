package server

import (
	"net/http"

	"github.com/alexjbarnes/studio-sync/internal/outdir"
	"github.com/alexjbarnes/studio-sync/internal/state"
	"github.com/alexjbarnes/studio-sync/internal/syncer"
)

type uploadResponse struct {
	OK bool `json:"ok"`
	*syncer.UploadResult
}

type skippedResponse struct {
	OK    bool   `json:"ok"`
	Wrote int    `json:"wrote"`
	Log   string `json:"log"`
}

type diffResponse struct {
	OK bool `json:"ok"`
	*syncer.DiffResult
}

type indexResponse struct {
	OK bool `json:"ok"`
	*syncer.IndexResult
}

type scriptFileResponse struct {
	OK bool `json:"ok"`
	*syncer.ScriptFile
}

type instanceFileResponse struct {
	OK bool `json:"ok"`
	*syncer.InstanceFile
}

type statusResponse struct {
	OK bool `json:"ok"`
	*syncer.StatusResult
}

type historyResponse struct {
	OK         bool              `json:"ok"`
	Output     string            `json:"output"`
	Operations []state.Operation `json:"operations"`
}

// parse reads the body, decodes it with fn and opens the output folder
// named by folder. On failure the error response is already written.
func parse[T any](s *Server, w http.ResponseWriter, r *http.Request, fn func([]byte) (T, error), folder func(T) string) (T, *outdir.Dir, bool) {
	var zero T

	body, err := readBody(w, r)
	if err != nil {
		s.fail(w, r, err)
		return zero, nil, false
	}

	req, err := fn(body)
	if err != nil {
		s.fail(w, r, err)
		return zero, nil, false
	}

	dir, err := s.engine.Open(folder(req))
	if err != nil {
		s.fail(w, r, err)
		return zero, nil, false
	}

	return req, dir, true
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	p, dir, ok := parse(s, w, r, syncer.ParseScriptPayload, func(p syncer.ScriptPayload) string { return p.OutputFolder })
	if !ok {
		return
	}

	var (
		res *syncer.UploadResult
		err error
	)

	s.withLock(dir, func() { res, err = s.engine.UploadScripts(dir, p) })
	s.respondUpload(w, r, state.KindUpload, dir, res, err)
}

func (s *Server) handleUploadInstances(w http.ResponseWriter, r *http.Request) {
	p, dir, ok := parse(s, w, r, syncer.ParseInstancePayload, func(p syncer.InstancePayload) string { return p.OutputFolder })
	if !ok {
		return
	}

	var (
		res *syncer.UploadResult
		err error
	)

	s.withLock(dir, func() { res, err = s.engine.UploadInstances(dir, p) })
	s.respondUpload(w, r, state.KindUploadInstances, dir, res, err)
}

// respondUpload records the operation and writes the upload result. Files
// written before a manifest save failure are still recorded.
func (s *Server) respondUpload(w http.ResponseWriter, r *http.Request, kind string, dir *outdir.Dir, res *syncer.UploadResult, err error) {
	if res != nil {
		s.record(kind, dir, res.Wrote, res.Skipped)
	}

	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{OK: true, UploadResult: res})
}

func (s *Server) handleSkipped(w http.ResponseWriter, r *http.Request) {
	req, dir, ok := parse(s, w, r, syncer.ParseSkipLogRequest, func(p syncer.SkipLogRequest) string { return p.OutputFolder })
	if !ok {
		return
	}

	var (
		n   int
		err error
	)

	s.withLock(dir, func() { n, err = s.engine.AppendSkipLog(dir, req.Entries) })
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.record(state.KindSkipLog, dir, n, 0)
	writeJSON(w, http.StatusOK, skippedResponse{OK: true, Wrote: n, Log: syncer.SkipLogName})
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	p, dir, ok := parse(s, w, r, syncer.ParseScriptPayload, func(p syncer.ScriptPayload) string { return p.OutputFolder })
	if !ok {
		return
	}

	res, err := s.engine.DiffScripts(dir, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, diffResponse{OK: true, DiffResult: res})
}

func (s *Server) handleDiffInstances(w http.ResponseWriter, r *http.Request) {
	p, dir, ok := parse(s, w, r, syncer.ParseInstancePayload, func(p syncer.InstancePayload) string { return p.OutputFolder })
	if !ok {
		return
	}

	res, err := s.engine.DiffInstances(dir, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, diffResponse{OK: true, DiffResult: res})
}

func (s *Server) handleLocalIndex(w http.ResponseWriter, r *http.Request) {
	s.serveIndex(w, r, s.engine.LocalIndex)
}

func (s *Server) handleLocalIndexInstances(w http.ResponseWriter, r *http.Request) {
	s.serveIndex(w, r, s.engine.LocalIndexInstances)
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request, index func(*outdir.Dir, syncer.IndexRequest) (*syncer.IndexResult, error)) {
	req, dir, ok := parse(s, w, r, syncer.ParseIndexRequest, func(p syncer.IndexRequest) string { return p.OutputFolder })
	if !ok {
		return
	}

	res, err := index(dir, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, indexResponse{OK: true, IndexResult: res})
}

func (s *Server) handleLocalGet(w http.ResponseWriter, r *http.Request) {
	req, dir, ok := parse(s, w, r, syncer.ParseGetRequest, func(p syncer.GetRequest) string { return p.OutputFolder })
	if !ok {
		return
	}

	f, err := s.engine.GetScript(dir, req.RelPath)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, scriptFileResponse{OK: true, ScriptFile: f})
}

func (s *Server) handleLocalGetInstances(w http.ResponseWriter, r *http.Request) {
	req, dir, ok := parse(s, w, r, syncer.ParseGetRequest, func(p syncer.GetRequest) string { return p.OutputFolder })
	if !ok {
		return
	}

	f, err := s.engine.GetInstance(dir, req.RelPath)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, instanceFileResponse{OK: true, InstanceFile: f})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	dir, err := s.engine.Open(r.URL.Query().Get("output"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{OK: true, StatusResult: s.engine.Status(dir)})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	dir, err := s.engine.Open(r.URL.Query().Get("output"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := historyResponse{OK: true, Output: dir.Root(), Operations: []state.Operation{}}

	if s.history != nil {
		ops, err := s.history.History(dir.Root(), queryLimit(r))
		if err != nil {
			s.fail(w, r, err)
			return
		}

		if ops != nil {
			resp.Operations = ops
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
