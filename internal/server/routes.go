package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rowanlight/dramatis/internal/intake"
	"github.com/rowanlight/dramatis/internal/runs"
	"github.com/rowanlight/dramatis/internal/svcctx"
)

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /runs", s.handleSubmitRun)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleRunStatus)
	mux.HandleFunc("POST /runs/{id}/cancel", s.handleCancelRun)
	mux.HandleFunc("POST /runs/cancel-all", s.handleCancelAll)
	mux.HandleFunc("GET /settings", s.handleListSettings)
	mux.HandleFunc("GET /settings/{key}", s.handleGetSetting)
	mux.HandleFunc("PUT /settings/{key}", s.handleSetSetting)
	mux.HandleFunc("DELETE /settings/{key}", s.handleDeleteSetting)
}

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	LiveRuns int    `json:"live_runs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		LiveRuns: s.registry.LiveCount(),
	})
}

// RunListResponse wraps the run list.
type RunListResponse struct {
	Runs []runs.Info `json:"runs"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	infos := s.registry.List()
	if infos == nil {
		infos = []runs.Info{}
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: infos})
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	info, err := s.registry.Status(r.PathValue("id"))
	if errors.Is(err, runs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// CancelResponse reports one cancellation request.
type CancelResponse struct {
	RunID     string `json:"run_id"`
	Cancelled bool   `json:"cancelled"`
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	live := s.registry.Cancel(id)
	if !live {
		// Distinguish unknown from already-terminal for the caller.
		if _, err := s.registry.Status(id); errors.Is(err, runs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
	}
	writeJSON(w, http.StatusOK, CancelResponse{RunID: id, Cancelled: live})
}

// CancelAllResponse reports a bulk cancellation.
type CancelAllResponse struct {
	Cancelled int `json:"cancelled"`
}

func (s *Server) handleCancelAll(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, CancelAllResponse{Cancelled: s.registry.CancelAll()})
}

// maxSubmissionBytes bounds inline submissions. Book-length text runs a few
// megabytes; anything near this limit is not a book.
const maxSubmissionBytes = 64 << 20

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	RunID  string `json:"run_id"`
	BookID string `json:"book_id"`
}

func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	launcher := svcctx.LauncherFrom(r.Context())
	if launcher == nil {
		writeError(w, http.StatusServiceUnavailable, "submission intake not available")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxSubmissionBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
		return
	}
	sub, err := intake.Decode(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runID, err := launcher.Launch(sub)
	if errors.Is(err, runs.ErrAlreadyRegistered) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitResponse{RunID: runID, BookID: sub.BookID})
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
