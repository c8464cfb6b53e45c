// Package server exposes the run trigger and the inspection operations as a
// JSON API, next to the /health and /metrics monitoring endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/deusflow/shorts-hunter/internal/app"
	"github.com/deusflow/shorts-hunter/internal/metrics"
	"github.com/deusflow/shorts-hunter/internal/ranker"
	"github.com/deusflow/shorts-hunter/internal/storage"
)

type Server struct {
	svc     *app.Service
	metrics *metrics.Metrics
	log     *slog.Logger
}

func New(svc *app.Service, m *metrics.Metrics, log *slog.Logger) *Server {
	if m == nil {
		m = metrics.Global
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{svc: svc, metrics: m, log: log}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

// ListenAndServe serves addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/run", s.handleRun)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("POST /api/runs/{id}/rerank", s.handleRerank)
	mux.HandleFunc("GET /api/candidates", s.handleListCandidates)
	mux.HandleFunc("GET /api/sources", s.handleListSources)
	mux.HandleFunc("POST /api/sources", s.handleCreateSource)
	mux.HandleFunc("PATCH /api/sources/{id}", s.handleUpdateSource)
	mux.HandleFunc("DELETE /api/sources/{id}", s.handleDeleteSource)
	mux.HandleFunc("GET /api/presets", s.handleListPresets)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PATCH /api/settings", s.handleUpdateSettings)
	mux.HandleFunc("PUT /api/items/{id}/judgment", s.handleSetJudgment)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
}

type settingsResponse struct {
	ActivePresetID string          `json:"activePresetId"`
	ActivePreset   *storage.Preset `json:"activePreset"`
	AIConfigured   bool            `json:"aiConfigured"`
}

type settingsRequest struct {
	ActivePresetID *string `json:"activePresetId"`
}

type judgmentRequest struct {
	Verdict string `json:"verdict"`
	Notes   string `json:"notes"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req app.RunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}

	run, err := s.svc.Trigger(r.Context(), req)
	if err != nil {
		var runErr *app.RunError
		if errors.As(err, &runErr) {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": runErr.Err.Error(), "runId": runErr.RunID})
			return
		}
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.svc.ListRuns(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleRerank(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Rerank(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("runId")
	if runID == "" {
		runID = app.LatestRun
	}
	id, views, err := s.svc.ListCandidates(r.Context(), runID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if views == nil {
		views = []storage.CandidateView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runId": id, "candidates": views})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.svc.ListSources(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if sources == nil {
		sources = []storage.Source{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var src storage.Source
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	src.ID = ""
	if err := s.svc.CreateSource(r.Context(), &src); err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"source": src})
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	var patch storage.SourcePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	src, err := s.svc.UpdateSource(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": src})
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteSource(r.Context(), r.PathValue("id")); err != nil {
		s.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := s.svc.ListPresets(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if presets == nil {
		presets = []storage.Preset{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"presets": presets})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.ActivePreset(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.settings(p))
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.ActivePresetID == nil {
		writeError(w, http.StatusBadRequest, "activePresetId is required")
		return
	}
	p, err := s.svc.SetActivePreset(r.Context(), *req.ActivePresetID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.settings(p))
}

func (s *Server) settings(p *storage.Preset) settingsResponse {
	resp := settingsResponse{ActivePreset: p, AIConfigured: s.svc.AIConfigured()}
	if p != nil {
		resp.ActivePresetID = p.ID
	}
	return resp
}

func (s *Server) handleSetJudgment(w http.ResponseWriter, r *http.Request) {
	var req judgmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	j, err := s.svc.SetJudgment(r.Context(), storage.Judgment{ItemID: r.PathValue("id"), Verdict: req.Verdict, Notes: req.Notes})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"judgment": j})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.metrics.GetStats()

	status := "ok"
	code := http.StatusOK
	if healthy, _ := stats["is_healthy"].(bool); !healthy {
		status = "error"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.GetStats())
}

// writeErr maps domain errors onto status codes.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, storage.ErrInvalid), errors.Is(err, app.ErrInvalidRequest):
		code = http.StatusBadRequest
	case errors.Is(err, storage.ErrInUse), errors.Is(err, storage.ErrRunFinalized):
		code = http.StatusConflict
	case errors.Is(err, ranker.ErrNotConfigured), errors.Is(err, ranker.ErrBudgetExceeded):
		code = http.StatusServiceUnavailable
	case errors.Is(err, ranker.ErrNoCandidates):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, ranker.ErrResponseFormat):
		code = http.StatusBadGateway
	}
	if code == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	writeError(w, code, fmt.Sprint(err))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
