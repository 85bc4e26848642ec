// Package server exposes the extraction pipeline over HTTP: job
// submission and status, results, provider health and Prometheus
// metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/freightflow/extractd/internal/common"
	"github.com/freightflow/extractd/internal/docstore"
	"github.com/freightflow/extractd/internal/export"
	"github.com/freightflow/extractd/internal/health"
	"github.com/freightflow/extractd/internal/metrics"
	"github.com/freightflow/extractd/internal/orchestrator"
	"github.com/freightflow/extractd/internal/provider"
)

// maxUploadBytes bounds direct document uploads.
const maxUploadBytes = 32 << 20

type Server struct {
	orch    *orchestrator.Orchestrator
	docs    docstore.Store
	tracker *health.Tracker
	reg     *provider.Registry
	mets    *metrics.Metrics
	log     *slog.Logger
	router  *mux.Router
}

func New(orch *orchestrator.Orchestrator, docs docstore.Store, tracker *health.Tracker, reg *provider.Registry, mets *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		orch:    orch,
		docs:    docs,
		tracker: tracker,
		reg:     reg,
		mets:    mets,
		log:     logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/jobs", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{id}", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}", s.handleCancel).Methods(http.MethodDelete)
	r.HandleFunc("/jobs/{id}/result", s.handleResult).Methods(http.MethodGet)
	r.HandleFunc("/providers/health", s.handleProviderHealth).Methods(http.MethodGet)
	r.HandleFunc("/reviews/export", s.handleReviewExport).Methods(http.MethodGet)
	if s.mets != nil {
		r.Handle("/metrics", s.mets.Handler()).Methods(http.MethodGet)
	}
	s.router = r
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitResponse struct {
	JobID       string `json:"job_id"`
	DocumentRef string `json:"document_ref"`
}

// handleSubmit accepts the document body directly. The schema defaults
// to transport_order; ?schema= overrides it, ?deadline=RFC3339 caps the
// job's total processing time.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		s.fail(w, http.StatusBadRequest, "read body", err)
		return
	}
	if len(data) == 0 {
		s.fail(w, http.StatusBadRequest, "empty document", common.ErrInvalidInput)
		return
	}
	if len(data) > maxUploadBytes {
		s.fail(w, http.StatusRequestEntityTooLarge, "document too large", common.ErrInvalidInput)
		return
	}

	var deadline time.Time
	if raw := r.URL.Query().Get("deadline"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.fail(w, http.StatusBadRequest, "parse deadline", err)
			return
		}
		deadline = parsed
	}

	mimeHint := r.Header.Get("Content-Type")
	name := r.URL.Query().Get("filename")
	ref, err := s.docs.Put(r.Context(), name, data, mimeHint)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "store document", err)
		return
	}

	jobID, err := s.orch.Submit(r.Context(), ref, mimeHint, r.URL.Query().Get("schema"), deadline)
	if err != nil {
		s.fail(w, statusFor(err), "submit job", err)
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{JobID: jobID.String(), DocumentRef: ref})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.orch.JobStatus(r.Context(), id)
	if err != nil {
		s.fail(w, statusFor(err), "job status", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	if err := s.orch.Cancel(r.Context(), id); err != nil {
		s.fail(w, statusFor(err), "cancel job", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id.String(), "status": "cancelling"})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	rep, err := s.orch.Result(r.Context(), id)
	if err != nil {
		s.fail(w, statusFor(err), "job result", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type providerHealthResponse struct {
	Provider string                   `json:"provider"`
	Health   health.ProviderHealth    `json:"health"`
	Metrics  provider.MetricsSnapshot `json:"metrics"`
	Score    float64                  `json:"score"`
}

func (s *Server) handleProviderHealth(w http.ResponseWriter, _ *http.Request) {
	states := make(map[string]health.ProviderHealth)
	for _, h := range s.tracker.Snapshot() {
		states[h.Provider] = h
	}

	var out []providerHealthResponse
	for _, name := range s.reg.Ranked() {
		snap, _ := s.reg.Metrics(name)
		out = append(out, providerHealthResponse{
			Provider: name,
			Health:   states[name],
			Metrics:  snap,
			Score:    s.reg.Score(name),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleReviewExport streams the manual-review queue as an XLSX
// workbook. ?since=RFC3339 narrows the window.
func (s *Server) handleReviewExport(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.fail(w, http.StatusBadRequest, "parse since", err)
			return
		}
		since = parsed
	}

	reports, err := s.orch.ReviewQueue(r.Context(), since)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "list review queue", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="review-queue.xlsx"`)
	if err := export.WriteWorkbook(reports, w); err != nil {
		s.log.Error("server.export_failed", "error", err)
	}
}

func (s *Server) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, http.StatusBadRequest, "parse job id", err)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) fail(w http.ResponseWriter, status int, msg string, err error) {
	s.log.Warn("server.request_failed", "status", status, "msg", msg, "error", err)
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, common.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server.listen", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
