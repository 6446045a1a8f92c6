// Package api provides the JSON HTTP API for query jobs and the job status row.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"duck-explore/internal/domain"
	"duck-explore/internal/jobdisplay"
	"duck-explore/internal/service/explore"
	"duck-explore/internal/service/query"
)

// QueryJobs is the job surface of query.QueryService.
type QueryJobs interface {
	SubmitAsync(ctx context.Context, req query.SubmitRequest) (*domain.QueryJob, error)
	GetAsyncJob(ctx context.Context, jobID string) (*domain.QueryJob, error)
	ListJobs(ctx context.Context, limit int) ([]domain.QueryJob, error)
	CancelAsyncJob(ctx context.Context, jobID string) error
	DeleteAsyncJob(ctx context.Context, jobID string) error
}

// StatusRows derives job status rows. Implemented by explore.Service.
type StatusRows interface {
	StatusRow(ctx context.Context, v explore.View, locale string) jobdisplay.Result
}

// Handler serves the /v1 API.
type Handler struct {
	jobs   QueryJobs
	status StatusRows
	logger *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(jobs QueryJobs, status StatusRows, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{jobs: jobs, status: status, logger: logger}
}

// SubmitQueryJob handles POST /v1/query-jobs.
func (h *Handler) SubmitQueryJob(w http.ResponseWriter, r *http.Request) {
	var req submitQueryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := h.jobs.SubmitAsync(r.Context(), query.SubmitRequest{
		SQL:            req.SQL,
		QueryType:      domain.QueryType(req.QueryType),
		DatasetVersion: req.DatasetVersion,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/query-jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, queryJobToAPI(job))
}

// ListQueryJobs handles GET /v1/query-jobs.
func (h *Handler) ListQueryJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	jobs, err := h.jobs.ListJobs(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	resp := QueryJobList{Jobs: make([]QueryJobResponse, 0, len(jobs))}
	for i := range jobs {
		resp.Jobs = append(resp.Jobs, queryJobToAPI(&jobs[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetQueryJob handles GET /v1/query-jobs/{jobID}.
func (h *Handler) GetQueryJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetAsyncJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, queryJobToAPI(job))
}

// CancelQueryJob handles POST /v1/query-jobs/{jobID}/cancel.
func (h *Handler) CancelQueryJob(w http.ResponseWriter, r *http.Request) {
	if err := h.jobs.CancelAsyncJob(r.Context(), chi.URLParam(r, "jobID")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteQueryJob handles DELETE /v1/query-jobs/{jobID}.
func (h *Handler) DeleteQueryJob(w http.ResponseWriter, r *http.Request) {
	if err := h.jobs.DeleteAsyncJob(r.Context(), chi.URLParam(r, "jobID")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExploreStatus handles GET /v1/explore/status and returns the derived job
// status row for the given view.
func (h *Handler) ExploreStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view := explore.View{
		DatasetVersion: q.Get("version"),
		JobID:          q.Get("job_id"),
		IsRun:          queryBool(r, "run"),
		Approximate:    queryBool(r, "approximate"),
	}
	writeJSON(w, http.StatusOK, h.status.StatusRow(r.Context(), view, jobdisplay.RequestLocale(r)))
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
