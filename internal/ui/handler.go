// Package ui serves the server-rendered exploration pages.
package ui

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"duck-explore/internal/domain"
	"duck-explore/internal/jobdisplay"
	"duck-explore/internal/service/explore"
	"duck-explore/internal/service/query"

	gomponents "maragu.dev/gomponents"
)

// Explorer resolves what the exploration view shows. Implemented by explore.Service.
type Explorer interface {
	Load(ctx context.Context, v explore.View, locale string) explore.Page
	LoadStatus(ctx context.Context, v explore.View, locale string) explore.Page
	Localizer(locale string) *jobdisplay.Messages
	ProjectID() string
}

// QueryJobs is the part of query.QueryService the pages use.
type QueryJobs interface {
	SubmitAsync(ctx context.Context, req query.SubmitRequest) (*domain.QueryJob, error)
	GetAsyncJob(ctx context.Context, jobID string) (*domain.QueryJob, error)
}

type Handler struct {
	explore       Explorer
	jobs          QueryJobs
	logger        *slog.Logger
	secureCookies bool
}

func NewHandler(explorer Explorer, jobs QueryJobs, logger *slog.Logger, production bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		explore:       explorer,
		jobs:          jobs,
		logger:        logger,
		secureCookies: production,
	}
}

func renderHTML(w http.ResponseWriter, status int, node gomponents.Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = node.Render(w)
}

func viewFromRequest(r *http.Request) explore.View {
	q := r.URL.Query()
	v := explore.View{
		DatasetVersion: strings.TrimSpace(q.Get("version")),
		JobID:          strings.TrimSpace(q.Get("job_id")),
		IsRun:          formBool(q, "run"),
	}
	// A preview view shows sampled rows unless told otherwise.
	v.Approximate = !v.IsRun
	if q.Has("approximate") {
		v.Approximate = formBool(q, "approximate")
	}
	return v
}
