package ui

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"duck-explore/internal/domain"
	"duck-explore/internal/jobdisplay"
	"duck-explore/internal/service/query"
)

func (h *Handler) ExplorePage(w http.ResponseWriter, r *http.Request) {
	v := viewFromRequest(r)
	locale := jobdisplay.RequestLocale(r)
	page := h.explore.Load(r.Context(), v, locale)
	renderHTML(w, http.StatusOK, explorePage(page, exploreContext{
		View:      v,
		Locale:    locale,
		SQL:       r.URL.Query().Get("sql"),
		CSRFField: csrfField(r),
	}))
}

// ExploreStatus renders the job status row. The live row polls it. Once the
// job has left the live state the results card is patched in alongside it.
func (h *Handler) ExploreStatus(w http.ResponseWriter, r *http.Request) {
	v := viewFromRequest(r)
	locale := jobdisplay.RequestLocale(r)
	page := h.explore.LoadStatus(r.Context(), v, locale)
	renderHTML(w, http.StatusOK, statusFragment(page, statusPath(v, locale)))
}

func (h *Handler) ExploreSubmit(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRenderBadRequest(w, r) {
		return
	}

	queryType := domain.QueryTypePreview
	if formString(r.Form, "mode") == "run" {
		queryType = domain.QueryTypeRun
	}
	version := formString(r.Form, "version")
	sqlText := formString(r.Form, "sql")

	job, err := h.jobs.SubmitAsync(r.Context(), query.SubmitRequest{
		SQL:            sqlText,
		QueryType:      queryType,
		DatasetVersion: version,
	})
	if err != nil {
		var validation *domain.ValidationError
		if errors.As(err, &validation) {
			renderHTML(w, http.StatusBadRequest, errorPage("Query Rejected", validation.Error()))
			return
		}
		h.logger.Error("submit query job", "error", err)
		renderHTML(w, http.StatusInternalServerError, errorPage("Submit Failed", "The query job could not be submitted."))
		return
	}

	http.Redirect(w, r, exploreJobPath(job), http.StatusSeeOther)
}

func (h *Handler) JobDetail(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if projectID := chi.URLParam(r, "projectID"); projectID != "" && projectID != h.explore.ProjectID() {
		renderHTML(w, http.StatusNotFound, errorPage("Not Found", "Unknown project "+projectID+"."))
		return
	}

	job, err := h.jobs.GetAsyncJob(r.Context(), jobID)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			renderHTML(w, http.StatusNotFound, errorPage("Not Found", notFound.Error()))
			return
		}
		h.logger.Error("load query job", "job_id", jobID, "error", err)
		renderHTML(w, http.StatusInternalServerError, errorPage("Job Unavailable", "The job could not be loaded."))
		return
	}

	renderHTML(w, http.StatusOK, jobDetailPage(job, h.explore.Localizer(jobdisplay.RequestLocale(r))))
}

// exploreRedirect sends the bare /ui path to the exploration view.
func exploreRedirect(w http.ResponseWriter, r *http.Request) {
	target := "/ui/explore"
	if raw := r.URL.RawQuery; raw != "" {
		if _, err := url.ParseQuery(raw); err == nil {
			target += "?" + raw
		}
	}
	http.Redirect(w, r, target, http.StatusFound)
}
