package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-explore/internal/domain"
	"duck-explore/internal/jobdisplay"
	"duck-explore/internal/service/explore"
	"duck-explore/internal/service/query"
)

type fakeJobs struct {
	jobs      map[string]*domain.QueryJob
	submitted []query.SubmitRequest
	canceled  []string
	listLimit int
	err       error
}

func (f *fakeJobs) SubmitAsync(_ context.Context, req query.SubmitRequest) (*domain.QueryJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	if strings.TrimSpace(req.SQL) == "" {
		return nil, domain.ErrValidation("sql query is required")
	}
	f.submitted = append(f.submitted, req)
	job := &domain.QueryJob{ID: "job-new", SQLText: req.SQL, QueryType: req.QueryType, Status: domain.JobStatusEnqueued}
	return job, nil
}

func (f *fakeJobs) GetAsyncJob(_ context.Context, id string) (*domain.QueryJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound("query job %q not found", id)
	}
	return job, nil
}

func (f *fakeJobs) ListJobs(_ context.Context, limit int) ([]domain.QueryJob, error) {
	f.listLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.QueryJob, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (f *fakeJobs) CancelAsyncJob(ctx context.Context, id string) error {
	if _, err := f.GetAsyncJob(ctx, id); err != nil {
		return err
	}
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakeJobs) DeleteAsyncJob(ctx context.Context, id string) error {
	if _, err := f.GetAsyncJob(ctx, id); err != nil {
		return err
	}
	delete(f.jobs, id)
	return nil
}

type fakeStatus struct {
	view   explore.View
	locale string
}

func (f *fakeStatus) StatusRow(_ context.Context, v explore.View, locale string) jobdisplay.Result {
	f.view = v
	f.locale = locale
	return jobdisplay.Result{Variant: jobdisplay.VariantStatus, Display: &jobdisplay.DisplayState{
		StatusLabel: "Rows",
		StatusValue: "1,234",
		TimerMode:   jobdisplay.TimerStatic,
		Duration:    "0:00:03",
	}}
}

func newTestRouter(jobs *fakeJobs, status *fakeStatus) http.Handler {
	h := NewHandler(jobs, status, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	MountRoutes(r, h, []string{"https://explore.example"})
	return r
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sampleJob() *domain.QueryJob {
	start := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Second)
	n := int64(2)
	reason := "connection reset"
	return &domain.QueryJob{
		ID:            "job-1",
		SQLText:       "SELECT 1",
		QueryType:     domain.QueryTypeRun,
		Status:        domain.JobStatusCompleted,
		Columns:       []string{"id"},
		Rows:          [][]interface{}{{1}, {2}},
		OutputRecords: &n,
		TotalAttempts: 2,
		AttemptDetails: []domain.AttemptDetail{
			{Attempt: 1, Status: domain.JobStatusFailed, Reason: &reason, StartedAt: start},
			{Attempt: 2, Status: domain.JobStatusCompleted, StartedAt: start, EndedAt: &end},
		},
		CreatedAt:   start,
		StartedAt:   &start,
		CompletedAt: &end,
	}
}

func TestSubmitQueryJob(t *testing.T) {
	t.Parallel()
	jobs := &fakeJobs{}
	r := newTestRouter(jobs, &fakeStatus{})

	rec := doRequest(t, r, http.MethodPost, "/v1/query-jobs", `{"sql":"SELECT 1","query_type":"UI_PREVIEW","dataset_version":"v3"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/v1/query-jobs/job-new", rec.Header().Get("Location"))

	var resp QueryJobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "job-new", resp.ID)
	assert.Equal(t, "ENQUEUED", resp.Status)
	require.Len(t, jobs.submitted, 1)
	assert.Equal(t, query.SubmitRequest{SQL: "SELECT 1", QueryType: domain.QueryTypePreview, DatasetVersion: "v3"}, jobs.submitted[0])
}

func TestSubmitQueryJob_BadRequests(t *testing.T) {
	t.Parallel()
	r := newTestRouter(&fakeJobs{}, &fakeStatus{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"sql":`},
		{"unknown field", `{"sql":"SELECT 1","principal":"bob"}`},
		{"empty sql", `{"sql":"  "}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, r, http.MethodPost, "/v1/query-jobs", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp errorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestGetQueryJob(t *testing.T) {
	t.Parallel()
	jobs := &fakeJobs{jobs: map[string]*domain.QueryJob{"job-1": sampleJob()}}
	r := newTestRouter(jobs, &fakeStatus{})

	rec := doRequest(t, r, http.MethodGet, "/v1/query-jobs/job-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp QueryJobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "COMPLETED", resp.Status)
	assert.Equal(t, 2, resp.AttemptCount)
	require.Len(t, resp.Attempts, 2)
	require.NotNil(t, resp.Attempts[0].Reason)
	assert.Equal(t, "connection reset", *resp.Attempts[0].Reason)
	require.NotNil(t, resp.OutputRecords)
	assert.Equal(t, int64(2), *resp.OutputRecords)

	rec = doRequest(t, r, http.MethodGet, "/v1/query-jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListQueryJobs(t *testing.T) {
	t.Parallel()
	jobs := &fakeJobs{jobs: map[string]*domain.QueryJob{"job-1": sampleJob()}}
	r := newTestRouter(jobs, &fakeStatus{})

	rec := doRequest(t, r, http.MethodGet, "/v1/query-jobs?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, jobs.listLimit)

	var resp QueryJobList
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Jobs, 1)

	rec = doRequest(t, r, http.MethodGet, "/v1/query-jobs?limit=many", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelAndDeleteQueryJob(t *testing.T) {
	t.Parallel()
	jobs := &fakeJobs{jobs: map[string]*domain.QueryJob{"job-1": sampleJob()}}
	r := newTestRouter(jobs, &fakeStatus{})

	rec := doRequest(t, r, http.MethodPost, "/v1/query-jobs/job-1/cancel", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"job-1"}, jobs.canceled)

	rec = doRequest(t, r, http.MethodDelete, "/v1/query-jobs/job-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, r, http.MethodDelete, "/v1/query-jobs/job-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInternalErrorsAreHidden(t *testing.T) {
	t.Parallel()
	jobs := &fakeJobs{err: errors.New("sqlite: disk I/O error at /var/lib/meta.sqlite")}
	r := newTestRouter(jobs, &fakeStatus{})

	rec := doRequest(t, r, http.MethodGet, "/v1/query-jobs", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "meta.sqlite")
}

func TestExploreStatus(t *testing.T) {
	t.Parallel()
	status := &fakeStatus{}
	r := newTestRouter(&fakeJobs{}, status)

	req := httptest.NewRequest(http.MethodGet, "/v1/explore/status?version=v1&job_id=job-1&run=true&approximate=1", nil)
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, explore.View{DatasetVersion: "v1", JobID: "job-1", IsRun: true, Approximate: true}, status.view)
	assert.Equal(t, "de", status.locale)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "STATUS", body["variant"])
	display, ok := body["display"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "1,234", display["status_value"])
	assert.Equal(t, "STATIC", display["timer_mode"])

	rec = doRequest(t, r, http.MethodGet, "/v1/explore/status?locale=en", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "en", status.locale)
	assert.Equal(t, explore.View{}, status.view)
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	r := newTestRouter(&fakeJobs{}, &fakeStatus{})

	req := httptest.NewRequest(http.MethodOptions, "/v1/query-jobs", nil)
	req.Header.Set("Origin", "https://explore.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "https://explore.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	rec := doRequest(t, newTestRouter(&fakeJobs{}, &fakeStatus{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHTTPStatusFromDomainError(t *testing.T) {
	t.Parallel()
	assert.Equal(t, http.StatusNotFound, httpStatusFromDomainError(domain.ErrNotFound("x")))
	assert.Equal(t, http.StatusBadRequest, httpStatusFromDomainError(domain.ErrValidation("x")))
	assert.Equal(t, http.StatusConflict, httpStatusFromDomainError(domain.ErrConflict("x")))
	assert.Equal(t, http.StatusNotImplemented, httpStatusFromDomainError(domain.ErrNotImplemented("x")))
	assert.Equal(t, http.StatusInternalServerError, httpStatusFromDomainError(errors.New("x")))
}
