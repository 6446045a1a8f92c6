package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-explore/internal/config"
	"duck-explore/internal/db"
	"duck-explore/internal/engine"
)

func testConfig() *config.Config {
	return &config.Config{
		ListenAddr:          "127.0.0.1:0",
		Env:                 "development",
		Locale:              "en",
		ProjectID:           "proj",
		RateLimitRPS:        1000,
		RateLimitBurst:      1000,
		CORSAllowedOrigins:  []string{"*"},
		QueryMaxConcurrency: 2,
		QueryMaxAttempts:    2,
		RunRowLimit:         1000,
		PreviewRowLimit:     10,
		SampleRows:          5,
		RetentionSchedule:   "@hourly",
		JobTTL:              time.Hour,
		SampleTTL:           time.Hour,
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	writeDB, readDB := db.OpenTestSQLite(t)

	duck, err := engine.OpenDuckDB(t.Context(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = duck.Close() })

	a, err := New(t.Context(), Deps{
		Cfg:     testConfig(),
		DuckDB:  duck,
		WriteDB: writeDB,
		ReadDB:  readDB,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Services.Query.Close(ctx)
	})
	return a
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestNew_RequiresDeps(t *testing.T) {
	t.Parallel()

	_, err := New(t.Context(), Deps{})
	require.Error(t, err)

	_, err = New(t.Context(), Deps{Cfg: testConfig()})
	require.Error(t, err)
}

func TestRouter_QueryJobEndToEnd(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	h := a.Handler

	rr := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = do(t, h, http.MethodPost, "/v1/query-jobs", `{"sql":"SELECT 42 AS answer","query_type":"UI_RUN","dataset_version":"v1"}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var submitted struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.ID)

	require.Eventually(t, func() bool {
		rr := do(t, h, http.MethodGet, "/v1/query-jobs/"+submitted.ID, "")
		var job struct {
			Status string `json:"status"`
		}
		if json.Unmarshal(rr.Body.Bytes(), &job) != nil {
			return false
		}
		return job.Status == "COMPLETED"
	}, 10*time.Second, 20*time.Millisecond)

	rr = do(t, h, http.MethodGet, "/v1/explore/status?version=v1&run=true", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var status struct {
		Variant string `json:"variant"`
		Display struct {
			JobTypeLabel string `json:"job_type_label"`
			StatusLabel  string `json:"status_label"`
			StatusValue  string `json:"status_value"`
			TimerMode    string `json:"timer_mode"`
			Link         struct {
				JobID     string `json:"job_id"`
				ProjectID string `json:"project_id"`
			} `json:"link"`
		} `json:"display"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, "STATUS", status.Variant)
	assert.Equal(t, "Run", status.Display.JobTypeLabel)
	assert.Equal(t, "Rows", status.Display.StatusLabel)
	assert.Equal(t, "1", status.Display.StatusValue)
	assert.Equal(t, "STATIC", status.Display.TimerMode)
	assert.Equal(t, submitted.ID, status.Display.Link.JobID)
	assert.Equal(t, "proj", status.Display.Link.ProjectID)

	rr = do(t, h, http.MethodGet, "/ui/explore?job_id="+submitted.ID+"&run=true", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "answer")
	assert.Contains(t, rr.Body.String(), "42")

	rr = do(t, h, http.MethodGet, "/ui/projects/proj/jobs/"+submitted.ID, "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_PreviewStoresSample(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	h := a.Handler

	rr := do(t, h, http.MethodPost, "/v1/query-jobs", `{"sql":"SELECT * FROM range(20)","query_type":"UI_PREVIEW","dataset_version":"v2"}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var submitted struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &submitted))

	require.Eventually(t, func() bool {
		rr := do(t, h, http.MethodGet, "/v1/query-jobs/"+submitted.ID, "")
		return strings.Contains(rr.Body.String(), `"status":"COMPLETED"`)
	}, 10*time.Second, 20*time.Millisecond)

	// With the job gone the view falls back to the stored sample.
	rr = do(t, h, http.MethodDelete, "/v1/query-jobs/"+submitted.ID, "")
	require.Equal(t, http.StatusNoContent, rr.Code)

	// The sample is written right after the job completes.
	require.Eventually(t, func() bool {
		rr := do(t, h, http.MethodGet, "/v1/explore/status?version=v2&approximate=true", "")
		return rr.Code == http.StatusOK && strings.Contains(rr.Body.String(), `"variant":"SAMPLE_DATA"`)
	}, 10*time.Second, 20*time.Millisecond)
}

func TestRouter_RootRedirectsToExplore(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	rr := do(t, a.Handler, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/ui/explore", rr.Header().Get("Location"))
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
