package query

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-explore/internal/db"
	"duck-explore/internal/db/repository"
	"duck-explore/internal/domain"
	"duck-explore/internal/engine"
)

// recordingJobRepo records every status the worker reports.
type recordingJobRepo struct {
	domain.QueryJobRepository
	mu       sync.Mutex
	statuses []domain.JobStatus
}

func (r *recordingJobRepo) UpdateStatus(ctx context.Context, id string, status domain.JobStatus) error {
	r.mu.Lock()
	r.statuses = append(r.statuses, status)
	r.mu.Unlock()
	return r.QueryJobRepository.UpdateStatus(ctx, id, status)
}

func (r *recordingJobRepo) seen() []domain.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.JobStatus(nil), r.statuses...)
}

// flakyEngine fails the first failures queries with err before delegating.
type flakyEngine struct {
	domain.QueryEngine
	failures int32
	err      error
	calls    atomic.Int32
}

func (e *flakyEngine) Query(ctx context.Context, q string) (*sql.Rows, error) {
	if e.calls.Add(1) <= e.failures {
		return nil, e.err
	}
	return e.QueryEngine.Query(ctx, q)
}

// blockingEngine never returns a result until ctx is canceled.
type blockingEngine struct {
	started chan struct{}
	once    sync.Once
}

func (e *blockingEngine) Query(ctx context.Context, _ string) (*sql.Rows, error) {
	e.once.Do(func() { close(e.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func (e *blockingEngine) Explain(context.Context, string) error { return nil }

type testEnv struct {
	svc     *QueryService
	jobs    *recordingJobRepo
	samples *repository.DatasetSampleRepo
}

func newTestEnv(t *testing.T, eng domain.QueryEngine, opts Options) *testEnv {
	t.Helper()
	writeDB, _ := db.OpenTestSQLite(t)
	jobs := &recordingJobRepo{QueryJobRepository: repository.NewQueryJobRepo(writeDB)}
	samples := repository.NewDatasetSampleRepo(writeDB)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewQueryService(eng, jobs, samples, logger, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})
	return &testEnv{svc: svc, jobs: jobs, samples: samples}
}

func newDuckDB(t *testing.T) *engine.DuckDB {
	t.Helper()
	e, err := engine.OpenDuckDB(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func waitForTerminal(t *testing.T, svc *QueryService, jobID string) *domain.QueryJob {
	t.Helper()
	var job *domain.QueryJob
	require.Eventually(t, func() bool {
		current, err := svc.GetAsyncJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		job = current
		return current.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond, "job did not finish in time")
	return job
}

func TestQueryService_SubmitAsync_CompletesThroughLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, newDuckDB(t), Options{})

	job, err := env.svc.SubmitAsync(context.Background(), SubmitRequest{
		SQL:            "SELECT 1 AS id UNION ALL SELECT 2 AS id",
		QueryType:      domain.QueryTypeRun,
		DatasetVersion: "v1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusEnqueued, job.Status)

	done := waitForTerminal(t, env.svc, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)
	require.NotNil(t, done.OutputRecords)
	assert.Equal(t, int64(2), *done.OutputRecords)
	assert.False(t, done.OutputLimited)
	assert.Len(t, done.Rows, 2)
	assert.Equal(t, 1, done.AttemptCount())
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.CompletedAt)

	assert.Equal(t, []domain.JobStatus{
		domain.JobStatusQueued,
		domain.JobStatusMetadataRetrieval,
		domain.JobStatusPlanning,
		domain.JobStatusExecutionPlanning,
		domain.JobStatusEngineStart,
		domain.JobStatusRunning,
	}, env.jobs.seen())

	// Run queries do not leave samples behind.
	n, err := env.samples.CountRows(context.Background(), "v1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueryService_PreviewLimitsRowsAndStoresSample(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, newDuckDB(t), Options{PreviewRowLimit: 3, SampleRows: 2})

	job, err := env.svc.SubmitAsync(context.Background(), SubmitRequest{
		SQL:            "SELECT * FROM range(5)",
		QueryType:      domain.QueryTypePreview,
		DatasetVersion: "v7",
	})
	require.NoError(t, err)

	done := waitForTerminal(t, env.svc, job.ID)
	require.Equal(t, domain.JobStatusCompleted, done.Status)
	require.NotNil(t, done.OutputRecords)
	assert.Equal(t, int64(5), *done.OutputRecords)
	assert.True(t, done.OutputLimited)
	assert.Len(t, done.Rows, 3)

	sample, err := env.samples.Get(context.Background(), "v7")
	require.NoError(t, err)
	assert.Equal(t, job.ID, sample.JobID)
	assert.Len(t, sample.Rows, 2)
}

func TestQueryService_InvalidSQLFailsWithoutRetry(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, newDuckDB(t), Options{MaxAttempts: 3})

	job, err := env.svc.SubmitAsync(context.Background(), SubmitRequest{SQL: "SELECT * FROM missing_table"})
	require.NoError(t, err)

	done := waitForTerminal(t, env.svc, job.ID)
	assert.Equal(t, domain.JobStatusFailed, done.Status)
	assert.Equal(t, 1, done.AttemptCount())
	require.NotNil(t, done.ErrorMessage)
	assert.Contains(t, *done.ErrorMessage, "missing_table")
	assert.NotContains(t, env.jobs.seen(), domain.JobStatusRunning)
}

func TestQueryService_RetriesTransientErrors(t *testing.T) {
	t.Parallel()
	eng := &flakyEngine{QueryEngine: newDuckDB(t), failures: 1, err: errors.New("connection reset by peer")}
	env := newTestEnv(t, eng, Options{MaxAttempts: 3, RetryBackoff: time.Millisecond})

	job, err := env.svc.SubmitAsync(context.Background(), SubmitRequest{SQL: "SELECT 42", QueryType: domain.QueryTypeRun})
	require.NoError(t, err)

	done := waitForTerminal(t, env.svc, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)
	assert.Equal(t, 2, done.AttemptCount())
	require.Len(t, done.AttemptDetails, 2)
	assert.Equal(t, domain.JobStatusFailed, done.AttemptDetails[0].Status)
	assert.Equal(t, domain.JobStatusCompleted, done.AttemptDetails[1].Status)
}

func TestQueryService_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	eng := &flakyEngine{QueryEngine: newDuckDB(t), failures: 10, err: errors.New("i/o timeout")}
	env := newTestEnv(t, eng, Options{MaxAttempts: 2, RetryBackoff: time.Millisecond})

	job, err := env.svc.SubmitAsync(context.Background(), SubmitRequest{SQL: "SELECT 42"})
	require.NoError(t, err)

	done := waitForTerminal(t, env.svc, job.ID)
	assert.Equal(t, domain.JobStatusFailed, done.Status)
	assert.Equal(t, 2, done.AttemptCount())
	assert.Equal(t, int32(2), eng.calls.Load())
}

func TestQueryService_CancelRunningJob(t *testing.T) {
	t.Parallel()
	eng := &blockingEngine{started: make(chan struct{})}
	env := newTestEnv(t, eng, Options{})
	ctx := context.Background()

	job, err := env.svc.SubmitAsync(ctx, SubmitRequest{SQL: "SELECT 1"})
	require.NoError(t, err)

	select {
	case <-eng.started:
	case <-time.After(5 * time.Second):
		t.Fatal("query never started")
	}

	require.NoError(t, env.svc.CancelAsyncJob(ctx, job.ID))
	done := waitForTerminal(t, env.svc, job.ID)
	assert.Equal(t, domain.JobStatusCanceled, done.Status)
	require.Len(t, done.AttemptDetails, 1)
	assert.Equal(t, domain.JobStatusCanceled, done.AttemptDetails[0].Status)

	// Canceling again is a no-op.
	require.NoError(t, env.svc.CancelAsyncJob(ctx, job.ID))
}

func TestQueryService_ConcurrencyIsBounded(t *testing.T) {
	t.Parallel()
	eng := &blockingEngine{started: make(chan struct{})}
	env := newTestEnv(t, eng, Options{MaxConcurrency: 1})
	ctx := context.Background()

	first, err := env.svc.SubmitAsync(ctx, SubmitRequest{SQL: "SELECT 1"})
	require.NoError(t, err)
	<-eng.started

	second, err := env.svc.SubmitAsync(ctx, SubmitRequest{SQL: "SELECT 2"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := env.svc.GetAsyncJob(ctx, second.ID)
		return err == nil && job.Status == domain.JobStatusQueued
	}, 5*time.Second, 10*time.Millisecond)

	// The waiting job never started an attempt.
	waiting, err := env.svc.GetAsyncJob(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, waiting.AttemptDetails)

	require.NoError(t, env.svc.CancelAsyncJob(ctx, second.ID))
	assert.Equal(t, domain.JobStatusCanceled, waitForTerminal(t, env.svc, second.ID).Status)
	require.NoError(t, env.svc.CancelAsyncJob(ctx, first.ID))
	assert.Equal(t, domain.JobStatusCanceled, waitForTerminal(t, env.svc, first.ID).Status)
}

func TestQueryService_DeleteAsyncJob(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, newDuckDB(t), Options{})
	ctx := context.Background()

	job, err := env.svc.SubmitAsync(ctx, SubmitRequest{SQL: "SELECT 1"})
	require.NoError(t, err)
	waitForTerminal(t, env.svc, job.ID)

	require.NoError(t, env.svc.DeleteAsyncJob(ctx, job.ID))
	_, err = env.svc.GetAsyncJob(ctx, job.ID)
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.ErrorAs(t, env.svc.DeleteAsyncJob(ctx, job.ID), &notFound)
}

func TestQueryService_SubmitAsync_Validation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, newDuckDB(t), Options{})

	var validation *domain.ValidationError
	_, err := env.svc.SubmitAsync(context.Background(), SubmitRequest{SQL: "   "})
	require.ErrorAs(t, err, &validation)
	_, err = env.svc.SubmitAsync(context.Background(), SubmitRequest{SQL: "SELECT 1", QueryType: "BATCH"})
	require.ErrorAs(t, err, &validation)
}

func TestQueryService_NotConfigured(t *testing.T) {
	t.Parallel()
	svc := NewQueryService(nil, nil, nil, nil, Options{})

	var notImpl *domain.NotImplementedError
	_, err := svc.SubmitAsync(context.Background(), SubmitRequest{SQL: "SELECT 1"})
	require.ErrorAs(t, err, &notImpl)
	_, err = svc.ListJobs(context.Background(), 0)
	require.ErrorAs(t, err, &notImpl)
}

func TestQueryService_ListJobs(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, newDuckDB(t), Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		job, err := env.svc.SubmitAsync(ctx, SubmitRequest{SQL: "SELECT 1", DatasetVersion: "v1"})
		require.NoError(t, err)
		waitForTerminal(t, env.svc, job.ID)
	}

	jobs, err := env.svc.ListJobs(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	latest, err := env.svc.GetLatestJob(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, jobs[0].ID, latest.ID)
}

func TestIsRetryableQueryError(t *testing.T) {
	t.Parallel()

	assert.False(t, isRetryableQueryError(nil))
	assert.True(t, isRetryableQueryError(errors.New("read tcp: i/o timeout")))
	assert.True(t, isRetryableQueryError(context.DeadlineExceeded))
	assert.True(t, isRetryableQueryError(errors.New("database is locked")))
	assert.False(t, isRetryableQueryError(domain.ErrValidation("timeout in identifier")))
	assert.False(t, isRetryableQueryError(errors.New("Binder Error: column not found")))
}

func TestExecute_ScanLimit(t *testing.T) {
	t.Parallel()
	svc := NewQueryService(newDuckDB(t), nil, nil, nil, Options{})

	res, err := svc.Execute(context.Background(), "SELECT * FROM range(10)", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.RowCount)
	assert.Len(t, res.Rows, 4)
	assert.True(t, res.Limited)

	res, err = svc.Execute(context.Background(), "SELECT * FROM range(10)", 0)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 10)
	assert.False(t, res.Limited)
}
