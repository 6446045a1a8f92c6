package domain

import (
	"context"
	"database/sql"
	"time"
)

// QueryEngine executes SQL against the exploration engine.
// Implemented by engine.DuckDB.
type QueryEngine interface {
	Query(ctx context.Context, sqlQuery string) (*sql.Rows, error)
	Explain(ctx context.Context, sqlQuery string) error
}

// QueryJobRepository stores the durable lifecycle of async query jobs.
// Implemented by repository.QueryJobRepo.
type QueryJobRepository interface {
	Create(ctx context.Context, job *QueryJob) (*QueryJob, error)
	GetByID(ctx context.Context, id string) (*QueryJob, error)
	GetLatestByVersion(ctx context.Context, datasetVersion string) (*QueryJob, error)
	List(ctx context.Context, limit int) ([]QueryJob, error)
	UpdateStatus(ctx context.Context, id string, status JobStatus) error
	StartAttempt(ctx context.Context, id string, attempt int) error
	MarkRetrying(ctx context.Context, id string, attempt int, reason string) error
	MarkCompleted(ctx context.Context, id string, attempt int, result QueryOutput) error
	MarkFailed(ctx context.Context, id string, attempt int, message string) error
	MarkCanceled(ctx context.Context, id string, attempt int) error
	RequestCancel(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DatasetSampleRepository keeps sample rows of previewed datasets so the
// exploration view can still show approximate data after the job is gone.
// Implemented by repository.DatasetSampleRepo.
type DatasetSampleRepository interface {
	Put(ctx context.Context, sample *DatasetSample) error
	Get(ctx context.Context, datasetVersion string) (*DatasetSample, error)
	CountRows(ctx context.Context, datasetVersion string) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
