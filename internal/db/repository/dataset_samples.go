package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"duck-explore/internal/domain"
)

var _ domain.DatasetSampleRepository = (*DatasetSampleRepo)(nil)

// DatasetSampleRepo stores preview samples keyed by dataset version.
type DatasetSampleRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewDatasetSampleRepo creates a new DatasetSampleRepo.
func NewDatasetSampleRepo(db *sql.DB) *DatasetSampleRepo {
	return &DatasetSampleRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Put stores the sample for a dataset version, replacing any earlier one.
func (r *DatasetSampleRepo) Put(ctx context.Context, sample *domain.DatasetSample) error {
	if sample == nil || sample.DatasetVersion == "" {
		return domain.ErrValidation("dataset version is required")
	}
	columnsJSON, err := marshalJSON("columns", sample.Columns)
	if err != nil {
		return err
	}
	rowsJSON, err := marshalJSON("rows", sample.Rows)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO dataset_samples (dataset_version, job_id, columns_json, rows_json, row_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (dataset_version) DO UPDATE SET
		    job_id = excluded.job_id,
		    columns_json = excluded.columns_json,
		    rows_json = excluded.rows_json,
		    row_count = excluded.row_count,
		    created_at = excluded.created_at
	`, sample.DatasetVersion, sample.JobID, columnsJSON, rowsJSON, len(sample.Rows), r.now())
	return mapDBError(err)
}

// Get returns the sample stored for a dataset version.
func (r *DatasetSampleRepo) Get(ctx context.Context, datasetVersion string) (*domain.DatasetSample, error) {
	var (
		sample                domain.DatasetSample
		columnsJSON, rowsJSON sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT dataset_version, job_id, columns_json, rows_json, created_at
		FROM dataset_samples WHERE dataset_version = ?
	`, datasetVersion).Scan(&sample.DatasetVersion, &sample.JobID, &columnsJSON, &rowsJSON, &sample.CreatedAt)
	if err != nil {
		mapped := mapDBError(err)
		if _, ok := mapped.(*domain.NotFoundError); ok {
			return nil, domain.ErrNotFound("no sample for dataset version %q", datasetVersion)
		}
		return nil, mapped
	}
	if err := unmarshalJSON("columns", columnsJSON, &sample.Columns); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("rows", rowsJSON, &sample.Rows); err != nil {
		return nil, err
	}
	return &sample, nil
}

// CountRows returns the number of sample rows stored for a dataset version,
// or zero when there is no sample.
func (r *DatasetSampleRepo) CountRows(ctx context.Context, datasetVersion string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(row_count), 0) FROM dataset_samples WHERE dataset_version = ?
	`, datasetVersion).Scan(&n)
	if err != nil {
		return 0, mapDBError(err)
	}
	return n, nil
}

// DeleteOlderThan removes samples stored before cutoff.
func (r *DatasetSampleRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM dataset_samples WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
