package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"duck-explore/internal/domain"
)

var _ domain.QueryJobRepository = (*QueryJobRepo)(nil)

// notFinished guards updates so a terminal job is never moved again.
const notFinished = `status NOT IN ('COMPLETED', 'CANCELED', 'FAILED')`

// progressAllowed additionally keeps a pending cancellation from being
// overwritten by progress updates of the worker.
const progressAllowed = `status NOT IN ('COMPLETED', 'CANCELED', 'FAILED', 'CANCELLATION_REQUESTED')`

const jobColumns = `id, dataset_version, sql_text, query_type, status, columns_json, rows_json,
	output_records, output_limited, total_attempts, error_message,
	created_at, started_at, completed_at, updated_at`

// QueryJobRepo stores asynchronous query lifecycle state in SQLite.
type QueryJobRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewQueryJobRepo creates a new QueryJobRepo.
func NewQueryJobRepo(db *sql.DB) *QueryJobRepo {
	return &QueryJobRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a new query job. The submission time doubles as the job's
// start time so queue time counts toward the elapsed duration.
func (r *QueryJobRepo) Create(ctx context.Context, job *domain.QueryJob) (*domain.QueryJob, error) {
	if job == nil {
		return nil, domain.ErrValidation("query job is required")
	}
	if job.ID == "" {
		job.ID = domain.NewID()
	}
	if job.Status == "" {
		job.Status = domain.JobStatusNotSubmitted
	}
	if job.QueryType == "" {
		job.QueryType = domain.QueryTypeOther
	}

	now := r.now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO query_jobs (id, dataset_version, sql_text, query_type, status, created_at, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.DatasetVersion, job.SQLText, string(job.QueryType), string(job.Status), now, now, now)
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.GetByID(ctx, job.ID)
}

// GetByID returns a query job with its attempt history.
func (r *QueryJobRepo) GetByID(ctx context.Context, id string) (*domain.QueryJob, error) {
	job, err := r.getOne(ctx, `SELECT `+jobColumns+` FROM query_jobs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if err := r.loadAttempts(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// GetLatestByVersion returns the most recently submitted job for a dataset version.
func (r *QueryJobRepo) GetLatestByVersion(ctx context.Context, datasetVersion string) (*domain.QueryJob, error) {
	job, err := r.getOne(ctx, `
		SELECT `+jobColumns+` FROM query_jobs
		WHERE dataset_version = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, datasetVersion)
	if err != nil {
		return nil, err
	}
	if err := r.loadAttempts(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// List returns the most recent jobs without result rows or attempt details.
func (r *QueryJobRepo) List(ctx context.Context, limit int) ([]domain.QueryJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM query_jobs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var jobs []domain.QueryJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		job.Rows = nil
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// UpdateStatus moves an unfinished job to a new in-progress status.
// Updates against finished or cancel-requested jobs are ignored.
func (r *QueryJobRepo) UpdateStatus(ctx context.Context, id string, status domain.JobStatus) error {
	if !status.IsValid() {
		return domain.ErrValidation("unknown job status %q", status)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE query_jobs SET status = ?, updated_at = ?
		WHERE id = ? AND `+progressAllowed,
		string(status), r.now(), id)
	if err != nil {
		return mapDBError(err)
	}
	return r.requireExists(ctx, res, id)
}

// StartAttempt records the start of an execution attempt.
func (r *QueryJobRepo) StartAttempt(ctx context.Context, id string, attempt int) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		now := r.now()
		res, err := tx.ExecContext(ctx, `
			UPDATE query_jobs SET status = ?, total_attempts = ?, updated_at = ?
			WHERE id = ? AND `+progressAllowed,
			string(domain.JobStatusStarting), attempt, now, id)
		if err != nil {
			return mapDBError(err)
		}
		if !changed(res) {
			return domain.ErrConflict("query job %q cannot start attempt %d", id, attempt)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO query_job_attempts (job_id, attempt, status, started_at)
			VALUES (?, ?, ?, ?)
		`, id, attempt, string(domain.JobStatusRunning), now)
		return mapDBError(err)
	})
}

// MarkRetrying closes a failed attempt and puts the job back in the queue.
func (r *QueryJobRepo) MarkRetrying(ctx context.Context, id string, attempt int, reason string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		now := r.now()
		res, err := tx.ExecContext(ctx, `
			UPDATE query_jobs SET status = ?, error_message = ?, updated_at = ?
			WHERE id = ? AND `+progressAllowed,
			string(domain.JobStatusQueued), reason, now, id)
		if err != nil {
			return mapDBError(err)
		}
		if !changed(res) {
			return nil
		}
		return endAttempt(ctx, tx, id, attempt, domain.JobStatusFailed, &reason, now)
	})
}

// MarkCompleted stores the query output and marks the job completed.
func (r *QueryJobRepo) MarkCompleted(ctx context.Context, id string, attempt int, out domain.QueryOutput) error {
	columnsJSON, err := marshalJSON("columns", out.Columns)
	if err != nil {
		return err
	}
	rowsJSON, err := marshalJSON("rows", out.Rows)
	if err != nil {
		return err
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		now := r.now()
		res, err := tx.ExecContext(ctx, `
			UPDATE query_jobs
			SET status = ?, columns_json = ?, rows_json = ?, output_records = ?, output_limited = ?,
			    error_message = NULL, completed_at = ?, updated_at = ?
			WHERE id = ? AND `+notFinished,
			string(domain.JobStatusCompleted), columnsJSON, rowsJSON, out.OutputRecords, boolToInt(out.OutputLimited), now, now, id)
		if err != nil {
			return mapDBError(err)
		}
		if !changed(res) {
			return domain.ErrConflict("query job %q is already finished", id)
		}
		return endAttempt(ctx, tx, id, attempt, domain.JobStatusCompleted, nil, now)
	})
}

// MarkFailed marks a job as failed with an error message.
func (r *QueryJobRepo) MarkFailed(ctx context.Context, id string, attempt int, message string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		now := r.now()
		res, err := tx.ExecContext(ctx, `
			UPDATE query_jobs SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
			WHERE id = ? AND `+notFinished,
			string(domain.JobStatusFailed), message, now, now, id)
		if err != nil {
			return mapDBError(err)
		}
		if !changed(res) {
			return nil
		}
		return endAttempt(ctx, tx, id, attempt, domain.JobStatusFailed, &message, now)
	})
}

// MarkCanceled marks a job as canceled. attempt is zero when the job was
// canceled before any attempt started.
func (r *QueryJobRepo) MarkCanceled(ctx context.Context, id string, attempt int) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		now := r.now()
		res, err := tx.ExecContext(ctx, `
			UPDATE query_jobs
			SET status = ?,
			    error_message = CASE WHEN error_message IS NULL OR error_message = '' THEN 'query canceled' ELSE error_message END,
			    completed_at = ?, updated_at = ?
			WHERE id = ? AND `+notFinished,
			string(domain.JobStatusCanceled), now, now, id)
		if err != nil {
			return mapDBError(err)
		}
		if !changed(res) {
			return nil
		}
		return endAttempt(ctx, tx, id, attempt, domain.JobStatusCanceled, nil, now)
	})
}

// RequestCancel flags an unfinished job for cancellation. Finished jobs are left untouched.
func (r *QueryJobRepo) RequestCancel(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE query_jobs SET status = ?, updated_at = ?
		WHERE id = ? AND `+notFinished,
		string(domain.JobStatusCancellationRequested), r.now(), id)
	if err != nil {
		return mapDBError(err)
	}
	return r.requireExists(ctx, res, id)
}

// Delete removes a query job and its attempts.
func (r *QueryJobRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM query_jobs WHERE id = ?`, id)
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound("query job %q not found", id)
	}
	return nil
}

// DeleteFinishedBefore removes finished jobs that completed before cutoff.
func (r *QueryJobRepo) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM query_jobs
		WHERE completed_at IS NOT NULL AND completed_at < ? AND NOT (`+notFinished+`)
	`, cutoff.UTC())
	if err != nil {
		return 0, mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func changed(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

func endAttempt(ctx context.Context, tx *sql.Tx, id string, attempt int, status domain.JobStatus, reason *string, at time.Time) error {
	if attempt <= 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE query_job_attempts SET status = ?, reason = ?, ended_at = ?
		WHERE job_id = ? AND attempt = ?
	`, string(status), reason, at, id, attempt)
	return mapDBError(err)
}

func (r *QueryJobRepo) requireExists(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM query_jobs WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		if mapped, ok := mapDBError(err).(*domain.NotFoundError); ok {
			mapped.Message = fmt.Sprintf("query job %q not found", id)
			return mapped
		}
		return mapDBError(err)
	}
	return nil
}

func (r *QueryJobRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *QueryJobRepo) loadAttempts(ctx context.Context, job *domain.QueryJob) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT attempt, status, reason, started_at, ended_at
		FROM query_job_attempts WHERE job_id = ?
		ORDER BY attempt
	`, job.ID)
	if err != nil {
		return mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var (
			d       domain.AttemptDetail
			status  string
			reason  sql.NullString
			endedAt sql.NullTime
		)
		if err := rows.Scan(&d.Attempt, &status, &reason, &d.StartedAt, &endedAt); err != nil {
			return fmt.Errorf("scan attempt: %w", err)
		}
		d.Status = domain.JobStatus(status)
		d.Reason = nullStringPtr(reason)
		d.EndedAt = nullTimePtr(endedAt)
		job.AttemptDetails = append(job.AttemptDetails, d)
	}
	return rows.Err()
}

func (r *QueryJobRepo) getOne(ctx context.Context, stmt string, args ...interface{}) (*domain.QueryJob, error) {
	return scanJob(r.db.QueryRowContext(ctx, stmt, args...))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*domain.QueryJob, error) {
	var (
		job                    domain.QueryJob
		queryType, status      string
		columnsJSON, rowsJSON  sql.NullString
		outputRecords          sql.NullInt64
		outputLimited          int64
		errorMessage           sql.NullString
		startedAt, completedAt sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&job.DatasetVersion,
		&job.SQLText,
		&queryType,
		&status,
		&columnsJSON,
		&rowsJSON,
		&outputRecords,
		&outputLimited,
		&job.TotalAttempts,
		&errorMessage,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, mapDBError(err)
	}

	job.QueryType = domain.QueryType(queryType)
	job.Status = domain.JobStatus(status)
	job.OutputLimited = outputLimited != 0
	job.ErrorMessage = nullStringPtr(errorMessage)
	job.StartedAt = nullTimePtr(startedAt)
	job.CompletedAt = nullTimePtr(completedAt)
	if outputRecords.Valid {
		n := outputRecords.Int64
		job.OutputRecords = &n
	}
	if err := unmarshalJSON("columns", columnsJSON, &job.Columns); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("rows", rowsJSON, &job.Rows); err != nil {
		return nil, err
	}
	return &job, nil
}
