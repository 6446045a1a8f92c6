package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"duck-explore/internal/domain"
)

const defaultListLimit = 50

// SubmitRequest describes a query submitted from the exploration view.
type SubmitRequest struct {
	SQL            string
	QueryType      domain.QueryType
	DatasetVersion string
}

// SubmitAsync creates an asynchronous query job and starts background execution.
func (s *QueryService) SubmitAsync(ctx context.Context, req SubmitRequest) (*domain.QueryJob, error) {
	if s.jobRepo == nil {
		return nil, domain.ErrNotImplemented("async query jobs are not configured")
	}
	if strings.TrimSpace(req.SQL) == "" {
		return nil, domain.ErrValidation("sql query is required")
	}
	if req.QueryType == "" {
		req.QueryType = domain.QueryTypeOther
	}
	if !req.QueryType.IsValid() {
		return nil, domain.ErrValidation("unknown query type %q", req.QueryType)
	}

	job, err := s.jobRepo.Create(ctx, &domain.QueryJob{
		DatasetVersion: strings.TrimSpace(req.DatasetVersion),
		SQLText:        req.SQL,
		QueryType:      req.QueryType,
		Status:         domain.JobStatusEnqueued,
	})
	if err != nil {
		return nil, fmt.Errorf("create query job: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.jobCancels.Store(job.ID, cancel)
	s.workers.Add(1)
	go s.runAsyncJob(runCtx, cancel, job)

	s.logger.Info("query job submitted", "job_id", job.ID, "query_type", job.QueryType, "dataset_version", job.DatasetVersion)
	return job, nil
}

// GetAsyncJob returns the state of a query job.
func (s *QueryService) GetAsyncJob(ctx context.Context, jobID string) (*domain.QueryJob, error) {
	if s.jobRepo == nil {
		return nil, domain.ErrNotImplemented("async query jobs are not configured")
	}
	return s.jobRepo.GetByID(ctx, jobID)
}

// GetLatestJob returns the most recent job submitted for a dataset version.
func (s *QueryService) GetLatestJob(ctx context.Context, datasetVersion string) (*domain.QueryJob, error) {
	if s.jobRepo == nil {
		return nil, domain.ErrNotImplemented("async query jobs are not configured")
	}
	return s.jobRepo.GetLatestByVersion(ctx, datasetVersion)
}

// ListJobs returns the most recent jobs, newest first.
func (s *QueryService) ListJobs(ctx context.Context, limit int) ([]domain.QueryJob, error) {
	if s.jobRepo == nil {
		return nil, domain.ErrNotImplemented("async query jobs are not configured")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.jobRepo.List(ctx, limit)
}

// CancelAsyncJob requests cancellation of a queued or running job. The worker
// moves the job to CANCELED once execution has stopped. Finished jobs are left
// as they are.
func (s *QueryService) CancelAsyncJob(ctx context.Context, jobID string) error {
	job, err := s.GetAsyncJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}

	if err := s.jobRepo.RequestCancel(ctx, jobID); err != nil {
		return err
	}

	if cancelRaw, ok := s.jobCancels.Load(jobID); ok {
		if cancelFn, ok := cancelRaw.(context.CancelFunc); ok {
			cancelFn()
		}
		s.logger.Info("query job cancellation requested", "job_id", jobID)
		return nil
	}

	// No worker owns the job, e.g. after a restart.
	if err := s.jobRepo.MarkCanceled(ctx, jobID, job.TotalAttempts); err != nil {
		return err
	}
	s.logger.Info("orphaned query job canceled", "job_id", jobID)
	return nil
}

// DeleteAsyncJob removes a query job after canceling execution if needed.
func (s *QueryService) DeleteAsyncJob(ctx context.Context, jobID string) error {
	if err := s.CancelAsyncJob(ctx, jobID); err != nil {
		return err
	}
	if err := s.jobRepo.Delete(ctx, jobID); err != nil {
		return err
	}
	s.logger.Info("query job deleted", "job_id", jobID)
	return nil
}

func (s *QueryService) runAsyncJob(ctx context.Context, cancel context.CancelFunc, job *domain.QueryJob) {
	defer s.workers.Done()
	defer s.jobCancels.Delete(job.ID)
	defer cancel()

	log := s.logger.With("job_id", job.ID)
	// Terminal writes must land even after ctx is canceled.
	bg := context.Background()

	for attempt := 1; ; attempt++ {
		result, err := s.runAttempt(ctx, job, attempt)
		if err == nil {
			if err := s.jobRepo.MarkCompleted(bg, job.ID, attempt, domain.QueryOutput{
				Columns:       result.Columns,
				Rows:          result.Rows,
				OutputRecords: result.RowCount,
				OutputLimited: result.Limited,
			}); err != nil {
				log.Warn("record query job completion", "error", err)
				return
			}
			log.Info("query job completed", "attempt", attempt, "rows", result.RowCount, "limited", result.Limited)
			s.storeSample(bg, job, result)
			return
		}

		if ctx.Err() != nil {
			s.finishCanceled(job.ID, attempt)
			return
		}
		if attempt >= s.opts.MaxAttempts || !isRetryableQueryError(err) {
			if markErr := s.jobRepo.MarkFailed(bg, job.ID, attempt, err.Error()); markErr != nil {
				log.Warn("record query job failure", "error", markErr)
			}
			log.Info("query job failed", "attempt", attempt, "error", err)
			return
		}

		if markErr := s.jobRepo.MarkRetrying(bg, job.ID, attempt, err.Error()); markErr != nil {
			log.Warn("record query job retry", "error", markErr)
		}
		log.Info("query job retrying", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			s.finishCanceled(job.ID, attempt)
			return
		case <-time.After(time.Duration(attempt) * s.opts.RetryBackoff):
		}
	}
}

// runAttempt waits for an execution slot and walks one attempt through the
// planning and execution phases.
func (s *QueryService) runAttempt(ctx context.Context, job *domain.QueryJob, attempt int) (*QueryResult, error) {
	if err := s.jobRepo.UpdateStatus(ctx, job.ID, domain.JobStatusQueued); err != nil {
		return nil, err
	}
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.slots.Release(1)

	if err := s.jobRepo.StartAttempt(ctx, job.ID, attempt); err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			return nil, context.Canceled
		}
		return nil, err
	}

	if err := s.advance(ctx, job.ID, domain.JobStatusMetadataRetrieval); err != nil {
		return nil, err
	}
	if err := s.advance(ctx, job.ID, domain.JobStatusPlanning); err != nil {
		return nil, err
	}
	if err := s.engine.Explain(ctx, job.SQLText); err != nil {
		return nil, err
	}
	if err := s.advance(ctx, job.ID, domain.JobStatusExecutionPlanning); err != nil {
		return nil, err
	}
	if err := s.advance(ctx, job.ID, domain.JobStatusEngineStart); err != nil {
		return nil, err
	}
	if err := s.advance(ctx, job.ID, domain.JobStatusRunning); err != nil {
		return nil, err
	}
	return s.Execute(ctx, job.SQLText, s.rowLimit(job.QueryType))
}

func (s *QueryService) advance(ctx context.Context, jobID string, status domain.JobStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.jobRepo.UpdateStatus(ctx, jobID, status)
}

func (s *QueryService) finishCanceled(jobID string, attempt int) {
	if err := s.jobRepo.MarkCanceled(context.Background(), jobID, attempt); err != nil {
		s.logger.Warn("record query job cancellation", "job_id", jobID, "error", err)
		return
	}
	s.logger.Info("query job canceled", "job_id", jobID, "attempt", attempt)
}

// storeSample keeps the first rows of a successful preview so the exploration
// view can show approximate data after the job itself is gone.
func (s *QueryService) storeSample(ctx context.Context, job *domain.QueryJob, result *QueryResult) {
	if s.samples == nil || job.QueryType != domain.QueryTypePreview || job.DatasetVersion == "" {
		return
	}
	rows := result.Rows
	if len(rows) > s.opts.SampleRows {
		rows = rows[:s.opts.SampleRows]
	}
	err := s.samples.Put(ctx, &domain.DatasetSample{
		DatasetVersion: job.DatasetVersion,
		JobID:          job.ID,
		Columns:        result.Columns,
		Rows:           rows,
	})
	if err != nil {
		s.logger.Warn("store dataset sample", "job_id", job.ID, "dataset_version", job.DatasetVersion, "error", err)
	}
}

func isRetryableQueryError(err error) bool {
	if err == nil {
		return false
	}
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	retryHints := []string{"timeout", "temporarily", "temporary", "connection reset", "eof", "broken pipe", "database is locked"}
	for _, hint := range retryHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
