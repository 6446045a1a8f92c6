// Package explore assembles the inputs of the exploration view's job status
// row and hands them to jobdisplay.
package explore

import (
	"context"
	"errors"
	"log/slog"

	"duck-explore/internal/domain"
	"duck-explore/internal/jobdisplay"
)

// JobSource looks up query jobs. Implemented by query.QueryService.
type JobSource interface {
	GetAsyncJob(ctx context.Context, jobID string) (*domain.QueryJob, error)
	GetLatestJob(ctx context.Context, datasetVersion string) (*domain.QueryJob, error)
}

// SampleSource reads preview samples. Implemented by repository.DatasetSampleRepo.
type SampleSource interface {
	Get(ctx context.Context, datasetVersion string) (*domain.DatasetSample, error)
	CountRows(ctx context.Context, datasetVersion string) (int64, error)
}

// View identifies what the exploration view is looking at.
type View struct {
	DatasetVersion string
	JobID          string
	IsRun          bool
	Approximate    bool
}

// Page is everything the exploration page renders for one view.
type Page struct {
	Job       *domain.QueryJob
	Sample    *domain.DatasetSample
	Status    jobdisplay.Result
	Localizer *jobdisplay.Messages
}

// Service resolves jobs, samples and locale for the exploration view.
type Service struct {
	jobs          JobSource
	samples       SampleSource
	projectID     string
	defaultLocale string
	logger        *slog.Logger
}

// NewService creates a new Service. samples may be nil.
func NewService(jobs JobSource, samples SampleSource, projectID, defaultLocale string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		jobs:          jobs,
		samples:       samples,
		projectID:     projectID,
		defaultLocale: defaultLocale,
		logger:        logger,
	}
}

// Localizer returns the message catalog for locale, or for the configured
// default when locale is empty.
func (s *Service) Localizer(locale string) *jobdisplay.Messages {
	if locale == "" {
		locale = s.defaultLocale
	}
	return jobdisplay.NewMessages(locale)
}

// ProjectID returns the project jobs are linked under.
func (s *Service) ProjectID() string { return s.projectID }

// StatusRow derives the job status row for v.
func (s *Service) StatusRow(ctx context.Context, v View, locale string) jobdisplay.Result {
	job := s.Job(ctx, v)
	return s.derive(ctx, job, v, s.Localizer(locale))
}

// LoadStatus resolves the job and the status row for v. It never reads the
// dataset sample.
func (s *Service) LoadStatus(ctx context.Context, v View, locale string) Page {
	loc := s.Localizer(locale)
	page := Page{Job: s.Job(ctx, v), Localizer: loc}
	page.Status = s.derive(ctx, page.Job, v, loc)
	return page
}

// Load resolves the job, the preview sample (when the view shows approximate
// data) and the status row for v.
func (s *Service) Load(ctx context.Context, v View, locale string) Page {
	page := s.LoadStatus(ctx, v, locale)
	if v.Approximate && s.samples != nil && v.DatasetVersion != "" {
		sample, err := s.samples.Get(ctx, v.DatasetVersion)
		if err == nil {
			page.Sample = sample
		} else if !isNotFound(err) {
			s.logger.Warn("load dataset sample", "dataset_version", v.DatasetVersion, "error", err)
		}
	}
	return page
}

// Job returns the job the view refers to: the job by id when given, else the
// latest job for the dataset version. Lookup failures yield nil.
func (s *Service) Job(ctx context.Context, v View) *domain.QueryJob {
	var (
		job *domain.QueryJob
		err error
	)
	switch {
	case v.JobID != "":
		job, err = s.jobs.GetAsyncJob(ctx, v.JobID)
	case v.DatasetVersion != "":
		job, err = s.jobs.GetLatestJob(ctx, v.DatasetVersion)
	default:
		return nil
	}
	if err != nil {
		if !isNotFound(err) {
			s.logger.Warn("look up query job", "job_id", v.JobID, "dataset_version", v.DatasetVersion, "error", err)
		}
		return nil
	}
	return job
}

func (s *Service) derive(ctx context.Context, job *domain.QueryJob, v View, loc jobdisplay.Localizer) jobdisplay.Result {
	in := jobdisplay.Input{Approximate: v.Approximate, IsRunView: v.IsRun}
	if job != nil {
		in.Snapshot = job.Snapshot(s.projectID)
	} else if v.Approximate {
		in.HaveRows = s.haveRows(ctx, v.DatasetVersion)
	}
	return jobdisplay.Derive(in, loc)
}

func (s *Service) haveRows(ctx context.Context, datasetVersion string) bool {
	if s.samples == nil || datasetVersion == "" {
		return false
	}
	n, err := s.samples.CountRows(ctx, datasetVersion)
	if err != nil {
		s.logger.Warn("count dataset sample rows", "dataset_version", datasetVersion, "error", err)
		return false
	}
	return n > 0
}

func isNotFound(err error) bool {
	var notFound *domain.NotFoundError
	return errors.As(err, &notFound)
}
