// Package retention removes finished query jobs and stale dataset samples on a schedule.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs cleanup once an hour.
const DefaultSchedule = "@hourly"

// JobPurger deletes finished jobs. Implemented by repository.QueryJobRepo.
type JobPurger interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SamplePurger deletes old samples. Implemented by repository.DatasetSampleRepo.
type SamplePurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Policy says how long finished jobs and samples are kept. A zero TTL keeps
// the corresponding records forever.
type Policy struct {
	Schedule  string
	JobTTL    time.Duration
	SampleTTL time.Duration
}

// Stats reports what one cleanup run removed.
type Stats struct {
	JobsDeleted    int64
	SamplesDeleted int64
}

// Scheduler runs Cleanup on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	jobs    JobPurger
	samples SamplePurger
	policy  Policy
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a new retention scheduler.
func NewScheduler(jobs JobPurger, samples SamplePurger, policy Policy, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.Schedule == "" {
		policy.Schedule = DefaultSchedule
	}
	return &Scheduler{
		cron:    cron.New(),
		jobs:    jobs,
		samples: samples,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
	}
}

// Start registers the cleanup entry and starts the cron scheduler.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.policy.Schedule, func() {
		if _, err := s.Cleanup(context.Background()); err != nil {
			s.logger.Warn("retention cleanup failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", s.policy.Schedule, err)
	}
	s.cron.Start()
	s.logger.Info("retention scheduler started", "schedule", s.policy.Schedule)
	return nil
}

// Stop stops the scheduler and waits for a running cleanup to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("retention scheduler stopped")
}

// Cleanup deletes expired jobs and samples once. Overlapping runs are skipped.
func (s *Scheduler) Cleanup(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Stats{}, nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	var stats Stats
	now := s.now().UTC()

	if s.policy.JobTTL > 0 && s.jobs != nil {
		n, err := s.jobs.DeleteFinishedBefore(ctx, now.Add(-s.policy.JobTTL))
		if err != nil {
			return stats, fmt.Errorf("delete finished jobs: %w", err)
		}
		stats.JobsDeleted = n
	}
	if s.policy.SampleTTL > 0 && s.samples != nil {
		n, err := s.samples.DeleteOlderThan(ctx, now.Add(-s.policy.SampleTTL))
		if err != nil {
			return stats, fmt.Errorf("delete dataset samples: %w", err)
		}
		stats.SamplesDeleted = n
	}

	s.logger.Info("retention cleanup finished",
		"jobs_deleted", stats.JobsDeleted,
		"samples_deleted", stats.SamplesDeleted,
	)
	return stats, nil
}
