package domain

import (
	"time"
)

// JobStatus represents the lifecycle state of a query job attempt.
type JobStatus string

// Query job lifecycle statuses.
const (
	JobStatusNotSubmitted          JobStatus = "NOT_SUBMITTED"
	JobStatusStarting              JobStatus = "STARTING"
	JobStatusEnqueued              JobStatus = "ENQUEUED"
	JobStatusPending               JobStatus = "PENDING"
	JobStatusMetadataRetrieval     JobStatus = "METADATA_RETRIEVAL"
	JobStatusPlanning              JobStatus = "PLANNING"
	JobStatusEngineStart           JobStatus = "ENGINE_START"
	JobStatusQueued                JobStatus = "QUEUED"
	JobStatusExecutionPlanning     JobStatus = "EXECUTION_PLANNING"
	JobStatusRunning               JobStatus = "RUNNING"
	JobStatusCancellationRequested JobStatus = "CANCELLATION_REQUESTED"
	JobStatusCompleted             JobStatus = "COMPLETED"
	JobStatusCanceled              JobStatus = "CANCELED"
	JobStatusFailed                JobStatus = "FAILED"
)

// AllJobStatuses lists every status in declaration order.
var AllJobStatuses = []JobStatus{
	JobStatusNotSubmitted,
	JobStatusStarting,
	JobStatusEnqueued,
	JobStatusPending,
	JobStatusMetadataRetrieval,
	JobStatusPlanning,
	JobStatusEngineStart,
	JobStatusQueued,
	JobStatusExecutionPlanning,
	JobStatusRunning,
	JobStatusCancellationRequested,
	JobStatusCompleted,
	JobStatusCanceled,
	JobStatusFailed,
}

// IsValid reports whether s is one of the known statuses.
func (s JobStatus) IsValid() bool {
	for _, known := range AllJobStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsInProgress reports whether a job in this status is still doing work,
// i.e. whether its elapsed time should keep ticking.
func (s JobStatus) IsInProgress() bool {
	switch s {
	case JobStatusStarting,
		JobStatusEnqueued,
		JobStatusRunning,
		JobStatusCancellationRequested,
		JobStatusPending,
		JobStatusMetadataRetrieval,
		JobStatusPlanning,
		JobStatusEngineStart,
		JobStatusQueued,
		JobStatusExecutionPlanning:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status can no longer change.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCanceled || s == JobStatusFailed
}

// QueryType records how a query was submitted from the exploration view.
type QueryType string

// Known query types. Jobs created outside the exploration view carry other values.
const (
	QueryTypeRun     QueryType = "UI_RUN"
	QueryTypePreview QueryType = "UI_PREVIEW"
	QueryTypeOther   QueryType = "OTHER"
)

// IsValid reports whether t is one of the known query types.
func (t QueryType) IsValid() bool {
	return t == QueryTypeRun || t == QueryTypePreview || t == QueryTypeOther
}

// AttemptDetail describes one execution attempt of a query job.
type AttemptDetail struct {
	Attempt   int
	Status    JobStatus
	Reason    *string
	StartedAt time.Time
	EndedAt   *time.Time
}

// QueryJob stores durable state for asynchronous query execution.
type QueryJob struct {
	ID             string
	DatasetVersion string
	SQLText        string
	QueryType      QueryType
	Status         JobStatus
	Columns        []string
	Rows           [][]interface{}
	OutputRecords  *int64
	OutputLimited  bool
	TotalAttempts  int
	AttemptDetails []AttemptDetail
	ErrorMessage   *string
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	UpdatedAt      time.Time
}

// AttemptCount returns the number of attempts made for the job. The recorded
// total wins, then the number of attempt details; a job with neither counts
// as a single attempt.
func (j *QueryJob) AttemptCount() int {
	if j.TotalAttempts > 0 {
		return j.TotalAttempts
	}
	if len(j.AttemptDetails) > 0 {
		return len(j.AttemptDetails)
	}
	return 1
}

// Snapshot returns the read-only view of the job used for display.
func (j *QueryJob) Snapshot(projectID string) *JobSnapshot {
	snap := &JobSnapshot{
		JobID:             j.ID,
		ProjectID:         projectID,
		Status:            j.Status,
		StartTime:         copyTime(j.StartedAt),
		EndTime:           copyTime(j.CompletedAt),
		IsOutputLimited:   j.OutputLimited,
		QueryType:         j.QueryType,
		AttemptCount:      j.AttemptCount(),
		OutputRecordCount: nil,
	}
	if j.OutputRecords != nil {
		n := *j.OutputRecords
		snap.OutputRecordCount = &n
	}
	return snap
}

// QueryOutput is the result of a finished query attempt as stored on the job.
type QueryOutput struct {
	Columns       []string
	Rows          [][]interface{}
	OutputRecords int64
	OutputLimited bool
}

// JobSnapshot is the latest known state of a job as seen by the exploration
// view. It is owned by the job tracking layer and never mutated by readers.
type JobSnapshot struct {
	JobID             string
	ProjectID         string
	Status            JobStatus
	StartTime         *time.Time
	EndTime           *time.Time
	OutputRecordCount *int64
	IsOutputLimited   bool
	QueryType         QueryType
	AttemptCount      int
}

// DatasetSample holds the first rows of a previewed dataset version.
type DatasetSample struct {
	DatasetVersion string
	JobID          string
	Columns        []string
	Rows           [][]interface{}
	CreatedAt      time.Time
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
