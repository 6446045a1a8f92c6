package api

import (
	"time"

	"duck-explore/internal/domain"
)

type submitQueryRequest struct {
	SQL            string `json:"sql"`
	QueryType      string `json:"query_type"`
	DatasetVersion string `json:"dataset_version"`
}

type attemptResponse struct {
	Attempt   int        `json:"attempt"`
	Status    string     `json:"status"`
	Reason    *string    `json:"reason,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// QueryJobResponse is the JSON form of a query job.
type QueryJobResponse struct {
	ID             string            `json:"id"`
	DatasetVersion string            `json:"dataset_version,omitempty"`
	SQL            string            `json:"sql"`
	QueryType      string            `json:"query_type"`
	Status         string            `json:"status"`
	Columns        []string          `json:"columns,omitempty"`
	Rows           [][]interface{}   `json:"rows,omitempty"`
	OutputRecords  *int64            `json:"output_records,omitempty"`
	OutputLimited  bool              `json:"output_limited"`
	AttemptCount   int               `json:"attempt_count"`
	Attempts       []attemptResponse `json:"attempts,omitempty"`
	ErrorMessage   *string           `json:"error_message,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

// QueryJobList is the JSON form of a job listing.
type QueryJobList struct {
	Jobs []QueryJobResponse `json:"jobs"`
}

func queryJobToAPI(j *domain.QueryJob) QueryJobResponse {
	resp := QueryJobResponse{
		ID:             j.ID,
		DatasetVersion: j.DatasetVersion,
		SQL:            j.SQLText,
		QueryType:      string(j.QueryType),
		Status:         string(j.Status),
		Columns:        j.Columns,
		Rows:           j.Rows,
		OutputRecords:  j.OutputRecords,
		OutputLimited:  j.OutputLimited,
		AttemptCount:   j.AttemptCount(),
		ErrorMessage:   j.ErrorMessage,
		CreatedAt:      j.CreatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
	for _, a := range j.AttemptDetails {
		resp.Attempts = append(resp.Attempts, attemptResponse{
			Attempt:   a.Attempt,
			Status:    string(a.Status),
			Reason:    a.Reason,
			StartedAt: a.StartedAt,
			EndedAt:   a.EndedAt,
		})
	}
	return resp
}
