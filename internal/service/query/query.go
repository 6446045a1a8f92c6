// Package query runs exploration queries as asynchronous, retried jobs.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"duck-explore/internal/domain"
)

// Options tunes the async job runner.
type Options struct {
	MaxConcurrency  int64
	MaxAttempts     int
	RunRowLimit     int
	PreviewRowLimit int
	SampleRows      int
	RetryBackoff    time.Duration
}

// DefaultOptions returns the runner defaults used when no configuration is given.
func DefaultOptions() Options {
	return Options{
		MaxConcurrency:  4,
		MaxAttempts:     3,
		RunRowLimit:     100000,
		PreviewRowLimit: 1000,
		SampleRows:      100,
		RetryBackoff:    200 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = def.MaxConcurrency
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.RunRowLimit <= 0 {
		o.RunRowLimit = def.RunRowLimit
	}
	if o.PreviewRowLimit <= 0 {
		o.PreviewRowLimit = def.PreviewRowLimit
	}
	if o.SampleRows <= 0 {
		o.SampleRows = def.SampleRows
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = 0
	}
	return o
}

// QueryResult holds the structured output of a SQL query. RowCount is the
// number of rows the query produced, which exceeds len(Rows) when Limited.
//
//nolint:revive // Name chosen for clarity across package boundaries
type QueryResult struct {
	Columns  []string
	Rows     [][]interface{}
	RowCount int64
	Limited  bool
}

// QueryService executes exploration queries and tracks them as jobs.
//
//nolint:revive // Name chosen for clarity across package boundaries
type QueryService struct {
	engine     domain.QueryEngine
	jobRepo    domain.QueryJobRepository
	samples    domain.DatasetSampleRepository
	logger     *slog.Logger
	opts       Options
	slots      *semaphore.Weighted
	jobCancels sync.Map
	workers    sync.WaitGroup
}

// NewQueryService creates a new QueryService. samples may be nil, in which
// case preview samples are not kept.
func NewQueryService(eng domain.QueryEngine, jobs domain.QueryJobRepository, samples domain.DatasetSampleRepository, logger *slog.Logger, opts Options) *QueryService {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	return &QueryService{
		engine:  eng,
		jobRepo: jobs,
		samples: samples,
		logger:  logger,
		opts:    opts,
		slots:   semaphore.NewWeighted(opts.MaxConcurrency),
	}
}

// Execute runs a SQL query synchronously, keeping at most limit rows.
// A limit of zero or less keeps every row.
func (s *QueryService) Execute(ctx context.Context, sqlQuery string, limit int) (*QueryResult, error) {
	if strings.TrimSpace(sqlQuery) == "" {
		return nil, domain.ErrValidation("sql query is required")
	}

	rows, err := s.engine.Query(ctx, sqlQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	result, err := scanRows(rows, limit)
	if err != nil {
		return nil, fmt.Errorf("scan results: %w", err)
	}
	return result, nil
}

// Close cancels every running job and waits for the workers to exit.
func (s *QueryService) Close(ctx context.Context) error {
	s.jobCancels.Range(func(_, v any) bool {
		if cancelFn, ok := v.(context.CancelFunc); ok {
			cancelFn()
		}
		return true
	})

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *QueryService) rowLimit(t domain.QueryType) int {
	if t == domain.QueryTypePreview {
		return s.opts.PreviewRowLimit
	}
	return s.opts.RunRowLimit
}

func scanRows(rows *sql.Rows, limit int) (*QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &QueryResult{Columns: cols, Rows: [][]interface{}{}}
	for rows.Next() {
		result.RowCount++
		if limit > 0 && len(result.Rows) >= limit {
			result.Limited = true
			continue
		}

		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		// Byte slices become strings for JSON serialization.
		row := make([]interface{}, len(vals))
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			} else {
				row[i] = v
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
