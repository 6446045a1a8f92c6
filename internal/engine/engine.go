// Package engine runs exploration queries on an in-process DuckDB.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver

	"duck-explore/internal/domain"
)

var _ domain.QueryEngine = (*DuckDB)(nil)

// DuckDB wraps a DuckDB connection pool.
type DuckDB struct {
	db *sql.DB
}

// OpenDuckDB opens the DuckDB database at path. An empty path opens an
// in-memory database.
func OpenDuckDB(ctx context.Context, path string) (*DuckDB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return &DuckDB{db: db}, nil
}

// Close closes the underlying database.
func (e *DuckDB) Close() error { return e.db.Close() }

// Query executes a single statement and returns its rows.
func (e *DuckDB) Query(ctx context.Context, sqlQuery string) (*sql.Rows, error) {
	stmt, err := normalize(sqlQuery)
	if err != nil {
		return nil, err
	}
	rows, err := e.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	return rows, nil
}

// Explain plans the statement without running it. Binder and parser errors
// surface here so invalid SQL fails before execution starts.
func (e *DuckDB) Explain(ctx context.Context, sqlQuery string) error {
	stmt, err := normalize(sqlQuery)
	if err != nil {
		return err
	}
	rows, err := e.db.QueryContext(ctx, "EXPLAIN "+stmt)
	if err != nil {
		return domain.ErrValidation("invalid query: %v", err)
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return domain.ErrValidation("invalid query: %v", err)
	}
	return nil
}

func normalize(sqlQuery string) (string, error) {
	stmt := strings.TrimSpace(sqlQuery)
	stmt = strings.TrimSpace(strings.TrimRight(stmt, ";"))
	if stmt == "" {
		return "", domain.ErrValidation("sql is required")
	}
	return stmt, nil
}
