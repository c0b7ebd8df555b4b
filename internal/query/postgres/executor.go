package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/askql/askql/internal/query"
)

// Executor runs one SQL statement at a time against PostgreSQL.
type Executor struct {
	db *sql.DB
}

func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db}
}

func (e *Executor) Execute(ctx context.Context, sqlText string) (query.Result, error) {
	trimmed := stripTrailingSemicolons(sqlText)
	if trimmed == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}

	start := time.Now()
	if returnsRows(trimmed) {
		result, err := e.runQuery(ctx, trimmed)
		result.Duration = time.Since(start)
		return result, err
	}

	execResult, err := e.db.ExecContext(ctx, trimmed)
	if err != nil {
		return query.Result{Duration: time.Since(start)}, fmt.Errorf("execute statement: %w", err)
	}
	affected, err := execResult.RowsAffected()
	if err != nil {
		return query.Result{Duration: time.Since(start)}, fmt.Errorf("read affected rows: %w", err)
	}
	return query.Result{RowsAffected: affected, Duration: time.Since(start)}, nil
}

func (e *Executor) runQuery(ctx context.Context, sqlText string) (query.Result, error) {
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("run query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("read query columns: %w", err)
	}

	result := query.Result{Columns: columns, Rows: make([][]any, 0), HasRows: true}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return query.Result{}, fmt.Errorf("scan query row: %w", err)
		}
		for i, value := range values {
			if raw, ok := value.([]byte); ok {
				values[i] = string(raw)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate query rows: %w", err)
	}
	// For a result set the affected-row count is the materialized row count,
	// matching what mutations report through the driver.
	result.RowsAffected = int64(len(result.Rows))
	return result, nil
}

// returnsRows reports whether the statement produces a result set rather than
// an affected-row count. Data statements with RETURNING clauses also produce
// rows, but the generator never emits those, and they still execute correctly
// through ExecContext.
func returnsRows(sqlText string) bool {
	fields := strings.Fields(strings.ToUpper(sqlText))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "SELECT", "WITH", "SHOW", "EXPLAIN", "VALUES", "TABLE":
		return true
	default:
		return false
	}
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
