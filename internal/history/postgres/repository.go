package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/askql/askql/internal/history"
)

// Repository persists history entries in the askql_query_history table.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Record(ctx context.Context, entry history.Entry) error {
	if entry.ID == "" {
		entry.ID = history.NewEntryID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
INSERT INTO askql_query_history (id, question, sql_text, provider, model, valid, failure_reason, succeeded, row_count, duration_ms, trace_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Question,
		entry.SQLText,
		entry.Provider,
		entry.Model,
		entry.Valid,
		entry.FailureReason,
		entry.Succeeded,
		entry.RowCount,
		entry.DurationMS,
		entry.TraceID,
		entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, question, sql_text, provider, model, valid, failure_reason, succeeded, row_count, duration_ms, trace_id, created_at
FROM askql_query_history
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEntries(rows)
}

func (r *Repository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, question, sql_text, provider, model, valid, failure_reason, succeeded, row_count, duration_ms, trace_id, created_at
FROM askql_query_history
WHERE created_at < $1
ORDER BY created_at ASC
LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list old history entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEntries(rows)
}

func (r *Repository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, id)
	}

	query := fmt.Sprintf("DELETE FROM askql_query_history WHERE id IN (%s)", strings.Join(placeholders, ", "))
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete history entries by id: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read deleted row count: %w", err)
	}
	return deleted, nil
}

func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM askql_query_history
WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old history entries: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read deleted row count: %w", err)
	}
	return deleted, nil
}

func scanEntries(rows *sql.Rows) ([]history.Entry, error) {
	entries := make([]history.Entry, 0)
	for rows.Next() {
		var entry history.Entry
		if err := rows.Scan(
			&entry.ID,
			&entry.Question,
			&entry.SQLText,
			&entry.Provider,
			&entry.Model,
			&entry.Valid,
			&entry.FailureReason,
			&entry.Succeeded,
			&entry.RowCount,
			&entry.DurationMS,
			&entry.TraceID,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history entries: %w", err)
	}
	return entries, nil
}
