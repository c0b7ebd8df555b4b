package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/askql/askql/internal/query"
)

// ExecutionResult is the trapped outcome of one database round trip. Rows is
// nil when the statement failed or only reported an affected-row count.
// RowsAffected is always set on success: the materialized row count for
// result sets, the driver's count for mutations.
type ExecutionResult struct {
	Succeeded    bool     `json:"succeeded"`
	Columns      []string `json:"columns,omitempty"`
	Rows         [][]any  `json:"rows,omitempty"`
	HasRows      bool     `json:"has_rows"`
	RowsAffected *int64   `json:"rows_affected,omitempty"`
	DurationMS   float64  `json:"duration_ms"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// Row serializes one result row as a JSON object whose keys appear in the
// statement's projection order. Go maps cannot guarantee that, so the marshal
// is written by hand.
type Row struct {
	Columns []string
	Values  []any
}

func (r Row) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, column := range r.Columns {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(column)
		if err != nil {
			return nil, fmt.Errorf("marshal column name %q: %w", column, err)
		}
		b.Write(key)
		b.WriteByte(':')
		value, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, fmt.Errorf("marshal value of column %q: %w", column, err)
		}
		b.Write(value)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Normalized is the stable presentation shape every surrounding interface
// consumes. Rows is null on failure, an empty array when the query matched
// nothing, so callers can tell "zero rows" from "query failed".
type Normalized struct {
	Succeeded    bool    `json:"succeeded"`
	Rows         []Row   `json:"rows"`
	RowCount     int     `json:"row_count"`
	RowsAffected *int64  `json:"rows_affected,omitempty"`
	Message      string  `json:"message,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	DurationMS   float64 `json:"duration_ms"`
}

func Normalize(result ExecutionResult) Normalized {
	if !result.Succeeded {
		return Normalized{
			ErrorMessage: result.ErrorMessage,
			DurationMS:   result.DurationMS,
		}
	}

	normalized := Normalized{
		Succeeded:  true,
		DurationMS: result.DurationMS,
	}
	if !result.HasRows {
		normalized.RowsAffected = result.RowsAffected
		if result.RowsAffected != nil {
			normalized.Message = fmt.Sprintf("%d row(s) affected", *result.RowsAffected)
		}
		return normalized
	}

	normalized.Rows = make([]Row, 0, len(result.Rows))
	for _, values := range result.Rows {
		normalized.Rows = append(normalized.Rows, Row{Columns: result.Columns, Values: values})
	}
	normalized.RowCount = len(normalized.Rows)
	normalized.RowsAffected = result.RowsAffected
	if normalized.RowCount == 0 {
		normalized.Message = "query returned no rows"
	}
	return normalized
}

func executionResultFrom(result query.Result) ExecutionResult {
	execution := ExecutionResult{
		Succeeded:  true,
		HasRows:    result.HasRows,
		DurationMS: float64(result.Duration.Microseconds()) / 1000.0,
	}
	if result.HasRows {
		execution.Columns = result.Columns
		execution.Rows = result.Rows
		affected := int64(len(result.Rows))
		execution.RowsAffected = &affected
	} else {
		affected := result.RowsAffected
		execution.RowsAffected = &affected
	}
	return execution
}
