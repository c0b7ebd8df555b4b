package history

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
)

type ParquetEncodeResult struct {
	Data         []byte
	RecordCount  int64
	MinCreatedAt *time.Time
	MaxCreatedAt *time.Time
}

type parquetEntry struct {
	ID              string  `parquet:"id"`
	Question        string  `parquet:"question"`
	SQLText         string  `parquet:"sql_text"`
	Provider        string  `parquet:"provider"`
	Model           string  `parquet:"model"`
	Valid           bool    `parquet:"valid"`
	FailureReason   string  `parquet:"failure_reason"`
	Succeeded       bool    `parquet:"succeeded"`
	RowCount        int64   `parquet:"row_count"`
	DurationMS      float64 `parquet:"duration_ms"`
	TraceID         string  `parquet:"trace_id"`
	CreatedAtUnixMs int64   `parquet:"created_at_unix_ms"`
}

// EncodeEntriesToParquet renders archived history entries as one parquet
// buffer for the object store.
func EncodeEntriesToParquet(entries []Entry) (ParquetEncodeResult, error) {
	if len(entries) == 0 {
		return ParquetEncodeResult{}, fmt.Errorf("entries are required")
	}

	rows := make([]parquetEntry, 0, len(entries))
	var minTime *time.Time
	var maxTime *time.Time

	for _, entry := range entries {
		rows = append(rows, parquetEntry{
			ID:              entry.ID,
			Question:        entry.Question,
			SQLText:         entry.SQLText,
			Provider:        entry.Provider,
			Model:           entry.Model,
			Valid:           entry.Valid,
			FailureReason:   entry.FailureReason,
			Succeeded:       entry.Succeeded,
			RowCount:        int64(entry.RowCount),
			DurationMS:      entry.DurationMS,
			TraceID:         entry.TraceID,
			CreatedAtUnixMs: entry.CreatedAt.UnixMilli(),
		})

		if !entry.CreatedAt.IsZero() {
			createdAt := entry.CreatedAt.UTC()
			if minTime == nil || createdAt.Before(*minTime) {
				copy := createdAt
				minTime = &copy
			}
			if maxTime == nil || createdAt.After(*maxTime) {
				copy := createdAt
				maxTime = &copy
			}
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetEntry](buf)
	if _, err := writer.Write(rows); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return ParquetEncodeResult{
		Data:         buf.Bytes(),
		RecordCount:  int64(len(rows)),
		MinCreatedAt: minTime,
		MaxCreatedAt: maxTime,
	}, nil
}
