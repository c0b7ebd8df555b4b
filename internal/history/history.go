package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry is one recorded question round trip. Recording is best effort and
// never blocks or fails the pipeline that produced the entry.
type Entry struct {
	ID             string    `json:"id"`
	Question       string    `json:"question"`
	SQLText        string    `json:"sql_text"`
	Provider       string    `json:"provider,omitempty"`
	Model          string    `json:"model,omitempty"`
	Valid          bool      `json:"valid"`
	FailureReason  string    `json:"failure_reason,omitempty"`
	Succeeded      bool      `json:"succeeded"`
	RowCount       int       `json:"row_count"`
	DurationMS     float64   `json:"duration_ms"`
	TraceID        string    `json:"trace_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewEntryID() string {
	return uuid.NewString()
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

type Repository interface {
	Recorder
	List(ctx context.Context, limit int) ([]Entry, error)
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]Entry, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
