package query

import (
	"context"
	"time"
)

// Result is the outcome of one statement. Statements that return a result set
// populate Columns and Rows and set HasRows; statements that only report a
// count populate RowsAffected.
type Result struct {
	Columns      []string
	Rows         [][]any
	HasRows      bool
	RowsAffected int64
	Duration     time.Duration
}

type Executor interface {
	Execute(ctx context.Context, sqlText string) (Result, error)
}
