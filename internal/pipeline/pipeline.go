package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/askql/askql/internal/history"
	"github.com/askql/askql/internal/nl2sql"
	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/query"
	"github.com/askql/askql/internal/schema"
)

// GenerationResult is the trapped outcome of one model call. SQLText is
// non-empty whenever IsValid is true.
type GenerationResult struct {
	SQLText           string `json:"sql_text"`
	Explanation       string `json:"explanation,omitempty"`
	Provider          string `json:"provider,omitempty"`
	Model             string `json:"model,omitempty"`
	IsValid           bool   `json:"is_valid"`
	ValidationMessage string `json:"validation_message,omitempty"`
}

// AskResult is the full trace of one question round trip. Execution and
// Result stay nil when validation gated the statement before the database.
type AskResult struct {
	Question   string            `json:"question"`
	Generation GenerationResult  `json:"generation"`
	Validation ValidationOutcome `json:"validation"`
	Execution  *ExecutionResult  `json:"execution,omitempty"`
	Result     *Normalized       `json:"result,omitempty"`
}

// Pipeline wires generator, validator, executor and normalizer into the
// synchronous question flow. It is stateless per invocation; the only shared
// state is the read-only schema context and the executor's connection pool.
type Pipeline struct {
	generator nl2sql.Generator
	executor  query.Executor
	schema    schema.Context
	recorder  history.Recorder
	logger    *slog.Logger
}

func New(generator nl2sql.Generator, executor query.Executor, schemaCtx schema.Context, recorder history.Recorder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		generator: generator,
		executor:  executor,
		schema:    schemaCtx,
		recorder:  recorder,
		logger:    logger,
	}
}

func (p *Pipeline) Schema() schema.Context {
	return p.schema
}

// Generate asks the model for SQL. Transport failures and malformed model
// output come back as an invalid GenerationResult, never as an error.
func (p *Pipeline) Generate(ctx context.Context, question string, wantExplanation bool) GenerationResult {
	if strings.TrimSpace(question) == "" {
		return GenerationResult{
			ValidationMessage: "question is empty",
		}
	}

	result, err := p.generator.Generate(ctx, nl2sql.Request{
		Question:        question,
		Schema:          p.schema,
		WantExplanation: wantExplanation,
	})
	if err != nil {
		observability.ObserveGenerationFailure()
		p.logger.Warn("sql generation failed", "error", err)
		return GenerationResult{ValidationMessage: err.Error()}
	}
	return GenerationResult{
		SQLText:     result.SQL,
		Explanation: result.Explanation,
		Provider:    result.Provider,
		Model:       result.Model,
		IsValid:     true,
	}
}

// Execute runs a statement and traps every database error into the result.
// Callers are expected to have validated the statement first; only emptiness
// is re-checked here.
func (p *Pipeline) Execute(ctx context.Context, sqlText string) ExecutionResult {
	if strings.TrimSpace(sqlText) == "" {
		return ExecutionResult{ErrorMessage: "sql is required"}
	}

	result, err := p.executor.Execute(ctx, sqlText)
	if err != nil {
		observability.ObserveExecution(false, result.Duration)
		p.logger.Warn("query execution failed", "error", err)
		return ExecutionResult{
			DurationMS:   float64(result.Duration.Microseconds()) / 1000.0,
			ErrorMessage: err.Error(),
		}
	}
	observability.ObserveExecution(true, result.Duration)
	return executionResultFrom(result)
}

// Ask runs the full flow: generate, validate, execute, normalize. The
// validator's verdict gates execution; nothing reaches the database when it
// fails. Every outcome, including rejected ones, is recorded to history.
func (p *Pipeline) Ask(ctx context.Context, question string, wantExplanation bool) AskResult {
	observability.ObserveQuestion()
	started := time.Now()

	result := AskResult{Question: question}
	if strings.TrimSpace(question) == "" {
		result.Validation = ValidationOutcome{
			Category: CategoryEmptyInput,
			Reason:   "question is empty",
		}
		p.record(ctx, result, started)
		return result
	}

	result.Generation = p.Generate(ctx, question, wantExplanation)
	if !result.Generation.IsValid {
		result.Validation = ValidationOutcome{Reason: result.Generation.ValidationMessage}
		p.record(ctx, result, started)
		return result
	}

	result.Validation = Validate(result.Generation.SQLText)
	if !result.Validation.Passed {
		observability.ObserveValidationFailure(string(result.Validation.Category))
		p.logger.Info("generated sql rejected",
			"category", result.Validation.Category,
			"reason", result.Validation.Reason)
		p.record(ctx, result, started)
		return result
	}

	execution := p.Execute(ctx, result.Generation.SQLText)
	normalized := Normalize(execution)
	result.Execution = &execution
	result.Result = &normalized

	p.record(ctx, result, started)
	return result
}

// record persists the round trip when a recorder is configured. Failures are
// logged and dropped so history never breaks the answer path.
func (p *Pipeline) record(ctx context.Context, result AskResult, started time.Time) {
	if p.recorder == nil {
		return
	}

	entry := history.Entry{
		ID:         history.NewEntryID(),
		Question:   result.Question,
		SQLText:    result.Generation.SQLText,
		Provider:   result.Generation.Provider,
		Model:      result.Generation.Model,
		Valid:      result.Validation.Passed,
		DurationMS: float64(time.Since(started).Microseconds()) / 1000.0,
		TraceID:    observability.TraceIDFromContext(ctx),
		CreatedAt:  time.Now().UTC(),
	}
	if !result.Validation.Passed {
		entry.FailureReason = result.Validation.Reason
	}
	if result.Execution != nil {
		entry.Succeeded = result.Execution.Succeeded
		if result.Execution.ErrorMessage != "" {
			entry.FailureReason = result.Execution.ErrorMessage
		}
	}
	if result.Result != nil {
		entry.RowCount = result.Result.RowCount
	}

	if err := p.recorder.Record(ctx, entry); err != nil {
		p.logger.Warn("history record failed", "error", err)
	}
}
