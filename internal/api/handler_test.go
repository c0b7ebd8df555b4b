package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/askql/askql/internal/auth"
	"github.com/askql/askql/internal/config"
	"github.com/askql/askql/internal/history"
	"github.com/askql/askql/internal/maintenance"
	"github.com/askql/askql/internal/pipeline"
	"github.com/askql/askql/internal/schema"
)

type fakePipeline struct {
	askResult  pipeline.AskResult
	generation pipeline.GenerationResult
	execution  pipeline.ExecutionResult
	schemaCtx  schema.Context
	lastSQL    string
}

func (p *fakePipeline) Ask(_ context.Context, _ string, _ bool) pipeline.AskResult {
	return p.askResult
}

func (p *fakePipeline) Generate(_ context.Context, _ string, _ bool) pipeline.GenerationResult {
	return p.generation
}

func (p *fakePipeline) Execute(_ context.Context, sqlText string) pipeline.ExecutionResult {
	p.lastSQL = sqlText
	return p.execution
}

func (p *fakePipeline) Schema() schema.Context {
	return p.schemaCtx
}

type fakeInspector struct {
	tables   []schema.TableInfo
	byName   map[string]schema.TableSchema
	listErr  error
	tableErr error
}

func (i *fakeInspector) ListTables(_ context.Context) ([]schema.TableInfo, error) {
	return i.tables, i.listErr
}

func (i *fakeInspector) TableSchema(_ context.Context, tableName string) (schema.TableSchema, error) {
	if i.tableErr != nil {
		return schema.TableSchema{}, i.tableErr
	}
	table, ok := i.byName[tableName]
	if !ok {
		return schema.TableSchema{}, schema.ErrTableNotFound
	}
	return table, nil
}

type fakeHistoryReader struct {
	entries   []history.Entry
	lastLimit int
}

func (h *fakeHistoryReader) List(_ context.Context, limit int) ([]history.Entry, error) {
	h.lastLimit = limit
	return h.entries, nil
}

type fakeArchiveRunner struct {
	summary maintenance.ArchiveSummary
	err     error
}

func (a *fakeArchiveRunner) RunArchiveOnce(_ context.Context) (maintenance.ArchiveSummary, error) {
	return a.summary, a.err
}

func testConfig() config.Config {
	cfg, err := config.Load("askql-test", func(string) (string, bool) { return "", false })
	if err != nil {
		panic(err)
	}
	return cfg
}

func testDeps(p QueryPipeline) Dependencies {
	return Dependencies{
		Logger:   slog.New(slog.DiscardHandler),
		Pipeline: p,
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(), testDeps(&fakePipeline{}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"status":"ok"`) {
		t.Fatalf("body = %s", recorder.Body.String())
	}
}

func TestReadyEndpointReportsFailure(t *testing.T) {
	deps := testDeps(&fakePipeline{})
	deps.Readiness = func(context.Context) error { return fmt.Errorf("database unavailable") }
	handler := NewHandler(testConfig(), deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "NOT_READY") {
		t.Fatalf("body = %s", recorder.Body.String())
	}
}

func TestCombineReadinessChecksStopsAtFirstFailure(t *testing.T) {
	check := CombineReadinessChecks(
		nil,
		func(context.Context) error { return nil },
		func(context.Context) error { return fmt.Errorf("schema missing") },
	)
	if err := check(context.Background()); err == nil {
		t.Fatal("expected combined check to fail")
	}
}

func TestAskEndpointReturnsPipelineResult(t *testing.T) {
	rowCount := 1
	p := &fakePipeline{askResult: pipeline.AskResult{
		Question:   "how many actors?",
		Generation: pipeline.GenerationResult{SQLText: "SELECT COUNT(*) FROM actor;", IsValid: true},
		Validation: pipeline.ValidationOutcome{Passed: true},
		Result:     &pipeline.Normalized{Succeeded: true, RowCount: rowCount},
	}}
	handler := NewHandler(testConfig(), testDeps(p))

	body := strings.NewReader(`{"question":"how many actors?"}`)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/ask", body))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
	}

	var decoded pipeline.AskResult
	if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if decoded.Generation.SQLText != "SELECT COUNT(*) FROM actor;" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestAskEndpointRejectsMalformedBody(t *testing.T) {
	handler := NewHandler(testConfig(), testDeps(&fakePipeline{}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader("{not json")))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "INVALID_JSON") {
		t.Fatalf("body = %s", recorder.Body.String())
	}
}

func TestValidateEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(), testDeps(&fakePipeline{}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/validate", strings.NewReader(`{"sql":"DROP TABLE actor"}`)))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "DESTRUCTIVE_OPERATION") {
		t.Fatalf("body = %s", recorder.Body.String())
	}
}

func TestExecuteEndpointRejectsDestructiveSQL(t *testing.T) {
	p := &fakePipeline{}
	handler := NewHandler(testConfig(), testDeps(p))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/execute", strings.NewReader(`{"sql":"DROP TABLE actor"}`)))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
	}
	if !strings.Contains(recorder.Body.String(), "VALIDATION_FAILED") {
		t.Fatalf("body = %s", recorder.Body.String())
	}
	if p.lastSQL != "" {
		t.Fatalf("executor received %q for rejected statement", p.lastSQL)
	}
}

func TestExecuteEndpointRunsValidSQL(t *testing.T) {
	p := &fakePipeline{execution: pipeline.ExecutionResult{
		Succeeded: true,
		HasRows:   true,
		Columns:   []string{"?column?"},
		Rows:      [][]any{{float64(1)}},
	}}
	handler := NewHandler(testConfig(), testDeps(p))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/execute", strings.NewReader(`{"sql":"SELECT 1"}`)))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
	}
	if p.lastSQL != "SELECT 1" {
		t.Fatalf("lastSQL = %q", p.lastSQL)
	}
	if !strings.Contains(recorder.Body.String(), `"row_count":1`) {
		t.Fatalf("body = %s", recorder.Body.String())
	}
}

func TestSchemaTableNotFound(t *testing.T) {
	deps := testDeps(&fakePipeline{})
	deps.Inspector = &fakeInspector{byName: map[string]schema.TableSchema{}}
	handler := NewHandler(testConfig(), deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/schema/tables/nonexistent", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "TABLE_NOT_FOUND") {
		t.Fatalf("body = %s", recorder.Body.String())
	}
}

func TestSchemaListTables(t *testing.T) {
	deps := testDeps(&fakePipeline{})
	deps.Inspector = &fakeInspector{tables: []schema.TableInfo{{TableName: "actor", RowCount: 200, ColumnCount: 4}}}
	handler := NewHandler(testConfig(), deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"table_name":"actor"`) {
		t.Fatalf("body = %s", recorder.Body.String())
	}
}

func TestSchemaDDLServesLoadedContext(t *testing.T) {
	p := &fakePipeline{schemaCtx: schema.NewContext("CREATE TABLE actor ();", "file:ddl.sql", time.Now())}
	handler := NewHandler(testConfig(), testDeps(p))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/schema/ddl", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "CREATE TABLE actor") {
		t.Fatalf("body = %s", recorder.Body.String())
	}
}

func TestExamplesEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(), testDeps(&fakePipeline{}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/examples", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "most rented films") {
		t.Fatalf("body = %s", recorder.Body.String())
	}
}

func TestHistoryEndpointUsesQueryLimit(t *testing.T) {
	reader := &fakeHistoryReader{entries: []history.Entry{{ID: "id-1", Question: "q"}}}
	deps := testDeps(&fakePipeline{})
	deps.History = reader
	deps.HistoryLimit = 50
	handler := NewHandler(testConfig(), deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/history?limit=5", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if reader.lastLimit != 5 {
		t.Fatalf("lastLimit = %d", reader.lastLimit)
	}
}

func TestHistoryArchiveEndpoint(t *testing.T) {
	deps := testDeps(&fakePipeline{})
	deps.Archive = &fakeArchiveRunner{summary: maintenance.ArchiveSummary{EntriesArchived: 3, Batches: 1}}
	handler := NewHandler(testConfig(), deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/history/archive", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
	}
	if !strings.Contains(recorder.Body.String(), `"entries_archived":3`) {
		t.Fatalf("body = %s", recorder.Body.String())
	}
}

func TestAuthRequiredGatesProtectedRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Required = true

	validator, err := auth.NewStaticAPIKeyValidator("ask-key:alice:ask,exec-key:bob:ask|execute")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	deps := testDeps(&fakePipeline{execution: pipeline.ExecutionResult{Succeeded: true}})
	deps.AuthMiddleware = auth.Middleware(deps.Logger, validator)
	handler := NewHandler(cfg, deps)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"q"}`)))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", recorder.Code)
	}

	request := httptest.NewRequest(http.MethodPost, "/v1/execute", strings.NewReader(`{"sql":"SELECT 1"}`))
	request.Header.Set("X-API-Key", "ask-key")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("forbidden status = %d body = %s", recorder.Code, recorder.Body.String())
	}

	request = httptest.NewRequest(http.MethodPost, "/v1/execute", strings.NewReader(`{"sql":"SELECT 1"}`))
	request.Header.Set("X-API-Key", "exec-key")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("authorized status = %d body = %s", recorder.Code, recorder.Body.String())
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("health status = %d", recorder.Code)
	}
}
