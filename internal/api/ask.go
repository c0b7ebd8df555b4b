package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/askql/askql/internal/auth"
	"github.com/askql/askql/internal/pipeline"
)

type askRequest struct {
	Question string `json:"question"`
	Explain  bool   `json:"explain"`
}

type executeRequest struct {
	SQL string `json:"sql"`
}

type executeResponse struct {
	Validation pipeline.ValidationOutcome `json:"validation"`
	Execution  *pipeline.ExecutionResult  `json:"execution,omitempty"`
	Result     *pipeline.Normalized       `json:"result,omitempty"`
}

// handleAsk runs the full question pipeline. Failures inside the pipeline are
// trapped into the result body, so the endpoint answers 200 whenever the
// request itself was well-formed.
func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "pipeline dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsk); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request askRequest
	if !decodeBody(w, r, &request) {
		return
	}

	writeJSON(w, http.StatusOK, deps.Pipeline.Ask(r.Context(), request.Question, request.Explain))
}

func handleGenerate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "pipeline dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsk); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request askRequest
	if !decodeBody(w, r, &request) {
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	writeJSON(w, http.StatusOK, deps.Pipeline.Generate(r.Context(), request.Question, request.Explain))
}

func handleValidate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleAsk); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request executeRequest
	if !decodeBody(w, r, &request) {
		return
	}

	writeJSON(w, http.StatusOK, pipeline.Validate(request.SQL))
}

// handleExecute runs caller-provided SQL through the validator and executor.
// Destructive statements never reach the database.
func handleExecute(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "pipeline dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleExecute); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request executeRequest
	if !decodeBody(w, r, &request) {
		return
	}

	validation := pipeline.Validate(request.SQL)
	if !validation.Passed {
		writeError(r.Context(), w, http.StatusBadRequest, "VALIDATION_FAILED", validation.Reason, false, map[string]any{
			"category": validation.Category,
		})
		return
	}

	execution := deps.Pipeline.Execute(r.Context(), request.SQL)
	normalized := pipeline.Normalize(execution)
	writeJSON(w, http.StatusOK, executeResponse{
		Validation: validation,
		Execution:  &execution,
		Result:     &normalized,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return false
	}
	return true
}
