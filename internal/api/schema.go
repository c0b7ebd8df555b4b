package api

import (
	"errors"
	"net/http"

	"github.com/askql/askql/internal/auth"
	"github.com/askql/askql/internal/schema"
)

func handleListTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Inspector == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema inspector is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsk); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	tables, err := deps.Inspector.ListTables(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DATABASE_FAILURE", "failed to list tables", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tables": tables,
		"count":  len(tables),
	})
}

// handleSchemaDDL serves the DDL text the pipeline was started with, not a
// fresh introspection.
func handleSchemaDDL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "pipeline dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsk); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	schemaCtx := deps.Pipeline.Schema()
	writeJSON(w, http.StatusOK, map[string]any{
		"ddl":       schemaCtx.DDL(),
		"source":    schemaCtx.Source(),
		"loaded_at": schemaCtx.LoadedAt(),
	})
}

func handleTableSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Inspector == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema inspector is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsk); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	tableName := r.PathValue("table")
	table, err := deps.Inspector.TableSchema(r.Context(), tableName)
	if err != nil {
		if errors.Is(err, schema.ErrTableNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "TABLE_NOT_FOUND", "table was not found", false, map[string]any{"table": tableName})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "DATABASE_FAILURE", "failed to inspect table", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, table)
}
