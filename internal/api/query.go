package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/duckmesh/insightbot/internal/query"
)

const maxQueryRowLimit = 10000

type queryRequest struct {
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit"`
}

type queryResponse struct {
	Columns []string       `json:"columns"`
	Rows    [][]any        `json:"rows"`
	Stats   map[string]any `json:"stats"`
}

// handleQuery runs a read-only statement directly against the engine, bypassing the question pipeline.
func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.QueryEngine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query engine is not configured", false, nil)
		return
	}

	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if !query.IsReadOnly(request.SQL) {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", query.ErrNotReadOnly.Error(), false, nil)
		return
	}
	if request.RowLimit < 0 || request.RowLimit > maxQueryRowLimit {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ROW_LIMIT", "row_limit must be between 0 and 10000", false, nil)
		return
	}

	result, err := deps.QueryEngine.Execute(r.Context(), query.Request{SQL: request.SQL, RowLimit: request.RowLimit})
	if err != nil {
		if errors.Is(err, query.ErrNotReadOnly) {
			writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", err.Error(), false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "query execution failed", false, map[string]any{"details": err.Error()})
		return
	}
	rows := result.Rows
	if rows == nil {
		rows = [][]any{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Columns: result.Columns,
		Rows:    rows,
		Stats: map[string]any{
			"duration_ms": result.Duration.Milliseconds(),
			"row_count":   len(rows),
		},
	})
}
