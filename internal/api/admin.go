package api

import (
	"net/http"

	"github.com/duckmesh/insightbot/internal/schema"
)

type schemaResponse struct {
	PrimaryTable  string                                    `json:"primary_table"`
	Tables        []schema.Table                            `json:"tables"`
	Relationships []string                                  `json:"relationships"`
	Samples       map[string]map[string][]any               `json:"samples"`
	Stats         map[string]map[string]schema.NumericStats `json:"stats"`
}

func handleStats(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, deps.Pipeline.Stats())
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema is not configured", false, nil)
		return
	}
	info := deps.Pipeline.Schema()
	relationships := make([]string, 0, len(info.Relationships))
	for _, rel := range info.Relationships {
		relationships = append(relationships, rel.String())
	}
	tables := info.Tables
	if tables == nil {
		tables = []schema.Table{}
	}
	writeJSON(w, http.StatusOK, schemaResponse{
		PrimaryTable:  info.PrimaryTable,
		Tables:        tables,
		Relationships: relationships,
		Samples:       info.Samples,
		Stats:         info.Stats,
	})
}

func handleFlushCache(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}
	deps.Pipeline.FlushCache()
	writeJSON(w, http.StatusOK, map[string]any{"status": "flushed"})
}

func handleReload(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Reloader == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "RELOAD_NOT_CONFIGURED", "dataset reload is not configured", false, nil)
		return
	}
	summary, err := deps.Reloader.Reload(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "RELOAD_FAILED", "dataset reload failed", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
