package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/duckmesh/insightbot/internal/config"
	"github.com/duckmesh/insightbot/internal/dataset"
	"github.com/duckmesh/insightbot/internal/observability"
	"github.com/duckmesh/insightbot/internal/pipeline"
	"github.com/duckmesh/insightbot/internal/query"
	"github.com/duckmesh/insightbot/internal/schema"
	"github.com/duckmesh/insightbot/internal/session"
)

type ReadinessCheck func(ctx context.Context) error

// Pipeline is the subset of the orchestrator served over HTTP.
type Pipeline interface {
	Ask(ctx context.Context, question, sessionID string) (pipeline.Response, error)
	Stats() pipeline.Stats
	History(sessionID string) []session.Turn
	Schema() schema.Info
	FlushCache()
}

type Reloader interface {
	Reload(ctx context.Context) (dataset.Summary, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Pipeline          Pipeline
	Reloader          Reloader
	QueryEngine       query.Engine
	NewSessionID      func() string
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		handleNewSession(deps, w, r)
	})
	mux.HandleFunc("GET /v1/sessions/{session}/history", func(w http.ResponseWriter, r *http.Request) {
		handleHistory(deps, w, r)
	})
	mux.HandleFunc("POST /v1/ask", func(w http.ResponseWriter, r *http.Request) {
		handleAsk(deps, w, r)
	})
	mux.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})
	mux.HandleFunc("GET /v1/stats", func(w http.ResponseWriter, r *http.Request) {
		handleStats(deps, w, r)
	})
	mux.HandleFunc("GET /v1/schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	})
	mux.HandleFunc("POST /v1/cache/flush", func(w http.ResponseWriter, r *http.Request) {
		handleFlushCache(deps, w, r)
	})
	mux.HandleFunc("POST /v1/reload", func(w http.ResponseWriter, r *http.Request) {
		handleReload(deps, w, r)
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckEngine fails readiness while the query engine cannot be reached.
func CheckEngine(engine Pinger) ReadinessCheck {
	if engine == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return engine.Ping(ctx)
	}
}

// CheckSchemaLoaded fails readiness until at least one table has been introspected.
func CheckSchemaLoaded(p Pipeline) ReadinessCheck {
	return func(_ context.Context) error {
		if p == nil {
			return errors.New("pipeline is not configured")
		}
		if len(p.Schema().Tables) == 0 {
			return errors.New("no datasets loaded")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

// writeJSON encodes before writing the header so an unencodable payload still yields a JSON error body.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]any{
			"error_code": "RESPONSE_ENCODING_FAILED",
			"message":    err.Error(),
			"retryable":  false,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
