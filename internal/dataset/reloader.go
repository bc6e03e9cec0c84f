package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/duckmesh/insightbot/internal/observability"
	"github.com/duckmesh/insightbot/internal/query"
	"github.com/duckmesh/insightbot/internal/schema"
)

// Target receives the schema of freshly loaded datasets.
type Target interface {
	SetSchema(info schema.Info)
	FlushCache()
}

type Summary struct {
	Tables     []string `json:"tables"`
	Skipped    bool     `json:"skipped"`
	DurationMs int64    `json:"duration_ms"`
}

type Reloader struct {
	Loader *Loader
	Engine query.Engine
	Target Target
	Schema schema.Options
	Logger *slog.Logger
	Clock  func() time.Time

	mu          sync.Mutex
	fingerprint string
}

// Reload loads every dataset, introspects the engine, publishes the schema and flushes cached answers
// computed against the previous data.
func (r *Reloader) Reload(ctx context.Context) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloadLocked(ctx, "")
}

// ReloadIfChanged reloads only when the source fingerprint differs from the last successful load.
func (r *Reloader) ReloadIfChanged(ctx context.Context) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fingerprint, err := r.Loader.Fingerprint(ctx)
	if err != nil {
		return Summary{}, err
	}
	if fingerprint == r.fingerprint {
		return Summary{Skipped: true}, nil
	}
	return r.reloadLocked(ctx, fingerprint)
}

func (r *Reloader) reloadLocked(ctx context.Context, fingerprint string) (Summary, error) {
	clock := r.Clock
	if clock == nil {
		clock = time.Now
	}
	start := clock()

	summary, err := r.run(ctx)
	summary.DurationMs = clock().Sub(start).Milliseconds()
	observability.ObserveDatasetReload(err)
	if err != nil {
		if r.Logger != nil {
			r.Logger.ErrorContext(ctx, "dataset reload failed", slog.Any("error", err), slog.Any("summary", summary))
		}
		return summary, err
	}

	if fingerprint == "" {
		if fp, fpErr := r.Loader.Fingerprint(ctx); fpErr == nil {
			fingerprint = fp
		}
	}
	r.fingerprint = fingerprint
	if r.Logger != nil {
		r.Logger.InfoContext(ctx, "dataset reload completed", slog.Any("summary", summary))
	}
	return summary, nil
}

func (r *Reloader) run(ctx context.Context) (Summary, error) {
	if r.Loader == nil || r.Engine == nil || r.Target == nil {
		return Summary{}, fmt.Errorf("reloader is not fully configured")
	}
	tables, err := r.Loader.Load(ctx)
	summary := Summary{Tables: tables}
	if err != nil {
		return summary, err
	}
	opts := r.Schema
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
	info, err := schema.Introspect(ctx, r.Engine, opts)
	if err != nil {
		return summary, fmt.Errorf("introspect schema: %w", err)
	}
	r.Target.SetSchema(info)
	r.Target.FlushCache()
	return summary, nil
}
