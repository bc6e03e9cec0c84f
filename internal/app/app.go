package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/duckmesh/insightbot/internal/api"
	"github.com/duckmesh/insightbot/internal/cache"
	"github.com/duckmesh/insightbot/internal/classify"
	"github.com/duckmesh/insightbot/internal/concept"
	"github.com/duckmesh/insightbot/internal/config"
	"github.com/duckmesh/insightbot/internal/dataset"
	"github.com/duckmesh/insightbot/internal/embedding"
	"github.com/duckmesh/insightbot/internal/llm"
	"github.com/duckmesh/insightbot/internal/nl2sql"
	"github.com/duckmesh/insightbot/internal/pipeline"
	"github.com/duckmesh/insightbot/internal/query"
	"github.com/duckmesh/insightbot/internal/query/duckdb"
	"github.com/duckmesh/insightbot/internal/query/postgres"
	"github.com/duckmesh/insightbot/internal/schema"
	"github.com/duckmesh/insightbot/internal/session"
	"github.com/duckmesh/insightbot/internal/storage"
	s3store "github.com/duckmesh/insightbot/internal/storage/s3"
)

type pingCloser interface {
	query.Engine
	Ping(ctx context.Context) error
	Close() error
}

// App holds the wired question pipeline shared by the API server and the local CLI.
type App struct {
	Config       config.Config
	Logger       *slog.Logger
	Orchestrator *pipeline.Orchestrator
	Engine       query.Engine
	Reloader     *dataset.Reloader
	Sources      []dataset.Source
	Store        storage.ObjectStore

	engine pingCloser
}

type Options struct {
	// Translator replaces the model-backed generator when set.
	Translator nl2sql.Translator
	// Embedder replaces the configured embedding provider when set.
	Embedder embedding.Provider
}

// New wires every component from configuration and performs the initial dataset load. A failed initial
// load is logged and leaves the schema empty; POST /v1/reload can retry it.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sources, err := dataset.ParseSources(cfg.Query.Datasets)
	if err != nil {
		return nil, err
	}
	if cfg.Query.Engine == config.EnginePostgres {
		sources = nil
	}

	var store storage.ObjectStore
	if hasRemote(sources) {
		s3, err := s3store.New(ctx, s3store.ConfigFrom(cfg.ObjectStore))
		if err != nil {
			return nil, fmt.Errorf("initialize object store: %w", err)
		}
		store = s3
	}

	engine, schemaName, err := openEngine(ctx, cfg, store)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, Engine: engine, Sources: sources, Store: store, engine: engine}
	if err := a.wire(ctx, schemaName, opts); err != nil {
		_ = engine.Close()
		return nil, err
	}

	if _, err := a.Reloader.Reload(ctx); err != nil {
		logger.WarnContext(ctx, "initial dataset load failed", slog.Any("error", err))
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, schemaName string, opts Options) error {
	cfg := a.Config

	provider := opts.Embedder
	if provider == nil {
		var err error
		provider, err = embedding.New(cfg.Embedding, cfg.AI)
		if err != nil {
			return fmt.Errorf("initialize embedding provider: %w", err)
		}
	}

	catalog := concept.Catalog{Concepts: concept.DefaultConcepts()}
	if path := strings.TrimSpace(cfg.Concepts.CatalogFile); path != "" {
		loaded, err := concept.LoadCatalog(path)
		if err != nil {
			return err
		}
		catalog = loaded
	}

	lexicon := classify.DefaultLexicon()
	if catalog.Lexicon != nil {
		lexicon = catalog.Lexicon.WithDefaults()
	}
	classifier := classify.New(lexicon)

	rawRelationships := cfg.Query.Relationships
	if len(catalog.Relationships) > 0 {
		rawRelationships = strings.Join(catalog.Relationships, ",")
	}
	relationships, err := schema.ParseRelationships(rawRelationships)
	if err != nil {
		return err
	}
	primaryTable := cfg.Query.PrimaryTable
	if primaryTable == "" {
		primaryTable = catalog.PrimaryTable
	}
	if primaryTable == "" && len(a.Sources) > 0 {
		primaryTable = a.Sources[0].Name
	}

	translator := opts.Translator
	if translator == nil {
		model, err := llm.NewOpenAI(llm.OpenAIConfig{
			BaseURL:          cfg.AI.BaseURL,
			APIKey:           cfg.AI.APIKey,
			Model:            cfg.AI.Model,
			Timeout:          cfg.AI.Timeout,
			StructuredOutput: cfg.AI.StructuredOutput,
		})
		if err != nil {
			return fmt.Errorf("initialize language model: %w", err)
		}
		translator = nl2sql.NewGenerator(model, cfg.AI.Temperature)
	}

	orchestrator, err := pipeline.New(pipeline.Options{
		Cache: cache.New(provider, cache.Options{
			Threshold:  cfg.Cache.SimilarityThreshold,
			MaxEntries: cfg.Cache.MaxEntries,
			TTL:        cfg.Cache.TTL,
			Logger:     a.Logger,
		}),
		Memory: session.New(session.Options{
			MaxTurns:    cfg.Memory.MaxTurns,
			MaxSessions: cfg.Memory.MaxSessions,
			SessionTTL:  cfg.Memory.SessionTTL,
			Classifier:  classifier,
		}),
		Classifier:   classifier,
		Concepts:     concept.NewMatcher(ctx, catalog.Concepts, provider, cfg.Concepts.Threshold, a.Logger),
		Translator:   translator,
		Engine:       a.Engine,
		QueryTimeout: cfg.Query.Timeout,
		RowLimit:     cfg.Query.RowLimit,
		Logger:       a.Logger,
	})
	if err != nil {
		return err
	}
	a.Orchestrator = orchestrator

	var tables dataset.TableLoader
	if loader, ok := a.Engine.(dataset.TableLoader); ok {
		tables = loader
	}
	a.Reloader = &dataset.Reloader{
		Loader: &dataset.Loader{Tables: tables, Store: a.Store, Sources: a.Sources, Logger: a.Logger},
		Engine: a.Engine,
		Target: orchestrator,
		Schema: schema.Options{
			SchemaName:    schemaName,
			SampleLimit:   cfg.Query.SampleLimit,
			Relationships: relationships,
			PrimaryTable:  primaryTable,
		},
		Logger: a.Logger,
	}
	return nil
}

// Handler returns the HTTP API for the wired pipeline.
func (a *App) Handler() http.Handler {
	return api.NewHandler(a.Config, api.Dependencies{
		Logger:            a.Logger,
		Pipeline:          a.Orchestrator,
		Reloader:          a.Reloader,
		QueryEngine:       a.Engine,
		NewSessionID:      uuid.NewString,
		DependencyTimeout: time.Second,
		Readiness: api.CombineReadinessChecks(
			api.CheckEngine(a.engine),
			api.CheckSchemaLoaded(a.Orchestrator),
		),
	})
}

// RunReloaders starts the file watcher and the reload schedule when configured. It blocks until ctx is
// done and both have stopped.
func (a *App) RunReloaders(ctx context.Context) error {
	var runners []func(context.Context) error

	if a.Config.Reload.Watch {
		paths := dataset.LocalPaths(a.Sources)
		if len(paths) > 0 {
			watcher := &dataset.Watcher{
				Paths:  paths,
				Logger: a.Logger,
				OnChange: func(ctx context.Context) {
					a.reloadIfChanged(ctx, "watch")
				},
			}
			runners = append(runners, watcher.Run)
		}
	}
	if spec := strings.TrimSpace(a.Config.Reload.Schedule); spec != "" {
		scheduler, err := dataset.NewScheduler(spec, func(ctx context.Context) {
			a.reloadIfChanged(ctx, "schedule")
		}, a.Logger)
		if err != nil {
			return err
		}
		runners = append(runners, scheduler.Run)
	}
	if len(runners) == 0 {
		return nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, run := range runners {
		wg.Add(1)
		go func(run func(context.Context) error) {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(run)
	}
	wg.Wait()
	return firstErr
}

func (a *App) reloadIfChanged(ctx context.Context, trigger string) {
	summary, err := a.Reloader.ReloadIfChanged(ctx)
	if err != nil {
		a.Logger.ErrorContext(ctx, "dataset reload failed", slog.String("trigger", trigger), slog.Any("error", err))
		return
	}
	if !summary.Skipped {
		a.Logger.InfoContext(ctx, "datasets reloaded", slog.String("trigger", trigger), slog.Any("tables", summary.Tables))
	}
}

func (a *App) Close() error {
	if a.engine == nil {
		return nil
	}
	return a.engine.Close()
}

func openEngine(ctx context.Context, cfg config.Config, store storage.ObjectStore) (pingCloser, string, error) {
	switch cfg.Query.Engine {
	case config.EnginePostgres:
		engine, err := postgres.Open(ctx, postgres.Config{
			DSN:              cfg.Query.PostgresDSN,
			StatementTimeout: cfg.Query.Timeout,
		})
		if err != nil {
			return nil, "", err
		}
		return engine, "public", nil
	default:
		engine, err := duckdb.NewEngine(store)
		if err != nil {
			return nil, "", err
		}
		return engine, "main", nil
	}
}

func hasRemote(sources []dataset.Source) bool {
	for _, source := range sources {
		if source.Remote {
			return true
		}
	}
	return false
}
