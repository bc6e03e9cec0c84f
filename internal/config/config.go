package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	EngineDuckDB   = "duckdb"
	EnginePostgres = "postgres"

	EmbeddingOpenAI  = "openai"
	EmbeddingOllama  = "ollama"
	EmbeddingHashing = "hashing"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	AI            AIConfig
	Embedding     EmbeddingConfig
	Cache         CacheConfig
	Memory        MemoryConfig
	Concepts      ConceptConfig
	Query         QueryConfig
	Reload        ReloadConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type AIConfig struct {
	BaseURL          string
	APIKey           string
	Model            string
	Temperature      float64
	Timeout          time.Duration
	StructuredOutput bool
}

type EmbeddingConfig struct {
	Provider  string
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
}

type CacheConfig struct {
	SimilarityThreshold float64
	MaxEntries          int
	TTL                 time.Duration
}

type MemoryConfig struct {
	MaxTurns    int
	MaxSessions int
	SessionTTL  time.Duration
}

type ConceptConfig struct {
	Threshold   float64
	CatalogFile string
}

type QueryConfig struct {
	Engine        string
	PostgresDSN   string
	Timeout       time.Duration
	RowLimit      int
	PrimaryTable  string
	Datasets      string
	Relationships string
	SampleLimit   int
}

type ReloadConfig struct {
	Watch    bool
	Schedule string
}

type ObjectStoreConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("INSIGHTBOT_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid INSIGHTBOT_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "INSIGHTBOT_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "INSIGHTBOT_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "INSIGHTBOT_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "INSIGHTBOT_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "INSIGHTBOT_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "INSIGHTBOT_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "INSIGHTBOT_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "INSIGHTBOT_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "INSIGHTBOT_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyDuration(lookup, "INSIGHTBOT_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyBool(lookup, "INSIGHTBOT_AI_STRUCTURED_OUTPUT", &cfg.AI.StructuredOutput) },
		func() error { return applyString(lookup, "INSIGHTBOT_EMBEDDING_PROVIDER", &cfg.Embedding.Provider) },
		func() error { return applyString(lookup, "INSIGHTBOT_EMBEDDING_BASE_URL", &cfg.Embedding.BaseURL) },
		func() error { return applyString(lookup, "INSIGHTBOT_EMBEDDING_API_KEY", &cfg.Embedding.APIKey) },
		func() error { return applyString(lookup, "INSIGHTBOT_EMBEDDING_MODEL", &cfg.Embedding.Model) },
		func() error { return applyInt(lookup, "INSIGHTBOT_EMBEDDING_DIMENSION", &cfg.Embedding.Dimension) },
		func() error { return applyDuration(lookup, "INSIGHTBOT_EMBEDDING_TIMEOUT", &cfg.Embedding.Timeout) },
		func() error {
			return applyFloat(lookup, "INSIGHTBOT_CACHE_SIMILARITY_THRESHOLD", &cfg.Cache.SimilarityThreshold)
		},
		func() error { return applyInt(lookup, "INSIGHTBOT_CACHE_MAX_ENTRIES", &cfg.Cache.MaxEntries) },
		func() error { return applyDuration(lookup, "INSIGHTBOT_CACHE_TTL", &cfg.Cache.TTL) },
		func() error { return applyInt(lookup, "INSIGHTBOT_MEMORY_MAX_TURNS", &cfg.Memory.MaxTurns) },
		func() error { return applyInt(lookup, "INSIGHTBOT_MEMORY_MAX_SESSIONS", &cfg.Memory.MaxSessions) },
		func() error { return applyDuration(lookup, "INSIGHTBOT_MEMORY_SESSION_TTL", &cfg.Memory.SessionTTL) },
		func() error { return applyFloat(lookup, "INSIGHTBOT_CONCEPT_THRESHOLD", &cfg.Concepts.Threshold) },
		func() error { return applyString(lookup, "INSIGHTBOT_CATALOG_FILE", &cfg.Concepts.CatalogFile) },
		func() error { return applyString(lookup, "INSIGHTBOT_QUERY_ENGINE", &cfg.Query.Engine) },
		func() error { return applyString(lookup, "INSIGHTBOT_QUERY_POSTGRES_DSN", &cfg.Query.PostgresDSN) },
		func() error { return applyDuration(lookup, "INSIGHTBOT_QUERY_TIMEOUT", &cfg.Query.Timeout) },
		func() error { return applyInt(lookup, "INSIGHTBOT_QUERY_ROW_LIMIT", &cfg.Query.RowLimit) },
		func() error { return applyString(lookup, "INSIGHTBOT_QUERY_PRIMARY_TABLE", &cfg.Query.PrimaryTable) },
		func() error { return applyString(lookup, "INSIGHTBOT_DATASETS", &cfg.Query.Datasets) },
		func() error { return applyString(lookup, "INSIGHTBOT_RELATIONSHIPS", &cfg.Query.Relationships) },
		func() error { return applyInt(lookup, "INSIGHTBOT_SCHEMA_SAMPLE_LIMIT", &cfg.Query.SampleLimit) },
		func() error { return applyBool(lookup, "INSIGHTBOT_RELOAD_WATCH", &cfg.Reload.Watch) },
		func() error { return applyString(lookup, "INSIGHTBOT_RELOAD_SCHEDULE", &cfg.Reload.Schedule) },
		func() error { return applyString(lookup, "INSIGHTBOT_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "INSIGHTBOT_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "INSIGHTBOT_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error {
			return applyString(lookup, "INSIGHTBOT_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID)
		},
		func() error {
			return applyString(lookup, "INSIGHTBOT_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "INSIGHTBOT_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "INSIGHTBOT_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error { return applyBool(lookup, "INSIGHTBOT_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "INSIGHTBOT_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	if cfg.Cache.SimilarityThreshold < 0 || cfg.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("cache similarity threshold must be within [0,1], got %v", cfg.Cache.SimilarityThreshold)
	}
	if cfg.Concepts.Threshold < -1 || cfg.Concepts.Threshold > 1 {
		return fmt.Errorf("concept threshold must be within [-1,1], got %v", cfg.Concepts.Threshold)
	}
	if cfg.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max entries must be > 0")
	}
	if cfg.Memory.MaxTurns <= 0 {
		return fmt.Errorf("memory max turns must be > 0")
	}
	if cfg.Memory.MaxSessions <= 0 {
		return fmt.Errorf("memory max sessions must be > 0")
	}
	if cfg.Query.Timeout <= 0 {
		return fmt.Errorf("query timeout must be > 0")
	}

	switch cfg.Query.Engine {
	case EngineDuckDB:
	case EnginePostgres:
		if cfg.Query.PostgresDSN == "" {
			return fmt.Errorf("postgres dsn is required when query engine is %q", EnginePostgres)
		}
	default:
		return fmt.Errorf("invalid INSIGHTBOT_QUERY_ENGINE: %q", cfg.Query.Engine)
	}

	switch cfg.Embedding.Provider {
	case EmbeddingOpenAI, EmbeddingOllama, EmbeddingHashing:
	default:
		return fmt.Errorf("invalid INSIGHTBOT_EMBEDDING_PROVIDER: %q", cfg.Embedding.Provider)
	}

	if cfg.Profile == ProfileProd {
		if cfg.AI.APIKey == "" {
			return fmt.Errorf("INSIGHTBOT_AI_API_KEY is required in prod")
		}
		if cfg.Embedding.Provider == EmbeddingOpenAI && cfg.Embedding.APIKey == "" && cfg.AI.APIKey == "" {
			return fmt.Errorf("INSIGHTBOT_EMBEDDING_API_KEY is required for the openai embedding provider")
		}
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "insightbot-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		AI: AIConfig{
			BaseURL:          "https://api.openai.com/v1",
			Model:            "gpt-4o-2024-08-06",
			Temperature:      0.1,
			Timeout:          30 * time.Second,
			StructuredOutput: true,
		},
		Embedding: EmbeddingConfig{
			Provider:  EmbeddingOpenAI,
			Model:     "text-embedding-3-small",
			Dimension: 0,
			Timeout:   15 * time.Second,
		},
		Cache: CacheConfig{
			SimilarityThreshold: 0.85,
			MaxEntries:          1000,
			TTL:                 24 * time.Hour,
		},
		Memory: MemoryConfig{
			MaxTurns:    10,
			MaxSessions: 10000,
			SessionTTL:  2 * time.Hour,
		},
		Concepts: ConceptConfig{
			Threshold: 0.6,
		},
		Query: QueryConfig{
			Engine:        EngineDuckDB,
			Timeout:       30 * time.Second,
			RowLimit:      200,
			SampleLimit:   10,
			Datasets:      "tiendas=data/tiendas.csv,maestro_tiendas=data/maestro_tiendas.csv",
			Relationships: "tiendas.tienda_id=maestro_tiendas.tienda_id",
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:        "localhost:9000",
			Region:          "us-east-1",
			Bucket:          "insightbot",
			AccessKeyID:     "minio",
			SecretAccessKey: "miniostorage",
			UseSSL:          false,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Embedding.Provider = EmbeddingHashing
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ObjectStore.UseSSL = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
