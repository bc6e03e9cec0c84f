package cache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/duckmesh/insightbot/internal/embedding"
	"github.com/duckmesh/insightbot/internal/observability"
	"github.com/duckmesh/insightbot/internal/store"
)

const DefaultSimilarityThreshold = 0.85

type Entry struct {
	Question  string
	Embedding []float32
	SQL       string
	Response  any
	CreatedAt time.Time
	hits      atomic.Int64
}

func (e *Entry) HitCount() int64 {
	return e.hits.Load()
}

type Match struct {
	Entry      *Entry
	Similarity float64
}

type Stats struct {
	TotalCachedQueries int     `json:"total_cached_queries"`
	TotalCacheHits     int64   `json:"total_cache_hits"`
	CacheHitRate       float64 `json:"cache_hit_rate"`
}

type Options struct {
	Threshold  float64
	MaxEntries int
	TTL        time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

// Semantic returns a stored answer for questions whose embedding is close enough to one already answered.
type Semantic struct {
	provider  embedding.Provider
	entries   store.Store[*Entry]
	threshold float64
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	dimension int
}

func New(provider embedding.Provider, opts Options) *Semantic {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 1000
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Semantic{
		provider:  provider,
		entries:   store.NewLRU[*Entry](opts.MaxEntries, opts.TTL, nil),
		threshold: opts.Threshold,
		logger:    opts.Logger.With(slog.String("component", "semantic_cache"), slog.String("provider", provider.ID())),
		now:       opts.Now,
		dimension: provider.Dimension(),
	}
}

// Lookup returns the entry with the highest similarity strictly above the threshold. Ties keep the
// first entry in store order. Embedding failures are reported as a miss.
func (c *Semantic) Lookup(ctx context.Context, question string) (Match, bool) {
	if c.entries.Len() == 0 {
		observability.ObserveCacheLookup("miss")
		return Match{}, false
	}
	vector, err := c.provider.Embed(ctx, question)
	if err != nil {
		c.logger.WarnContext(ctx, "cache embedding failed", slog.String("error", err.Error()))
		observability.ObserveCacheLookup("error")
		return Match{}, false
	}
	if !c.checkDimension(ctx, len(vector)) {
		observability.ObserveCacheLookup("miss")
		return Match{}, false
	}

	var (
		bestKey   string
		bestEntry *Entry
		bestScore float64
	)
	c.entries.Scan(func(key string, entry *Entry) bool {
		score := embedding.Cosine(vector, entry.Embedding)
		if score <= c.threshold {
			return true
		}
		if bestEntry == nil || score > bestScore {
			bestKey, bestEntry, bestScore = key, entry, score
		}
		return true
	})
	if bestEntry == nil {
		observability.ObserveCacheLookup("miss")
		return Match{}, false
	}

	c.entries.Get(bestKey)
	bestEntry.hits.Add(1)
	observability.ObserveCacheLookup("hit")
	c.logger.DebugContext(ctx, "cache hit",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.Float64("similarity", bestScore),
		slog.Int64("hit_count", bestEntry.HitCount()),
	)
	return Match{Entry: bestEntry, Similarity: bestScore}, true
}

// Store records an answered question. Re-storing the same normalized question replaces the entry.
func (c *Semantic) Store(ctx context.Context, question, sql string, response any) error {
	vector, err := c.provider.Embed(ctx, question)
	if err != nil {
		c.logger.WarnContext(ctx, "cache store skipped", slog.String("error", err.Error()))
		return err
	}
	c.checkDimension(ctx, len(vector))
	c.entries.Put(Key(question), &Entry{
		Question:  question,
		Embedding: vector,
		SQL:       sql,
		Response:  response,
		CreatedAt: c.now().UTC(),
	})
	return nil
}

func (c *Semantic) Stats() Stats {
	var stats Stats
	c.entries.Scan(func(_ string, entry *Entry) bool {
		stats.TotalCachedQueries++
		stats.TotalCacheHits += entry.HitCount()
		return true
	})
	denominator := max(1, int64(stats.TotalCachedQueries)+stats.TotalCacheHits)
	stats.CacheHitRate = float64(stats.TotalCacheHits) / float64(denominator) * 100
	return stats
}

func (c *Semantic) Flush() {
	c.entries.Purge()
}

func (c *Semantic) Len() int {
	return c.entries.Len()
}

// checkDimension flushes the cache when the provider starts returning vectors of a different size.
// It reports whether existing entries are comparable with the new vector.
func (c *Semantic) checkDimension(ctx context.Context, size int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension == size {
		return true
	}
	if c.dimension != 0 && c.entries.Len() > 0 {
		c.logger.WarnContext(ctx, "embedding dimension changed, flushing cache",
			slog.Int("previous", c.dimension),
			slog.Int("current", size),
		)
		c.entries.Purge()
		c.dimension = size
		return false
	}
	c.dimension = size
	return true
}

// Key normalizes a question into its cache key.
func Key(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}
