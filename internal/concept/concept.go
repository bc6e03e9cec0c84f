package concept

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/duckmesh/insightbot/internal/classify"
	"github.com/duckmesh/insightbot/internal/embedding"
)

const DefaultThreshold = 0.6

type Concept struct {
	NaturalTerm     string   `yaml:"natural_term" json:"natural_term"`
	SQLPattern      string   `yaml:"sql_pattern" json:"sql_pattern"`
	RequiredColumns []string `yaml:"required_columns" json:"required_columns"`
	ContextKeywords []string `yaml:"context_keywords" json:"context_keywords"`
}

// SQL substitutes the {table} placeholder of the pattern.
func (c Concept) SQL(table string) string {
	return strings.ReplaceAll(c.SQLPattern, "{table}", table)
}

func (c Concept) embeddingText() string {
	return strings.TrimSpace(c.NaturalTerm + " " + strings.Join(c.ContextKeywords, " "))
}

func DefaultConcepts() []Concept {
	return []Concept{
		{
			NaturalTerm:     "performance por región",
			SQLPattern:      "SELECT region, SUM(revenue) AS total_revenue, AVG(conversion_rate) AS avg_conversion FROM {table} GROUP BY region",
			RequiredColumns: []string{"region", "revenue", "conversion_rate"},
			ContextKeywords: []string{"región", "area", "zona", "geographical", "performance regional"},
		},
		{
			NaturalTerm:     "mejor tipo de tienda",
			SQLPattern:      "SELECT tipo_tienda, COUNT(*) AS tiendas, AVG(revenue) AS avg_revenue FROM {table} GROUP BY tipo_tienda ORDER BY avg_revenue DESC",
			RequiredColumns: []string{"tipo_tienda", "revenue"},
			ContextKeywords: []string{"tipo", "formato", "mall", "street", "outlet", "store type"},
		},
		{
			NaturalTerm:     "impacto del experimento",
			SQLPattern:      "SELECT experimento, AVG(conversion_rate) AS avg_conversion, AVG(revenue) AS avg_revenue FROM {table} GROUP BY experimento",
			RequiredColumns: []string{"experimento", "conversion_rate", "revenue"},
			ContextKeywords: []string{"a/b test", "experiment", "control", "test", "treatment"},
		},
		{
			NaturalTerm:     "tiendas con mejor conversión",
			SQLPattern:      "SELECT tienda_id, tipo_tienda, region, conversion_rate, revenue FROM {table} WHERE conversion_rate > (SELECT AVG(conversion_rate) FROM {table}) ORDER BY conversion_rate DESC",
			RequiredColumns: []string{"tienda_id", "tipo_tienda", "region", "conversion_rate", "revenue"},
			ContextKeywords: []string{"top performers", "best stores", "high conversion", "mejores tiendas"},
		},
	}
}

type Catalog struct {
	Concepts      []Concept         `yaml:"concepts"`
	Lexicon       *classify.Lexicon `yaml:"lexicon"`
	Relationships []string          `yaml:"relationships"`
	PrimaryTable  string            `yaml:"primary_table"`
}

// LoadCatalog reads a YAML catalog. Missing concepts fall back to DefaultConcepts.
func LoadCatalog(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	var catalog Catalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for i, c := range catalog.Concepts {
		if strings.TrimSpace(c.NaturalTerm) == "" {
			return Catalog{}, fmt.Errorf("catalog concept %d: natural_term is required", i)
		}
	}
	if len(catalog.Concepts) == 0 {
		catalog.Concepts = DefaultConcepts()
	}
	return catalog, nil
}

type Matcher struct {
	concepts   []Concept
	embeddings [][]float32
	provider   embedding.Provider
	threshold  float64
	logger     *slog.Logger
}

// NewMatcher precomputes concept embeddings. A concept whose embedding fails is kept for keyword
// matching only.
func NewMatcher(ctx context.Context, concepts []Concept, provider embedding.Provider, threshold float64, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Matcher{
		concepts:   append([]Concept(nil), concepts...),
		embeddings: make([][]float32, len(concepts)),
		provider:   provider,
		threshold:  threshold,
		logger:     logger.With(slog.String("component", "concept_matcher")),
	}
	if provider == nil {
		return m
	}
	for i, c := range m.concepts {
		vector, err := provider.Embed(ctx, c.embeddingText())
		if err != nil {
			m.logger.WarnContext(ctx, "concept embedding failed",
				slog.String("concept", c.NaturalTerm),
				slog.String("error", err.Error()),
			)
			continue
		}
		m.embeddings[i] = vector
	}
	return m
}

// Match tries keyword containment in declaration order first, then the most similar concept strictly
// above the threshold.
func (m *Matcher) Match(ctx context.Context, question string) (Concept, bool) {
	for _, c := range m.concepts {
		for _, keyword := range c.ContextKeywords {
			if classify.ContainsWord(question, keyword) {
				return c, true
			}
		}
	}

	if m.provider == nil {
		return Concept{}, false
	}
	vector, err := m.provider.Embed(ctx, question)
	if err != nil {
		m.logger.WarnContext(ctx, "question embedding failed", slog.String("error", err.Error()))
		return Concept{}, false
	}

	best := -1
	bestScore := 0.0
	for i, conceptVector := range m.embeddings {
		if conceptVector == nil {
			continue
		}
		score := embedding.Cosine(vector, conceptVector)
		if score <= m.threshold {
			continue
		}
		if best < 0 || score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return Concept{}, false
	}
	return m.concepts[best], true
}

func (m *Matcher) Concepts() []Concept {
	return append([]Concept(nil), m.concepts...)
}
