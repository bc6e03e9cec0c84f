package concept

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeProvider struct {
	vectors map[string][]float32
	fail    map[string]bool
}

func (f *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	if f.fail[text] {
		return nil, errors.New("embedding failed")
	}
	if vector, ok := f.vectors[text]; ok {
		return vector, nil
	}
	return []float32{0, 0, 1}, nil
}

func (f *fakeProvider) Dimension() int { return 3 }
func (f *fakeProvider) ID() string     { return "fake" }

func testConcepts() []Concept {
	return []Concept{
		{NaturalTerm: "regional performance", SQLPattern: "SELECT region FROM {table}", ContextKeywords: []string{"region", "zone"}},
		{NaturalTerm: "store type", SQLPattern: "SELECT tipo FROM {table}", ContextKeywords: []string{"format", "outlet"}},
	}
}

func TestMatchKeywordPhaseWinsInDeclarationOrder(t *testing.T) {
	provider := &fakeProvider{vectors: map[string][]float32{
		"regional performance region zone": {1, 0, 0},
		"store type format outlet":         {0, 1, 0},
		// Embedding strongly prefers the second concept.
		"outlet results by region": {0, 1, 0},
	}}
	m := NewMatcher(context.Background(), testConcepts(), provider, DefaultThreshold, nil)
	got, ok := m.Match(context.Background(), "outlet results by region")
	if !ok {
		t.Fatal("expected match")
	}
	if got.NaturalTerm != "regional performance" {
		t.Fatalf("Match() = %q, want keyword match on first declared concept", got.NaturalTerm)
	}
}

func TestMatchEmbeddingPhase(t *testing.T) {
	provider := &fakeProvider{vectors: map[string][]float32{
		"regional performance region zone": {1, 0, 0},
		"store type format outlet":         {0, 1, 0},
		"which kind of shop sells best":    {0.2, 0.9, 0},
		"unrelated question":               {0, 0.5, 0.9},
	}}
	m := NewMatcher(context.Background(), testConcepts(), provider, DefaultThreshold, nil)

	got, ok := m.Match(context.Background(), "which kind of shop sells best")
	if !ok || got.NaturalTerm != "store type" {
		t.Fatalf("Match() = %#v, %v", got, ok)
	}

	// cosine with (0,1,0) is about 0.49, below the threshold.
	if got, ok := m.Match(context.Background(), "unrelated question"); ok {
		t.Fatalf("Match() = %#v, want no match", got)
	}
}

func TestMatchEmbeddingFailures(t *testing.T) {
	provider := &fakeProvider{
		vectors: map[string][]float32{
			"store type format outlet":      {0, 1, 0},
			"which kind of shop sells best": {0, 1, 0},
		},
		fail: map[string]bool{"store type format outlet": true},
	}
	m := NewMatcher(context.Background(), testConcepts(), provider, DefaultThreshold, nil)
	if _, ok := m.Match(context.Background(), "which kind of shop sells best"); ok {
		t.Fatal("concept without embedding must not match semantically")
	}
	if got, ok := m.Match(context.Background(), "outlet revenue"); !ok || got.NaturalTerm != "store type" {
		t.Fatalf("keyword phase should still work, got %#v, %v", got, ok)
	}

	provider.fail["broken question"] = true
	if _, ok := m.Match(context.Background(), "broken question"); ok {
		t.Fatal("question embedding failure must be no match")
	}
}

func TestDefaultConceptsMatchSpanishQuestions(t *testing.T) {
	m := NewMatcher(context.Background(), DefaultConcepts(), nil, DefaultThreshold, nil)
	tests := map[string]string{
		"¿Cómo va el performance en cada zona?":       "performance por región",
		"¿Qué formato de tienda vende más?":           "mejor tipo de tienda",
		"Resultados del grupo control vs treatment":   "impacto del experimento",
		"Lista de las mejores tiendas del trimestre": "tiendas con mejor conversión",
	}
	for question, want := range tests {
		got, ok := m.Match(context.Background(), question)
		if !ok || got.NaturalTerm != want {
			t.Fatalf("Match(%q) = %q, %v, want %q", question, got.NaturalTerm, ok, want)
		}
	}
	if _, ok := m.Match(context.Background(), "¿Cuántos gerentes hay?"); ok {
		t.Fatal("expected no match without provider")
	}
}

func TestConceptSQL(t *testing.T) {
	c := DefaultConcepts()[3]
	got := c.SQL("tiendas")
	want := "SELECT tienda_id, tipo_tienda, region, conversion_rate, revenue FROM tiendas WHERE conversion_rate > (SELECT AVG(conversion_rate) FROM tiendas) ORDER BY conversion_rate DESC"
	if got != want {
		t.Fatalf("SQL() = %q", got)
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `primary_table: sales
relationships:
  - sales.store_id=stores.store_id
concepts:
  - natural_term: weekly revenue
    sql_pattern: SELECT week, SUM(revenue) FROM {table} GROUP BY week
    required_columns: [week, revenue]
    context_keywords: [weekly, per week]
lexicon:
  greetings: [howdy]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if catalog.PrimaryTable != "sales" || len(catalog.Relationships) != 1 {
		t.Fatalf("catalog = %#v", catalog)
	}
	if len(catalog.Concepts) != 1 || catalog.Concepts[0].SQL("sales") != "SELECT week, SUM(revenue) FROM sales GROUP BY week" {
		t.Fatalf("Concepts = %#v", catalog.Concepts)
	}
	if catalog.Lexicon == nil || len(catalog.Lexicon.Greetings) != 1 {
		t.Fatalf("Lexicon = %#v", catalog.Lexicon)
	}
}

func TestLoadCatalogDefaultsAndValidation(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, []byte("relationships: []\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	catalog, err := LoadCatalog(empty)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if len(catalog.Concepts) != len(DefaultConcepts()) {
		t.Fatalf("len(Concepts) = %d", len(catalog.Concepts))
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("concepts:\n  - sql_pattern: SELECT 1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := LoadCatalog(invalid); err == nil {
		t.Fatal("expected missing natural_term error")
	}

	if _, err := LoadCatalog(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}
