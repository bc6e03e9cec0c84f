package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/duckmesh/insightbot/internal/cache"
	"github.com/duckmesh/insightbot/internal/classify"
	"github.com/duckmesh/insightbot/internal/concept"
	"github.com/duckmesh/insightbot/internal/embedding"
	"github.com/duckmesh/insightbot/internal/nl2sql"
	"github.com/duckmesh/insightbot/internal/query"
	"github.com/duckmesh/insightbot/internal/query/duckdb"
	"github.com/duckmesh/insightbot/internal/schema"
	"github.com/duckmesh/insightbot/internal/session"
)

type fakeTranslator struct {
	mu       sync.Mutex
	requests []nl2sql.Request
	generate func(req nl2sql.Request) (nl2sql.Generation, error)

	insightRequests []nl2sql.InsightRequest
	synthesize      func(req nl2sql.InsightRequest) (nl2sql.Insight, error)
}

func (f *fakeTranslator) Generate(_ context.Context, req nl2sql.Request) (nl2sql.Generation, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.generate == nil {
		return nl2sql.Structured(nl2sql.SQLGenerationResult{
			SQL:               "SELECT region, SUM(revenue) AS revenue FROM tiendas GROUP BY region",
			Reasoning:         "group by region",
			BusinessContext:   "Revenue split across regions",
			Confidence:        0.9,
			RequiresExecution: true,
		}), nil
	}
	return f.generate(req)
}

func (f *fakeTranslator) Synthesize(_ context.Context, req nl2sql.InsightRequest) (nl2sql.Insight, error) {
	f.mu.Lock()
	f.insightRequests = append(f.insightRequests, req)
	f.mu.Unlock()
	if f.synthesize == nil {
		return nl2sql.Insight{KeyFinding: "Norte leads", SupportingMetrics: []string{"Norte: 300"}}, nil
	}
	return f.synthesize(req)
}

func (f *fakeTranslator) generateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeTranslator) synthesizeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.insightRequests)
}

type fakeEngine struct {
	mu       sync.Mutex
	requests []query.Request
	result   query.Result
	err      error
}

func (f *fakeEngine) Execute(_ context.Context, req query.Request) (query.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return query.Result{}, f.err
	}
	return f.result, nil
}

func (f *fakeEngine) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func regionResult() query.Result {
	return query.Result{
		Columns: []string{"region", "revenue"},
		Rows:    [][]any{{"Norte", 300.0}, {"Sur", 100.0}},
	}
}

func newOrchestrator(t *testing.T, translator *fakeTranslator, engine query.Engine, mutate func(*Options)) *Orchestrator {
	t.Helper()
	provider := embedding.NewHashing(256)
	opts := Options{
		Cache:        cache.New(provider, cache.Options{Threshold: cache.DefaultSimilarityThreshold}),
		Memory:       session.New(session.Options{}),
		Translator:   translator,
		Engine:       engine,
		QueryTimeout: 5 * time.Second,
		RowLimit:     200,
		Schema: &schema.Info{
			Tables:       []schema.Table{{Name: "tiendas", Columns: []schema.Column{{Name: "region", Type: "VARCHAR"}}}},
			PrimaryTable: "tiendas",
		},
	}
	if mutate != nil {
		mutate(&opts)
	}
	o, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func TestAskGeneratesExecutesAndPersists(t *testing.T) {
	translator := &fakeTranslator{}
	engine := &fakeEngine{result: regionResult()}
	o := newOrchestrator(t, translator, engine, nil)

	resp, err := o.Ask(context.Background(), "What is the revenue by region?", "s1")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Cached {
		t.Fatal("first answer should not be cached")
	}
	if !resp.SQLExecuted || resp.Confidence != 0.9 {
		t.Fatalf("SQLExecuted/Confidence = %v/%v", resp.SQLExecuted, resp.Confidence)
	}
	if len(resp.Data) != 2 || resp.Data[0]["region"] != "Norte" {
		t.Fatalf("Data = %#v", resp.Data)
	}
	if resp.Answer != "Norte leads\n\n**Business Context:** Revenue split across regions" {
		t.Fatalf("Answer = %q", resp.Answer)
	}
	if resp.SessionID != "s1" {
		t.Fatalf("SessionID = %q", resp.SessionID)
	}
	if engine.requests[0].RowLimit != 200 {
		t.Fatalf("RowLimit = %d", engine.requests[0].RowLimit)
	}
	if got := len(translator.insightRequests[0].Records); got != 2 {
		t.Fatalf("insight records = %d", got)
	}
	if !strings.Contains(translator.requests[0].SchemaContext, "tiendas: region (VARCHAR)") {
		t.Fatalf("SchemaContext = %q", translator.requests[0].SchemaContext)
	}
	if translator.requests[0].PrimaryTable != "tiendas" {
		t.Fatalf("PrimaryTable = %q", translator.requests[0].PrimaryTable)
	}

	history := o.History("s1")
	if len(history) != 1 || history[0].SQLUsed != resp.SQLUsed || history[0].Answer != resp.Answer {
		t.Fatalf("History() = %#v", history)
	}
	if stats := o.Stats(); stats.Cache.TotalCachedQueries != 1 || stats.Sessions.ActiveSessions != 1 {
		t.Fatalf("Stats() = %#v", stats)
	}
}

func TestAskReturnsCachedAnswerForSimilarQuestion(t *testing.T) {
	translator := &fakeTranslator{}
	engine := &fakeEngine{result: regionResult()}
	o := newOrchestrator(t, translator, engine, nil)

	first, err := o.Ask(context.Background(), "What is the revenue by region?", "s1")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	second, err := o.Ask(context.Background(), "what is the revenue by region", "s2")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if !second.Cached {
		t.Fatal("second answer should be cached")
	}
	if second.SQLUsed != first.SQLUsed || second.Answer != first.Answer {
		t.Fatalf("cached answer changed: %#v vs %#v", second, first)
	}
	if second.SessionID != "s2" {
		t.Fatalf("SessionID = %q", second.SessionID)
	}
	if second.ExecutionTime < 0 {
		t.Fatalf("ExecutionTime = %v", second.ExecutionTime)
	}
	if translator.generateCalls() != 1 || engine.calls() != 1 {
		t.Fatalf("generate/engine calls = %d/%d", translator.generateCalls(), engine.calls())
	}
	if stats := o.Stats(); stats.Cache.TotalCacheHits != 1 {
		t.Fatalf("TotalCacheHits = %d", stats.Cache.TotalCacheHits)
	}
	if len(o.History("s2")) != 0 {
		t.Fatal("cache hit should not record a turn")
	}
}

func TestAskDissimilarQuestionMissesCache(t *testing.T) {
	translator := &fakeTranslator{}
	o := newOrchestrator(t, translator, &fakeEngine{result: regionResult()}, nil)

	if _, err := o.Ask(context.Background(), "What is the revenue by region?", ""); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	resp, err := o.Ask(context.Background(), "How many stores opened in 2023?", "")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Cached {
		t.Fatal("dissimilar question should miss the cache")
	}
	if translator.generateCalls() != 2 {
		t.Fatalf("generate calls = %d", translator.generateCalls())
	}
}

func TestAskFollowUpAboutUnknownTopicIsGuarded(t *testing.T) {
	translator := &fakeTranslator{}
	engine := &fakeEngine{result: regionResult()}
	o := newOrchestrator(t, translator, engine, nil)

	if _, err := o.Ask(context.Background(), "What is the revenue by region?", "s1"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	resp, err := o.Ask(context.Background(), "What about that product type?", "s1")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.SQLExecuted {
		t.Fatal("guarded follow-up must not execute SQL")
	}
	if resp.Confidence > 0.2 {
		t.Fatalf("Confidence = %v, want <= 0.2", resp.Confidence)
	}
	if translator.generateCalls() != 1 {
		t.Fatalf("generate calls = %d, want guard without model call", translator.generateCalls())
	}
	if engine.calls() != 1 {
		t.Fatalf("engine calls = %d", engine.calls())
	}
	if resp.Data[0]["type"] != "meta_response" {
		t.Fatalf("Data = %#v", resp.Data)
	}
	if len(o.History("s1")) != 2 {
		t.Fatalf("History() len = %d", len(o.History("s1")))
	}
}

func TestAskFollowUpAboutKnownTopicReachesModel(t *testing.T) {
	translator := &fakeTranslator{}
	o := newOrchestrator(t, translator, &fakeEngine{result: regionResult()}, nil)

	if _, err := o.Ask(context.Background(), "What is the revenue by region?", "s1"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if _, err := o.Ask(context.Background(), "Show me that region by month", "s1"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if translator.generateCalls() != 2 {
		t.Fatalf("generate calls = %d", translator.generateCalls())
	}
	req := translator.requests[1]
	if req.FollowUp == nil || !strings.Contains(req.FollowUp.PriorContext, "revenue by region") {
		t.Fatalf("FollowUp = %#v", req.FollowUp)
	}
	if !strings.Contains(req.ConversationContext, "User asked: What is the revenue by region?") {
		t.Fatalf("ConversationContext = %q", req.ConversationContext)
	}
}

func TestAskFollowUpAfterVerbIsGuarded(t *testing.T) {
	translator := &fakeTranslator{}
	engine := &fakeEngine{result: regionResult()}
	o := newOrchestrator(t, translator, engine, nil)

	if _, err := o.Ask(context.Background(), "What is the revenue by region?", "s1"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	resp, err := o.Ask(context.Background(), "Compare that product type against the rest", "s1")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Category != classify.CategoryFollowUp {
		t.Fatalf("Category = %q", resp.Category)
	}
	if resp.SQLExecuted || resp.Confidence > 0.2 {
		t.Fatalf("SQLExecuted/Confidence = %v/%v", resp.SQLExecuted, resp.Confidence)
	}
	if translator.generateCalls() != 1 || engine.calls() != 1 {
		t.Fatalf("generate/engine calls = %d/%d", translator.generateCalls(), engine.calls())
	}
	if !strings.Contains(resp.Reasoning, "product type") {
		t.Fatalf("Reasoning = %q", resp.Reasoning)
	}
}

func TestAskFollowUpWithGenericHeadReachesModel(t *testing.T) {
	translator := &fakeTranslator{}
	o := newOrchestrator(t, translator, &fakeEngine{result: regionResult()}, nil)

	if _, err := o.Ask(context.Background(), "What is the revenue by region?", "s1"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	resp, err := o.Ask(context.Background(), "Tell me more about that one", "s1")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if translator.generateCalls() != 2 {
		t.Fatalf("generate calls = %d, want model call", translator.generateCalls())
	}
	if req := translator.requests[1]; req.FollowUp == nil || !strings.Contains(req.FollowUp.PriorContext, "revenue by region") {
		t.Fatalf("FollowUp = %#v", req.FollowUp)
	}
	if !resp.SQLExecuted || resp.Confidence != 0.9 {
		t.Fatalf("SQLExecuted/Confidence = %v/%v", resp.SQLExecuted, resp.Confidence)
	}
}

func TestAskConversationDependentAnswersAreNotShared(t *testing.T) {
	translator := &fakeTranslator{generate: func(req nl2sql.Request) (nl2sql.Generation, error) {
		return nl2sql.Structured(nl2sql.SQLGenerationResult{
			SQL:             "SELECT 'history' AS message",
			BusinessContext: "Your conversation: " + req.ConversationContext,
			Confidence:      0.9,
		}), nil
	}}
	o := newOrchestrator(t, translator, &fakeEngine{result: regionResult()}, nil)

	if _, err := o.Ask(context.Background(), "How many stores are in the north?", "alice"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if _, err := o.Ask(context.Background(), "What did I ask first?", "alice"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	bob, err := o.Ask(context.Background(), "What did I ask first?", "bob")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if bob.Cached {
		t.Fatal("meta answer from another session must not be served from cache")
	}
	if strings.Contains(bob.Answer, "north") {
		t.Fatalf("Answer leaks another session: %q", bob.Answer)
	}
	if translator.generateCalls() != 3 {
		t.Fatalf("generate calls = %d", translator.generateCalls())
	}
	if got := len(o.History("bob")); got != 1 {
		t.Fatalf("History(bob) len = %d", got)
	}
	if got := o.Stats().Cache.TotalCachedQueries; got != 1 {
		t.Fatalf("TotalCachedQueries = %d, want only the data question", got)
	}
}

func TestAskFallsBackWhenGenerationFails(t *testing.T) {
	engine, err := duckdb.NewEngine(nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	if _, err := engine.Execute(context.Background(), query.Request{
		SQL: "CREATE TABLE tiendas AS SELECT range AS tienda_id, 'Norte' AS region FROM range(25)",
	}); err != nil {
		t.Fatalf("create table error = %v", err)
	}

	translator := &fakeTranslator{generate: func(nl2sql.Request) (nl2sql.Generation, error) {
		return nl2sql.Generation{}, fmt.Errorf("upstream: %w", context.DeadlineExceeded)
	}}
	o := newOrchestrator(t, translator, engine, nil)

	resp, err := o.Ask(context.Background(), "Which stores are best?", "")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.SQLUsed != `SELECT * FROM "tiendas" LIMIT 10` {
		t.Fatalf("SQLUsed = %q", resp.SQLUsed)
	}
	if resp.Confidence != nl2sql.FallbackConfidence {
		t.Fatalf("Confidence = %v", resp.Confidence)
	}
	if !strings.Contains(resp.Reasoning, "deadline exceeded") {
		t.Fatalf("Reasoning = %q", resp.Reasoning)
	}
	if len(resp.Data) == 0 || len(resp.Data) > 10 {
		t.Fatalf("Data rows = %d", len(resp.Data))
	}
	if _, ok := resp.Data[0]["error"]; ok {
		t.Fatalf("Data = %#v", resp.Data[0])
	}
}

func TestAskFallbackWithoutSchemaDoesNotExecute(t *testing.T) {
	translator := &fakeTranslator{generate: func(nl2sql.Request) (nl2sql.Generation, error) {
		return nl2sql.Generation{}, errors.New("model unavailable")
	}}
	engine := &fakeEngine{result: regionResult()}
	o := newOrchestrator(t, translator, engine, func(opts *Options) { opts.Schema = nil })

	resp, err := o.Ask(context.Background(), "Which stores are best?", "")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.SQLExecuted || engine.calls() != 0 {
		t.Fatalf("SQLExecuted = %v, engine calls = %d", resp.SQLExecuted, engine.calls())
	}
	if resp.SQLUsed != "" || resp.Confidence != nl2sql.FallbackConfidence {
		t.Fatalf("SQLUsed/Confidence = %q/%v", resp.SQLUsed, resp.Confidence)
	}
}

func TestAskTurnsEngineErrorIntoErrorRow(t *testing.T) {
	translator := &fakeTranslator{}
	o := newOrchestrator(t, translator, &fakeEngine{err: errors.New("column revenue not found")}, nil)

	resp, err := o.Ask(context.Background(), "What is the revenue by region?", "")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(resp.Data) != 1 || !strings.Contains(fmt.Sprint(resp.Data[0]["error"]), "column revenue not found") {
		t.Fatalf("Data = %#v", resp.Data)
	}
	if translator.synthesizeCalls() != 1 {
		t.Fatalf("synthesize calls = %d", translator.synthesizeCalls())
	}
}

func TestAskRejectsWritingSQL(t *testing.T) {
	translator := &fakeTranslator{generate: func(nl2sql.Request) (nl2sql.Generation, error) {
		return nl2sql.Structured(nl2sql.SQLGenerationResult{SQL: "DELETE FROM tiendas", Confidence: 0.8, RequiresExecution: true}), nil
	}}
	engine := &fakeEngine{result: regionResult()}
	o := newOrchestrator(t, translator, engine, nil)

	resp, err := o.Ask(context.Background(), "Remove all stores", "")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if engine.calls() != 0 {
		t.Fatalf("engine calls = %d", engine.calls())
	}
	if resp.SQLExecuted {
		t.Fatal("rejected SQL must not be reported as executed")
	}
	if _, ok := resp.Data[0]["error"]; !ok {
		t.Fatalf("Data = %#v", resp.Data)
	}
}

func TestAskSkipsExecutionWhenNotRequired(t *testing.T) {
	translator := &fakeTranslator{generate: func(nl2sql.Request) (nl2sql.Generation, error) {
		return nl2sql.Structured(nl2sql.SQLGenerationResult{
			SQL:             "SELECT 'You asked about revenue' AS message",
			BusinessContext: "You asked about revenue by region.",
			Confidence:      0.95,
		}), nil
	}}
	engine := &fakeEngine{result: regionResult()}
	o := newOrchestrator(t, translator, engine, nil)

	resp, err := o.Ask(context.Background(), "Explain the revenue metric", "s1")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if engine.calls() != 0 || resp.SQLExecuted {
		t.Fatalf("engine calls = %d, SQLExecuted = %v", engine.calls(), resp.SQLExecuted)
	}
	if resp.Data[0]["message"] != "No SQL execution required" || resp.Data[0]["type"] != "meta_response" {
		t.Fatalf("Data = %#v", resp.Data)
	}
	if o.Stats().Cache.TotalCachedQueries != 1 || len(o.History("s1")) != 1 {
		t.Fatal("skipped execution should still persist cache entry and turn")
	}
}

func TestAskPlainTextGenerationDoesNotExecute(t *testing.T) {
	translator := &fakeTranslator{generate: func(nl2sql.Request) (nl2sql.Generation, error) {
		return nl2sql.PlainText("Revenue is highest in Norte."), nil
	}}
	engine := &fakeEngine{result: regionResult()}
	o := newOrchestrator(t, translator, engine, nil)

	resp, err := o.Ask(context.Background(), "Where is revenue highest?", "")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.SQLExecuted || engine.calls() != 0 {
		t.Fatal("plain text answer must not execute")
	}
	if resp.Confidence != nl2sql.PlainTextConfidence {
		t.Fatalf("Confidence = %v", resp.Confidence)
	}
	if !strings.HasSuffix(resp.Answer, "Revenue is highest in Norte.") {
		t.Fatalf("Answer = %q", resp.Answer)
	}
}

func TestAskGreetingUsesCannedInsight(t *testing.T) {
	translator := &fakeTranslator{generate: func(nl2sql.Request) (nl2sql.Generation, error) {
		return nl2sql.Structured(nl2sql.SQLGenerationResult{BusinessContext: "Saludo", Confidence: 1}), nil
	}}
	o := newOrchestrator(t, translator, &fakeEngine{}, nil)

	resp, err := o.Ask(context.Background(), "hola", "")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if translator.synthesizeCalls() != 0 {
		t.Fatalf("synthesize calls = %d", translator.synthesizeCalls())
	}
	if resp.Insights.KeyFinding == "" || resp.Category != "greeting" {
		t.Fatalf("Insights/Category = %#v/%q", resp.Insights, resp.Category)
	}
	if translator.requests[0].Category != "greeting" {
		t.Fatalf("request category = %q", translator.requests[0].Category)
	}
}

func TestAskInsightFailureYieldsNeutralInsight(t *testing.T) {
	translator := &fakeTranslator{synthesize: func(nl2sql.InsightRequest) (nl2sql.Insight, error) {
		return nl2sql.Insight{}, errors.New("model unavailable")
	}}
	o := newOrchestrator(t, translator, &fakeEngine{result: regionResult()}, nil)

	resp, err := o.Ask(context.Background(), "What is the revenue by region?", "")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Insights.KeyFinding != "Unable to generate insights" || resp.Insights.Recommendations == nil {
		t.Fatalf("Insights = %#v", resp.Insights)
	}
}

func TestAskPassesMatchedConcept(t *testing.T) {
	translator := &fakeTranslator{}
	o := newOrchestrator(t, translator, &fakeEngine{result: regionResult()}, func(opts *Options) {
		opts.Concepts = concept.NewMatcher(context.Background(), concept.DefaultConcepts(), embedding.NewHashing(64), concept.DefaultThreshold, nil)
	})

	resp, err := o.Ask(context.Background(), "Which experiment won, control or treatment?", "")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if translator.requests[0].Concept == nil || translator.requests[0].Concept.NaturalTerm != "impacto del experimento" {
		t.Fatalf("Concept = %#v", translator.requests[0].Concept)
	}
	if resp.Concept != "impacto del experimento" {
		t.Fatalf("Response.Concept = %q", resp.Concept)
	}
}

func TestAskWithoutSessionSkipsMemory(t *testing.T) {
	o := newOrchestrator(t, &fakeTranslator{}, &fakeEngine{result: regionResult()}, nil)

	resp, err := o.Ask(context.Background(), "What is the revenue by region?", "")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.SessionID != "" {
		t.Fatalf("SessionID = %q", resp.SessionID)
	}
	if stats := o.Stats(); stats.Sessions.ActiveSessions != 0 {
		t.Fatalf("ActiveSessions = %d", stats.Sessions.ActiveSessions)
	}
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	o := newOrchestrator(t, &fakeTranslator{}, &fakeEngine{}, nil)
	if _, err := o.Ask(context.Background(), "   ", "s1"); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("Ask() error = %v, want ErrEmptyQuestion", err)
	}
}

func TestSetSchemaAndFlushCache(t *testing.T) {
	translator := &fakeTranslator{}
	o := newOrchestrator(t, translator, &fakeEngine{result: regionResult()}, nil)

	o.SetSchema(schema.Info{
		Tables:       []schema.Table{{Name: "ventas", Columns: []schema.Column{{Name: "monto", Type: "DOUBLE"}}}},
		PrimaryTable: "ventas",
	})
	if got := o.Schema().PrimaryTable; got != "ventas" {
		t.Fatalf("Schema().PrimaryTable = %q", got)
	}
	if _, err := o.Ask(context.Background(), "Total monto?", ""); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if !strings.Contains(translator.requests[0].SchemaContext, "ventas: monto (DOUBLE)") {
		t.Fatalf("SchemaContext = %q", translator.requests[0].SchemaContext)
	}

	o.FlushCache()
	if o.Stats().Cache.TotalCachedQueries != 0 {
		t.Fatal("FlushCache() left entries behind")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for missing collaborators")
	}
}
