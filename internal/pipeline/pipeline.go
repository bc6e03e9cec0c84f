package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/duckmesh/insightbot/internal/cache"
	"github.com/duckmesh/insightbot/internal/classify"
	"github.com/duckmesh/insightbot/internal/concept"
	"github.com/duckmesh/insightbot/internal/nl2sql"
	"github.com/duckmesh/insightbot/internal/observability"
	"github.com/duckmesh/insightbot/internal/query"
	"github.com/duckmesh/insightbot/internal/schema"
	"github.com/duckmesh/insightbot/internal/session"
)

var ErrEmptyQuestion = errors.New("question is required")

type State string

const (
	StateStart             State = "START"
	StateCacheCheck        State = "CACHE_CHECK"
	StateCacheHit          State = "CACHE_HIT"
	StateCacheMiss         State = "CACHE_MISS"
	StateGenerateSQL       State = "GENERATE_SQL"
	StateExecute           State = "EXECUTE"
	StateSkipExecute       State = "SKIP_EXECUTE"
	StateSynthesizeInsight State = "SYNTHESIZE_INSIGHT"
	StatePersist           State = "PERSIST"
	StateDone              State = "DONE"
)

const businessContextSeparator = "\n\n**Business Context:** "

type Response struct {
	Question      string            `json:"question"`
	Answer        string            `json:"answer"`
	Data          []map[string]any  `json:"data"`
	SQLUsed       string            `json:"sql_used"`
	SQLExecuted   bool              `json:"sql_executed"`
	Reasoning     string            `json:"reasoning"`
	Confidence    float64           `json:"confidence"`
	Cached        bool              `json:"cached"`
	ExecutionTime float64           `json:"execution_time"`
	Insights      nl2sql.Insight    `json:"insights"`
	SessionID     string            `json:"session_id,omitempty"`
	Concept       string            `json:"concept,omitempty"`
	Category      classify.Category `json:"category"`
}

type Stats struct {
	Cache    cache.Stats   `json:"cache"`
	Sessions session.Stats `json:"sessions"`
}

type Options struct {
	Cache        *cache.Semantic
	Memory       *session.Memory
	Classifier   *classify.Classifier
	Concepts     *concept.Matcher
	Translator   nl2sql.Translator
	Insights     nl2sql.InsightSynthesizer
	Engine       query.Engine
	Schema       *schema.Info
	QueryTimeout time.Duration
	RowLimit     int
	Logger       *slog.Logger
	Now          func() time.Time
}

type schemaSnapshot struct {
	info    schema.Info
	context string
}

// Orchestrator answers one question at a time: cache check, SQL generation, optional execution,
// insight synthesis, then persistence into the cache and the session memory.
type Orchestrator struct {
	cache        *cache.Semantic
	memory       *session.Memory
	classifier   *classify.Classifier
	concepts     *concept.Matcher
	translator   nl2sql.Translator
	insights     nl2sql.InsightSynthesizer
	engine       query.Engine
	queryTimeout time.Duration
	rowLimit     int
	logger       *slog.Logger
	now          func() time.Time

	schema atomic.Pointer[schemaSnapshot]
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("semantic cache is required")
	}
	if opts.Memory == nil {
		return nil, fmt.Errorf("session memory is required")
	}
	if opts.Translator == nil {
		return nil, fmt.Errorf("sql translator is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("query engine is required")
	}
	if opts.Classifier == nil {
		opts.Classifier = classify.New(classify.DefaultLexicon())
	}
	if opts.Insights == nil {
		if synthesizer, ok := opts.Translator.(nl2sql.InsightSynthesizer); ok {
			opts.Insights = synthesizer
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	o := &Orchestrator{
		cache:        opts.Cache,
		memory:       opts.Memory,
		classifier:   opts.Classifier,
		concepts:     opts.Concepts,
		translator:   opts.Translator,
		insights:     opts.Insights,
		engine:       opts.Engine,
		queryTimeout: opts.QueryTimeout,
		rowLimit:     opts.RowLimit,
		logger:       opts.Logger,
		now:          opts.Now,
	}
	if opts.Schema != nil {
		o.SetSchema(*opts.Schema)
	} else {
		o.SetSchema(schema.Info{})
	}
	return o, nil
}

// Ask runs the pipeline for one question. Upstream failures degrade the answer instead of failing the
// call; the only error is an empty question.
func (o *Orchestrator) Ask(ctx context.Context, question, sessionID string) (Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{}, ErrEmptyQuestion
	}
	start := o.now()
	o.transition(ctx, StateStart, sessionID)

	cls := o.classifier.Classify(question)
	cacheable := usesCache(cls.Category)

	o.transition(ctx, StateCacheCheck, sessionID)
	if !cacheable {
		o.logger.DebugContext(ctx, "conversation dependent question bypasses cache",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("category", string(cls.Category)),
		)
	} else if match, ok := o.cache.Lookup(ctx, question); ok {
		if cached, ok := match.Entry.Response.(Response); ok {
			o.transition(ctx, StateCacheHit, sessionID)
			cached.Question = question
			cached.Cached = true
			cached.SessionID = sessionID
			cached.ExecutionTime = o.now().Sub(start).Seconds()
			o.finish(ctx, observability.AskOutcomeCached, start, sessionID)
			return cached, nil
		}
		o.logger.WarnContext(ctx, "cache entry has unexpected response type",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("type", fmt.Sprintf("%T", match.Entry.Response)),
		)
	}
	o.transition(ctx, StateCacheMiss, sessionID)

	snapshot := o.schema.Load()

	o.transition(ctx, StateGenerateSQL, sessionID)
	result, matched, outcome := o.generate(ctx, question, sessionID, snapshot, cls)

	var (
		data     []map[string]any
		executed bool
	)
	if result.RequiresExecution {
		o.transition(ctx, StateExecute, sessionID)
		data, executed = o.execute(ctx, result.SQL)
	} else {
		o.transition(ctx, StateSkipExecute, sessionID)
		data = []map[string]any{{"message": "No SQL execution required", "type": "meta_response"}}
		if outcome == observability.AskOutcomeGenerated {
			outcome = observability.AskOutcomeMeta
		}
	}

	o.transition(ctx, StateSynthesizeInsight, sessionID)
	insight := o.synthesize(ctx, question, cls, data)

	response := Response{
		Question:    question,
		Answer:      insight.KeyFinding + businessContextSeparator + result.BusinessContext,
		Data:        data,
		SQLUsed:     result.SQL,
		SQLExecuted: executed,
		Reasoning:   result.Reasoning,
		Confidence:  result.Confidence,
		Insights:    insight,
		Category:    cls.Category,
	}
	if matched != nil {
		response.Concept = matched.NaturalTerm
	}
	response.ExecutionTime = o.now().Sub(start).Seconds()

	o.transition(ctx, StatePersist, sessionID)
	if cacheable {
		if err := o.cache.Store(ctx, question, result.SQL, response); err != nil {
			observability.ObserveModelFallback(observability.StageEmbed)
		}
	}
	o.memory.AddTurn(sessionID, question, response.Answer, result.SQL)

	response.SessionID = sessionID
	o.finish(ctx, outcome, start, sessionID)
	return response, nil
}

// usesCache reports whether answers in the category can be shared across sessions. Meta and follow-up
// answers are built from one session's history.
func usesCache(category classify.Category) bool {
	return category != classify.CategoryMeta && category != classify.CategoryFollowUp
}

func (o *Orchestrator) generate(ctx context.Context, question, sessionID string, snapshot *schemaSnapshot, cls classify.Classification) (nl2sql.SQLGenerationResult, *concept.Concept, string) {
	followUp := o.memory.FollowUp(sessionID, question)
	if followUp.IsFollowUp && len(followUp.Classification.Referent) > 0 &&
		!o.memory.ResolveReferent(sessionID, followUp.Classification.Referent) {
		o.logger.InfoContext(ctx, "follow-up references unknown topic",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("session_id", sessionID),
			slog.String("referent", strings.Join(followUp.Classification.Referent, " ")),
		)
		return nl2sql.FollowUpGuardResult(followUp.Classification.Referent), nil, observability.AskOutcomeFollowUp
	}

	var matched *concept.Concept
	if o.concepts != nil {
		if c, ok := o.concepts.Match(ctx, question); ok {
			matched = &c
		}
	}

	req := nl2sql.Request{
		Question:            question,
		SchemaContext:       snapshot.context,
		Concept:             matched,
		PrimaryTable:        snapshot.info.PrimaryTable,
		ConversationContext: o.memory.ContextSummary(sessionID),
		Category:            cls.Category,
	}
	if followUp.IsFollowUp {
		req.FollowUp = &nl2sql.FollowUpContext{PriorContext: followUp.PriorContext}
	}

	generation, err := o.translator.Generate(ctx, req)
	if err != nil {
		observability.ObserveModelFallback(observability.StageGenerate)
		o.logger.WarnContext(ctx, "sql generation failed, using fallback query",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("error", err.Error()),
		)
		return nl2sql.FallbackResult(snapshot.info.PrimaryTable, err), matched, observability.AskOutcomeGenerated
	}
	if generation.Kind == nl2sql.GenerationPlainText {
		return nl2sql.PlainTextResult(generation.Text), matched, observability.AskOutcomeGenerated
	}
	return generation.Structured, matched, observability.AskOutcomeGenerated
}

// execute runs read-only SQL and reports whether it was sent to the engine. Failures become a single
// error record.
func (o *Orchestrator) execute(ctx context.Context, sqlText string) ([]map[string]any, bool) {
	if !query.IsReadOnly(sqlText) {
		observability.ObserveQueryExecution("rejected", 0)
		return query.ErrorRecords(query.ErrNotReadOnly), false
	}
	if o.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.queryTimeout)
		defer cancel()
	}
	start := o.now()
	result, err := o.engine.Execute(ctx, query.Request{SQL: sqlText, RowLimit: o.rowLimit})
	if err != nil {
		observability.ObserveQueryExecution("error", o.now().Sub(start))
		o.logger.WarnContext(ctx, "query execution failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("error", err.Error()),
		)
		return query.ErrorRecords(err), true
	}
	observability.ObserveQueryExecution("ok", o.now().Sub(start))
	return result.Records(), true
}

func (o *Orchestrator) synthesize(ctx context.Context, question string, cls classify.Classification, data []map[string]any) nl2sql.Insight {
	if canned, ok := o.classifier.Canned(cls); ok {
		return nl2sql.Insight{
			KeyFinding:        canned.KeyFinding,
			SupportingMetrics: canned.SupportingMetrics,
			Recommendations:   canned.Recommendations,
			RelatedQuestions:  canned.RelatedQuestions,
		}.Normalize()
	}
	if o.insights == nil {
		return nl2sql.NeutralInsight()
	}
	insight, err := o.insights.Synthesize(ctx, nl2sql.InsightRequest{Question: question, Records: data})
	if err != nil {
		observability.ObserveModelFallback(observability.StageInsight)
		o.logger.WarnContext(ctx, "insight synthesis failed, using neutral insight",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("error", err.Error()),
		)
		return nl2sql.NeutralInsight()
	}
	return insight.Normalize()
}

func (o *Orchestrator) transition(ctx context.Context, state State, sessionID string) {
	o.logger.DebugContext(ctx, "pipeline state",
		slog.String("state", string(state)),
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("session_id", sessionID),
	)
}

func (o *Orchestrator) finish(ctx context.Context, outcome string, start time.Time, sessionID string) {
	o.transition(ctx, StateDone, sessionID)
	observability.ObserveAsk(outcome, o.now().Sub(start))
	observability.SetMemoryGauges(o.cache.Len(), o.memory.Sessions())
}

func (o *Orchestrator) Stats() Stats {
	return Stats{Cache: o.cache.Stats(), Sessions: o.memory.Stats()}
}

func (o *Orchestrator) History(sessionID string) []session.Turn {
	return o.memory.History(sessionID)
}

func (o *Orchestrator) Schema() schema.Info {
	return o.schema.Load().info
}

// SetSchema swaps the schema used for prompts. In-flight requests keep the snapshot they started with.
func (o *Orchestrator) SetSchema(info schema.Info) {
	snapshot := &schemaSnapshot{info: info}
	if len(info.Tables) > 0 {
		snapshot.context = info.Render()
	}
	o.schema.Store(snapshot)
}

func (o *Orchestrator) FlushCache() {
	o.cache.Flush()
	observability.SetMemoryGauges(o.cache.Len(), o.memory.Sessions())
}

func (o *Orchestrator) Engine() query.Engine {
	return o.engine
}
