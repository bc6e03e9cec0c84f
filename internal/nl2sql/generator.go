package nl2sql

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/duckmesh/insightbot/internal/llm"
	"github.com/duckmesh/insightbot/internal/query"
)

const (
	FallbackConfidence  = 0.1
	PlainTextConfidence = 0.5
	GuardConfidence     = 0.1

	fallbackRowLimit      = 10
	maxInsightTemperature = 0.5
)

// Generator implements Translator and InsightSynthesizer on top of a language model.
type Generator struct {
	model       llm.Model
	temperature float64
}

func NewGenerator(model llm.Model, temperature float64) *Generator {
	return &Generator{model: model, temperature: temperature}
}

func (g *Generator) Generate(ctx context.Context, req Request) (Generation, error) {
	resp, err := g.model.Generate(ctx, llm.Request{
		System:      sqlSystemPrompt,
		Prompt:      BuildSQLPrompt(req),
		Schema:      &SQLQuerySchema,
		Temperature: g.temperature,
	})
	if err != nil {
		return Generation{}, err
	}
	if resp.Kind != llm.KindStructured {
		return PlainText(resp.Content), nil
	}
	result, err := DecodeSQLGeneration(resp.Content)
	if err != nil {
		return Generation{}, err
	}
	return Structured(result), nil
}

func (g *Generator) Synthesize(ctx context.Context, req InsightRequest) (Insight, error) {
	prompt, err := BuildInsightPrompt(req)
	if err != nil {
		return Insight{}, err
	}
	resp, err := g.model.Generate(ctx, llm.Request{
		System:      insightSystemPrompt,
		Prompt:      prompt,
		Schema:      &DataInsightSchema,
		Temperature: InsightTemperature(g.temperature),
	})
	if err != nil {
		return Insight{}, err
	}
	if resp.Kind != llm.KindStructured {
		return Insight{KeyFinding: resp.Content}.Normalize(), nil
	}
	return DecodeInsight(resp.Content)
}

// InsightTemperature raises the generation temperature by 0.2, capped at 0.5.
func InsightTemperature(base float64) float64 {
	return math.Min(base+0.2, maxInsightTemperature)
}

// FallbackResult is used when SQL generation fails for any reason. Without a known table there is
// nothing safe to query and the result does not execute.
func FallbackResult(primaryTable string, cause error) SQLGenerationResult {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	if strings.TrimSpace(primaryTable) == "" {
		return SQLGenerationResult{
			Reasoning:         "Error in SQL generation: " + reason,
			BusinessContext:   "Unable to generate proper query and no dataset is loaded",
			Confidence:        FallbackConfidence,
			RequiresExecution: false,
		}
	}
	return SQLGenerationResult{
		SQL:               fmt.Sprintf("SELECT * FROM %s LIMIT %d", query.QuoteIdent(primaryTable), fallbackRowLimit),
		Reasoning:         "Error in SQL generation: " + reason,
		BusinessContext:   "Unable to generate proper query",
		Confidence:        FallbackConfidence,
		RequiresExecution: true,
	}
}

// FollowUpGuardResult answers a follow-up whose referent never appeared in the conversation.
func FollowUpGuardResult(referent []string) SQLGenerationResult {
	return SQLGenerationResult{
		SQL:               "SELECT 'No previous information about this topic' AS message",
		Reasoning:         fmt.Sprintf("The user asks about %q, which was not mentioned in previous questions.", strings.Join(referent, " ")),
		BusinessContext:   "I cannot answer this question because it refers to information that was not discussed previously.",
		Confidence:        GuardConfidence,
		RequiresExecution: false,
	}
}

// PlainTextResult turns free text into a non-executing answer.
func PlainTextResult(text string) SQLGenerationResult {
	return SQLGenerationResult{
		Reasoning:         "Model returned a plain text answer",
		BusinessContext:   text,
		Confidence:        PlainTextConfidence,
		RequiresExecution: false,
	}
}
