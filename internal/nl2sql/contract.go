package nl2sql

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/duckmesh/insightbot/internal/llm"
)

var ErrMalformedOutput = errors.New("malformed structured output")

type SQLGenerationResult struct {
	SQL               string  `json:"sql"`
	Reasoning         string  `json:"reasoning"`
	BusinessContext   string  `json:"business_context"`
	Confidence        float64 `json:"confidence"`
	RequiresExecution bool    `json:"requires_execution"`
}

type Insight struct {
	KeyFinding        string   `json:"key_finding"`
	SupportingMetrics []string `json:"supporting_metrics"`
	Recommendations   []string `json:"recommendations"`
	RelatedQuestions  []string `json:"related_questions"`
}

type GenerationKind int

const (
	GenerationStructured GenerationKind = iota
	GenerationPlainText
)

// Generation is either a structured SQL result or free text from a model that was not bound to the
// output contract.
type Generation struct {
	Kind       GenerationKind
	Structured SQLGenerationResult
	Text       string
}

func Structured(result SQLGenerationResult) Generation {
	return Generation{Kind: GenerationStructured, Structured: result}
}

func PlainText(text string) Generation {
	return Generation{Kind: GenerationPlainText, Text: text}
}

var SQLQuerySchema = llm.Schema{
	Name:        "sql_query",
	Description: "SQL query generated for a business question, with reasoning and confidence.",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sql":                map[string]any{"type": "string", "description": "The SQL query to execute"},
			"reasoning":          map[string]any{"type": "string", "description": "Step-by-step reasoning"},
			"business_context":   map[string]any{"type": "string", "description": "Business interpretation"},
			"confidence":         map[string]any{"type": "number", "description": "Confidence score between 0 and 1"},
			"requires_execution": map[string]any{"type": "boolean", "description": "Whether the SQL must be executed"},
		},
		"required":             []string{"sql", "reasoning", "business_context", "confidence", "requires_execution"},
		"additionalProperties": false,
	},
}

var DataInsightSchema = llm.Schema{
	Name:        "data_insight",
	Description: "Business insight derived from query results.",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"key_finding":        map[string]any{"type": "string", "description": "Main business insight"},
			"supporting_metrics": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"recommendations":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"related_questions":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required":             []string{"key_finding", "supporting_metrics", "recommendations", "related_questions"},
		"additionalProperties": false,
	},
}

// DecodeSQLGeneration parses a structured response. All fields are required and confidence is
// clamped into [0,1].
func DecodeSQLGeneration(content string) (SQLGenerationResult, error) {
	var raw struct {
		SQL               *string  `json:"sql"`
		Reasoning         *string  `json:"reasoning"`
		BusinessContext   *string  `json:"business_context"`
		Confidence        *float64 `json:"confidence"`
		RequiresExecution *bool    `json:"requires_execution"`
	}
	if err := decodeStrict(content, &raw); err != nil {
		return SQLGenerationResult{}, err
	}
	if raw.SQL == nil || raw.Reasoning == nil || raw.BusinessContext == nil || raw.Confidence == nil || raw.RequiresExecution == nil {
		return SQLGenerationResult{}, fmt.Errorf("%w: missing required field", ErrMalformedOutput)
	}
	result := SQLGenerationResult{
		SQL:               stripMarkdownSQL(*raw.SQL),
		Reasoning:         *raw.Reasoning,
		BusinessContext:   *raw.BusinessContext,
		Confidence:        clamp01(*raw.Confidence),
		RequiresExecution: *raw.RequiresExecution,
	}
	if result.RequiresExecution && strings.TrimSpace(result.SQL) == "" {
		return SQLGenerationResult{}, fmt.Errorf("%w: empty sql for an executing result", ErrMalformedOutput)
	}
	return result, nil
}

func DecodeInsight(content string) (Insight, error) {
	var raw struct {
		KeyFinding        *string  `json:"key_finding"`
		SupportingMetrics []string `json:"supporting_metrics"`
		Recommendations   []string `json:"recommendations"`
		RelatedQuestions  []string `json:"related_questions"`
	}
	if err := decodeStrict(content, &raw); err != nil {
		return Insight{}, err
	}
	if raw.KeyFinding == nil {
		return Insight{}, fmt.Errorf("%w: missing key_finding", ErrMalformedOutput)
	}
	return Insight{
		KeyFinding:        *raw.KeyFinding,
		SupportingMetrics: nonNil(raw.SupportingMetrics),
		Recommendations:   nonNil(raw.Recommendations),
		RelatedQuestions:  nonNil(raw.RelatedQuestions),
	}, nil
}

func NeutralInsight() Insight {
	return Insight{
		KeyFinding:        "Unable to generate insights",
		SupportingMetrics: []string{},
		Recommendations:   []string{},
		RelatedQuestions:  []string{},
	}
}

// Normalize replaces nil lists so the insight always serializes with arrays.
func (i Insight) Normalize() Insight {
	i.SupportingMetrics = nonNil(i.SupportingMetrics)
	i.Recommendations = nonNil(i.Recommendations)
	i.RelatedQuestions = nonNil(i.RelatedQuestions)
	return i
}

func decodeStrict(content string, dst any) error {
	decoder := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(stripMarkdownJSON(content)))))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}

func stripMarkdownJSON(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
	}
	return trimmed
}
