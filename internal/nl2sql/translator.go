package nl2sql

import (
	"context"

	"github.com/duckmesh/insightbot/internal/classify"
	"github.com/duckmesh/insightbot/internal/concept"
)

type Request struct {
	Question            string
	SchemaContext       string
	Concept             *concept.Concept
	PrimaryTable        string
	ConversationContext string
	FollowUp            *FollowUpContext
	Category            classify.Category
}

type FollowUpContext struct {
	PriorContext string
}

type InsightRequest struct {
	Question string
	Records  []map[string]any
}

type Translator interface {
	Generate(ctx context.Context, req Request) (Generation, error)
}

type InsightSynthesizer interface {
	Synthesize(ctx context.Context, req InsightRequest) (Insight, error)
}
