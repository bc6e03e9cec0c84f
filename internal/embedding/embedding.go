package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/duckmesh/insightbot/internal/config"
)

var ErrEmptyText = errors.New("embedding: empty text")

type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension reports the configured output size, or 0 when it is only known after the first call.
	Dimension() int
	ID() string
}

func New(cfg config.EmbeddingConfig, ai config.AIConfig) (Provider, error) {
	switch cfg.Provider {
	case config.EmbeddingOpenAI:
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = ai.APIKey
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = ai.BaseURL
		}
		return NewOpenAI(OpenAIConfig{
			BaseURL:   baseURL,
			APIKey:    apiKey,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		}), nil
	case config.EmbeddingOllama:
		return NewOllama(cfg.BaseURL, cfg.Model, cfg.Dimension, cfg.Timeout), nil
	case config.EmbeddingHashing:
		return NewHashing(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
}

// Cosine returns 0 when either vector has zero magnitude or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
