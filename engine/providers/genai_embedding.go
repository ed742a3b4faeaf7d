package providers

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/BaSui01/memoryengine/engine/encoding"
)

// GenAIEmbeddingProvider embeds text with Google's Gemini embedding models,
// satisfying engine/encoding.EmbeddingProvider directly against the official
// SDK rather than a hand-rolled REST client.
type GenAIEmbeddingProvider struct {
	client *genai.Client
	model  string
	dim    int32
}

// NewGenAIEmbeddingProvider builds a provider against apiKey. model defaults
// to "gemini-embedding-001"; dim defaults to 768.
func NewGenAIEmbeddingProvider(ctx context.Context, apiKey, model string, dim int32) (*GenAIEmbeddingProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai embedding provider: api key required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if dim <= 0 {
		dim = 768
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAIEmbeddingProvider{client: client, model: model, dim: dim}, nil
}

func (p *GenAIEmbeddingProvider) Name() string  { return "genai:" + p.model }
func (p *GenAIEmbeddingProvider) Dimension() int { return int(p.dim) }

// Embed returns the embedding for text, truncated or zero-padded to the
// provider's configured dimension so every provider in the registry yields
// vectors of a predictable size.
func (p *GenAIEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	result, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &p.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("genai embed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("genai embed: no embeddings returned")
	}
	return encoding.ToUnitVector(fitDimension(result.Embeddings[0].Values, int(p.dim))), nil
}

func fitDimension(v []float32, dim int) []float32 {
	if len(v) == dim {
		return v
	}
	out := make([]float32, dim)
	copy(out, v)
	return out
}
