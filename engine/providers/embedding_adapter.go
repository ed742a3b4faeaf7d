package providers

import (
	"context"
	"fmt"

	"github.com/BaSui01/memoryengine/engine/encoding"
	"github.com/BaSui01/memoryengine/llm/embedding"
)

// HTTPEmbeddingAdapter wraps one of the llm/embedding.Provider
// implementations (OpenAI, Gemini, Cohere, Jina, Voyage) as an
// engine/encoding.EmbeddingProvider, converting float64 embeddings to the
// float32 vectors the memory engine stores and normalizing dimension.
type HTTPEmbeddingAdapter struct {
	inner embedding.Provider
}

// NewHTTPEmbeddingAdapter wraps an already-configured embedding.Provider.
func NewHTTPEmbeddingAdapter(inner embedding.Provider) *HTTPEmbeddingAdapter {
	return &HTTPEmbeddingAdapter{inner: inner}
}

func (a *HTTPEmbeddingAdapter) Name() string  { return a.inner.Name() }
func (a *HTTPEmbeddingAdapter) Dimension() int { return a.inner.Dimensions() }

func (a *HTTPEmbeddingAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	values, err := a.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding provider %s: %w", a.inner.Name(), err)
	}
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return encoding.ToUnitVector(out), nil
}
