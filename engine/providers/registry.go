// Package providers adapts the teacher's LLM and embedding SDKs into the
// narrow interfaces engine/encoding expects, and resolves which
// implementation to use from environment configuration: "deterministic"
// (the zero-dependency default, good for tests), "context" (metadata-only
// semantic extraction), or a named external provider ("openai", "voyage",
// "cohere", "jina", "genai" for embeddings; "anthropic", "context" for
// semantic understanding).
package providers

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BaSui01/memoryengine/engine/encoding"
	"github.com/BaSui01/memoryengine/llm/embedding"
)

// EmbeddingProviderConfig selects and configures an embedding backend.
type EmbeddingProviderConfig struct {
	Kind       string // deterministic | openai | voyage | cohere | jina | genai
	APIKey     string
	Model      string
	Dimension  int
	BaseURL    string
	Timeout    time.Duration
}

// NewEmbeddingProvider resolves cfg.Kind into a concrete
// engine/encoding.EmbeddingProvider. An empty or unknown Kind falls back to
// the deterministic provider so the engine always has something usable.
func NewEmbeddingProvider(ctx context.Context, cfg EmbeddingProviderConfig) (encoding.EmbeddingProvider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "deterministic", "local", "hash":
		return encoding.NewDeterministicProvider(cfg.Dimension), nil

	case "genai", "gemini":
		return NewGenAIEmbeddingProvider(ctx, cfg.APIKey, cfg.Model, int32(cfg.Dimension))

	case "openai":
		oaCfg := embedding.DefaultOpenAIConfig()
		applyHTTPOverrides(&oaCfg.APIKey, &oaCfg.Model, &oaCfg.BaseURL, &oaCfg.Timeout, cfg)
		if cfg.Dimension > 0 {
			oaCfg.Dimensions = cfg.Dimension
		}
		return NewHTTPEmbeddingAdapter(embedding.NewOpenAIProvider(oaCfg)), nil

	case "voyage":
		vCfg := embedding.DefaultVoyageConfig()
		applyHTTPOverrides(&vCfg.APIKey, &vCfg.Model, &vCfg.BaseURL, &vCfg.Timeout, cfg)
		return NewHTTPEmbeddingAdapter(embedding.NewVoyageProvider(vCfg)), nil

	case "cohere":
		cCfg := embedding.DefaultCohereConfig()
		applyHTTPOverrides(&cCfg.APIKey, &cCfg.Model, &cCfg.BaseURL, &cCfg.Timeout, cfg)
		return NewHTTPEmbeddingAdapter(embedding.NewCohereProvider(cCfg)), nil

	case "jina":
		jCfg := embedding.DefaultJinaConfig()
		applyHTTPOverrides(&jCfg.APIKey, &jCfg.Model, &jCfg.BaseURL, &jCfg.Timeout, cfg)
		return NewHTTPEmbeddingAdapter(embedding.NewJinaProvider(jCfg)), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider kind %q", cfg.Kind)
	}
}

func applyHTTPOverrides(apiKey, model, baseURL *string, timeout *time.Duration, cfg EmbeddingProviderConfig) {
	if cfg.APIKey != "" {
		*apiKey = cfg.APIKey
	}
	if cfg.Model != "" {
		*model = cfg.Model
	}
	if cfg.BaseURL != "" {
		*baseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		*timeout = cfg.Timeout
	}
}

// SemanticProviderConfig selects and configures a semantic-understanding
// backend.
type SemanticProviderConfig struct {
	Kind   string // context | anthropic
	APIKey string
	Model  string
}

// NewSemanticProvider resolves cfg.Kind into a concrete
// engine/encoding.SemanticProvider, falling back to the metadata-only
// context provider.
func NewSemanticProvider(cfg SemanticProviderConfig) encoding.SemanticProvider {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "anthropic", "claude":
		return NewAnthropicSemanticProvider(cfg.APIKey, cfg.Model)
	default:
		return encoding.NewContextProvider()
	}
}

// EmbeddingProviderConfigFromEnv reads MEMORY_EMBEDDING_* environment
// variables, matching the convention the teacher's config loader uses for
// every other externally-configured subsystem.
func EmbeddingProviderConfigFromEnv() EmbeddingProviderConfig {
	return EmbeddingProviderConfig{
		Kind:      os.Getenv("MEMORY_EMBEDDING_PROVIDER"),
		APIKey:    os.Getenv("MEMORY_EMBEDDING_API_KEY"),
		Model:     os.Getenv("MEMORY_EMBEDDING_MODEL"),
		Dimension: envInt("MEMORY_EMBEDDING_DIMENSION", 256),
	}
}

// SemanticProviderConfigFromEnv reads MEMORY_SEMANTIC_* environment
// variables.
func SemanticProviderConfigFromEnv() SemanticProviderConfig {
	return SemanticProviderConfig{
		Kind:   os.Getenv("MEMORY_SEMANTIC_PROVIDER"),
		APIKey: os.Getenv("MEMORY_SEMANTIC_API_KEY"),
		Model:  os.Getenv("MEMORY_SEMANTIC_MODEL"),
	}
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n <= 0 {
		return fallback
	}
	return n
}
