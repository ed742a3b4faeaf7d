package encoding

import "context"

// EmbeddingProvider turns text into a fixed-dimension vector.
type EmbeddingProvider interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SemanticProvider extracts structured understanding (entities,
// relationships, intent, summary) from an event and its metadata context.
type SemanticProvider interface {
	Name() string
	Understand(ctx context.Context, eventType, description string, meta map[string]any) (Understanding, error)
}

// Understanding is what a SemanticProvider reports about a single event.
type Understanding struct {
	Entities      []string
	Relationships []string
	Intent        string
	Summary       string
}
