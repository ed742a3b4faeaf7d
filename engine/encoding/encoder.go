package encoding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/BaSui01/memoryengine/engine/model"
)

const (
	maxSemanticContentChars = 800
	maxSemanticSummaryChars = 280
)

// Encoder turns a raw Event into a ProcessedEvent by running a
// SemanticProvider over its description and metadata, then embedding both
// the raw description and the derived semantic text.
type Encoder struct {
	embedder EmbeddingProvider
	semantic SemanticProvider
}

// New builds an Encoder from the given embedding and semantic providers.
func New(embedder EmbeddingProvider, semantic SemanticProvider) *Encoder {
	return &Encoder{embedder: embedder, semantic: semantic}
}

// EncodeEvent produces a ProcessedEvent. The caller is expected to have
// already normalized the event (see model.Event.Normalize).
func (e *Encoder) EncodeEvent(ctx context.Context, eventID string, ev model.Event) (model.ProcessedEvent, error) {
	understanding, err := e.semantic.Understand(ctx, ev.EventType, ev.Description, ev.Metadata)
	if err != nil {
		return model.ProcessedEvent{}, fmt.Errorf("semantic understanding: %w", err)
	}

	entityRefs := dedupPreserveOrder(append([]string{ev.EntityID}, understanding.Entities...))

	rawEmbedding, err := e.embedder.Embed(ctx, ev.Description)
	if err != nil {
		return model.ProcessedEvent{}, fmt.Errorf("embed description: %w", err)
	}

	semanticText := buildSemanticText(understanding)
	semanticEmbedding, err := e.embedder.Embed(ctx, semanticText)
	if err != nil {
		return model.ProcessedEvent{}, fmt.Errorf("embed semantic text: %w", err)
	}

	clippedSummary := clipText(understanding.Summary, maxSemanticSummaryChars)
	semanticKey := computeSemanticKey(understanding.Intent, clippedSummary, understanding.Entities)

	return model.ProcessedEvent{
		EventID:           eventID,
		TenantID:          ev.TenantID,
		Timestamp:         ev.Timestamp,
		EntityID:          ev.EntityID,
		EventType:         ev.EventType,
		Description:       ev.Description,
		EntityReferences:  entityRefs,
		Embedding:         rawEmbedding,
		SemanticEmbedding: semanticEmbedding,
		Intent:            understanding.Intent,
		SemanticKey:       semanticKey,
		SemanticSummary:   clippedSummary,
		Context:           map[string]any{"entities": understanding.Entities, "relationships": understanding.Relationships},
	}, nil
}

// EncodeQuery embeds free-text retrieval queries the same way a
// description would be embedded, so query and memory vectors are
// comparable.
func (e *Encoder) EncodeQuery(ctx context.Context, query string) ([]float32, error) {
	return e.embedder.Embed(ctx, query)
}

func buildSemanticText(u Understanding) string {
	clippedSummary := clipText(u.Summary, maxSemanticSummaryChars)
	clippedContent := clipText(u.Summary, maxSemanticContentChars)
	lines := []string{
		clippedSummary,
		"intent:" + u.Intent,
		"entities:" + strings.Join(u.Entities, ","),
		"relationships:" + strings.Join(u.Relationships, ","),
		"content:" + clippedContent,
	}
	return strings.Join(lines, "\n")
}

func computeSemanticKey(intent, clippedSummary string, entities []string) string {
	lowerEntities := make([]string, len(entities))
	for i, e := range entities {
		lowerEntities[i] = strings.ToLower(e)
	}
	sort.Strings(lowerEntities)
	parts := []string{
		strings.ToLower(intent),
		strings.ToLower(clippedSummary),
		strings.Join(lowerEntities, ","),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// clipText collapses internal whitespace, then truncates to maxChars,
// appending an ellipsis when truncation actually removes content.
func clipText(value string, maxChars int) string {
	normalized := strings.Join(strings.Fields(value), " ")
	if len(normalized) <= maxChars {
		return normalized
	}
	if maxChars <= 3 {
		return normalized[:maxChars]
	}
	return strings.TrimRight(normalized[:maxChars-3], " ") + "..."
}

func dedupPreserveOrder(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
