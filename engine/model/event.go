// Package model holds the data shapes that flow through the memory engine
// pipeline: the raw event a caller submits, the semantically encoded form
// produced by the encoder, and the record that ends up persisted.
package model

import (
	"strings"
	"time"
)

// StorageTier classifies where a memory record lands after the storage
// decision stage.
type StorageTier string

const (
	TierPersistent StorageTier = "persistent"
	TierEphemeral  StorageTier = "ephemeral"
	TierDiscard    StorageTier = "discard"
)

// Event is the raw input submitted for ingestion. TenantID scopes every
// downstream record and query to a single account.
type Event struct {
	TenantID    string
	EntityID    string
	EventType   string
	Description string
	Timestamp   time.Time
	Metadata    map[string]any
}

// Normalize fills in defaults and returns an error-describing string when
// the event is missing required fields. Callers should treat a non-empty
// return as a validation failure.
func (e *Event) Normalize(now func() time.Time) string {
	e.EntityID = strings.TrimSpace(e.EntityID)
	e.EventType = strings.TrimSpace(e.EventType)
	e.Description = strings.TrimSpace(e.Description)
	if e.EntityID == "" {
		return "entity_id is required"
	}
	if e.EventType == "" {
		return "event_type is required"
	}
	if e.Description == "" {
		return "description is required"
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now().UTC()
	} else {
		e.Timestamp = e.Timestamp.UTC()
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	return ""
}

// SemanticUnderstanding is what a SemanticProvider extracts from an event's
// context: the entities and relationships it mentions, the caller's intent,
// and a short summary of what happened.
type SemanticUnderstanding struct {
	Entities      []string
	Relationships []string
	Intent        string
	Summary       string
}

// ProcessedEvent is the output of stage 1: an event enriched with semantic
// understanding and both a raw and a semantic embedding.
type ProcessedEvent struct {
	EventID            string
	TenantID           string
	Timestamp          time.Time
	EntityID           string
	EventType          string
	Description        string
	EntityReferences   []string
	Embedding          []float32
	SemanticEmbedding  []float32
	Intent             string
	SemanticKey        string
	SemanticSummary    string
	Context            map[string]any
}

// MemorySnapshot captures the caller-observable state of the memory store
// at the moment a storage decision is made, used by the relevance scorer.
type MemorySnapshot struct {
	TotalMemories        int
	EntityReferenceCount int
	SimilarRecentCount   int
	GeneratedAt          time.Time
	Metadata             map[string]string
}

// StorageDecision is the stage-2 verdict on whether, where, and with what
// confidence a processed event should be persisted.
type StorageDecision struct {
	Store            bool
	StorageTier      StorageTier
	Confidence       float64
	DecayRate        float64
	DecayHalfLife    float64
	ShouldCompress   bool
	Rationale        string
	Trace            map[string]float64
}

// MemoryRecord is a persisted memory as returned to callers (retrieval,
// feedback, inspection). It mirrors the storage row but keeps embeddings as
// float32 slices for in-process use.
type MemoryRecord struct {
	MemoryID          string
	TenantID          string
	EventID           string
	Content           string
	Summary           string
	Intent            string
	Entities          []string
	Relationships     []string
	RawEmbedding      []float32
	SemanticEmbedding []float32
	SemanticKey       string
	RetrievalCount    int
	AvgOutcomeSignal  float64
	OutcomeCount      int
	StorageTier       StorageTier
	LatestImportance  float64
	IsCompressed      bool
	OriginalCount     int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PrimaryEntity returns the first entity reference, matching the
// convention that the submitting entity is always recorded first.
func (m *MemoryRecord) PrimaryEntity() string {
	if len(m.Entities) == 0 {
		return ""
	}
	return m.Entities[0]
}

// IsAssistantIntent reports whether the intent marks content authored by the
// assistant rather than observed from the user or environment.
func IsAssistantIntent(intent string) bool {
	intent = strings.ToLower(strings.TrimSpace(intent))
	return strings.HasPrefix(intent, "assistant_") || intent == "assistant_message"
}

// IsInferredIntent reports whether the intent marks a memory synthesized by
// the personalization engine rather than submitted directly.
func IsInferredIntent(intent string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(intent)), "inferred_")
}
