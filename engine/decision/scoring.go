// Package decision implements stage 2: turning a processed event and the
// current memory snapshot into a storage decision, plus the compression
// planner that folds repetitive clusters into a single summary memory.
package decision

import (
	"math"
	"time"

	"github.com/BaSui01/memoryengine/engine/model"
)

const (
	scoreAlpha          = 0.4
	scoreBeta           = 0.3
	scoreGamma          = 0.3
	recencyLambda       = 0.1
	frequencyLambda     = 0.3
)

// BootstrapRelevanceScore is the prior used before (or alongside) the
// learned importance model: a weighted blend of recency decay, frequency
// saturation, and entity-reference saturation.
func BootstrapRelevanceScore(recencyDays float64, frequencyCount, entityRefCount int) float64 {
	if recencyDays < 0 {
		recencyDays = 0
	}
	freq := float64(frequencyCount)
	if freq < 0 {
		freq = 0
	}
	entityRef := float64(entityRefCount)
	if entityRef < 0 {
		entityRef = 0
	}

	recencyTerm := scoreAlpha * math.Exp(-recencyLambda*recencyDays)
	frequencyTerm := scoreBeta * (1 - math.Exp(-frequencyLambda*freq))
	entityTerm := scoreGamma * math.Min(1, entityRef/10.0)
	return recencyTerm + frequencyTerm + entityTerm
}

// ScoreResult carries the blended confidence plus a trace of its inputs,
// surfaced to callers for observability and tests.
type ScoreResult struct {
	Confidence float64
	Trace      map[string]float64
}

// ImportancePredictor is satisfied by engine/importance.Model.
type ImportancePredictor interface {
	Predict(embedding []float32) float64
}

// Scorer blends the learned importance model with the bootstrap prior.
type Scorer struct {
	Model ImportancePredictor
	Now   func() time.Time
}

// Score computes the blended confidence for a processed event against the
// current memory snapshot: 0.85 * learned + 0.15 * bootstrap prior.
func (s *Scorer) Score(processed model.ProcessedEvent, snapshot model.MemorySnapshot) ScoreResult {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	modelConfidence := s.Model.Predict(processed.SemanticEmbedding)

	recencyDays := math.Max(now().Sub(processed.Timestamp).Hours()/24, 0)
	priorConfidence := BootstrapRelevanceScore(recencyDays, snapshot.SimilarRecentCount, snapshot.EntityReferenceCount)

	confidence := clamp01(0.85*modelConfidence + 0.15*priorConfidence)

	return ScoreResult{
		Confidence: confidence,
		Trace: map[string]float64{
			"model_confidence":      modelConfidence,
			"prior_confidence":      priorConfidence,
			"recency_days":          recencyDays,
			"similar_recent_count":  float64(snapshot.SimilarRecentCount),
			"entity_reference_count": float64(snapshot.EntityReferenceCount),
		},
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
