package decision

import (
	"math"

	"github.com/BaSui01/memoryengine/engine/model"
)

// DecayPredictor is satisfied by engine/decay.Learner.
type DecayPredictor interface {
	PredictDecayRate(semanticKey string) float64
}

// Logic combines the relevance scorer, decay rate lookup, and compression
// planner's trigger threshold into a single storage decision.
type Logic struct {
	Scorer              *Scorer
	Decay               DecayPredictor
	CompressionPlanner  *Planner
	PersistentThreshold float64
	EphemeralThreshold  float64
}

// NewLogic returns a Logic with the conventional thresholds: confidence
// >= 0.7 is persistent, >= 0.4 is ephemeral, anything lower is discarded.
func NewLogic(scorer *Scorer, decay DecayPredictor, planner *Planner) *Logic {
	return &Logic{
		Scorer:              scorer,
		Decay:               decay,
		CompressionPlanner:  planner,
		PersistentThreshold: 0.7,
		EphemeralThreshold:  0.4,
	}
}

// Decide scores the processed event, assigns a decay rate, picks a storage
// tier, and flags whether the entity/intent cluster is now large enough to
// trigger compression.
func (l *Logic) Decide(processed model.ProcessedEvent, snapshot model.MemorySnapshot) model.StorageDecision {
	score := l.Scorer.Score(processed, snapshot)

	rate := l.Decay.PredictDecayRate(processed.SemanticKey)
	halfLife := math.Inf(1)
	if rate > 0 {
		halfLife = math.Ln2 / rate
	}

	store := true
	tier := model.TierDiscard
	switch {
	case score.Confidence >= l.PersistentThreshold:
		tier = model.TierPersistent
	case score.Confidence >= l.EphemeralThreshold:
		tier = model.TierEphemeral
	default:
		store = false
	}

	shouldCompress := snapshot.SimilarRecentCount+1 >= l.CompressionPlanner.MinCount

	return model.StorageDecision{
		Store:          store,
		StorageTier:    tier,
		Confidence:     score.Confidence,
		DecayRate:      rate,
		DecayHalfLife:  halfLife,
		ShouldCompress: shouldCompress,
		Rationale:      "learned importance prediction",
		Trace:          score.Trace,
	}
}
