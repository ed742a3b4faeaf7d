// Package learning routes retrieval feedback to every model that can learn
// from it: the importance predictor, the per-topic decay rate, and the
// retrieval ranker.
package learning

import "github.com/BaSui01/memoryengine/engine/model"

// ImportanceModel is satisfied by engine/importance.Model.
type ImportanceModel interface {
	TrainBatch(embeddings [][]float32, targets []float64) float64
}

// DecayLearner is satisfied by engine/decay.Learner.
type DecayLearner interface {
	RecordOutcome(semanticKey string, ageDays float64, wasHelpful bool)
	Learn()
}

// WeightUpdater applies a single feedback observation to the importance
// model and the decay learner for one memory.
type WeightUpdater struct {
	Importance ImportanceModel
	Decay      DecayLearner
}

// Apply trains the importance model on (embedding, outcomeSignal) and
// records the decay observation, returning the importance training loss.
func (w *WeightUpdater) Apply(memory *model.MemoryRecord, outcomeSignal, ageDays float64) float64 {
	loss := w.Importance.TrainBatch([][]float32{memory.SemanticEmbedding}, []float64{clamp01((outcomeSignal + 1) / 2)})
	w.Decay.RecordOutcome(memory.SemanticKey, ageDays, outcomeSignal > 0)
	w.Decay.Learn()
	return loss
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
