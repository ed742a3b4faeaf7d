// Package ranker scores retrieval candidates against a query. It blends a
// small trainable linear model with a fixed heuristic, leaning on the
// heuristic until the model has seen enough feedback to be trusted (the
// "warm" blend), matching the bootstrap/learned split used by the storage
// decision scorer in engine/decision.
package ranker

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/memoryengine/engine/encoding"
	"github.com/BaSui01/memoryengine/engine/model"
)

const (
	numFeatures = 8

	heuristicWeightSemantic   = 0.41
	heuristicWeightRaw        = 0.09
	heuristicWeightRecency    = 0.05
	heuristicWeightRetrieval  = 0.05
	heuristicWeightOutcome    = 0.09
	heuristicWeightImportance = 0.31

	warmThreshold  = 100
	warmBlendModel = 0.8
	warmBlendHeur  = 0.2

	learningRate = 1e-3
)

// intentPriors boosts intents that tend to carry durable, directly-useful
// information (especially inferred facts/preferences) over noisier
// conversational intents. assistant_* intents and unknown intents are
// handled outside the table by intentPriorFor.
var intentPriors = map[string]float64{
	"preference_stated":           1.28,
	"learning_progress":           1.22,
	"user_profile":                1.30,
	"user_fact":                   1.24,
	"user_question":               1.06,
	"inferred_learning_pattern":   1.26,
	"inferred_preference":         1.32,
	"inferred_user_fact":          1.34,
	"inferred_user_fact_conflict": 1.36,
	"assistant_response":          0.50,
	"assistant_message":           0.55,
}

const defaultIntentPrior = 1.0

// Features is the 8-dimension feature vector computed for a single
// candidate against a query.
type Features struct {
	SemanticSimilarity float64
	RawSimilarity      float64
	RecencyScore       float64
	RetrievalScore     float64
	OutcomeScore       float64
	ImportanceScore    float64
	LengthPenalty      float64
	IntentPrior        float64
}

func (f Features) vector() [numFeatures]float64 {
	return [numFeatures]float64{
		f.SemanticSimilarity, f.RawSimilarity, f.RecencyScore, f.RetrievalScore,
		f.OutcomeScore, f.ImportanceScore, f.LengthPenalty, f.IntentPrior,
	}
}

// Ranker scores and orders candidates for a query.
type Ranker struct {
	mu           sync.Mutex
	weights      [numFeatures]float64
	trained      int
	learningRate float64
}

// New returns a Ranker whose learned weights start at zero, so scoring
// falls back fully to the heuristic until enough feedback has been seen.
func New() *Ranker {
	return &Ranker{learningRate: learningRate}
}

// NewWithLearningRate is like New but overrides the gradient-step size. A
// non-positive rate falls back to the package default.
func NewWithLearningRate(rate float64) *Ranker {
	if rate <= 0 {
		rate = learningRate
	}
	return &Ranker{learningRate: rate}
}

// Rank scores every candidate against the query embedding and returns them
// sorted by descending score. Ties keep their original (preselect) order.
func (r *Ranker) Rank(queryEmbedding []float32, candidates []*model.MemoryRecord, now time.Time) []model.RankedMemory {
	out := make([]model.RankedMemory, 0, len(candidates))
	for _, c := range candidates {
		feats := computeFeatures(queryEmbedding, c, now)
		out = append(out, model.RankedMemory{Record: c, Score: r.score(feats)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func (r *Ranker) score(f Features) float64 {
	heuristic := heuristicScore(f)

	r.mu.Lock()
	trained := r.trained
	weights := r.weights
	r.mu.Unlock()

	if trained < warmThreshold {
		return heuristic
	}

	var modelScore float64
	vec := f.vector()
	for i, w := range weights {
		modelScore += w * vec[i]
	}
	modelScore = sigmoid(modelScore)

	blended := warmBlendModel*modelScore + warmBlendHeur*heuristic
	return clamp01(blended)
}

// heuristicScore ports _fallback_score from retrieval_ranker.py verbatim:
// a weighted sum of the rescaled similarity/recency/retrieval/outcome/
// importance features, multiplied (not added) by the length penalty and
// intent prior, clamped to [0,1].
func heuristicScore(f Features) float64 {
	semanticSignal := (f.SemanticSimilarity + 1.0) / 2.0
	rawSignal := (f.RawSimilarity + 1.0) / 2.0

	base := heuristicWeightSemantic*semanticSignal +
		heuristicWeightRaw*rawSignal +
		heuristicWeightRecency*f.RecencyScore +
		heuristicWeightRetrieval*f.RetrievalScore +
		heuristicWeightOutcome*f.OutcomeScore +
		heuristicWeightImportance*f.ImportanceScore

	adjusted := base * f.LengthPenalty * f.IntentPrior
	return clamp01(adjusted)
}

func sigmoid(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }

// LearnFromFeedback runs one logistic-regression gradient step per
// candidate, labeling helpful memories as positive examples, and returns
// the mean loss.
func (r *Ranker) LearnFromFeedback(queryEmbedding []float32, candidates []*model.MemoryRecord, helpfulIDs map[string]bool, now time.Time) float64 {
	if len(candidates) == 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var totalLoss float64
	var grad [numFeatures]float64

	for _, c := range candidates {
		feats := computeFeatures(queryEmbedding, c, now)
		vec := feats.vector()

		var logit float64
		for i, w := range r.weights {
			logit += w * vec[i]
		}
		pred := sigmoid(logit)

		target := 0.0
		if helpfulIDs[c.MemoryID] {
			target = 1.0
		}

		predClamped := clampEps(pred)
		totalLoss += -(target*math.Log(predClamped) + (1-target)*math.Log(1-predClamped))

		dLogit := pred - target
		for i := range grad {
			grad[i] += dLogit * vec[i]
		}
		r.trained++
	}

	rate := r.learningRate
	if rate <= 0 {
		rate = learningRate
	}
	n := float64(len(candidates))
	for i := range r.weights {
		r.weights[i] -= rate * grad[i] / n
	}
	return totalLoss / n
}

func clampEps(v float64) float64 {
	const eps = 1e-7
	if v < eps {
		return eps
	}
	if v > 1-eps {
		return 1 - eps
	}
	return v
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

// computeFeatures builds the 8-feature vector for (query, memory), matching
// retrieval_ranker.py::_feature_vector.
func computeFeatures(queryEmbedding []float32, m *model.MemoryRecord, now time.Time) Features {
	semanticSimilarity := safeSimilarity(queryEmbedding, m.SemanticEmbedding, 0.0)
	rawSimilarity := safeSimilarity(queryEmbedding, m.RawEmbedding, semanticSimilarity)

	ageDays := math.Max(now.Sub(m.CreatedAt).Hours()/24, 0)
	recency := math.Exp(-0.03 * ageDays)

	retrievalScore := clamp01(math.Log1p(float64(m.RetrievalCount)) / 4.0)

	outcomeScore := (m.AvgOutcomeSignal + 1) / 2

	importanceScore := clamp01(m.LatestImportance)

	lengthPenalty := lengthPenaltyFor(m.Summary, m.Content)

	intentPrior := intentPriorFor(m.Intent)

	return Features{
		SemanticSimilarity: semanticSimilarity,
		RawSimilarity:      rawSimilarity,
		RecencyScore:       recency,
		RetrievalScore:     retrievalScore,
		OutcomeScore:       outcomeScore,
		ImportanceScore:    importanceScore,
		LengthPenalty:      lengthPenalty,
		IntentPrior:        intentPrior,
	}
}

// safeSimilarity returns fallback when the candidate embedding is empty or
// its dimension doesn't match the query, matching _safe_similarity.
func safeSimilarity(queryEmbedding, candidateEmbedding []float32, fallback float64) float64 {
	if len(candidateEmbedding) == 0 {
		return fallback
	}
	if len(queryEmbedding) != len(candidateEmbedding) {
		return fallback
	}
	return encoding.CosineSimilarity(queryEmbedding, candidateEmbedding)
}

// intentPriorFor ports _intent_prior: assistant_* intents always score 0.5
// regardless of table membership, blank intents default to 1.0, everything
// else falls back to the table (or 1.0 if absent).
func intentPriorFor(intent string) float64 {
	normalized := strings.ToLower(strings.TrimSpace(intent))
	if normalized == "" {
		return defaultIntentPrior
	}
	if strings.HasPrefix(normalized, "assistant_") {
		return 0.5
	}
	if prior, ok := intentPriors[normalized]; ok {
		return prior
	}
	return defaultIntentPrior
}

// lengthPenaltyFor discourages overlong memories from crowding out concise
// ones: summaries beyond 20 words and content beyond 96 words are
// penalized linearly, floored so nothing is penalized below 0.35.
func lengthPenaltyFor(summary, content string) float64 {
	penalty := 1.0

	summaryWords := len(strings.Fields(summary))
	if summaryWords > 20 {
		penalty -= math.Min(float64(summaryWords-20)/160.0, 0.30)
	}

	contentWords := len(strings.Fields(content))
	if contentWords > 96 {
		penalty -= math.Min(float64(contentWords-96)/320.0, 0.35)
	}

	if penalty < 0.35 {
		penalty = 0.35
	}
	return penalty
}
