// Package decay implements the per-topic forgetting curve: each
// semantic_key gets its own exponential decay rate, nudged by gradient
// descent whenever feedback tells us a memory was (or wasn't) still useful
// at a given age.
package decay

import (
	"math"
	"sync"
)

const (
	defaultInitialRate = 0.05
	defaultLearningRate = 1e-2
	minRate = 1e-4
	maxRate = 2.0
)

type pendingOutcome struct {
	ageDays float64
	target  float64
}

// Learner tracks one decay rate per semantic key and updates it with a
// single gradient step per recorded outcome.
type Learner struct {
	mu           sync.Mutex
	rates        map[string]float64
	pending      map[string][]pendingOutcome
	learningRate float64
	initialRate  float64
}

// New creates a Learner with the given learning rate (use
// defaultLearningRate when unsure).
func New(learningRate float64) *Learner {
	if learningRate <= 0 {
		learningRate = defaultLearningRate
	}
	return &Learner{
		rates:        make(map[string]float64),
		pending:      make(map[string][]pendingOutcome),
		learningRate: learningRate,
		initialRate:  defaultInitialRate,
	}
}

// PredictRelevance returns initial*exp(-rate*max(age,0)) for the given key.
func (l *Learner) PredictRelevance(semanticKey string, initial, ageDays float64) float64 {
	rate := l.PredictDecayRate(semanticKey)
	if ageDays < 0 {
		ageDays = 0
	}
	return initial * math.Exp(-rate*ageDays)
}

// PredictDecayRate returns the current decay rate for a key, defaulting to
// the initial rate for keys never seen before.
func (l *Learner) PredictDecayRate(semanticKey string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rate, ok := l.rates[semanticKey]; ok {
		return rate
	}
	return l.initialRate
}

// RecordOutcome buffers a single (age, helpful) observation for semanticKey
// to be consumed by the next Learn call.
func (l *Learner) RecordOutcome(semanticKey string, ageDays float64, wasHelpful bool) {
	target := 0.0
	if wasHelpful {
		target = 1.0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[semanticKey] = append(l.pending[semanticKey], pendingOutcome{ageDays: ageDays, target: target})
}

// Learn drains all buffered outcomes and applies one gradient step per
// observation to its key's decay rate.
func (l *Learner) Learn() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, outcomes := range l.pending {
		rate, ok := l.rates[key]
		if !ok {
			rate = l.initialRate
		}
		for _, o := range outcomes {
			predicted := math.Exp(-rate * o.ageDays)
			gradient := 2 * (predicted - o.target) * (-o.ageDays * predicted)
			rate -= l.learningRate * gradient
			rate = clamp(rate, minRate, maxRate)
		}
		l.rates[key] = rate
	}
	l.pending = make(map[string][]pendingOutcome)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
