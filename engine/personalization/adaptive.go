// Package personalization infers new memories from behavioral patterns:
// repeated questions on the same topic, recurring failures, visible
// progress, and preference shifts surfaced by retrieval feedback. Inferred
// memories are deduplicated by a content signature so the same pattern
// doesn't get re-emitted every time it's observed.
package personalization

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/memoryengine/engine/encoding"
	"github.com/BaSui01/memoryengine/engine/model"
)

var (
	topicClusterSourceIntents = stringSet("user_question", "user_attempt", "assessment_result", "learning_progress")
	failureSourceIntents      = stringSet("user_question", "user_attempt", "assessment_result")
	progressSourceIntents     = stringSet("user_attempt", "assessment_result", "learning_progress")

	failureTerms = stringSet(
		"bug", "bugs", "confused", "confusing", "error", "errors", "exception", "exceptions",
		"failing", "fails", "failed", "failure", "incorrect", "mistake", "mistakes",
		"stuck", "struggle", "struggles", "wrong",
	)
	progressTerms = stringSet(
		"advanced", "complete", "completed", "correct", "correctly", "improved", "improving",
		"learned", "mastered", "passed", "progress", "solved", "understands",
	)

	tokenRe = regexp.MustCompile(`[a-z0-9]+`)
)

func stringSet(items ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, i := range items {
		out[i] = struct{}{}
	}
	return out
}

// Storage is the subset of engine/storage.Manager the personalization
// engine needs: reading history for a given entity, and scanning for
// memories already carrying a given signature relationship.
type Storage interface {
	RecentByEntityIntents(tenantID, entityID string, intents map[string]struct{}, since time.Time) ([]*model.MemoryRecord, error)
	FindBySignature(tenantID, signature string) ([]*model.MemoryRecord, error)
	RecentByIntents(tenantID string, intents map[string]struct{}, limit int) ([]*model.MemoryRecord, error)
}

// Candidate is an inferred memory proposed for storage, with the IDs of
// any existing memories it supersedes.
type Candidate struct {
	EntityID            string
	EventType            string
	Content              string
	Summary               string
	Confidence            float64
	Metadata              map[string]any
	SupersedesMemoryIDs []string
}

type preferenceState struct {
	conciseScore         float64
	detailedScore        float64
	updates              int
	lastEmitted          string
	conciseSupportingIDs []string
	detailedSupportingIDs []string
}

// Config tunes the sensitivity of every inference family.
type Config struct {
	Enabled              bool
	RepeatThreshold      int
	SimilarityThreshold  float64
	WindowDays           int
	MinFeedbackEvents    int
	PreferenceMargin     float64
	InferredTTLDays      int
	InferredRefreshDays  int
}

// DefaultConfig returns the conventional tuning used when a caller doesn't
// override anything.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		RepeatThreshold:     3,
		SimilarityThreshold: 0.82,
		WindowDays:          30,
		MinFeedbackEvents:   4,
		PreferenceMargin:    2.0,
		InferredTTLDays:     45,
		InferredRefreshDays: 14,
	}
}

func (c Config) sanitized() Config {
	if c.RepeatThreshold < 2 {
		c.RepeatThreshold = 2
	}
	if c.SimilarityThreshold < 0 {
		c.SimilarityThreshold = 0
	}
	if c.SimilarityThreshold > 1 {
		c.SimilarityThreshold = 1
	}
	if c.WindowDays < 1 {
		c.WindowDays = 1
	}
	if c.MinFeedbackEvents < 1 {
		c.MinFeedbackEvents = 1
	}
	if c.PreferenceMargin < 0.1 {
		c.PreferenceMargin = 0.1
	}
	if c.InferredTTLDays < 1 {
		c.InferredTTLDays = 1
	}
	if c.InferredRefreshDays < 0 {
		c.InferredRefreshDays = 0
	}
	return c
}

// Engine infers new memories from behavioral patterns observed across a
// tenant's memory stream.
type Engine struct {
	mu sync.RWMutex

	cfg     Config
	storage Storage
	now     func() time.Time

	emittedSignatures map[string]time.Time
	preferenceStateByEntity map[string]*preferenceState
}

// New builds an Engine backed by storage, using cfg (use DefaultConfig()
// for conventional tuning).
func New(storage Storage, cfg Config, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:                     cfg.sanitized(),
		storage:                 storage,
		now:                     now,
		emittedSignatures:       make(map[string]time.Time),
		preferenceStateByEntity: make(map[string]*preferenceState),
	}
}

func (e *Engine) refreshWindow() time.Duration {
	return time.Duration(e.cfg.InferredRefreshDays) * 24 * time.Hour
}

func (e *Engine) relaxedSimilarityThreshold() float64 {
	t := e.cfg.SimilarityThreshold * 0.12
	if t < 0.1 {
		return 0.1
	}
	return t
}

// ObserveMemory runs every applicable inference family against the newly
// stored memory and returns at most 3 inferred candidates.
func (e *Engine) ObserveMemory(tenantID string, memory *model.MemoryRecord) []Candidate {
	if !e.cfg.Enabled {
		return nil
	}
	if model.IsInferredIntent(memory.Intent) || e.isInferredMemory(memory) {
		return nil
	}
	intent := strings.ToLower(memory.Intent)
	_, inTopic := topicClusterSourceIntents[intent]
	_, inFailure := failureSourceIntents[intent]
	_, inProgress := progressSourceIntents[intent]
	if !inTopic && !inFailure && !inProgress {
		return nil
	}

	entityID := memory.PrimaryEntity()
	if entityID == "" {
		return nil
	}

	var out []Candidate
	if inTopic {
		if c, ok := e.inferRepeatTopicCluster(tenantID, entityID, memory); ok {
			out = append(out, c)
		}
	}
	if inFailure && len(out) < 3 {
		if c, ok := e.inferRecurringFailure(tenantID, entityID, memory); ok {
			out = append(out, c)
		}
	}
	if inProgress && len(out) < 3 {
		if c, ok := e.inferProgressAccumulation(tenantID, entityID, memory); ok {
			out = append(out, c)
		}
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

func (e *Engine) inferRepeatTopicCluster(tenantID, entityID string, anchor *model.MemoryRecord) (Candidate, bool) {
	since := e.now().Add(-time.Duration(e.cfg.WindowDays) * 24 * time.Hour)
	history, err := e.storage.RecentByEntityIntents(tenantID, entityID, topicClusterSourceIntents, since)
	if err != nil || len(history) < e.cfg.RepeatThreshold {
		return Candidate{}, false
	}
	cluster := e.topicCluster(anchor, history, e.cfg.SimilarityThreshold)
	if len(cluster) < e.cfg.RepeatThreshold {
		return Candidate{}, false
	}

	topic := representativeSummary(cluster)
	reservation, ok := e.reserveSignature(tenantID, entityID, "repeat_topic_cluster", topic)
	if !ok {
		return Candidate{}, false
	}

	avgSim := averageSimilarity(cluster, anchor)
	confidence := min95(0.58+0.08*float64(len(cluster)-e.cfg.RepeatThreshold)+0.18*avgSim, 0.96)

	content := fmt.Sprintf(
		"Inferred learning pattern: %s repeatedly asks about %s. Prioritize concise, step-by-step reinforcement and verify understanding before moving to more advanced material.",
		entityID, topic,
	)

	return e.buildClusterCandidate(entityID, "inferred_learning_pattern", content, topic, confidence,
		"repeat_question_cluster", "repeat_topic_cluster", reservation, cluster), true
}

func (e *Engine) inferRecurringFailure(tenantID, entityID string, anchor *model.MemoryRecord) (Candidate, bool) {
	since := e.now().Add(-time.Duration(e.cfg.WindowDays) * 24 * time.Hour)
	history, err := e.storage.RecentByEntityIntents(tenantID, entityID, failureSourceIntents, since)
	if err != nil || len(history) < e.cfg.RepeatThreshold {
		return Candidate{}, false
	}
	failing := make([]*model.MemoryRecord, 0, len(history))
	for _, m := range history {
		if e.isFailureSignal(m) {
			failing = append(failing, m)
		}
	}
	if len(failing) < e.cfg.RepeatThreshold {
		return Candidate{}, false
	}

	cluster := e.topicCluster(anchor, failing, e.relaxedSimilarityThreshold())
	if len(cluster) < e.cfg.RepeatThreshold {
		return Candidate{}, false
	}

	topic := representativeSummary(cluster)
	reservation, ok := e.reserveSignature(tenantID, entityID, "recurring_failure", topic)
	if !ok {
		return Candidate{}, false
	}

	avgSim := averageSimilarity(cluster, anchor)
	confidence := min95(0.6+0.07*float64(len(cluster)-e.cfg.RepeatThreshold)+0.16*avgSim, 0.97)

	content := fmt.Sprintf(
		"Inferred learning pattern: %s repeatedly struggles with %s. Prioritize targeted remediation, isolate the failing concept, and verify mastery with progressively harder practice checks.",
		entityID, topic,
	)

	return e.buildClusterCandidate(entityID, "inferred_learning_pattern", content, topic, confidence,
		"recurring_failure", "recurring_failure", reservation, cluster), true
}

func (e *Engine) inferProgressAccumulation(tenantID, entityID string, anchor *model.MemoryRecord) (Candidate, bool) {
	since := e.now().Add(-time.Duration(e.cfg.WindowDays) * 24 * time.Hour)
	history, err := e.storage.RecentByEntityIntents(tenantID, entityID, progressSourceIntents, since)
	if err != nil || len(history) < e.cfg.RepeatThreshold {
		return Candidate{}, false
	}
	progressing := make([]*model.MemoryRecord, 0, len(history))
	for _, m := range history {
		if e.isProgressSignal(m) {
			progressing = append(progressing, m)
		}
	}
	if len(progressing) < e.cfg.RepeatThreshold {
		return Candidate{}, false
	}

	cluster := e.topicCluster(anchor, progressing, e.relaxedSimilarityThreshold())
	if len(cluster) < e.cfg.RepeatThreshold {
		return Candidate{}, false
	}

	topic := representativeSummary(cluster)
	reservation, ok := e.reserveSignature(tenantID, entityID, "progress_accumulation", topic)
	if !ok {
		return Candidate{}, false
	}

	avgSim := averageSimilarity(cluster, anchor)
	confidence := min95(0.58+0.06*float64(len(cluster)-e.cfg.RepeatThreshold)+0.18*avgSim, 0.95)

	content := fmt.Sprintf(
		"Inferred progress: %s has progressed in %s. Adjust tutoring to the next challenge tier and reduce beginner-level repetition.",
		entityID, topic,
	)

	candidate := e.buildClusterCandidate(entityID, "learning_progress", content, topic, confidence,
		"progress:accumulated_mastery", "progress_accumulation", reservation, cluster)
	return candidate, true
}

func (e *Engine) buildClusterCandidate(entityID, eventType, content, topic string, confidence float64, relationLabel, inferenceType string, reservation signatureReservation, cluster []*model.MemoryRecord) Candidate {
	relationships := []string{
		fmt.Sprintf("%s->pattern:%s", entityID, relationLabel),
		"inferred:true",
		"inference_type:" + inferenceType,
		"signature:" + reservation.signature,
	}
	supporting := cluster
	if len(supporting) > 8 {
		supporting = supporting[:8]
	}
	for _, m := range supporting {
		relationships = append(relationships, "derived_from:"+m.MemoryID)
	}

	return Candidate{
		EntityID:    entityID,
		EventType:   eventType,
		Content:     content,
		Summary:     topic,
		Confidence:  confidence,
		Metadata: map[string]any{
			"summary":       topic,
			"intent":        eventType,
			"entities":      []string{entityID},
			"relationships": relationships,
			"inferred":      true,
		},
		SupersedesMemoryIDs: reservation.supersedes,
	}
}

type signatureReservation struct {
	signature  string
	supersedes []string
}

func (e *Engine) reserveSignature(tenantID, entityID, inferenceType, topic string) (signatureReservation, bool) {
	normalizedTopic := strings.Join(strings.Fields(strings.ToLower(topic)), " ")
	signature := fmt.Sprintf("%s|%s|%s", entityID, inferenceType, normalizedTopic)

	now := e.now()
	e.mu.Lock()
	if last, ok := e.emittedSignatures[signature]; ok && now.Sub(last) < e.refreshWindow() {
		e.mu.Unlock()
		return signatureReservation{}, false
	}
	e.mu.Unlock()

	existing, err := e.storage.FindBySignature(tenantID, signature)
	var supersedes []string
	if err == nil && len(existing) > 0 {
		freshest := existing[0].UpdatedAt
		for _, m := range existing {
			if m.UpdatedAt.After(freshest) {
				freshest = m.UpdatedAt
			}
			supersedes = append(supersedes, m.MemoryID)
		}
		if now.Sub(freshest) < e.refreshWindow() {
			e.mu.Lock()
			e.emittedSignatures[signature] = now
			e.mu.Unlock()
			return signatureReservation{}, false
		}
	}

	e.mu.Lock()
	e.emittedSignatures[signature] = now
	e.mu.Unlock()

	return signatureReservation{signature: signature, supersedes: supersedes}, true
}

// topicCluster scores every candidate against anchor by semantic
// similarity, keeps those meeting threshold, and sorts descending.
func (e *Engine) topicCluster(anchor *model.MemoryRecord, candidates []*model.MemoryRecord, threshold float64) []*model.MemoryRecord {
	type scored struct {
		m   *model.MemoryRecord
		sim float64
	}
	var kept []scored
	for _, c := range candidates {
		sim := e.semanticSimilarity(anchor, c)
		if sim >= threshold {
			kept = append(kept, scored{c, sim})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].sim > kept[j].sim })
	out := make([]*model.MemoryRecord, len(kept))
	for i, k := range kept {
		out[i] = k.m
	}
	return out
}

func (e *Engine) semanticSimilarity(a *model.MemoryRecord, b *model.MemoryRecord) float64 {
	if a.SemanticKey != "" && a.SemanticKey == b.SemanticKey {
		return 1.0
	}
	vectorSim := 0.0
	if len(a.SemanticEmbedding) > 0 && len(b.SemanticEmbedding) > 0 {
		vectorSim = encoding.CosineSimilarity(a.SemanticEmbedding, b.SemanticEmbedding)
	}
	lexicalSim := jaccard(tokens(a), tokens(b))
	if vectorSim > lexicalSim {
		return vectorSim
	}
	return lexicalSim
}

func averageSimilarity(cluster []*model.MemoryRecord, anchor *model.MemoryRecord) float64 {
	if len(cluster) == 0 {
		return 0
	}
	var sum float64
	for _, m := range cluster {
		sum += encoding.CosineSimilarity(anchor.SemanticEmbedding, m.SemanticEmbedding)
	}
	return sum / float64(len(cluster))
}

func representativeSummary(cluster []*model.MemoryRecord) string {
	counts := make(map[string]int)
	for _, m := range cluster {
		s := strings.TrimSpace(m.Summary)
		if s == "" {
			continue
		}
		counts[s]++
	}
	var best string
	bestCount := -1
	for s, count := range counts {
		if count > bestCount || (count == bestCount && len(s) > len(best)) {
			best, bestCount = s, count
		}
	}
	if best == "" && len(cluster) > 0 {
		best = cluster[0].Summary
	}
	if len(best) > 140 {
		best = strings.TrimRight(best[:137], " ") + "..."
	}
	return best
}

func tokens(m *model.MemoryRecord) map[string]struct{} {
	text := strings.ToLower(m.Summary + " " + m.Content)
	matches := tokenRe.FindAllString(text, -1)
	set := make(map[string]struct{}, len(matches))
	for _, t := range matches {
		set[t] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func (e *Engine) isFailureSignal(m *model.MemoryRecord) bool {
	return hasLexicalMatch(m, failureTerms) && !hasLexicalMatch(m, progressTerms)
}

func (e *Engine) isProgressSignal(m *model.MemoryRecord) bool {
	return hasLexicalMatch(m, progressTerms) && !hasLexicalMatch(m, failureTerms)
}

func hasLexicalMatch(m *model.MemoryRecord, terms map[string]struct{}) bool {
	for t := range tokens(m) {
		if _, ok := terms[t]; ok {
			return true
		}
	}
	return false
}

func (e *Engine) isInferredMemory(m *model.MemoryRecord) bool {
	if model.IsInferredIntent(m.Intent) {
		return true
	}
	for _, r := range m.Relationships {
		if r == "inferred:true" || strings.HasPrefix(r, "inference_type:") || strings.HasPrefix(r, "signature:") {
			return true
		}
	}
	return false
}

func min95(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	return v
}

// ExpiredInferredMemoryIDs returns the IDs of inferred memories older than
// the configured TTL.
func (e *Engine) ExpiredInferredMemoryIDs(tenantID string, all []*model.MemoryRecord) []string {
	cutoff := e.now().Add(-time.Duration(e.cfg.InferredTTLDays) * 24 * time.Hour)
	var out []string
	for _, m := range all {
		if e.isInferredMemory(m) && m.CreatedAt.Before(cutoff) {
			out = append(out, m.MemoryID)
		}
	}
	return out
}

// NotifyMemoriesDeleted clears signature stamps for deleted memories so a
// future cluster isn't blocked by a stale refresh window.
func (e *Engine) NotifyMemoriesDeleted(deleted []*model.MemoryRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range deleted {
		for _, r := range m.Relationships {
			if strings.HasPrefix(r, "signature:") {
				delete(e.emittedSignatures, strings.TrimPrefix(r, "signature:"))
			}
		}
	}
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
