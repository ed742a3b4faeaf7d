package personalization

import (
	"fmt"
	"strings"

	"github.com/BaSui01/memoryengine/engine/model"
)

var (
	detailedPhraseMarkers = []string{
		"fuller context", "worked examples", "postmortem", "regression tests", "step-by-step",
	}
	detailedSummaryMarkers = stringSet("detailed", "context", "rationale", "walkthrough", "explanation")
)

// ObserveFeedback buckets helpful assistant responses by communication
// style (concise vs detailed) per entity, and once enough feedback has
// accumulated, may emit a single preference-shift candidate.
func (e *Engine) ObserveFeedback(tenantID string, ranked []*model.MemoryRecord, helpfulIDs map[string]bool, outcomeSignal float64) []Candidate {
	if !e.cfg.Enabled || outcomeSignal <= 0 {
		return nil
	}

	byEntity := make(map[string]bool)
	var out []Candidate
	for _, m := range ranked {
		if !model.IsAssistantIntent(m.Intent) || !helpfulIDs[m.MemoryID] {
			continue
		}
		entity := m.PrimaryEntity()
		if entity == "" || byEntity[entity] {
			continue
		}
		byEntity[entity] = true

		bucket := styleBucket(m)
		if c, ok := e.updatePreferenceState(tenantID, entity, bucket, m.MemoryID, outcomeSignal); ok {
			out = append(out, c)
		}
	}
	return out
}

func styleBucket(m *model.MemoryRecord) string {
	text := strings.ToLower(m.Summary + " " + m.Content)
	for _, marker := range detailedPhraseMarkers {
		if strings.Contains(text, marker) {
			return "detailed"
		}
	}

	words := len(strings.Fields(m.Content))
	sentences := strings.Count(m.Content, ".") + strings.Count(m.Content, "!") + strings.Count(m.Content, "?")
	if words <= 32 && sentences <= 2 {
		return "concise"
	}
	if words >= 36 || sentences >= 3 {
		return "detailed"
	}

	for marker := range detailedSummaryMarkers {
		if strings.Contains(strings.ToLower(m.Summary), marker) {
			return "detailed"
		}
	}
	return "concise"
}

func (e *Engine) updatePreferenceState(tenantID, entity, bucket, memoryID string, outcomeSignal float64) (Candidate, bool) {
	delta := outcomeSignal
	if delta < 0.1 {
		delta = 0.1
	}

	e.mu.Lock()
	state, ok := e.preferenceStateByEntity[entity]
	if !ok {
		state = &preferenceState{}
		e.preferenceStateByEntity[entity] = state
	}
	if bucket == "concise" {
		state.conciseScore += delta
		state.conciseSupportingIDs = appendUniqueLimited(state.conciseSupportingIDs, memoryID, 16)
	} else {
		state.detailedScore += delta
		state.detailedSupportingIDs = appendUniqueLimited(state.detailedSupportingIDs, memoryID, 16)
	}
	state.updates++

	if state.updates < e.cfg.MinFeedbackEvents {
		e.mu.Unlock()
		return Candidate{}, false
	}

	margin := state.conciseScore - state.detailedScore
	if absFloat(margin) < e.cfg.PreferenceMargin {
		e.mu.Unlock()
		return Candidate{}, false
	}

	preferredStyle := "detailed"
	if margin > 0 {
		preferredStyle = "concise"
	}
	lastEmitted := state.lastEmitted
	conciseSupportingIDs := append([]string(nil), state.conciseSupportingIDs...)
	detailedSupportingIDs := append([]string(nil), state.detailedSupportingIDs...)
	e.mu.Unlock()

	if explicit, found := e.explicitStylePreference(tenantID); found && explicit != preferredStyle && absFloat(margin) < e.cfg.PreferenceMargin*4.0 {
		preferredStyle = explicit
	}

	if lastEmitted == preferredStyle {
		return Candidate{}, false
	}

	e.mu.Lock()
	state.lastEmitted = preferredStyle
	e.mu.Unlock()

	confidence := 0.62 + minFloat(absFloat(margin)/8.0, 0.3)
	if confidence > 0.95 {
		confidence = 0.95
	}
	signature := fmt.Sprintf("%s|feedback_preference_shift|%s", entity, preferredStyle)

	var content string
	supportingIDs := detailedSupportingIDs
	if preferredStyle == "concise" {
		content = fmt.Sprintf("Inferred preference: %s responds better to concise explanations. Keep responses short, concrete, and step-by-step.", entity)
		supportingIDs = conciseSupportingIDs
	} else {
		content = fmt.Sprintf("Inferred preference: %s responds better to detailed explanations. Include fuller context, rationale, and worked examples.", entity)
	}

	relationships := []string{"inferred:true", "inference_type:feedback_preference_shift", "signature:" + signature}
	derivedFrom := supportingIDs
	if len(derivedFrom) > 8 {
		derivedFrom = derivedFrom[len(derivedFrom)-8:]
	}
	for _, id := range derivedFrom {
		relationships = append(relationships, "derived_from:"+id)
	}

	return Candidate{
		EntityID:   entity,
		EventType:  "inferred_preference",
		Content:    content,
		Summary:    preferredStyle + " communication preference",
		Confidence: confidence,
		Metadata: map[string]any{
			"summary":       preferredStyle + " communication preference",
			"intent":        "inferred_preference",
			"entities":      []string{entity},
			"relationships": relationships,
			"inferred":      true,
		},
	}, true
}

// explicitStylePreference scans storage for the most recent stated
// preference (e.g. from a preference_stated memory) that overrides a weak
// inferred margin.
func (e *Engine) explicitStylePreference(tenantID string) (string, bool) {
	intents := stringSet("preference_stated", "user_profile", "user_fact")
	recent, err := e.storage.RecentByIntents(tenantID, intents, 50)
	if err != nil {
		return "", false
	}
	for _, m := range recent {
		text := strings.ToLower(m.Summary + " " + m.Content)
		if strings.Contains(text, "concise") {
			return "concise", true
		}
		if strings.Contains(text, "detailed") {
			return "detailed", true
		}
	}
	return "", false
}

func appendUniqueLimited(list []string, item string, limit int) []string {
	for i, v := range list {
		if v == item {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	list = append(list, item)
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
