// Package input derives a default summary and context payload for events
// that did not arrive with one already, so later stages (semantic
// understanding, compression, personalization) always have something
// reasonable to work with.
package input

import (
	"regexp"
	"strings"
)

var (
	assistantPrefixRe = regexp.MustCompile(`(?i)^assistant response:\s*`)
	sentenceSplitRe   = regexp.MustCompile(`[.!?]`)
)

const (
	maxSummaryWords = 32
	maxSummaryChars = 220
)

// DefaultSummary derives a short summary from an event description when the
// caller didn't supply metadata["summary"] explicitly. For assistant
// responses it strips a leading "assistant response:" label, takes the
// first sentence, and caps it at 32 words / 220 characters.
func DefaultSummary(description, eventType string) string {
	normalized := strings.Join(strings.Fields(description), " ")
	if strings.EqualFold(eventType, "assistant_response") {
		normalized = assistantPrefixRe.ReplaceAllString(normalized, "")
	}

	firstSentence := normalized
	if loc := sentenceSplitRe.FindStringIndex(normalized); loc != nil {
		firstSentence = normalized[:loc[0]]
	}

	words := strings.Fields(firstSentence)
	truncated := false
	if len(words) > maxSummaryWords {
		words = words[:maxSummaryWords]
		truncated = true
	}
	summary := strings.Join(words, " ")
	if truncated {
		summary = strings.TrimRight(summary, ".,;:") + "..."
	}

	if len(summary) > maxSummaryChars {
		summary = strings.TrimRight(summary[:maxSummaryChars-3], " ") + "..."
	}
	return summary
}

// BuildContext assembles the metadata context a SemanticProvider consumes,
// merging explicit overrides for summary/intent/entities/relationships with
// whatever else the caller attached, and defaulting intent to the event
// type and entities to [entityID, ...metadata entities].
func BuildContext(entityID, eventType, description string, metadata map[string]any) map[string]any {
	ctx := make(map[string]any, len(metadata)+4)
	for k, v := range metadata {
		ctx[k] = v
	}

	if _, ok := ctx["summary"]; !ok {
		ctx["summary"] = DefaultSummary(description, eventType)
	}
	if _, ok := ctx["intent"]; !ok {
		ctx["intent"] = eventType
	}

	entities := []string{entityID}
	if extra, ok := metadata["entities"].([]string); ok {
		entities = append(entities, extra...)
	} else if extraAny, ok := metadata["entities"].([]any); ok {
		for _, v := range extraAny {
			if s, ok := v.(string); ok {
				entities = append(entities, s)
			}
		}
	}
	ctx["entities"] = entities

	if _, ok := ctx["relationships"]; !ok {
		ctx["relationships"] = []string{}
	}
	ctx["event_type"] = eventType
	return ctx
}
