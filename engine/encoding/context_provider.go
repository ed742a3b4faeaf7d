package encoding

import "context"

// ContextProvider derives semantic understanding straight from the
// metadata a caller attached to the event, without calling out to an LLM.
// It is the default SemanticProvider: cheap, deterministic, and good enough
// when callers already annotate entities/relationships/intent themselves.
type ContextProvider struct{}

func NewContextProvider() *ContextProvider { return &ContextProvider{} }

func (p *ContextProvider) Name() string { return "context" }

func (p *ContextProvider) Understand(_ context.Context, eventType, description string, meta map[string]any) (Understanding, error) {
	entities := stringSlice(meta["entities"])
	relationships := stringSlice(meta["relationships"])
	intent := stringValue(meta["intent"])
	if intent == "" {
		intent = eventType
	}
	summary := stringValue(meta["summary"])
	if summary == "" {
		summary = description
	}
	return Understanding{
		Entities:      entities,
		Relationships: relationships,
		Intent:        intent,
		Summary:       summary,
	}, nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func stringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
