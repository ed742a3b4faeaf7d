package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/BaSui01/memoryengine/engine/encoding"
)

const defaultAnthropicMaxTokens int64 = 512

// AnthropicSemanticProvider asks a Claude model to extract the entities,
// relationships, intent, and a short summary from an event description,
// satisfying engine/encoding.SemanticProvider. It is the LLM-backed
// alternative to encoding.ContextProvider for callers who don't annotate
// events with structured metadata themselves.
type AnthropicSemanticProvider struct {
	sdk   anthropic.Client
	model string
}

// NewAnthropicSemanticProvider builds a provider against apiKey. model
// defaults to Claude's latest Sonnet alias.
func NewAnthropicSemanticProvider(apiKey, model string) *AnthropicSemanticProvider {
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	return &AnthropicSemanticProvider{
		sdk:   anthropic.NewClient(option.WithAPIKey(strings.TrimSpace(apiKey))),
		model: model,
	}
}

func (p *AnthropicSemanticProvider) Name() string { return "anthropic:" + p.model }

type extractedUnderstanding struct {
	Entities      []string `json:"entities"`
	Relationships []string `json:"relationships"`
	Intent        string   `json:"intent"`
	Summary       string   `json:"summary"`
}

// Understand sends the event to Claude with an instruction to respond with
// nothing but a JSON object, then parses that object into an Understanding.
// Caller-supplied metadata overrides are honored the same way
// encoding.ContextProvider honors them, so explicit values always win over
// the model's guess.
func (p *AnthropicSemanticProvider) Understand(ctx context.Context, eventType, description string, meta map[string]any) (encoding.Understanding, error) {
	prompt := fmt.Sprintf(
		"Extract structured memory metadata from this event.\nEvent type: %s\nDescription: %s\n\n"+
			"Respond with ONLY a JSON object shaped like "+
			`{"entities": ["..."], "relationships": ["..."], "intent": "...", "summary": "..."}`+
			". entities are names/IDs the event concerns. relationships are short facts like "+
			`"alice->prefers:dark_mode". intent is a short snake_case label. summary is one sentence.`,
		eventType, description,
	)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: defaultAnthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	resp, err := p.sdk.Messages.New(ctx, params)
	if err != nil {
		return fallbackUnderstanding(eventType, description, meta), fmt.Errorf("anthropic semantic extraction: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}

	var parsed extractedUnderstanding
	if err := json.Unmarshal([]byte(extractJSONObject(text.String())), &parsed); err != nil {
		return fallbackUnderstanding(eventType, description, meta), nil
	}

	u := encoding.Understanding{
		Entities:      parsed.Entities,
		Relationships: parsed.Relationships,
		Intent:        parsed.Intent,
		Summary:       parsed.Summary,
	}
	applyMetadataOverrides(&u, eventType, description, meta)
	return u, nil
}

func applyMetadataOverrides(u *encoding.Understanding, eventType, description string, meta map[string]any) {
	if v, ok := meta["intent"].(string); ok && v != "" {
		u.Intent = v
	} else if u.Intent == "" {
		u.Intent = eventType
	}
	if v, ok := meta["summary"].(string); ok && v != "" {
		u.Summary = v
	} else if u.Summary == "" {
		u.Summary = description
	}
	if v, ok := meta["entities"].([]string); ok && len(v) > 0 {
		u.Entities = v
	}
	if v, ok := meta["relationships"].([]string); ok && len(v) > 0 {
		u.Relationships = v
	}
}

func fallbackUnderstanding(eventType, description string, meta map[string]any) encoding.Understanding {
	u := encoding.Understanding{}
	applyMetadataOverrides(&u, eventType, description, meta)
	return u
}

// extractJSONObject pulls the first {...} span out of a response, tolerating
// a model that wraps its JSON in prose or a markdown code fence.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return "{}"
	}
	return s[start : end+1]
}
