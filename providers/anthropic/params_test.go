package anthropic

import (
	"testing"

	"github.com/tidwall/gjson"

	"github.com/haowjy/meridian-stream-go"
)

func TestConvertToAnthropicMessages_Text(t *testing.T) {
	messages := []llmprovider.Message{llmprovider.NewUserMessage("Hello, world!")}

	result, err := convertToAnthropicMessages(messages)
	if err != nil {
		t.Fatalf("convertToAnthropicMessages() error = %v", err)
	}

	if len(result) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result))
	}
}

func TestConvertToAnthropicMessages_ToolRoundTrip(t *testing.T) {
	messages := []llmprovider.Message{
		llmprovider.NewUserMessage("Weather in Paris?"),
		llmprovider.NewAssistantMessage([]*llmprovider.Block{{
			BlockType: llmprovider.BlockTypeToolUse,
			Content: map[string]any{
				"tool_use_id": "toolu_123",
				"tool_name":   "get_weather",
				"input":       map[string]any{"city": "Paris"},
			},
		}}),
		{Role: llmprovider.RoleUser, Blocks: []*llmprovider.Block{llmprovider.NewToolResultBlock("toolu_123", "Sunny, 25C", false)}},
	}

	result, err := convertToAnthropicMessages(messages)
	if err != nil {
		t.Fatalf("convertToAnthropicMessages() error = %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(result))
	}
}

func TestConvertToAnthropicMessages_MissingIDs(t *testing.T) {
	tests := []struct {
		name  string
		block *llmprovider.Block
		role  string
	}{
		{
			name:  "tool_use without id",
			block: &llmprovider.Block{BlockType: llmprovider.BlockTypeToolUse, Content: map[string]any{"tool_name": "x", "input": map[string]any{}}},
			role:  llmprovider.RoleAssistant,
		},
		{
			name:  "tool_result without id",
			block: &llmprovider.Block{BlockType: llmprovider.BlockTypeToolResult, Content: map[string]any{"is_error": false}},
			role:  llmprovider.RoleUser,
		},
		{
			name:  "text without content",
			block: &llmprovider.Block{BlockType: llmprovider.BlockTypeText},
			role:  llmprovider.RoleUser,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := convertToAnthropicMessages([]llmprovider.Message{{Role: tt.role, Blocks: []*llmprovider.Block{tt.block}}})
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestConvertToAnthropicMessages_ThinkingBlocks(t *testing.T) {
	thinking := "Let me analyze this problem step by step..."
	messages := []llmprovider.Message{
		llmprovider.NewUserMessage("Solve it"),
		llmprovider.NewAssistantMessage([]*llmprovider.Block{
			{BlockType: llmprovider.BlockTypeThinking, TextContent: &thinking, Content: map[string]any{"signature": "4k_a"}},
			{BlockType: llmprovider.BlockTypeThinking, TextContent: &thinking},
			llmprovider.NewTextBlock("42"),
		}),
	}

	result, err := convertToAnthropicMessages(messages)
	if err != nil {
		t.Fatalf("convertToAnthropicMessages() error = %v", err)
	}

	// The unsigned thinking block is dropped
	if got := len(result[1].Content); got != 2 {
		t.Fatalf("expected 2 blocks, got %d", got)
	}
}

func TestMergeConsecutiveSameRoleMessages(t *testing.T) {
	messages := []llmprovider.Message{
		{Role: llmprovider.RoleUser, Blocks: []*llmprovider.Block{llmprovider.NewToolResultBlock("toolu_123", "done", false)}},
		llmprovider.NewUserMessage("Who else is related to aria?"),
		llmprovider.NewAssistantMessage([]*llmprovider.Block{llmprovider.NewTextBlock("First response")}),
		llmprovider.NewAssistantMessage([]*llmprovider.Block{llmprovider.NewTextBlock("Second response")}),
		llmprovider.NewUserMessage("Thanks"),
	}

	merged := mergeConsecutiveSameRoleMessages(messages)

	if len(merged) != 3 {
		t.Fatalf("expected 3 merged messages, got %d", len(merged))
	}
	if merged[0].Role != "user" || len(merged[0].Blocks) != 2 {
		t.Fatalf("expected user message with 2 blocks, got %s with %d", merged[0].Role, len(merged[0].Blocks))
	}
	if merged[0].Blocks[0].BlockType != llmprovider.BlockTypeToolResult {
		t.Errorf("expected first block to be tool_result, got %s", merged[0].Blocks[0].BlockType)
	}
	if len(merged[1].Blocks) != 2 || merged[1].Blocks[1].Text() != "Second response" {
		t.Errorf("assistant blocks not merged in order")
	}

	// Input must not be modified
	if len(messages[0].Blocks) != 1 {
		t.Errorf("input message mutated: %d blocks", len(messages[0].Blocks))
	}

	if got := mergeConsecutiveSameRoleMessages(nil); len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}

func TestBuildRequestBody(t *testing.T) {
	level := "low"
	enabled := true
	temp := 1.5
	choice, _ := llmprovider.NewSpecificToolChoice("get_weather")

	req := &llmprovider.GenerateRequest{
		Model:    "claude-haiku-4-5-20251001",
		Messages: []llmprovider.Message{llmprovider.NewUserMessage("hi")},
		Params: &llmprovider.RequestParams{
			Temperature:     &temp,
			ThinkingEnabled: &enabled,
			ThinkingLevel:   &level,
			System:          &level,
			Tools: []llmprovider.Tool{llmprovider.NewFunctionTool("get_weather", "Weather lookup", map[string]any{
				"type":                 "object",
				"properties":           map[string]any{"city": map[string]any{"type": "string"}},
				"required":             []any{"city"},
				"additionalProperties": false,
			})},
			ToolChoice: choice,
		},
	}

	params, err := buildMessageParams(req)
	if err != nil {
		t.Fatalf("buildMessageParams() error = %v", err)
	}
	body, err := buildRequestBody(params)
	if err != nil {
		t.Fatalf("buildRequestBody() error = %v", err)
	}

	checks := map[string]any{
		"stream":                                   true,
		"model":                                    "claude-haiku-4-5-20251001",
		"max_tokens":                               float64(4096),
		"temperature":                              float64(1),
		"thinking.budget_tokens":                   float64(2000),
		"tools.0.name":                             "get_weather",
		"tools.0.input_schema.required.0":          "city",
		"tools.0.input_schema.additionalProperties": false,
		"tool_choice.name":                         "get_weather",
	}
	for path, want := range checks {
		if got := gjson.GetBytes(body, path).Value(); got != want {
			t.Errorf("%s = %v, want %v", path, got, want)
		}
	}
}
