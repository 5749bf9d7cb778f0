package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haowjy/meridian-stream-go"
)

// ChatCompletionRequest is an OpenAI-compatible streaming chat completion request.
type ChatCompletionRequest struct {
	Model            string           `json:"model"`
	Messages         []Message        `json:"messages"`
	MaxTokens        *int             `json:"max_tokens,omitempty"`
	Temperature      *float64         `json:"temperature,omitempty"`
	TopP             *float64         `json:"top_p,omitempty"`
	TopK             *int             `json:"top_k,omitempty"` // OpenRouter only
	Stop             []string         `json:"stop,omitempty"`
	Seed             *int             `json:"seed,omitempty"`
	FrequencyPenalty *float64         `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64         `json:"presence_penalty,omitempty"`
	Stream           bool             `json:"stream"`
	StreamOptions    *StreamOptions   `json:"stream_options,omitempty"`
	Tools            []Tool           `json:"tools,omitempty"`
	ToolChoice       any              `json:"tool_choice,omitempty"` // "auto", "none", "required", or {"type": "function", "function": {"name": "..."}}
	ReasoningEffort  *string          `json:"reasoning_effort,omitempty"`
	Reasoning        *ReasoningConfig `json:"reasoning,omitempty"` // OpenRouter's unified reasoning switch
}

// StreamOptions asks for a trailing usage chunk.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// ReasoningConfig is OpenRouter's reasoning request object.
type ReasoningConfig struct {
	Effort  *string `json:"effort,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// Message is a chat message.
type Message struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    *string    `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID *string    `json:"tool_call_id,omitempty"` // For role:"tool" messages
}

// ToolCall is a function call replayed in an assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool is a function tool definition.
type Tool struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable function.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// buildChatCompletionRequest constructs the streaming request body for a preset.
func buildChatCompletionRequest(req *llmprovider.GenerateRequest, p preset) (*ChatCompletionRequest, error) {
	params := req.Params
	if params == nil {
		params = &llmprovider.RequestParams{}
	}

	messages, err := convertMessages(req.Messages, params.System)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	out := &ChatCompletionRequest{
		Model:            req.Model,
		Messages:         messages,
		MaxTokens:        params.MaxTokens,
		Temperature:      params.Temperature,
		TopP:             params.TopP,
		Stop:             params.Stop,
		Seed:             params.Seed,
		FrequencyPenalty: params.FrequencyPenalty,
		PresencePenalty:  params.PresencePenalty,
		Stream:           true,
		StreamOptions:    &StreamOptions{IncludeUsage: true},
	}

	if p.id == llmprovider.ProviderOpenRouter {
		out.TopK = params.TopK
		if params.IsThinkingEnabled() {
			out.Reasoning = &ReasoningConfig{Effort: params.ThinkingLevel}
			if params.ThinkingLevel == nil {
				enabled := true
				out.Reasoning.Enabled = &enabled
			}
		}
	} else if params.IsThinkingEnabled() && params.ThinkingLevel != nil {
		out.ReasoningEffort = params.ThinkingLevel
	}

	if len(params.Tools) > 0 {
		out.Tools = convertTools(params.Tools)
	}
	if params.ToolChoice != nil {
		out.ToolChoice, err = convertToolChoice(params.ToolChoice)
		if err != nil {
			return nil, fmt.Errorf("failed to convert tool choice: %w", err)
		}
	}

	return out, nil
}

// convertMessages flattens library messages into chat messages. Tool results
// become role "tool" messages; thinking blocks are not replayed.
func convertMessages(messages []llmprovider.Message, system *string) ([]Message, error) {
	result := make([]Message, 0, len(messages)+1)
	if system != nil && *system != "" {
		result = append(result, Message{Role: "system", Content: system})
	}

	for i, msg := range messages {
		var (
			text      []string
			toolCalls []ToolCall
		)
		for j, block := range msg.Blocks {
			switch block.BlockType {
			case llmprovider.BlockTypeText:
				text = append(text, block.Text())
			case llmprovider.BlockTypeToolUse:
				if msg.Role != llmprovider.RoleAssistant {
					return nil, fmt.Errorf("message %d, block %d: tool_use outside an assistant message", i, j)
				}
				call, err := convertToolUse(block, i, j)
				if err != nil {
					return nil, err
				}
				toolCalls = append(toolCalls, call)
			case llmprovider.BlockTypeToolResult:
				id, ok := block.GetToolUseID()
				if !ok || id == "" {
					return nil, fmt.Errorf("message %d, block %d: tool_result block missing tool_use_id", i, j)
				}
				content := block.Text()
				result = append(result, Message{Role: "tool", Content: &content, ToolCallID: &id})
			}
		}

		if len(text) == 0 && len(toolCalls) == 0 {
			continue
		}
		m := Message{Role: msg.Role, ToolCalls: toolCalls}
		if len(text) > 0 {
			joined := strings.Join(text, "\n\n")
			m.Content = &joined
		}
		result = append(result, m)
	}

	return result, nil
}

func convertToolUse(block *llmprovider.Block, msgIndex, blockIndex int) (ToolCall, error) {
	id, ok := block.GetToolUseID()
	if !ok || id == "" {
		return ToolCall{}, fmt.Errorf("message %d, block %d: tool_use block missing tool_use_id", msgIndex, blockIndex)
	}
	name, ok := block.GetToolName()
	if !ok || name == "" {
		return ToolCall{}, fmt.Errorf("message %d, block %d: tool_use block missing tool_name", msgIndex, blockIndex)
	}
	input, _ := block.GetToolInput()
	if input == nil {
		input = map[string]any{}
	}
	args, err := json.Marshal(input)
	if err != nil {
		return ToolCall{}, fmt.Errorf("message %d, block %d: failed to marshal tool input: %w", msgIndex, blockIndex, err)
	}
	return ToolCall{
		ID:       id,
		Type:     "function",
		Function: FunctionCall{Name: name, Arguments: string(args)},
	}, nil
}

func convertTools(tools []llmprovider.Tool) []Tool {
	result := make([]Tool, 0, len(tools))
	for _, tool := range tools {
		parameters := tool.Function.Parameters
		if parameters == nil {
			parameters = map[string]any{"type": "object"}
		}
		def := FunctionDefinition{Name: tool.Function.Name, Parameters: parameters}
		if tool.Function.Description != "" {
			desc := tool.Function.Description
			def.Description = &desc
		}
		result = append(result, Tool{Type: "function", Function: def})
	}
	return result
}

func convertToolChoice(tc *llmprovider.ToolChoice) (any, error) {
	switch tc.Mode {
	case llmprovider.ToolChoiceModeAuto:
		return "auto", nil
	case llmprovider.ToolChoiceModeRequired:
		return "required", nil
	case llmprovider.ToolChoiceModeNone:
		return "none", nil
	case llmprovider.ToolChoiceModeSpecific:
		if tc.ToolName == nil {
			return nil, fmt.Errorf("specific tool choice requires tool_name")
		}
		return map[string]any{
			"type":     "function",
			"function": map[string]any{"name": *tc.ToolName},
		}, nil
	default:
		return "auto", nil
	}
}
