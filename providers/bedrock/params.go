package bedrock

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/haowjy/meridian-stream-go"
)

// ConverseRequest is the body of a ConverseStream call.
type ConverseRequest struct {
	Messages                     []Message        `json:"messages"`
	System                       []SystemBlock    `json:"system,omitempty"`
	InferenceConfig              *InferenceConfig `json:"inferenceConfig,omitempty"`
	ToolConfig                   *ToolConfig      `json:"toolConfig,omitempty"`
	AdditionalModelRequestFields map[string]any   `json:"additionalModelRequestFields,omitempty"`
}

// Message is one conversation turn.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a member of the Converse ContentBlock union. Exactly one
// field is set.
type ContentBlock struct {
	Text             *string           `json:"text,omitempty"`
	ToolUse          *ToolUseBlock     `json:"toolUse,omitempty"`
	ToolResult       *ToolResultBlock  `json:"toolResult,omitempty"`
	ReasoningContent *ReasoningContent `json:"reasoningContent,omitempty"`
}

// ToolUseBlock replays a tool invocation.
type ToolUseBlock struct {
	ToolUseID string         `json:"toolUseId"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
}

// ToolResultBlock returns a tool's output.
type ToolResultBlock struct {
	ToolUseID string              `json:"toolUseId"`
	Content   []ToolResultContent `json:"content"`
	Status    string              `json:"status,omitempty"` // success, error
}

// ToolResultContent is a tool result member.
type ToolResultContent struct {
	Text string `json:"text"`
}

// ReasoningContent replays signed model reasoning.
type ReasoningContent struct {
	ReasoningText ReasoningText `json:"reasoningText"`
}

// ReasoningText is reasoning text plus its signature.
type ReasoningText struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

// SystemBlock is a system prompt member.
type SystemBlock struct {
	Text string `json:"text"`
}

// InferenceConfig holds the common sampling parameters.
type InferenceConfig struct {
	MaxTokens     *int     `json:"maxTokens,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"topP,omitempty"`
	StopSequences []string `json:"stopSequences,omitempty"`
}

// ToolConfig lists the tools and the choice mode.
type ToolConfig struct {
	Tools      []Tool         `json:"tools"`
	ToolChoice map[string]any `json:"toolChoice,omitempty"`
}

// Tool wraps a tool specification.
type Tool struct {
	ToolSpec ToolSpec `json:"toolSpec"`
}

// ToolSpec describes a callable tool.
type ToolSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema wraps a JSON schema document.
type InputSchema struct {
	JSON map[string]any `json:"json"`
}

func buildRequest(req *llmprovider.GenerateRequest) (*ConverseRequest, error) {
	params := req.Params
	if params == nil {
		params = &llmprovider.RequestParams{}
	}

	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	body := &ConverseRequest{Messages: messages}

	if params.System != nil && *params.System != "" {
		body.System = []SystemBlock{{Text: *params.System}}
	}
	if params.MaxTokens != nil || params.Temperature != nil || params.TopP != nil || len(params.Stop) > 0 {
		body.InferenceConfig = &InferenceConfig{
			MaxTokens:     params.MaxTokens,
			Temperature:   params.Temperature,
			TopP:          params.TopP,
			StopSequences: params.Stop,
		}
	}

	extra := map[string]any{}
	if params.TopK != nil {
		extra["top_k"] = *params.TopK
	}
	if params.IsThinkingEnabled() {
		extra["thinking"] = map[string]any{
			"type":          "enabled",
			"budget_tokens": params.GetThinkingBudgetTokens(),
		}
	}
	if len(extra) > 0 {
		body.AdditionalModelRequestFields = extra
	}

	if len(params.Tools) > 0 {
		tools := make([]Tool, 0, len(params.Tools))
		for _, t := range params.Tools {
			if t.Function.Name == "" {
				return nil, errors.New("tool name is required")
			}
			tools = append(tools, Tool{ToolSpec: ToolSpec{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				InputSchema: InputSchema{JSON: t.Function.Parameters},
			}})
		}
		body.ToolConfig = &ToolConfig{Tools: tools}
		if params.ToolChoice != nil {
			body.ToolConfig.ToolChoice = convertToolChoice(params.ToolChoice)
		}
	}

	return body, nil
}

func convertMessages(messages []llmprovider.Message) ([]Message, error) {
	out := make([]Message, 0, len(messages))
	for _, msg := range messages {
		content := make([]ContentBlock, 0, len(msg.Blocks))
		for _, block := range msg.Blocks {
			switch block.BlockType {
			case llmprovider.BlockTypeText:
				if block.TextContent == nil {
					return nil, errors.New("text block has no content")
				}
				text := *block.TextContent
				content = append(content, ContentBlock{Text: &text})

			case llmprovider.BlockTypeThinking:
				// Bedrock rejects reasoning without its signature.
				sig := block.GetSignature()
				if sig == "" {
					continue
				}
				content = append(content, ContentBlock{ReasoningContent: &ReasoningContent{
					ReasoningText: ReasoningText{Text: block.Text(), Signature: sig},
				}})

			case llmprovider.BlockTypeToolUse:
				id, ok := block.GetToolUseID()
				if !ok || id == "" {
					return nil, errors.New("tool_use block missing tool_use_id")
				}
				name, _ := block.GetToolName()
				input, _ := block.GetToolInput()
				if input == nil {
					input = map[string]any{}
				}
				content = append(content, ContentBlock{ToolUse: &ToolUseBlock{ToolUseID: id, Name: name, Input: input}})

			case llmprovider.BlockTypeToolResult:
				id, ok := block.GetToolUseID()
				if !ok || id == "" {
					return nil, errors.New("tool_result block missing tool_use_id")
				}
				status := "success"
				if isErr, _ := block.Content["is_error"].(bool); isErr {
					status = "error"
				}
				content = append(content, ContentBlock{ToolResult: &ToolResultBlock{
					ToolUseID: id,
					Content:   []ToolResultContent{{Text: block.Text()}},
					Status:    status,
				}})

			default:
				return nil, fmt.Errorf("unsupported block type: %s", block.BlockType)
			}
		}
		if len(content) == 0 {
			continue
		}
		// Converse requires alternating roles.
		if n := len(out); n > 0 && out[n-1].Role == msg.Role {
			out[n-1].Content = append(out[n-1].Content, content...)
			continue
		}
		out = append(out, Message{Role: msg.Role, Content: content})
	}
	return out, nil
}

func convertToolChoice(tc *llmprovider.ToolChoice) map[string]any {
	switch tc.Mode {
	case llmprovider.ToolChoiceModeRequired:
		return map[string]any{"any": map[string]any{}}
	case llmprovider.ToolChoiceModeSpecific:
		return map[string]any{"tool": map[string]any{"name": *tc.ToolName}}
	default:
		// Converse has no "none" choice.
		return map[string]any{"auto": map[string]any{}}
	}
}

func marshalRequest(body *ConverseRequest) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return b, nil
}
