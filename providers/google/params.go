package google

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/haowjy/meridian-stream-go"
)

// MetaThoughtSignature is the tool call metadata key holding a Gemini thought
// signature. It must be replayed with the function call on the next turn.
const MetaThoughtSignature = "thought_signature"

// GenerateContentRequest is the body of a streamGenerateContent call.
type GenerateContentRequest struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	Tools             []ToolSet         `json:"tools,omitempty"`
	ToolConfig        *ToolConfig       `json:"toolConfig,omitempty"`
}

// Content is one conversation turn. Role is "user" or "model".
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is one piece of a turn. Exactly one of Text, FunctionCall and
// FunctionResponse is set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	Thought          bool              `json:"thought,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
	ThoughtSignature string            `json:"thoughtSignature,omitempty"`
}

// FunctionCall is a function invocation requested by the model.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// FunctionResponse returns a function's output to the model.
type FunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// GenerationConfig holds sampling parameters.
type GenerationConfig struct {
	MaxOutputTokens  *int            `json:"maxOutputTokens,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"topP,omitempty"`
	TopK             *int            `json:"topK,omitempty"`
	StopSequences    []string        `json:"stopSequences,omitempty"`
	Seed             *int            `json:"seed,omitempty"`
	PresencePenalty  *float64        `json:"presencePenalty,omitempty"`
	FrequencyPenalty *float64        `json:"frequencyPenalty,omitempty"`
	ThinkingConfig   *ThinkingConfig `json:"thinkingConfig,omitempty"`
}

// ThinkingConfig enables thought summaries.
type ThinkingConfig struct {
	IncludeThoughts bool `json:"includeThoughts"`
	ThinkingBudget  *int `json:"thinkingBudget,omitempty"`
}

// ToolSet groups function declarations.
type ToolSet struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

// FunctionDeclaration describes a callable function.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolConfig controls function calling.
type ToolConfig struct {
	FunctionCallingConfig FunctionCallingConfig `json:"functionCallingConfig"`
}

// FunctionCallingConfig is the function calling mode.
type FunctionCallingConfig struct {
	Mode                 string   `json:"mode"` // AUTO, ANY, NONE
	AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
}

func buildRequest(req *llmprovider.GenerateRequest) (*GenerateContentRequest, error) {
	params := req.Params
	if params == nil {
		params = &llmprovider.RequestParams{}
	}

	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	body := &GenerateContentRequest{Contents: contents}
	if params.System != nil && *params.System != "" {
		body.SystemInstruction = &Content{Parts: []Part{{Text: *params.System}}}
	}

	cfg := &GenerationConfig{
		MaxOutputTokens:  params.MaxTokens,
		Temperature:      params.Temperature,
		TopP:             params.TopP,
		TopK:             params.TopK,
		StopSequences:    params.Stop,
		Seed:             params.Seed,
		PresencePenalty:  params.PresencePenalty,
		FrequencyPenalty: params.FrequencyPenalty,
	}
	if params.IsThinkingEnabled() {
		budget := params.GetThinkingBudgetTokens()
		cfg.ThinkingConfig = &ThinkingConfig{IncludeThoughts: true, ThinkingBudget: &budget}
	}
	body.GenerationConfig = cfg

	if len(params.Tools) > 0 {
		decls := make([]FunctionDeclaration, 0, len(params.Tools))
		for _, t := range params.Tools {
			if t.Function.Name == "" {
				return nil, errors.New("tool name is required")
			}
			decls = append(decls, FunctionDeclaration{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  cleanSchema(t.Function.Parameters),
			})
		}
		body.Tools = []ToolSet{{FunctionDeclarations: decls}}
	}
	if params.ToolChoice != nil {
		body.ToolConfig = convertToolChoice(params.ToolChoice)
	}

	return body, nil
}

// convertMessages maps the conversation onto Gemini contents. Tool results
// are sent as functionResponse parts, which Gemini matches by function name,
// so each tool_use_id is resolved against the earlier tool_use blocks.
func convertMessages(messages []llmprovider.Message) ([]Content, error) {
	toolNames := map[string]string{}
	contents := make([]Content, 0, len(messages))

	for _, msg := range messages {
		role := "user"
		if msg.Role == llmprovider.RoleAssistant {
			role = "model"
		}

		parts := make([]Part, 0, len(msg.Blocks))
		for _, block := range msg.Blocks {
			switch block.BlockType {
			case llmprovider.BlockTypeText:
				if block.TextContent == nil {
					return nil, errors.New("text block has no content")
				}
				parts = append(parts, Part{Text: *block.TextContent})

			case llmprovider.BlockTypeThinking:
				// Thought summaries are output only.
				continue

			case llmprovider.BlockTypeToolUse:
				id, _ := block.GetToolUseID()
				name, ok := block.GetToolName()
				if !ok || name == "" {
					return nil, errors.New("tool_use block missing tool_name")
				}
				input, _ := block.GetToolInput()
				if input == nil {
					input = map[string]any{}
				}
				toolNames[id] = name

				part := Part{FunctionCall: &FunctionCall{Name: name, Args: input}}
				if sig, ok := block.GetToolMetadata()[MetaThoughtSignature].(string); ok {
					part.ThoughtSignature = sig
				}
				parts = append(parts, part)

			case llmprovider.BlockTypeToolResult:
				id, ok := block.GetToolUseID()
				if !ok || id == "" {
					return nil, errors.New("tool_result block missing tool_use_id")
				}
				name, ok := toolNames[id]
				if !ok {
					return nil, fmt.Errorf("tool_result %q has no matching tool_use", id)
				}
				response := map[string]any{"content": block.Text()}
				if isErr, _ := block.Content["is_error"].(bool); isErr {
					response = map[string]any{"error": block.Text()}
				}
				parts = append(parts, Part{FunctionResponse: &FunctionResponse{Name: name, Response: response}})

			default:
				return nil, fmt.Errorf("unsupported block type: %s", block.BlockType)
			}
		}
		if len(parts) > 0 {
			contents = append(contents, Content{Role: role, Parts: parts})
		}
	}
	return contents, nil
}

func convertToolChoice(tc *llmprovider.ToolChoice) *ToolConfig {
	cfg := FunctionCallingConfig{Mode: "AUTO"}
	switch tc.Mode {
	case llmprovider.ToolChoiceModeRequired:
		cfg.Mode = "ANY"
	case llmprovider.ToolChoiceModeNone:
		cfg.Mode = "NONE"
	case llmprovider.ToolChoiceModeSpecific:
		cfg.Mode = "ANY"
		cfg.AllowedFunctionNames = []string{*tc.ToolName}
	}
	return &ToolConfig{FunctionCallingConfig: cfg}
}

// cleanSchema copies a JSON schema, dropping the keywords Gemini's OpenAPI
// subset rejects.
func cleanSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	out := maps.Clone(schema)
	delete(out, "additionalProperties")
	delete(out, "$schema")
	if format, ok := out["format"].(string); ok && (format == "uri" || format == "uri-reference") {
		delete(out, "format")
	}
	if props, ok := out["properties"].(map[string]any); ok {
		cleaned := make(map[string]any, len(props))
		for name, v := range props {
			if m, ok := v.(map[string]any); ok {
				cleaned[name] = cleanSchema(m)
			} else {
				cleaned[name] = v
			}
		}
		out["properties"] = cleaned
	}
	if items, ok := out["items"].(map[string]any); ok {
		out["items"] = cleanSchema(items)
	}
	return out
}

func marshalRequest(body *GenerateContentRequest) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return b, nil
}
