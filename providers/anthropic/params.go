package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/sjson"

	"github.com/haowjy/meridian-stream-go"
)

// Default max_tokens; the Messages API requires one.
const defaultMaxTokens = 4096

// buildMessageParams constructs Anthropic API parameters from a GenerateRequest.
func buildMessageParams(req *llmprovider.GenerateRequest) (anthropic.MessageNewParams, error) {
	messages, err := convertToAnthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("failed to convert messages: %w", err)
	}

	params := req.Params
	if params == nil {
		params = &llmprovider.RequestParams{}
	}

	apiParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(params.GetMaxTokens(defaultMaxTokens)),
	}

	// Anthropic accepts 0.0-1.0
	if params.Temperature != nil {
		apiParams.Temperature = anthropic.Float(min(*params.Temperature, 1.0))
	}
	if params.TopP != nil {
		apiParams.TopP = anthropic.Float(*params.TopP)
	}
	if params.TopK != nil {
		apiParams.TopK = anthropic.Int(int64(*params.TopK))
	}
	if len(params.Stop) > 0 {
		apiParams.StopSequences = params.Stop
	}
	if params.System != nil {
		apiParams.System = []anthropic.TextBlockParam{{Type: "text", Text: *params.System}}
	}

	// Thinking mode - convert user-friendly level to token budget
	if params.IsThinkingEnabled() {
		if budget := params.GetThinkingBudgetTokens(); budget > 0 {
			apiParams.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(budget))
		}
	}

	if len(params.Tools) > 0 {
		tools, err := convertToolsToAnthropicTools(params.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		apiParams.Tools = tools
	}
	if params.ToolChoice != nil {
		choice, err := convertToolChoice(params.ToolChoice)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		apiParams.ToolChoice = *choice
	}

	return apiParams, nil
}

// buildRequestBody marshals params and switches the request to streaming.
func buildRequestBody(params anthropic.MessageNewParams) ([]byte, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return sjson.SetBytes(body, "stream", true)
}

// convertToAnthropicMessages converts library messages to Anthropic SDK format.
// Consecutive messages with the same role are merged first, since the
// Messages API requires alternating turns.
func convertToAnthropicMessages(messages []llmprovider.Message) ([]anthropic.MessageParam, error) {
	merged := mergeConsecutiveSameRoleMessages(messages)
	result := make([]anthropic.MessageParam, 0, len(merged))

	for i, msg := range merged {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Blocks))

		for j, block := range msg.Blocks {
			switch block.BlockType {
			case llmprovider.BlockTypeText:
				if block.TextContent == nil {
					return nil, fmt.Errorf("message %d, block %d: text block missing text_content", i, j)
				}
				blocks = append(blocks, anthropic.NewTextBlock(*block.TextContent))

			case llmprovider.BlockTypeToolUse:
				toolUseID, ok := block.GetToolUseID()
				if !ok || toolUseID == "" {
					return nil, fmt.Errorf("message %d, block %d: tool_use block missing tool_use_id", i, j)
				}
				toolName, ok := block.GetToolName()
				if !ok || toolName == "" {
					return nil, fmt.Errorf("message %d, block %d: tool_use block missing tool_name", i, j)
				}
				input, ok := block.Content["input"]
				if !ok {
					return nil, fmt.Errorf("message %d, block %d: tool_use block missing input", i, j)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(toolUseID, input, toolName))

			case llmprovider.BlockTypeToolResult:
				toolUseID, ok := block.GetToolUseID()
				if !ok || toolUseID == "" {
					return nil, fmt.Errorf("message %d, block %d: tool_result block missing tool_use_id", i, j)
				}
				isError, _ := block.Content["is_error"].(bool)
				blocks = append(blocks, anthropic.NewToolResultBlock(toolUseID, block.Text(), isError))

			case llmprovider.BlockTypeThinking:
				// Unsigned thinking cannot be replayed
				signature := block.GetSignature()
				if signature == "" {
					continue
				}
				blocks = append(blocks, anthropic.NewThinkingBlock(signature, block.Text()))
			}
		}

		switch msg.Role {
		case llmprovider.RoleUser:
			result = append(result, anthropic.NewUserMessage(blocks...))
		case llmprovider.RoleAssistant:
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("message %d: unsupported role '%s'", i, msg.Role)
		}
	}

	return result, nil
}

// mergeConsecutiveSameRoleMessages joins runs of same-role messages,
// preserving block order.
func mergeConsecutiveSameRoleMessages(messages []llmprovider.Message) []llmprovider.Message {
	if len(messages) == 0 {
		return messages
	}
	out := make([]llmprovider.Message, 0, len(messages))
	for _, msg := range messages {
		if n := len(out); n > 0 && out[n-1].Role == msg.Role {
			out[n-1].Blocks = append(out[n-1].Blocks, msg.Blocks...)
			continue
		}
		out = append(out, llmprovider.Message{
			Role:   msg.Role,
			Blocks: append([]*llmprovider.Block(nil), msg.Blocks...),
		})
	}
	return out
}
