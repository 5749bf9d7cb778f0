package llmprovider

import "encoding/json"

// Block type constants
const (
	BlockTypeText       = "text"
	BlockTypeThinking   = "thinking"    // Extended thinking / reasoning
	BlockTypeToolUse    = "tool_use"    // Tool invocation requested by the model
	BlockTypeToolResult = "tool_result" // Result sent back from client-executed tool call
)

// Block represents a content block in a request message or an assembled response.
//
// The Content field stores block-type-specific structured data as a map:
//   - text: empty (text in TextContent field)
//   - thinking: {"signature": "..."} (optional, text in TextContent)
//   - tool_use: {"tool_use_id": "...", "tool_name": "...", "input": {...}, "metadata": {...}}
//   - tool_result: {"tool_use_id": "...", "is_error": false} (output in TextContent)
type Block struct {
	// BlockType indicates the type of block
	BlockType string `json:"block_type"`

	// Sequence indicates the position of this block in the turn (0-indexed)
	Sequence int `json:"sequence"`

	// TextContent contains the text for text/thinking/tool_result blocks
	TextContent *string `json:"text_content,omitempty"`

	// Content contains type-specific structured data
	Content map[string]any `json:"content,omitempty"`

	// ExecutionSide indicates where tool execution happens (tool_use blocks only)
	ExecutionSide *ExecutionSide `json:"execution_side,omitempty"`

	// Provider identifies which provider produced ProviderData
	Provider *string `json:"provider,omitempty"`

	// ProviderData stores raw provider-specific data that the normalized fields lose
	ProviderData json.RawMessage `json:"provider_data,omitempty"`
}

// NewTextBlock returns a text block.
func NewTextBlock(text string) *Block {
	return &Block{BlockType: BlockTypeText, TextContent: &text}
}

// NewToolResultBlock returns the result of a client-executed tool call.
func NewToolResultBlock(toolUseID, output string, isError bool) *Block {
	return &Block{
		BlockType:   BlockTypeToolResult,
		TextContent: &output,
		Content: map[string]any{
			"tool_use_id": toolUseID,
			"is_error":    isError,
		},
	}
}

// Text returns TextContent, or "" when unset.
func (b *Block) Text() string {
	if b.TextContent == nil {
		return ""
	}
	return *b.TextContent
}

// GetExecutionSide returns the execution side, or empty string if not set
func (b *Block) GetExecutionSide() ExecutionSide {
	if b.ExecutionSide == nil {
		return ""
	}
	return *b.ExecutionSide
}

// SetExecutionSide sets the execution side for this block
func (b *Block) SetExecutionSide(side ExecutionSide) {
	b.ExecutionSide = &side
}

// IsUserBlock returns true if this block may appear in a user turn
func (b *Block) IsUserBlock() bool {
	return b.BlockType == BlockTypeText || b.BlockType == BlockTypeToolResult
}

// IsAssistantBlock returns true if this block may appear in an assistant turn
func (b *Block) IsAssistantBlock() bool {
	return b.BlockType == BlockTypeText ||
		b.BlockType == BlockTypeThinking ||
		b.BlockType == BlockTypeToolUse
}

// IsToolUseBlock returns true if this is a tool_use block
func (b *Block) IsToolUseBlock() bool {
	return b.BlockType == BlockTypeToolUse
}

// IsToolResultBlock returns true if this is a tool_result block
func (b *Block) IsToolResultBlock() bool {
	return b.BlockType == BlockTypeToolResult
}

// GetToolUseID returns the tool_use_id from a tool_use or tool_result block
func (b *Block) GetToolUseID() (string, bool) {
	if !b.IsToolUseBlock() && !b.IsToolResultBlock() {
		return "", false
	}
	id, ok := b.Content["tool_use_id"].(string)
	return id, ok
}

// GetToolName returns the tool_name from a tool_use block
func (b *Block) GetToolName() (string, bool) {
	if !b.IsToolUseBlock() {
		return "", false
	}
	name, ok := b.Content["tool_name"].(string)
	return name, ok
}

// GetToolInput returns the input from a tool_use block
func (b *Block) GetToolInput() (map[string]any, bool) {
	if !b.IsToolUseBlock() {
		return nil, false
	}
	input, ok := b.Content["input"].(map[string]any)
	return input, ok
}

// GetSignature returns the reasoning signature from a thinking block
func (b *Block) GetSignature() string {
	if b.BlockType != BlockTypeThinking {
		return ""
	}
	sig, _ := b.Content["signature"].(string)
	return sig
}

// GetToolMetadata returns provider extras recorded on a tool_use block, such
// as a Gemini thought signature.
func (b *Block) GetToolMetadata() map[string]any {
	if !b.IsToolUseBlock() {
		return nil
	}
	md, _ := b.Content["metadata"].(map[string]any)
	return md
}
