package llmprovider

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"
)

// GenerateResponse contains the LLM provider's response.
type GenerateResponse struct {
	// ID is a unique identifier generated for this response ("resp_<uuid>")
	ID string

	// Model is the model that was used (may differ from request if aliased)
	Model string

	// Text is the concatenated assistant text
	Text string

	// Reasoning is the concatenated reasoning text (empty when the model did not reason)
	Reasoning string

	// ToolCalls lists the tool invocations requested by the model, in order
	ToolCalls []ToolCall

	// Usage is the token accounting reported by the provider (nil if not reported)
	Usage *Usage

	// FinishReason is the normalized reason generation stopped
	FinishReason FinishReason

	// StopReason is the raw provider stop reason (e.g., "end_turn", "max_tokens")
	StopReason string

	// Blocks is the response as content blocks: thinking, then text, then tool_use
	Blocks []*Block

	// ResponseMetadata contains every metadata field reported over the stream
	// Examples: response_id, stop_sequence, cache_creation_input_tokens, etc.
	ResponseMetadata map[string]interface{}
}

// ToolCall is a fully assembled tool invocation.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// toolCallBuilder accumulates the fragments of one tool call.
type toolCallBuilder struct {
	call    ToolCall
	partial bool
	args    strings.Builder
}

// AssembleResponse folds a drained chunk sequence and its final metadata into
// a GenerateResponse. Tool call fragments are merged by index and their
// argument JSON parsed; unparseable arguments fail the whole assembly.
func AssembleResponse(chunks []Chunk, meta Metadata, model string) (*GenerateResponse, error) {
	var (
		text      strings.Builder
		reasoning strings.Builder
		signature string
		calls     []*toolCallBuilder
		byIndex   = map[int]*toolCallBuilder{}
	)

	for _, c := range chunks {
		switch c := c.(type) {
		case ContentChunk:
			text.WriteString(c.Text)
		case ReasoningChunk:
			reasoning.WriteString(c.Text)
			if c.Signature != "" {
				signature += c.Signature
			}
		case ToolCallChunk:
			if !c.Partial {
				calls = append(calls, &toolCallBuilder{call: ToolCall{
					ID:        c.ID,
					Name:      c.Name,
					Arguments: maps.Clone(c.Arguments),
					Metadata:  maps.Clone(c.Metadata),
				}})
				continue
			}
			b, ok := byIndex[c.Index]
			if !ok {
				b = &toolCallBuilder{partial: true}
				byIndex[c.Index] = b
				calls = append(calls, b)
			}
			if c.ID != "" {
				b.call.ID = c.ID
			}
			if c.Name != "" {
				b.call.Name = c.Name
			}
			if len(c.Metadata) > 0 {
				if b.call.Metadata == nil {
					b.call.Metadata = map[string]any{}
				}
				maps.Copy(b.call.Metadata, c.Metadata)
			}
			b.args.WriteString(c.PartialJSON)
		}
	}

	resp := &GenerateResponse{
		ID:               "resp_" + uuid.NewString(),
		Model:            model,
		Text:             text.String(),
		Reasoning:        reasoning.String(),
		Usage:            meta.Usage(),
		FinishReason:     meta.FinishReason(),
		ResponseMetadata: maps.Clone(meta.Fields),
	}
	if m := meta.Model(); m != "" {
		resp.Model = m
	}
	if raw, ok := meta.Fields[MetaFinishReason]; ok && raw != nil {
		resp.StopReason = fmt.Sprint(raw)
	}

	for _, b := range calls {
		if b.partial {
			args, err := parseToolArguments(b.args.String())
			if err != nil {
				return nil, &StreamError{Op: "drain", Err: fmt.Errorf("%w: tool call %q: %w", ErrDrain, b.call.Name, err)}
			}
			b.call.Arguments = args
		}
		if b.call.Arguments == nil {
			b.call.Arguments = map[string]any{}
		}
		resp.ToolCalls = append(resp.ToolCalls, b.call)
	}

	resp.Blocks = responseBlocks(resp, signature)
	return resp, nil
}

func parseToolArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid arguments JSON: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func responseBlocks(resp *GenerateResponse, signature string) []*Block {
	var blocks []*Block
	if resp.Reasoning != "" || signature != "" {
		thinking := resp.Reasoning
		b := &Block{BlockType: BlockTypeThinking, TextContent: &thinking}
		if signature != "" {
			b.Content = map[string]interface{}{"signature": signature}
		}
		blocks = append(blocks, b)
	}
	if resp.Text != "" {
		text := resp.Text
		blocks = append(blocks, &Block{BlockType: BlockTypeText, TextContent: &text})
	}
	for _, tc := range resp.ToolCalls {
		b := &Block{
			BlockType: BlockTypeToolUse,
			Content: map[string]interface{}{
				"tool_use_id": tc.ID,
				"tool_name":   tc.Name,
				"input":       tc.Arguments,
			},
		}
		if len(tc.Metadata) > 0 {
			b.Content["metadata"] = maps.Clone(tc.Metadata)
		}
		b.SetExecutionSide(ExecutionSideClient)
		blocks = append(blocks, b)
	}
	for i, b := range blocks {
		b.Sequence = i
	}
	return blocks
}
