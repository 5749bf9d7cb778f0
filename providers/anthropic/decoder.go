package anthropic

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/gjson"

	"github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/frame"
)

// Decoder decodes Messages API stream frames.
var Decoder = llmprovider.DecoderFunc(Decode)

// Decode converts one Messages API SSE event into chunks.
//
// Event mapping:
//   - message_start: model, response id and input token usage
//   - content_block_start: the id and name of a tool_use block
//   - content_block_delta: text, thinking, signature and input_json deltas
//   - message_delta: stop reason, stop sequence and output token usage
//   - error: an in-band *ProviderError
//
// ping, content_block_stop and message_stop carry nothing.
func Decode(f frame.Frame, mc llmprovider.ModelContext) ([]llmprovider.Chunk, error) {
	data := bytes.TrimSpace(f.Data)
	if len(data) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON in %q event", llmprovider.ErrDecode, f.Event)
	}
	if f.Event == "error" || gjson.GetBytes(data, "type").String() == "error" {
		return nil, llmprovider.InBandError(mc.Provider, data)
	}

	var event anthropic.MessageStreamEventUnion
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("%w: %w", llmprovider.ErrDecode, err)
	}

	switch e := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		fields := map[string]any{
			llmprovider.MetaModel:       string(e.Message.Model),
			llmprovider.MetaResponseID:  e.Message.ID,
			llmprovider.MetaInputTokens: e.Message.Usage.InputTokens,
		}
		if n := e.Message.Usage.CacheReadInputTokens; n > 0 {
			fields[llmprovider.MetaCacheReadInputTokens] = n
		}
		if n := e.Message.Usage.CacheCreationInputTokens; n > 0 {
			fields[llmprovider.MetaCacheCreationInputTokens] = n
		}
		return []llmprovider.Chunk{llmprovider.NewMeta(fields)}, nil

	case anthropic.ContentBlockStartEvent:
		if e.ContentBlock.Type != "tool_use" {
			return nil, nil
		}
		return []llmprovider.Chunk{
			llmprovider.NewToolCallFragment(int(e.Index), e.ContentBlock.ID, e.ContentBlock.Name, ""),
		}, nil

	case anthropic.ContentBlockDeltaEvent:
		switch e.Delta.Type {
		case "text_delta":
			return []llmprovider.Chunk{llmprovider.ContentChunk{Text: e.Delta.Text}}, nil
		case "thinking_delta":
			return []llmprovider.Chunk{llmprovider.ReasoningChunk{Text: e.Delta.Thinking}}, nil
		case "signature_delta":
			return []llmprovider.Chunk{llmprovider.ReasoningChunk{Signature: e.Delta.Signature}}, nil
		case "input_json_delta":
			return []llmprovider.Chunk{
				llmprovider.NewToolCallFragment(int(e.Index), "", "", e.Delta.PartialJSON),
			}, nil
		default:
			return nil, nil
		}

	case anthropic.MessageDeltaEvent:
		fields := map[string]any{
			llmprovider.MetaOutputTokens: e.Usage.OutputTokens,
		}
		if e.Delta.StopReason != "" {
			fields[llmprovider.MetaFinishReason] = string(e.Delta.StopReason)
		}
		if e.Delta.StopSequence != "" {
			fields[llmprovider.MetaStopSequence] = e.Delta.StopSequence
		}
		// Newer API versions repeat cumulative input usage on message_delta.
		if n := gjson.GetBytes(data, "usage.input_tokens"); n.Type == gjson.Number && n.Int() > 0 {
			fields[llmprovider.MetaInputTokens] = n.Int()
		}
		return []llmprovider.Chunk{llmprovider.NewMeta(fields)}, nil

	default:
		return nil, nil
	}
}
