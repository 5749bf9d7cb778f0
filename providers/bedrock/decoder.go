package bedrock

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/frame"
)

// Decoder decodes ConverseStream event stream messages.
var Decoder = llmprovider.DecoderFunc(Decode)

// Decode converts one ConverseStream message into chunks. The frame event is
// the :event-type header; exception messages carry the :exception-type
// instead and become a *ProviderError.
func Decode(f frame.Frame, mc llmprovider.ModelContext) ([]llmprovider.Chunk, error) {
	data := bytes.TrimSpace(f.Data)

	if t := f.MessageType(); t != "event" {
		return nil, exceptionError(mc.Provider, f.Event, data)
	}
	if len(data) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON in %q event", llmprovider.ErrDecode, f.Event)
	}
	ev := gjson.ParseBytes(data)

	switch f.Event {
	case "messageStart":
		return nil, nil

	case "contentBlockStart":
		tool := ev.Get("start.toolUse")
		if !tool.Exists() {
			return nil, nil
		}
		idx := int(ev.Get("contentBlockIndex").Int())
		return []llmprovider.Chunk{
			llmprovider.NewToolCallFragment(idx, tool.Get("toolUseId").String(), tool.Get("name").String(), ""),
		}, nil

	case "contentBlockDelta":
		idx := int(ev.Get("contentBlockIndex").Int())
		delta := ev.Get("delta")
		switch {
		case delta.Get("text").Exists():
			return []llmprovider.Chunk{llmprovider.ContentChunk{Text: delta.Get("text").String()}}, nil
		case delta.Get("reasoningContent").Exists():
			rc := delta.Get("reasoningContent")
			return []llmprovider.Chunk{llmprovider.ReasoningChunk{
				Text:      rc.Get("text").String(),
				Signature: rc.Get("signature").String(),
			}}, nil
		case delta.Get("toolUse").Exists():
			return []llmprovider.Chunk{
				llmprovider.NewToolCallFragment(idx, "", "", delta.Get("toolUse.input").String()),
			}, nil
		default:
			return nil, nil
		}

	case "messageStop":
		fields := map[string]any{}
		if r := ev.Get("stopReason").String(); r != "" {
			fields[llmprovider.MetaFinishReason] = r
		}
		if len(fields) == 0 {
			return nil, nil
		}
		return []llmprovider.Chunk{llmprovider.NewMeta(fields)}, nil

	case "metadata":
		usage := ev.Get("usage")
		if !usage.IsObject() {
			return nil, nil
		}
		fields := map[string]any{
			llmprovider.MetaInputTokens:  usage.Get("inputTokens").Int(),
			llmprovider.MetaOutputTokens: usage.Get("outputTokens").Int(),
		}
		if n := usage.Get("cacheReadInputTokens").Int(); n > 0 {
			fields[llmprovider.MetaCacheReadInputTokens] = n
		}
		if n := usage.Get("cacheWriteInputTokens").Int(); n > 0 {
			fields[llmprovider.MetaCacheCreationInputTokens] = n
		}
		if ms := ev.Get("metrics.latencyMs"); ms.Exists() {
			fields["latency_ms"] = ms.Int()
		}
		return []llmprovider.Chunk{llmprovider.NewMeta(fields)}, nil

	default:
		// contentBlockStop and events added after this decoder was written.
		return nil, nil
	}
}

// exceptionError maps a ConverseStream exception onto the library's errors.
func exceptionError(provider llmprovider.ProviderID, exceptionType string, payload []byte) *llmprovider.ProviderError {
	message := gjson.GetBytes(payload, "message").String()
	if message == "" {
		message = gjson.GetBytes(payload, "Message").String()
	}
	if message == "" {
		message = strings.TrimSpace(string(payload))
	}

	pe := &llmprovider.ProviderError{
		Provider: provider.String(),
		Message:  exceptionType + ": " + message,
		Err:      llmprovider.ErrProviderUnavailable,
	}
	switch exceptionType {
	case "throttlingException":
		pe.Retryable = true
		pe.Err = llmprovider.ErrRateLimited
	case "serviceUnavailableException", "internalServerException", "modelStreamErrorException":
		pe.Retryable = true
	case "validationException":
		pe.Err = llmprovider.ErrInvalidRequest
	case "accessDeniedException":
		pe.Err = llmprovider.ErrInvalidAPIKey
	}
	return pe
}
