package google

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/frame"
)

// Decoder decodes streamGenerateContent SSE frames.
var Decoder = llmprovider.DecoderFunc(Decode)

// Decode converts one GenerateContentResponse frame into chunks.
//
// Gemini sends whole function calls rather than argument fragments, so each
// functionCall part becomes a materialized ToolCallChunk. Gemini does not
// always assign call ids; a missing id is replaced with a generated one.
func Decode(f frame.Frame, mc llmprovider.ModelContext) ([]llmprovider.Chunk, error) {
	data := bytes.TrimSpace(f.Data)
	if len(data) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", llmprovider.ErrDecode)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected object, got %s", llmprovider.ErrDecode, root.Type)
	}
	if e := root.Get("error"); e.Exists() {
		pe := llmprovider.InBandError(mc.Provider, data)
		switch e.Get("status").String() {
		case "UNAVAILABLE", "INTERNAL", "RESOURCE_EXHAUSTED":
			pe.Retryable = true
		}
		return nil, pe
	}

	var (
		out     []llmprovider.Chunk
		meta    = map[string]any{}
		calling bool
	)

	candidate := root.Get("candidates.0")
	candidate.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
		switch {
		case part.Get("functionCall").Exists():
			call := part.Get("functionCall")
			args, _ := call.Get("args").Value().(map[string]any)
			id := call.Get("id").String()
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			tc := llmprovider.NewToolCall(id, call.Get("name").String(), args)
			if sig := part.Get("thoughtSignature").String(); sig != "" {
				tc.Metadata = map[string]any{MetaThoughtSignature: sig}
			}
			out = append(out, tc)
			calling = true

		case part.Get("thought").Bool():
			if text := part.Get("text").String(); text != "" {
				out = append(out, llmprovider.ReasoningChunk{Text: text})
			}

		case part.Get("text").Exists():
			if text := part.Get("text").String(); text != "" {
				out = append(out, llmprovider.ContentChunk{Text: text})
			}
		}
		return true
	})

	if reason := candidate.Get("finishReason").String(); reason != "" {
		// Gemini reports STOP after a function call; surface it as tool use.
		if calling && reason == "STOP" {
			reason = "tool_use"
		}
		meta[llmprovider.MetaFinishReason] = reason
	}

	if usage := root.Get("usageMetadata"); usage.IsObject() {
		meta[llmprovider.MetaInputTokens] = usage.Get("promptTokenCount").Int()
		meta[llmprovider.MetaOutputTokens] = usage.Get("candidatesTokenCount").Int() + usage.Get("thoughtsTokenCount").Int()
		if n := usage.Get("thoughtsTokenCount").Int(); n > 0 {
			meta[llmprovider.MetaReasoningTokens] = n
		}
		if n := usage.Get("cachedContentTokenCount").Int(); n > 0 {
			meta[llmprovider.MetaCacheReadInputTokens] = n
		}
	}

	if len(meta) > 0 {
		if v := root.Get("modelVersion").String(); v != "" {
			meta[llmprovider.MetaModel] = v
		}
		if id := root.Get("responseId").String(); id != "" {
			meta[llmprovider.MetaResponseID] = id
		}
		out = append(out, llmprovider.NewMeta(meta))
	}
	return out, nil
}
