package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/tidwall/gjson"

	"github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/frame"
)

// Decoder decodes Chat Completions stream frames. It is shared by every
// OpenAI-compatible preset and by the lorem mock provider.
var Decoder = llmprovider.DecoderFunc(Decode)

// Decode converts one Chat Completions SSE frame into chunks.
//
// Only the first choice is decoded. Reasoning text is read from the
// non-standard "reasoning", "reasoning_content" and "reasoning_details"
// delta fields that OpenRouter, Groq, xAI and DeepSeek-style servers emit.
func Decode(f frame.Frame, mc llmprovider.ModelContext) ([]llmprovider.Chunk, error) {
	data := bytes.TrimSpace(f.Data)
	if len(data) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON in %q event", llmprovider.ErrDecode, f.Event)
	}
	if e := gjson.GetBytes(data, "error"); e.Exists() && e.Type != gjson.Null {
		return nil, llmprovider.InBandError(mc.Provider, data)
	}

	var chunk openaisdk.ChatCompletionChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("%w: %w", llmprovider.ErrDecode, err)
	}

	var (
		out   []llmprovider.Chunk
		meta  = map[string]any{}
		first bool
	)
	for i, choice := range chunk.Choices {
		if choice.Index != 0 {
			continue
		}
		delta := gjson.GetBytes(data, fmt.Sprintf("choices.%d.delta", i))
		if text := reasoningText(delta); text != "" {
			out = append(out, llmprovider.ReasoningChunk{Text: text})
		}
		if choice.Delta.Content != "" {
			out = append(out, llmprovider.ContentChunk{Text: choice.Delta.Content})
		}
		for _, tc := range choice.Delta.ToolCalls {
			out = append(out, llmprovider.NewToolCallFragment(int(tc.Index), tc.ID, tc.Function.Name, tc.Function.Arguments))
		}
		if choice.FinishReason != "" {
			meta[llmprovider.MetaFinishReason] = string(choice.FinishReason)
		}
		if choice.Delta.Role != "" {
			first = true
		}
	}

	if u := gjson.GetBytes(data, "usage"); u.IsObject() {
		meta[llmprovider.MetaInputTokens] = chunk.Usage.PromptTokens
		meta[llmprovider.MetaOutputTokens] = chunk.Usage.CompletionTokens
		if n := chunk.Usage.CompletionTokensDetails.ReasoningTokens; n > 0 {
			meta[llmprovider.MetaReasoningTokens] = n
		}
		if n := chunk.Usage.PromptTokensDetails.CachedTokens; n > 0 {
			meta[llmprovider.MetaCacheReadInputTokens] = n
		}
	}

	if len(meta) > 0 || first {
		if chunk.Model != "" {
			meta[llmprovider.MetaModel] = chunk.Model
		}
		if chunk.ID != "" {
			meta[llmprovider.MetaResponseID] = chunk.ID
		}
		out = append(out, llmprovider.NewMeta(meta))
	}
	return out, nil
}

func reasoningText(delta gjson.Result) string {
	for _, key := range []string{"reasoning", "reasoning_content"} {
		if r := delta.Get(key); r.Type == gjson.String && r.Str != "" {
			return r.Str
		}
	}
	var b strings.Builder
	for _, d := range delta.Get("reasoning_details").Array() {
		switch d.Get("type").String() {
		case "reasoning.text":
			b.WriteString(d.Get("text").String())
		case "reasoning.summary":
			b.WriteString(d.Get("summary").String())
		}
	}
	return b.String()
}
