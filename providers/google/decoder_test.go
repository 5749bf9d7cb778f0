package google

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/frame"
)

const functionCallStream = "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Considering the city.\",\"thought\":true}],\"role\":\"model\"},\"index\":0}],\"modelVersion\":\"gemini-2.5-flash\",\"responseId\":\"r-1\"}\r\n\r\n" +
	"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Let me check.\"}],\"role\":\"model\"},\"index\":0}],\"modelVersion\":\"gemini-2.5-flash\",\"responseId\":\"r-1\"}\r\n\r\n" +
	"data: {\"candidates\":[{\"content\":{\"parts\":[{\"functionCall\":{\"name\":\"get_weather\",\"args\":{\"city\":\"Paris\"}},\"thoughtSignature\":\"CiQB\"}],\"role\":\"model\"},\"finishReason\":\"STOP\",\"index\":0}],\"usageMetadata\":{\"promptTokenCount\":31,\"candidatesTokenCount\":12,\"thoughtsTokenCount\":40,\"totalTokenCount\":83},\"modelVersion\":\"gemini-2.5-flash\",\"responseId\":\"r-1\"}\r\n\r\n"

var testContext = llmprovider.ModelContext{Provider: llmprovider.ProviderGoogle, Model: "gemini-2.5-flash"}

func decodeAll(t *testing.T, wire string) []llmprovider.Chunk {
	t.Helper()
	frames, rest := frame.SSE{}.Reassemble(nil, []byte(wire))
	require.Empty(t, strings.TrimSpace(string(rest)))

	var out []llmprovider.Chunk
	for _, f := range frames {
		chunks, err := Decode(f, testContext)
		require.NoError(t, err)
		out = append(out, chunks...)
	}
	return out
}

func TestDecode_FunctionCallStream(t *testing.T) {
	chunks := decodeAll(t, functionCallStream)
	require.Len(t, chunks, 4)

	assert.Equal(t, llmprovider.ReasoningChunk{Text: "Considering the city."}, chunks[0])
	assert.Equal(t, llmprovider.ContentChunk{Text: "Let me check."}, chunks[1])

	call := chunks[2].(llmprovider.ToolCallChunk)
	assert.False(t, call.Partial)
	assert.Equal(t, "get_weather", call.Name)
	assert.True(t, strings.HasPrefix(call.ID, "call_"))
	assert.Equal(t, map[string]any{"city": "Paris"}, call.Arguments)
	assert.Equal(t, "CiQB", call.Metadata[MetaThoughtSignature])

	meta := chunks[3].(llmprovider.MetaChunk).Fields
	assert.Equal(t, "tool_use", meta[llmprovider.MetaFinishReason])
	assert.EqualValues(t, 31, meta[llmprovider.MetaInputTokens])
	assert.EqualValues(t, 52, meta[llmprovider.MetaOutputTokens])
	assert.EqualValues(t, 40, meta[llmprovider.MetaReasoningTokens])
	assert.Equal(t, "gemini-2.5-flash", meta[llmprovider.MetaModel])
	assert.Equal(t, "r-1", meta[llmprovider.MetaResponseID])
}

func TestDecode_FinishReasons(t *testing.T) {
	tests := []struct {
		name string
		data string
		want llmprovider.FinishReason
	}{
		{"stop", `{"candidates":[{"content":{"parts":[{"text":"x"}]},"finishReason":"STOP"}]}`, llmprovider.FinishReasonStop},
		{"max tokens", `{"candidates":[{"content":{"parts":[{"text":"x"}]},"finishReason":"MAX_TOKENS"}]}`, llmprovider.FinishReasonLength},
		{"safety", `{"candidates":[{"finishReason":"SAFETY"}]}`, llmprovider.FinishReasonStop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := Decode(frame.Frame{Data: []byte(tt.data)}, testContext)
			require.NoError(t, err)
			meta := chunks[len(chunks)-1].(llmprovider.MetaChunk)
			assert.Equal(t, tt.want, llmprovider.NormalizeFinishReason(meta.Fields[llmprovider.MetaFinishReason]))
		})
	}
}

func TestDecode_KeepsProvidedCallID(t *testing.T) {
	chunks, err := Decode(frame.Frame{Data: []byte(`{"candidates":[{"content":{"parts":[{"functionCall":{"id":"fc_7","name":"noop"}}]}}]}`)}, testContext)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	call := chunks[0].(llmprovider.ToolCallChunk)
	assert.Equal(t, "fc_7", call.ID)
	assert.NotNil(t, call.Arguments)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(frame.Frame{Data: []byte(`{"error":{"code":503,"message":"The model is overloaded.","status":"UNAVAILABLE"}}`)}, testContext)
	var pe *llmprovider.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Retryable)
	assert.Contains(t, pe.Message, "overloaded")

	_, err = Decode(frame.Frame{Data: []byte(`{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`)}, testContext)
	assert.ErrorIs(t, err, llmprovider.ErrRateLimited)

	_, err = Decode(frame.Frame{Data: []byte(`[1,2`)}, testContext)
	assert.ErrorIs(t, err, llmprovider.ErrDecode)

	_, err = Decode(frame.Frame{Data: []byte(`[1,2]`)}, testContext)
	assert.ErrorIs(t, err, llmprovider.ErrDecode)
}
