package anthropic

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/frame"
)

const thinkingToolStream = `event: message_start
data: {"type":"message_start","message":{"id":"msg_01","type":"message","role":"assistant","model":"claude-sonnet-4-5-20250929","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":25,"output_tokens":1,"cache_read_input_tokens":10}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":"","signature":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"The user wants weather."}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"signature_delta","signature":"EqQBCgIYAh"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: ping
data: {"type":"ping"}

event: content_block_start
data: {"type":"content_block_start","index":1,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"Checking."}}

event: content_block_stop
data: {"type":"content_block_stop","index":1}

event: content_block_start
data: {"type":"content_block_start","index":2,"content_block":{"type":"tool_use","id":"toolu_01","name":"get_weather","input":{}}}

event: content_block_delta
data: {"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":"{\"city\": \"Par"}}

event: content_block_delta
data: {"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":"is\"}"}}

event: content_block_stop
data: {"type":"content_block_stop","index":2}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":89}}

event: message_stop
data: {"type":"message_stop"}

`

var testContext = llmprovider.ModelContext{Provider: llmprovider.ProviderAnthropic, Model: "claude-sonnet-4-5"}

func decodeAll(t *testing.T, wire string) []llmprovider.Chunk {
	t.Helper()
	frames, rest := frame.SSE{}.Reassemble(nil, []byte(wire))
	require.Empty(t, strings.TrimSpace(string(rest)))

	var out []llmprovider.Chunk
	for _, f := range frames {
		chunks, err := Decode(f, testContext)
		require.NoError(t, err, "event %s", f.Event)
		out = append(out, chunks...)
	}
	return out
}

func TestDecode_Stream(t *testing.T) {
	chunks := decodeAll(t, thinkingToolStream)

	require.Len(t, chunks, 8)
	start := chunks[0].(llmprovider.MetaChunk).Fields
	assert.Equal(t, "claude-sonnet-4-5-20250929", start[llmprovider.MetaModel])
	assert.Equal(t, "msg_01", start[llmprovider.MetaResponseID])
	assert.EqualValues(t, 25, start[llmprovider.MetaInputTokens])
	assert.EqualValues(t, 10, start[llmprovider.MetaCacheReadInputTokens])

	assert.Equal(t, llmprovider.ReasoningChunk{Text: "The user wants weather."}, chunks[1])
	assert.Equal(t, llmprovider.ReasoningChunk{Signature: "EqQBCgIYAh"}, chunks[2])
	assert.Equal(t, llmprovider.ContentChunk{Text: "Checking."}, chunks[3])
	assert.Equal(t, llmprovider.NewToolCallFragment(2, "toolu_01", "get_weather", ""), chunks[4])
	assert.Equal(t, llmprovider.NewToolCallFragment(2, "", "", `{"city": "Par`), chunks[5])
	assert.Equal(t, llmprovider.NewToolCallFragment(2, "", "", `is"}`), chunks[6])

	end := chunks[7].(llmprovider.MetaChunk).Fields
	assert.Equal(t, "tool_use", end[llmprovider.MetaFinishReason])
	assert.EqualValues(t, 89, end[llmprovider.MetaOutputTokens])
	assert.NotContains(t, end, llmprovider.MetaStopSequence)
}

func TestDecode_StreamThroughSession(t *testing.T) {
	s := llmprovider.NewSession(Decoder, frame.SSE{}, testContext, llmprovider.WithHighWatermark(64))
	for i := 0; i < len(thinkingToolStream); i += 11 {
		end := min(i+11, len(thinkingToolStream))
		require.NoError(t, s.Feed(context.Background(), llmprovider.DataEvent([]byte(thinkingToolStream[i:end]))))
	}
	require.NoError(t, s.Feed(context.Background(), llmprovider.DoneEvent()))

	out, err := llmprovider.NewStreamResponse(s, nil).ToResponse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Checking.", out.Text)
	assert.Equal(t, "The user wants weather.", out.Reasoning)
	assert.Equal(t, llmprovider.FinishReasonToolUse, out.FinishReason)
	assert.Equal(t, &llmprovider.Usage{InputTokens: 25, OutputTokens: 89, CacheReadInputTokens: 10}, out.Usage)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, map[string]any{"city": "Paris"}, out.ToolCalls[0].Arguments)
	assert.Equal(t, "EqQBCgIYAh", out.Blocks[0].GetSignature())
}

func TestDecode_ErrorEvent(t *testing.T) {
	_, err := Decode(frame.Frame{
		Event: "error",
		Data:  []byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`),
	}, testContext)

	var pe *llmprovider.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Retryable)
	assert.Equal(t, "anthropic", pe.Provider)
}

func TestDecode_StopSequence(t *testing.T) {
	chunks, err := Decode(frame.Frame{
		Event: "message_delta",
		Data:  []byte(`{"type":"message_delta","delta":{"stop_reason":"stop_sequence","stop_sequence":"END"},"usage":{"input_tokens":7,"output_tokens":3}}`),
	}, testContext)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	fields := chunks[0].(llmprovider.MetaChunk).Fields
	assert.Equal(t, "END", fields[llmprovider.MetaStopSequence])
	assert.EqualValues(t, 7, fields[llmprovider.MetaInputTokens])
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode(frame.Frame{Event: "content_block_delta", Data: []byte(`{"type":"content_block_delta",`)}, testContext)
	assert.ErrorIs(t, err, llmprovider.ErrDecode)
}
