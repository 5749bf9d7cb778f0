package llmprovider

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedResponse(t *testing.T, wire string) *StreamResponse {
	t.Helper()
	s := newTestSession(WithHighWatermark(1024))
	feedString(t, s, wire)
	require.NoError(t, s.Feed(context.Background(), DoneEvent()))
	return NewStreamResponse(s, &GenerateRequest{Model: "lorem-test"})
}

func TestStreamResponse_TokensSkipNonContent(t *testing.T) {
	resp := completedResponse(t,
		sse("reasoning", "hmm")+
			sse("content", "Hello")+
			sse("meta", `{"output_tokens":2}`)+
			sse("content", ", world"))

	var tokens []string
	for tok := range resp.Tokens(context.Background()) {
		tokens = append(tokens, tok)
	}
	assert.Equal(t, []string{"Hello", ", world"}, tokens)
}

func TestStreamResponse_RoundTripText(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("Text is the concatenation of content chunks", prop.ForAll(
		func(parts []string) bool {
			var wire strings.Builder
			for _, p := range parts {
				wire.WriteString(sse("content", p))
			}
			resp := completedResponse(t, wire.String())
			return resp.Text(context.Background()) == strings.Join(parts, "")
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func TestStreamResponse_TextStopsQuietlyOnError(t *testing.T) {
	s := newTestSession()
	feedString(t, s, sse("content", "partial"))
	require.NoError(t, s.Feed(context.Background(), ErrorEvent(errors.New("reset"))))
	resp := NewStreamResponse(s, nil)

	assert.Equal(t, "", resp.Text(context.Background()))
	assert.ErrorIs(t, resp.Stream().Err(), ErrTransport)
}

func TestStreamResponse_UsageAndFinishReason(t *testing.T) {
	tests := []struct {
		name       string
		meta       string
		wantUsage  *Usage
		wantFinish FinishReason
	}{
		{
			name:       "anthropic style",
			meta:       `{"input_tokens":12,"output_tokens":30,"cache_read_input_tokens":4,"finish_reason":"end_turn"}`,
			wantUsage:  &Usage{InputTokens: 12, OutputTokens: 30, CacheReadInputTokens: 4},
			wantFinish: FinishReasonStop,
		},
		{
			name:       "length cutoff",
			meta:       `{"output_tokens":100,"finish_reason":"max_tokens"}`,
			wantUsage:  &Usage{OutputTokens: 100},
			wantFinish: FinishReasonLength,
		},
		{
			name:       "tool calls",
			meta:       `{"finish_reason":"tool_calls"}`,
			wantFinish: FinishReasonToolUse,
		},
		{
			name: "nothing reported",
			meta: `{"model":"x"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := completedResponse(t, sse("meta", tt.meta))

			usage, err := resp.Usage(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantUsage, usage)

			finish, err := resp.FinishReason(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantFinish, finish)
		})
	}
}

func TestStreamResponse_ToResponse(t *testing.T) {
	resp := completedResponse(t,
		sse("meta", `{"model":"lorem-test-2024","response_id":"msg_1","input_tokens":7}`)+
			sse("reasoning", "Let me think.")+
			sse("content", "Checking the weather")+
			sse("tool", `{"index":1,"id":"call_1","name":"get_weather","args":""}`)+
			sse("tool", `{"index":1,"args":"{\"city\":"}`)+
			sse("tool", `{"index":2,"id":"call_2","name":"get_time","args":"{}"}`)+
			sse("tool", `{"index":1,"args":"\"Paris\"}"}`)+
			sse("meta", `{"output_tokens":21,"finish_reason":"tool_use"}`))

	out, err := resp.ToResponse(context.Background())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out.ID, "resp_"))
	assert.Len(t, out.ID, len("resp_")+36)
	assert.Equal(t, "lorem-test-2024", out.Model)
	assert.Equal(t, "Checking the weather", out.Text)
	assert.Equal(t, "Let me think.", out.Reasoning)
	assert.Equal(t, &Usage{InputTokens: 7, OutputTokens: 21}, out.Usage)
	assert.Equal(t, FinishReasonToolUse, out.FinishReason)
	assert.Equal(t, "tool_use", out.StopReason)
	assert.Equal(t, "msg_1", out.ResponseMetadata["response_id"])

	require.Len(t, out.ToolCalls, 2)
	assert.Equal(t, ToolCall{ID: "call_1", Name: "get_weather", Arguments: map[string]any{"city": "Paris"}}, out.ToolCalls[0])
	assert.Equal(t, ToolCall{ID: "call_2", Name: "get_time", Arguments: map[string]any{}}, out.ToolCalls[1])

	require.Len(t, out.Blocks, 4)
	assert.Equal(t, BlockTypeThinking, out.Blocks[0].BlockType)
	assert.Equal(t, BlockTypeText, out.Blocks[1].BlockType)
	assert.Equal(t, BlockTypeToolUse, out.Blocks[2].BlockType)
	assert.Equal(t, 3, out.Blocks[3].Sequence)
	name, ok := out.Blocks[2].GetToolName()
	assert.True(t, ok)
	assert.Equal(t, "get_weather", name)
}

func TestStreamResponse_ToResponseUniqueIDs(t *testing.T) {
	a, err := completedResponse(t, sse("content", "x")).ToResponse(context.Background())
	require.NoError(t, err)
	b, err := completedResponse(t, sse("content", "x")).ToResponse(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestStreamResponse_ToResponseFailClosed(t *testing.T) {
	t.Run("stream error", func(t *testing.T) {
		s := newTestSession()
		feedString(t, s, sse("content", "partial"))
		require.NoError(t, s.Feed(context.Background(), ErrorEvent(errors.New("reset"))))

		out, err := NewStreamResponse(s, nil).ToResponse(context.Background())
		assert.Nil(t, out)
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("malformed tool arguments", func(t *testing.T) {
		resp := completedResponse(t,
			sse("tool", `{"index":0,"id":"call_1","name":"broken","args":"{\"a\":"}`))

		out, err := resp.ToResponse(context.Background())
		assert.Nil(t, out)
		assert.ErrorIs(t, err, ErrDrain)
	})
}

func TestStreamResponse_CancelReleasesTokens(t *testing.T) {
	s := newTestSession()
	h := newFakeHandle()
	s.AttachTransport(h)
	called := 0
	resp := NewStreamResponse(s, nil, WithCancelFunc(func() { called++ }))

	done := make(chan string)
	go func() { done <- resp.Text(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	resp.Cancel()
	resp.Cancel()

	select {
	case text := <-done:
		assert.Empty(t, text)
	case <-time.After(time.Second):
		t.Fatal("Text did not return after cancel")
	}
	assert.Equal(t, 1, called)
	assert.EqualValues(t, 1, h.stopped.Load())

	_, err := resp.Metadata(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}
