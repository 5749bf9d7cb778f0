package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--log-format", "text"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func jsonLines(t *testing.T, out string) []map[string]any {
	t.Helper()
	var lines []map[string]any
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m), sc.Text())
		lines = append(lines, m)
	}
	return lines
}

func TestRootCmd_Flags(t *testing.T) {
	cmd := NewRootCmd()
	assert.Equal(t, "meridian-stream", cmd.Use)
	for _, name := range []string{"config", "debug", "log-format"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["stream"] && names["replay"] && names["version"])
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: dev")
}

func TestRoot_InvalidLogFormat(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetArgs([]string{"--log-format", "xml", "stream", "hi"})
	cmd.SetOut(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestStream_Lorem(t *testing.T) {
	out, err := execute(t, "", "stream", "-m", "lorem-instant", "--max-tokens", "10", "hello", "there")
	require.NoError(t, err)
	assert.Contains(t, out, "finish=stop input_tokens=2 output_tokens=10")
}

func TestStream_PromptFromStdin(t *testing.T) {
	out, err := execute(t, "hello from stdin\n", "stream", "-m", "lorem-instant", "--max-tokens", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "input_tokens=3 output_tokens=5")
}

func TestStream_JSON(t *testing.T) {
	out, err := execute(t, "", "stream", "-m", "lorem-instant", "--json", "hello")
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "lorem-instant", resp["Model"])
	assert.Equal(t, "stop", resp["FinishReason"])
	assert.NotEmpty(t, resp["Text"])
}

func TestStream_UnknownModel(t *testing.T) {
	_, err := execute(t, "", "stream", "-m", "not-a-model-anyone-serves", "--provider", "lorem", "hi")
	assert.Error(t, err)
}

const openAICapture = `data: {"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"Hello"}}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":" world"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}

data: [DONE]

`

func TestReplay_SSE(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.sse")
	require.NoError(t, os.WriteFile(path, []byte(openAICapture), 0o600))

	out, err := execute(t, "", "replay", "--provider", "openai", "--max-fragment", "3", "--seed", "7", path)
	require.NoError(t, err)

	lines := jsonLines(t, out)
	require.NotEmpty(t, lines)

	var text strings.Builder
	for _, l := range lines[:len(lines)-1] {
		if l["kind"] == "content" {
			text.WriteString(l["text"].(string))
		}
	}
	assert.Equal(t, "Hello world", text.String())

	summary := lines[len(lines)-1]
	assert.Equal(t, "summary", summary["kind"])
	assert.Equal(t, "Hello world", summary["text"])
	assert.Equal(t, "stop", summary["finish_reason"])
	assert.EqualValues(t, 3, summary["usage"].(map[string]any)["input_tokens"])
}

func TestReplay_Stdin(t *testing.T) {
	out, err := execute(t, openAICapture, "replay", "-")
	require.NoError(t, err)
	lines := jsonLines(t, out)
	assert.Equal(t, "Hello world", lines[len(lines)-1]["text"])
}

func bedrockEvent(t *testing.T, name, payload string) []byte {
	t.Helper()
	msg := eventstream.Message{Payload: []byte(payload)}
	msg.Headers.Set(":message-type", eventstream.StringValue("event"))
	msg.Headers.Set(":event-type", eventstream.StringValue(name))
	msg.Headers.Set(":content-type", eventstream.StringValue("application/json"))

	var buf bytes.Buffer
	require.NoError(t, eventstream.NewEncoder().Encode(&buf, msg))
	return buf.Bytes()
}

func TestReplay_EventStream(t *testing.T) {
	var capture []byte
	capture = append(capture, bedrockEvent(t, "messageStart", `{"role":"assistant"}`)...)
	capture = append(capture, bedrockEvent(t, "contentBlockDelta", `{"contentBlockIndex":0,"delta":{"text":"Bonjour"}}`)...)
	capture = append(capture, bedrockEvent(t, "contentBlockStop", `{"contentBlockIndex":0}`)...)
	capture = append(capture, bedrockEvent(t, "messageStop", `{"stopReason":"end_turn"}`)...)
	capture = append(capture, bedrockEvent(t, "metadata", `{"usage":{"inputTokens":5,"outputTokens":1}}`)...)

	path := filepath.Join(t.TempDir(), "capture.bin")
	require.NoError(t, os.WriteFile(path, capture, 0o600))

	out, err := execute(t, "", "replay", "--provider", "bedrock", "--max-fragment", "5", path)
	require.NoError(t, err)

	lines := jsonLines(t, out)
	summary := lines[len(lines)-1]
	assert.Equal(t, "Bonjour", summary["text"])
	assert.Equal(t, "stop", summary["finish_reason"])
	assert.EqualValues(t, 1, summary["usage"].(map[string]any)["output_tokens"])
}

func TestReplay_UnknownProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.sse")
	require.NoError(t, os.WriteFile(path, []byte(openAICapture), 0o600))

	_, err := execute(t, "", "replay", "--provider", "cohere", path)
	assert.Error(t, err)
}
