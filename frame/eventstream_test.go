package frame

import (
	"bytes"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
	"github.com/aws/smithy-go/logging"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeEvent(t *testing.T, eventType, payload string) []byte {
	t.Helper()
	msg := eventstream.Message{Payload: []byte(payload)}
	msg.Headers.Set(":message-type", eventstream.StringValue("event"))
	msg.Headers.Set(":event-type", eventstream.StringValue(eventType))
	msg.Headers.Set(":content-type", eventstream.StringValue("application/json"))
	return encode(t, msg)
}

func encode(t *testing.T, msg eventstream.Message) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, eventstream.NewEncoder().Encode(&buf, msg))
	return buf.Bytes()
}

func converseStream(t *testing.T) (stream []byte, lengths []int) {
	msgs := [][]byte{
		encodeEvent(t, "messageStart", `{"role":"assistant"}`),
		encodeEvent(t, "contentBlockDelta", `{"contentBlockIndex":0,"delta":{"text":"Hello"}}`),
		encodeEvent(t, "contentBlockDelta", `{"contentBlockIndex":0,"delta":{"text":" wörld"}}`),
		encodeEvent(t, "messageStop", `{"stopReason":"end_turn"}`),
	}
	for _, m := range msgs {
		stream = append(stream, m...)
		lengths = append(lengths, len(m))
	}
	return stream, lengths
}

func TestEventStream_Reassemble(t *testing.T) {
	stream, _ := converseStream(t)

	frames, rest := EventStream{}.Reassemble(nil, stream)
	require.Len(t, frames, 4)
	assert.Empty(t, rest)

	assert.Equal(t, "messageStart", frames[0].Event)
	assert.Equal(t, "event", frames[0].MessageType())
	assert.Equal(t, "application/json", frames[0].Headers[":content-type"])
	assert.JSONEq(t, `{"contentBlockIndex":0,"delta":{"text":" wörld"}}`, string(frames[2].Data))
	for _, f := range frames {
		assert.NoError(t, f.Err)
	}
}

func TestEventStream_IncompleteMessage(t *testing.T) {
	msg := encodeEvent(t, "contentBlockDelta", `{"delta":{"text":"partial"}}`)

	tests := []struct {
		name string
		n    int
	}{
		{name: "empty", n: 0},
		{name: "short prelude", n: 11},
		{name: "prelude only", n: 12},
		{name: "one byte short", n: len(msg) - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, n, err := EventStream{}.NextMessage(msg[:tt.n])
			assert.ErrorIs(t, err, ErrIncomplete)
			assert.Zero(t, n)

			frames, rest := EventStream{}.Reassemble(nil, msg[:tt.n])
			assert.Empty(t, frames)
			assert.Equal(t, tt.n, len(rest))
		})
	}

	frames, rest := EventStream{}.Reassemble(msg[:len(msg)-1], msg[len(msg)-1:])
	require.Len(t, frames, 1)
	assert.Empty(t, rest)
	assert.Equal(t, `{"delta":{"text":"partial"}}`, string(frames[0].Data))
}

func TestEventStream_MessageChecksumSkipsOneMessage(t *testing.T) {
	stream, lengths := converseStream(t)

	// Corrupt a payload byte of the second message; its length prefix stays valid.
	corrupt := append([]byte(nil), stream...)
	corrupt[lengths[0]+lengths[1]-messageCRCLen-2] ^= 0xff

	frames, rest := EventStream{}.Reassemble(nil, corrupt)
	require.Len(t, frames, 4)
	assert.Empty(t, rest)

	assert.NoError(t, frames[0].Err)
	assert.ErrorIs(t, frames[1].Err, ErrMessageChecksum)
	assert.Len(t, frames[1].Raw, lengths[1])
	assert.Equal(t, "contentBlockDelta", frames[2].Event)
	assert.Equal(t, "messageStop", frames[3].Event)
}

func TestEventStream_PreludeChecksumDropsBuffer(t *testing.T) {
	stream, _ := converseStream(t)
	corrupt := append([]byte(nil), stream...)
	corrupt[9] ^= 0xff

	frames, rest := EventStream{}.Reassemble(nil, corrupt)
	require.Len(t, frames, 1)
	assert.ErrorIs(t, frames[0].Err, ErrPreludeChecksum)
	assert.Equal(t, corrupt, frames[0].Raw)
	assert.Empty(t, rest)
}

func TestEventStream_ExceptionMessage(t *testing.T) {
	msg := eventstream.Message{Payload: []byte(`{"message":"Too many requests"}`)}
	msg.Headers.Set(":message-type", eventstream.StringValue("exception"))
	msg.Headers.Set(":exception-type", eventstream.StringValue("throttlingException"))

	f, n, err := EventStream{}.NextMessage(encode(t, msg))
	require.NoError(t, err)
	assert.NotZero(t, n)
	assert.Equal(t, "exception", f.MessageType())
	assert.Equal(t, "throttlingException", f.Event)
}

func TestEventStream_FlushReportsTruncation(t *testing.T) {
	assert.Nil(t, EventStream{}.Flush(nil))

	frames := EventStream{}.Flush([]byte{0, 0, 0})
	require.Len(t, frames, 1)
	assert.ErrorIs(t, frames[0].Err, ErrTruncated)
	assert.Equal(t, []byte{0, 0, 0}, frames[0].Raw)
}

func TestEventStream_Logger(t *testing.T) {
	var logged int
	logger := logging.LoggerFunc(func(logging.Classification, string, ...interface{}) { logged++ })

	stream, _ := converseStream(t)
	frames, _ := EventStream{Logger: logger}.Reassemble(nil, stream)
	assert.Len(t, frames, 4)
	assert.NotZero(t, logged)
}

func TestEventStream_SplitAtEveryOffset(t *testing.T) {
	stream, _ := converseStream(t)
	want := feed(EventStream{}, [][]byte{stream})
	require.Len(t, want, 4)

	for i := 0; i <= len(stream); i++ {
		got := feed(EventStream{}, splitAt(stream, []int{i}))
		require.Equal(t, want, got, "split at %d", i)
	}
}

func TestEventStream_FrameBoundaryIndependence(t *testing.T) {
	stream, _ := converseStream(t)
	want := feed(EventStream{}, [][]byte{stream})

	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	properties.Property("any partition yields the same frames", prop.ForAll(
		func(cuts []int) bool {
			return assert.ObjectsAreEqual(want, feed(EventStream{}, splitAt(stream, cuts)))
		},
		gen.SliceOf(gen.IntRange(0, len(stream))),
	))
	properties.TestingRun(t)
}
