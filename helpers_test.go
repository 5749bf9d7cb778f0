package llmprovider

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/haowjy/meridian-stream-go/frame"
)

// Test helper functions shared across test files

func stringPtr(s string) *string {
	return &s
}

func intPtr(i int) *int {
	return &i
}

func float64Ptr(f float64) *float64 {
	return &f
}

func boolPtr(b bool) *bool {
	return &b
}

// sse renders one server-sent event.
func sse(event, data string) string {
	var sb strings.Builder
	if event != "" {
		fmt.Fprintf(&sb, "event: %s\n", event)
	}
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&sb, "data: %s\n", line)
	}
	sb.WriteString("\n")
	return sb.String()
}

// testDecoder decodes the toy wire format used by session tests: the SSE
// event name selects the chunk kind and the data carries its payload.
var testDecoder = DecoderFunc(func(f frame.Frame, _ ModelContext) ([]Chunk, error) {
	switch f.Event {
	case "content", "":
		return []Chunk{ContentChunk{Text: string(f.Data)}}, nil
	case "pair":
		return []Chunk{ContentChunk{Text: string(f.Data)}, ContentChunk{Text: string(f.Data)}}, nil
	case "reasoning":
		return []Chunk{ReasoningChunk{Text: string(f.Data)}}, nil
	case "meta":
		var fields map[string]any
		if err := json.Unmarshal(f.Data, &fields); err != nil {
			return nil, err
		}
		return []Chunk{NewMeta(fields)}, nil
	case "tool":
		var p struct {
			Index int    `json:"index"`
			ID    string `json:"id"`
			Name  string `json:"name"`
			Args  string `json:"args"`
		}
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return nil, err
		}
		return []Chunk{NewToolCallFragment(p.Index, p.ID, p.Name, p.Args)}, nil
	case "error":
		return nil, InBandError(ProviderLorem, f.Data)
	case "invalid":
		return []Chunk{ContentChunk{Text: "kept"}, ToolCallChunk{Name: "broken"}}, nil
	case "ping":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown event %q", f.Event)
	}
})

func newTestSession(opts ...SessionOption) *Session {
	return NewSession(testDecoder, frame.SSE{}, ModelContext{Provider: ProviderLorem, Model: "lorem-test"}, opts...)
}

// fakeHandle is a TransportHandle controlled by the test.
type fakeHandle struct {
	done     chan struct{}
	once     sync.Once
	stopped  atomic.Int32
	onStop   func()
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{done: make(chan struct{})}
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) Stop() {
	h.stopped.Add(1)
	if h.onStop != nil {
		h.onStop()
	}
	h.finish()
}

func (h *fakeHandle) finish() {
	h.once.Do(func() { close(h.done) })
}
