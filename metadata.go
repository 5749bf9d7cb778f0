package llmprovider

import (
	"fmt"
	"maps"
	"net/http"
	"strconv"
)

// Well-known metadata field keys written by decoders.
const (
	MetaModel                    = "model"
	MetaResponseID               = "response_id"
	MetaInputTokens              = "input_tokens"
	MetaOutputTokens             = "output_tokens"
	MetaReasoningTokens          = "reasoning_tokens"
	MetaCacheReadInputTokens     = "cache_read_input_tokens"
	MetaCacheCreationInputTokens = "cache_creation_input_tokens"
	MetaFinishReason             = "finish_reason"
	MetaStopSequence             = "stop_sequence"
)

// Metadata is the response metadata accumulated over a stream: the transport
// status and headers, plus every field carried by MetaChunks. Later values
// overwrite earlier values for the same key.
type Metadata struct {
	StatusCode int
	Header     http.Header
	Fields     map[string]any
}

func newMetadata() Metadata {
	return Metadata{Header: http.Header{}, Fields: map[string]any{}}
}

// merge applies fields last-write-wins.
func (m *Metadata) merge(fields map[string]any) {
	maps.Copy(m.Fields, fields)
}

func (m *Metadata) mergeHeader(h http.Header) {
	for k, v := range h {
		m.Header[k] = append([]string(nil), v...)
	}
}

// clone returns a snapshot that shares no maps with m.
func (m Metadata) clone() Metadata {
	out := Metadata{
		StatusCode: m.StatusCode,
		Header:     m.Header.Clone(),
		Fields:     maps.Clone(m.Fields),
	}
	if out.Header == nil {
		out.Header = http.Header{}
	}
	if out.Fields == nil {
		out.Fields = map[string]any{}
	}
	return out
}

// Model returns the model reported by the provider, if any.
func (m Metadata) Model() string {
	s, _ := m.Fields[MetaModel].(string)
	return s
}

// ResponseID returns the provider's response id, if any.
func (m Metadata) ResponseID() string {
	s, _ := m.Fields[MetaResponseID].(string)
	return s
}

// Usage returns token usage, or nil when the provider reported none.
func (m Metadata) Usage() *Usage {
	u := &Usage{}
	found := false
	for key, dst := range map[string]*int{
		MetaInputTokens:              &u.InputTokens,
		MetaOutputTokens:             &u.OutputTokens,
		MetaReasoningTokens:          &u.ReasoningTokens,
		MetaCacheReadInputTokens:     &u.CacheReadInputTokens,
		MetaCacheCreationInputTokens: &u.CacheCreationInputTokens,
	} {
		if n, ok := toInt(m.Fields[key]); ok {
			*dst = n
			found = true
		}
	}
	if !found {
		return nil
	}
	return u
}

// FinishReason returns the normalized finish reason, or "" when absent.
func (m Metadata) FinishReason() FinishReason {
	return NormalizeFinishReason(m.Fields[MetaFinishReason])
}

// Usage is token accounting for one response.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	ReasoningTokens          int `json:"reasoning_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
}

// TotalTokens returns input plus output tokens.
func (u *Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// FinishReason is the provider-independent reason generation stopped.
type FinishReason string

const (
	FinishReasonStop    FinishReason = "stop"
	FinishReasonLength  FinishReason = "length"
	FinishReasonToolUse FinishReason = "tool_use"
)

// NormalizeFinishReason maps a provider stop reason onto a FinishReason.
// It accepts strings, string-kinded types (such as SDK enums) and
// fmt.Stringers. Unrecognized reasons map to stop; nil and "" map to "".
func NormalizeFinishReason(v any) FinishReason {
	if v == nil {
		return ""
	}
	raw := fmt.Sprint(v)

	switch raw {
	case "":
		return ""
	case "length", "max_tokens", "MAX_TOKENS", "model_length", "model_context_window_exceeded":
		return FinishReasonLength
	case "tool_calls", "tool_use", "function_call":
		return FinishReasonToolUse
	default:
		return FinishReasonStop
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}
