package llmprovider

import "fmt"

// ChunkKind identifies the variant of a Chunk.
type ChunkKind string

const (
	ChunkKindContent   ChunkKind = "content"
	ChunkKindReasoning ChunkKind = "reasoning"
	ChunkKindToolCall  ChunkKind = "tool_call"
	ChunkKindMeta      ChunkKind = "meta"
)

// Chunk is one normalized unit of a streamed response.
//
// The set of variants is closed: ContentChunk, ReasoningChunk, ToolCallChunk
// and MetaChunk. Consumers switch on the concrete type:
//
//	switch c := chunk.(type) {
//	case llmprovider.ContentChunk:
//	    fmt.Print(c.Text)
//	case llmprovider.ToolCallChunk:
//	    ...
//	}
type Chunk interface {
	Kind() ChunkKind
	isChunk()
}

// ContentChunk carries user-visible response text.
type ContentChunk struct {
	Text string
}

// ReasoningChunk carries model reasoning ("thinking") text. Signature is set
// on the chunk that carries a provider's reasoning signature, if any.
type ReasoningChunk struct {
	Text      string
	Signature string
}

// ToolCallChunk describes a tool invocation, or a fragment of one.
//
// Providers stream tool arguments as JSON fragments. A fragment has Partial
// set, an empty Arguments map and the next piece of argument JSON in
// PartialJSON; fragments of the same call share Index. A materialized call has
// Arguments populated. Arguments is never nil.
type ToolCallChunk struct {
	ID          string
	Name        string
	Index       int
	Arguments   map[string]any
	Partial     bool
	PartialJSON string

	// Metadata holds provider-specific extras (e.g. Gemini thought signatures).
	Metadata map[string]any
}

// MetaChunk carries response metadata (token usage, finish reason, model,
// response id). Its fields are merged into the session metadata.
type MetaChunk struct {
	Fields map[string]any
}

func (ContentChunk) Kind() ChunkKind   { return ChunkKindContent }
func (ReasoningChunk) Kind() ChunkKind { return ChunkKindReasoning }
func (ToolCallChunk) Kind() ChunkKind  { return ChunkKindToolCall }
func (MetaChunk) Kind() ChunkKind      { return ChunkKindMeta }

func (ContentChunk) isChunk()   {}
func (ReasoningChunk) isChunk() {}
func (ToolCallChunk) isChunk()  {}
func (MetaChunk) isChunk()      {}

// NewToolCall returns a materialized tool call chunk.
func NewToolCall(id, name string, args map[string]any) ToolCallChunk {
	if args == nil {
		args = map[string]any{}
	}
	return ToolCallChunk{ID: id, Name: name, Arguments: args}
}

// NewToolCallFragment returns a tool call fragment. id and name are typically
// only present on the first fragment of a call.
func NewToolCallFragment(index int, id, name, partialJSON string) ToolCallChunk {
	return ToolCallChunk{
		ID:          id,
		Name:        name,
		Index:       index,
		Arguments:   map[string]any{},
		Partial:     true,
		PartialJSON: partialJSON,
	}
}

// NewMeta returns a MetaChunk holding fields.
func NewMeta(fields map[string]any) MetaChunk {
	if fields == nil {
		fields = map[string]any{}
	}
	return MetaChunk{Fields: fields}
}

// ValidateChunk checks the structural invariants of a chunk. Invalid chunks
// are never delivered to consumers.
func ValidateChunk(c Chunk) error {
	switch v := c.(type) {
	case nil:
		return fmt.Errorf("%w: nil chunk", ErrInvalidChunk)
	case ContentChunk, ReasoningChunk:
		return nil
	case ToolCallChunk:
		if v.Arguments == nil {
			return fmt.Errorf("%w: tool call %q has nil arguments", ErrInvalidChunk, v.Name)
		}
		return nil
	case MetaChunk:
		if v.Fields == nil {
			return fmt.Errorf("%w: meta chunk has nil fields", ErrInvalidChunk)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown chunk type %T", ErrInvalidChunk, c)
	}
}
