package llmprovider

import (
	"context"
	"iter"
	"strings"
	"sync"
	"time"
)

// StreamResponse is what Provider.StreamResponse returns: a handle on an
// in-flight generation offering lazy token iteration, metadata accessors and
// an eager ToResponse.
type StreamResponse struct {
	// Model is the model requested.
	Model string

	// Request is the request that started this stream.
	Request *GenerateRequest

	session *Session
	stream  *ChunkStream

	cancelOnce sync.Once
	onCancel   func()
}

// StreamResponseOption configures a StreamResponse.
type StreamResponseOption func(*StreamResponse)

// WithPullTimeout bounds each pull from the chunk stream.
func WithPullTimeout(d time.Duration) StreamResponseOption {
	return func(r *StreamResponse) { r.stream = NewChunkStream(r.session, d) }
}

// WithCancelFunc registers fn to run once when the response is cancelled,
// after the session has been cancelled.
func WithCancelFunc(fn func()) StreamResponseOption {
	return func(r *StreamResponse) { r.onCancel = fn }
}

// NewStreamResponse wraps a session.
func NewStreamResponse(s *Session, req *GenerateRequest, opts ...StreamResponseOption) *StreamResponse {
	r := &StreamResponse{
		Model:   s.ModelContext().Model,
		Request: req,
		session: s,
		stream:  NewChunkStream(s, 0),
	}
	if req != nil && req.Model != "" {
		r.Model = req.Model
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stream returns the underlying chunk stream. The stream is shared: chunks
// consumed through it are not seen by Tokens or ToResponse.
func (r *StreamResponse) Stream() *ChunkStream {
	return r.stream
}

// Session returns the underlying session.
func (r *StreamResponse) Session() *Session {
	return r.session
}

// Tokens yields the text of each content chunk as it arrives. Other chunk
// kinds are skipped. Iteration ends quietly at the end of the stream or on
// error; check Stream().Err() to tell the two apart.
func (r *StreamResponse) Tokens(ctx context.Context) iter.Seq[string] {
	return func(yield func(string) bool) {
		for c, err := range r.stream.All(ctx) {
			if err != nil {
				return
			}
			if cc, ok := c.(ContentChunk); ok {
				if !yield(cc.Text) {
					return
				}
			}
		}
	}
}

// Text drains the stream and returns the concatenated content text.
func (r *StreamResponse) Text(ctx context.Context) string {
	var sb strings.Builder
	for token := range r.Tokens(ctx) {
		sb.WriteString(token)
	}
	return sb.String()
}

// Metadata waits for the stream to finish and returns its final metadata.
func (r *StreamResponse) Metadata(ctx context.Context) (Metadata, error) {
	return r.session.AwaitMetadata(ctx)
}

// Usage waits for the stream to finish and returns token usage, or nil when
// the provider reported none.
func (r *StreamResponse) Usage(ctx context.Context) (*Usage, error) {
	meta, err := r.session.AwaitMetadata(ctx)
	if err != nil {
		return nil, err
	}
	return meta.Usage(), nil
}

// FinishReason waits for the stream to finish and returns the normalized
// finish reason, or "" when the provider reported none.
func (r *StreamResponse) FinishReason(ctx context.Context) (FinishReason, error) {
	meta, err := r.session.AwaitMetadata(ctx)
	if err != nil {
		return "", err
	}
	return meta.FinishReason(), nil
}

// ToResponse drains the remaining chunks and assembles a GenerateResponse.
// Any stream error fails the call; a partial response is never returned.
func (r *StreamResponse) ToResponse(ctx context.Context) (*GenerateResponse, error) {
	var chunks []Chunk
	for c, err := range r.stream.All(ctx) {
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := r.stream.Err(); err != nil {
		return nil, err
	}

	meta, err := r.session.AwaitMetadata(ctx)
	if err != nil {
		return nil, err
	}
	return AssembleResponse(chunks, meta, r.Model)
}

// Cancel stops the stream and its transport. Safe to call more than once.
func (r *StreamResponse) Cancel() {
	r.session.Cancel()
	r.cancelOnce.Do(func() {
		if r.onCancel != nil {
			r.onCancel()
		}
	})
}
