package llmprovider

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync"
	"time"
)

// ChunkStream is a lazy, single-pass view over a Session.
//
// Each pull is bounded by a fixed timeout (unless the caller's context
// already has a deadline). Once the stream has returned io.EOF or an error it
// is exhausted: later pulls return io.EOF and All yields nothing. Abandoning
// a stream does not cancel the session.
type ChunkStream struct {
	session     *Session
	pullTimeout time.Duration

	mu        sync.Mutex
	exhausted bool
	err       error
}

// NewChunkStream returns a stream pulling from s. A pullTimeout of zero uses
// the session's next timeout.
func NewChunkStream(s *Session, pullTimeout time.Duration) *ChunkStream {
	return &ChunkStream{session: s, pullTimeout: pullTimeout}
}

// Next returns the next chunk, io.EOF at the end of the stream, or the error
// that ended it.
func (cs *ChunkStream) Next(ctx context.Context) (Chunk, error) {
	cs.mu.Lock()
	done := cs.exhausted
	cs.mu.Unlock()
	if done {
		return nil, io.EOF
	}

	if cs.pullTimeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cs.pullTimeout)
			defer cancel()
		}
	}

	c, err := cs.session.Next(ctx)
	if err != nil {
		cs.mu.Lock()
		cs.exhausted = true
		if !errors.Is(err, io.EOF) {
			cs.err = err
		}
		cs.mu.Unlock()
		return nil, err
	}
	return c, nil
}

// All yields every remaining chunk in order. On failure it yields a single
// (nil, err) pair and stops.
func (cs *ChunkStream) All(ctx context.Context) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		for {
			c, err := cs.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}

// Err returns the error that ended the stream, or nil after a clean end.
func (cs *ChunkStream) Err() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.err
}
