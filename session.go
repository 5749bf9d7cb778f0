package llmprovider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/haowjy/meridian-stream-go/frame"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateActive State = iota
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session defaults.
const (
	DefaultHighWatermark   = 64
	DefaultNextTimeout     = 60 * time.Second
	DefaultMetadataTimeout = 120 * time.Second
)

type sessionOptions struct {
	highWatermark   int
	nextTimeout     time.Duration
	metadataTimeout time.Duration
	logger          *slog.Logger
}

// SessionOption configures a Session.
type SessionOption func(*sessionOptions)

// WithHighWatermark sets the queue length at which Feed starts blocking data
// events until consumers catch up.
func WithHighWatermark(n int) SessionOption {
	return func(o *sessionOptions) {
		if n > 0 {
			o.highWatermark = n
		}
	}
}

// WithNextTimeout bounds Next calls whose context has no deadline.
func WithNextTimeout(d time.Duration) SessionOption {
	return func(o *sessionOptions) { o.nextTimeout = d }
}

// WithMetadataTimeout bounds AwaitMetadata calls whose context has no deadline.
func WithMetadataTimeout(d time.Duration) SessionOption {
	return func(o *sessionOptions) { o.metadataTimeout = d }
}

// WithLogger sets the logger used for decode errors and lifecycle events.
func WithLogger(l *slog.Logger) SessionOption {
	return func(o *sessionOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

var sessionMetrics = sync.OnceValue(newStreamMetrics)

// Session turns transport events into an ordered queue of chunks.
//
// A transport pushes events with Feed; consumers pull chunks with Next and
// wait for the final metadata with AwaitMetadata. All methods are safe for
// concurrent use. Each chunk is delivered to exactly one Next caller.
type Session struct {
	decoder     Decoder
	reassembler frame.Reassembler
	mc          ModelContext
	opts        sessionOptions
	metrics     *streamMetrics

	cancelOnce sync.Once

	mu           sync.Mutex
	state        State
	err          error
	queue        []Chunk
	carry        []byte
	meta         Metadata
	final        Metadata
	handle       TransportHandle
	cancelled    bool
	decodeErrors int

	// changed is closed and replaced on every state change; waiters grab it
	// under mu and block on it after unlocking.
	changed chan struct{}

	// terminated is closed once, when the session leaves StateActive.
	terminated chan struct{}
}

// NewSession returns an active session decoding frames produced by r.
func NewSession(dec Decoder, r frame.Reassembler, mc ModelContext, opts ...SessionOption) *Session {
	o := sessionOptions{
		highWatermark:   DefaultHighWatermark,
		nextTimeout:     DefaultNextTimeout,
		metadataTimeout: DefaultMetadataTimeout,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Session{
		decoder:     dec,
		reassembler: r,
		mc:          mc,
		opts:        o,
		metrics:     sessionMetrics(),
		meta:        newMetadata(),
		changed:     make(chan struct{}),
		terminated:  make(chan struct{}),
	}
}

// ModelContext returns the context passed to the decoder.
func (s *Session) ModelContext() ModelContext {
	return s.mc
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the number of queued chunks.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// DecodeErrors returns how many frames or chunks were skipped as undecodable.
func (s *Session) DecodeErrors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decodeErrors
}

// Feed applies one transport event. Data events block while the queue is at
// the high watermark; all other events are applied immediately. Feed returns
// ErrSessionClosed once the session has terminated, which tells the
// transport to stop.
func (s *Session) Feed(ctx context.Context, ev TransportEvent) error {
	if ev.Kind == TransportData {
		return s.feedData(ctx, ev.Data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return ErrSessionClosed
	}

	switch ev.Kind {
	case TransportStatus:
		s.meta.StatusCode = ev.StatusCode
	case TransportHeaders:
		s.meta.mergeHeader(ev.Header)
	case TransportDone:
		frames := s.reassembler.Flush(s.carry)
		s.carry = nil
		s.ingest(ctx, frames)
		s.complete()
	case TransportError:
		err := ev.Err
		if err == nil {
			err = errors.New("unspecified transport failure")
		}
		s.fail(fmt.Errorf("%w: %w", ErrTransport, err))
	default:
		return fmt.Errorf("llmprovider: unknown transport event %v", ev.Kind)
	}
	return nil
}

func (s *Session) feedData(ctx context.Context, data []byte) error {
	s.mu.Lock()

	waited := false
	for s.state == StateActive && len(s.queue) >= s.opts.highWatermark {
		if !waited {
			waited = true
			s.metrics.backpressure(ctx, s.mc.Provider)
		}
		wait := s.changed
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
	}
	defer s.mu.Unlock()

	if s.state != StateActive {
		return ErrSessionClosed
	}

	frames, rest := s.reassembler.Reassemble(s.carry, data)
	s.carry = rest
	s.ingest(ctx, frames)
	return nil
}

// ingest decodes frames into the queue. Called with mu held.
func (s *Session) ingest(ctx context.Context, frames []frame.Frame) {
	added := 0
	defer func() {
		if added > 0 {
			s.metrics.addChunks(ctx, added, s.mc.Provider)
			s.notify()
		}
	}()

	for _, f := range frames {
		if s.state != StateActive {
			return
		}
		if f.Done {
			s.carry = nil
			s.complete()
			return
		}
		if f.Err != nil {
			s.skip(ctx, f, f.Err)
			continue
		}

		chunks, err := s.decoder.Decode(f, s.mc)
		if err != nil {
			var providerErr *ProviderError
			if errors.As(err, &providerErr) {
				s.fail(fmt.Errorf("%w: %w", ErrTransport, err))
				return
			}
			s.skip(ctx, f, err)
			continue
		}

		for _, c := range chunks {
			if err := ValidateChunk(c); err != nil {
				s.skip(ctx, f, err)
				continue
			}
			if m, ok := c.(MetaChunk); ok {
				s.meta.merge(m.Fields)
			}
			s.queue = append(s.queue, c)
			added++
		}
	}
}

func (s *Session) skip(ctx context.Context, f frame.Frame, err error) {
	s.decodeErrors++
	s.metrics.decodeError(ctx, s.mc.Provider)
	s.opts.logger.Warn("skipping undecodable frame",
		"provider", s.mc.Provider,
		"model", s.mc.Model,
		"event", f.Event,
		"error", fmt.Errorf("%w: %w", ErrDecode, err))
}

// Next returns the oldest queued chunk, blocking while the queue is empty and
// the session is active. It returns io.EOF once the queue is drained and the
// stream completed, and the terminal error (the same value on every call)
// once the session failed. A deadline hit while waiting returns an error
// matching ErrTimeout and leaves the session untouched. When ctx carries no
// deadline the session's next timeout applies.
func (s *Session) Next(ctx context.Context) (Chunk, error) {
	ctx, cancel := withDefaultTimeout(ctx, s.opts.nextTimeout)
	defer cancel()

	s.mu.Lock()
	for {
		switch {
		case s.state == StateFailed:
			err := s.err
			s.mu.Unlock()
			return nil, err
		case len(s.queue) > 0:
			c := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			if len(s.queue)+1 >= s.opts.highWatermark {
				s.notify()
			}
			s.mu.Unlock()
			return c, nil
		case s.state == StateCompleted:
			s.mu.Unlock()
			return nil, io.EOF
		}

		wait := s.changed
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, s.waitError(ctx, "next")
		}
		s.mu.Lock()
	}
}

// AwaitMetadata blocks until the session terminates and returns the metadata
// snapshot taken at that moment, or the terminal error. Every call after
// termination returns the same result.
func (s *Session) AwaitMetadata(ctx context.Context) (Metadata, error) {
	select {
	case <-s.terminated:
	default:
		ctx, cancel := withDefaultTimeout(ctx, s.opts.metadataTimeout)
		defer cancel()
		select {
		case <-s.terminated:
		case <-ctx.Done():
			return Metadata{}, s.waitError(ctx, "metadata")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateFailed {
		return Metadata{}, s.err
	}
	return s.final.clone(), nil
}

// Done returns a channel closed when the session terminates.
func (s *Session) Done() <-chan struct{} {
	return s.terminated
}

// AttachTransport registers the transport feeding this session. If the
// transport stops before reporting completion or an error, the session fails
// with ErrTransportLost.
func (s *Session) AttachTransport(h TransportHandle) {
	s.mu.Lock()
	s.handle = h
	cancelled := s.cancelled
	s.mu.Unlock()

	if cancelled {
		h.Stop()
		return
	}

	go func() {
		select {
		case <-h.Done():
			s.mu.Lock()
			if s.state == StateActive {
				s.opts.logger.Warn("transport stopped without completing",
					"provider", s.mc.Provider, "model", s.mc.Model)
				s.fail(ErrTransportLost)
			}
			s.mu.Unlock()
		case <-s.terminated:
		}
	}()
}

// Cancel fails an active session with ErrCancelled, drops queued chunks and
// wakes all waiters. The attached transport is stopped in every state. A
// session that already completed or failed keeps its result. Safe to call
// more than once.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		s.mu.Lock()
		s.cancelled = true
		active := s.state == StateActive
		if active {
			s.state = StateFailed
			s.err = &StreamError{Op: "cancel", Provider: s.mc.Provider.String(), Err: ErrCancelled}
			s.queue = nil
			s.carry = nil
			s.final = s.meta.clone()
			close(s.terminated)
			s.notify()
		}
		h := s.handle
		s.mu.Unlock()

		if active {
			s.metrics.terminated(context.Background(), s.mc.Provider, "cancelled")
			s.opts.logger.Debug("stream cancelled", "provider", s.mc.Provider, "model", s.mc.Model)
		}
		if h != nil {
			h.Stop()
		}
	})
}

// complete moves an active session to StateCompleted. Called with mu held.
func (s *Session) complete() {
	if s.state != StateActive {
		return
	}
	s.state = StateCompleted
	s.final = s.meta.clone()
	close(s.terminated)
	s.notify()

	s.metrics.terminated(context.Background(), s.mc.Provider, "completed")
	s.opts.logger.Debug("stream completed",
		"provider", s.mc.Provider,
		"model", s.mc.Model,
		"pending", len(s.queue),
		"decode_errors", s.decodeErrors)
}

// fail moves an active session to StateFailed. Queued chunks are dropped.
// Called with mu held.
func (s *Session) fail(cause error) {
	if s.state != StateActive {
		return
	}
	s.state = StateFailed
	s.err = &StreamError{Op: "read", Provider: s.mc.Provider.String(), Err: cause}
	s.queue = nil
	s.carry = nil
	s.final = s.meta.clone()
	close(s.terminated)
	s.notify()

	s.metrics.terminated(context.Background(), s.mc.Provider, "failed")
	s.opts.logger.Debug("stream failed", "provider", s.mc.Provider, "model", s.mc.Model, "error", cause)
}

// notify wakes every goroutine waiting on the current changed channel.
// Called with mu held.
func (s *Session) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Session) waitError(ctx context.Context, op string) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return &StreamError{Op: op, Provider: s.mc.Provider.String(), Err: err}
}

func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
