// Package lorem is an offline mock provider. It renders an OpenAI-compatible
// SSE stream of lorem ipsum text in process and feeds it through the same
// session and decoder as a real provider, so it exercises the full streaming
// path without network access or API keys.
package lorem

import (
	"context"
	"strings"

	"github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/frame"
	"github.com/haowjy/meridian-stream-go/providers/openai"
)

const (
	defaultMaxTokens   = 256
	defaultFragmentMax = 24
	blockWords         = 20
)

// Provider is a mock LLM provider that generates lorem ipsum text.
// Used for testing and development without requiring real API keys.
type Provider struct {
	opts llmprovider.ClientOptions
}

// NewProvider creates a new lorem ipsum provider. ReadBufferSize bounds the
// size of the wire fragments fed to the session; StopGrace, PullTimeout,
// SessionOptions and Logger apply as for HTTP providers. BaseURL, HTTPClient
// and headers are ignored.
func NewProvider(opts ...llmprovider.ClientOption) *Provider {
	return &Provider{opts: llmprovider.NewClientOptions("", opts...)}
}

// Name returns the provider identifier.
func (p *Provider) Name() llmprovider.ProviderID {
	return llmprovider.ProviderLorem
}

// SupportsModel returns true if the model name starts with "lorem-".
// Example models: "lorem-fast", "lorem-slow", "lorem-instant-cutoff"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

// StreamResponse starts a mock generation. The model name selects the pace:
//   - lorem-slow: 2 words/second
//   - lorem-medium: 10 words/second
//   - lorem-fast: 30 words/second
//   - lorem-instant: unpaced
//   - anything else: 10 words/second
//
// Models containing "cutoff" or "small" stream text until max_tokens words
// and finish with "length". Otherwise the response is an optional reasoning
// block, a text block and, when tools are supplied, one tool call.
func (p *Provider) StreamResponse(ctx context.Context, req *llmprovider.GenerateRequest) (*llmprovider.StreamResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !p.SupportsModel(req.Model) {
		return nil, &llmprovider.ModelError{
			Model:    req.Model,
			Provider: p.Name().String(),
			Reason:   "model not supported by Lorem provider (must start with 'lorem-')",
			Err:      llmprovider.ErrInvalidModel,
		}
	}

	logger := p.opts.Logger.With("provider", p.Name().String(), "model", req.Model)
	sessionOpts := append([]llmprovider.SessionOption{llmprovider.WithLogger(logger)}, p.opts.SessionOptions...)
	session := llmprovider.NewSession(openai.Decoder, frame.SSE{}, llmprovider.ModelContext{
		Provider: p.Name(),
		Model:    req.Model,
	}, sessionOpts...)

	fragmentMax := p.opts.ReadBufferSize
	if fragmentMax <= 0 {
		fragmentMax = defaultFragmentMax
	}
	g := newGeneration(req, fragmentMax, logger)
	t := llmprovider.StartTransport(ctx, p.opts.StopGrace, func(ctx context.Context) {
		g.run(ctx, session)
	})
	session.AttachTransport(t)

	return llmprovider.NewStreamResponse(session, req, llmprovider.WithPullTimeout(p.opts.PullTimeout)), nil
}

// run streams g into s and reports how it ended.
func (g *generation) run(ctx context.Context, s *llmprovider.Session) {
	if err := g.stream(ctx, s); err != nil {
		g.logger.Debug("lorem stream stopped", "error", err)
		if ctx.Err() != nil {
			_ = s.Feed(context.Background(), llmprovider.ErrorEvent(ctx.Err()))
		}
		return
	}
	_ = s.Feed(ctx, llmprovider.DoneEvent())
}
