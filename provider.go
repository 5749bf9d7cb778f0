package llmprovider

import (
	"context"

	"github.com/haowjy/meridian-stream-go/frame"
)

// Provider defines the interface that all LLM providers must implement.
// This abstraction allows supporting multiple providers (Anthropic, OpenAI, Gemini, etc.)
// while maintaining a consistent interface.
type Provider interface {
	// StreamResponse starts a streaming generation and returns as soon as the
	// request has been dispatched. Chunks are pulled from the returned
	// StreamResponse; use ToResponse for a blocking, fully assembled result.
	//
	// Usage:
	//   resp, err := provider.StreamResponse(ctx, req)
	//   if err != nil { return err }
	//   defer resp.Cancel()
	//   for token := range resp.Tokens(ctx) {
	//     fmt.Print(token)
	//   }
	//   finish, err := resp.FinishReason(ctx)
	StreamResponse(ctx context.Context, req *GenerateRequest) (*StreamResponse, error)

	// Name returns the provider identifier (e.g., "anthropic", "openai", "lorem")
	Name() ProviderID

	// SupportsModel returns true if the provider supports the given model.
	SupportsModel(model string) bool
}

// Generate streams a request to completion and assembles the result.
func Generate(ctx context.Context, p Provider, req *GenerateRequest) (*GenerateResponse, error) {
	resp, err := p.StreamResponse(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Cancel()
	return resp.ToResponse(ctx)
}

// ModelContext is what a Decoder knows about the request being decoded.
type ModelContext struct {
	Provider ProviderID
	Model    string
}

// Decoder converts one wire frame into zero or more chunks.
//
// Decoders are pure and never block. Input that parses but carries nothing of
// interest (pings, block stops) yields an empty slice. Input that cannot be
// parsed yields an error; the session logs and skips it. An error wrapping
// *ProviderError is an error the provider reported in-band and fails the
// stream instead.
type Decoder interface {
	Decode(f frame.Frame, mc ModelContext) ([]Chunk, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(f frame.Frame, mc ModelContext) ([]Chunk, error)

// Decode calls fn.
func (fn DecoderFunc) Decode(f frame.Frame, mc ModelContext) ([]Chunk, error) {
	return fn(f, mc)
}
