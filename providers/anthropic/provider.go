// Package anthropic streams from Anthropic's Messages API.
package anthropic

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/frame"
)

const (
	// DefaultBaseURL is the Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// APIVersion is sent as the anthropic-version header.
	APIVersion = "2023-06-01"
)

// Provider implements the llmprovider.Provider interface for Anthropic (Claude) models.
type Provider struct {
	apiKey string
	opts   llmprovider.ClientOptions
}

// NewProvider creates a new Anthropic provider with the given API key.
func NewProvider(apiKey string, opts ...llmprovider.ClientOption) (*Provider, error) {
	if apiKey == "" {
		return nil, llmprovider.ErrInvalidAPIKey
	}

	return &Provider{
		apiKey: apiKey,
		opts:   llmprovider.NewClientOptions(DefaultBaseURL, opts...),
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() llmprovider.ProviderID {
	return llmprovider.ProviderAnthropic
}

// SupportsModel returns true if this provider supports the given model.
// Anthropic models start with "claude-"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

// StreamResponse dispatches a streaming Messages request.
func (p *Provider) StreamResponse(ctx context.Context, req *llmprovider.GenerateRequest) (*llmprovider.StreamResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !p.SupportsModel(req.Model) {
		return nil, &llmprovider.ModelError{
			Model:    req.Model,
			Provider: p.Name().String(),
			Reason:   "model not supported by Anthropic (must start with 'claude-')",
			Err:      llmprovider.ErrInvalidModel,
		}
	}

	apiParams, err := buildMessageParams(req)
	if err != nil {
		return nil, &llmprovider.ValidationError{Field: "messages", Reason: err.Error(), Err: llmprovider.ErrInvalidRequest}
	}
	body, err := buildRequestBody(apiParams)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", APIVersion)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	p.opts.ApplyHeader(httpReq.Header)

	cfg := p.opts.StreamConfig(p.Name(), req, Decoder, frame.SSE{})
	return llmprovider.StreamHTTP(ctx, p.opts.HTTPClient, httpReq, cfg), nil
}
