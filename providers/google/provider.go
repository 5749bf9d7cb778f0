// Package google streams from the Gemini API (generativelanguage.googleapis.com).
package google

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/frame"
)

// DefaultBaseURL is the Google AI Studio API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Provider implements llmprovider.Provider for Gemini models.
type Provider struct {
	apiKey string
	opts   llmprovider.ClientOptions
}

// NewProvider creates a Gemini provider with the given API key.
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
	return llmprovider.ProviderGoogle
}

// SupportsModel accepts "gemini-*" models, with or without the "models/" prefix.
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(strings.TrimPrefix(model, "models/"), "gemini-")
}

// StreamResponse dispatches a streamGenerateContent request.
func (p *Provider) StreamResponse(ctx context.Context, req *llmprovider.GenerateRequest) (*llmprovider.StreamResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !p.SupportsModel(req.Model) {
		return nil, &llmprovider.ModelError{
			Model:    req.Model,
			Provider: p.Name().String(),
			Reason:   "model not supported by Gemini (must start with 'gemini-')",
			Err:      llmprovider.ErrInvalidModel,
		}
	}

	body, err := buildRequest(req)
	if err != nil {
		return nil, &llmprovider.ValidationError{Field: "messages", Reason: err.Error(), Err: llmprovider.ErrInvalidRequest}
	}
	payload, err := marshalRequest(body)
	if err != nil {
		return nil, err
	}

	model := strings.TrimPrefix(req.Model, "models/")
	endpoint := p.opts.BaseURL + "/models/" + url.PathEscape(model) + ":streamGenerateContent?alt=sse"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-goog-api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	p.opts.ApplyHeader(httpReq.Header)

	cfg := p.opts.StreamConfig(p.Name(), req, Decoder, frame.SSE{})
	return llmprovider.StreamHTTP(ctx, p.opts.HTTPClient, httpReq, cfg), nil
}
