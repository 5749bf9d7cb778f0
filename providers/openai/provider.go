// Package openai streams from OpenAI's Chat Completions API and the
// compatible APIs of OpenRouter, Groq and xAI.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/frame"
)

// Default base URLs.
const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	GroqBaseURL       = "https://api.groq.com/openai/v1"
	XAIBaseURL        = "https://api.x.ai/v1"
)

type preset struct {
	id       llmprovider.ProviderID
	baseURL  string
	supports func(model string) bool
}

var (
	openAIPreset = preset{
		id:      llmprovider.ProviderOpenAI,
		baseURL: OpenAIBaseURL,
		supports: func(model string) bool {
			for _, prefix := range []string{"gpt-", "o1", "o3", "o4", "chatgpt-"} {
				if strings.HasPrefix(model, prefix) {
					return true
				}
			}
			return false
		},
	}

	// OpenRouter uses provider/model format (e.g., "anthropic/claude-3.5-sonnet")
	openRouterPreset = preset{
		id:       llmprovider.ProviderOpenRouter,
		baseURL:  OpenRouterBaseURL,
		supports: func(model string) bool { return strings.Contains(model, "/") },
	}

	groqPreset = preset{
		id:       llmprovider.ProviderGroq,
		baseURL:  GroqBaseURL,
		supports: func(model string) bool { return model != "" },
	}

	xaiPreset = preset{
		id:       llmprovider.ProviderXAI,
		baseURL:  XAIBaseURL,
		supports: func(model string) bool { return strings.HasPrefix(model, "grok-") },
	}
)

// Provider implements llmprovider.Provider for an OpenAI-compatible API.
type Provider struct {
	preset preset
	apiKey string
	opts   llmprovider.ClientOptions
}

// NewOpenAI returns a provider for api.openai.com.
func NewOpenAI(apiKey string, opts ...llmprovider.ClientOption) (*Provider, error) {
	return newProvider(openAIPreset, apiKey, opts)
}

// NewOpenRouter returns a provider for OpenRouter's unified API.
func NewOpenRouter(apiKey string, opts ...llmprovider.ClientOption) (*Provider, error) {
	return newProvider(openRouterPreset, apiKey, opts)
}

// NewGroq returns a provider for Groq.
func NewGroq(apiKey string, opts ...llmprovider.ClientOption) (*Provider, error) {
	return newProvider(groqPreset, apiKey, opts)
}

// NewXAI returns a provider for xAI.
func NewXAI(apiKey string, opts ...llmprovider.ClientOption) (*Provider, error) {
	return newProvider(xaiPreset, apiKey, opts)
}

// New returns the preset registered for id.
func New(id llmprovider.ProviderID, apiKey string, opts ...llmprovider.ClientOption) (*Provider, error) {
	switch id {
	case llmprovider.ProviderOpenAI:
		return NewOpenAI(apiKey, opts...)
	case llmprovider.ProviderOpenRouter:
		return NewOpenRouter(apiKey, opts...)
	case llmprovider.ProviderGroq:
		return NewGroq(apiKey, opts...)
	case llmprovider.ProviderXAI:
		return NewXAI(apiKey, opts...)
	default:
		return nil, fmt.Errorf("%w: %q is not an OpenAI-compatible provider", llmprovider.ErrUnsupportedFeature, id)
	}
}

func newProvider(p preset, apiKey string, opts []llmprovider.ClientOption) (*Provider, error) {
	if apiKey == "" {
		return nil, llmprovider.ErrInvalidAPIKey
	}
	return &Provider{
		preset: p,
		apiKey: apiKey,
		opts:   llmprovider.NewClientOptions(p.baseURL, opts...),
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() llmprovider.ProviderID {
	return p.preset.id
}

// SupportsModel returns true if this provider supports the given model.
func (p *Provider) SupportsModel(model string) bool {
	return p.preset.supports(model)
}

// StreamResponse dispatches a streaming chat completion.
func (p *Provider) StreamResponse(ctx context.Context, req *llmprovider.GenerateRequest) (*llmprovider.StreamResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !p.SupportsModel(req.Model) {
		return nil, &llmprovider.ModelError{
			Model:    req.Model,
			Provider: p.Name().String(),
			Reason:   "model not supported by this provider",
			Err:      llmprovider.ErrInvalidModel,
		}
	}

	body, err := buildChatCompletionRequest(req, p.preset)
	if err != nil {
		return nil, &llmprovider.ValidationError{Field: "messages", Reason: err.Error(), Err: llmprovider.ErrInvalidRequest}
	}
	httpReq, err := p.buildHTTPRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	cfg := p.opts.StreamConfig(p.Name(), req, Decoder, frame.SSE{})
	return llmprovider.StreamHTTP(ctx, p.opts.HTTPClient, httpReq, cfg), nil
}

// buildHTTPRequest creates the HTTP request for the chat completions endpoint.
func (p *Provider) buildHTTPRequest(ctx context.Context, req *ChatCompletionRequest) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	p.opts.ApplyHeader(httpReq.Header)

	return httpReq, nil
}
