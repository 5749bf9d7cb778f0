// Package bedrock streams from the Amazon Bedrock ConverseStream API.
//
// Responses use the binary application/vnd.amazon.eventstream framing and
// requests are signed with SigV4, so the package needs no AWS service client.
package bedrock

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	"github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/frame"
	"github.com/haowjy/meridian-stream-go/internal/logger"
)

// Model vendors served through Converse. Inference profile ids prefix these
// with a geography ("us.", "eu.", "apac.", "global.").
var vendors = []string{
	"anthropic.", "amazon.", "meta.", "mistral.", "cohere.", "ai21.",
	"deepseek.", "openai.", "qwen.", "writer.",
}

// Provider implements llmprovider.Provider for Bedrock.
type Provider struct {
	region string
	opts   llmprovider.ClientOptions
	client *http.Client
}

// NewProvider creates a Bedrock provider for region. Requests are signed with
// credentials retrieved from creds.
func NewProvider(region string, creds aws.CredentialsProvider, opts ...llmprovider.ClientOption) (*Provider, error) {
	if region == "" {
		return nil, &llmprovider.ValidationError{Field: "region", Reason: "is required", Err: llmprovider.ErrInvalidRequest}
	}
	if creds == nil {
		return nil, llmprovider.ErrInvalidAPIKey
	}

	o := llmprovider.NewClientOptions("https://bedrock-runtime."+region+".amazonaws.com", opts...)

	client := *o.HTTPClient
	client.Transport = &SigningTransport{
		Base:        o.HTTPClient.Transport,
		Credentials: aws.NewCredentialsCache(creds),
		Region:      region,
		Signer:      v4.NewSigner(),
	}

	return &Provider{region: region, opts: o, client: &client}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() llmprovider.ProviderID {
	return llmprovider.ProviderBedrock
}

// Region returns the AWS region requests are sent to.
func (p *Provider) Region() string {
	return p.region
}

// SupportsModel accepts Bedrock model and inference profile ids.
func (p *Provider) SupportsModel(model string) bool {
	if strings.HasPrefix(model, "arn:aws:bedrock:") {
		return true
	}
	for _, geo := range []string{"us.", "eu.", "apac.", "global."} {
		model = strings.TrimPrefix(model, geo)
	}
	for _, v := range vendors {
		if strings.HasPrefix(model, v) {
			return true
		}
	}
	return false
}

// StreamResponse dispatches a ConverseStream request.
func (p *Provider) StreamResponse(ctx context.Context, req *llmprovider.GenerateRequest) (*llmprovider.StreamResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !p.SupportsModel(req.Model) {
		return nil, &llmprovider.ModelError{
			Model:    req.Model,
			Provider: p.Name().String(),
			Reason:   "not a Bedrock model id",
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

	endpoint := p.opts.BaseURL + "/model/" + url.PathEscape(req.Model) + "/converse-stream"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/vnd.amazon.eventstream")
	p.opts.ApplyHeader(httpReq.Header)

	reassembler := frame.EventStream{}
	if p.opts.Logger.Enabled(ctx, slog.LevelDebug) {
		reassembler.Logger = logger.Smithy(p.opts.Logger.With("provider", p.Name().String()))
	}

	cfg := p.opts.StreamConfig(p.Name(), req, Decoder, reassembler)
	return llmprovider.StreamHTTP(ctx, p.client, httpReq, cfg), nil
}
