package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/providers/anthropic"
	"github.com/haowjy/meridian-stream-go/providers/bedrock"
	"github.com/haowjy/meridian-stream-go/providers/google"
	"github.com/haowjy/meridian-stream-go/providers/lorem"
	"github.com/haowjy/meridian-stream-go/providers/openai"
)

// resolveOrder is the order ProviderForModel tries providers in. Groq accepts
// any model id, so it comes last.
var resolveOrder = []llmprovider.ProviderID{
	llmprovider.ProviderLorem,
	llmprovider.ProviderAnthropic,
	llmprovider.ProviderGoogle,
	llmprovider.ProviderXAI,
	llmprovider.ProviderOpenAI,
	llmprovider.ProviderBedrock,
	llmprovider.ProviderOpenRouter,
	llmprovider.ProviderGroq,
}

// NewProvider builds the provider id from its configuration section.
func (c *Config) NewProvider(id llmprovider.ProviderID, log *slog.Logger) (llmprovider.Provider, error) {
	pc := c.Providers[id.String()]
	opts := c.ClientOptions(id, log)

	switch id {
	case llmprovider.ProviderAnthropic:
		return anthropic.NewProvider(pc.APIKey, opts...)
	case llmprovider.ProviderGoogle:
		return google.NewProvider(pc.APIKey, opts...)
	case llmprovider.ProviderOpenAI, llmprovider.ProviderOpenRouter, llmprovider.ProviderGroq, llmprovider.ProviderXAI:
		return openai.New(id, pc.APIKey, opts...)
	case llmprovider.ProviderBedrock:
		creds := bedrock.EnvCredentials()
		if pc.AccessKeyID != "" {
			creds = bedrock.StaticCredentials(pc.AccessKeyID, pc.SecretAccessKey, pc.SessionToken)
		}
		return bedrock.NewProvider(pc.Region, creds, opts...)
	case llmprovider.ProviderLorem:
		return lorem.NewProvider(opts...), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", llmprovider.ErrUnsupportedFeature, id)
	}
}

// ProviderForModel returns the first configured provider that supports model.
// Providers that cannot be built, usually for a missing API key, are skipped.
func (c *Config) ProviderForModel(model string, log *slog.Logger) (llmprovider.Provider, error) {
	var errs []error
	for _, id := range resolveOrder {
		if _, ok := c.Providers[id.String()]; !ok {
			continue
		}
		p, err := c.NewProvider(id, log)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		if p.SupportsModel(model) {
			return p, nil
		}
	}
	return nil, &llmprovider.ModelError{
		Model:    model,
		Provider: "any",
		Reason:   "no configured provider supports this model",
		Err:      errors.Join(append([]error{llmprovider.ErrInvalidModel}, errs...)...),
	}
}
