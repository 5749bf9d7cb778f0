package llmprovider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/haowjy/meridian-stream-go/frame"
)

// HTTP transport defaults.
const (
	DefaultReadBufferSize = 4096
	DefaultStopGrace      = 2 * time.Second
	maxErrorBodySize      = 1 << 20
)

// HTTPStreamConfig describes how to decode a streaming HTTP response.
type HTTPStreamConfig struct {
	Provider    ProviderID
	Model       string
	Decoder     Decoder
	Reassembler frame.Reassembler

	// Request is attached to the returned StreamResponse.
	Request *GenerateRequest

	SessionOptions []SessionOption

	// ReadBufferSize is the size of each body read. Defaults to 4 KiB.
	ReadBufferSize int

	// StopGrace bounds how long Cancel waits for the transport goroutine.
	StopGrace time.Duration

	// PullTimeout bounds each pull from the chunk stream (0: session default).
	PullTimeout time.Duration

	Logger *slog.Logger
}

// StreamHTTP dispatches req and returns immediately with a StreamResponse fed
// by a background goroutine. The response status, headers and body fragments
// are pushed into a new Session; non-2xx responses fail the session with a
// *ProviderError.
func StreamHTTP(ctx context.Context, client *http.Client, req *http.Request, cfg HTTPStreamConfig) *StreamResponse {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := append([]SessionOption{WithLogger(cfg.Logger)}, cfg.SessionOptions...)
	session := NewSession(cfg.Decoder, cfg.Reassembler, ModelContext{Provider: cfg.Provider, Model: cfg.Model}, opts...)

	t := StartTransport(ctx, cfg.StopGrace, func(ctx context.Context) {
		streamHTTP(ctx, client, req, session, cfg)
	})
	session.AttachTransport(t)

	return NewStreamResponse(session, cfg.Request, WithPullTimeout(cfg.PullTimeout))
}

// streamHTTP performs the request and pushes the response into s.
func streamHTTP(ctx context.Context, client *http.Client, req *http.Request, s *Session, cfg HTTPStreamConfig) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "llm.stream.http",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", cfg.Provider.String()),
			attribute.String("llm.model", cfg.Model),
			attribute.String("http.url", req.URL.Redacted()),
		))
	defer span.End()

	fail := func(err error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		_ = s.Feed(ctx, ErrorEvent(err))
	}

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		fail(&ProviderError{
			Provider:  cfg.Provider.String(),
			Message:   err.Error(),
			Retryable: !errors.Is(err, context.Canceled),
			Err:       ErrProviderUnavailable,
		})
		return
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if s.Feed(ctx, StatusEvent(resp.StatusCode)) != nil {
		return
	}
	if s.Feed(ctx, HeadersEvent(resp.Header)) != nil {
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		fail(HTTPError(cfg.Provider, cfg.Model, resp.StatusCode, body))
		return
	}

	var total int64
	buf := make([]byte, cfg.ReadBufferSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			total += int64(n)
			if ferr := s.Feed(ctx, DataEvent(buf[:n])); ferr != nil {
				// Session finished early ([DONE] seen, cancelled or failed).
				span.SetAttributes(attribute.Int64("llm.stream.bytes", total))
				return
			}
		}
		if errors.Is(err, io.EOF) {
			span.SetAttributes(attribute.Int64("llm.stream.bytes", total))
			_ = s.Feed(ctx, DoneEvent())
			return
		}
		if err != nil {
			fail(err)
			return
		}
	}
}

// HTTPError maps a non-2xx provider response onto the library's error types.
// The provider message is read from error.message (OpenAI, Anthropic,
// OpenRouter, Gemini) or message (Bedrock), falling back to the raw body.
func HTTPError(provider ProviderID, model string, status int, body []byte) error {
	message := providerMessage(body)
	if message == "" {
		message = http.StatusText(status)
	}

	pe := &ProviderError{
		Provider:   provider.String(),
		StatusCode: status,
		Message:    message,
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		pe.Err = ErrInvalidAPIKey
	case http.StatusTooManyRequests:
		pe.Retryable = true
		pe.Err = ErrRateLimited
	case http.StatusPaymentRequired:
		pe.Message = "insufficient credits: " + message
		pe.Err = ErrProviderUnavailable
	case http.StatusRequestTimeout:
		pe.Retryable = true
		pe.Err = ErrTimeout
	case http.StatusNotFound:
		return &ModelError{
			Model:    model,
			Provider: provider.String(),
			Reason:   message,
			Err:      ErrInvalidModel,
		}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		pe.Err = ErrInvalidRequest
	default:
		pe.Retryable = status >= 500
		pe.Err = ErrProviderUnavailable
	}
	return pe
}

// InBandError builds the *ProviderError for an error event delivered inside
// a successful stream. Overload and rate-limit errors are retryable.
func InBandError(provider ProviderID, payload []byte) *ProviderError {
	message := providerMessage(payload)
	if message == "" {
		message = "provider reported an error"
	}
	errType := gjson.GetBytes(payload, "error.type").String()
	if errType == "" {
		errType = gjson.GetBytes(payload, "error.code").String()
	}

	pe := &ProviderError{
		Provider: provider.String(),
		Message:  message,
		Err:      ErrProviderUnavailable,
	}
	switch {
	case strings.Contains(errType, "rate_limit"), strings.Contains(errType, "429"), strings.Contains(strings.ToLower(errType), "throttl"):
		pe.Retryable = true
		pe.Err = ErrRateLimited
	case strings.Contains(errType, "overloaded"), strings.Contains(errType, "server_error"), strings.Contains(errType, "unavailable"):
		pe.Retryable = true
	case strings.Contains(errType, "invalid_request"):
		pe.Err = ErrInvalidRequest
	}
	if errType != "" {
		pe.Message = fmt.Sprintf("%s: %s", errType, message)
	}
	return pe
}

func providerMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	for _, path := range []string{"error.message", "message", "Message", "error"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String {
			return r.String()
		}
	}
	return ""
}
