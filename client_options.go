package llmprovider

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/haowjy/meridian-stream-go/frame"
)

// ClientOptions holds the transport settings shared by HTTP-backed providers.
type ClientOptions struct {
	BaseURL        string
	HTTPClient     *http.Client
	Header         http.Header
	SessionOptions []SessionOption
	ReadBufferSize int
	StopGrace      time.Duration
	PullTimeout    time.Duration
	Logger         *slog.Logger
}

// ClientOption configures ClientOptions.
type ClientOption func(*ClientOptions)

// WithBaseURL overrides the provider's API base URL.
func WithBaseURL(url string) ClientOption {
	return func(o *ClientOptions) { o.BaseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets the client used to dispatch requests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *ClientOptions) { o.HTTPClient = c }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) ClientOption {
	return func(o *ClientOptions) { o.Header.Add(key, value) }
}

// WithSessionOptions appends options applied to every streaming session.
func WithSessionOptions(opts ...SessionOption) ClientOption {
	return func(o *ClientOptions) { o.SessionOptions = append(o.SessionOptions, opts...) }
}

// WithReadBufferSize sets the size of each response body read.
func WithReadBufferSize(n int) ClientOption {
	return func(o *ClientOptions) { o.ReadBufferSize = n }
}

// WithStopGrace bounds how long Cancel waits for the transport to stop.
func WithStopGrace(d time.Duration) ClientOption {
	return func(o *ClientOptions) { o.StopGrace = d }
}

// WithResponsePullTimeout bounds each pull from a response's chunk stream.
func WithResponsePullTimeout(d time.Duration) ClientOption {
	return func(o *ClientOptions) { o.PullTimeout = d }
}

// WithClientLogger sets the logger handed to sessions and transports.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(o *ClientOptions) { o.Logger = l }
}

// NewClientOptions applies opts over the given default base URL.
func NewClientOptions(defaultBaseURL string, opts ...ClientOption) ClientOptions {
	o := ClientOptions{
		BaseURL:    defaultBaseURL,
		HTTPClient: &http.Client{},
		Header:     http.Header{},
		Logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// StreamConfig builds the HTTPStreamConfig for one request.
func (o ClientOptions) StreamConfig(provider ProviderID, req *GenerateRequest, dec Decoder, r frame.Reassembler) HTTPStreamConfig {
	return HTTPStreamConfig{
		Provider:       provider,
		Model:          req.Model,
		Decoder:        dec,
		Reassembler:    r,
		Request:        req,
		SessionOptions: o.SessionOptions,
		ReadBufferSize: o.ReadBufferSize,
		StopGrace:      o.StopGrace,
		PullTimeout:    o.PullTimeout,
		Logger:         o.Logger.With("provider", provider.String(), "model", req.Model),
	}
}

// ApplyHeader copies the configured extra headers onto h.
func (o ClientOptions) ApplyHeader(h http.Header) {
	for k, v := range o.Header {
		for _, vv := range v {
			h.Add(k, vv)
		}
	}
}
