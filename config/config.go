// Package config loads client settings for the CLI and examples.
//
// Settings come from the embedded defaults.yaml, optionally merged with a
// user file. ${VAR} references in either are expanded from the environment,
// so API keys can live in .env files loaded with LoadEnv.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/internal/logger"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Log formats accepted in the log section.
const (
	FormatPretty = "pretty"
	FormatJSON   = "json"
	FormatText   = "text"
)

// Config is the full client configuration.
type Config struct {
	Stream    Stream                    `yaml:"stream"`
	Log       Log                       `yaml:"log"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// Stream holds session and transport tuning shared by every provider.
type Stream struct {
	HighWatermark   int           `yaml:"high_watermark"`
	NextTimeout     time.Duration `yaml:"next_timeout"`
	MetadataTimeout time.Duration `yaml:"metadata_timeout"`
	PullTimeout     time.Duration `yaml:"pull_timeout"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	StopGrace       time.Duration `yaml:"stop_grace"`
}

// Log selects the logger built by Logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
}

// ProviderConfig holds per-provider credentials and endpoint overrides.
// Region and the AWS key fields are only read for Bedrock.
type ProviderConfig struct {
	APIKey          string            `yaml:"api_key"`
	BaseURL         string            `yaml:"base_url"`
	Headers         map[string]string `yaml:"headers"`
	Region          string            `yaml:"region"`
	AccessKeyID     string            `yaml:"access_key_id"`
	SecretAccessKey string            `yaml:"secret_access_key"`
	SessionToken    string            `yaml:"session_token"`
}

// Default returns the embedded configuration with the environment expanded.
func Default() (*Config, error) {
	return Parse(nil)
}

// Load reads the embedded defaults and merges the file at path over them.
// An empty path loads the defaults only.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse merges data over the embedded defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(expand(defaultsYAML), cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	defaults := cfg.Providers
	cfg.Providers = make(map[string]ProviderConfig, len(defaults))
	for name, pc := range defaults {
		cfg.Providers[name] = pc
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(expand(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
		for name, pc := range cfg.Providers {
			cfg.Providers[name] = pc.withDefaults(defaults[name])
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func expand(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}

// withDefaults fills the fields a user file left empty.
func (pc ProviderConfig) withDefaults(d ProviderConfig) ProviderConfig {
	if pc.APIKey == "" {
		pc.APIKey = d.APIKey
	}
	if pc.BaseURL == "" {
		pc.BaseURL = d.BaseURL
	}
	if pc.Headers == nil {
		pc.Headers = d.Headers
	}
	if pc.Region == "" {
		pc.Region = d.Region
	}
	if pc.AccessKeyID == "" {
		pc.AccessKeyID = d.AccessKeyID
	}
	if pc.SecretAccessKey == "" {
		pc.SecretAccessKey = d.SecretAccessKey
	}
	if pc.SessionToken == "" {
		pc.SessionToken = d.SessionToken
	}
	return pc
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Stream.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	for name := range c.Providers {
		if !llmprovider.ProviderID(name).IsValid() {
			return invalid("providers."+name, name, "unknown provider")
		}
	}
	return nil
}

// Validate checks the stream limits.
func (s Stream) Validate() error {
	if s.HighWatermark < 1 {
		return invalid("stream.high_watermark", s.HighWatermark, "must be at least 1")
	}
	if s.ReadBufferSize < 1 {
		return invalid("stream.read_buffer_size", s.ReadBufferSize, "must be at least 1")
	}
	for field, d := range map[string]time.Duration{
		"stream.next_timeout":     s.NextTimeout,
		"stream.metadata_timeout": s.MetadataTimeout,
		"stream.pull_timeout":     s.PullTimeout,
		"stream.stop_grace":       s.StopGrace,
	} {
		if d < 0 {
			return invalid(field, d, "must not be negative")
		}
	}
	return nil
}

// Validate checks the level and format.
func (l Log) Validate() error {
	if _, err := l.level(); err != nil {
		return invalid("log.level", l.Level, err.Error())
	}
	if !slices.Contains([]string{FormatPretty, FormatJSON, FormatText}, l.Format) {
		return invalid("log.format", l.Format, "must be pretty, json or text")
	}
	return nil
}

func (l Log) level() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(strings.TrimSpace(l.Level)))
	return level, err
}

// Logger builds the configured logger. debug forces the Debug level.
func (l Log) Logger(debug bool) *slog.Logger {
	level, _ := l.level()
	if debug {
		level = slog.LevelDebug
	}
	return logger.New(
		logger.WithLevel(level),
		logger.WithPretty(l.Format == FormatPretty),
		logger.WithJSON(l.Format == FormatJSON),
		logger.WithSource(l.Source),
	)
}

// SessionOptions converts the stream section into session options.
// Zero timeouts keep the session defaults.
func (s Stream) SessionOptions() []llmprovider.SessionOption {
	opts := []llmprovider.SessionOption{llmprovider.WithHighWatermark(s.HighWatermark)}
	if s.NextTimeout > 0 {
		opts = append(opts, llmprovider.WithNextTimeout(s.NextTimeout))
	}
	if s.MetadataTimeout > 0 {
		opts = append(opts, llmprovider.WithMetadataTimeout(s.MetadataTimeout))
	}
	return opts
}

// ClientOptions returns the options for constructing the named provider.
func (c *Config) ClientOptions(id llmprovider.ProviderID, log *slog.Logger) []llmprovider.ClientOption {
	opts := []llmprovider.ClientOption{
		llmprovider.WithSessionOptions(c.Stream.SessionOptions()...),
		llmprovider.WithReadBufferSize(c.Stream.ReadBufferSize),
		llmprovider.WithStopGrace(c.Stream.StopGrace),
		llmprovider.WithResponsePullTimeout(c.Stream.PullTimeout),
	}
	if log != nil {
		opts = append(opts, llmprovider.WithClientLogger(log))
	}

	pc := c.Providers[id.String()]
	if pc.BaseURL != "" {
		opts = append(opts, llmprovider.WithBaseURL(pc.BaseURL))
	}
	for k, v := range pc.Headers {
		opts = append(opts, llmprovider.WithHeader(k, v))
	}
	return opts
}

func invalid(field string, value any, reason string) error {
	return &llmprovider.ValidationError{
		Field:  field,
		Value:  value,
		Reason: reason,
		Err:    llmprovider.ErrInvalidRequest,
	}
}
