package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haowjy/meridian-stream-go"
)

// clearKeys blanks every variable the defaults reference.
func clearKeys(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "OPENROUTER_API_KEY",
		"GROQ_API_KEY", "XAI_API_KEY", "AWS_REGION", "AWS_ACCESS_KEY_ID",
		"AWS_SECRET_ACCESS_KEY", "AWS_SESSION_TOKEN",
	} {
		t.Setenv(k, "")
	}
}

func TestDefault(t *testing.T) {
	clearKeys(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, Stream{
		HighWatermark:   64,
		NextTimeout:     60 * time.Second,
		MetadataTimeout: 120 * time.Second,
		ReadBufferSize:  4096,
		StopGrace:       2 * time.Second,
	}, cfg.Stream)
	assert.Equal(t, Log{Level: "info", Format: FormatPretty}, cfg.Log)

	assert.Equal(t, "sk-ant-test", cfg.Providers["anthropic"].APIKey)
	assert.Equal(t, "https://api.anthropic.com", cfg.Providers["anthropic"].BaseURL)
	assert.Empty(t, cfg.Providers["openai"].APIKey)
	assert.Contains(t, cfg.Providers, "lorem")
	for name := range cfg.Providers {
		assert.True(t, llmprovider.ProviderID(name).IsValid(), name)
	}
}

func TestParse_MergesOverDefaults(t *testing.T) {
	clearKeys(t)
	t.Setenv("MY_OPENAI_KEY", "sk-file")

	cfg, err := Parse([]byte(`
stream:
  high_watermark: 8
  pull_timeout: 5s
log:
  format: json
providers:
  openai:
    api_key: ${MY_OPENAI_KEY}
    headers:
      OpenAI-Organization: org-1
`))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Stream.HighWatermark)
	assert.Equal(t, 5*time.Second, cfg.Stream.PullTimeout)
	assert.Equal(t, 60*time.Second, cfg.Stream.NextTimeout)
	assert.Equal(t, FormatJSON, cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)

	openai := cfg.Providers["openai"]
	assert.Equal(t, "sk-file", openai.APIKey)
	assert.Equal(t, "https://api.openai.com/v1", openai.BaseURL)
	assert.Equal(t, map[string]string{"OpenAI-Organization": "org-1"}, openai.Headers)
	assert.Equal(t, "https://api.anthropic.com", cfg.Providers["anthropic"].BaseURL)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"watermark", "stream: {high_watermark: 0}", "stream.high_watermark"},
		{"read buffer", "stream: {read_buffer_size: -1}", "stream.read_buffer_size"},
		{"negative grace", "stream: {stop_grace: -1s}", "stream.stop_grace"},
		{"level", "log: {level: loud}", "log.level"},
		{"format", "log: {format: xml}", "log.format"},
		{"provider", "providers: {mistral: {api_key: x}}", "providers.mistral"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			var ve *llmprovider.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.True(t, llmprovider.IsInvalidRequest(err))
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("stream: [1, 2"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	clearKeys(t)
	path := filepath.Join(t.TempDir(), "meridian.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: {level: debug, format: text}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Logger(false).Enabled(context.Background(), slog.LevelDebug))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Stream.HighWatermark)
}

func TestLogLogger_Debug(t *testing.T) {
	l := Log{Level: "warn", Format: FormatText}
	assert.False(t, l.Logger(false).Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, l.Logger(true).Enabled(context.Background(), slog.LevelDebug))
}

func TestProviderForModel(t *testing.T) {
	clearKeys(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")

	cfg, err := Default()
	require.NoError(t, err)

	tests := []struct {
		model string
		want  llmprovider.ProviderID
	}{
		{"lorem-fast", llmprovider.ProviderLorem},
		{"claude-sonnet-4-5", llmprovider.ProviderAnthropic},
		{"meta-llama/llama-3.3-70b-instruct", llmprovider.ProviderOpenRouter},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			p, err := cfg.ProviderForModel(tt.model, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name())
		})
	}

	_, err = cfg.ProviderForModel("gpt-4o", nil)
	assert.ErrorIs(t, err, llmprovider.ErrInvalidModel)
	assert.ErrorIs(t, err, llmprovider.ErrInvalidAPIKey)
}

func TestNewProvider_Bedrock(t *testing.T) {
	clearKeys(t)
	t.Setenv("AWS_REGION", "us-west-2")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDEXAMPLE")

	cfg, err := Default()
	require.NoError(t, err)

	p, err := cfg.NewProvider(llmprovider.ProviderBedrock, nil)
	require.NoError(t, err)
	assert.Equal(t, llmprovider.ProviderBedrock, p.Name())
	assert.True(t, p.SupportsModel("us.anthropic.claude-sonnet-4-5-20250929-v1:0"))

	_, err = cfg.NewProvider(llmprovider.ProviderID("mistral"), nil)
	assert.ErrorIs(t, err, llmprovider.ErrUnsupportedFeature)
}

func TestLoadEnv_WalksUp(t *testing.T) {
	const key = "MERIDIAN_STREAM_CONFIG_TEST"
	t.Cleanup(func() { os.Unsetenv(key) })

	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte(key+"=from-dotenv\n"), 0o600))

	assert.Equal(t, filepath.Join(root, ".env"), loadEnvFrom(nested))
	assert.Equal(t, "from-dotenv", os.Getenv(key))
}
