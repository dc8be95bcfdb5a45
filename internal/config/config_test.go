package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FromEnvDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-4", cfg.OpenAI.ChatModel)
	assert.Equal(t, "whisper-1", cfg.OpenAI.TranscribeModel)
	backoff, err := cfg.RetryBackoff()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, backoff)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "openai", cfg.STT.Provider)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
	assert.Equal(t, "pitchcoach", cfg.Redis.Prefix)
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(`
openai:
  api_key: sk-file
  chat_model: gpt-4o-mini
retry:
  backoff: 0s
http:
  addr: ":9090"
`), 0o600)
	require.NoError(t, err)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-file", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.ChatModel)
	backoff, err := cfg.RetryBackoff()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), backoff)
	assert.Equal(t, time.Duration(0), cfg.RetryPolicy(3).InitialInterval)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
}

func TestLoadConfig_MissingAPIKeyFailsStartup(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.OpenAI.APIKey = "sk"
		cfg.STT.Provider = "openai"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad backoff", mutate: func(c *Config) { c.Retry.Backoff = "soon" }, wantErr: "invalid retry backoff"},
		{name: "negative backoff", mutate: func(c *Config) { c.Retry.Backoff = "-1s" }, wantErr: "must not be negative"},
		{name: "unknown provider", mutate: func(c *Config) { c.STT.Provider = "nope" }, wantErr: "unknown stt provider"},
		{name: "speechkit without credentials", mutate: func(c *Config) { c.STT.Provider = "speechkit" }, wantErr: "YANDEX_API_KEY"},
		{
			name: "speechkit with credentials",
			mutate: func(c *Config) {
				c.STT.Provider = "speechkit"
				c.SpeechKit.APIKey = "key"
				c.SpeechKit.FolderID = "folder"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestRetryPolicy(t *testing.T) {
	cfg := &Config{}
	cfg.Retry.Backoff = "100ms"
	cfg.Retry.MaxBackoff = time.Second

	p := cfg.RetryPolicy(3)
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, p.InitialInterval)
	assert.Equal(t, time.Second, p.MaxInterval)
	assert.Equal(t, 2.0, p.Multiplier)
}

func TestLoadConfig_ZeroBackoffFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("RETRY_BACKOFF", "0")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	backoff, err := cfg.RetryBackoff()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), backoff)
}

func TestRetryBackoff_EmptyUsesDefault(t *testing.T) {
	backoff, err := (&Config{}).RetryBackoff()
	require.NoError(t, err)
	assert.Equal(t, DefaultBackoff, backoff)
}

func TestUsage(t *testing.T) {
	assert.Contains(t, Usage(), "OPENAI_API_KEY")
}
