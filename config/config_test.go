package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/events", cfg.Slack.EventsPath)
	assert.Equal(t, "gpt-4", cfg.Completion.Model)
	assert.Equal(t, 8000, cfg.Completion.MaxTokens)
	assert.Equal(t, 0.8, cfg.Completion.Temperature)
	assert.Equal(t, "You are talking to Chloe, an AI assistant.", cfg.Completion.SystemPrompt)
	assert.Equal(t, 7*time.Second, cfg.Cooldown.Window)
	assert.Zero(t, cfg.Completion.Retry.MaxAttempts, "rate-limit retries are unbounded by default")
}

func TestLoad_EmptyUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-api-key")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")

	cfg, err := Load(strings.NewReader(""))
	require.NoError(t, err)

	assert.Equal(t, "test-api-key", cfg.Completion.APIKey)
	assert.Equal(t, "xoxb-test", cfg.Slack.BotToken)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoad_MissingSecretsFails(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("SLACK_BOT_TOKEN", "")

	_, err := Load(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APIKey")
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-api-key")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")

	yaml := `
server:
  port: 8080
completion:
  model: gpt-4o
  temperature: 0.2
  retry:
    max_attempts: 5
    max_delay: 10s
cooldown:
  window: 3s
`
	cfg, err := Load(strings.NewReader(yaml))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "gpt-4o", cfg.Completion.Model)
	assert.Equal(t, 0.2, cfg.Completion.Temperature)
	assert.Equal(t, 5, cfg.Completion.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Completion.Retry.MaxDelay)
	assert.Equal(t, 3*time.Second, cfg.Cooldown.Window)

	// Untouched fields keep defaults.
	assert.Equal(t, 8000, cfg.Completion.MaxTokens)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("CHLOE_MODEL", "gpt-4-turbo")

	yaml := `
completion:
  model: ${CHLOE_MODEL}
  url: ${CHLOE_URL:-https://api.openai.com/v1/chat/completions}
`
	cfg, err := Load(strings.NewReader(yaml))
	require.NoError(t, err)

	assert.Equal(t, "gpt-4-turbo", cfg.Completion.Model)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", cfg.Completion.URL)
}

func TestLoad_EnvSecretsWinOverFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("SLACK_BOT_TOKEN", "env-token")

	yaml := `
completion:
  api_key: file-key
slack:
  bot_token: file-token
`
	cfg, err := Load(strings.NewReader(yaml))
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Completion.APIKey)
	assert.Equal(t, "env-token", cfg.Slack.BotToken)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		cfg.Completion.APIKey = "key"
		cfg.Slack.BotToken = "token"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "invalid port"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"bad events path", func(c *Config) { c.Slack.EventsPath = "events" }, "invalid configuration"},
		{"zero cooldown window", func(c *Config) { c.Cooldown.Window = 0 }, "invalid configuration"},
		{"bad temperature", func(c *Config) { c.Completion.Temperature = 3.0 }, "invalid configuration"},
		{"empty model", func(c *Config) { c.Completion.Model = "" }, "invalid configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
