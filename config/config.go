// Package config provides configuration management for the Chloe gateway.
// Configuration is layered: compiled-in defaults, then an optional YAML file
// with ${VAR} environment expansion, then direct environment overrides for
// the two required secrets. The secrets are a startup-fatal condition, not a
// per-request one.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the complete gateway configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Slack      SlackConfig      `yaml:"slack"`
	Completion CompletionConfig `yaml:"completion"`
	Cooldown   CooldownConfig   `yaml:"cooldown"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds server-specific configuration for the HTTP listener.
type ServerConfig struct {
	// Port specifies the HTTP server port (default: 3000)
	Port int `yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body (default: 30s)
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Completions can take a while, so this is generous by default.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values (default: 1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// ShutdownTimeout specifies how long to wait for the server to shutdown
	// gracefully before forcing termination (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SlackConfig holds the messaging-platform side of the gateway.
type SlackConfig struct {
	// BotToken authenticates outbound calls (message posting, file
	// download). Sourced from SLACK_BOT_TOKEN; required.
	BotToken string `yaml:"bot_token" validate:"required"`

	// EventsPath is the webhook path the platform delivers events to
	// (default: /events)
	EventsPath string `yaml:"events_path" validate:"required,startswith=/"`
}

// CompletionConfig holds configuration for the completion backend call.
type CompletionConfig struct {
	// APIKey is the bearer token for the completion backend. Sourced from
	// OPENAI_API_KEY; required.
	APIKey string `yaml:"api_key" validate:"required"`

	// URL is the chat completions endpoint
	// (default: https://api.openai.com/v1/chat/completions)
	URL string `yaml:"url" validate:"required,url"`

	// Model is the model name sent with every request (default: gpt-4)
	Model string `yaml:"model" validate:"required"`

	// SystemPrompt is the fixed persona prepended to every prompt
	SystemPrompt string `yaml:"system_prompt"`

	// MaxTokens caps the generated reply length (default: 8000)
	MaxTokens int `yaml:"max_tokens" validate:"gt=0"`

	// Temperature controls sampling randomness (default: 0.8)
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`

	// Retry governs the rate-limit retry loop
	Retry RetryConfig `yaml:"retry"`

	// CircuitBreaker guards individual attempts against a failing backend
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig defines the retry behavior for rate-limited completion calls.
// The backend's Retry-After header drives the delay; these knobs only bound
// it. The zero value retries forever with the server-provided delay, which
// matches the gateway's default behavior.
type RetryConfig struct {
	// MaxAttempts caps the number of rate-limit retries per request.
	// 0 means retry indefinitely.
	MaxAttempts int `yaml:"max_attempts" validate:"gte=0"`

	// MaxDelay caps a single server-provided backoff sleep.
	// 0 means honor the header as-is.
	MaxDelay time.Duration `yaml:"max_delay" validate:"gte=0"`
}

// CircuitBreakerConfig configures the breaker around completion attempts.
type CircuitBreakerConfig struct {
	// MaxRequests is the maximum number of requests allowed through while
	// half-open
	MaxRequests uint32 `yaml:"max_requests"`

	// Interval is the cyclic period of the closed state
	Interval time.Duration `yaml:"interval"`

	// Timeout is the period of the open state until it becomes half-open
	Timeout time.Duration `yaml:"timeout"`

	// FailureThreshold is the number of consecutive failures needed to trip
	FailureThreshold uint32 `yaml:"failure_threshold"`
}

// CooldownConfig configures the per-user throttle.
type CooldownConfig struct {
	// Window is the cooldown applied between accepted requests from the
	// same user (default: 7s)
	Window time.Duration `yaml:"window" validate:"gt=0"`

	// SweepInterval is how often idle entries are evicted from the cooldown
	// map. 0 disables sweeping and lets the map grow unbounded.
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"gte=0"`

	// MaxIdleWindows is how many cooldown windows an entry may sit idle
	// before the sweeper drops it
	MaxIdleWindows int `yaml:"max_idle_windows" validate:"gte=0"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	// Level sets logging verbosity: debug, info, warn, error
	Level string `yaml:"level"`

	// Format specifies log output format: json or text
	Format string `yaml:"format"`
}

// DefaultConfig returns the compiled-in defaults. Secrets are intentionally
// empty here; they come from the environment or the config file and are
// checked by Validate.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Slack: SlackConfig{
			EventsPath: "/events",
		},
		Completion: CompletionConfig{
			URL:          "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4",
			SystemPrompt: "You are talking to Chloe, an AI assistant.",
			MaxTokens:    8000,
			Temperature:  0.8,
			Retry: RetryConfig{
				MaxAttempts: 0, // honor the backend's Retry-After forever
				MaxDelay:    0,
			},
			CircuitBreaker: CircuitBreakerConfig{
				MaxRequests:      1,
				Interval:         60 * time.Second,
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
			},
		},
		Cooldown: CooldownConfig{
			Window:         7 * time.Second,
			SweepInterval:  5 * time.Minute,
			MaxIdleWindows: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// expandEnvVars resolves environment variable references inside the raw
// YAML text. It supports ${VAR} substitution and ${VAR:-default} fallback
// syntax, and resolves nested references until a fixed point.
func expandEnvVars(s string) string {
	result := os.Expand(s, func(key string) string {
		if i := strings.Index(key, ":-"); i >= 0 {
			envKey := key[:i]
			defaultValue := key[i+2:]
			if val := os.Getenv(envKey); val != "" {
				return val
			}
			return defaultValue
		}
		return os.Getenv(key)
	})

	prev := ""
	for prev != result {
		prev = result
		result = os.Expand(result, os.Getenv)
	}

	return result
}

// applyEnv applies direct environment overrides. The two secrets always win
// over file contents so a token never has to live on disk.
func applyEnv(config *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		config.Completion.APIKey = v
	}
	if v := os.Getenv("SLACK_BOT_TOKEN"); v != "" {
		config.Slack.BotToken = v
	}
}

// Load loads configuration from an io.Reader. An empty reader yields the
// defaults plus environment overrides.
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	config := DefaultConfig()

	if len(data) > 0 {
		expanded := expandEnvVars(string(data))
		dec := yaml.NewDecoder(strings.NewReader(expanded))
		if err := dec.Decode(config); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// LoadFile loads configuration from a YAML file.
func LoadFile(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// LoadDefault loads the named config file when it exists and falls back to
// defaults plus environment overrides when it does not.
func LoadDefault(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Load(strings.NewReader(""))
	}
	return LoadFile(filename)
}

var validate = validator.New()

// Validate checks if the configuration is valid. Missing secrets are
// reported here so the process fails at startup rather than on the first
// delivery.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("negative read timeout: %v", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("negative write timeout: %v", c.Server.WriteTimeout)
	}
	if c.Server.MaxHeaderBytes < 0 {
		return fmt.Errorf("negative max header bytes: %d", c.Server.MaxHeaderBytes)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("negative shutdown timeout: %v", c.Server.ShutdownTimeout)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if err := validate.Struct(c); err != nil {
		var invalid []string
		for _, fieldErr := range err.(validator.ValidationErrors) {
			invalid = append(invalid, fmt.Sprintf("%s (%s)", fieldErr.Namespace(), fieldErr.Tag()))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(invalid, ", "))
	}

	return nil
}
