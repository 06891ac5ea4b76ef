// Package config provides application configuration.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed providers_default.yaml
var providerDefaultsYAML []byte

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DatabaseURL string // Postgres DSN; empty selects the SQLite store
	DBPath      string
	Chat        ChatConfig
	Speech      SpeechConfig
	Avatar      AvatarConfig
	Retry       RetryConfig
	RateLimit   RateLimitConfig
	Retention   RetentionConfig
}

// ChatConfig selects and configures the chat completion provider.
type ChatConfig struct {
	Provider     string
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
}

// SpeechConfig configures the text-to-speech service.
type SpeechConfig struct {
	BaseURL string
	APIKey  string
	VoiceID string
	ModelID string
}

// AvatarConfig configures the talking-head video service and its poll
// bounds.
type AvatarConfig struct {
	BaseURL         string
	APIKey          string
	SourceURL       string
	PollInterval    time.Duration
	MaxPollAttempts int
	PollBudget      time.Duration
}

// RetryConfig tunes the outbound request executor.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// RateLimitConfig bounds per-user API request rates.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// RetentionConfig controls background cleanup of idle sessions. MaxIdle of
// zero disables the worker.
type RetentionConfig struct {
	Interval time.Duration
	MaxIdle  time.Duration
}

type providerDefaults struct {
	Providers map[string]struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"providers"`
}

// Load reads configuration from environment variables, filling chat endpoint
// gaps from the embedded provider defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/parley.db"),
		Chat: ChatConfig{
			Provider:     getEnv("CHAT_PROVIDER", ""),
			APIKey:       getEnv("CHAT_API_KEY", ""),
			BaseURL:      getEnv("CHAT_BASE_URL", ""),
			Model:        getEnv("CHAT_MODEL", ""),
			SystemPrompt: getEnv("CHAT_SYSTEM_PROMPT", "You are a friendly assistant. Keep replies short and conversational so they can be spoken aloud."),
		},
		Speech: SpeechConfig{
			BaseURL: getEnv("SPEECH_BASE_URL", "https://api.elevenlabs.io"),
			APIKey:  getEnv("SPEECH_API_KEY", ""),
			VoiceID: getEnv("SPEECH_VOICE_ID", ""),
			ModelID: getEnv("SPEECH_MODEL_ID", "eleven_multilingual_v2"),
		},
		Avatar: AvatarConfig{
			BaseURL:         getEnv("AVATAR_BASE_URL", "https://api.d-id.com"),
			APIKey:          getEnv("AVATAR_API_KEY", ""),
			SourceURL:       getEnv("AVATAR_SOURCE_URL", ""),
			PollInterval:    getEnvDuration("AVATAR_POLL_INTERVAL", 2*time.Second),
			MaxPollAttempts: getEnvInt("AVATAR_MAX_POLL_ATTEMPTS", 150),
			PollBudget:      getEnvDuration("AVATAR_POLL_BUDGET", 5*time.Minute),
		},
		Retry: RetryConfig{
			MaxRetries:   getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			InitialDelay: getEnvDuration("RETRY_INITIAL_DELAY", time.Second),
			MaxDelay:     getEnvDuration("RETRY_MAX_DELAY", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 60),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Retention: RetentionConfig{
			Interval: getEnvDuration("RETENTION_INTERVAL", time.Hour),
			MaxIdle:  getEnvDuration("RETENTION_MAX_IDLE", 0),
		},
	}

	if err := cfg.applyProviderDefaults(); err != nil {
		return nil, fmt.Errorf("provider defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyProviderDefaults fills Chat.BaseURL and Chat.Model for the selected
// provider when the environment left them empty.
func (c *Config) applyProviderDefaults() error {
	var defaults providerDefaults
	if err := yaml.Unmarshal(providerDefaultsYAML, &defaults); err != nil {
		return err
	}

	name := c.Chat.Provider
	if name == "" {
		name = "openai-compat"
	}
	d, ok := defaults.Providers[name]
	if !ok {
		return nil
	}
	if c.Chat.BaseURL == "" {
		c.Chat.BaseURL = d.BaseURL
	}
	if c.Chat.Model == "" {
		c.Chat.Model = d.Model
	}
	return nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DatabaseURL == "" && c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty when DATABASE_URL is unset")
	}
	if c.Retry.MaxRetries < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 1")
	}
	if c.Retry.InitialDelay <= 0 {
		return fmt.Errorf("RETRY_INITIAL_DELAY must be > 0")
	}
	if c.Avatar.PollInterval <= 0 {
		return fmt.Errorf("AVATAR_POLL_INTERVAL must be > 0")
	}
	if c.Avatar.MaxPollAttempts < 1 {
		return fmt.Errorf("AVATAR_MAX_POLL_ATTEMPTS must be >= 1")
	}
	if c.Avatar.PollBudget <= 0 {
		return fmt.Errorf("AVATAR_POLL_BUDGET must be > 0")
	}
	if c.RateLimit.Requests < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be >= 1")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.Retention.MaxIdle > 0 && c.Retention.Interval <= 0 {
		return fmt.Errorf("RETENTION_INTERVAL must be > 0 when retention is enabled")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
