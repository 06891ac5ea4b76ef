package chat

import (
	"fmt"

	"github.com/parleylabs/parley/internal/config"
	"github.com/parleylabs/parley/internal/httpx"
)

// Provider names accepted in configuration.
const (
	ProviderOpenAICompat = "openai-compat"
	ProviderOpenAI       = "openai"
	ProviderAnthropic    = "anthropic"
)

// New builds the configured provider. An empty provider name selects the
// OpenAI-compatible REST path, which works against any gateway speaking that
// wire format.
func New(cfg config.ChatConfig, rest *httpx.Client) (Provider, error) {
	switch cfg.Provider {
	case "", ProviderOpenAICompat:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("chat provider %q requires a base URL", ProviderOpenAICompat)
		}
		return NewOpenAICompat(rest, cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case ProviderAnthropic:
		return NewAnthropic(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown chat provider %q", cfg.Provider)
	}
}
