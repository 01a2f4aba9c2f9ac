package llm

import (
	"fmt"
	"log/slog"

	"preceptor/internal/config"
	"preceptor/internal/service/llm/providers/anthropic"
	"preceptor/internal/service/llm/providers/lorem"
)

// SetupProviders initializes the provider registry from config.
// The lorem mock provider is always available; the Anthropic provider is
// registered only when an API key is configured.
func SetupProviders(cfg *config.Config, logger *slog.Logger) (*ProviderRegistry, error) {
	registry := NewProviderRegistry()

	registry.Register(lorem.NewProvider())
	logger.Info("provider available", "name", "lorem", "models", "lorem-*")

	if cfg.AnthropicAPIKey != "" {
		provider, err := anthropic.NewProvider(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic provider: %w", err)
		}
		registry.Register(provider)
		logger.Info("provider available", "name", "anthropic", "models", "claude-*")
	} else {
		logger.Warn("ANTHROPIC_API_KEY not set - Anthropic provider not available")
	}

	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("provider registry validation failed: %w", err)
	}

	return registry, nil
}
