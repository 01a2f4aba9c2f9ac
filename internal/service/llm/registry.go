package llm

import (
	"fmt"
	"sync"

	domainllm "preceptor/internal/domain/services/llm"
)

// ProviderRegistry routes model requests to the provider that supports
// them. Providers are registered at startup and resolved by model name.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers []domainllm.Provider
}

// NewProviderRegistry creates an empty provider registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{}
}

// Register adds a provider to the registry.
func (r *ProviderRegistry) Register(provider domainllm.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, provider)
}

// GetProvider returns the first registered provider that supports the
// given model.
//
// Examples:
//   - "claude-sonnet-4-5-20250929" → anthropic provider
//   - "lorem-fast" → lorem provider
func (r *ProviderRegistry) GetProvider(model string) (domainllm.Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, provider := range r.providers {
		if provider.SupportsModel(model) {
			return provider, nil
		}
	}
	return nil, fmt.Errorf("no provider supports model '%s'", model)
}

// Validate checks that at least one provider is registered.
// Should be called at startup to fail fast if misconfigured.
func (r *ProviderRegistry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.providers) == 0 {
		return fmt.Errorf("no providers registered")
	}
	return nil
}
