package capabilities

// ModelCapabilities holds the per-model limits the chat core consults when
// building generation requests.
type ModelCapabilities struct {
	// Model identifier (set during YAML unmarshaling)
	ID string `yaml:"-" json:"id"`

	// Display information
	DisplayName string `yaml:"display_name" json:"display_name"`
	Description string `yaml:"description" json:"description"`

	// Limits
	ContextWindow int `yaml:"context_window" json:"context_window"`
	MaxOutput     int `yaml:"max_output" json:"max_output"`
}

// ProviderCapabilities represents all models for a provider
type ProviderCapabilities struct {
	Provider string                       `yaml:"provider" json:"provider"`
	Models   map[string]ModelCapabilities `yaml:"models" json:"models"`
}
