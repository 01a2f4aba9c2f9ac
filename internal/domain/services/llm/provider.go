package llm

import (
	"context"

	chatModels "preceptor/internal/domain/models/chat"
)

// Provider defines the interface every generation backend implements.
// This abstraction keeps the orchestrator agnostic to the concrete
// provider (Anthropic, lorem mock for dev/test).
type Provider interface {
	// GenerateResponse produces a complete response in one call.
	GenerateResponse(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// StreamResponse produces a response incrementally. The returned
	// channel emits StreamEvents as deltas arrive and is closed when
	// generation finishes.
	StreamResponse(ctx context.Context, req *GenerateRequest) (<-chan StreamEvent, error)

	// Name returns the provider name (e.g., "anthropic", "lorem")
	Name() string

	// SupportsModel returns true if the provider supports the given model.
	SupportsModel(model string) bool
}

// ProviderGetter resolves a provider for a model name.
type ProviderGetter interface {
	GetProvider(model string) (Provider, error)
}

// GenerateRequest contains the parameters for one generation call.
type GenerateRequest struct {
	// Turns is the ordered conversation sent to the provider. The first
	// entry with RoleSystem is lifted into the provider's system slot.
	Turns []chatModels.Turn

	// Model is the model identifier.
	Model string

	// Params holds generation parameters.
	Params *RequestParams
}

// RequestParams are the generation knobs the orchestrator sets.
type RequestParams struct {
	Temperature *float64
	MaxTokens   *int

	// ContextWindow is a size hint from the capability registry; providers
	// may use it to trim or warn, never to fail.
	ContextWindow *int
}

// GetMaxTokens returns MaxTokens or the given default.
func (p *RequestParams) GetMaxTokens(def int) int {
	if p != nil && p.MaxTokens != nil && *p.MaxTokens > 0 {
		return *p.MaxTokens
	}
	return def
}

// StreamEvent is one item on a provider's streaming channel. Exactly one
// field is set.
type StreamEvent struct {
	// TextDelta is an incremental piece of assistant text.
	TextDelta *string

	// Metadata arrives once, after the last delta.
	Metadata *StreamMetadata

	// Error terminates the stream.
	Error error
}

// StreamMetadata summarizes a finished stream.
type StreamMetadata struct {
	Model        string
	InputTokens  int
	OutputTokens int
	StopReason   string
}

// GenerateResponse contains a provider's complete response.
type GenerateResponse struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	StopReason   string
}
