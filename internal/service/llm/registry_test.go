package llm

import (
	"context"
	"strings"
	"testing"

	domainllm "preceptor/internal/domain/services/llm"
)

type fakeProvider struct {
	name   string
	prefix string
}

func (f *fakeProvider) Name() string                    { return f.name }
func (f *fakeProvider) SupportsModel(model string) bool { return strings.HasPrefix(model, f.prefix) }

func (f *fakeProvider) GenerateResponse(ctx context.Context, req *domainllm.GenerateRequest) (*domainllm.GenerateResponse, error) {
	return &domainllm.GenerateResponse{Model: req.Model}, nil
}

func (f *fakeProvider) StreamResponse(ctx context.Context, req *domainllm.GenerateRequest) (<-chan domainllm.StreamEvent, error) {
	ch := make(chan domainllm.StreamEvent)
	close(ch)
	return ch, nil
}

func TestRegistryRoutesByModel(t *testing.T) {
	registry := NewProviderRegistry()
	registry.Register(&fakeProvider{name: "lorem", prefix: "lorem-"})
	registry.Register(&fakeProvider{name: "anthropic", prefix: "claude-"})

	tests := []struct {
		model string
		want  string
	}{
		{"lorem-fast", "lorem"},
		{"claude-sonnet-4-5-20250929", "anthropic"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			provider, err := registry.GetProvider(tt.model)
			if err != nil {
				t.Fatalf("GetProvider(%s): %v", tt.model, err)
			}
			if provider.Name() != tt.want {
				t.Errorf("routed to %s, want %s", provider.Name(), tt.want)
			}
		})
	}
}

func TestRegistryRejectsUnknownModel(t *testing.T) {
	registry := NewProviderRegistry()
	registry.Register(&fakeProvider{name: "lorem", prefix: "lorem-"})

	if _, err := registry.GetProvider("gpt-4"); err == nil {
		t.Error("expected error for unsupported model")
	}
	if _, err := registry.GetProvider(""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestRegistryValidate(t *testing.T) {
	registry := NewProviderRegistry()
	if err := registry.Validate(); err == nil {
		t.Error("empty registry must fail validation")
	}

	registry.Register(&fakeProvider{name: "lorem", prefix: "lorem-"})
	if err := registry.Validate(); err != nil {
		t.Errorf("populated registry failed validation: %v", err)
	}
}
