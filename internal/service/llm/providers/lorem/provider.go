package lorem

import (
	"context"
	"fmt"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"

	chatModels "preceptor/internal/domain/models/chat"
	domainllm "preceptor/internal/domain/services/llm"
)

// Provider is a mock generation provider that produces lorem ipsum text.
// Used for development and tests without requiring real API keys.
type Provider struct {
	generator *loremgen.Lorem
}

// NewProvider creates a new lorem ipsum provider.
func NewProvider() *Provider {
	return &Provider{
		generator: loremgen.New(),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "lorem"
}

// SupportsModel returns true if the model name starts with "lorem-".
// Example models: "lorem-fast", "lorem-slow"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

// getStreamDelay returns the delay between words based on the model name.
// - lorem-slow: 2 words/second (500ms per word)
// - lorem-fast: 30 words/second (33ms per word)
// - default: 10 words/second
func getStreamDelay(model string) time.Duration {
	if strings.Contains(model, "slow") {
		return 500 * time.Millisecond
	}
	if strings.Contains(model, "fast") {
		return 33 * time.Millisecond
	}
	return 100 * time.Millisecond
}

// GenerateResponse produces a short lorem ipsum reply in one call.
func (p *Provider) GenerateResponse(ctx context.Context, req *domainllm.GenerateRequest) (*domainllm.GenerateResponse, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model '%s' is not supported by lorem provider", req.Model)
	}

	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	text := p.generateText(3)

	return &domainllm.GenerateResponse{
		Text:         text,
		Model:        req.Model,
		InputTokens:  estimateTokens(req.Turns),
		OutputTokens: len(strings.Fields(text)),
		StopReason:   "end_turn",
	}, nil
}

// StreamResponse streams a lorem ipsum reply word by word. Speed varies
// based on the model name (lorem-slow, lorem-fast).
func (p *Provider) StreamResponse(ctx context.Context, req *domainllm.GenerateRequest) (<-chan domainllm.StreamEvent, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model '%s' is not supported by lorem provider", req.Model)
	}

	text := p.generateText(3)
	words := strings.Fields(text)
	delay := getStreamDelay(req.Model)

	eventChan := make(chan domainllm.StreamEvent, 10)

	go func() {
		defer close(eventChan)

		for i, word := range words {
			select {
			case <-ctx.Done():
				eventChan <- domainllm.StreamEvent{Error: ctx.Err()}
				return
			default:
			}

			delta := word
			if i < len(words)-1 {
				delta += " "
			}
			eventChan <- domainllm.StreamEvent{TextDelta: &delta}

			time.Sleep(delay)
		}

		eventChan <- domainllm.StreamEvent{
			Metadata: &domainllm.StreamMetadata{
				Model:        req.Model,
				InputTokens:  estimateTokens(req.Turns),
				OutputTokens: len(words),
				StopReason:   "end_turn",
			},
		}
	}()

	return eventChan, nil
}

// generateText generates the given number of lorem ipsum sentences.
func (p *Provider) generateText(sentences int) string {
	var sb strings.Builder
	for i := 0; i < sentences; i++ {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(p.generator.Sentence(5, 15))
	}
	return sb.String()
}

// estimateTokens estimates the token count for a turn list.
// Uses word count as a rough approximation.
func estimateTokens(turns []chatModels.Turn) int {
	total := 0
	for _, turn := range turns {
		total += len(strings.Fields(turn.Text))
	}
	return total
}
