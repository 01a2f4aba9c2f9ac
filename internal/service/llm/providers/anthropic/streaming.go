package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	domainllm "preceptor/internal/domain/services/llm"
)

// StreamResponse generates a streaming response from Claude.
// Returns a channel that emits StreamEvent as deltas arrive from the API.
func (p *Provider) StreamResponse(ctx context.Context, req *domainllm.GenerateRequest) (<-chan domainllm.StreamEvent, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model '%s' is not supported by Anthropic provider", req.Model)
	}

	apiParams, err := buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	// Buffered to prevent blocking the SDK stream loop on a slow consumer
	eventChan := make(chan domainllm.StreamEvent, 10)

	go func() {
		defer close(eventChan)

		stream := p.client.Messages.NewStreaming(ctx, apiParams)

		// Accumulator for final message metadata
		message := anthropic.Message{}

		for stream.Next() {
			event := stream.Current()

			if err := message.Accumulate(event); err != nil {
				eventChan <- domainllm.StreamEvent{
					Error: fmt.Errorf("failed to accumulate message: %w", err),
				}
				return
			}

			streamEvent, ok := transformStreamEvent(event)
			if !ok {
				continue
			}

			select {
			case <-ctx.Done():
				eventChan <- domainllm.StreamEvent{
					Error: ctx.Err(),
				}
				return
			case eventChan <- streamEvent:
			}
		}

		if err := stream.Err(); err != nil {
			eventChan <- domainllm.StreamEvent{
				Error: fmt.Errorf("anthropic streaming error: %w", err),
			}
			return
		}

		eventChan <- domainllm.StreamEvent{
			Metadata: &domainllm.StreamMetadata{
				Model:        string(message.Model),
				InputTokens:  int(message.Usage.InputTokens),
				OutputTokens: int(message.Usage.OutputTokens),
				StopReason:   string(message.StopReason),
			},
		}
	}()

	return eventChan, nil
}

// transformStreamEvent converts an Anthropic streaming event to a domain
// StreamEvent. Only text deltas are surfaced; structural events
// (message/block start and stop) carry nothing the consumer needs.
func transformStreamEvent(event anthropic.MessageStreamEventUnion) (domainllm.StreamEvent, bool) {
	switch e := event.AsAny().(type) {
	case anthropic.ContentBlockDeltaEvent:
		if e.Delta.Type == "text_delta" {
			text := e.Delta.Text
			return domainllm.StreamEvent{TextDelta: &text}, true
		}
		return domainllm.StreamEvent{}, false

	default:
		return domainllm.StreamEvent{}, false
	}
}
