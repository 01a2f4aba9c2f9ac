package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	chatModels "preceptor/internal/domain/models/chat"
	"preceptor/internal/domain/repositories"
	chatSvc "preceptor/internal/domain/services/chat"
	llmSvc "preceptor/internal/domain/services/llm"
)

// maxTopics caps the stored struggle-topic list; the newest inferences win.
const maxTopics = 5

// analysisPrompt instructs the model to read one exchange window and emit
// the updated topic list. The reply must be a bare comma-separated line so
// parsing stays trivial.
const analysisPrompt = "You maintain a short list of concepts a student is struggling with. " +
	"Read the tutoring exchange below and the current list, then reply with ONLY the " +
	"updated comma-separated list (at most %d items, most recent struggles first). " +
	"Reply with the single word NONE if the student shows no difficulty.\n\n" +
	"Current list: %s\n\nExchange:\n%s"

// Agent implements the MemoryAgent collaborator: it infers struggle topics
// from trailing conversation windows using a generation provider and keeps
// the per-(user, course) list in its repository.
type Agent struct {
	topics    repositories.MemoryRepository
	providers llmSvc.ProviderGetter
	model     string
	logger    *slog.Logger
}

// NewAgent creates an LLM-backed memory agent.
func NewAgent(topics repositories.MemoryRepository, providers llmSvc.ProviderGetter, model string, logger *slog.Logger) chatSvc.MemoryAgent {
	return &Agent{
		topics:    topics,
		providers: providers,
		model:     model,
		logger:    logger,
	}
}

// StruggleTopics returns the current list for (user, course).
func (a *Agent) StruggleTopics(ctx context.Context, userID, course string) ([]string, error) {
	return a.topics.GetTopics(ctx, userID, course)
}

// Analyze runs one inference pass over a formatted exchange and stores the
// updated list. Callers treat every failure as non-fatal.
func (a *Agent) Analyze(ctx context.Context, userID, course, exchangeText string) error {
	current, err := a.topics.GetTopics(ctx, userID, course)
	if err != nil {
		return fmt.Errorf("load current topics: %w", err)
	}

	currentList := "(empty)"
	if len(current) > 0 {
		currentList = strings.Join(current, ", ")
	}

	provider, err := a.providers.GetProvider(a.model)
	if err != nil {
		return fmt.Errorf("resolve provider for %s: %w", a.model, err)
	}

	resp, err := provider.GenerateResponse(ctx, &llmSvc.GenerateRequest{
		Turns: []chatModels.Turn{
			{Role: chatModels.RoleUser, Text: fmt.Sprintf(analysisPrompt, maxTopics, currentList, exchangeText)},
		},
		Model: a.model,
	})
	if err != nil {
		return fmt.Errorf("analysis generation: %w", err)
	}

	updated := ParseTopics(resp.Text)
	if err := a.topics.SetTopics(ctx, userID, course, updated); err != nil {
		return fmt.Errorf("store topics: %w", err)
	}

	a.logger.Debug("struggle topics updated",
		"user_id", userID,
		"course", course,
		"topics", updated,
	)
	return nil
}

// ParseTopics turns a model reply into a clean topic list. NONE or an empty
// reply clears the list; anything else is split on commas, trimmed and
// capped at maxTopics.
func ParseTopics(reply string) []string {
	reply = strings.TrimSpace(reply)
	if reply == "" || strings.EqualFold(reply, "none") {
		return nil
	}

	// Models occasionally wrap the list in a sentence; keep only the last
	// non-empty line, which is where the list lands.
	lines := strings.Split(reply, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			reply = strings.TrimSpace(lines[i])
			break
		}
	}

	var topics []string
	for _, part := range strings.Split(reply, ",") {
		topic := strings.Trim(strings.TrimSpace(part), ".")
		if topic == "" || strings.EqualFold(topic, "none") {
			continue
		}
		topics = append(topics, topic)
		if len(topics) == maxTopics {
			break
		}
	}
	return topics
}
