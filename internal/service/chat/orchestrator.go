package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"preceptor/internal/capabilities"
	"preceptor/internal/config"
	"preceptor/internal/domain"
	chatModels "preceptor/internal/domain/models/chat"
	"preceptor/internal/domain/repositories"
	chatSvc "preceptor/internal/domain/services/chat"
	llmSvc "preceptor/internal/domain/services/llm"
)

// Service implements the chat Orchestrator. It owns the session registry
// and drives the full exchange protocol against the retrieval, memory,
// persistence and generation collaborators.
//
// Failure policy: ErrChatNotFound and ErrRateLimited are the only errors
// that reject an exchange outright (besides generation itself failing).
// Retrieval, struggle-topic fetch, durable persistence, title backfill and
// memory analysis are all best-effort - logged and swallowed so the
// tutoring experience degrades instead of failing.
type Service struct {
	registry  *Registry
	courses   repositories.CourseRepository
	chats     repositories.ChatRepository
	retriever chatSvc.Retriever
	memory    chatSvc.MemoryAgent
	providers llmSvc.ProviderGetter
	caps      *capabilities.Registry
	model     string
	logger    *slog.Logger
}

// NewService creates the chat orchestrator.
func NewService(
	registry *Registry,
	courses repositories.CourseRepository,
	chats repositories.ChatRepository,
	retriever chatSvc.Retriever,
	memory chatSvc.MemoryAgent,
	providers llmSvc.ProviderGetter,
	caps *capabilities.Registry,
	model string,
	logger *slog.Logger,
) chatSvc.Orchestrator {
	return &Service{
		registry:  registry,
		courses:   courses,
		chats:     chats,
		retriever: retriever,
		memory:    memory,
		providers: providers,
		caps:      caps,
		model:     model,
		logger:    logger,
	}
}

// Initialize derives the chat id and registers a fresh session. A second
// call with identical inputs derives the same id and reuses the existing
// session without duplicating the registry entry or the greeting.
func (s *Service) Initialize(ctx context.Context, req *chatSvc.InitializeRequest) (*chatSvc.InitializeResult, error) {
	if err := s.validateInitializeRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	chatID := ChatID(req.UserID, req.Course, req.Timestamp)

	// Duplicate client call: the derived id already has a live session.
	if sess, ok := s.registry.lookup(chatID); ok {
		s.registry.Touch(chatID)
		s.logger.Info("chat already initialized, reusing session", "chat_id", chatID)
		return &chatSvc.InitializeResult{ChatID: chatID, Greeting: s.firstGreeting(sess)}, nil
	}

	// Compose the system turn. Every enrichment is optional: a failed
	// fetch falls back to the default rather than failing initialization.
	systemPrompt := s.composeSystemPrompt(ctx, req.UserID, req.Course)

	greetingText := defaultGreeting
	if course := s.courseByName(ctx, req.Course); course != nil {
		if selected, err := s.courses.GetSelectedGreeting(ctx, course.ID); err != nil {
			s.logger.Warn("selected greeting unavailable, using default", "course", req.Course, "error", err)
		} else if selected != "" {
			greetingText = selected
		}
	}

	greeting := chatModels.ChatMessage{
		ID:        MessageID(greetingText, chatID, req.Timestamp),
		Sender:    chatModels.SenderBot,
		UserID:    req.UserID,
		Course:    req.Course,
		Text:      greetingText,
		CreatedAt: req.Timestamp,
	}

	s.registry.Create(chatID)
	sess, ok := s.registry.lookup(chatID)
	if !ok {
		// Evicted between create and lookup; only possible with a TTL
		// shorter than this call.
		return nil, fmt.Errorf("%w: %s", domain.ErrChatNotFound, chatID)
	}

	sess.mu.Lock()
	sess.conversation.Append(chatModels.RoleSystem, systemPrompt)
	sess.conversation.Append(chatModels.RoleAssistant, greetingText)
	sess.transcript = append(sess.transcript, greeting)
	sess.mu.Unlock()

	// Durable chat row, best-effort.
	stored := &chatModels.StoredChat{
		ID:       chatID,
		UserID:   req.UserID,
		Course:   req.Course,
		Title:    placeholderTitle,
		Messages: []chatModels.ChatMessage{greeting},
	}
	if err := s.chats.CreateChat(ctx, stored); err != nil {
		s.logger.Warn("failed to persist new chat", "chat_id", chatID, "error", err)
	}

	s.logger.Info("chat initialized",
		"chat_id", chatID,
		"user_id", req.UserID,
		"course", req.Course,
	)

	return &chatSvc.InitializeResult{ChatID: chatID, Greeting: greeting}, nil
}

// Restore rebuilds an evicted chat from durable storage: a freshly
// recomposed system turn (so current objectives and struggle topics are
// reflected) followed by every persisted turn in original order.
func (s *Service) Restore(ctx context.Context, chatID, course, userID string) bool {
	if s.registry.Has(chatID) {
		s.registry.Touch(chatID)
		return true
	}

	stored, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info("restore rejected: no durable chat", "chat_id", chatID)
		} else {
			s.logger.Warn("restore failed to load chat", "chat_id", chatID, "error", err)
		}
		return false
	}
	if stored == nil || stored.IsDeleted {
		s.logger.Info("restore rejected: chat absent or deleted", "chat_id", chatID)
		return false
	}

	conv := NewConversation()
	conv.Append(chatModels.RoleSystem, s.composeSystemPrompt(ctx, userID, course))
	for _, msg := range stored.Messages {
		conv.Append(chatModels.TranscriptRole(msg.Sender), msg.Text)
	}

	transcript := make([]chatModels.ChatMessage, len(stored.Messages))
	copy(transcript, stored.Messages)

	s.registry.register(chatID, conv, transcript)

	s.logger.Info("chat restored",
		"chat_id", chatID,
		"turns", conv.Len(),
	)
	return true
}

// Delete evicts the chat and cancels its timer. False means the chat was
// not active, which callers treat as a signal rather than an error.
func (s *Service) Delete(chatID string) bool {
	removed := s.registry.Evict(chatID)
	if removed {
		s.logger.Info("chat deleted", "chat_id", chatID)
	}
	return removed
}

// Shutdown cancels every outstanding inactivity timer.
func (s *Service) Shutdown() {
	s.registry.Shutdown()
}

// Exchange runs the message-exchange protocol for one inbound user message.
// onChunk is invoked synchronously for each generated text delta; the caller
// forwards chunks to its own transport.
func (s *Service) Exchange(ctx context.Context, req *chatSvc.ExchangeRequest, onChunk func(string)) (*chatModels.ChatMessage, error) {
	if err := s.validateExchangeRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	sess, ok := s.registry.lookup(req.ChatID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrChatNotFound, req.ChatID)
	}

	// Single writer per chat across the whole read-fork-commit sequence.
	sess.mu.Lock()
	defer sess.mu.Unlock()

	// Step 1: an in-flight exchange counts as activity.
	s.registry.Touch(req.ChatID)

	// Rejected before any append, so a failed exchange leaves no partial
	// state behind. The cap is a hard count, not a sliding window.
	if sess.conversation.Len() >= config.MaxChatTurns {
		return nil, fmt.Errorf("%w: chat %s has %d turns", domain.ErrRateLimited, req.ChatID, sess.conversation.Len())
	}

	// Step 2: append the user turn to store and transcript.
	userMsg := chatModels.ChatMessage{
		ID:        MessageID(req.Text, req.ChatID, time.Now().UnixMilli()),
		Sender:    chatModels.SenderUser,
		UserID:    req.UserID,
		Course:    req.Course,
		Text:      req.Text,
		CreatedAt: time.Now().UnixMilli(),
	}
	sess.conversation.Append(chatModels.RoleUser, req.Text)
	sess.transcript = append(sess.transcript, userMsg)
	s.persistMessage(ctx, req.ChatID, &userMsg)

	// Steps 3-4: best-effort enrichment.
	contextBlock := s.retrieveContext(ctx, req)
	topics := s.struggleTopics(ctx, req.UserID, req.Course)

	// Step 5: fork with the synthetic context turn. The canonical store is
	// untouched from here until commit.
	forked := sess.conversation.Fork(BuildSyntheticTurn(contextBlock, topics))

	// Step 6: stream generation.
	reply, err := s.streamGeneration(ctx, forked, onChunk)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	// Step 7: commit only the assistant reply; the fork is discarded.
	botMsg := chatModels.ChatMessage{
		ID:        MessageID(reply, req.ChatID, time.Now().UnixMilli()),
		Sender:    chatModels.SenderBot,
		UserID:    req.UserID,
		Course:    req.Course,
		Text:      reply,
		CreatedAt: time.Now().UnixMilli(),
	}
	sess.conversation.Append(chatModels.RoleAssistant, reply)
	sess.transcript = append(sess.transcript, botMsg)
	s.persistMessage(ctx, req.ChatID, &botMsg)

	// Steps 8-9: post-processing, awaited here but invisible to the caller.
	s.backfillTitle(ctx, req.ChatID, reply)
	s.analyzeMemory(ctx, req.UserID, req.Course, sess.conversation.Turns())

	return &botMsg, nil
}

// composeSystemPrompt gathers base prompt, objectives and struggle topics,
// substituting defaults for anything that fails.
func (s *Service) composeSystemPrompt(ctx context.Context, userID, courseName string) string {
	var basePrompt string
	var objectives []string

	if course := s.courseByName(ctx, courseName); course != nil {
		if prompt, err := s.courses.GetBaseSystemPrompt(ctx, course.ID); err != nil {
			s.logger.Warn("base prompt unavailable, using default", "course", courseName, "error", err)
		} else {
			basePrompt = prompt
		}

		if objs, err := s.courses.ListLearningObjectives(ctx, course.ID); err != nil {
			s.logger.Warn("learning objectives unavailable", "course", courseName, "error", err)
		} else {
			for _, obj := range objs {
				objectives = append(objectives, obj.Text)
			}
		}
	}

	topics := s.struggleTopics(ctx, userID, courseName)
	return ComposeSystemPrompt(basePrompt, objectives, topics)
}

// courseByName resolves a course, returning nil on any failure.
func (s *Service) courseByName(ctx context.Context, name string) *chatModels.Course {
	course, err := s.courses.GetCourseByName(ctx, name)
	if err != nil {
		s.logger.Warn("course lookup failed", "course", name, "error", err)
		return nil
	}
	return course
}

// retrieveContext queries the retrieval collaborator scoped to the course's
// published content units. Any failure degrades to the explicit no-context
// fallback; retrieval is never fatal to an exchange.
func (s *Service) retrieveContext(ctx context.Context, req *chatSvc.ExchangeRequest) string {
	course := s.courseByName(ctx, req.Course)
	if course == nil {
		return FormatRetrievalContext(nil)
	}

	units, err := s.courses.ListPublishedUnitTitles(ctx, course.ID)
	if err != nil {
		s.logger.Warn("published units unavailable, skipping retrieval", "course", req.Course, "error", err)
		return FormatRetrievalContext(nil)
	}
	if len(units) == 0 {
		// Nothing is retrievable; querying with an impossible filter is
		// pointless.
		return FormatRetrievalContext(nil)
	}

	chunks, err := s.retriever.Retrieve(ctx, req.Text, chatSvc.RetrieveOptions{
		Limit:          config.RetrievalLimit,
		ScoreThreshold: config.RetrievalScoreThreshold,
		Course:         req.Course,
		PublishedUnits: units,
	})
	if err != nil {
		s.logger.Warn("retrieval failed, proceeding without context", "chat_id", req.ChatID, "error", err)
		return FormatRetrievalContext(nil)
	}

	return FormatRetrievalContext(chunks)
}

// struggleTopics fetches the memory collaborator's topic list, best-effort.
func (s *Service) struggleTopics(ctx context.Context, userID, course string) []string {
	topics, err := s.memory.StruggleTopics(ctx, userID, course)
	if err != nil {
		s.logger.Warn("struggle topics unavailable", "user_id", userID, "course", course, "error", err)
		return nil
	}
	return topics
}

// streamGeneration invokes the provider on the forked turns, forwarding
// each text delta to onChunk and accumulating the full reply.
func (s *Service) streamGeneration(ctx context.Context, turns []chatModels.Turn, onChunk func(string)) (string, error) {
	provider, err := s.providers.GetProvider(s.model)
	if err != nil {
		return "", fmt.Errorf("resolve provider for %s: %w", s.model, err)
	}

	params := &llmSvc.RequestParams{}
	if caps, ok := s.caps.Lookup(s.model); ok {
		params.ContextWindow = &caps.ContextWindow
		if caps.MaxOutput > 0 {
			maxTokens := caps.MaxOutput
			params.MaxTokens = &maxTokens
		}
	}

	events, err := provider.StreamResponse(ctx, &llmSvc.GenerateRequest{
		Turns:  turns,
		Model:  s.model,
		Params: params,
	})
	if err != nil {
		return "", err
	}

	var reply strings.Builder
	for event := range events {
		switch {
		case event.Error != nil:
			return "", event.Error
		case event.TextDelta != nil:
			onChunk(*event.TextDelta)
			reply.WriteString(*event.TextDelta)
		case event.Metadata != nil:
			s.logger.Debug("generation finished",
				"model", event.Metadata.Model,
				"input_tokens", event.Metadata.InputTokens,
				"output_tokens", event.Metadata.OutputTokens,
				"stop_reason", event.Metadata.StopReason,
			)
		}
	}

	return reply.String(), nil
}

// persistMessage appends one message to the durable transcript, best-effort.
func (s *Service) persistMessage(ctx context.Context, chatID string, msg *chatModels.ChatMessage) {
	if err := s.chats.AppendMessage(ctx, chatID, msg); err != nil {
		s.logger.Warn("failed to persist message", "chat_id", chatID, "message_id", msg.ID, "error", err)
	}
}

// backfillTitle derives and persists a chat title from the first assistant
// reply. Guarded by the persisted title itself, so it fires at most once.
func (s *Service) backfillTitle(ctx context.Context, chatID, reply string) {
	stored, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		s.logger.Warn("title backfill: chat load failed", "chat_id", chatID, "error", err)
		return
	}
	if stored == nil || !IsPlaceholderTitle(stored.Title) {
		return
	}

	title := DeriveTitle(reply)
	if title == "" {
		return
	}

	if err := s.chats.UpdateChatTitle(ctx, chatID, title); err != nil {
		s.logger.Warn("title backfill failed", "chat_id", chatID, "error", err)
		return
	}
	s.logger.Info("chat title backfilled", "chat_id", chatID, "title", title)
}

// analyzeMemory hands the trailing pre-commit window to the memory agent.
// Failures never propagate.
func (s *Service) analyzeMemory(ctx context.Context, userID, course string, turns []chatModels.Turn) {
	window, ok := analysisWindow(turns)
	if !ok {
		return
	}

	if err := s.memory.Analyze(ctx, userID, course, formatExchange(window)); err != nil {
		s.logger.Warn("memory analysis failed", "user_id", userID, "course", course, "error", err)
	}
}

// Validation methods

func (s *Service) validateInitializeRequest(req *chatSvc.InitializeRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.UserID, validation.Required),
		validation.Field(&req.Course, validation.Required),
		validation.Field(&req.Timestamp, validation.Required, validation.Min(int64(1))),
	)
}

func (s *Service) validateExchangeRequest(req *chatSvc.ExchangeRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.ChatID, validation.Required),
		validation.Field(&req.UserID, validation.Required),
		validation.Field(&req.Course, validation.Required),
		validation.Field(&req.Text,
			validation.Required,
			validation.Length(1, config.MaxMessageLength),
		),
	)
}

// firstGreeting returns the greeting message of an existing session for the
// duplicate-initialize path.
func (s *Service) firstGreeting(sess *session) chatModels.ChatMessage {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	for _, msg := range sess.transcript {
		if msg.Sender == chatModels.SenderBot {
			return msg
		}
	}
	return chatModels.ChatMessage{}
}
