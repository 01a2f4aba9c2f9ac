package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"preceptor/internal/capabilities"
	"preceptor/internal/config"
	"preceptor/internal/domain"
	chatModels "preceptor/internal/domain/models/chat"
	chatSvc "preceptor/internal/domain/services/chat"
	llmSvc "preceptor/internal/domain/services/llm"
)

// Stub collaborators

type stubCourseRepo struct {
	course     *chatModels.Course
	objectives []chatModels.LearningObjective
	basePrompt string
	greeting   string
	units      []string
	err        error
}

func (s *stubCourseRepo) GetCourseByName(ctx context.Context, name string) (*chatModels.Course, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.course, nil
}

func (s *stubCourseRepo) ListLearningObjectives(ctx context.Context, courseID string) ([]chatModels.LearningObjective, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.objectives, nil
}

func (s *stubCourseRepo) GetBaseSystemPrompt(ctx context.Context, courseID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.basePrompt, nil
}

func (s *stubCourseRepo) GetSelectedGreeting(ctx context.Context, courseID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.greeting, nil
}

func (s *stubCourseRepo) ListPublishedUnitTitles(ctx context.Context, courseID string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.units, nil
}

type stubChatRepo struct {
	mu           sync.Mutex
	chats        map[string]*chatModels.StoredChat
	creates      int
	appends      int
	titleUpdates []string
}

func newStubChatRepo() *stubChatRepo {
	return &stubChatRepo{chats: make(map[string]*chatModels.StoredChat)}
}

func (s *stubChatRepo) GetUserChats(ctx context.Context, course, userID string) ([]chatModels.StoredChat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []chatModels.StoredChat
	for _, chat := range s.chats {
		if chat.Course == course && chat.UserID == userID {
			out = append(out, *chat)
		}
	}
	return out, nil
}

func (s *stubChatRepo) GetChat(ctx context.Context, chatID string) (*chatModels.StoredChat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return nil, fmt.Errorf("%w: chat %s", domain.ErrNotFound, chatID)
	}
	copied := *chat
	copied.Messages = append([]chatModels.ChatMessage(nil), chat.Messages...)
	return &copied, nil
}

func (s *stubChatRepo) CreateChat(ctx context.Context, chat *chatModels.StoredChat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if _, ok := s.chats[chat.ID]; ok {
		return nil // existing row wins
	}
	copied := *chat
	copied.Messages = append([]chatModels.ChatMessage(nil), chat.Messages...)
	s.chats[chat.ID] = &copied
	return nil
}

func (s *stubChatRepo) AppendMessage(ctx context.Context, chatID string, msg *chatModels.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	chat, ok := s.chats[chatID]
	if !ok {
		return fmt.Errorf("%w: chat %s", domain.ErrNotFound, chatID)
	}
	chat.Messages = append(chat.Messages, *msg)
	return nil
}

func (s *stubChatRepo) UpdateChatTitle(ctx context.Context, chatID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return fmt.Errorf("%w: chat %s", domain.ErrNotFound, chatID)
	}
	chat.Title = title
	s.titleUpdates = append(s.titleUpdates, title)
	return nil
}

func (s *stubChatRepo) title(chatID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat, ok := s.chats[chatID]; ok {
		return chat.Title
	}
	return ""
}

func (s *stubChatRepo) messageCount(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat, ok := s.chats[chatID]; ok {
		return len(chat.Messages)
	}
	return 0
}

type stubRetriever struct {
	chunks []chatSvc.RetrievedChunk
	err    error
	calls  int
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, opts chatSvc.RetrieveOptions) ([]chatSvc.RetrievedChunk, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.chunks, nil
}

type stubMemory struct {
	topics    []string
	topicsErr error
	analyzed  []string
}

func (s *stubMemory) StruggleTopics(ctx context.Context, userID, course string) ([]string, error) {
	if s.topicsErr != nil {
		return nil, s.topicsErr
	}
	return s.topics, nil
}

func (s *stubMemory) Analyze(ctx context.Context, userID, course, exchangeText string) error {
	s.analyzed = append(s.analyzed, exchangeText)
	return nil
}

// stubProvider streams a fixed chunk sequence and records every request.
// It doubles as its own ProviderGetter.
type stubProvider struct {
	chunks    []string
	streamErr error
	requests  []*llmSvc.GenerateRequest
}

func (s *stubProvider) GetProvider(model string) (llmSvc.Provider, error) { return s, nil }

func (s *stubProvider) Name() string                  { return "stub" }
func (s *stubProvider) SupportsModel(model string) bool { return true }

func (s *stubProvider) GenerateResponse(ctx context.Context, req *llmSvc.GenerateRequest) (*llmSvc.GenerateResponse, error) {
	s.requests = append(s.requests, req)
	return &llmSvc.GenerateResponse{Text: strings.Join(s.chunks, ""), Model: req.Model}, nil
}

func (s *stubProvider) StreamResponse(ctx context.Context, req *llmSvc.GenerateRequest) (<-chan llmSvc.StreamEvent, error) {
	s.requests = append(s.requests, req)
	if s.streamErr != nil {
		return nil, s.streamErr
	}

	events := make(chan llmSvc.StreamEvent, len(s.chunks)+1)
	for i := range s.chunks {
		chunk := s.chunks[i]
		events <- llmSvc.StreamEvent{TextDelta: &chunk}
	}
	events <- llmSvc.StreamEvent{Metadata: &llmSvc.StreamMetadata{Model: req.Model, StopReason: "end_turn"}}
	close(events)
	return events, nil
}

func (s *stubProvider) lastSyntheticTurn(t *testing.T) chatModels.Turn {
	t.Helper()
	if len(s.requests) == 0 {
		t.Fatal("provider never called")
	}
	turns := s.requests[len(s.requests)-1].Turns
	if len(turns) == 0 {
		t.Fatal("provider request has no turns")
	}
	return turns[len(turns)-1]
}

// Test fixture

type fixture struct {
	svc       chatSvc.Orchestrator
	registry  *Registry
	courses   *stubCourseRepo
	chats     *stubChatRepo
	retriever *stubRetriever
	memory    *stubMemory
	provider  *stubProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	caps, err := capabilities.NewRegistry()
	if err != nil {
		t.Fatalf("capability registry: %v", err)
	}

	f := &fixture{
		registry: NewRegistry(time.Minute, testLogger()),
		courses: &stubCourseRepo{
			course: &chatModels.Course{ID: "course-1", Name: "thermo-101"},
			units:  []string{"Unit 1"},
		},
		chats:     newStubChatRepo(),
		retriever: &stubRetriever{},
		memory:    &stubMemory{},
		provider:  &stubProvider{chunks: []string{"Entropy measures ", "disorder."}},
	}
	t.Cleanup(f.registry.Shutdown)

	f.svc = NewService(
		f.registry,
		f.courses,
		f.chats,
		f.retriever,
		f.memory,
		f.provider,
		caps,
		"lorem-fast",
		testLogger(),
	)
	return f
}

func (f *fixture) initialize(t *testing.T) string {
	t.Helper()
	result, err := f.svc.Initialize(context.Background(), &chatSvc.InitializeRequest{
		UserID:    "user-1",
		Course:    "thermo-101",
		Timestamp: 1700000000000,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return result.ChatID
}

func (f *fixture) exchange(t *testing.T, chatID, text string) *chatModels.ChatMessage {
	t.Helper()
	reply, err := f.svc.Exchange(context.Background(), &chatSvc.ExchangeRequest{
		ChatID: chatID,
		UserID: "user-1",
		Course: "thermo-101",
		Text:   text,
	}, func(string) {})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	return reply
}

// Tests

func TestInitializeIsIdempotent(t *testing.T) {
	f := newFixture(t)

	req := &chatSvc.InitializeRequest{UserID: "user-1", Course: "thermo-101", Timestamp: 1700000000000}

	first, err := f.svc.Initialize(context.Background(), req)
	if err != nil {
		t.Fatalf("first initialize: %v", err)
	}
	second, err := f.svc.Initialize(context.Background(), req)
	if err != nil {
		t.Fatalf("second initialize: %v", err)
	}

	if first.ChatID != second.ChatID {
		t.Errorf("chat ids differ: %s vs %s", first.ChatID, second.ChatID)
	}
	if first.Greeting.ID != second.Greeting.ID {
		t.Errorf("greeting duplicated across duplicate initialize")
	}
	if f.chats.creates != 1 {
		t.Errorf("durable chat created %d times, want 1", f.chats.creates)
	}

	sess, ok := f.registry.lookup(first.ChatID)
	if !ok {
		t.Fatal("session not resident")
	}
	if sess.conversation.Len() != 2 {
		t.Errorf("conversation has %d turns after duplicate initialize, want 2", sess.conversation.Len())
	}
}

func TestInitializeValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  chatSvc.InitializeRequest
	}{
		{"missing user", chatSvc.InitializeRequest{Course: "c", Timestamp: 1}},
		{"missing course", chatSvc.InitializeRequest{UserID: "u", Timestamp: 1}},
		{"zero timestamp", chatSvc.InitializeRequest{UserID: "u", Course: "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Initialize(context.Background(), &tt.req)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestInitializeUsesSelectedGreeting(t *testing.T) {
	f := newFixture(t)
	f.courses.greeting = "Welcome back to thermodynamics!"

	result, err := f.svc.Initialize(context.Background(), &chatSvc.InitializeRequest{
		UserID: "user-1", Course: "thermo-101", Timestamp: 1700000000000,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if result.Greeting.Text != "Welcome back to thermodynamics!" {
		t.Errorf("greeting = %q", result.Greeting.Text)
	}
	if result.Greeting.Sender != chatModels.SenderBot {
		t.Errorf("greeting sender = %q, want bot", result.Greeting.Sender)
	}
}

func TestInitializeSurvivesCourseLookupFailure(t *testing.T) {
	f := newFixture(t)
	f.courses.err = errors.New("course service down")

	result, err := f.svc.Initialize(context.Background(), &chatSvc.InitializeRequest{
		UserID: "user-1", Course: "thermo-101", Timestamp: 1700000000000,
	})
	if err != nil {
		t.Fatalf("initialize must degrade, got: %v", err)
	}
	if result.Greeting.Text != defaultGreeting {
		t.Errorf("greeting = %q, want default", result.Greeting.Text)
	}
}

func TestExchangeStreamsAndCommits(t *testing.T) {
	f := newFixture(t)
	chatID := f.initialize(t)

	var chunks []string
	reply, err := f.svc.Exchange(context.Background(), &chatSvc.ExchangeRequest{
		ChatID: chatID, UserID: "user-1", Course: "thermo-101", Text: "What is entropy?",
	}, func(chunk string) { chunks = append(chunks, chunk) })
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	if len(chunks) != 2 {
		t.Errorf("got %d chunks, want 2", len(chunks))
	}
	if reply.Text != "Entropy measures disorder." {
		t.Errorf("reply text = %q", reply.Text)
	}
	if reply.Sender != chatModels.SenderBot {
		t.Errorf("reply sender = %q, want bot", reply.Sender)
	}

	sess, _ := f.registry.lookup(chatID)
	if sess.conversation.Len() != 4 {
		t.Errorf("conversation has %d turns, want 4 (system, greeting, user, assistant)", sess.conversation.Len())
	}

	// Durable transcript: greeting from initialize plus both exchange sides.
	if got := f.chats.messageCount(chatID); got != 3 {
		t.Errorf("durable transcript has %d messages, want 3", got)
	}
}

func TestExchangeUnknownChat(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Exchange(context.Background(), &chatSvc.ExchangeRequest{
		ChatID: "not-resident", UserID: "user-1", Course: "thermo-101", Text: "hi",
	}, func(string) {})
	if !errors.Is(err, domain.ErrChatNotFound) {
		t.Errorf("got %v, want ErrChatNotFound", err)
	}
}

func TestExchangeValidation(t *testing.T) {
	f := newFixture(t)
	chatID := f.initialize(t)

	tests := []struct {
		name string
		req  chatSvc.ExchangeRequest
	}{
		{"missing text", chatSvc.ExchangeRequest{ChatID: chatID, UserID: "u", Course: "c"}},
		{"missing chat id", chatSvc.ExchangeRequest{UserID: "u", Course: "c", Text: "hi"}},
		{"oversized text", chatSvc.ExchangeRequest{ChatID: chatID, UserID: "u", Course: "c", Text: strings.Repeat("x", config.MaxMessageLength+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Exchange(context.Background(), &tt.req, func(string) {})
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestExchangeRateLimitLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(t)
	chatID := f.initialize(t)

	sess, _ := f.registry.lookup(chatID)
	for sess.conversation.Len() < config.MaxChatTurns {
		sess.conversation.Append(chatModels.RoleUser, "filler")
	}
	turnsBefore := sess.conversation.Len()
	messagesBefore := f.chats.messageCount(chatID)

	_, err := f.svc.Exchange(context.Background(), &chatSvc.ExchangeRequest{
		ChatID: chatID, UserID: "user-1", Course: "thermo-101", Text: "one more",
	}, func(string) {})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}

	if sess.conversation.Len() != turnsBefore {
		t.Errorf("rejected exchange grew the conversation: %d -> %d", turnsBefore, sess.conversation.Len())
	}
	if got := f.chats.messageCount(chatID); got != messagesBefore {
		t.Errorf("rejected exchange persisted messages: %d -> %d", messagesBefore, got)
	}
	if len(f.provider.requests) != 0 {
		t.Errorf("rejected exchange reached the provider")
	}
}

func TestExchangeForkIsolation(t *testing.T) {
	f := newFixture(t)
	f.retriever.chunks = []chatSvc.RetrievedChunk{{Content: "Entropy notes.", Score: 0.9}}
	chatID := f.initialize(t)

	f.exchange(t, chatID, "What is entropy?")

	// The provider saw the synthetic context turn...
	synthetic := f.provider.lastSyntheticTurn(t)
	if !strings.Contains(synthetic.Text, contextOpen) {
		t.Errorf("provider request missing context block:\n%s", synthetic.Text)
	}
	if !strings.Contains(synthetic.Text, "Entropy notes.") {
		t.Errorf("provider request missing retrieved content:\n%s", synthetic.Text)
	}

	// ...but the canonical store never did.
	sess, _ := f.registry.lookup(chatID)
	for i, turn := range sess.conversation.Turns() {
		if strings.Contains(turn.Text, contextOpen) {
			t.Errorf("turn %d contains retrieval context marker", i)
		}
	}
}

func TestExchangeSurvivesRetrieverFailure(t *testing.T) {
	f := newFixture(t)
	f.retriever.err = errors.New("vector search down")
	chatID := f.initialize(t)

	reply := f.exchange(t, chatID, "What is entropy?")
	if reply.Text == "" {
		t.Error("no reply despite provider being healthy")
	}

	synthetic := f.provider.lastSyntheticTurn(t)
	if !strings.Contains(synthetic.Text, noContextFallback) {
		t.Errorf("fallback context statement missing:\n%s", synthetic.Text)
	}
}

func TestExchangeSkipsRetrievalWithoutPublishedUnits(t *testing.T) {
	f := newFixture(t)
	f.courses.units = nil
	chatID := f.initialize(t)

	f.exchange(t, chatID, "What is entropy?")

	if f.retriever.calls != 0 {
		t.Errorf("retriever called %d times despite no published units", f.retriever.calls)
	}
	synthetic := f.provider.lastSyntheticTurn(t)
	if !strings.Contains(synthetic.Text, noContextFallback) {
		t.Errorf("fallback context statement missing:\n%s", synthetic.Text)
	}
}

func TestExchangeGenerationFailureCommitsNothing(t *testing.T) {
	f := newFixture(t)
	chatID := f.initialize(t)
	f.provider.streamErr = errors.New("provider down")

	_, err := f.svc.Exchange(context.Background(), &chatSvc.ExchangeRequest{
		ChatID: chatID, UserID: "user-1", Course: "thermo-101", Text: "hi",
	}, func(string) {})
	if err == nil {
		t.Fatal("expected generation failure")
	}

	// The user turn is committed before generation; no assistant turn follows.
	sess, _ := f.registry.lookup(chatID)
	turns := sess.conversation.Turns()
	if turns[len(turns)-1].Role != chatModels.RoleUser {
		t.Errorf("last turn role = %s, want user", turns[len(turns)-1].Role)
	}
}

func TestEvictionThenRestore(t *testing.T) {
	f := newFixture(t)
	chatID := f.initialize(t)
	f.exchange(t, chatID, "What is entropy?")

	if !f.svc.Delete(chatID) {
		t.Fatal("delete of a resident chat returned false")
	}
	if f.svc.Delete(chatID) {
		t.Error("second delete returned true")
	}

	// Evicted chat refuses exchange until restored.
	_, err := f.svc.Exchange(context.Background(), &chatSvc.ExchangeRequest{
		ChatID: chatID, UserID: "user-1", Course: "thermo-101", Text: "still there?",
	}, func(string) {})
	if !errors.Is(err, domain.ErrChatNotFound) {
		t.Fatalf("got %v, want ErrChatNotFound", err)
	}

	if !f.svc.Restore(context.Background(), chatID, "thermo-101", "user-1") {
		t.Fatal("restore of a persisted chat returned false")
	}

	// Replay: fresh system turn followed by every persisted message in order.
	sess, _ := f.registry.lookup(chatID)
	turns := sess.conversation.Turns()
	if turns[0].Role != chatModels.RoleSystem {
		t.Errorf("restored conversation does not open with a system turn")
	}
	wantRoles := []chatModels.Role{chatModels.RoleAssistant, chatModels.RoleUser, chatModels.RoleAssistant}
	if len(turns) != len(wantRoles)+1 {
		t.Fatalf("restored conversation has %d turns, want %d", len(turns), len(wantRoles)+1)
	}
	for i, want := range wantRoles {
		if turns[i+1].Role != want {
			t.Errorf("turn %d role = %s, want %s", i+1, turns[i+1].Role, want)
		}
	}

	// And the chat exchanges again.
	f.exchange(t, chatID, "Back to entropy.")
}

func TestRestoreResidentChatIsCheap(t *testing.T) {
	f := newFixture(t)
	chatID := f.initialize(t)

	if !f.svc.Restore(context.Background(), chatID, "thermo-101", "user-1") {
		t.Error("restore of a resident chat returned false")
	}
}

func TestRestoreRejectsUnknownAndDeleted(t *testing.T) {
	f := newFixture(t)

	if f.svc.Restore(context.Background(), "never-existed", "thermo-101", "user-1") {
		t.Error("restore of an unknown chat returned true")
	}

	f.chats.chats["gone"] = &chatModels.StoredChat{
		ID: "gone", UserID: "user-1", Course: "thermo-101", IsDeleted: true,
	}
	if f.svc.Restore(context.Background(), "gone", "thermo-101", "user-1") {
		t.Error("restore of a deleted chat returned true")
	}
}

func TestTitleBackfillFiresOnce(t *testing.T) {
	f := newFixture(t)
	chatID := f.initialize(t)

	if got := f.chats.title(chatID); got != placeholderTitle {
		t.Fatalf("fresh chat title = %q, want placeholder", got)
	}

	f.exchange(t, chatID, "What is entropy?")
	if got := f.chats.title(chatID); got != "Entropy measures disorder." {
		t.Errorf("title after first exchange = %q", got)
	}

	f.exchange(t, chatID, "And enthalpy?")
	if len(f.chats.titleUpdates) != 1 {
		t.Errorf("title updated %d times, want 1", len(f.chats.titleUpdates))
	}
}

func TestMemoryAnalysisLagsOneExchange(t *testing.T) {
	f := newFixture(t)
	chatID := f.initialize(t)

	f.exchange(t, chatID, "first question")  // 4 turns
	f.exchange(t, chatID, "second question") // 6 turns
	if len(f.memory.analyzed) != 0 {
		t.Fatalf("memory analysis ran before the threshold: %d calls", len(f.memory.analyzed))
	}

	f.exchange(t, chatID, "third question") // 8 turns, analysis fires
	if len(f.memory.analyzed) != 1 {
		t.Fatalf("memory analysis ran %d times, want 1", len(f.memory.analyzed))
	}

	// The window is the previous round-trip plus the follow-up; the reply
	// just committed is excluded.
	got := f.memory.analyzed[0]
	if !strings.Contains(got, "Student: second question") {
		t.Errorf("window missing previous student turn:\n%s", got)
	}
	if !strings.Contains(got, "Student: third question") {
		t.Errorf("window missing follow-up student turn:\n%s", got)
	}
	if strings.Count(got, "Tutor:") != 1 {
		t.Errorf("window should hold exactly one tutor turn:\n%s", got)
	}
}

func TestStruggleTopicsReachSyntheticTurn(t *testing.T) {
	f := newFixture(t)
	f.memory.topics = []string{"entropy"}
	chatID := f.initialize(t)

	f.exchange(t, chatID, "help me")

	synthetic := f.provider.lastSyntheticTurn(t)
	if !strings.Contains(synthetic.Text, "Known struggle topics for this student: entropy.") {
		t.Errorf("topics missing from synthetic turn:\n%s", synthetic.Text)
	}
}

func TestShutdownStopsAllSessions(t *testing.T) {
	f := newFixture(t)
	chatID := f.initialize(t)

	f.svc.Shutdown()

	if f.registry.Has(chatID) {
		t.Error("session survived shutdown")
	}
}
