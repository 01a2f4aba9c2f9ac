package chat

import (
	"log/slog"
	"sync"
	"time"

	chatModels "preceptor/internal/domain/models/chat"
)

// session is one resident chat: its conversation store, the parallel
// transcript used for UI replay, and the inactivity timer. The per-session
// mutex serializes the read-fork-commit sequence of concurrent exchanges on
// the same chat; the source system got that serialization for free from
// cooperative scheduling, here it must be explicit.
type session struct {
	chatID       string
	conversation *Conversation
	transcript   []chatModels.ChatMessage
	timer        *time.Timer

	mu sync.Mutex
}

// Registry tracks which chats are resident in memory. A chat id is present
// here if and only if it is active: eligible for message exchange without a
// restore step.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. ttl is the per-chat inactivity
// deadline; a chat that is not touched within ttl is evicted.
func NewRegistry(ttl time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		ttl:      ttl,
		logger:   logger,
	}
}

// Create inserts an empty session and starts its inactivity timer. If the
// chat is already present this is a logged no-op; the registry never
// double-inserts.
func (r *Registry) Create(chatID string) {
	r.register(chatID, NewConversation(), nil)
}

// register installs a session with a prebuilt conversation and transcript.
// Used by Create and by restoration.
func (r *Registry) register(chatID string, conv *Conversation, transcript []chatModels.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[chatID]; ok {
		r.logger.Warn("session already registered, keeping existing entry", "chat_id", chatID)
		return
	}

	s := &session{
		chatID:       chatID,
		conversation: conv,
		transcript:   transcript,
	}
	s.timer = time.AfterFunc(r.ttl, func() { r.expire(chatID) })
	r.sessions[chatID] = s
}

// Touch restarts the inactivity timer. No-op if the chat is absent.
func (r *Registry) Touch(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[chatID]
	if !ok {
		return
	}
	s.timer.Reset(r.ttl)
}

// Evict removes the session and cancels its timer. Idempotent: evicting an
// absent chat is a safe no-op. Returns whether an entry was removed.
func (r *Registry) Evict(chatID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[chatID]
	if !ok {
		return false
	}
	s.timer.Stop()
	delete(r.sessions, chatID)
	return true
}

// Has reports whether the chat is currently resident.
func (r *Registry) Has(chatID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[chatID]
	return ok
}

// Shutdown cancels every outstanding inactivity timer and clears the
// registry. Called once during process teardown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.sessions {
		s.timer.Stop()
		delete(r.sessions, id)
	}
}

// lookup returns the live session for a chat id.
func (r *Registry) lookup(chatID string) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[chatID]
	return s, ok
}

// expire is the timer callback: it evicts the chat after the inactivity
// deadline elapses without a touch.
func (r *Registry) expire(chatID string) {
	if r.Evict(chatID) {
		r.logger.Info("chat evicted after inactivity", "chat_id", chatID, "ttl", r.ttl)
	}
}
