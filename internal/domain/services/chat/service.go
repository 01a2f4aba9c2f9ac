package chat

import (
	"context"

	chatModels "preceptor/internal/domain/models/chat"
)

// Orchestrator is the conversational core: it owns the session registry and
// exposes chat lifecycle plus the message-exchange protocol. The transport
// layer (SSE, WebSocket) attaches to Exchange's chunk callback.
type Orchestrator interface {
	// Initialize derives a chat id from (user, course, timestamp) and
	// registers a fresh session with its system turn and greeting. Calling
	// it twice with identical inputs reuses the existing session.
	Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResult, error)

	// Restore rebuilds an evicted chat from durable storage. Returns false
	// when the chat is unknown or deleted; the caller decides whether to
	// re-initialize.
	Restore(ctx context.Context, chatID, course, userID string) bool

	// Delete evicts a chat and cancels its inactivity timer. Returns false
	// when the chat was not active; callers treat that as a signal, not an
	// error.
	Delete(chatID string) bool

	// Exchange runs the full protocol for one user message: touch, append,
	// retrieve, fork, stream, commit, post-process. onChunk is invoked
	// synchronously for every generated text delta.
	Exchange(ctx context.Context, req *ExchangeRequest, onChunk func(string)) (*chatModels.ChatMessage, error)

	// Shutdown cancels every outstanding inactivity timer. Called once
	// during process teardown.
	Shutdown()
}

// InitializeRequest starts (or re-joins) a tutoring chat.
type InitializeRequest struct {
	UserID    string
	Course    string
	Timestamp int64 // epoch milliseconds
}

// InitializeResult carries the derived chat id and the greeting to display.
type InitializeResult struct {
	ChatID   string                 `json:"chat_id"`
	Greeting chatModels.ChatMessage `json:"greeting"`
}

// ExchangeRequest carries one inbound user message.
type ExchangeRequest struct {
	ChatID string
	UserID string
	Course string
	Text   string
}
