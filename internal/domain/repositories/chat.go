package repositories

import (
	"context"

	chatModels "preceptor/internal/domain/models/chat"
)

// ChatRepository persists chats and their transcripts. The in-memory session
// registry is authoritative while a chat is active; this store is what
// restoration replays after eviction or a process restart.
type ChatRepository interface {
	// GetUserChats lists a user's chats for a course, transcripts included.
	GetUserChats(ctx context.Context, course, userID string) ([]chatModels.StoredChat, error)

	// GetChat loads one chat with its full transcript.
	GetChat(ctx context.Context, chatID string) (*chatModels.StoredChat, error)

	// CreateChat inserts a new chat row. Inserting an id that already exists
	// is not an error; the existing row wins.
	CreateChat(ctx context.Context, chat *chatModels.StoredChat) error

	// AppendMessage appends one message to a chat's durable transcript.
	AppendMessage(ctx context.Context, chatID string, msg *chatModels.ChatMessage) error

	// UpdateChatTitle sets the chat title.
	UpdateChatTitle(ctx context.Context, chatID, title string) error
}

// MemoryRepository stores the struggle-topic list the memory agent maintains
// per (user, course).
type MemoryRepository interface {
	GetTopics(ctx context.Context, userID, course string) ([]string, error)
	SetTopics(ctx context.Context, userID, course string, topics []string) error
}
