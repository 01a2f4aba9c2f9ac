package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"preceptor/internal/domain"
	chatModels "preceptor/internal/domain/models/chat"
	"preceptor/internal/domain/repositories"
)

// PostgresChatRepository implements the ChatRepository interface using PostgreSQL
type PostgresChatRepository struct {
	db     repositories.DBTX
	tables *TableNames
	logger *slog.Logger
}

// NewChatRepository creates a new PostgresChatRepository
func NewChatRepository(config *RepositoryConfig) repositories.ChatRepository {
	return &PostgresChatRepository{
		db:     config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateChat inserts a new chat row. The chat id is content-derived, so a
// duplicate insert from a repeated client call keeps the existing row.
func (r *PostgresChatRepository) CreateChat(ctx context.Context, chat *chatModels.StoredChat) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, course, title, is_deleted, created_at)
		VALUES ($1, $2, $3, $4, false, now())
		ON CONFLICT (id) DO NOTHING
	`, r.tables.Chats)

	tag, err := r.db.Exec(ctx, query, chat.ID, chat.UserID, chat.Course, chat.Title)
	if err != nil {
		return fmt.Errorf("create chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Existing row wins; nothing else to persist.
		return nil
	}

	for i := range chat.Messages {
		if err := r.AppendMessage(ctx, chat.ID, &chat.Messages[i]); err != nil {
			return err
		}
	}
	return nil
}

// GetChat loads one chat with its full transcript in append order
func (r *PostgresChatRepository) GetChat(ctx context.Context, chatID string) (*chatModels.StoredChat, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, course, title, is_deleted
		FROM %s
		WHERE id = $1
	`, r.tables.Chats)

	var chat chatModels.StoredChat
	err := r.db.QueryRow(ctx, query, chatID).Scan(
		&chat.ID,
		&chat.UserID,
		&chat.Course,
		&chat.Title,
		&chat.IsDeleted,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}

	chat.Messages, err = r.loadMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}

	return &chat, nil
}

// GetUserChats lists a user's chats for a course, transcripts included
func (r *PostgresChatRepository) GetUserChats(ctx context.Context, course, userID string) ([]chatModels.StoredChat, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, course, title, is_deleted
		FROM %s
		WHERE course = $1 AND user_id = $2
		ORDER BY created_at DESC
	`, r.tables.Chats)

	rows, err := r.db.Query(ctx, query, course, userID)
	if err != nil {
		return nil, fmt.Errorf("list user chats: %w", err)
	}
	defer rows.Close()

	var chats []chatModels.StoredChat
	for rows.Next() {
		var chat chatModels.StoredChat
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Course, &chat.Title, &chat.IsDeleted); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range chats {
		chats[i].Messages, err = r.loadMessages(ctx, chats[i].ID)
		if err != nil {
			return nil, err
		}
	}

	return chats, nil
}

// AppendMessage appends one message to a chat's durable transcript. Message
// ids are content-derived, so replays of the same append are no-ops.
func (r *PostgresChatRepository) AppendMessage(ctx context.Context, chatID string, msg *chatModels.ChatMessage) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, chat_id, sender, user_id, course, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, r.tables.ChatMessages)

	_, err := r.db.Exec(ctx, query,
		msg.ID,
		chatID,
		msg.Sender,
		msg.UserID,
		msg.Course,
		msg.Text,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// UpdateChatTitle sets the chat title
func (r *PostgresChatRepository) UpdateChatTitle(ctx context.Context, chatID, title string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET title = $2 WHERE id = $1
	`, r.tables.Chats)

	tag, err := r.db.Exec(ctx, query, chatID, title)
	if err != nil {
		return fmt.Errorf("update chat title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
	}
	return nil
}

// loadMessages reads a chat's transcript ordered by insertion
func (r *PostgresChatRepository) loadMessages(ctx context.Context, chatID string) ([]chatModels.ChatMessage, error) {
	query := fmt.Sprintf(`
		SELECT id, sender, user_id, course, text, created_at
		FROM %s
		WHERE chat_id = $1
		ORDER BY seq
	`, r.tables.ChatMessages)

	rows, err := r.db.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var messages []chatModels.ChatMessage
	for rows.Next() {
		var msg chatModels.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.UserID, &msg.Course, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
