package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"preceptor/internal/domain/repositories"
)

// PostgresMemoryRepository stores struggle-topic lists per (user, course)
type PostgresMemoryRepository struct {
	db     repositories.DBTX
	tables *TableNames
	logger *slog.Logger
}

// NewMemoryRepository creates a new PostgresMemoryRepository
func NewMemoryRepository(config *RepositoryConfig) repositories.MemoryRepository {
	return &PostgresMemoryRepository{
		db:     config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// GetTopics returns the topic list, empty when no row exists
func (r *PostgresMemoryRepository) GetTopics(ctx context.Context, userID, course string) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT topics
		FROM %s
		WHERE user_id = $1 AND course = $2
	`, r.tables.StruggleTopics)

	var topics []string
	err := r.db.QueryRow(ctx, query, userID, course).Scan(&topics)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get struggle topics: %w", err)
	}

	return topics, nil
}

// SetTopics replaces the topic list for (user, course)
func (r *PostgresMemoryRepository) SetTopics(ctx context.Context, userID, course string, topics []string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, course, topics, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id, course)
		DO UPDATE SET topics = EXCLUDED.topics, updated_at = now()
	`, r.tables.StruggleTopics)

	_, err := r.db.Exec(ctx, query, uuid.New().String(), userID, course, topics)
	if err != nil {
		return fmt.Errorf("set struggle topics: %w", err)
	}
	return nil
}
