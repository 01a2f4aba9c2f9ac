package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	chatSvc "preceptor/internal/domain/services/chat"
	"preceptor/internal/repository/postgres"
)

// queryTimeout bounds one retrieval round-trip so a slow vector search can
// never stall an exchange past this.
const queryTimeout = 5 * time.Second

// Embedder turns text into an embedding vector. The embedding engine itself
// is an external capability; this interface is the whole contract.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service implements the Retriever collaborator with a cosine-distance
// search over the course-content chunk table.
type Service struct {
	pool     *pgxpool.Pool
	tables   *postgres.TableNames
	embedder Embedder
	logger   *slog.Logger
}

// NewService creates a pgvector-backed retriever.
func NewService(pool *pgxpool.Pool, tables *postgres.TableNames, embedder Embedder, logger *slog.Logger) *Service {
	return &Service{
		pool:     pool,
		tables:   tables,
		embedder: embedder,
		logger:   logger,
	}
}

// Retrieve embeds the query and returns the closest published chunks for
// the course, best first. Chunks below the score threshold are dropped.
func (s *Service) Retrieve(ctx context.Context, query string, opts chatSvc.RetrieveOptions) ([]chatSvc.RetrievedChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("embedder returned empty vector")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 4
	}

	// Cosine distance: score = 1 - (embedding <=> query).
	sql := fmt.Sprintf(`
		SELECT content, unit_title, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE course = $2 AND unit_title = ANY($3)
		ORDER BY embedding <=> $1
		LIMIT $4
	`, s.tables.CourseChunks)

	embedding := pgvector.NewVector(vector)
	rows, err := s.pool.Query(ctx, sql, embedding, opts.Course, opts.PublishedUnits, limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var chunks []chatSvc.RetrievedChunk
	for rows.Next() {
		var chunk chatSvc.RetrievedChunk
		var unitTitle string
		if err := rows.Scan(&chunk.Content, &unitTitle, &chunk.Score); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if chunk.Score < opts.ScoreThreshold {
			continue
		}
		chunk.Metadata = map[string]string{"unit_title": unitTitle}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.logger.Debug("retrieval complete",
		"course", opts.Course,
		"chunks", len(chunks),
		"limit", limit,
	)
	return chunks, nil
}
