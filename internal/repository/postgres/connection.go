package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Courses        string
	Objectives     string
	ContentUnits   string
	Chats          string
	ChatMessages   string
	StruggleTopics string
	CourseChunks   string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Courses:        fmt.Sprintf("%scourses", prefix),
		Objectives:     fmt.Sprintf("%slearning_objectives", prefix),
		ContentUnits:   fmt.Sprintf("%scontent_units", prefix),
		Chats:          fmt.Sprintf("%schats", prefix),
		ChatMessages:   fmt.Sprintf("%schat_messages", prefix),
		StruggleTopics: fmt.Sprintf("%sstruggle_topics", prefix),
		CourseChunks:   fmt.Sprintf("%scourse_chunks", prefix),
	}
}

// CreateConnectionPool creates a new pgx connection pool.
//
// When the connection points at a transaction pooler (port 6543), prepared
// statements break with "prepared statement already exists". Cache-describe
// mode keeps the extended protocol (needed for array and JSONB encoding)
// without creating server-side prepared statements. An explicit
// default_query_exec_mode in the connection string takes precedence.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	// Configure pool size
	config.MaxConns = 25
	config.MinConns = 5

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for transaction pooler", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
