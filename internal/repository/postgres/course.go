package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"preceptor/internal/domain"
	chatModels "preceptor/internal/domain/models/chat"
	"preceptor/internal/domain/repositories"
)

// PostgresCourseRepository implements the CourseRepository interface using PostgreSQL
type PostgresCourseRepository struct {
	db     repositories.DBTX
	tables *TableNames
	logger *slog.Logger
}

// NewCourseRepository creates a new PostgresCourseRepository
func NewCourseRepository(config *RepositoryConfig) repositories.CourseRepository {
	return &PostgresCourseRepository{
		db:     config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// GetCourseByName resolves a course by its display name
func (r *PostgresCourseRepository) GetCourseByName(ctx context.Context, name string) (*chatModels.Course, error) {
	query := fmt.Sprintf(`
		SELECT id, name
		FROM %s
		WHERE name = $1
	`, r.tables.Courses)

	var course chatModels.Course
	err := r.db.QueryRow(ctx, query, name).Scan(&course.ID, &course.Name)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("course %q: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get course by name: %w", err)
	}

	return &course, nil
}

// ListLearningObjectives returns a course's objectives in instructor order
func (r *PostgresCourseRepository) ListLearningObjectives(ctx context.Context, courseID string) ([]chatModels.LearningObjective, error) {
	query := fmt.Sprintf(`
		SELECT course_id, text
		FROM %s
		WHERE course_id = $1
		ORDER BY position
	`, r.tables.Objectives)

	rows, err := r.db.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("list learning objectives: %w", err)
	}
	defer rows.Close()

	var objectives []chatModels.LearningObjective
	for rows.Next() {
		var obj chatModels.LearningObjective
		if err := rows.Scan(&obj.CourseID, &obj.Text); err != nil {
			return nil, fmt.Errorf("scan learning objective: %w", err)
		}
		objectives = append(objectives, obj)
	}

	return objectives, rows.Err()
}

// GetBaseSystemPrompt returns the instructor-configured tutoring policy,
// empty string when none is set
func (r *PostgresCourseRepository) GetBaseSystemPrompt(ctx context.Context, courseID string) (string, error) {
	return r.courseText(ctx, courseID, "base_system_prompt")
}

// GetSelectedGreeting returns the instructor-selected greeting override,
// empty string when none is set
func (r *PostgresCourseRepository) GetSelectedGreeting(ctx context.Context, courseID string) (string, error) {
	return r.courseText(ctx, courseID, "selected_greeting")
}

// courseText reads one nullable text column off the course row. The column
// name comes from a fixed call-site constant, never user input.
func (r *PostgresCourseRepository) courseText(ctx context.Context, courseID, column string) (string, error) {
	query := fmt.Sprintf(`
		SELECT COALESCE(%s, '')
		FROM %s
		WHERE id = $1
	`, column, r.tables.Courses)

	var value string
	err := r.db.QueryRow(ctx, query, courseID).Scan(&value)
	if err != nil {
		if IsPgNoRowsError(err) {
			return "", fmt.Errorf("course %s: %w", courseID, domain.ErrNotFound)
		}
		return "", fmt.Errorf("get course %s: %w", column, err)
	}

	return value, nil
}

// ListPublishedUnitTitles returns the titles of content units visible to
// students, in course order
func (r *PostgresCourseRepository) ListPublishedUnitTitles(ctx context.Context, courseID string) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT title
		FROM %s
		WHERE course_id = $1 AND published
		ORDER BY position
	`, r.tables.ContentUnits)

	rows, err := r.db.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("list published units: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan unit title: %w", err)
		}
		titles = append(titles, title)
	}

	return titles, rows.Err()
}
