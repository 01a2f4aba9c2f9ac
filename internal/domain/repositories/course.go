package repositories

import (
	"context"

	chatModels "preceptor/internal/domain/models/chat"
)

// CourseRepository exposes the slice of course data the chat core reads.
// Every call is a network round-trip that may fail; call sites treat these
// as optional enrichment and substitute defaults on error.
type CourseRepository interface {
	// GetCourseByName resolves a course by its display name.
	GetCourseByName(ctx context.Context, name string) (*chatModels.Course, error)

	// ListLearningObjectives returns the objectives for a course, in the
	// order instructors defined them.
	ListLearningObjectives(ctx context.Context, courseID string) ([]chatModels.LearningObjective, error)

	// GetBaseSystemPrompt returns the instructor-configured tutoring policy,
	// or empty string when none is set.
	GetBaseSystemPrompt(ctx context.Context, courseID string) (string, error)

	// GetSelectedGreeting returns the instructor-selected greeting override,
	// or empty string when none is set.
	GetSelectedGreeting(ctx context.Context, courseID string) (string, error)

	// ListPublishedUnitTitles returns the titles of content units currently
	// visible to students. Retrieval is restricted to these; when the list
	// is empty, retrieval is skipped entirely.
	ListPublishedUnitTitles(ctx context.Context, courseID string) ([]string, error)
}
