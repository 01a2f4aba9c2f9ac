package chat

import "context"

// Retriever is the retrieval collaborator: given a query and course scope it
// returns ranked text chunks. The core treats it as a capability with a
// failure mode, never a hard dependency.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]RetrievedChunk, error)
}

// RetrieveOptions scope and bound one retrieval call.
type RetrieveOptions struct {
	// Limit caps the number of returned chunks.
	Limit int

	// ScoreThreshold drops chunks below this similarity score.
	ScoreThreshold float64

	// Course restricts retrieval to one course's content.
	Course string

	// PublishedUnits restricts retrieval to content units visible to
	// students. An empty list means nothing is retrievable.
	PublishedUnits []string
}

// RetrievedChunk is one ranked piece of course content.
type RetrievedChunk struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Score    float64           `json:"score"`
}

// MemoryAgent is the memory collaborator: it maintains the list of concepts
// a student appears to struggle with. Both operations are best-effort.
type MemoryAgent interface {
	// StruggleTopics returns the current topic list for (user, course).
	StruggleTopics(ctx context.Context, userID, course string) ([]string, error)

	// Analyze inspects a formatted exchange and updates the topic list.
	// Fire-and-forget is acceptable; failures must never reach the user.
	Analyze(ctx context.Context, userID, course, exchangeText string) error
}
