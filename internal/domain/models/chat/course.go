package chat

// Course is the slice of course metadata the chat core needs. The wider
// course-management schema (instructors, flags, calendars) lives outside
// this service.
type Course struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LearningObjective is one objective attached to a course, surfaced inside
// the tutoring system prompt.
type LearningObjective struct {
	CourseID string `json:"course_id"`
	Text     string `json:"text"`
}

// StoredChat is the durable form of a chat: identity, title and the ordered
// transcript. Restoration replays Messages in original order.
type StoredChat struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Course    string        `json:"course"`
	Title     string        `json:"title"`
	IsDeleted bool          `json:"is_deleted"`
	Messages  []ChatMessage `json:"messages"`
}
