package config

// Chat protocol limits. These are observable behavior, not tuning knobs;
// changing them changes what clients see.
const (
	// MaxChatTurns is the hard per-chat cap on conversation turns. An
	// exchange against a chat at or past the cap is rejected outright.
	MaxChatTurns = 50

	// TitleWordCount is how many cleaned words of the first assistant
	// reply become the chat title.
	TitleWordCount = 10

	// MemoryMinTurns gates memory-agent analysis: the conversation must
	// have accumulated more than this many turns before the first pass.
	// The very first exchange is low-signal and skipped.
	MemoryMinTurns = 6

	// MemoryWindowTurns is how many trailing turns of pre-commit history
	// one analysis pass inspects.
	MemoryWindowTurns = 3

	// DefaultSessionTTLMinutes is the default inactivity deadline.
	DefaultSessionTTLMinutes = 30
)

// Retrieval defaults.
const (
	RetrievalLimit          = 4
	RetrievalScoreThreshold = 0.35
)

// MaxChatTitleLength bounds persisted chat titles.
const MaxChatTitleLength = 120

// MaxMessageLength bounds one inbound user message.
const MaxMessageLength = 8000
