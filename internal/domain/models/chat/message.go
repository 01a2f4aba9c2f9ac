package chat

// Sender identifies who produced a ChatMessage as shown in the transcript.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Role tags a turn inside a conversation as sent to the generation provider.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one transcript entry. The ID is derived from content, chat
// and timestamp at creation time and never recomputed afterwards.
type ChatMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	UserID    string `json:"user_id"`
	Course    string `json:"course"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"` // epoch milliseconds
}

// Turn is one role-tagged entry in a conversation store. Turns are what the
// generation provider sees; ChatMessages are what the UI replays.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// TranscriptRole maps a transcript sender to a conversation role.
func TranscriptRole(sender string) Role {
	if sender == SenderBot {
		return RoleAssistant
	}
	return RoleUser
}
