package chat

import (
	"fmt"
	"strings"

	"preceptor/internal/config"
	chatModels "preceptor/internal/domain/models/chat"
)

// analysisWindow selects the turns one memory-agent pass inspects, given
// the conversation as it stands after the assistant commit.
//
// The window is the last MemoryWindowTurns turns of the pre-commit history:
// the previous round-trip plus the student's follow-up, excluding the reply
// that was just committed. The one-exchange lag is deliberate - a topic is
// only analyzed once the student has had a chance to respond to it.
func analysisWindow(turns []chatModels.Turn) ([]chatModels.Turn, bool) {
	if len(turns) <= config.MemoryMinTurns {
		return nil, false
	}

	// Drop the just-committed assistant turn, then take the trailing window.
	preCommit := turns[:len(turns)-1]
	if len(preCommit) < config.MemoryWindowTurns {
		return nil, false
	}
	return preCommit[len(preCommit)-config.MemoryWindowTurns:], true
}

// formatExchange renders a window as the plain-text form the memory agent
// consumes, with any retrieval-context payload stripped from user turns so
// retrieved documents cannot skew struggle-topic inference.
func formatExchange(window []chatModels.Turn) string {
	var b strings.Builder
	for _, turn := range window {
		var label string
		switch turn.Role {
		case chatModels.RoleAssistant:
			label = "Tutor"
		case chatModels.RoleUser:
			label = "Student"
		default:
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", label, stripRetrievalContext(turn.Text))
	}
	return strings.TrimSpace(b.String())
}
