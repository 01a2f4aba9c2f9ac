package chat

import (
	chatModels "preceptor/internal/domain/models/chat"
)

// Conversation is the authoritative ordered turn list for one chat. It is
// owned exclusively by that chat's session registry entry and mutated only
// by appending; turns are never reordered or truncated while active.
type Conversation struct {
	turns []chatModels.Turn
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append adds one turn at the end.
func (c *Conversation) Append(role chatModels.Role, text string) {
	c.turns = append(c.turns, chatModels.Turn{Role: role, Text: text})
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	return len(c.turns)
}

// Turns returns a copy of the turn list. Callers never get a view into the
// backing slice.
func (c *Conversation) Turns() []chatModels.Turn {
	out := make([]chatModels.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Fork returns a transient copy of the turns plus one synthetic user turn
// carrying retrieval context. The fork exists for a single generation call;
// the canonical conversation never observes the synthetic turn.
func (c *Conversation) Fork(synthetic chatModels.Turn) []chatModels.Turn {
	forked := make([]chatModels.Turn, len(c.turns), len(c.turns)+1)
	copy(forked, c.turns)
	return append(forked, synthetic)
}
