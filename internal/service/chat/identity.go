package chat

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// MessageID derives a message identifier from the message text, the owning
// chat and the creation instant. Deterministic for identical inputs; the
// varying timestamp and content make collisions impractical.
func MessageID(text, chatID string, at int64) string {
	return derive(text, chatID, at)
}

// ChatID derives a chat identifier from (user, course, timestamp). The same
// inputs always yield the same id, which is what makes duplicate client
// initialization calls converge on one session.
func ChatID(userID, course string, at int64) string {
	return derive(userID, course, at)
}

// derive hashes the inputs with an unambiguous separator so that
// ("ab","c") and ("a","bc") produce different ids.
func derive(a, b string, at int64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s\x00%s\x00%d", a, b, at))
	return hex.EncodeToString(sum[:16])
}
