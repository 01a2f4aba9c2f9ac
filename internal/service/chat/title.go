package chat

import (
	"strings"

	"preceptor/internal/config"
)

// placeholderTitle is what new chats are persisted with before the first
// assistant reply produces a real title.
const placeholderTitle = "New Chat"

// IsPlaceholderTitle reports whether a persisted title still needs the
// backfill pass. The guard is the title value itself, not a separate flag,
// which is what makes the backfill fire at most once per chat.
func IsPlaceholderTitle(title string) bool {
	title = strings.TrimSpace(title)
	return title == "" || title == placeholderTitle
}

// titleStripper drops markup and math-delimiter syntax before the title is
// cut from the reply text.
var titleStripper = strings.NewReplacer(
	"**", "", "__", "",
	"`", "", "#", "",
	"$$", "", "$", "",
	"\\(", "", "\\)", "",
	"\\[", "", "\\]", "",
	"*", "", "_", "",
)

// DeriveTitle builds a short chat title from the first words of an
// assistant reply. Returns empty string when nothing usable remains.
func DeriveTitle(reply string) string {
	cleaned := titleStripper.Replace(reply)
	words := strings.Fields(cleaned)
	if len(words) == 0 {
		return ""
	}

	if len(words) > config.TitleWordCount {
		words = words[:config.TitleWordCount]
	}

	title := strings.Join(words, " ")
	if len(title) > config.MaxChatTitleLength {
		title = title[:config.MaxChatTitleLength]
	}
	return strings.TrimSpace(title)
}
