package chat

import (
	"fmt"
	"strings"

	chatModels "preceptor/internal/domain/models/chat"
	chatSvc "preceptor/internal/domain/services/chat"
)

// defaultBasePrompt is the built-in tutoring policy used when the course has
// no instructor-configured prompt.
const defaultBasePrompt = "You are a patient tutor for this course. Guide the " +
	"student toward understanding instead of handing over final answers. Ask a " +
	"short follow-up question when the student seems unsure, and keep replies " +
	"focused on the course material."

// defaultGreeting opens a chat when no instructor-selected greeting exists.
const defaultGreeting = "Hi! I'm your course tutor. What would you like to work on today?"

// Retrieval-context delimiters. The synthetic user turn wraps retrieved
// course material between these markers; stripRetrievalContext relies on
// them when preparing text for memory analysis.
const (
	contextOpen  = "[COURSE CONTEXT]"
	contextClose = "[/COURSE CONTEXT]"
)

// noContextFallback is injected when retrieval returns nothing, so the
// generation step always receives an unambiguous signal either way.
const noContextFallback = "No relevant documents found for this question. Answer from the course's general material."

// ComposeSystemPrompt builds the system turn text: tutoring policy, course
// learning objectives, and struggle-topic hints. Each enrichment is optional
// and simply absent when unavailable.
func ComposeSystemPrompt(basePrompt string, objectives []string, topics []string) string {
	if basePrompt == "" {
		basePrompt = defaultBasePrompt
	}

	var b strings.Builder
	b.WriteString(basePrompt)

	if len(objectives) > 0 {
		b.WriteString("\n\nCourse learning objectives:\n")
		for _, obj := range objectives {
			fmt.Fprintf(&b, "- %s\n", obj)
		}
	}

	if len(topics) > 0 {
		b.WriteString("\nThis student has previously struggled with: ")
		b.WriteString(strings.Join(topics, ", "))
		b.WriteString(".")
	}

	return strings.TrimRight(b.String(), "\n")
}

// FormatRetrievalContext renders ranked chunks into the context block for
// the synthetic turn. Zero chunks produce an explicit fallback statement
// rather than an omitted block.
func FormatRetrievalContext(chunks []chatSvc.RetrievedChunk) string {
	var b strings.Builder
	b.WriteString(contextOpen)
	b.WriteString("\n")

	if len(chunks) == 0 {
		b.WriteString(noContextFallback)
	} else {
		b.WriteString("Relevant course material for the student's question:\n")
		for i, chunk := range chunks {
			fmt.Fprintf(&b, "\n[%d] (score %.2f)\n%s\n", i+1, chunk.Score, strings.TrimSpace(chunk.Content))
		}
	}

	b.WriteString("\n")
	b.WriteString(contextClose)
	return b.String()
}

// BuildSyntheticTurn assembles the ephemeral user turn appended to a fork:
// formatted retrieval context plus the struggle-topic directive block. The
// directive flag is explicit in both directions so the model never guesses.
func BuildSyntheticTurn(contextBlock string, topics []string) chatModels.Turn {
	var b strings.Builder
	b.WriteString(contextBlock)
	b.WriteString("\n\n")

	if len(topics) > 0 {
		b.WriteString("Known struggle topics for this student: ")
		b.WriteString(strings.Join(topics, ", "))
		b.WriteString(".\nIf one of these topics is relevant, you may briefly surface it at the end of your reply.")
	} else {
		b.WriteString("No known struggle topics. Do not volunteer struggle-topic hints in this reply.")
	}

	b.WriteString("\nAnswer the student's last message above using this context where it helps.")

	return chatModels.Turn{Role: chatModels.RoleUser, Text: b.String()}
}

// stripRetrievalContext removes any context block from a turn's text so
// retrieved document content never contaminates struggle-topic inference.
func stripRetrievalContext(text string) string {
	for {
		start := strings.Index(text, contextOpen)
		if start < 0 {
			return strings.TrimSpace(text)
		}
		end := strings.Index(text[start:], contextClose)
		if end < 0 {
			return strings.TrimSpace(text[:start])
		}
		text = text[:start] + text[start+end+len(contextClose):]
	}
}
