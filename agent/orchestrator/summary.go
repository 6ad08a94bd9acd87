package orchestrator

// CRM note shape: fixed prefix, bounded excerpt of the user's message, fixed
// acknowledgment. Derived from the user input only, never from the generated
// reply, so the note stays stable across model changes and fallbacks.
const (
	notesPrefix     = "User: "
	notesSuffix     = "... Agent responded with assistance."
	notesMaxLen     = 600
	inputExcerptLen = 200
	truncationMark  = "..."
)

// Summarize derives the CRM note for a turn. Deterministic, always starts
// with the fixed prefix, never exceeds 600 characters.
func Summarize(userInput string) string {
	return truncate(notesPrefix+excerpt(userInput, inputExcerptLen)+notesSuffix, notesMaxLen)
}

func excerpt(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-len(truncationMark)]) + truncationMark
}
