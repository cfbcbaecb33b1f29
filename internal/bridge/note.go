package bridge

import "strings"

// AppendNoteText computes the append-only note merge shared by every
// directory backend: an empty addition is a no-op, otherwise "• text" joins
// the existing note on a new line. Existing text is never rewritten.
func AppendNoteText(existing, addition string) string {
	addition = strings.TrimSpace(addition)
	if addition == "" {
		return existing
	}
	line := "• " + addition
	if existing == "" {
		return line
	}
	return existing + "\n" + line
}
