package conversation

import (
	"fmt"
	"strings"
)

// RenderDialogue serializes turns into a single human- and LLM-readable
// dialogue string, one line per turn:
//
//	Agent: Thank you for calling.
//	Customer [angry]: There is an unauthorized transaction.
//
// The emotion annotation appears only when the turn carries one. Lines are
// joined with a single newline and no trailing newline is appended; empty
// input yields the empty string.
//
// The function is pure and is the single formatting boundary between the
// unified turn model and downstream prompt construction.
func RenderDialogue(turns []ConversationTurn) string {
	if len(turns) == 0 {
		return ""
	}

	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		emotion := ""
		if t.Emotion != "" {
			emotion = fmt.Sprintf(" [%s]", t.Emotion)
		}
		lines = append(lines, fmt.Sprintf("%s%s: %s", t.Role.Label(), emotion, t.NormalizedTextEN))
	}
	return strings.Join(lines, "\n")
}
