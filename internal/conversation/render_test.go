package conversation

import (
	"strings"
	"testing"
)

func TestRenderDialogue_Empty(t *testing.T) {
	t.Parallel()

	if got := RenderDialogue(nil); got != "" {
		t.Errorf("RenderDialogue(nil) = %q, want empty", got)
	}
	if got := RenderDialogue([]ConversationTurn{}); got != "" {
		t.Errorf("RenderDialogue([]) = %q, want empty", got)
	}
}

func TestRenderDialogue_Format(t *testing.T) {
	t.Parallel()

	turns := []ConversationTurn{
		{Role: RoleAgent, NormalizedTextEN: "How can I help?"},
		{Role: RoleCustomer, Emotion: "angry", NormalizedTextEN: "My card was blocked!"},
		{Role: RoleUnknown, NormalizedTextEN: "inaudible crosstalk"},
	}

	got := RenderDialogue(turns)
	want := "Agent: How can I help?\n" +
		"Customer [angry]: My card was blocked!\n" +
		"Unknown: inaudible crosstalk"

	if got != want {
		t.Errorf("RenderDialogue =\n%q\nwant\n%q", got, want)
	}
}

func TestRenderDialogue_NoTrailingNewline(t *testing.T) {
	t.Parallel()

	got := RenderDialogue([]ConversationTurn{{Role: RoleAgent, NormalizedTextEN: "bye"}})
	if strings.HasSuffix(got, "\n") {
		t.Errorf("rendered dialogue ends with newline: %q", got)
	}
}

func TestRenderDialogue_EmotionOnlyWhenPresent(t *testing.T) {
	t.Parallel()

	got := RenderDialogue([]ConversationTurn{{Role: RoleAgent, NormalizedTextEN: "hello"}})
	if strings.Contains(got, "[") {
		t.Errorf("unexpected emotion annotation in %q", got)
	}
}
