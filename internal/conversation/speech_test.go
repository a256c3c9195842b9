package conversation

import (
	"context"
	"errors"
	"testing"
)

func seg(speaker, text string, start, end float64) SpeechSegment {
	return SpeechSegment{
		SpeakerID:    speaker,
		OriginalText: text,
		Language:     "en",
		StartTime:    start,
		EndTime:      end,
	}
}

func TestFromSpeech_Empty(t *testing.T) {
	t.Parallel()

	turns := New().FromSpeech(context.Background(), nil)
	if turns == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(turns) != 0 {
		t.Errorf("len(turns) = %d, want 0", len(turns))
	}
}

func TestFromSpeech_OneToOneAndOrderPreserving(t *testing.T) {
	t.Parallel()

	segments := []SpeechSegment{
		seg("SPEAKER_01", "hello, how can I help", 0.0, 2.1),
		seg("SPEAKER_00", "my card was charged twice", 2.4, 5.0),
		seg("SPEAKER_01", "let me check that for you", 5.2, 7.9),
	}

	turns := New().FromSpeech(context.Background(), segments)

	if len(turns) != len(segments) {
		t.Fatalf("len(turns) = %d, want %d", len(turns), len(segments))
	}
	for i, turn := range turns {
		if turn.OriginalText != segments[i].OriginalText {
			t.Errorf("turn[%d] text = %q, want %q", i, turn.OriginalText, segments[i].OriginalText)
		}
		if turn.SpeakerID != segments[i].SpeakerID {
			t.Errorf("turn[%d] speaker = %q, want %q", i, turn.SpeakerID, segments[i].SpeakerID)
		}
	}
}

func TestFromSpeech_FirstSeenSpeakerIsAgent(t *testing.T) {
	t.Parallel()

	// SPEAKER_01 speaks first, so it is the agent regardless of its index.
	segments := []SpeechSegment{
		seg("SPEAKER_01", "thank you for calling", 0, 1),
		seg("SPEAKER_00", "I have a problem", 1, 2),
		seg("SPEAKER_01", "I can help with that", 2, 3),
	}

	turns := New().FromSpeech(context.Background(), segments)

	want := []Role{RoleAgent, RoleCustomer, RoleAgent}
	for i, turn := range turns {
		if turn.Role != want[i] {
			t.Errorf("turn[%d] role = %q, want %q", i, turn.Role, want[i])
		}
	}
}

func TestFromSpeech_CopiesMetadataThrough(t *testing.T) {
	t.Parallel()

	segments := []SpeechSegment{
		{
			SpeakerID:    "SPEAKER_00",
			OriginalText: "bahut gussa hoon",
			Language:     "hi",
			Emotion:      "angry",
			StartTime:    1.5,
			EndTime:      3.25,
		},
	}

	turns := New().FromSpeech(context.Background(), segments)
	if len(turns) != 1 {
		t.Fatalf("len(turns) = %d, want 1", len(turns))
	}

	turn := turns[0]
	if turn.Language != "hi" {
		t.Errorf("language = %q, want %q", turn.Language, "hi")
	}
	if turn.Emotion != "angry" {
		t.Errorf("emotion = %q, want %q", turn.Emotion, "angry")
	}
	if turn.StartTime == nil || *turn.StartTime != 1.5 {
		t.Errorf("start time = %v, want 1.5", turn.StartTime)
	}
	if turn.EndTime == nil || *turn.EndTime != 3.25 {
		t.Errorf("end time = %v, want 3.25", turn.EndTime)
	}
	// Translation is deferred: normalized text equals the original even for
	// non-English segments.
	if turn.NormalizedTextEN != turn.OriginalText {
		t.Errorf("normalized = %q, want %q", turn.NormalizedTextEN, turn.OriginalText)
	}
}

// upperTranslator is a stand-in for a real translation stage.
type upperTranslator struct{}

func (upperTranslator) TranslateToEnglish(_ context.Context, text, language string) (string, error) {
	if language == "en" {
		return text, nil
	}
	return "translated:" + text, nil
}

// failingTranslator always errors.
type failingTranslator struct{}

func (failingTranslator) TranslateToEnglish(context.Context, string, string) (string, error) {
	return "", errors.New("translation backend down")
}

func TestFromSpeech_TranslatorExtensionPoint(t *testing.T) {
	t.Parallel()

	segments := []SpeechSegment{
		{SpeakerID: "A", OriginalText: "namaste", Language: "hi"},
		{SpeakerID: "B", OriginalText: "hello", Language: "en"},
	}

	turns := New(WithTranslator(upperTranslator{})).FromSpeech(context.Background(), segments)

	if got := turns[0].NormalizedTextEN; got != "translated:namaste" {
		t.Errorf("turn[0] normalized = %q, want translated text", got)
	}
	if got := turns[1].NormalizedTextEN; got != "hello" {
		t.Errorf("turn[1] normalized = %q, want pass-through", got)
	}
	if got := turns[0].OriginalText; got != "namaste" {
		t.Errorf("turn[0] original = %q, must stay untouched", got)
	}
}

func TestFromSpeech_TranslatorFailureFallsBackToOriginal(t *testing.T) {
	t.Parallel()

	segments := []SpeechSegment{{SpeakerID: "A", OriginalText: "hola", Language: "es"}}
	turns := New(WithTranslator(failingTranslator{})).FromSpeech(context.Background(), segments)

	if got := turns[0].NormalizedTextEN; got != "hola" {
		t.Errorf("normalized = %q, want original text on translator failure", got)
	}
}

func TestFromSpeech_UnknownSpeakerDefensive(t *testing.T) {
	t.Parallel()

	// AssignRoles covers every speaker in the input, so RoleUnknown should
	// never appear through the public path.
	turns := New().FromSpeech(context.Background(), []SpeechSegment{
		seg("A", "hi", 0, 1),
		seg("B", "hello", 1, 2),
		seg("C", "third party", 2, 3),
	})
	for i, turn := range turns {
		if turn.Role == RoleUnknown {
			t.Errorf("turn[%d] role = unknown, want assigned role", i)
		}
	}
}
