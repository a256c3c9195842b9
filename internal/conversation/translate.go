package conversation

import "context"

// Translator normalizes utterance text to English. It is the extension point
// for a future machine-translation stage; the normalizer itself performs no
// translation.
//
// Implementations must be safe for concurrent use.
type Translator interface {
	// TranslateToEnglish returns the English rendering of text, which is in
	// the given language. Implementations should return text unchanged when
	// language is already English.
	TranslateToEnglish(ctx context.Context, text, language string) (string, error)
}

// NoopTranslator passes text through unchanged. It is the default for every
// [Normalizer], which guarantees NormalizedTextEN == OriginalText until a
// real translator is configured.
type NoopTranslator struct{}

// TranslateToEnglish implements [Translator] by returning text verbatim.
func (NoopTranslator) TranslateToEnglish(_ context.Context, text, _ string) (string, error) {
	return text, nil
}
