// Package conversation is the merge point between the audio and text ingest
// paths of ConvI. It reconciles the two upstream representations of a support
// call — diarized speech segments from the speech pipeline service, or a raw
// free-text transcript — into one chronologically ordered sequence of
// [ConversationTurn] values with consistent speaker-role labels.
//
// Downstream consumers (the retrieval engine and the LLM analysis engine)
// operate exclusively on the unified turn sequence and never need to know
// which path produced it.
//
// All normalization is deterministic and call-local: role assignment tables
// are computed fresh per call and never shared, so independent conversations
// may be normalized concurrently without coordination.
package conversation

// Role classifies the party that produced a turn in a support call.
// Roles have equality semantics only; there is no meaningful ordering.
type Role string

const (
	RoleAgent    Role = "agent"
	RoleCustomer Role = "customer"
	RoleUnknown  Role = "unknown"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAgent, RoleCustomer, RoleUnknown:
		return true
	}
	return false
}

// Label returns the human-readable capitalized form of the role, as used by
// [RenderDialogue]. Unrecognised roles render as "Unknown".
func (r Role) Label() string {
	switch r {
	case RoleAgent:
		return "Agent"
	case RoleCustomer:
		return "Customer"
	default:
		return "Unknown"
	}
}

// Synthetic speaker identifiers used by the text path when a line carries an
// explicit role label or no label at all. The audio path always preserves the
// diarized speaker identifier from the upstream pipeline.
const (
	SpeakerAgent    = "AGENT"
	SpeakerCustomer = "CUSTOMER"
)

// SpeechSegment is one diarized utterance produced by the external
// speech/diarization pipeline. Segments are immutable inputs: this package
// reads them and never modifies them.
//
// The JSON tags match the wire format of the speech pipeline service
// (see internal/speech).
type SpeechSegment struct {
	// SpeakerID is the diarized speaker label (e.g. "SPEAKER_00"). Opaque,
	// but stable within a single conversation.
	SpeakerID string `json:"speaker_id"`

	// OriginalText is the transcribed utterance, exactly as recognised.
	OriginalText string `json:"original_text"`

	// Language is the detected language code (e.g. "en", "hi").
	Language string `json:"language"`

	// Emotion is the detected emotion label, or "" when the pipeline did not
	// run emotion detection for this segment.
	Emotion string `json:"emotion,omitempty"`

	// StartTime and EndTime bound the utterance in seconds from the start of
	// the recording. StartTime <= EndTime is guaranteed by the producer.
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// ConversationTurn is one normalized utterance attributable to one party.
// It is the unifying output type of both ingest paths.
//
// Invariant: NormalizedTextEN is never empty when OriginalText is non-empty.
// Lines that become empty after label stripping are dropped by the text path
// rather than emitted as degenerate turns.
type ConversationTurn struct {
	// SpeakerID identifies the party. For the audio path this is the diarized
	// label; for the text path it is either a diarized label found inline or
	// one of the synthetic [SpeakerAgent]/[SpeakerCustomer] constants.
	SpeakerID string `json:"speaker_id"`

	// Role is the inferred support-call role of the speaker.
	Role Role `json:"role"`

	// OriginalText is the utterance as received, with only the speaker label
	// prefix removed. No content normalization is applied.
	OriginalText string `json:"original_text"`

	// NormalizedTextEN is the English-normalized text. With the default no-op
	// translator it is always identical to OriginalText; a real translator
	// plugged in via [WithTranslator] may differ for non-English turns.
	NormalizedTextEN string `json:"normalized_text_en"`

	// Language is the language code of OriginalText.
	Language string `json:"language"`

	// Emotion is the detected emotion label, or "" when absent. Always "" for
	// text-path turns since plain text carries no affect signal.
	Emotion string `json:"emotion,omitempty"`

	// StartTime and EndTime bound the utterance in seconds. Nil for text-path
	// turns, which have no timing information.
	StartTime *float64 `json:"start_time,omitempty"`
	EndTime   *float64 `json:"end_time,omitempty"`
}
