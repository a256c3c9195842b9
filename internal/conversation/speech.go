package conversation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/conviai/convi/internal/observe"
)

// FromSpeech converts time-ordered speech segments into the unified turn
// sequence. The output has exactly one turn per segment, in input order;
// an empty input yields an empty (non-nil) slice and is not an error — a
// silent or failed recording legitimately produces zero turns.
//
// Roles are assigned per conversation from first-occurrence order of the
// segments' speaker identifiers (see [AssignRoles]). A speaker identifier
// missing from the assignment table resolves to [RoleUnknown]; this cannot
// happen with the table built here but is handled defensively.
//
// Emotion, language, and time bounds are copied through unmodified. The
// summary log event at the end is advisory only.
func (n *Normalizer) FromSpeech(ctx context.Context, segments []SpeechSegment) []ConversationTurn {
	if len(segments) == 0 {
		n.logger.Warn("normalizer: no speech segments to normalize")
		return []ConversationTurn{}
	}
	began := time.Now()

	ids := make([]string, len(segments))
	for i, seg := range segments {
		ids[i] = seg.SpeakerID
	}
	roles := AssignRoles(ids)

	turns := make([]ConversationTurn, 0, len(segments))
	for _, seg := range segments {
		role, ok := roles[seg.SpeakerID]
		if !ok {
			role = RoleUnknown
		}

		start, end := seg.StartTime, seg.EndTime
		turns = append(turns, ConversationTurn{
			SpeakerID:        seg.SpeakerID,
			Role:             role,
			OriginalText:     seg.OriginalText,
			NormalizedTextEN: n.normalize(ctx, seg.OriginalText, seg.Language),
			Language:         seg.Language,
			Emotion:          seg.Emotion,
			StartTime:        &start,
			EndTime:          &end,
		})
	}

	if n.metrics != nil {
		path := metric.WithAttributes(observe.Attr("path", "speech"))
		n.metrics.NormalizeDuration.Record(ctx, time.Since(began).Seconds(), path)
		n.metrics.TurnsNormalized.Add(ctx, int64(len(turns)), path)
	}
	n.logger.Info("normalized speech path",
		"turns", len(turns),
		"speakers", len(roles),
		"roles", roleSet(roles),
	)
	return turns
}

// normalize runs text through the configured translator, falling back to the
// original text on failure so the NormalizedTextEN invariant holds.
func (n *Normalizer) normalize(ctx context.Context, text, language string) string {
	out, err := n.translator.TranslateToEnglish(ctx, text, language)
	if err != nil || out == "" {
		if err != nil {
			n.logger.Warn("translation failed, keeping original text", "language", language, "err", err)
		}
		return text
	}
	return out
}

// roleSet returns the distinct roles present in the assignment table, for
// the advisory summary event.
func roleSet(roles map[string]Role) []string {
	seen := make(map[Role]bool, 2)
	var out []string
	for _, r := range roles {
		if !seen[r] {
			seen[r] = true
			out = append(out, string(r))
		}
	}
	return out
}
