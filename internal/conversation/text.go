package conversation

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/conviai/convi/internal/observe"
)

// DefaultLanguage is assumed for text transcripts when the caller does not
// declare a language code.
const DefaultLanguage = "en"

// lineRule classifies a transcript line by its speaker-label prefix. Rules
// are evaluated in priority order with first-match-wins semantics; adding a
// new labeling convention means appending a rule, not touching the others.
type lineRule struct {
	pattern *regexp.Regexp

	// classify maps the regexp submatches to a speaker identifier and role.
	classify func(match []string) (speakerID string, role Role)
}

// Label conventions recognised by the text path. Matching is
// case-insensitive and tolerant of a ":" or "-" separator after the label.
var lineRules = []lineRule{
	// Explicit agent-side labels, including common call-center abbreviations.
	{
		pattern: regexp.MustCompile(`(?i)^(agent|support|csr|representative)\s*[:\-]\s*`),
		classify: func([]string) (string, Role) {
			return SpeakerAgent, RoleAgent
		},
	},
	// Explicit customer-side labels.
	{
		pattern: regexp.MustCompile(`(?i)^(customer|client|user|caller)\s*[:\-]\s*`),
		classify: func([]string) (string, Role) {
			return SpeakerCustomer, RoleCustomer
		},
	},
	// Diarized speaker labels (SPEAKER_00, speaker_1, ...). The role derives
	// from the numeric index on the label itself, not from order of
	// appearance: index 0 is the agent, every other index the customer. The
	// speaker identifier is the uppercased label, preserved for downstream
	// attribution.
	{
		pattern: regexp.MustCompile(`(?i)^(speaker_(\d+))\s*[:\-]\s*`),
		classify: func(match []string) (string, Role) {
			idx, err := strconv.Atoi(match[2])
			if err != nil || idx != 0 {
				return strings.ToUpper(match[1]), RoleCustomer
			}
			return strings.ToUpper(match[1]), RoleAgent
		},
	},
}

// FromText parses a raw multi-line transcript into the unified turn
// sequence. language defaults to [DefaultLanguage] when empty and is applied
// uniformly to every turn.
//
// Each non-blank line is classified against the ordered label rules; a line
// with no recognised label falls back to alternation by its zero-based index
// among the non-blank lines (even → agent, odd → customer). The alternation
// fallback is a deliberate approximation for transcripts without any
// labeling convention — it performs no content-based speaker change
// detection and callers should not expect it to be accurate on free-form
// text.
//
// Lines whose text is empty after label stripping are discarded entirely.
// An all-blank transcript yields an empty (non-nil) slice, which is not an
// error.
func (n *Normalizer) FromText(ctx context.Context, transcript, language string) []ConversationTurn {
	if language == "" {
		language = DefaultLanguage
	}
	start := time.Now()

	// Split on both LF and CR so that CR-only and CRLF transcripts break into
	// lines the same way LF ones do. FieldsFunc drops the empty strings a
	// CRLF pair would otherwise produce.
	var lines []string
	for _, raw := range strings.FieldsFunc(transcript, func(r rune) bool {
		return r == '\n' || r == '\r'
	}) {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	fallbackLines := 0
	turns := make([]ConversationTurn, 0, len(lines))
	for i, line := range lines {
		speakerID, role, text, fallback := classifyLine(line, i)
		if text == "" {
			continue
		}
		if fallback {
			fallbackLines++
		}

		turns = append(turns, ConversationTurn{
			SpeakerID:        speakerID,
			Role:             role,
			OriginalText:     text,
			NormalizedTextEN: n.normalize(ctx, text, language),
			Language:         language,
		})
	}

	if n.metrics != nil {
		path := metric.WithAttributes(observe.Attr("path", "text"))
		n.metrics.NormalizeDuration.Record(ctx, time.Since(start).Seconds(), path)
		n.metrics.TurnsNormalized.Add(ctx, int64(len(turns)), path)
		if fallbackLines > 0 {
			n.metrics.FallbackLines.Add(ctx, int64(fallbackLines))
		}
	}
	n.logger.Info("normalized text path",
		"turns", len(turns),
		"fallback_lines", fallbackLines,
		"language", language,
	)
	return turns
}

// classifyLine resolves one non-blank transcript line to a speaker, role,
// and stripped text. index is the line's position among the non-blank lines
// and drives the alternation fallback; fallback reports whether that
// heuristic (rather than an explicit label) decided the speaker.
func classifyLine(line string, index int) (speakerID string, role Role, text string, fallback bool) {
	for _, rule := range lineRules {
		match := rule.pattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		speakerID, role = rule.classify(match)
		text = strings.TrimSpace(line[len(match[0]):])
		return speakerID, role, text, false
	}

	// No recognised label: alternate by line position, agent first.
	if index%2 == 0 {
		return SpeakerAgent, RoleAgent, line, true
	}
	return SpeakerCustomer, RoleCustomer, line, true
}
