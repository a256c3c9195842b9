package conversation

import (
	"log/slog"

	"github.com/conviai/convi/internal/observe"
)

// Normalizer converts either ingest path into the unified turn sequence.
// It is stateless across calls: the only configuration is the translator used
// for the English-normalization step, the logger used for advisory events,
// and the optional metric instruments.
//
// A Normalizer is safe for concurrent use.
type Normalizer struct {
	translator Translator
	logger     *slog.Logger
	metrics    *observe.Metrics
}

// Option is a functional option for configuring a [Normalizer].
type Option func(*Normalizer)

// WithTranslator replaces the default [NoopTranslator]. Translation failures
// are non-fatal: the affected turn falls back to its original text so that
// the NormalizedTextEN invariant holds.
func WithTranslator(t Translator) Option {
	return func(n *Normalizer) {
		if t != nil {
			n.translator = t
		}
	}
}

// WithLogger sets the logger used for the advisory normalization summary
// events. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithMetrics attaches metric instruments for normalization latency, turn
// counts, and fallback classification. Without it no metrics are recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(n *Normalizer) {
		n.metrics = m
	}
}

// New returns a [Normalizer] configured with the supplied options.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		translator: NoopTranslator{},
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}
