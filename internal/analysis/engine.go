package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/conviai/convi/internal/conversation"
	"github.com/conviai/convi/internal/knowledge"
	"github.com/conviai/convi/internal/observe"
	"github.com/conviai/convi/pkg/provider/llm"
)

const (
	// defaultTopK is the number of knowledge chunks retrieved per analysis
	// when no explicit value is configured.
	defaultTopK = 5

	// completionTemperature keeps the model close to deterministic; analysis
	// findings should not vary run to run.
	completionTemperature = 0.2
)

// ErrNoTurns is returned by Analyze when the conversation contains no turns.
var ErrNoTurns = errors.New("analysis: no turns to analyze")

// ErrBadResponse wraps failures to locate or decode the JSON object in the
// model's reply.
var ErrBadResponse = errors.New("analysis: malformed model response")

// Option is a functional option for Engine.
type Option func(*Engine)

// WithRetriever attaches a knowledge retriever. Without one, analysis runs
// on the dialogue alone.
func WithRetriever(r knowledge.Retriever) Option {
	return func(e *Engine) {
		e.retriever = r
	}
}

// WithTopK sets how many knowledge chunks are retrieved per analysis.
// Defaults to 5.
func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics attaches metric instruments for retrieval and analysis
// latency. Without it no metrics are recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine runs LLM conversation analysis. Safe for concurrent use.
type Engine struct {
	llm       llm.Provider
	retriever knowledge.Retriever
	topK      int
	logger    *slog.Logger
	metrics   *observe.Metrics
}

// New creates an Engine backed by the given LLM provider.
func New(provider llm.Provider, opts ...Option) *Engine {
	e := &Engine{
		llm:    provider,
		topK:   defaultTopK,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Analyze renders turns as a dialogue, retrieves domain knowledge keyed by
// the conversation text, and asks the model for structured findings.
//
// Returns [ErrNoTurns] for an empty conversation and [ErrBadResponse] when
// the model reply carries no decodable JSON object. Retrieval failures are
// logged and degrade to an analysis without reference material rather than
// failing the call.
func (e *Engine) Analyze(ctx context.Context, turns []conversation.ConversationTurn, domain string) (*Result, error) {
	if len(turns) == 0 {
		return nil, ErrNoTurns
	}

	dialogue := conversation.RenderDialogue(turns)
	contextChunks := e.retrieve(ctx, turns, domain)

	start := time.Now()
	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(domain),
		Messages: []llm.Message{
			{Role: "user", Content: buildUserPrompt(dialogue, contextChunks)},
		},
		Temperature:  completionTemperature,
		JSONResponse: true,
	})
	if e.metrics != nil {
		e.metrics.AnalysisDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordProviderError(ctx, e.llm.ModelID(), "llm")
		}
		return nil, fmt.Errorf("analysis: completion: %w", err)
	}

	result, err := parseResult(resp.Content)
	if err != nil {
		return nil, err
	}
	e.validate(result)

	e.logger.Info("analysis complete",
		"domain", domain,
		"turns", len(turns),
		"context_chunks", len(contextChunks),
		"risk_score", result.RiskScore,
		"escalation", result.EscalationLevel,
		"model", e.llm.ModelID(),
		"tokens", resp.Usage.TotalTokens,
	)
	return result, nil
}

// retrieve fetches knowledge chunks for the conversation. Failures degrade to
// an empty context.
func (e *Engine) retrieve(ctx context.Context, turns []conversation.ConversationTurn, domain string) []knowledge.Result {
	if e.retriever == nil {
		return nil
	}

	query := knowledge.BuildQuery(turns)
	if query == "" {
		return nil
	}

	start := time.Now()
	results, err := e.retriever.Retrieve(ctx, domain, query, e.topK)
	if e.metrics != nil {
		e.metrics.RetrievalDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("domain", domain)))
	}
	if err != nil {
		e.logger.Warn("knowledge retrieval failed; analyzing without reference material",
			"domain", domain,
			"error", err,
		)
		return nil
	}
	return results
}

// parseResult extracts and decodes the JSON object in content. Models
// sometimes wrap JSON in markdown fences or prose despite instructions, so
// the parser scans for the outermost object instead of decoding verbatim.
func parseResult(content string) (*Result, error) {
	raw := extractJSON(content)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object found", ErrBadResponse)
	}

	var r Result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return &r, nil
}

// extractJSON returns the first balanced top-level JSON object in s, or ""
// when none exists. Brace counting ignores braces inside string literals.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// validate clamps numeric ranges and defaults invalid enum values in place.
// The model occasionally returns out-of-range scores; silently clamping with
// a warning beats failing the whole analysis.
func (e *Engine) validate(r *Result) {
	if r.RiskScore < 0 || r.RiskScore > 1 {
		e.logger.Warn("risk_score out of range; clamping", "value", r.RiskScore)
		r.RiskScore = min(max(r.RiskScore, 0), 1)
	}
	if r.PerformanceScore < 0 || r.PerformanceScore > 10 {
		e.logger.Warn("performance_score out of range; clamping", "value", r.PerformanceScore)
		r.PerformanceScore = min(max(r.PerformanceScore, 0), 10)
	}
	if !r.EscalationLevel.IsValid() {
		e.logger.Warn("unknown escalation_level; defaulting to none", "value", r.EscalationLevel)
		r.EscalationLevel = EscalationNone
	}
	if r.ComplianceFlags == nil {
		r.ComplianceFlags = []string{}
	}
	if r.FraudIndicators == nil {
		r.FraudIndicators = []string{}
	}
}
