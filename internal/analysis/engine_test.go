package analysis_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/conviai/convi/internal/analysis"
	"github.com/conviai/convi/internal/conversation"
	"github.com/conviai/convi/internal/knowledge"
	"github.com/conviai/convi/pkg/provider/llm"
	"github.com/conviai/convi/pkg/provider/llm/mock"
)

const goodResponse = `{
	"conversation_summary": "Customer reported a stolen card and asked for a block.",
	"customer_intention": "Block a stolen debit card",
	"call_outcome": "Card blocked, replacement ordered",
	"risk_score": 0.4,
	"escalation_level": "low",
	"compliance_flags": [],
	"fraud_indicators": ["card reported stolen"],
	"performance_score": 8.5,
	"de_escalation_detected": true
}`

func sampleTurns() []conversation.ConversationTurn {
	return []conversation.ConversationTurn{
		{SpeakerID: "AGENT", Role: conversation.RoleAgent, OriginalText: "How can I help?", NormalizedTextEN: "How can I help?", Language: "en"},
		{SpeakerID: "CUSTOMER", Role: conversation.RoleCustomer, OriginalText: "My card was stolen.", NormalizedTextEN: "My card was stolen.", Language: "en"},
	}
}

func TestAnalyze_ParsesFindings(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: goodResponse},
	}
	e := analysis.New(p)

	result, err := e.Analyze(context.Background(), sampleTurns(), "financial_banking")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.CustomerIntention != "Block a stolen debit card" {
		t.Errorf("customer_intention = %q", result.CustomerIntention)
	}
	if result.RiskScore != 0.4 {
		t.Errorf("risk_score = %v, want 0.4", result.RiskScore)
	}
	if result.EscalationLevel != analysis.EscalationLow {
		t.Errorf("escalation_level = %q, want low", result.EscalationLevel)
	}
	if len(result.FraudIndicators) != 1 {
		t.Errorf("fraud_indicators = %v", result.FraudIndicators)
	}
	if !result.DeEscalationDetected {
		t.Error("de_escalation_detected should be true")
	}
}

func TestAnalyze_PromptContainsDialogueAndContext(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: goodResponse},
	}
	retriever := knowledge.NewLexical(knowledge.Chunk{
		ID:     "card-block",
		Domain: "financial_banking",
		Content: "Stolen cards must be blocked immediately after identity verification.",
	})
	e := analysis.New(p, analysis.WithRetriever(retriever))

	if _, err := e.Analyze(context.Background(), sampleTurns(), "financial_banking"); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(p.CompleteCalls) != 1 {
		t.Fatalf("Complete calls = %d, want 1", len(p.CompleteCalls))
	}
	req := p.CompleteCalls[0].Req
	if !req.JSONResponse {
		t.Error("expected JSONResponse to be requested")
	}
	if !strings.Contains(req.SystemPrompt, "financial banking") {
		t.Errorf("system prompt should name the domain, got: %q", req.SystemPrompt)
	}
	if len(req.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(req.Messages))
	}
	user := req.Messages[0].Content
	if !strings.Contains(user, "Customer: My card was stolen.") {
		t.Errorf("user prompt should contain rendered dialogue, got: %q", user)
	}
	if !strings.Contains(user, "blocked immediately") {
		t.Errorf("user prompt should contain retrieved knowledge, got: %q", user)
	}
}

func TestAnalyze_EmptyTurns(t *testing.T) {
	t.Parallel()
	e := analysis.New(&mock.Provider{})
	_, err := e.Analyze(context.Background(), nil, "financial_banking")
	if !errors.Is(err, analysis.ErrNoTurns) {
		t.Errorf("expected ErrNoTurns, got %v", err)
	}
}

func TestAnalyze_ProviderError(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("rate limited")
	e := analysis.New(&mock.Provider{CompleteErr: wantErr})
	_, err := e.Analyze(context.Background(), sampleTurns(), "financial_banking")
	if !errors.Is(err, wantErr) {
		t.Errorf("expected provider error, got %v", err)
	}
}

func TestAnalyze_MarkdownFencedJSON(t *testing.T) {
	t.Parallel()
	fenced := "Here is the analysis:\n```json\n" + goodResponse + "\n```\n"
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: fenced},
	}
	e := analysis.New(p)

	result, err := e.Analyze(context.Background(), sampleTurns(), "financial_banking")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.CallOutcome != "Card blocked, replacement ordered" {
		t.Errorf("call_outcome = %q", result.CallOutcome)
	}
}

func TestAnalyze_NoJSONInResponse(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "I cannot analyze this conversation."},
	}
	e := analysis.New(p)

	_, err := e.Analyze(context.Background(), sampleTurns(), "financial_banking")
	if !errors.Is(err, analysis.ErrBadResponse) {
		t.Errorf("expected ErrBadResponse, got %v", err)
	}
}

func TestAnalyze_ClampsAndDefaults(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{
			"conversation_summary": "s",
			"customer_intention": "i",
			"call_outcome": "o",
			"risk_score": 1.7,
			"escalation_level": "catastrophic",
			"performance_score": -3
		}`},
	}
	e := analysis.New(p)

	result, err := e.Analyze(context.Background(), sampleTurns(), "financial_banking")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.RiskScore != 1 {
		t.Errorf("risk_score = %v, want clamped to 1", result.RiskScore)
	}
	if result.PerformanceScore != 0 {
		t.Errorf("performance_score = %v, want clamped to 0", result.PerformanceScore)
	}
	if result.EscalationLevel != analysis.EscalationNone {
		t.Errorf("escalation_level = %q, want none", result.EscalationLevel)
	}
	if result.ComplianceFlags == nil || result.FraudIndicators == nil {
		t.Error("flag lists should default to empty, not nil")
	}
}

func TestAnalyze_RetrievalFailureDegrades(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: goodResponse},
	}
	e := analysis.New(p, analysis.WithRetriever(failingRetriever{}))

	if _, err := e.Analyze(context.Background(), sampleTurns(), "financial_banking"); err != nil {
		t.Fatalf("Analyze should degrade, not fail: %v", err)
	}
	user := p.CompleteCalls[0].Req.Messages[0].Content
	if strings.Contains(user, "Reference material") {
		t.Error("user prompt should not contain reference material after retrieval failure")
	}
}

// failingRetriever always errors, simulating a database outage.
type failingRetriever struct{}

func (failingRetriever) Retrieve(context.Context, string, string, int) ([]knowledge.Result, error) {
	return nil, errors.New("connection refused")
}

func TestEscalationLevel_IsValid(t *testing.T) {
	t.Parallel()
	valid := []analysis.EscalationLevel{
		analysis.EscalationNone,
		analysis.EscalationLow,
		analysis.EscalationMedium,
		analysis.EscalationHigh,
		analysis.EscalationCritical,
	}
	for _, l := range valid {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if analysis.EscalationLevel("urgent").IsValid() {
		t.Error("\"urgent\" should not be valid")
	}
}
