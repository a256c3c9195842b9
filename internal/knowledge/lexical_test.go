package knowledge_test

import (
	"context"
	"strings"
	"testing"

	"github.com/conviai/convi/internal/conversation"
	"github.com/conviai/convi/internal/knowledge"
)

func bankingChunks() []knowledge.Chunk {
	return []knowledge.Chunk{
		{ID: "card-block", Domain: "financial_banking", Content: "Lost or stolen cards must be blocked immediately. Agents verify identity before blocking a card and issue a replacement within five business days."},
		{ID: "chargeback", Domain: "financial_banking", Content: "Disputed transactions may qualify for a chargeback. The customer must file the dispute within 60 days of the statement date."},
		{ID: "wire-limits", Domain: "financial_banking", Content: "International wire transfers above the daily limit require enhanced verification and a fraud review hold."},
		{ID: "greeting", Domain: "telecom", Content: "Network outage credits are applied automatically to affected accounts."},
	}
}

func TestLexical_RanksRelevantChunkFirst(t *testing.T) {
	t.Parallel()
	l := knowledge.NewLexical(bankingChunks()...)

	results, err := l.Retrieve(context.Background(), "financial_banking", "my card was stolen and I need to block it", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].Chunk.ID != "card-block" {
		t.Errorf("top result = %q, want card-block", results[0].Chunk.ID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted by descending score at index %d", i)
		}
	}
}

func TestLexical_DomainScoping(t *testing.T) {
	t.Parallel()
	l := knowledge.NewLexical(bankingChunks()...)

	results, err := l.Retrieve(context.Background(), "telecom", "network outage on my line", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for _, r := range results {
		if r.Chunk.Domain != "telecom" {
			t.Errorf("result from wrong domain: %q", r.Chunk.Domain)
		}
	}
}

func TestLexical_UnknownDomain(t *testing.T) {
	t.Parallel()
	l := knowledge.NewLexical(bankingChunks()...)

	results, err := l.Retrieve(context.Background(), "healthcare", "insurance claim", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results for unknown domain, got %d", len(results))
	}
}

func TestLexical_TopKLimit(t *testing.T) {
	t.Parallel()
	l := knowledge.NewLexical(bankingChunks()...)

	results, err := l.Retrieve(context.Background(), "financial_banking", "customer dispute transaction card transfer", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) > 1 {
		t.Errorf("expected at most 1 result, got %d", len(results))
	}
}

func TestLexical_FuzzyTokenMatch(t *testing.T) {
	t.Parallel()
	// "chargback" is a near-miss for "chargeback" that exact matching would drop.
	l := knowledge.NewLexical(bankingChunks()...)

	results, err := l.Retrieve(context.Background(), "financial_banking", "customer wants a chargback for a disputed transaction", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].Chunk.ID != "chargeback" {
		t.Errorf("top result = %q, want chargeback", results[0].Chunk.ID)
	}
}

func TestLexical_EmptyQuery(t *testing.T) {
	t.Parallel()
	l := knowledge.NewLexical(bankingChunks()...)

	results, err := l.Retrieve(context.Background(), "financial_banking", "", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results for empty query, got %d", len(results))
	}
}

func TestBuildQuery_JoinsNormalizedText(t *testing.T) {
	t.Parallel()
	turns := []conversation.ConversationTurn{
		{Role: conversation.RoleAgent, NormalizedTextEN: "Thank you for calling."},
		{Role: conversation.RoleCustomer, NormalizedTextEN: "I need to block my card."},
		{Role: conversation.RoleAgent, NormalizedTextEN: ""},
	}
	got := knowledge.BuildQuery(turns)
	want := "Thank you for calling. I need to block my card."
	if got != want {
		t.Errorf("BuildQuery = %q, want %q", got, want)
	}
}

func TestBuildQuery_CapsLength(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("fraudulent transaction on my account ", 40)
	turns := []conversation.ConversationTurn{
		{Role: conversation.RoleCustomer, NormalizedTextEN: long},
	}
	got := knowledge.BuildQuery(turns)
	if len(got) > knowledge.MaxQueryBytes {
		t.Errorf("query length = %d, want <= %d", len(got), knowledge.MaxQueryBytes)
	}
	if !strings.HasPrefix(long, got) {
		t.Error("capped query should be a prefix of the joined text")
	}
}

func TestBuildQuery_Empty(t *testing.T) {
	t.Parallel()
	if got := knowledge.BuildQuery(nil); got != "" {
		t.Errorf("BuildQuery(nil) = %q, want empty", got)
	}
}
