package analysis

import (
	"fmt"
	"strings"

	"github.com/conviai/convi/internal/knowledge"
)

// systemPromptTemplate instructs the model to act as a call analyst for the
// given domain and to answer with exactly one JSON object. The schema listing
// doubles as documentation for what [Result] expects.
const systemPromptTemplate = `You are an expert conversation analyst for %s customer support calls.
Analyze the dialogue and respond with a single JSON object, no prose, no markdown, with exactly these fields:
{
  "conversation_summary": string, // 2-3 factual sentences
  "customer_intention": string,   // what the customer wanted
  "call_outcome": string,         // how the call ended
  "risk_score": number,           // 0.0 (no risk) to 1.0 (severe risk)
  "escalation_level": string,     // one of: none, low, medium, high, critical
  "compliance_flags": [string],   // policy/regulatory issues observed, [] if none
  "fraud_indicators": [string],   // fraud signals observed, [] if none
  "performance_score": number,    // agent handling quality, 0.0 to 10.0
  "de_escalation_detected": bool  // agent actively defused tension
}
Ground compliance and fraud findings in the reference material when it applies.`

// buildSystemPrompt fills the analyst template for a domain. The machine-name
// domain (e.g. "financial_banking") is humanised for the prompt.
func buildSystemPrompt(domain string) string {
	readable := strings.ReplaceAll(domain, "_", " ")
	return fmt.Sprintf(systemPromptTemplate, readable)
}

// buildUserPrompt assembles the dialogue and retrieved knowledge into the
// user message. Knowledge chunks are listed before the dialogue so the model
// reads policy context first.
func buildUserPrompt(dialogue string, context []knowledge.Result) string {
	var sb strings.Builder

	if len(context) > 0 {
		sb.WriteString("Reference material:\n")
		for i, r := range context {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, r.Chunk.Content)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Conversation:\n")
	sb.WriteString(dialogue)
	return sb.String()
}
