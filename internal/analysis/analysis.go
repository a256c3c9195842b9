// Package analysis turns normalized conversations into structured findings
// using an LLM.
//
// The engine renders the conversation as a dialogue, retrieves domain
// knowledge relevant to it, and asks the model for a single strict-JSON
// completion covering summary, intent, outcome, risk, compliance, fraud
// signals, and agent performance. Model output is validated and clamped
// before it reaches callers.
package analysis

// EscalationLevel grades how urgently a conversation needs human follow-up.
type EscalationLevel string

const (
	EscalationNone     EscalationLevel = "none"
	EscalationLow      EscalationLevel = "low"
	EscalationMedium   EscalationLevel = "medium"
	EscalationHigh     EscalationLevel = "high"
	EscalationCritical EscalationLevel = "critical"
)

// IsValid reports whether e is a recognised escalation level.
func (e EscalationLevel) IsValid() bool {
	switch e {
	case EscalationNone, EscalationLow, EscalationMedium, EscalationHigh, EscalationCritical:
		return true
	}
	return false
}

// Result is the structured outcome of analyzing one conversation.
// Field names mirror the JSON schema requested from the model.
type Result struct {
	// ConversationSummary is a short factual summary of the call.
	ConversationSummary string `json:"conversation_summary"`

	// CustomerIntention is what the customer was trying to achieve.
	CustomerIntention string `json:"customer_intention"`

	// CallOutcome states how the conversation ended (resolved, escalated,
	// callback scheduled, ...).
	CallOutcome string `json:"call_outcome"`

	// RiskScore grades overall risk in [0, 1].
	RiskScore float64 `json:"risk_score"`

	// EscalationLevel is the recommended escalation urgency.
	EscalationLevel EscalationLevel `json:"escalation_level"`

	// ComplianceFlags lists potential policy or regulatory issues observed.
	ComplianceFlags []string `json:"compliance_flags"`

	// FraudIndicators lists signals consistent with fraudulent activity.
	FraudIndicators []string `json:"fraud_indicators"`

	// PerformanceScore grades the agent's handling of the call in [0, 10].
	PerformanceScore float64 `json:"performance_score"`

	// DeEscalationDetected reports whether the agent actively de-escalated
	// a tense situation.
	DeEscalationDetected bool `json:"de_escalation_detected"`
}
