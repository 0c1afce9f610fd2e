package router

import (
	"strings"

	contractx "github.com/cloudflow/support-agents/agent/contract"
)

// Keyword tables for the deterministic fallback. Scan order is the
// tie-break: escalation wins over order, order over FAQ.
var fallbackRules = []struct {
	target     contractx.AgentType
	confidence float64
	reasoning  string
	keywords   []string
}{
	{
		target:     contractx.AgentTypeEscalation,
		confidence: 0.7,
		reasoning:  "message contains escalation keywords",
		keywords: []string{
			"escalation", "human", "complex", "complaint", "frustrated",
			"angry", "urgent", "emergency", "manager", "supervisor",
		},
	},
	{
		target:     contractx.AgentTypeOrder,
		confidence: 0.75,
		reasoning:  "message contains billing or account keywords",
		keywords: []string{
			"subscription", "billing", "invoice", "payment", "charge",
			"plan", "upgrade", "downgrade", "cancel", "refund",
			"account", "price", "cost", "fee", "renew",
		},
	},
}

// fallbackDecision classifies a message by keyword matching alone. It is
// total: anything unmatched is a FAQ question.
func fallbackDecision(message string) contractx.RoutingDecision {
	text := strings.ToLower(message)
	for _, rule := range fallbackRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return contractx.RoutingDecision{
					Target:     rule.target,
					Confidence: rule.confidence,
					Reasoning:  rule.reasoning,
					Summary:    summarize(message),
					Source:     contractx.SourceFallback,
				}
			}
		}
	}
	return contractx.RoutingDecision{
		Target:     contractx.AgentTypeFAQ,
		Confidence: 0.6,
		Reasoning:  "no routing keywords matched",
		Summary:    summarize(message),
		Source:     contractx.SourceFallback,
	}
}

func summarize(message string) string {
	trimmed := strings.Join(strings.Fields(message), " ")
	if runes := []rune(trimmed); len(runes) > 120 {
		trimmed = string(runes[:120])
	}
	return trimmed
}
