package contract

import (
	"strings"

	"github.com/google/uuid"

	storagex "github.com/cloudflow/support-agents/agent/storage"
)

// AgentType is the closed set of specialists a turn can be dispatched to.
// Routing output is validated against this set; there is no open string
// dispatch anywhere downstream of the router.
type AgentType string

const (
	AgentTypeFAQ        AgentType = "faq"
	AgentTypeOrder      AgentType = "order"
	AgentTypeEscalation AgentType = "escalation"
)

// ParseAgentType maps a raw route identifier onto the closed enum.
func ParseAgentType(raw string) (AgentType, bool) {
	switch AgentType(strings.ToLower(strings.TrimSpace(raw))) {
	case AgentTypeFAQ:
		return AgentTypeFAQ, true
	case AgentTypeOrder:
		return AgentTypeOrder, true
	case AgentTypeEscalation:
		return AgentTypeEscalation, true
	default:
		return "", false
	}
}

// DecisionSource records whether a routing decision came from the language
// model or from the deterministic keyword fallback.
type DecisionSource string

const (
	SourceLLM      DecisionSource = "llm"
	SourceFallback DecisionSource = "fallback"
)

// RoutingDecision is produced once per inbound message and consumed
// immediately by the orchestrator. It is never persisted.
type RoutingDecision struct {
	Target     AgentType      `json:"target"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
	Summary    string         `json:"summary"`
	Source     DecisionSource `json:"source"`
}

// SpecialistRequest is the uniform input to every specialist.
type SpecialistRequest struct {
	ConversationID uuid.UUID
	Message        string
	Context        []storagex.Message
	CustomerEmail  string
	Reasoning      string
	Summary        string
	CorrelationID  string
}

// ToolInvocation is the per-tool summary a specialist reports back in its
// reply; it may be recorded into assistant message metadata.
type ToolInvocation struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Preview string `json:"preview,omitempty"`
}

// AgentReply is the outcome of one specialist run.
type AgentReply struct {
	Content   string           `json:"content"`
	AgentType AgentType        `json:"agent_type"`
	ToolCalls []ToolInvocation `json:"tool_calls,omitempty"`
}

// ToolNames reduces the invocation list to names for message metadata.
func (r AgentReply) ToolNames() []string {
	if len(r.ToolCalls) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.ToolCalls))
	for _, tc := range r.ToolCalls {
		names = append(names, tc.Name)
	}
	return names
}

// ToolResult is the uniform outcome of a tool invocation. Tools never return
// transport errors past the registry boundary: any internal failure becomes
// Success=false with a human-readable Text. NotFound marks the expected
// no-record outcome, which is still a successful result.
type ToolResult struct {
	Tool     string `json:"tool"`
	Text     string `json:"text"`
	Success  bool   `json:"success"`
	NotFound bool   `json:"not_found,omitempty"`
	Err      string `json:"error,omitempty"`
}

// Invocation summarizes a result for reply metadata.
func (r ToolResult) Invocation() ToolInvocation {
	preview := r.Text
	if runes := []rune(preview); len(runes) > 200 {
		preview = string(runes[:200])
	}
	return ToolInvocation{Name: r.Tool, Success: r.Success, Preview: preview}
}
