package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/cloudflow/support-agents/agent/contract"
	llmx "github.com/cloudflow/support-agents/pkg/llm"
)

const escalationFallbackReply = "I'm sorry you're having this trouble. I've recorded your " +
	"issue and our support team will follow up with you as soon as possible."

// EscalationAgent files a support ticket and confirms it to the customer.
// The ticket is the point of the turn: once it exists, a model failure while
// wording the confirmation degrades to a canned reply instead of failing.
type EscalationAgent struct {
	runner chatRunner
	tools  contractx.Tools
	retry  llmx.RetryPolicy
}

func NewEscalationAgent(runner chatRunner, tools contractx.Tools, retry llmx.RetryPolicy) (*EscalationAgent, error) {
	if runner == nil {
		return nil, fmt.Errorf("escalation agent: chat runner is required")
	}
	if tools == nil {
		return nil, fmt.Errorf("escalation agent: tool registry is required")
	}
	return &EscalationAgent{runner: runner, tools: tools, retry: retry}, nil
}

func (a *EscalationAgent) Handle(ctx context.Context, req contractx.SpecialistRequest) (contractx.AgentReply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return contractx.AgentReply{}, fmt.Errorf("%w: message is required", contractx.ErrValidation)
	}

	ticket := a.tools.CreateTicket(ctx, contractx.CreateTicketRequest{
		CustomerEmail:  requestEmail(req),
		Subject:        ticketSubject(req),
		Description:    ticketDescription(req),
		Category:       ticketCategory(req.Message),
		ConversationID: req.ConversationID,
	})

	var b strings.Builder
	if t := transcript(req.Context); t != "" {
		b.WriteString(t)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Customer message: %s\n\n", req.Message)
	if ticket.Success {
		fmt.Fprintf(&b, "Ticket outcome: %s\n", ticket.Text)
	} else {
		b.WriteString("Ticket outcome: ticket creation failed.\n")
	}

	content, err := generate(ctx, a.runner, a.retry, b.String())
	if err != nil {
		log.Warn().Err(err).Msg("escalation reply generation failed, using canned confirmation")
		content = escalationFallbackReply
		if ticket.Success {
			content = ticket.Text
		}
	}

	return contractx.AgentReply{
		Content:   content,
		AgentType: contractx.AgentTypeEscalation,
		ToolCalls: []contractx.ToolInvocation{ticket.Invocation()},
	}, nil
}

func ticketSubject(req contractx.SpecialistRequest) string {
	if s := strings.TrimSpace(req.Summary); s != "" {
		return s
	}
	subject := strings.Join(strings.Fields(req.Message), " ")
	if runes := []rune(subject); len(runes) > 80 {
		subject = string(runes[:80])
	}
	return subject
}

func ticketCategory(message string) string {
	text := strings.ToLower(message)
	for _, kw := range []string{"billing", "invoice", "charge", "payment", "refund"} {
		if strings.Contains(text, kw) {
			return "billing"
		}
	}
	for _, kw := range []string{"bug", "broken", "crash", "error", "not working"} {
		if strings.Contains(text, kw) {
			return "bug_report"
		}
	}
	return "other"
}

func ticketDescription(req contractx.SpecialistRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Customer message: %s\n", req.Message)
	if r := strings.TrimSpace(req.Reasoning); r != "" {
		fmt.Fprintf(&b, "Routing reasoning: %s\n", r)
	}
	fmt.Fprintf(&b, "Conversation: %s\n", req.ConversationID)
	return b.String()
}
