package agents

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/cloudflow/support-agents/agent/contract"
	llmx "github.com/cloudflow/support-agents/pkg/llm"
)

const (
	orderNoEmailReply = "I can help with billing and account questions, but I need the " +
		"email address on the account first. Could you share it?"
	orderNoCustomerReply = "I couldn't find an account for %s. Please double-check the " +
		"email address, or let me know if you signed up with a different one."
)

// OrderAgent answers billing and account questions from customer records.
// Lookups run in a fixed order; a missing customer short-circuits without a
// model call.
type OrderAgent struct {
	runner chatRunner
	tools  contractx.Tools
	retry  llmx.RetryPolicy
}

func NewOrderAgent(runner chatRunner, tools contractx.Tools, retry llmx.RetryPolicy) (*OrderAgent, error) {
	if runner == nil {
		return nil, fmt.Errorf("order agent: chat runner is required")
	}
	if tools == nil {
		return nil, fmt.Errorf("order agent: tool registry is required")
	}
	return &OrderAgent{runner: runner, tools: tools, retry: retry}, nil
}

func (a *OrderAgent) Handle(ctx context.Context, req contractx.SpecialistRequest) (contractx.AgentReply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return contractx.AgentReply{}, fmt.Errorf("%w: message is required", contractx.ErrValidation)
	}

	email := requestEmail(req)
	if email == "" {
		return contractx.AgentReply{
			Content:   orderNoEmailReply,
			AgentType: contractx.AgentTypeOrder,
		}, nil
	}

	customer := a.tools.LookupCustomer(ctx, contractx.CustomerLookupRequest{
		Email:          email,
		ConversationID: req.ConversationID,
	})
	if customer.Success && customer.NotFound {
		return contractx.AgentReply{
			Content:   fmt.Sprintf(orderNoCustomerReply, email),
			AgentType: contractx.AgentTypeOrder,
			ToolCalls: []contractx.ToolInvocation{customer.Invocation()},
		}, nil
	}

	subscriptions := a.tools.LookupSubscriptions(ctx, contractx.SubscriptionLookupRequest{Email: email})
	invoices := a.tools.LookupInvoices(ctx, contractx.InvoiceLookupRequest{Email: email})

	var b strings.Builder
	if t := transcript(req.Context); t != "" {
		b.WriteString(t)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Customer message: %s\n\n", req.Message)
	writeLookup(&b, "Customer profile", customer)
	writeLookup(&b, "Subscriptions", subscriptions)
	writeLookup(&b, "Invoices", invoices)

	content, err := generate(ctx, a.runner, a.retry, b.String())
	if err != nil {
		return contractx.AgentReply{}, err
	}

	return contractx.AgentReply{
		Content:   content,
		AgentType: contractx.AgentTypeOrder,
		ToolCalls: []contractx.ToolInvocation{
			customer.Invocation(),
			subscriptions.Invocation(),
			invoices.Invocation(),
		},
	}, nil
}

func writeLookup(b *strings.Builder, label string, res contractx.ToolResult) {
	if !res.Success {
		fmt.Fprintf(b, "%s: lookup unavailable.\n\n", label)
		return
	}
	fmt.Fprintf(b, "%s:\n%s\n\n", label, res.Text)
}
