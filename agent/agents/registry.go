package agents

import (
	"context"
	"fmt"

	contractx "github.com/cloudflow/support-agents/agent/contract"
	promptx "github.com/cloudflow/support-agents/agent/prompt"
	llmx "github.com/cloudflow/support-agents/pkg/llm"
)

// Registry holds the three specialists. The mapping is fixed at construction;
// there is no runtime registration.
type Registry struct {
	faq        *FAQAgent
	order      *OrderAgent
	escalation *EscalationAgent
}

// NewRegistry builds one chat model per specialist purpose and wires the
// specialists over the shared tool registry.
func NewRegistry(ctx context.Context, cfg llmx.Config, prompts promptx.PromptSet, tools contractx.Tools) (*Registry, error) {
	if tools == nil {
		return nil, fmt.Errorf("agents: tool registry is required")
	}
	retry := cfg.RetryPolicy()

	faqModel, err := cfg.NewChatModel(ctx, llmx.PurposeFAQ)
	if err != nil {
		return nil, fmt.Errorf("agents: %w", err)
	}
	faqRunner, err := compileChatGraph(ctx, faqModel, prompts.FAQ, "faq.reply_graph")
	if err != nil {
		return nil, fmt.Errorf("agents: %w", err)
	}
	faq, err := NewFAQAgent(faqRunner, tools, retry)
	if err != nil {
		return nil, err
	}

	orderModel, err := cfg.NewChatModel(ctx, llmx.PurposeOrder)
	if err != nil {
		return nil, fmt.Errorf("agents: %w", err)
	}
	orderRunner, err := compileChatGraph(ctx, orderModel, prompts.Order, "order.reply_graph")
	if err != nil {
		return nil, fmt.Errorf("agents: %w", err)
	}
	order, err := NewOrderAgent(orderRunner, tools, retry)
	if err != nil {
		return nil, err
	}

	escalationModel, err := cfg.NewChatModel(ctx, llmx.PurposeEscalation)
	if err != nil {
		return nil, fmt.Errorf("agents: %w", err)
	}
	escalationRunner, err := compileChatGraph(ctx, escalationModel, prompts.Escalation, "escalation.reply_graph")
	if err != nil {
		return nil, fmt.Errorf("agents: %w", err)
	}
	escalation, err := NewEscalationAgent(escalationRunner, tools, retry)
	if err != nil {
		return nil, err
	}

	return &Registry{faq: faq, order: order, escalation: escalation}, nil
}

func (r *Registry) FAQ() contractx.Specialist        { return r.faq }
func (r *Registry) Order() contractx.Specialist      { return r.order }
func (r *Registry) Escalation() contractx.Specialist { return r.escalation }
