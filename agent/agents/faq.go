package agents

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/cloudflow/support-agents/agent/contract"
	llmx "github.com/cloudflow/support-agents/pkg/llm"
)

// FAQAgent answers product questions grounded in knowledge base passages.
// Exactly one retrieval per turn; an empty or failed retrieval degrades to
// an answer that admits the gap instead of failing the turn.
type FAQAgent struct {
	runner chatRunner
	tools  contractx.Tools
	retry  llmx.RetryPolicy
}

func NewFAQAgent(runner chatRunner, tools contractx.Tools, retry llmx.RetryPolicy) (*FAQAgent, error) {
	if runner == nil {
		return nil, fmt.Errorf("faq agent: chat runner is required")
	}
	if tools == nil {
		return nil, fmt.Errorf("faq agent: tool registry is required")
	}
	return &FAQAgent{runner: runner, tools: tools, retry: retry}, nil
}

func (a *FAQAgent) Handle(ctx context.Context, req contractx.SpecialistRequest) (contractx.AgentReply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return contractx.AgentReply{}, fmt.Errorf("%w: message is required", contractx.ErrValidation)
	}

	search := a.tools.SearchKnowledge(ctx, contractx.KnowledgeSearchRequest{Query: req.Message})

	var b strings.Builder
	if t := transcript(req.Context); t != "" {
		b.WriteString(t)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Customer question: %s\n\n", req.Message)
	switch {
	case !search.Success:
		b.WriteString("Knowledge base lookup failed; answer from general product knowledge and say the documentation could not be checked.\n")
	case search.NotFound:
		b.WriteString("Knowledge base results: none found for this question.\n")
	default:
		fmt.Fprintf(&b, "Knowledge base results:\n%s\n", search.Text)
	}

	content, err := generate(ctx, a.runner, a.retry, b.String())
	if err != nil {
		return contractx.AgentReply{}, err
	}

	return contractx.AgentReply{
		Content:   content,
		AgentType: contractx.AgentTypeFAQ,
		ToolCalls: []contractx.ToolInvocation{search.Invocation()},
	}, nil
}
