// Package router classifies inbound messages onto the specialist enum.
// Routing is total: when the model call fails, returns an unknown route,
// or is below the confidence threshold, a keyword fallback decides.
package router

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/cloudflow/support-agents/agent/contract"
	storagex "github.com/cloudflow/support-agents/agent/storage"
	llmx "github.com/cloudflow/support-agents/pkg/llm"
)

const defaultConfidenceThreshold = 0.6

// contextMessages is how many trailing messages are shown to the model.
const contextMessages = 6

type routerLLMOutput struct {
	Route      string  `json:"route"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Summary    string  `json:"summary"`
}

type routerRunner interface {
	Invoke(ctx context.Context, input map[string]any, opts ...compose.Option) (routerLLMOutput, error)
}

type Option func(*Router)

func WithConfidenceThreshold(threshold float64) Option {
	return func(r *Router) {
		if threshold > 0 && threshold <= 1 {
			r.threshold = threshold
		}
	}
}

func WithRetryPolicy(policy llmx.RetryPolicy) Option {
	return func(r *Router) {
		r.retry = policy
	}
}

// Router is the LLM intent classifier with its deterministic fallback.
type Router struct {
	runner    routerRunner
	threshold float64
	retry     llmx.RetryPolicy
}

func NewRouter(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string, opts ...Option) (*Router, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("router system prompt is required")
	}

	runner, err := compileRouterGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, err
	}

	r := &Router{
		runner:    runner,
		threshold: defaultConfidenceThreshold,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Route classifies one message. It never returns an error: every failure
// mode degrades to the keyword fallback.
func (r *Router) Route(ctx context.Context, message string, recent []storagex.Message) contractx.RoutingDecision {
	out, err := llmx.Retry(ctx, r.retry, func(ctx context.Context) (routerLLMOutput, error) {
		return r.runner.Invoke(ctx, map[string]any{"input": routerInput(message, recent)})
	})
	if err != nil {
		log.Warn().Err(err).Msg("router model call failed, using keyword fallback")
		return fallbackDecision(message)
	}

	target, ok := contractx.ParseAgentType(out.Route)
	if !ok {
		log.Warn().Str("route", out.Route).Msg("router returned unknown route, using keyword fallback")
		return fallbackDecision(message)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		log.Warn().Float64("confidence", out.Confidence).Msg("router confidence out of range, using keyword fallback")
		return fallbackDecision(message)
	}
	if out.Confidence < r.threshold {
		log.Debug().
			Str("route", string(target)).
			Float64("confidence", out.Confidence).
			Float64("threshold", r.threshold).
			Msg("router confidence below threshold, using keyword fallback")
		return fallbackDecision(message)
	}

	summary := strings.TrimSpace(out.Summary)
	if summary == "" {
		summary = summarize(message)
	}

	return contractx.RoutingDecision{
		Target:     target,
		Confidence: out.Confidence,
		Reasoning:  strings.TrimSpace(out.Reasoning),
		Summary:    summary,
		Source:     contractx.SourceLLM,
	}
}

func routerInput(message string, recent []storagex.Message) string {
	var b strings.Builder
	if len(recent) > 0 {
		start := 0
		if len(recent) > contextMessages {
			start = len(recent) - contextMessages
		}
		b.WriteString("Recent conversation:\n")
		for _, m := range recent[start:] {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}
	b.WriteString("Customer message: ")
	b.WriteString(message)
	return b.String()
}

func compileRouterGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (compose.Runnable[map[string]any, routerLLMOutput], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("{input}"),
	)

	parser := schema.NewMessageJSONParser[routerLLMOutput](&schema.MessageJSONParseConfig{
		ParseFrom: schema.MessageParseFromContent,
	})

	graph := compose.NewGraph[map[string]any, routerLLMOutput]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add router prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add router model node: %w", err)
	}
	if err := graph.AddLambdaNode("parse_json", compose.MessageParser(parser)); err != nil {
		return nil, fmt.Errorf("add router parser node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add router edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add router edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", "parse_json"); err != nil {
		return nil, fmt.Errorf("add router edge model->parse: %w", err)
	}
	if err := graph.AddEdge("parse_json", compose.END); err != nil {
		return nil, fmt.Errorf("add router edge parse->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("router.model_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile router graph: %w", err)
	}
	return runner, nil
}
