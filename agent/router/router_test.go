package router

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/cloudflow/support-agents/agent/contract"
	storagex "github.com/cloudflow/support-agents/agent/storage"
)

type fakeRunner struct {
	out       routerLLMOutput
	err       error
	lastInput string
}

func (f *fakeRunner) Invoke(ctx context.Context, input map[string]any, opts ...compose.Option) (routerLLMOutput, error) {
	if raw, ok := input["input"].(string); ok {
		f.lastInput = raw
	}
	if f.err != nil {
		return routerLLMOutput{}, f.err
	}
	return f.out, nil
}

func newTestRouter(runner routerRunner) *Router {
	return &Router{runner: runner, threshold: defaultConfidenceThreshold}
}

func TestRouteAcceptsConfidentModelDecision(t *testing.T) {
	t.Parallel()

	r := newTestRouter(&fakeRunner{out: routerLLMOutput{
		Route:      "order",
		Confidence: 0.92,
		Reasoning:  "asks about an invoice",
		Summary:    "customer wants invoice details",
	}})

	decision := r.Route(context.Background(), "where is my invoice?", nil)
	if decision.Target != contractx.AgentTypeOrder {
		t.Fatalf("target = %s, want order", decision.Target)
	}
	if decision.Source != contractx.SourceLLM {
		t.Fatalf("source = %s, want llm", decision.Source)
	}
	if decision.Confidence != 0.92 {
		t.Fatalf("confidence = %v, want 0.92", decision.Confidence)
	}
}

func TestRouteFallsBackOnModelError(t *testing.T) {
	t.Parallel()

	r := newTestRouter(&fakeRunner{err: errors.New("model unavailable")})

	decision := r.Route(context.Background(), "I have a question about my billing plan", nil)
	if decision.Source != contractx.SourceFallback {
		t.Fatalf("source = %s, want fallback", decision.Source)
	}
	if decision.Target != contractx.AgentTypeOrder {
		t.Fatalf("target = %s, want order for billing keyword", decision.Target)
	}
}

func TestRouteFallsBackOnUnknownRoute(t *testing.T) {
	t.Parallel()

	r := newTestRouter(&fakeRunner{out: routerLLMOutput{Route: "sales", Confidence: 0.99}})

	decision := r.Route(context.Background(), "how do I reset my password?", nil)
	if decision.Source != contractx.SourceFallback {
		t.Fatalf("source = %s, want fallback", decision.Source)
	}
	if decision.Target != contractx.AgentTypeFAQ {
		t.Fatalf("target = %s, want faq", decision.Target)
	}
}

func TestRouteFallsBackBelowThreshold(t *testing.T) {
	t.Parallel()

	r := newTestRouter(&fakeRunner{out: routerLLMOutput{Route: "faq", Confidence: 0.3}})

	decision := r.Route(context.Background(), "I want a refund now", nil)
	if decision.Source != contractx.SourceFallback {
		t.Fatalf("source = %s, want fallback", decision.Source)
	}
	if decision.Target != contractx.AgentTypeOrder {
		t.Fatalf("target = %s, want order for refund keyword", decision.Target)
	}
}

func TestRouteFallsBackOnOutOfRangeConfidence(t *testing.T) {
	t.Parallel()

	r := newTestRouter(&fakeRunner{out: routerLLMOutput{Route: "faq", Confidence: 3.5}})

	decision := r.Route(context.Background(), "hello there", nil)
	if decision.Source != contractx.SourceFallback {
		t.Fatalf("source = %s, want fallback", decision.Source)
	}
}

func TestRouteIncludesRecentContextInPrompt(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{out: routerLLMOutput{Route: "faq", Confidence: 0.9}}
	r := newTestRouter(runner)

	recent := []storagex.Message{
		{Role: storagex.RoleUser, Content: "earlier question"},
		{Role: storagex.RoleAssistant, Content: "earlier answer"},
	}
	r.Route(context.Background(), "follow-up question", recent)

	for _, want := range []string{"earlier question", "earlier answer", "follow-up question"} {
		if !strings.Contains(runner.lastInput, want) {
			t.Fatalf("prompt input missing %q: %q", want, runner.lastInput)
		}
	}
}

func TestFallbackPrecedence(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		message string
		want    contractx.AgentType
	}{
		{"escalation keyword", "I want to speak to a human", contractx.AgentTypeEscalation},
		{"order keyword", "question about my subscription", contractx.AgentTypeOrder},
		{"escalation beats order", "I am angry about this charge", contractx.AgentTypeEscalation},
		{"default faq", "how do integrations work?", contractx.AgentTypeFAQ},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			decision := fallbackDecision(tc.message)
			if decision.Target != tc.want {
				t.Fatalf("fallbackDecision(%q).Target = %s, want %s", tc.message, decision.Target, tc.want)
			}
			if decision.Source != contractx.SourceFallback {
				t.Fatalf("source = %s, want fallback", decision.Source)
			}
		})
	}
}

func TestSummarizeTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	got := summarize(strings.Repeat("ü", 200))
	if !utf8.ValidString(got) {
		t.Fatalf("summary is not valid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 120 {
		t.Fatalf("summary length = %d runes, want 120", n)
	}
}

func TestFallbackConfidences(t *testing.T) {
	t.Parallel()

	if got := fallbackDecision("get me a manager").Confidence; got != 0.7 {
		t.Fatalf("escalation fallback confidence = %v, want 0.7", got)
	}
	if got := fallbackDecision("my invoice is wrong").Confidence; got != 0.75 {
		t.Fatalf("order fallback confidence = %v, want 0.75", got)
	}
	if got := fallbackDecision("what does the product do?").Confidence; got != 0.6 {
		t.Fatalf("faq fallback confidence = %v, want 0.6", got)
	}
}
