// Package agents holds the three specialists and their fixed registry.
package agents

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	contractx "github.com/cloudflow/support-agents/agent/contract"
	storagex "github.com/cloudflow/support-agents/agent/storage"
	llmx "github.com/cloudflow/support-agents/pkg/llm"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// requestEmail prefers the caller-supplied email and otherwise scans the
// message text for one.
func requestEmail(req contractx.SpecialistRequest) string {
	if email := storagex.NormalizeEmail(req.CustomerEmail); email != "" {
		return email
	}
	if match := emailPattern.FindString(req.Message); match != "" {
		return storagex.NormalizeEmail(match)
	}
	return ""
}

func transcript(msgs []storagex.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

// generate runs one chat graph invocation under the retry policy. Transport
// failures map to the model-unavailable class; an empty reply is malformed
// output and never retried.
func generate(ctx context.Context, runner chatRunner, retry llmx.RetryPolicy, input string) (string, error) {
	msg, err := llmx.Retry(ctx, retry, func(ctx context.Context) (string, error) {
		out, err := runner.Invoke(ctx, map[string]any{"input": input})
		if err != nil {
			return "", err
		}
		if out == nil || strings.TrimSpace(out.Content) == "" {
			return "", fmt.Errorf("%w: empty reply content", contractx.ErrMalformedModelOutput)
		}
		return strings.TrimSpace(out.Content), nil
	})
	if err != nil {
		if errors.Is(err, contractx.ErrMalformedModelOutput) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", contractx.ErrModelUnavailable, err)
	}
	return msg, nil
}
