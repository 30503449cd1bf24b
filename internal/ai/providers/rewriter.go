package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const rewriteMaxTokens = 512

// Rewriter turns a Provider into the message-rewrite text transform.
type Rewriter struct {
	provider Provider
}

// NewRewriter wraps provider.
func NewRewriter(provider Provider) *Rewriter {
	return &Rewriter{provider: provider}
}

// Rewrite returns text rewritten in the given tone. Any provider failure or
// an empty completion is reported as ErrUpstreamUnavailable.
func (r *Rewriter) Rewrite(ctx context.Context, text, toneLabel, toneDescription string) (string, error) {
	resp, err := r.provider.Chat(ctx, ChatRequest{
		Messages:  []Message{{Role: "user", Content: RewritePrompt(text, toneLabel, toneDescription)}},
		MaxTokens: rewriteMaxTokens,
	})
	if err != nil {
		return "", wrapUpstream(err)
	}
	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", fmt.Errorf("%w: empty completion from %s", ErrUpstreamUnavailable, r.provider.Name())
	}
	return out, nil
}

// RewritePrompt builds the single user turn sent to the model.
func RewritePrompt(text, toneLabel, toneDescription string) string {
	return fmt.Sprintf(
		"Rewrite this message in a %s tone (%s). Return ONLY the rewritten message - no intro, no explanation, no quotes:\n\n%s",
		strings.ToLower(strings.TrimSpace(toneLabel)),
		strings.ToLower(strings.TrimSpace(toneDescription)),
		text,
	)
}

func wrapUpstream(err error) error {
	if errors.Is(err, ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}
