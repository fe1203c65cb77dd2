package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/nabiya/diarymem/core"
)

// LLMClassifier asks a Generator whether the conversation is ending.
type LLMClassifier struct {
	gen     Generator
	prompts *Prompts
}

// NewLLMClassifier builds a classifier. prompts may be nil for defaults.
func NewLLMClassifier(gen Generator, prompts *Prompts) *LLMClassifier {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &LLMClassifier{gen: gen, prompts: prompts}
}

// ClassifyEnding implements IntentClassifier.
func (c *LLMClassifier) ClassifyEnding(ctx context.Context, msgs []core.Message) (bool, error) {
	transcript := core.Transcript(msgs, c.prompts.UserLabel, c.prompts.AssistantLabel)
	answer, err := c.gen.Complete(ctx, Completion{
		System: c.prompts.Render(c.prompts.EndCheck, nil),
		Messages: []core.Message{{
			Role:    core.RoleUser,
			Content: transcript + "\n\n" + c.prompts.EndCheckQuestion,
		}},
		MaxTokens:   5,
		Temperature: 0,
	})
	if err != nil {
		return false, fmt.Errorf("classify ending: %w", err)
	}
	return isYes(answer), nil
}

func isYes(answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	return strings.Contains(a, "예") || strings.HasPrefix(a, "yes")
}
