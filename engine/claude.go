package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/nabiya/diarymem/core"
)

// DefaultModel is the Claude model used when none is configured.
const DefaultModel = "claude-sonnet-4-20250514"

// Claude is a Generator backed by the Anthropic Messages API.
type Claude struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// ClaudeOption configures Claude.
type ClaudeOption func(*Claude)

// WithModel sets the model name.
func WithModel(model string) ClaudeOption {
	return func(c *Claude) {
		if model != "" {
			c.model = model
		}
	}
}

// WithMaxTokens sets the default reply budget.
func WithMaxTokens(n int64) ClaudeOption {
	return func(c *Claude) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// NewClaude wraps an Anthropic client.
func NewClaude(client *anthropic.Client, opts ...ClaudeOption) *Claude {
	c := &Claude{
		client:    client,
		model:     DefaultModel,
		maxTokens: 1024,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends req and returns the concatenated text blocks.
func (c *Claude) Complete(ctx context.Context, req Completion) (string, error) {
	resp, err := c.client.Messages.New(ctx, c.params(req))
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("claude API returned no text")
	}
	return strings.TrimSpace(sb.String()), nil
}

// Stream sends req and calls onChunk with every text delta.
func (c *Claude) Stream(ctx context.Context, req Completion, onChunk func(string)) (string, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.params(req))
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		event := stream.Current()
		if evt, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if delta, ok := evt.Delta.AsAny().(anthropic.TextDelta); ok {
				sb.WriteString(delta.Text)
				onChunk(delta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("claude stream error: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}

func (c *Claude) params(req Completion) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	system, messages := toAPIMessages(req.System, req.Messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   maxTokens,
		Messages:    messages,
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

// toAPIMessages folds system messages into the system prompt and makes
// sure the conversation opens with a user turn, as the API requires.
func toAPIMessages(system string, msgs []core.Message) (string, []anthropic.MessageParam) {
	systems := []string{}
	if system != "" {
		systems = append(systems, system)
	}

	out := make([]anthropic.MessageParam, 0, len(msgs)+1)
	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			systems = append(systems, m.Content)
		case core.RoleAssistant:
			if len(out) == 0 {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock("...")))
			}
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if len(out) == 0 {
		// The whole request lives in the system prompt.
		out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock("...")))
	}
	return strings.Join(systems, "\n\n"), out
}
