package engine

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/nabiya/diarymem/core"
)

// MaxKeywords is how many keywords a user turn contributes to recall.
const MaxKeywords = 3

// ExtractKeywords asks gen for the places, people and events in text.
func ExtractKeywords(ctx context.Context, gen Generator, prompts *Prompts, text string) ([]string, error) {
	out, err := gen.Complete(ctx, Completion{
		System:      prompts.Keywords,
		Messages:    userMessage(text),
		MaxTokens:   30,
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("extract keywords: %w", err)
	}
	return ParseKeywords(out), nil
}

// ParseKeywords splits a comma or newline separated list, dropping list
// bullets and numbering, and keeps at most MaxKeywords.
func ParseKeywords(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n' || r == '、'
	})
	out := make([]string, 0, MaxKeywords)
	for _, f := range fields {
		kw := stripListMarker(strings.TrimSpace(f))
		kw = strings.Trim(kw, "\"' ")
		if kw == "" {
			continue
		}
		out = append(out, kw)
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}

// BuildQuery asks gen to turn keywords into a natural-language search query.
// When generation fails the keywords joined by spaces are used instead.
func BuildQuery(ctx context.Context, gen Generator, prompts *Prompts, keywords []string) string {
	joined := strings.Join(keywords, ", ")
	out, err := gen.Complete(ctx, Completion{
		System:      prompts.Render(prompts.Query, map[string]string{"keywords": joined}),
		MaxTokens:   100,
		Temperature: 0.5,
	})
	if err != nil || strings.TrimSpace(out) == "" {
		return strings.Join(keywords, " ")
	}
	return strings.TrimSpace(out)
}

// stripListMarker removes a leading "-", "*", "•" or "1." / "1)".
func stripListMarker(s string) string {
	s = strings.TrimLeft(s, "-*• ")
	i := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if i > 0 && (s[i] == '.' || s[i] == ')') {
		s = strings.TrimSpace(s[i+1:])
	}
	return s
}

func userMessage(text string) []core.Message {
	return []core.Message{{Role: core.RoleUser, Content: text}}
}
