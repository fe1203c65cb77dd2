package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"

	"github.com/nabiya/diarymem/memory"
)

// DefaultThemes is the reminiscence theme catalogue, in menu order.
var DefaultThemes = []string{
	"학교/학창시절",
	"여가/취미",
	"출생/성장",
	"결혼/가족",
	"특별한 사건",
	"직업/일",
	"음식/간식",
	"군대 경험",
	"명절/절기",
}

// SelectTheme asks gen to pick the next theme for a user given how often
// each theme was already written about. When the answer holds no valid
// menu number the least-written theme is chosen.
func SelectTheme(ctx context.Context, gen Generator, prompts *Prompts, themes []string, counts []memory.ThemeCount, profileInfo string) string {
	if len(themes) == 0 {
		themes = DefaultThemes
	}
	byTheme := make(map[string]int, len(counts))
	for _, c := range counts {
		byTheme[c.Theme] = c.Count
	}

	var list, tally strings.Builder
	for i, t := range themes {
		fmt.Fprintf(&list, "%d: %s\n", i+1, t)
		fmt.Fprintf(&tally, "%s: %d\n", t, byTheme[t])
	}

	answer, err := gen.Complete(ctx, Completion{
		System: prompts.Render(prompts.ThemeSelect, map[string]string{
			"profile_info": profileInfo,
			"theme_list":   strings.TrimSpace(list.String()),
			"theme_counts": strings.TrimSpace(tally.String()),
		}),
		MaxTokens:   5,
		Temperature: 0,
	})
	if err != nil {
		log.WithError(err).Warn("[THEME] theme selection failed, using least-written theme")
	} else if n, ok := firstNumber(answer); ok && n >= 1 && n <= len(themes) {
		return themes[n-1]
	}

	pick := themes[0]
	for _, t := range themes[1:] {
		if byTheme[t] < byTheme[pick] {
			pick = t
		}
	}
	return pick
}

func firstNumber(s string) (int, bool) {
	start := strings.IndexFunc(s, unicode.IsDigit)
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[start:end])
	return n, err == nil
}
