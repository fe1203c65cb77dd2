package engine_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nabiya/diarymem/core"
	"github.com/nabiya/diarymem/engine"
	"github.com/nabiya/diarymem/memory"
)

// route answers requests whose system prompt contains marker.
type route struct {
	marker string
	reply  string
	err    error
}

// routeGen is a Generator that answers by matching markers from the
// default prompts against the request's system prompt.
type routeGen struct {
	mu       sync.Mutex
	routes   []route
	fallback string
	calls    []engine.Completion
}

func (g *routeGen) Complete(_ context.Context, req engine.Completion) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	for _, r := range g.routes {
		if strings.Contains(req.System, r.marker) {
			return r.reply, r.err
		}
	}
	return g.fallback, nil
}

func (g *routeGen) set(marker, reply string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, r := range g.routes {
		if r.marker == marker {
			g.routes[i] = route{marker, reply, err}
			return
		}
	}
	g.routes = append(g.routes, route{marker, reply, err})
}

func (g *routeGen) callsMatching(marker string) []engine.Completion {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []engine.Completion
	for _, c := range g.calls {
		if strings.Contains(c.System, marker) {
			out = append(out, c)
		}
	}
	return out
}

// Markers taken from the default prompts.
const (
	markKeywords  = "키워드 3개"
	markQuery     = "검색을 위한"
	markRecall    = "과거 일기를 함께"
	markDaily     = "하루 이야기를"
	markDiaryGen  = "일기를 써 줘"
	markSelect    = "회상 테마 목록"
	markFirst     = "오늘의 테마는"
	markFollowUp  = "사용자의 마지막 말"
	markQuiz      = "최근 일주일 동안 쓴 일기"
	markEvaluate  = "사용자 답변을 평가"
	markEndCheck  = "대화를 끝내려는 의도"
	diaryGenReply = "제목 : 공원 산책\n본문 : 오늘은 공원에서 오랜만에 산책을 했다."
)

// scriptedClassifier returns its answers in order, then "no".
type scriptedClassifier struct {
	answers []bool
	errs    []error
	calls   int
	seen    [][]core.Message
}

func (c *scriptedClassifier) ClassifyEnding(_ context.Context, msgs []core.Message) (bool, error) {
	i := c.calls
	c.calls++
	c.seen = append(c.seen, msgs)
	if i < len(c.errs) && c.errs[i] != nil {
		return false, c.errs[i]
	}
	if i < len(c.answers) {
		return c.answers[i], nil
	}
	return false, nil
}

type searchCall struct {
	userID   string
	keywords []string
	query    string
}

// fakeMemory records writes and serves canned reads.
type fakeMemory struct {
	mu        sync.Mutex
	indexed   []core.Document
	matches   []memory.Match
	window    []core.Document
	counts    []memory.ThemeCount
	indexErr  error
	searchErr error
	searches  []searchCall
}

func (m *fakeMemory) IndexEntry(_ context.Context, userID, text string, meta core.Metadata) (core.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexErr != nil {
		return core.Document{}, m.indexErr
	}
	md := meta.Clone()
	md[core.MetaUserID] = userID
	doc := core.Document{ID: fmt.Sprintf("doc-%d", len(m.indexed)+1), Content: text, Metadata: md}
	m.indexed = append(m.indexed, doc)
	return doc, nil
}

func (m *fakeMemory) HybridSearch(_ context.Context, userID string, keywords []string, query string, _ memory.SearchOptions) ([]memory.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, searchCall{userID, keywords, query})
	return m.matches, m.searchErr
}

func (m *fakeMemory) DefaultSearchOptions() memory.SearchOptions {
	return memory.SearchOptions{TopK: 3, ScoreThreshold: 2.0, MinMatch: 1}
}

func (m *fakeMemory) EntriesInWindow(_ context.Context, userID, referenceDate string, windowDays int) ([]core.Document, error) {
	if _, err := time.Parse(core.DateLayout, referenceDate); err != nil {
		return nil, core.E(core.ErrInvalidDate, "fake.EntriesInWindow", err)
	}
	return m.window, nil
}

func (m *fakeMemory) ThemeCounts(_ context.Context, userID string) ([]memory.ThemeCount, error) {
	return m.counts, nil
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)
}

func newEngine(gen engine.Generator, mem engine.Memory, opts ...engine.Option) *engine.Engine {
	opts = append([]engine.Option{engine.WithClock(fixedNow)}, opts...)
	return engine.New(gen, mem, opts...)
}
