package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/nabiya/diarymem/core"
)

// MaxAttempts is how many answers a recall session accepts per question.
const MaxAttempts = 5

// ErrNoEntries is returned when the user wrote nothing inside the quiz window.
var ErrNoEntries = core.E(core.ErrNotFound, "engine.GenerateQuiz", errors.New("no diary entries in window"))

// QuizItem is one recall question with its expected answer.
type QuizItem struct {
	Type     string `json:"type"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// UnmarshalJSON accepts both the Korean keys the prompt asks for and
// English ones.
func (q *QuizItem) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := raw[k]; ok && v != nil {
				return strings.TrimSpace(fmt.Sprint(v))
			}
		}
		return ""
	}
	q.Type = pick("유형", "type")
	q.Question = pick("질문", "question")
	q.Answer = pick("답변", "answer")
	return nil
}

// Quiz is a generated set of recall questions over one diary window.
type Quiz struct {
	UserID       string          `json:"user_id"`
	Date         string          `json:"date"`
	Items        []QuizItem      `json:"questions"`
	DiaryContent string          `json:"-"`
	Entries      []core.Document `json:"-"`
}

// Evaluation grades one answer.
type Evaluation struct {
	Correct  bool    `json:"correct"`
	Feedback string  `json:"feedback"`
	Hint     string  `json:"hint,omitempty"`
	Score    float64 `json:"score"`
}

// GenerateQuiz builds recall questions from the user's diaries in the window
// ending at date. An empty date means today.
func (e *Engine) GenerateQuiz(ctx context.Context, userID, date string) (*Quiz, error) {
	if date == "" {
		date = e.today()
	}
	entries, err := e.memory.EntriesInWindow(ctx, userID, date, e.windowDays)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}

	content := FormatEntries(entries)
	out, err := e.gen.Complete(ctx, Completion{
		System: e.prompts.Render(e.prompts.Quiz, map[string]string{
			"date":          date,
			"diary_content": content,
		}),
		MaxTokens:   800,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("generate quiz: %w", err)
	}
	items, err := ParseQuiz(out)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id":   userID,
		"date":      date,
		"entries":   len(entries),
		"questions": len(items),
	}).Info("[RECALL] quiz generated")
	return &Quiz{
		UserID:       userID,
		Date:         date,
		Items:        items,
		DiaryContent: content,
		Entries:      entries,
	}, nil
}

// EvaluateAnswer grades userAnswer against item. When the generator's
// output is not the requested JSON, the raw text becomes the feedback and
// the answer counts as wrong.
func (e *Engine) EvaluateAnswer(ctx context.Context, item QuizItem, userAnswer, diaryContent string) (Evaluation, error) {
	if strings.TrimSpace(userAnswer) == "" {
		return Evaluation{}, core.E(core.ErrInvalidInput, "engine.EvaluateAnswer", errors.New("empty answer"))
	}
	out, err := e.gen.Complete(ctx, Completion{
		System: e.prompts.Render(e.prompts.Evaluation, map[string]string{
			"recall_question": item.Question,
			"recall_answer":   item.Answer,
			"user_answer":     userAnswer,
			"diary_content":   diaryContent,
		}),
		MaxTokens:   300,
		Temperature: 0.5,
	})
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate answer: %w", err)
	}
	return ParseEvaluation(out), nil
}

// ParseQuiz reads the generator's quiz output: a JSON array of items or an
// object with a "questions" array, optionally inside a code fence.
func ParseQuiz(text string) ([]QuizItem, error) {
	body := stripCodeFence(text)

	var items []QuizItem
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		var wrapped struct {
			Questions []QuizItem `json:"questions"`
		}
		if err2 := json.Unmarshal([]byte(body), &wrapped); err2 != nil {
			return nil, fmt.Errorf("parse quiz: %w", err)
		}
		items = wrapped.Questions
	}

	out := items[:0]
	for _, it := range items {
		if it.Question != "" {
			out = append(out, it)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("parse quiz: no questions")
	}
	return out, nil
}

// ParseEvaluation reads {"status", "feedback", "hint", "score"}.
func ParseEvaluation(text string) Evaluation {
	var raw struct {
		Status   string `json:"status"`
		Feedback string `json:"feedback"`
		Hint     string `json:"hint"`
		Score    any    `json:"score"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &raw); err != nil {
		return Evaluation{Feedback: strings.TrimSpace(text)}
	}
	ev := Evaluation{
		Correct:  strings.TrimSpace(raw.Status) == "정답" || strings.EqualFold(strings.TrimSpace(raw.Status), "correct"),
		Feedback: raw.Feedback,
		Hint:     raw.Hint,
	}
	switch s := raw.Score.(type) {
	case float64:
		ev.Score = s
	case string:
		ev.Score, _ = strconv.ParseFloat(strings.TrimSpace(s), 64)
	}
	return ev
}

// FormatEntries renders diaries for prompts, oldest first.
func FormatEntries(entries []core.Document) string {
	var b strings.Builder
	for i, d := range entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s] %s\n%s", d.Metadata[core.MetaDate], d.Metadata[core.MetaTitle], d.Content)
	}
	return b.String()
}

func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// RecallSession walks one user through a quiz, question by question,
// allowing up to MaxAttempts answers each. It is not safe for concurrent use.
type RecallSession struct {
	engine   *Engine
	userID   string
	quiz     *Quiz
	current  int
	attempts int
	history  core.History
}

// AnswerResult is the outcome of one answer in a RecallSession.
type AnswerResult struct {
	Evaluation
	Question int  `json:"question"`
	Attempts int  `json:"attempts"`
	Advanced bool `json:"advanced"`
	Done     bool `json:"done"`
}

// NewRecallSession creates a recall session for userID.
func (e *Engine) NewRecallSession(userID string) (*RecallSession, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, core.E(core.ErrInvalidInput, "engine.NewRecallSession", errors.New("user_id is required"))
	}
	return &RecallSession{engine: e, userID: userID}, nil
}

// Start generates the quiz and returns the first question.
func (s *RecallSession) Start(ctx context.Context, date string) (QuizItem, error) {
	quiz, err := s.engine.GenerateQuiz(ctx, s.userID, date)
	if err != nil {
		return QuizItem{}, err
	}
	s.quiz = quiz
	s.current, s.attempts = 0, 0
	s.history.Reset()
	first := quiz.Items[0]
	s.history.Append(core.RoleAssistant, first.Question)
	return first, nil
}

// Quiz returns the quiz in progress, or nil before Start.
func (s *RecallSession) Quiz() *Quiz { return s.quiz }

// Current returns the question being asked. ok is false when the quiz has
// not started or is finished.
func (s *RecallSession) Current() (item QuizItem, ok bool) {
	if s.quiz == nil || s.current >= len(s.quiz.Items) {
		return QuizItem{}, false
	}
	return s.quiz.Items[s.current], true
}

// History returns the questions, answers and hints exchanged so far.
func (s *RecallSession) History() []core.Message { return s.history.Messages() }

// Answer grades an answer to the current question. The session moves to the
// next question on a correct answer or after MaxAttempts wrong ones.
func (s *RecallSession) Answer(ctx context.Context, answer string) (AnswerResult, error) {
	item, ok := s.Current()
	if !ok {
		return AnswerResult{}, core.E(core.ErrInvalidInput, "engine.Answer", errors.New("no question pending"))
	}
	ev, err := s.engine.EvaluateAnswer(ctx, item, answer, s.quiz.DiaryContent)
	if err != nil {
		return AnswerResult{}, err
	}
	s.history.Append(core.RoleUser, answer)
	s.attempts++

	res := AnswerResult{Evaluation: ev, Question: s.current, Attempts: s.attempts}
	if !ev.Correct && ev.Hint != "" {
		s.history.Append(core.RoleAssistant, ev.Hint)
	}
	if ev.Correct || s.attempts >= MaxAttempts {
		s.current++
		s.attempts = 0
		res.Advanced = true
		if next, ok := s.Current(); ok {
			s.history.Append(core.RoleAssistant, next.Question)
		} else {
			res.Done = true
		}
	}
	return res, nil
}
