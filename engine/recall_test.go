package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabiya/diarymem/core"
	"github.com/nabiya/diarymem/engine"
)

const quizReply = "```json\n" + `[
  {"유형": "시간 지남력", "질문": "어제는 무슨 요일이었나요?", "답변": "토요일"},
  {"유형": "장소 지남력", "질문": "가족과 어디서 점심을 드셨나요?", "답변": "한정식집"},
  {"유형": "기억력", "질문": "누구와 함께 가셨나요?", "답변": "딸"}
]` + "\n```"

func windowEntries() []core.Document {
	return []core.Document{
		{ID: "1", Content: "딸과 한정식집에서 점심을 먹었다.", Metadata: core.Metadata{
			core.MetaDate: "2024-03-09", core.MetaTitle: "가족 점심",
		}},
		{ID: "2", Content: "공원을 산책했다.", Metadata: core.Metadata{
			core.MetaDate: "2024-03-10", core.MetaTitle: "산책",
		}},
	}
}

func TestParseQuiz(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []engine.QuizItem
	}{
		{
			name: "korean keys in fence",
			in:   quizReply,
			want: []engine.QuizItem{
				{Type: "시간 지남력", Question: "어제는 무슨 요일이었나요?", Answer: "토요일"},
				{Type: "장소 지남력", Question: "가족과 어디서 점심을 드셨나요?", Answer: "한정식집"},
				{Type: "기억력", Question: "누구와 함께 가셨나요?", Answer: "딸"},
			},
		},
		{
			name: "wrapped english keys",
			in:   `{"questions": [{"type": "memory", "question": "Who came?", "answer": "daughter"}]}`,
			want: []engine.QuizItem{{Type: "memory", Question: "Who came?", Answer: "daughter"}},
		},
		{
			name: "items without questions are dropped",
			in:   `[{"질문": ""}, {"질문": "몇 시에 일어나셨나요?", "답변": 7}]`,
			want: []engine.QuizItem{{Question: "몇 시에 일어나셨나요?", Answer: "7"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.ParseQuiz(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseQuiz_Errors(t *testing.T) {
	for _, in := range []string{"", "질문을 만들 수 없어요", "[]", `{"questions": []}`} {
		_, err := engine.ParseQuiz(in)
		assert.Error(t, err, in)
	}
}

func TestParseEvaluation(t *testing.T) {
	ev := engine.ParseEvaluation(`{"status": "정답", "feedback": "잘 기억하셨어요!", "score": 1}`)
	assert.Equal(t, engine.Evaluation{Correct: true, Feedback: "잘 기억하셨어요!", Score: 1}, ev)

	ev = engine.ParseEvaluation("```json\n{\"status\": \"오답\", \"feedback\": \"아쉬워요\", \"hint\": \"딸과 함께였어요\", \"score\": \"0.3\"}\n```")
	assert.False(t, ev.Correct)
	assert.Equal(t, "딸과 함께였어요", ev.Hint)
	assert.InDelta(t, 0.3, ev.Score, 1e-9)

	ev = engine.ParseEvaluation("잘 모르겠어요")
	assert.Equal(t, engine.Evaluation{Feedback: "잘 모르겠어요"}, ev)
}

func TestGenerateQuiz(t *testing.T) {
	gen := &routeGen{routes: []route{{marker: markQuiz, reply: quizReply}}}
	e := newEngine(gen, &fakeMemory{window: windowEntries()})

	quiz, err := e.GenerateQuiz(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", quiz.Date)
	assert.Len(t, quiz.Items, 3)
	assert.Len(t, quiz.Entries, 2)

	calls := gen.callsMatching(markQuiz)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "오늘 날짜는 2024-03-10")
	assert.Contains(t, calls[0].System, "[2024-03-09] 가족 점심\n딸과 한정식집에서 점심을 먹었다.")
}

func TestGenerateQuiz_NoEntries(t *testing.T) {
	e := newEngine(&routeGen{}, &fakeMemory{})

	_, err := e.GenerateQuiz(context.Background(), "u1", "2024-03-10")
	assert.ErrorIs(t, err, engine.ErrNoEntries)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestGenerateQuiz_InvalidDate(t *testing.T) {
	e := newEngine(&routeGen{}, &fakeMemory{window: windowEntries()})

	_, err := e.GenerateQuiz(context.Background(), "u1", "2024/03/10")
	assert.ErrorIs(t, err, core.ErrInvalidDate)
}

func TestEvaluateAnswer(t *testing.T) {
	gen := &routeGen{routes: []route{{marker: markEvaluate, reply: `{"status": "정답", "feedback": "맞아요", "score": 1.0}`}}}
	e := newEngine(gen, &fakeMemory{})

	item := engine.QuizItem{Question: "누구와 함께 가셨나요?", Answer: "딸"}
	ev, err := e.EvaluateAnswer(context.Background(), item, "딸이랑 갔어요", "일기")
	require.NoError(t, err)
	assert.True(t, ev.Correct)

	call := gen.callsMatching(markEvaluate)[0]
	assert.Contains(t, call.System, "질문: 누구와 함께 가셨나요?")
	assert.Contains(t, call.System, "사용자 답변: 딸이랑 갔어요")

	_, err = e.EvaluateAnswer(context.Background(), item, " ", "일기")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestRecallSession(t *testing.T) {
	gen := &routeGen{routes: []route{
		{marker: markQuiz, reply: quizReply},
		{marker: markEvaluate, reply: `{"status": "오답", "feedback": "다시 생각해 볼까요", "hint": "주말이었어요", "score": 0}`},
	}}
	e := newEngine(gen, &fakeMemory{window: windowEntries()})
	ctx := context.Background()

	s, err := e.NewRecallSession("u1")
	require.NoError(t, err)
	_, err = s.Answer(ctx, "월요일")
	assert.ErrorIs(t, err, core.ErrInvalidInput, "answer before start")

	first, err := s.Start(ctx, "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, "어제는 무슨 요일이었나요?", first.Question)

	// Wrong answers move on after MaxAttempts.
	for i := 1; i <= engine.MaxAttempts; i++ {
		res, err := s.Answer(ctx, "월요일")
		require.NoError(t, err)
		assert.Equal(t, i, res.Attempts)
		assert.Equal(t, i == engine.MaxAttempts, res.Advanced)
		assert.Equal(t, "주말이었어요", res.Hint)
	}
	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "가족과 어디서 점심을 드셨나요?", cur.Question)

	// A correct answer moves on at once.
	gen.set(markEvaluate, `{"status": "정답", "feedback": "맞아요", "score": 1}`, nil)
	res, err := s.Answer(ctx, "한정식집")
	require.NoError(t, err)
	assert.True(t, res.Advanced)
	assert.False(t, res.Done)

	res, err = s.Answer(ctx, "딸")
	require.NoError(t, err)
	assert.True(t, res.Done)
	_, ok = s.Current()
	assert.False(t, ok)

	msgs := s.History()
	assert.Equal(t, core.RoleAssistant, msgs[0].Role)
	assert.Equal(t, "어제는 무슨 요일이었나요?", msgs[0].Content)
}

func TestNewRecallSession_RequiresUser(t *testing.T) {
	_, err := newEngine(&routeGen{}, &fakeMemory{}).NewRecallSession("")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
