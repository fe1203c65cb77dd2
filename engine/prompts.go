package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Prompts holds every prompt template the engine sends to a Generator.
// Templates use {name} placeholders; see Render.
type Prompts struct {
	// UserLabel and AssistantLabel name the speakers in transcripts.
	UserLabel      string
	AssistantLabel string

	EndCheck         string
	EndCheckQuestion string

	Keywords string // user text is sent as the message
	Query    string // {keywords}

	Daily  string // {profile_info} {chat_history}
	Recall string // {profile_info} {chat_history} {diary_content}

	ThemeSelect        string // {profile_info} {theme_list} {theme_counts}
	ThemeFirstQuestion string // {theme_name} {profile_info} {chat_history}
	ThemeFollowUp      string // {profile_info} {chat_history} {user_input}

	DiaryGen string // conversation is sent as messages

	Quiz       string // {date} {diary_content}
	Evaluation string // {recall_question} {recall_answer} {user_answer} {diary_content}
}

// DefaultPrompts returns the built-in Korean prompts.
func DefaultPrompts() *Prompts {
	return &Prompts{
		UserLabel:      "당신",
		AssistantLabel: "AI",

		EndCheck: "다음은 사용자와 챗봇 사이의 최근 대화입니다.\n" +
			"이 대화의 마지막 사용자 발화가 대화를 끝내려는 의도인지 판단해 주세요.\n" +
			"반드시 '예' 또는 '아니오'로만 대답해 주세요.\n" +
			"대화 시작 인사('안녕', '하이', '안녕하세요') 등은 종료가 아닙니다.",
		EndCheckQuestion: "위 대화에서 마지막 사용자의 발화는 대화를 끝내려는 의도입니까? 반드시 '예' 또는 '아니오'로만 대답하세요.",

		Keywords: "다음 문장에서 중요한 키워드 3개만 뽑아줘. 장소, 사람, 사건 중심으로. " +
			"다른 말은 붙이지 말고 쉼표로 구분한 키워드만 출력해.",
		Query: "다음 키워드를 기반으로 기존 일기에서 비슷한 내용이 있는지 검색할 거야. " +
			"다른 말을 덧붙이지 말고 검색을 위한 자연스러운 문장 쿼리 하나만 출력해. {keywords}",

		Daily: "너는 어르신의 하루 이야기를 따뜻하게 들어주는 말벗이야.\n" +
			"사용자 정보: {profile_info}\n" +
			"최근 대화:\n{chat_history}\n\n" +
			"공감하는 말과 함께 이야기를 더 이끌어낼 수 있는 짧은 질문 하나로 대답해. 두세 문장을 넘기지 마.",
		Recall: "너는 어르신의 과거 일기를 함께 떠올려 주는 말벗이야.\n" +
			"사용자 정보: {profile_info}\n" +
			"최근 대화:\n{chat_history}\n\n" +
			"관련된 과거 일기:\n{diary_content}\n\n" +
			"과거 일기가 지금 대화와 자연스럽게 이어진다면, 그때의 감정을 떠올리게 하는 따뜻한 대답을 두세 문장으로 해. " +
			"어울리지 않는다면 다른 말 없이 '아니오'라고만 대답해.",

		ThemeSelect: "사용자 정보: {profile_info}\n" +
			"회상 테마 목록:\n{theme_list}\n\n" +
			"테마별로 지금까지 나눈 이야기 수:\n{theme_counts}\n\n" +
			"사용자에게 가장 알맞고 아직 덜 이야기한 테마를 하나 골라 번호만 출력해.",
		ThemeFirstQuestion: "너는 어르신의 옛 기억을 함께 되짚는 말벗이야. 오늘의 테마는 '{theme_name}'이야.\n" +
			"사용자 정보: {profile_info}\n" +
			"최근 대화:\n{chat_history}\n\n" +
			"이 테마에 대한 추억을 꺼낼 수 있는 따뜻한 첫 질문 하나를 해.",
		ThemeFollowUp: "너는 어르신의 옛 기억을 함께 되짚는 말벗이야.\n" +
			"사용자 정보: {profile_info}\n" +
			"최근 대화:\n{chat_history}\n\n" +
			"사용자의 마지막 말: {user_input}\n" +
			"공감하는 말과 함께 기억을 더 구체적으로 떠올릴 수 있는 후속 질문 하나를 해.",

		DiaryGen: "지금까지의 대화를 바탕으로 사용자의 입장에서 일기를 써 줘.\n" +
			"반드시 다음 형식을 지켜:\n제목 : <제목>\n본문 : <본문>",

		Quiz: "오늘 날짜는 {date}이야. 아래는 사용자가 최근 일주일 동안 쓴 일기야.\n{diary_content}\n\n" +
			"일기 내용을 바탕으로 시간 지남력, 장소 지남력, 기억력을 확인하는 질문 3개를 만들어.\n" +
			"다른 말 없이 JSON 배열로만 출력해: " +
			`[{"유형": "시간 지남력", "질문": "...", "답변": "..."}, ...]`,
		Evaluation: "질문: {recall_question}\n정답: {recall_answer}\n사용자 답변: {user_answer}\n" +
			"참고 일기:\n{diary_content}\n\n" +
			"사용자 답변을 평가해서 다른 말 없이 JSON으로만 출력해: " +
			`{"status": "정답" 또는 "오답", "feedback": "...", "hint": "...", "score": 0.0~1.0}`,
	}
}

// promptFiles maps override file names to template fields.
func (p *Prompts) promptFiles() map[string]*string {
	return map[string]*string{
		"end_check.txt":            &p.EndCheck,
		"end_check_question.txt":   &p.EndCheckQuestion,
		"keywords.txt":             &p.Keywords,
		"query.txt":                &p.Query,
		"daily.txt":                &p.Daily,
		"recall.txt":               &p.Recall,
		"theme_select.txt":         &p.ThemeSelect,
		"theme_first_question.txt": &p.ThemeFirstQuestion,
		"theme_follow_up.txt":      &p.ThemeFollowUp,
		"diary_gen.txt":            &p.DiaryGen,
		"quiz.txt":                 &p.Quiz,
		"evaluation.txt":           &p.Evaluation,
	}
}

// LoadPrompts returns the defaults overridden by any template files found
// in dir. An empty dir returns the defaults.
func LoadPrompts(dir string) (*Prompts, error) {
	p := DefaultPrompts()
	if dir == "" {
		return p, nil
	}
	for name, field := range p.promptFiles() {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load prompt %s: %w", name, err)
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			*field = text
		}
	}
	return p, nil
}

// Render substitutes {name} placeholders with vars. Unknown placeholders
// are left as they are.
func (p *Prompts) Render(tpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
