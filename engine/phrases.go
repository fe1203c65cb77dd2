package engine

// Phrases are the fixed user-facing sentences of the dialogue. The memory
// store never produces user text; everything shown to the user comes from
// here or from a Generator.
type Phrases struct {
	Greeting        string `toml:"greeting"`
	ConfirmEnd      string `toml:"confirm_end"`
	Farewell        string `toml:"farewell"`
	DiarySaved      string `toml:"diary_saved"`
	DiaryFailed     string `toml:"diary_failed"`
	Fallback        string `toml:"fallback"`
	UntitledDiary   string `toml:"untitled_diary"`
	NoRecentDiary   string `toml:"no_recent_diary"`
	RecallUnrelated string `toml:"recall_unrelated"`
}

// DefaultPhrases returns the built-in Korean phrases.
func DefaultPhrases() Phrases {
	return Phrases{
		Greeting:        "안녕하세요. 오늘 하루는 어땠어요? 기억에 남는 일이 있었나요?",
		ConfirmEnd:      "혹시 지금 대화를 마무리하시고 싶으신가요? 다른 이야기는 다음에 또 나눠요 😊",
		Farewell:        "오늘 이야기를 들을 수 있어서 기뻤어요. 내일도 기다리고 있을게요 😊",
		DiarySaved:      "(일기가 저장되었어요.)",
		DiaryFailed:     "(일기를 저장하지 못했어요. 잠시 후 다시 시도해 주세요.)",
		Fallback:        "음... 지금은 대화가 조금 어려운 것 같아요. 조금 있다가 다시 얘기해볼까요?",
		UntitledDiary:   "무제",
		NoRecentDiary:   "최근 일주일 동안 쓴 일기가 없어요.",
		RecallUnrelated: "아니오",
	}
}

// withDefaults fills empty fields from DefaultPhrases.
func (p Phrases) withDefaults() Phrases {
	d := DefaultPhrases()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&p.Greeting, d.Greeting)
	fill(&p.ConfirmEnd, d.ConfirmEnd)
	fill(&p.Farewell, d.Farewell)
	fill(&p.DiarySaved, d.DiarySaved)
	fill(&p.DiaryFailed, d.DiaryFailed)
	fill(&p.Fallback, d.Fallback)
	fill(&p.UntitledDiary, d.UntitledDiary)
	fill(&p.NoRecentDiary, d.NoRecentDiary)
	fill(&p.RecallUnrelated, d.RecallUnrelated)
	return p
}
