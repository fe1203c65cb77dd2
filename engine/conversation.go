package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/nabiya/diarymem/core"
	"github.com/nabiya/diarymem/memory"
)

// historyLimit is how many recent messages reply prompts quote.
const historyLimit = 5

// Reply is the outcome of one user turn.
type Reply struct {
	Text    string      `json:"text"`
	Verdict Verdict     `json:"-"`
	Diary   *SavedDiary `json:"diary,omitempty"`
}

// SavedDiary is a diary that was written to the store.
type SavedDiary struct {
	Diary
	Document core.Document `json:"document"`
}

// Conversation is one daily or theme dialogue with one user. It owns its
// history and End-Detector and is not safe for concurrent use.
type Conversation struct {
	ID string

	engine   *Engine
	userID   string
	kind     core.Kind
	theme    string
	history  core.History
	detector *EndDetector
	onChunk  func(string)

	// unsaved is set once the ending is confirmed and cleared when the
	// diary is written.
	unsaved bool
}

// NewConversation starts a conversation of the given kind for userID.
func (e *Engine) NewConversation(userID string, kind core.Kind) (*Conversation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, core.E(core.ErrInvalidInput, "engine.NewConversation", errors.New("user_id is required"))
	}
	if kind != core.KindDaily && kind != core.KindTheme {
		return nil, core.E(core.ErrInvalidInput, "engine.NewConversation", fmt.Errorf("unknown conversation kind %q", kind))
	}
	return &Conversation{
		ID:       uuid.NewString(),
		engine:   e,
		userID:   userID,
		kind:     kind,
		detector: NewEndDetector(e.classifier),
	}, nil
}

// Kind returns the conversation type.
func (c *Conversation) Kind() core.Kind { return c.kind }

// Theme returns the selected theme of a theme conversation.
func (c *Conversation) Theme() string { return c.theme }

// History returns a copy of the transcript.
func (c *Conversation) History() []core.Message { return c.history.Messages() }

// AwaitingConfirmation reports whether the user was asked to confirm ending.
func (c *Conversation) AwaitingConfirmation() bool { return c.detector.Awaiting() }

// Unsaved reports whether the ending was confirmed but the diary write
// failed, so Finish may retry it.
func (c *Conversation) Unsaved() bool { return c.unsaved }

// OnChunk makes plain replies stream to fn as they are generated, when the
// engine's Generator can stream. Recall replies are never streamed because
// they may still be rejected once complete.
func (c *Conversation) OnChunk(fn func(string)) { c.onChunk = fn }

// Start opens the conversation and returns the assistant's first message.
// Daily conversations open with a fixed greeting; theme conversations pick
// a theme and ask a first question about it.
func (c *Conversation) Start(ctx context.Context) (string, error) {
	e := c.engine
	if c.kind == core.KindDaily {
		c.history.Append(core.RoleAssistant, e.phrases.Greeting)
		return e.phrases.Greeting, nil
	}

	info := profileInfo(ctx, e.profiles, c.userID, e.now())
	counts, err := e.memory.ThemeCounts(ctx, c.userID)
	if err != nil {
		log.WithError(err).WithField("user_id", c.userID).Warn("[CONVERSATION] theme statistics unavailable")
	}
	c.theme = SelectTheme(ctx, e.gen, e.prompts, e.themes, counts, info)

	question, err := c.complete(ctx, Completion{
		System: e.prompts.Render(e.prompts.ThemeFirstQuestion, map[string]string{
			"theme_name":   c.theme,
			"profile_info": info,
			"chat_history": c.transcript(),
		}),
		MaxTokens:   200,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("first theme question: %w", err)
	}
	c.history.Append(core.RoleAssistant, question)

	log.WithFields(log.Fields{
		"user_id": c.userID,
		"theme":   c.theme,
	}).Info("[CONVERSATION] theme conversation started")
	return question, nil
}

// Ask handles one user turn. The End-Detector runs first: a first ending
// signal yields a confirmation question, a second one writes the diary.
func (c *Conversation) Ask(ctx context.Context, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, core.E(core.ErrInvalidInput, "engine.Ask", errors.New("empty message"))
	}
	e := c.engine
	c.history.Append(core.RoleUser, text)

	switch verdict := c.detector.Evaluate(ctx, c.history.Messages()); verdict {
	case Pending:
		c.history.Append(core.RoleAssistant, e.phrases.ConfirmEnd)
		return Reply{Text: e.phrases.ConfirmEnd, Verdict: Pending}, nil

	case Confirmed:
		c.history.Append(core.RoleAssistant, e.phrases.Farewell)
		c.unsaved = true
		saved, err := c.save(ctx)
		if err != nil {
			return Reply{
				Text:    e.phrases.Farewell + "\n\n" + e.phrases.DiaryFailed,
				Verdict: Confirmed,
			}, err
		}
		return Reply{
			Text:    e.phrases.Farewell + "\n\n" + e.phrases.DiarySaved,
			Verdict: Confirmed,
			Diary:   saved,
		}, nil
	}

	var (
		reply string
		err   error
	)
	if c.kind == core.KindTheme {
		reply, err = c.followUp(ctx, text)
	} else {
		reply, err = c.dailyReply(ctx)
	}
	if err != nil {
		return Reply{}, err
	}
	c.history.Append(core.RoleAssistant, reply)
	return Reply{Text: reply, Verdict: NotEnding}, nil
}

// Finish retries the diary write of a confirmed ending whose save failed.
// A diary is only ever written after the End-Detector confirmed the ending,
// so Finish fails with core.ErrInvalidInput otherwise.
func (c *Conversation) Finish(ctx context.Context) (*SavedDiary, error) {
	if !c.unsaved {
		return nil, core.E(core.ErrInvalidInput, "engine.Finish", errors.New("no confirmed ending awaits saving"))
	}
	return c.save(ctx)
}

// save turns the conversation into a diary and indexes it.
func (c *Conversation) save(ctx context.Context) (*SavedDiary, error) {
	e := c.engine
	text, err := e.gen.Complete(ctx, Completion{
		System:      e.prompts.DiaryGen,
		Messages:    c.history.Messages(),
		MaxTokens:   600,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("generate diary: %w", err)
	}

	diary := ParseDiary(text, e.phrases.UntitledDiary)
	meta := core.Metadata{
		core.MetaDate:  e.today(),
		core.MetaTitle: diary.Title,
		core.MetaKind:  string(c.kind),
	}
	if c.kind == core.KindTheme {
		diary.Theme = c.theme
		meta[core.MetaTheme] = c.theme
	} else {
		meta[core.MetaDailyDiary] = string(core.KindDaily)
	}

	doc, err := e.memory.IndexEntry(ctx, c.userID, diary.Body, meta)
	if err != nil {
		return nil, fmt.Errorf("save diary: %w", err)
	}

	c.unsaved = false

	log.WithFields(log.Fields{
		"user_id": c.userID,
		"kind":    c.kind,
		"title":   diary.Title,
	}).Info("[CONVERSATION] diary saved")
	return &SavedDiary{Diary: diary, Document: doc}, nil
}

// dailyReply recalls related past diaries when there are any and falls
// back to an ordinary reply.
func (c *Conversation) dailyReply(ctx context.Context) (string, error) {
	e := c.engine
	info := profileInfo(ctx, e.profiles, c.userID, e.now())
	last := c.history.Last(1)[0].Content

	if reply, ok := c.recall(ctx, info, last); ok {
		return reply, nil
	}

	reply, err := c.complete(ctx, Completion{
		System: e.prompts.Render(e.prompts.Daily, map[string]string{
			"profile_info": info,
			"chat_history": c.transcript(),
		}),
		MaxTokens:   200,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("daily reply: %w", err)
	}
	return reply, nil
}

// recall searches the user's diaries for the keywords of text and asks for
// a reply grounded in them. ok is false when nothing relevant was found or
// the generator judged the memories unrelated.
func (c *Conversation) recall(ctx context.Context, info, text string) (string, bool) {
	e := c.engine
	logger := log.WithField("user_id", c.userID)

	keywords, err := ExtractKeywords(ctx, e.gen, e.prompts, text)
	if err != nil {
		logger.WithError(err).Warn("[CONVERSATION] keyword extraction failed")
		return "", false
	}
	if len(keywords) == 0 {
		return "", false
	}

	query := BuildQuery(ctx, e.gen, e.prompts, keywords)
	matches, err := e.memory.HybridSearch(ctx, c.userID, keywords, query, e.memory.DefaultSearchOptions())
	if err != nil {
		logger.WithError(err).Warn("[CONVERSATION] recall search failed")
		return "", false
	}
	if len(matches) == 0 {
		return "", false
	}

	reply, err := e.gen.Complete(ctx, Completion{
		System: e.prompts.Render(e.prompts.Recall, map[string]string{
			"profile_info":  info,
			"chat_history":  c.transcript(),
			"diary_content": formatMatches(matches),
		}),
		MaxTokens:   300,
		Temperature: 0.7,
	})
	if err != nil {
		logger.WithError(err).Warn("[CONVERSATION] recall reply failed")
		return "", false
	}
	if strings.Contains(reply, e.phrases.RecallUnrelated) {
		logger.Debug("[CONVERSATION] recalled diaries do not fit, replying normally")
		return "", false
	}
	return reply, true
}

func (c *Conversation) followUp(ctx context.Context, text string) (string, error) {
	e := c.engine
	reply, err := c.complete(ctx, Completion{
		System: e.prompts.Render(e.prompts.ThemeFollowUp, map[string]string{
			"profile_info": profileInfo(ctx, e.profiles, c.userID, e.now()),
			"chat_history": c.transcript(),
			"user_input":   text,
		}),
		MaxTokens:   200,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("theme follow-up: %w", err)
	}
	return reply, nil
}

func (c *Conversation) complete(ctx context.Context, req Completion) (string, error) {
	if sg, ok := c.engine.gen.(StreamingGenerator); ok && c.onChunk != nil {
		return sg.Stream(ctx, req, c.onChunk)
	}
	return c.engine.gen.Complete(ctx, req)
}

func (c *Conversation) transcript() string {
	p := c.engine.prompts
	return core.Transcript(c.history.Last(historyLimit), p.UserLabel, p.AssistantLabel)
}

func formatMatches(matches []memory.Match) string {
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = fmt.Sprintf("[%s]\n%s", strings.Join(m.MatchedKeywords, ", "), m.Document.Content)
	}
	return strings.Join(parts, "\n\n")
}
