// Package engine runs the diary dialogues on top of the memory store: the
// daily and theme conversations, the End-Detector that gates diary writes,
// and the recall quiz.
package engine

import (
	"context"
	"time"

	"github.com/nabiya/diarymem/core"
	"github.com/nabiya/diarymem/memory"
)

// Memory is the part of the diary store the dialogues use.
// *memory.Store implements it.
type Memory interface {
	IndexEntry(ctx context.Context, userID, text string, meta core.Metadata) (core.Document, error)
	HybridSearch(ctx context.Context, userID string, keywords []string, query string, opts memory.SearchOptions) ([]memory.Match, error)
	DefaultSearchOptions() memory.SearchOptions
	EntriesInWindow(ctx context.Context, userID, referenceDate string, windowDays int) ([]core.Document, error)
	ThemeCounts(ctx context.Context, userID string) ([]memory.ThemeCount, error)
}

// Engine creates conversations and recall sessions that share one
// Generator and one Memory.
type Engine struct {
	gen        Generator
	memory     Memory
	classifier IntentClassifier // Optional: defaults to an LLMClassifier over gen
	profiles   ProfileSource    // Optional: profiles for prompts
	prompts    *Prompts
	phrases    Phrases
	themes     []string
	windowDays int
	now        func() time.Time
}

// Option configures the engine.
type Option func(*Engine)

// WithClassifier sets the end-of-conversation classifier.
func WithClassifier(c IntentClassifier) Option {
	return func(e *Engine) {
		e.classifier = c
	}
}

// WithProfiles sets the user profile source.
func WithProfiles(p ProfileSource) Option {
	return func(e *Engine) {
		e.profiles = p
	}
}

// WithPrompts replaces the prompt templates.
func WithPrompts(p *Prompts) Option {
	return func(e *Engine) {
		if p != nil {
			e.prompts = p
		}
	}
}

// WithPhrases replaces the user-facing phrases. Empty fields keep their
// defaults.
func WithPhrases(p Phrases) Option {
	return func(e *Engine) {
		e.phrases = p.withDefaults()
	}
}

// WithThemes replaces the theme catalogue.
func WithThemes(themes []string) Option {
	return func(e *Engine) {
		if len(themes) > 0 {
			e.themes = append([]string(nil), themes...)
		}
	}
}

// WithWindowDays sets the recall quiz window.
func WithWindowDays(days int) Option {
	return func(e *Engine) {
		if days > 0 {
			e.windowDays = days
		}
	}
}

// WithClock replaces time.Now for diary dates and ages.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine.
func New(gen Generator, mem Memory, opts ...Option) *Engine {
	e := &Engine{
		gen:        gen,
		memory:     mem,
		prompts:    DefaultPrompts(),
		phrases:    DefaultPhrases(),
		themes:     DefaultThemes,
		windowDays: 7,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.classifier == nil {
		e.classifier = NewLLMClassifier(gen, e.prompts)
	}
	return e
}

// Phrases returns the user-facing phrases in use.
func (e *Engine) Phrases() Phrases {
	return e.phrases
}

func (e *Engine) today() string {
	return e.now().Format(core.DateLayout)
}
