package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	log "github.com/sirupsen/logrus"

	"github.com/nabiya/diarymem/config"
	"github.com/nabiya/diarymem/engine"
	"github.com/nabiya/diarymem/memory"
	"github.com/nabiya/diarymem/memory/embedder/cache"
	"github.com/nabiya/diarymem/memory/embedder/mock"
	"github.com/nabiya/diarymem/memory/embedder/openai"
)

// app holds what the commands share. close releases it in reverse order.
type app struct {
	store   *memory.Store
	engine  *engine.Engine
	closers []func()
}

// openStore builds the embedder and opens the diary index.
func openStore(ctx context.Context) (*app, error) {
	emb, closeEmb, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	a := &app{}
	a.closers = append(a.closers, closeEmb)

	if cfg.Embedder.CacheEntries > 0 {
		cached, err := cache.New(emb, cache.Config{MaxEntries: cfg.Embedder.CacheEntries})
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, cached.Close)
		emb = cached
	}

	store, err := memory.Open(ctx, emb, cfg.MemoryConfig())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open diary index: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func() { _ = store.Close() })

	log.WithFields(log.Fields{
		"path":     cfg.Store.Path,
		"embedder": cfg.Embedder.Provider,
		"entries":  store.Len(),
	}).Info("[MEMORY] diary index opened")
	return a, nil
}

// openEngine opens the store and adds the dialogue engine, which needs an
// Anthropic key.
func openEngine(ctx context.Context) (*app, error) {
	if cfg.LLM.APIKey == "" {
		return nil, errors.New(config.EnvAnthropicKey + " is required")
	}
	a, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	prompts, err := engine.LoadPrompts(cfg.Dialogue.PromptDir)
	if err != nil {
		a.close()
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.LLM.APIKey),
		option.WithRequestTimeout(cfg.LLM.Timeout.Duration),
	}
	if cfg.LLM.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.LLM.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	claude := engine.NewClaude(&client,
		engine.WithModel(cfg.LLM.Model),
		engine.WithMaxTokens(cfg.LLM.MaxTokens),
	)

	engineOpts := []engine.Option{
		engine.WithPrompts(prompts),
		engine.WithPhrases(cfg.Dialogue.Phrases),
		engine.WithThemes(cfg.Dialogue.Themes),
		engine.WithWindowDays(cfg.Store.WindowDays),
	}
	if cfg.Profiles.Endpoint != "" {
		engineOpts = append(engineOpts,
			engine.WithProfiles(engine.NewHTTPProfiles(cfg.Profiles.Endpoint, cfg.Profiles.Timeout.Duration)))
	}
	a.engine = engine.New(claude, a.store, engineOpts...)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newEmbedder(c config.EmbedderConfig) (memory.Embedder, func(), error) {
	switch c.Provider {
	case config.ProviderMock, "":
		if c.Mock.Dimensions > 0 {
			return mock.NewWithDimensions(c.Mock.Dimensions), func() {}, nil
		}
		return mock.New(), func() {}, nil
	case config.ProviderOpenAI:
		emb, err := openai.New(openai.Config{
			APIKey:     c.OpenAI.APIKey,
			BaseURL:    c.OpenAI.BaseURL,
			Model:      c.OpenAI.Model,
			Dimensions: c.OpenAI.Dimensions,
			Retries:    c.OpenAI.Retries,
		})
		if err != nil {
			return nil, nil, err
		}
		return emb, func() {}, nil
	case config.ProviderONNX:
		return newONNXEmbedder(c.ONNX)
	default:
		return nil, nil, fmt.Errorf("unknown embedder provider %q", c.Provider)
	}
}
