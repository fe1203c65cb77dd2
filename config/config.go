// Package config loads diaryd settings: built-in defaults, then a TOML
// file, then .env and process environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/nabiya/diarymem/engine"
	"github.com/nabiya/diarymem/memory"
)

// Environment variables that override the file.
const (
	EnvConfigFile   = "DIARY_CONFIG"
	EnvIndexPath    = "DIARY_INDEX_PATH"
	EnvAddr         = "DIARY_ADDR"
	EnvLogLevel     = "DIARY_LOG_LEVEL"
	EnvEmbedder     = "DIARY_EMBEDDER"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvOpenAIKey    = "OPENAI_API_KEY"
)

// DefaultFile is read when no path is given and DIARY_CONFIG is unset.
const DefaultFile = "diary.toml"

// Embedder providers.
const (
	ProviderMock   = "mock"
	ProviderOpenAI = "openai"
	ProviderONNX   = "onnx"
)

// Config is the whole diaryd configuration.
type Config struct {
	Store    StoreConfig    `toml:"store"`
	Embedder EmbedderConfig `toml:"embedder"`
	LLM      LLMConfig      `toml:"llm"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
	Profiles ProfilesConfig `toml:"profiles"`
	Dialogue DialogueConfig `toml:"dialogue"`
}

type StoreConfig struct {
	Path                string   `toml:"path"`
	EmbedTimeout        Duration `toml:"embed_timeout"`
	TopK                int      `toml:"top_k"`
	ScoreThreshold      float64  `toml:"score_threshold"`
	MinMatch            int      `toml:"min_match"`
	CandidateMultiplier int      `toml:"candidate_multiplier"`
	WindowDays          int      `toml:"window_days"`
	EmbedConcurrency    int      `toml:"embed_concurrency"`
	Watch               bool     `toml:"watch"`
	WatchDebounce       Duration `toml:"watch_debounce"`
}

type EmbedderConfig struct {
	Provider     string       `toml:"provider"`
	CacheEntries int64        `toml:"cache_entries"`
	Mock         MockConfig   `toml:"mock"`
	OpenAI       OpenAIConfig `toml:"openai"`
	ONNX         ONNXConfig   `toml:"onnx"`
}

type MockConfig struct {
	Dimensions int `toml:"dimensions"`
}

type OpenAIConfig struct {
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	Retries    int    `toml:"retries"`
}

type ONNXConfig struct {
	LibraryPath   string `toml:"library_path"`
	ModelPath     string `toml:"model_path"`
	TokenizerPath string `toml:"tokenizer_path"`
	Dimensions    int    `toml:"dimensions"`
}

type LLMConfig struct {
	APIKey    string   `toml:"api_key"`
	BaseURL   string   `toml:"base_url"`
	Model     string   `toml:"model"`
	MaxTokens int64    `toml:"max_tokens"`
	Timeout   Duration `toml:"timeout"`
}

type ServerConfig struct {
	Addr           string   `toml:"addr"`
	GinMode        string   `toml:"gin_mode"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type ProfilesConfig struct {
	// Endpoint is a user service answering GET ?user_id=. Empty disables
	// profile lookups.
	Endpoint string   `toml:"endpoint"`
	Timeout  Duration `toml:"timeout"`
}

type DialogueConfig struct {
	PromptDir string         `toml:"prompt_dir"`
	Themes    []string       `toml:"themes"`
	Phrases   engine.Phrases `toml:"phrases"`
}

// Default returns the built-in configuration.
func Default() *Config {
	store := memory.DefaultConfig
	return &Config{
		Store: StoreConfig{
			Path:                store.Path,
			EmbedTimeout:        Duration{store.EmbedTimeout},
			TopK:                store.TopK,
			ScoreThreshold:      store.ScoreThreshold,
			MinMatch:            store.MinMatch,
			CandidateMultiplier: store.CandidateMultiplier,
			WindowDays:          store.WindowDays,
			EmbedConcurrency:    store.EmbedConcurrency,
			Watch:               true,
			WatchDebounce:       Duration{memory.DefaultWatchDebounce},
		},
		Embedder: EmbedderConfig{
			Provider:     ProviderMock,
			CacheEntries: 10000,
		},
		LLM: LLMConfig{
			Model:     engine.DefaultModel,
			MaxTokens: 1024,
			Timeout:   Duration{60 * time.Second},
		},
		Server: ServerConfig{
			Addr:    ":8080",
			GinMode: "release",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Profiles: ProfilesConfig{
			Timeout: Duration{5 * time.Second},
		},
	}
}

// Load builds the configuration. path names a TOML file; when empty,
// DIARY_CONFIG or DefaultFile is tried and a missing file is not an error.
// A .env file in the working directory is loaded without overriding
// variables that are already set.
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = getEnv(EnvConfigFile, DefaultFile)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	overrideByEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideByEnv(cfg *Config) {
	cfg.Store.Path = getEnv(EnvIndexPath, cfg.Store.Path)
	cfg.Server.Addr = getEnv(EnvAddr, cfg.Server.Addr)
	cfg.Log.Level = getEnv(EnvLogLevel, cfg.Log.Level)
	cfg.Embedder.Provider = getEnv(EnvEmbedder, cfg.Embedder.Provider)
	cfg.LLM.APIKey = getEnv(EnvAnthropicKey, cfg.LLM.APIKey)
	cfg.Embedder.OpenAI.APIKey = getEnv(EnvOpenAIKey, cfg.Embedder.OpenAI.APIKey)
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	switch c.Embedder.Provider {
	case ProviderMock, ProviderONNX:
	case ProviderOpenAI:
		if c.Embedder.OpenAI.APIKey == "" {
			errs = append(errs, fmt.Errorf("embedder.openai.api_key or %s is required", EnvOpenAIKey))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedder provider %q", c.Embedder.Provider))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Store.WindowDays < 0 {
		errs = append(errs, errors.New("store.window_days must not be negative"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// MemoryConfig returns the store settings in the memory package's form.
func (c *Config) MemoryConfig() *memory.Config {
	return &memory.Config{
		Path:                c.Store.Path,
		EmbedTimeout:        c.Store.EmbedTimeout.Duration,
		TopK:                c.Store.TopK,
		ScoreThreshold:      c.Store.ScoreThreshold,
		MinMatch:            c.Store.MinMatch,
		CandidateMultiplier: c.Store.CandidateMultiplier,
		WindowDays:          c.Store.WindowDays,
		EmbedConcurrency:    c.Store.EmbedConcurrency,
	}
}

// Duration is a time.Duration written as "30s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if secs, err := strconv.Atoi(s); err == nil {
		d.Duration = time.Duration(secs) * time.Second
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
