package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nabiya/diarymem/core"
	"github.com/nabiya/diarymem/memory/index"
)

// Config holds Store configuration.
type Config struct {
	// Path is the index file. It is read at Open and rewritten after every write.
	Path string

	// EmbedTimeout bounds each embedding call. Zero means no bound beyond ctx.
	EmbedTimeout time.Duration

	// TopK is the default number of hybrid search results.
	TopK int

	// ScoreThreshold is the default maximum distance for hybrid search.
	// Distances range from 0 (identical) to 4 (opposite); 2.0 keeps
	// everything with non-negative cosine similarity.
	ScoreThreshold float64

	// MinMatch is the default minimum number of matched keywords.
	MinMatch int

	// CandidateMultiplier sets the candidate pool size as TopK * CandidateMultiplier.
	CandidateMultiplier int

	// WindowDays is the default date-window length.
	WindowDays int

	// EmbedConcurrency caps parallel embedding calls in IndexEntries.
	EmbedConcurrency int
}

// DefaultConfig returns the defaults used by the recall dialogue.
var DefaultConfig = &Config{
	Path:                "vectorstore/diary.db",
	EmbedTimeout:        30 * time.Second,
	TopK:                3,
	ScoreThreshold:      2.0,
	MinMatch:            1,
	CandidateMultiplier: 10,
	WindowDays:          7,
	EmbedConcurrency:    4,
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, which stamps missing diary dates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is the tenant-isolated diary archive.
//
// Writers (IndexEntry, IndexEntries, Reload) are serialised by a store-wide
// lock; searches and scans share a read lock and never observe a half-merged
// index.
type Store struct {
	mu       sync.RWMutex
	idx      *index.Index
	embedder Embedder
	config   *Config
	now      func() time.Time
}

// Open loads the index at config.Path, or starts empty when the file does
// not exist. An unreadable index is returned as core.ErrStorage.
func Open(ctx context.Context, embedder Embedder, config *Config, opts ...Option) (*Store, error) {
	if embedder == nil {
		return nil, core.E(core.ErrInvalidInput, "memory.Open", errors.New("embedder is required"))
	}
	if config == nil {
		config = DefaultConfig
	}
	cfg := *config
	applyDefaults(&cfg)

	idx, err := index.Load(ctx, cfg.Path, embedder)
	if err != nil {
		return nil, err
	}

	s := &Store{
		idx:      idx,
		embedder: embedder,
		config:   &cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Path == "" {
		cfg.Path = DefaultConfig.Path
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig.TopK
	}
	if cfg.ScoreThreshold <= 0 {
		cfg.ScoreThreshold = DefaultConfig.ScoreThreshold
	}
	if cfg.MinMatch < 0 {
		cfg.MinMatch = 0
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = DefaultConfig.CandidateMultiplier
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = DefaultConfig.WindowDays
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = DefaultConfig.EmbedConcurrency
	}
}

// Config returns a copy of the effective configuration.
func (s *Store) Config() Config {
	return *s.config
}

// Len returns the number of documents across all users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.Len()
}

// Entry is one diary text to index.
type Entry struct {
	Text     string
	Metadata core.Metadata
}

// IndexEntry stores one diary entry for userID and persists the index.
// Calling it twice with the same text stores two documents.
func (s *Store) IndexEntry(ctx context.Context, userID, text string, meta core.Metadata) (core.Document, error) {
	docs, err := s.IndexEntries(ctx, userID, []Entry{{Text: text, Metadata: meta}})
	if err != nil {
		return core.Document{}, err
	}
	return docs[0], nil
}

// IndexEntries stores several entries for userID with a single merge and a
// single commit. Either all of them become durable or none do. Entries that
// other processes committed to the same file are loaded first and kept.
func (s *Store) IndexEntries(ctx context.Context, userID string, entries []Entry) ([]core.Document, error) {
	const op = "memory.IndexEntries"

	if strings.TrimSpace(userID) == "" {
		return nil, core.E(core.ErrInvalidInput, op, errors.New("user_id is required"))
	}
	if len(entries) == 0 {
		return nil, core.E(core.ErrInvalidInput, op, errors.New("no entries"))
	}

	docs := make([]core.Document, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Text) == "" {
			return nil, core.E(core.ErrInvalidInput, op, fmt.Errorf("entry %d has no text", i))
		}
		meta := e.Metadata.Clone()
		meta[core.MetaUserID] = userID
		if raw, ok := meta[core.MetaDate]; !ok || raw == "" {
			meta[core.MetaDate] = s.now().Format(core.DateLayout)
		} else if _, err := time.Parse(core.DateLayout, raw); err != nil {
			return nil, core.E(core.ErrInvalidDate, op, fmt.Errorf("entry %d date %q", i, raw))
		}
		docs[i] = core.Document{
			ID:       uuid.NewString(),
			Content:  e.Text,
			Metadata: meta,
		}
	}

	// Embed outside the lock; remote calls must not stall readers.
	vectors := make([][]float32, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.EmbedConcurrency)
	for i := range docs {
		i := i
		g.Go(func() error {
			vec, err := s.embed(gctx, op, docs[i].Content)
			if err != nil {
				return err
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pairs := make([]index.Entry, len(docs))
	for i := range docs {
		pairs[i] = index.Entry{Vector: vectors[i], Document: docs[i]}
	}
	fresh, err := index.FromEntries(ctx, s.embedder, pairs)
	if err != nil {
		return nil, core.E(core.ErrStorage, op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 1; ; attempt++ {
		if err := s.syncLocked(ctx); err != nil {
			return nil, err
		}
		before := s.idx.Len()
		if err := s.idx.Merge(ctx, fresh); err != nil {
			s.rollback(before)
			return nil, core.E(core.ErrStorage, op, err)
		}
		err := s.idx.Commit(ctx, s.config.Path)
		if err == nil {
			break
		}
		s.rollback(before)
		if !errors.Is(err, index.ErrStale) || attempt >= maxCommitAttempts {
			return nil, err
		}
		log.WithError(err).WithField("attempt", attempt).Debug("[MEMORY] index changed on disk, retrying")
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"entries": len(docs),
		"total":   s.idx.Len(),
	}).Info("[MEMORY] indexed diary entries")
	return docs, nil
}

// maxCommitAttempts bounds how often a write is retried against other
// processes committing to the same index file.
const maxCommitAttempts = 8

// syncLocked loads the index file when another process has committed to it
// since this store last read or wrote it. The disk copy is authoritative.
// It must be called with the write lock held.
func (s *Store) syncLocked(ctx context.Context) error {
	gen, err := index.ReadGeneration(ctx, s.config.Path)
	if err != nil {
		return err
	}
	if gen == s.idx.Generation() {
		return nil
	}
	loaded, err := index.Load(ctx, s.config.Path, s.embedder)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"from": s.idx.Generation(),
		"to":   loaded.Generation(),
	}).Info("[MEMORY] index changed on disk, reloaded before write")
	s.idx = loaded
	return nil
}

// rollback must be called with the write lock held.
func (s *Store) rollback(n int) {
	// A fresh context: the caller's may already be cancelled.
	if err := s.idx.Truncate(context.Background(), n); err != nil {
		log.WithError(err).Error("[MEMORY] rollback of staged merge failed")
	}
}

func (s *Store) embed(ctx context.Context, op, text string) ([]float32, error) {
	if s.config.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.EmbedTimeout)
		defer cancel()
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, core.E(core.ErrEmbedding, op, err)
	}
	if len(vec) == 0 {
		return nil, core.E(core.ErrEmbedding, op, errors.New("empty embedding"))
	}
	return vec, nil
}

// Reload replaces the in-memory index with the one on disk when the file
// holds a newer generation than the one in memory.
func (s *Store) Reload(ctx context.Context) error {
	gen, err := index.ReadGeneration(ctx, s.config.Path)
	if err != nil {
		return err
	}

	s.mu.RLock()
	current := s.idx.Generation()
	s.mu.RUnlock()
	if gen <= current {
		return nil
	}

	loaded, err := index.Load(ctx, s.config.Path, s.embedder)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if loaded.Generation() <= s.idx.Generation() {
		return nil
	}
	log.WithFields(log.Fields{
		"from": s.idx.Generation(),
		"to":   loaded.Generation(),
	}).Info("[MEMORY] reloaded index from disk")
	s.idx = loaded
	return nil
}

// Close releases resources. The index file is always consistent on disk,
// so there is nothing to flush.
func (s *Store) Close() error {
	return nil
}
