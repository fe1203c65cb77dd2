// Package cache memoises embeddings in front of another embedder.
//
// Recall turns re-embed the same short queries and keyword strings often;
// the cache keeps remote embedders from paying for them twice.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// Embedder is what the cache wraps.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Config sizes the cache.
type Config struct {
	// MaxEntries bounds the number of cached vectors (default: 10000).
	MaxEntries int64
}

// Cached caches vectors by text. Errors are never cached.
type Cached struct {
	next  Embedder
	cache *ristretto.Cache
}

// New wraps next with a cache.
func New(next Embedder, cfg Config) (*Cached, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.MaxEntries * 10,
		MaxCost:     cfg.MaxEntries,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &Cached{next: next, cache: c}, nil
}

// Embed returns a cached vector or asks the wrapped embedder.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return append([]float32(nil), v.([]float32)...), nil
	}
	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, append([]float32(nil), vec...), 1)
	return vec, nil
}

// Dimensions returns the wrapped embedder's size.
func (c *Cached) Dimensions() int {
	return c.next.Dimensions()
}

// Hits returns how many lookups were served from the cache.
func (c *Cached) Hits() uint64 {
	return c.cache.Metrics.Hits()
}

// Wait blocks until pending writes are visible to Get.
func (c *Cached) Wait() {
	c.cache.Wait()
}

// Close stops the cache's background goroutines.
func (c *Cached) Close() {
	c.cache.Close()
}
