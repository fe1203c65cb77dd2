// Package mock provides a deterministic, offline embedder.
//
// Each token is hashed to a pseudo-random unit direction and a text embeds
// to the normalised sum of its tokens' directions, so texts sharing words
// are closer than texts that share none. Good enough for tests and demos.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimensions matches all-MiniLM-L6-v2.
const DefaultDimensions = 384

// Embedder is a bag-of-words hashing embedder.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder with DefaultDimensions.
func New() *Embedder {
	return NewWithDimensions(DefaultDimensions)
}

// NewWithDimensions creates a mock embedder producing vectors of size dims.
func NewWithDimensions(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dimensions: dims}
}

// Embed returns a unit vector for text. It never fails unless ctx is done.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sum := make([]float64, m.dimensions)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		// Whitespace or punctuation only: fall back to the whole text.
		tokens = []string{text}
	}
	for _, tok := range tokens {
		m.accumulate(sum, tok)
	}
	return normalize(sum), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

func (m *Embedder) accumulate(sum []float64, token string) {
	h := fnv.New64a()
	h.Write([]byte(token))
	seed := h.Sum64()

	for i := range sum {
		// LCG step; the top bits are the best distributed.
		seed = seed*6364136223846793005 + 1442695040888963407
		sum[i] += float64(int64(seed)) / math.MaxInt64
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(vec []float64) []float32 {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, len(vec))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
