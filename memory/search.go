package memory

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/nabiya/diarymem/core"
	"github.com/nabiya/diarymem/memory/index"
)

// MaxTopK caps the number of results one hybrid search may ask for.
const MaxTopK = 100

// maxCandidates caps the nearest-neighbour pool fetched per search.
const maxCandidates = 10000

// SearchOptions tune HybridSearch. A non-positive TopK or a negative
// ScoreThreshold takes the store default, and TopK is capped at MaxTopK.
// A zero ScoreThreshold keeps only exact matches. MinMatch is used as
// given, so zero disables the keyword requirement. Start from
// DefaultSearchOptions to get the configured values.
type SearchOptions struct {
	TopK           int
	ScoreThreshold float64
	MinMatch       int
}

// DefaultSearchOptions returns the store's configured search defaults.
func (s *Store) DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		TopK:           s.config.TopK,
		ScoreThreshold: s.config.ScoreThreshold,
		MinMatch:       s.config.MinMatch,
	}
}

// Match is one hybrid search result.
type Match struct {
	Document        core.Document `json:"document"`
	Distance        float64       `json:"distance"`
	MatchCount      int           `json:"match_count"`
	MatchedKeywords []string      `json:"matched_keywords"`
}

type candidate struct {
	Match
	rank int
}

// HybridSearch retrieves the user's diary entries most relevant to query,
// re-ranked by keyword overlap.
//
// It over-fetches TopK*CandidateMultiplier nearest entries from the shared
// index, drops other tenants, entries farther than ScoreThreshold and
// repeated contents, counts how many keywords occur in each survivor, drops
// those with fewer than MinMatch, and orders the rest by more matches first
// then smaller distance. An empty result means no relevant memory.
func (s *Store) HybridSearch(ctx context.Context, userID string, keywords []string, query string, opts SearchOptions) ([]Match, error) {
	const op = "memory.HybridSearch"

	if userID == "" {
		return nil, core.E(core.ErrInvalidInput, op, errors.New("user_id is required"))
	}
	if opts.TopK <= 0 {
		opts.TopK = s.config.TopK
	}
	if opts.TopK > MaxTopK {
		opts.TopK = MaxTopK
	}
	if opts.ScoreThreshold < 0 {
		opts.ScoreThreshold = s.config.ScoreThreshold
	}

	vec, err := s.embed(ctx, op, query)
	if err != nil {
		return nil, core.E(core.ErrRetrieval, op, err)
	}

	s.mu.RLock()
	hits, err := s.idx.SearchVector(ctx, vec, candidates(opts.TopK, s.config.CandidateMultiplier))
	s.mu.RUnlock()
	if err != nil {
		return nil, core.E(core.ErrRetrieval, op, err)
	}

	terms := normalizeKeywords(keywords)
	seen := make(map[string]struct{}, len(hits))
	var pool []candidate
	for i, h := range hits {
		if h.Document.Metadata.UserID() != userID {
			continue
		}
		if h.Distance > opts.ScoreThreshold {
			continue
		}
		key := strings.TrimSpace(h.Document.Content)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		matched := matchKeywords(h.Document.Content, terms)
		if len(matched) < opts.MinMatch {
			continue
		}
		pool = append(pool, candidate{Match: newMatch(h, matched), rank: i})
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].MatchCount != pool[j].MatchCount {
			return pool[i].MatchCount > pool[j].MatchCount
		}
		if pool[i].Distance != pool[j].Distance {
			return pool[i].Distance < pool[j].Distance
		}
		return pool[i].rank < pool[j].rank
	})
	if len(pool) > opts.TopK {
		pool = pool[:opts.TopK]
	}

	out := make([]Match, len(pool))
	for i, c := range pool {
		out[i] = c.Match
	}

	log.WithFields(log.Fields{
		"user_id":    userID,
		"candidates": len(hits),
		"results":    len(out),
	}).Debug("[MEMORY] hybrid search")
	return out, nil
}

// candidates returns topK*multiplier, saturating at maxCandidates.
func candidates(topK, multiplier int) int {
	if multiplier > maxCandidates/topK {
		return maxCandidates
	}
	return topK * multiplier
}

func newMatch(h index.Hit, matched []string) Match {
	doc := h.Document.Clone()
	doc.Metadata[core.MetaMatchCount] = strconv.Itoa(len(matched))
	doc.Metadata[core.MetaMatchedKeywords] = strings.Join(matched, ",")
	return Match{
		Document:        doc,
		Distance:        h.Distance,
		MatchCount:      len(matched),
		MatchedKeywords: matched,
	}
}

// normalizeKeywords trims and lower-cases keywords, dropping single
// characters. Repeated keywords are kept and each one counts as a match.
func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if utf8.RuneCountInString(kw) <= 1 {
			continue
		}
		out = append(out, kw)
	}
	return out
}

func matchKeywords(content string, terms []string) []string {
	lower := strings.ToLower(content)
	matched := make([]string, 0, len(terms))
	for _, t := range terms {
		if strings.Contains(lower, t) {
			matched = append(matched, t)
		}
	}
	return matched
}
