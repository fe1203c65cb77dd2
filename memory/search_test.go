package memory_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabiya/diarymem/core"
	"github.com/nabiya/diarymem/memory"
	"github.com/nabiya/diarymem/memory/embedder/mock"
)

const query = "query"

// searchEmbedder places the query on the x axis. Texts embedded at
// (0.8, ...) sit at distance 0.4 from it, (-1, 0, 0) at 4.0, and unknown
// texts on the z axis at 2.0.
func searchEmbedder() *tableEmbedder {
	return &tableEmbedder{
		vectors: map[string][]float32{
			query:                             {1, 0, 0},
			"family lunch at grandma's":       {1, 0, 0},
			"lunch with my family and dad":    {0.8, 0.6, 0},
			"family picnic":                   {0.8, 0, 0.6},
			"opposite family lunch":           {-1, 0, 0},
			"family lunch but someone else's": {1, 0, 0},
			"unrelated walk":                  {0.8, 0.6, 0},
		},
		fallback: []float32{0, 0, 1},
	}
}

func TestHybridSearch_TenantIsolation(t *testing.T) {
	s, _ := openStore(t, searchEmbedder())
	ctx := context.Background()

	_, err := s.IndexEntry(ctx, "B", "family lunch but someone else's", nil)
	require.NoError(t, err)
	_, err = s.IndexEntry(ctx, "A", "family picnic", nil)
	require.NoError(t, err)
	_, err = s.IndexEntry(ctx, "", "legacy", nil)
	assert.Error(t, err)

	got, err := s.HybridSearch(ctx, "A", []string{"family", "lunch"}, query, s.DefaultSearchOptions())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "family picnic", got[0].Document.Content)
	for _, m := range got {
		assert.Equal(t, "A", m.Document.Metadata.UserID())
	}
}

func TestHybridSearch_MoreMatchesWinOverDistance(t *testing.T) {
	s, _ := openStore(t, searchEmbedder())
	ctx := context.Background()

	// Distance 0, one keyword.
	_, err := s.IndexEntry(ctx, "u1", "family lunch at grandma's", nil)
	require.NoError(t, err)
	// Distance 0.4, two keywords.
	_, err = s.IndexEntry(ctx, "u1", "lunch with my family and dad", nil)
	require.NoError(t, err)

	got, err := s.HybridSearch(ctx, "u1", []string{"dad", "family"}, query, s.DefaultSearchOptions())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "lunch with my family and dad", got[0].Document.Content)
	assert.Equal(t, 2, got[0].MatchCount)
	assert.Equal(t, []string{"dad", "family"}, got[0].MatchedKeywords)
	assert.Equal(t, "2", got[0].Document.Metadata[core.MetaMatchCount])
	assert.Equal(t, "dad,family", got[0].Document.Metadata[core.MetaMatchedKeywords])
	assert.InDelta(t, 0.4, got[0].Distance, 1e-5)

	assert.Equal(t, "family lunch at grandma's", got[1].Document.Content)
	assert.Equal(t, 1, got[1].MatchCount)
}

func TestHybridSearch_EqualMatchesOrderByDistance(t *testing.T) {
	s, _ := openStore(t, searchEmbedder())
	ctx := context.Background()

	_, err := s.IndexEntry(ctx, "u1", "family picnic", nil)
	require.NoError(t, err)
	_, err = s.IndexEntry(ctx, "u1", "family lunch at grandma's", nil)
	require.NoError(t, err)

	got, err := s.HybridSearch(ctx, "u1", []string{"family"}, query, s.DefaultSearchOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"family lunch at grandma's", "family picnic"}, matchContents(got))
}

func TestHybridSearch_NoKeywordMatchIsEmpty(t *testing.T) {
	s, _ := openStore(t, searchEmbedder())
	ctx := context.Background()

	_, err := s.IndexEntry(ctx, "u1", "family lunch at grandma's", nil)
	require.NoError(t, err)

	got, err := s.HybridSearch(ctx, "u1", []string{"birthday"}, query, s.DefaultSearchOptions())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHybridSearch_MinMatchZeroKeepsSemanticHits(t *testing.T) {
	s, _ := openStore(t, searchEmbedder())
	ctx := context.Background()

	_, err := s.IndexEntry(ctx, "u1", "unrelated walk", nil)
	require.NoError(t, err)

	opts := s.DefaultSearchOptions()
	opts.MinMatch = 0
	got, err := s.HybridSearch(ctx, "u1", nil, query, opts)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].MatchCount)
}

func TestHybridSearch_ScoreThreshold(t *testing.T) {
	s, _ := openStore(t, searchEmbedder())
	ctx := context.Background()

	_, err := s.IndexEntry(ctx, "u1", "opposite family lunch", nil)
	require.NoError(t, err)
	_, err = s.IndexEntry(ctx, "u1", "lunch with my family and dad", nil)
	require.NoError(t, err)

	got, err := s.HybridSearch(ctx, "u1", []string{"family"}, query, s.DefaultSearchOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"lunch with my family and dad"}, matchContents(got), "distance 4 exceeds the default 2.0")

	opts := s.DefaultSearchOptions()
	opts.ScoreThreshold = 0.3
	got, err = s.HybridSearch(ctx, "u1", []string{"family"}, query, opts)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHybridSearch_ZeroThresholdKeepsExactMatchesOnly(t *testing.T) {
	s, _ := openStore(t, searchEmbedder())
	ctx := context.Background()

	_, err := s.IndexEntry(ctx, "u1", "family lunch at grandma's", nil)
	require.NoError(t, err)
	_, err = s.IndexEntry(ctx, "u1", "lunch with my family and dad", nil)
	require.NoError(t, err)

	opts := s.DefaultSearchOptions()
	opts.ScoreThreshold = 0
	got, err := s.HybridSearch(ctx, "u1", []string{"family"}, query, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"family lunch at grandma's"}, matchContents(got))

	opts.ScoreThreshold = -1
	got, err = s.HybridSearch(ctx, "u1", []string{"family"}, query, opts)
	require.NoError(t, err)
	assert.Len(t, got, 2, "a negative threshold takes the store default")
}

func TestHybridSearch_DeduplicatesContent(t *testing.T) {
	s, _ := openStore(t, searchEmbedder())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.IndexEntry(ctx, "u1", "family lunch at grandma's", nil)
		require.NoError(t, err)
	}

	got, err := s.HybridSearch(ctx, "u1", []string{"family"}, query, s.DefaultSearchOptions())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestHybridSearch_KeywordNormalisation(t *testing.T) {
	s, _ := openStore(t, searchEmbedder())
	ctx := context.Background()

	_, err := s.IndexEntry(ctx, "u1", "lunch with my family and dad", nil)
	require.NoError(t, err)

	// "a" is a single character and "DAD " normalises to "dad".
	got, err := s.HybridSearch(ctx, "u1", []string{"a", "DAD ", "family"}, query, s.DefaultSearchOptions())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"dad", "family"}, got[0].MatchedKeywords)
}

func TestHybridSearch_RepeatedKeywordsCountEachTime(t *testing.T) {
	s, _ := openStore(t, searchEmbedder())
	ctx := context.Background()

	_, err := s.IndexEntry(ctx, "u1", "lunch with my family and dad", nil)
	require.NoError(t, err)
	_, err = s.IndexEntry(ctx, "u1", "family lunch at grandma's", nil)
	require.NoError(t, err)

	opts := s.DefaultSearchOptions()
	opts.MinMatch = 2
	got, err := s.HybridSearch(ctx, "u1", []string{"dad", "Dad"}, query, opts)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "lunch with my family and dad", got[0].Document.Content)
	assert.Equal(t, 2, got[0].MatchCount)
	assert.Equal(t, []string{"dad", "dad"}, got[0].MatchedKeywords)
	assert.Equal(t, "dad,dad", got[0].Document.Metadata[core.MetaMatchedKeywords])
}

func TestHybridSearch_TopK(t *testing.T) {
	s, _ := openStore(t, mock.New())
	ctx := context.Background()

	for _, text := range []string{"family one", "family two", "family three", "family four"} {
		_, err := s.IndexEntry(ctx, "u1", text, nil)
		require.NoError(t, err)
	}

	opts := s.DefaultSearchOptions()
	opts.TopK = 2
	got, err := s.HybridSearch(ctx, "u1", []string{"family"}, "family", opts)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestHybridSearch_HugeTopKIsCapped(t *testing.T) {
	s, _ := openStore(t, mock.New())
	ctx := context.Background()

	for _, text := range []string{"family one", "family two"} {
		_, err := s.IndexEntry(ctx, "u1", text, nil)
		require.NoError(t, err)
	}

	opts := s.DefaultSearchOptions()
	opts.TopK = math.MaxInt
	opts.ScoreThreshold = 4
	got, err := s.HybridSearch(ctx, "u1", []string{"family"}, "family", opts)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestHybridSearch_Errors(t *testing.T) {
	emb := searchEmbedder()
	s, _ := openStore(t, emb)
	ctx := context.Background()

	_, err := s.HybridSearch(ctx, "", []string{"x"}, query, s.DefaultSearchOptions())
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	emb.fail(errors.New("timeout"))
	_, err = s.HybridSearch(ctx, "u1", []string{"x"}, query, s.DefaultSearchOptions())
	assert.ErrorIs(t, err, core.ErrRetrieval)
	assert.ErrorIs(t, err, core.ErrEmbedding)
}

func TestHybridSearch_EmptyStore(t *testing.T) {
	s, _ := openStore(t, searchEmbedder())
	got, err := s.HybridSearch(context.Background(), "u1", []string{"family"}, query, memory.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHybridSearch_SameResultsAfterReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openStore(t, searchEmbedder())

	for _, text := range []string{"family lunch at grandma's", "lunch with my family and dad", "family picnic"} {
		_, err := s.IndexEntry(ctx, "u1", text, dated("2024-03-09"))
		require.NoError(t, err)
	}
	before, err := s.HybridSearch(ctx, "u1", []string{"family", "dad"}, query, s.DefaultSearchOptions())
	require.NoError(t, err)
	windowBefore, err := s.EntriesInWindow(ctx, "u1", "2024-03-10", 7)
	require.NoError(t, err)

	reopened, err := memory.Open(ctx, searchEmbedder(), &memory.Config{Path: path})
	require.NoError(t, err)
	after, err := reopened.HybridSearch(ctx, "u1", []string{"family", "dad"}, query, reopened.DefaultSearchOptions())
	require.NoError(t, err)
	windowAfter, err := reopened.EntriesInWindow(ctx, "u1", "2024-03-10", 7)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Equal(t, windowBefore, windowAfter)
}
