// Package index implements the vector index under the diary store: an
// ordered set of (vector, document) entries with a reverse lookup from
// document ID to vector, a chromem-go collection for nearest-neighbour
// queries, and sqlite persistence.
//
// An Index is not safe for concurrent mutation. Callers serialise Add,
// Merge and Truncate against every other call; read-only calls may run
// concurrently with each other.
package index

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	chromem "github.com/philippgille/chromem-go"

	"github.com/nabiya/diarymem/core"
)

const collectionName = "diary"

// Embedder converts text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Entry is one stored (vector, document) pair.
type Entry struct {
	Vector   []float32
	Document core.Document
}

// Hit is a similarity search result. Smaller Distance is more similar.
type Hit struct {
	Document core.Document
	Distance float64
}

// Index is a similarity-searchable, mergeable, persistable store.
type Index struct {
	embedder   Embedder
	entries    []Entry
	byID       map[string]int
	db         *chromem.DB
	col        *chromem.Collection
	generation int64

	// persisted is how many leading entries are known to be on disk.
	persisted int
}

// New creates an empty index.
func New(embedder Embedder) (*Index, error) {
	ix := &Index{
		embedder: embedder,
		byID:     make(map[string]int),
	}
	if err := ix.resetCollection(); err != nil {
		return nil, err
	}
	return ix, nil
}

// FromEntries builds a fresh index from precomputed entries.
func FromEntries(ctx context.Context, embedder Embedder, entries []Entry) (*Index, error) {
	ix, err := New(embedder)
	if err != nil {
		return nil, err
	}
	if err := ix.Add(ctx, entries...); err != nil {
		return nil, err
	}
	return ix, nil
}

func (ix *Index) resetCollection() error {
	ix.db = chromem.NewDB()
	col, err := ix.db.CreateCollection(collectionName, nil, ix.embeddingFunc())
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	ix.col = col
	return nil
}

func (ix *Index) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		if ix.embedder == nil {
			return nil, fmt.Errorf("no embedder configured")
		}
		return ix.embedder.Embed(ctx, text)
	}
}

// Add appends entries. An entry whose document ID is already present is
// skipped; identity is the only de-duplication.
func (ix *Index) Add(ctx context.Context, entries ...Entry) error {
	var docs []chromem.Document
	for _, e := range entries {
		if e.Document.ID == "" {
			return core.E(core.ErrInvalidInput, "index.Add", fmt.Errorf("document has no ID"))
		}
		if len(e.Vector) == 0 {
			return core.E(core.ErrInvalidInput, "index.Add", fmt.Errorf("document %s has no vector", e.Document.ID))
		}
		if _, exists := ix.byID[e.Document.ID]; exists {
			continue
		}
		stored := Entry{
			Vector:   append([]float32(nil), e.Vector...),
			Document: e.Document.Clone(),
		}
		ix.byID[stored.Document.ID] = len(ix.entries)
		ix.entries = append(ix.entries, stored)
		docs = append(docs, chromem.Document{
			ID:        stored.Document.ID,
			Content:   stored.Document.Content,
			Embedding: stored.Vector,
		})
	}
	if len(docs) == 0 {
		return nil
	}
	if err := ix.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add to collection: %w", err)
	}
	return nil
}

// Merge absorbs every entry of other into ix.
func (ix *Index) Merge(ctx context.Context, other *Index) error {
	if other == nil {
		return nil
	}
	return ix.Add(ctx, other.entries...)
}

// Search embeds text and returns the k nearest documents by ascending distance.
func (ix *Index) Search(ctx context.Context, text string, k int) ([]Hit, error) {
	if k < 1 {
		return nil, core.E(core.ErrInvalidInput, "index.Search", fmt.Errorf("k must be >= 1, got %d", k))
	}
	if ix.embedder == nil {
		return nil, core.E(core.ErrEmbedding, "index.Search", fmt.Errorf("no embedder configured"))
	}
	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, core.E(core.ErrEmbedding, "index.Search", err)
	}
	return ix.SearchVector(ctx, vec, k)
}

// SearchVector returns the k nearest documents to vec by ascending distance.
// Distance is the squared euclidean distance between unit vectors, 2-2cos.
func (ix *Index) SearchVector(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	if k < 1 {
		return nil, core.E(core.ErrInvalidInput, "index.SearchVector", fmt.Errorf("k must be >= 1, got %d", k))
	}
	if len(ix.entries) == 0 {
		return nil, nil
	}
	if k > len(ix.entries) {
		k = len(ix.entries)
	}

	results, err := ix.col.QueryEmbedding(ctx, vec, k, nil, nil)
	if err != nil {
		return nil, core.E(core.ErrRetrieval, "index.SearchVector", err)
	}

	type ranked struct {
		hit Hit
		seq int
	}
	hits := make([]ranked, 0, len(results))
	for _, r := range results {
		seq, ok := ix.byID[r.ID]
		if !ok {
			continue
		}
		hits = append(hits, ranked{
			hit: Hit{
				Document: ix.entries[seq].Document.Clone(),
				Distance: 2 - 2*float64(r.Similarity),
			},
			seq: seq,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].hit.Distance != hits[j].hit.Distance {
			return hits[i].hit.Distance < hits[j].hit.Distance
		}
		return hits[i].seq < hits[j].seq
	})

	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = h.hit
	}
	return out, nil
}

// Len returns the number of entries.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Walk calls fn for every entry in insertion order. It stops at the first
// error returned by fn or when ctx is cancelled.
func (ix *Index) Walk(ctx context.Context, fn func(Entry) error) error {
	for i, e := range ix.entries {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Documents returns copies of every document in insertion order.
func (ix *Index) Documents() []core.Document {
	out := make([]core.Document, len(ix.entries))
	for i, e := range ix.entries {
		out[i] = e.Document.Clone()
	}
	return out
}

// Vector returns the stored vector for a document ID.
func (ix *Index) Vector(id string) ([]float32, bool) {
	seq, ok := ix.byID[id]
	if !ok {
		return nil, false
	}
	return append([]float32(nil), ix.entries[seq].Vector...), true
}

// Truncate drops every entry after the first n. It is used to roll back a
// merge whose persistence failed.
func (ix *Index) Truncate(ctx context.Context, n int) error {
	if n < 0 || n >= len(ix.entries) {
		return nil
	}
	for _, e := range ix.entries[n:] {
		delete(ix.byID, e.Document.ID)
	}
	ix.entries = ix.entries[:n]
	if ix.persisted > n {
		ix.persisted = n
	}

	// chromem has no bulk truncate; rebuild the collection from what is left.
	if err := ix.resetCollection(); err != nil {
		return err
	}
	kept := ix.entries
	ix.entries = nil
	ix.byID = make(map[string]int, len(kept))
	return ix.Add(ctx, kept...)
}

// Generation is the persisted generation this index was loaded from or last
// written as. It is zero for an index that has never touched disk.
func (ix *Index) Generation() int64 {
	return ix.generation
}
