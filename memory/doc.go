// Package memory provides the per-user diary memory store.
//
// Every diary entry of every user lives in one shared vector index and is
// tagged with a user_id metadata field. All queries are scoped to one user;
// the scoping is applied after retrieval because the index itself is not
// partitioned. With many tenants, noisy neighbours can crowd a user's true
// nearest entries out of the candidate pool, so HybridSearch over-fetches
// (TopK * CandidateMultiplier) before filtering.
//
// Architecture:
//   - index.Index: vectors + documents, chromem-go queries, sqlite file
//   - Embedder: text-to-vector conversion (OpenAI, ONNX, or mock)
//   - Store: tenancy, hybrid keyword/similarity ranking, date windows,
//     and the single-writer merge+persist discipline
//
// Writes are append-only. IndexEntry stages the new entries in a fresh
// index, merges them into the live one and commits only the new rows; if the
// commit fails the merge is rolled back so memory and disk agree. Several
// processes may write the same index file: a commit is refused when another
// writer got there first, and the store reloads the file and tries again.
package memory
