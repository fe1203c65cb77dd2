package memory

import "context"

// Embedder converts text to vector embeddings.
// Implementations: mock (testing), onnx (local), openai (remote).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
