package engine

import (
	"context"

	"github.com/nabiya/diarymem/core"
)

// Completion is one text-generation request.
type Completion struct {
	// System is the system prompt.
	System string

	// Messages is the conversation so far. It may be empty when the
	// whole request fits in System.
	Messages []core.Message

	// MaxTokens bounds the reply. Zero uses the generator default.
	MaxTokens int64

	// Temperature controls sampling randomness.
	Temperature float64
}

// Generator produces text. Implementations must be safe for concurrent use.
type Generator interface {
	Complete(ctx context.Context, req Completion) (string, error)
}

// StreamingGenerator is a Generator that can also stream partial output.
// onChunk is called with every text delta, in order.
type StreamingGenerator interface {
	Generator
	Stream(ctx context.Context, req Completion, onChunk func(string)) (string, error)
}
