// Package embed provides the Embedder contract the long-term memory tier
// uses to turn text into vectors, plus an OpenAI-compatible
// implementation.
package embed

import "context"

// Embedder turns text into a fixed-dimension embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}
