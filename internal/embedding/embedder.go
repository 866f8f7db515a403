// Package embedding turns chunk text and queries into dense vectors.
// The production embedder runs a local ONNX model; tests substitute the
// deterministic mock. Embedders are constructed explicitly at startup, never
// lazily on first use.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
