// Package embedding provides text embedding via a local ONNX model or a
// remote OpenAI-compatible API, with caching.
package embedding

import "context"

// Embedder produces fixed-dimension vector embeddings for text.
// EmbedBatch is order-preserving and all-or-nothing: on any failure the whole
// batch fails, callers never receive a truncated result.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// Type identifies the embedder implementation (mock, onnx, openai).
	Type() string
	Close() error
}
