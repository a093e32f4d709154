package embedding

import (
	"context"
	"math"
)

// MockEmbedder is a deterministic embedder for tests and for running without a
// model. The same text always maps to the same unit-length vector, derived
// from the hashes of its words so that texts sharing vocabulary land closer
// together than unrelated texts.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder producing deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic embedding derived from the text's words.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	emb := make([]float32, e.dimensions)
	for _, word := range splitWords(text) {
		h := hashString(word)
		for i := 0; i < e.dimensions; i++ {
			emb[i] += float32(math.Sin(float64(h*(i+1))) * 0.1)
		}
	}
	normalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Type returns the embedder type identifier.
func (e *MockEmbedder) Type() string {
	return "mock"
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
