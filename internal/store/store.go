// Package store persists chunks with their embeddings and serves
// K-nearest-neighbor queries over them.
package store

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/hyperjump/erabu/internal/models"
)

// VectorStore defines chunk persistence and similarity search operations.
// The vector dimension is inferred from the first chunk ever added; every
// later embedding must match it.
type VectorStore interface {
	// Add persists a batch of chunks transactionally: either the whole batch
	// becomes visible or none of it. Assigned IDs are written back to the chunks.
	Add(ctx context.Context, chunks []*models.Chunk) error
	// Search returns up to topK chunks ordered by descending similarity,
	// where similarity is 1/(1+distance) under L2 distance. An empty store
	// yields an empty result, never an error.
	Search(ctx context.Context, query []float32, topK int) ([]SearchHit, error)
	// GetAll returns the id and content of every chunk, for building external
	// lexical indexes.
	GetAll(ctx context.Context) ([]ChunkRecord, error)
	// GetByID returns the chunk with the given id, or models.ErrNotFound.
	GetByID(ctx context.Context, id int64) (*models.Chunk, error)
	Count(ctx context.Context) (int64, error)
	// Clear removes every chunk. Chunks are immutable; this is the only delete.
	Clear(ctx context.Context) error
	// Dimensions returns the store's fixed vector dimension, 0 if empty.
	Dimensions() int
	// Type identifies the backing implementation (e.g. sqlite-vec, sqlite-scan).
	Type() string
	Close() error
}

// ChunkRecord is a minimal (id, content) pair from GetAll.
type ChunkRecord struct {
	ID      int64
	Content string
}

// SearchHit is a single KNN hit.
type SearchHit struct {
	ID      int64
	Content string
	Score   float64
}

// encodeVector serializes a vector as little-endian float32 bytes, the layout
// sqlite-vec expects for float[] columns.
func encodeVector(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:(i+1)*4], math.Float32bits(x))
	}
	return out
}

// decodeVector deserializes little-endian float32 bytes.
func decodeVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : (i+1)*4]))
	}
	return out
}

// l2Distance returns the Euclidean distance between two equal-length vectors.
func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// similarityFromDistance maps a distance to a (0,1] similarity score.
// Monotonic: smaller distance means higher similarity.
func similarityFromDistance(distance float64) float64 {
	return 1.0 / (1.0 + distance)
}
