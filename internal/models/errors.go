package models

import "errors"

// Sentinel errors for the retrieval core. Callers match with errors.Is.
var (
	// ErrNotFound is returned when a chunk ID does not exist in the store.
	ErrNotFound = errors.New("not found")
	// ErrInvalidMode is returned for an unknown search mode string.
	ErrInvalidMode = errors.New("invalid search mode")
	// ErrDimensionMismatch is returned when an embedding's dimension does not
	// match the store's fixed dimension. The write is aborted whole.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrEmbeddingMismatch is returned when the embedder returns a different
	// number of vectors than texts requested.
	ErrEmbeddingMismatch = errors.New("embedding count does not match chunk count")
)
