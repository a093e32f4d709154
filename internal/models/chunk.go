// Package models defines core data structures for chunks, queries, and search results.
package models

import "time"

// Chunk is a unit of ingested text with its embedding and positional metadata.
// Chunks are immutable after ingestion; the ID is assigned by the store.
type Chunk struct {
	ID        int64         `json:"id" db:"id"`
	Content   string        `json:"content" db:"content"`
	Embedding []float32     `json:"-" db:"-"`
	Metadata  ChunkMetadata `json:"metadata" db:"metadata"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// ChunkMetadata describes where a chunk came from and how it was produced.
// Semantic fields are only set by semantic/agentic chunkers.
type ChunkMetadata struct {
	SourceDocument   string            `json:"source_document,omitempty"`
	SourceHash       string            `json:"source_hash,omitempty"`
	ChunkingStrategy string            `json:"chunking_strategy,omitempty"`
	ChunkIndex       int               `json:"chunk_index"`
	CharStart        int               `json:"char_start"`
	CharEnd          int               `json:"char_end"`
	SemanticTitle    string            `json:"semantic_title,omitempty"`
	SemanticSummary  string            `json:"semantic_summary,omitempty"`
	SemanticOverlap  string            `json:"semantic_overlap,omitempty"`
	Extra            map[string]string `json:"extra,omitempty"`
}

// IngestSummary reports what one ingestion call did.
type IngestSummary struct {
	ChunksProcessed   int    `json:"chunks_processed"`
	SourceHash        string `json:"source_hash"`
	NewDocumentsAdded int64  `json:"new_documents_added"`
}

// Stats describes the state of a retriever's backing components.
type Stats struct {
	TotalDocuments int64  `json:"total_documents"`
	EmbedderType   string `json:"embedder_type"`
	DatabaseType   string `json:"database_type"`
	Dimensions     int    `json:"dimensions,omitempty"`
}
