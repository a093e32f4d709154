// Package ingest chunks raw text, embeds it, and persists it to the vector store.
package ingest

import (
	"unicode"
)

// Piece is one chunk of a source text with its byte offsets into the original.
type Piece struct {
	Content    string
	ChunkIndex int
	CharStart  int
	CharEnd    int
}

// Chunker splits a text into ordered pieces with positional metadata.
type Chunker interface {
	Chunk(text string) []Piece
	// Strategy identifies the chunking scheme, recorded on each stored chunk.
	Strategy() string
}

// WordChunker splits text into overlapping word-based windows. Offsets are
// byte offsets into the original text, so each piece's content is a verbatim
// slice of the input.
type WordChunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewWordChunker creates a chunker with the given size and overlap (in words).
// A size below one is clamped to one and a negative overlap to zero; config
// loading rejects such values before they get here.
func NewWordChunker(chunkSize, chunkOverlap int) *WordChunker {
	if chunkSize < 1 {
		chunkSize = 1
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	return &WordChunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Strategy returns "word".
func (c *WordChunker) Strategy() string { return "word" }

// Chunk splits text into overlapping windows of chunkSize words.
func (c *WordChunker) Chunk(text string) []Piece {
	spans := wordSpans(text)
	if len(spans) == 0 {
		return nil
	}
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = 1
	}
	pieces := make([]Piece, 0)
	index := 0
	for i := 0; i < len(spans); i += step {
		end := i + c.chunkSize
		if end > len(spans) {
			end = len(spans)
		}
		start := spans[i].start
		stop := spans[end-1].end
		pieces = append(pieces, Piece{
			Content:    text[start:stop],
			ChunkIndex: index,
			CharStart:  start,
			CharEnd:    stop,
		})
		index++
		if end >= len(spans) {
			break
		}
	}
	return pieces
}

type span struct {
	start, end int
}

// wordSpans returns the byte ranges of whitespace-separated words in text.
func wordSpans(text string) []span {
	var spans []span
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, span{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, span{start, len(text)})
	}
	return spans
}
