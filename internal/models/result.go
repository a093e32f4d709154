package models

import "fmt"

// SearchMode selects how a query is executed.
type SearchMode string

const (
	// ModeVector uses dense embedding similarity only.
	ModeVector SearchMode = "vector"
	// ModeKeyword uses lexical (BM25) relevance only.
	ModeKeyword SearchMode = "keyword"
	// ModeHybrid runs both and fuses the rankings with RRF.
	ModeHybrid SearchMode = "hybrid"
)

// ParseMode validates a mode string. An empty string defaults to hybrid.
func ParseMode(s string) (SearchMode, error) {
	switch SearchMode(s) {
	case ModeVector, ModeKeyword, ModeHybrid:
		return SearchMode(s), nil
	case "":
		return ModeHybrid, nil
	default:
		return "", fmt.Errorf("%w: %q (accepted: vector, keyword, hybrid)", ErrInvalidMode, s)
	}
}

// SearchResult is a single query hit. Score semantics depend on the mode:
// distance-derived similarity for vector, BM25 relevance for keyword, and the
// RRF-fused score for hybrid. Rank fields are 1-based positions within each
// method's ranking; a zero rank means the result did not appear in that ranking.
type SearchResult struct {
	ChunkID     int64   `json:"chunk_id"`
	Content     string  `json:"content"`
	Score       float64 `json:"score"`
	VectorScore float64 `json:"vector_score,omitempty"`
	VectorRank  int     `json:"vector_rank,omitempty"`
	BM25Score   float64 `json:"bm25_score,omitempty"`
	BM25Rank    int     `json:"bm25_rank,omitempty"`
}

// QueryRequest is a search request as accepted by the API and CLI.
type QueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

// QueryResponse is the response for a search request.
type QueryResponse struct {
	Results   []SearchResult `json:"results"`
	Mode      SearchMode     `json:"mode"`
	QueryTime int64          `json:"query_time_ms"`
	Query     string         `json:"query"`
}
