// Package cli provides CLI output utilities for Erabu.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hyperjump/erabu/internal/models"
)

// OutputFormat is the format for query result output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// WriteQueryResults writes query results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteQueryResults(w io.Writer, response *models.QueryResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	default:
		writeQueryResultsText(w, response)
		return nil
	}
}

func writeQueryResultsText(w io.Writer, response *models.QueryResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms (mode: %s)\n\n",
		len(response.Results), response.QueryTime, response.Mode)
	for i, result := range response.Results {
		writeOneResult(w, i+1, &result)
	}
}

func writeOneResult(w io.Writer, position int, result *models.SearchResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "%d. [chunk %d] Score: %.4f%s\n",
		position, result.ChunkID, result.Score, provenance(result))
	fmt.Fprintf(w, "\n%s\n", Truncate(result.Content, 200))
	fmt.Fprintln(w)
}

// provenance renders per-method scores when the result appeared in a ranking.
func provenance(result *models.SearchResult) string {
	var parts []string
	if result.VectorRank > 0 {
		parts = append(parts, fmt.Sprintf("vector #%d %.4f", result.VectorRank, result.VectorScore))
	}
	if result.BM25Rank > 0 {
		parts = append(parts, fmt.Sprintf("bm25 #%d %.4f", result.BM25Rank, result.BM25Score))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// PrintQueryResults prints query results to stdout in text format.
func PrintQueryResults(response *models.QueryResponse) {
	_ = WriteQueryResults(os.Stdout, response, OutputText)
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
