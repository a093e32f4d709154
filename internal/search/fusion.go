// Package search provides hybrid retrieval over the vector store and the
// lexical index, with Reciprocal Rank Fusion.
package search

import (
	"sort"

	"github.com/hyperjump/erabu/internal/lexical"
	"github.com/hyperjump/erabu/internal/models"
	"github.com/hyperjump/erabu/internal/store"
)

// DefaultRRFK is the fusion constant from the original RRF paper.
const DefaultRRFK = 60

// FuseRRF merges a vector ranking and a lexical ranking with Reciprocal Rank
// Fusion: a document at 1-based rank r in a list contributes 1/(k+r) to its
// fused score, and a document in both lists sums both contributions. Appearing
// in only one list is enough to qualify; there is no penalty for absence.
//
// Ties on the fused score break deterministically: documents keep first-seen
// order (the vector ranking first, then lexical-only hits in lexical order)
// under a stable sort.
func FuseRRF(vectorHits []store.SearchHit, lexicalHits []lexical.Hit, k, topK int) []models.SearchResult {
	if k <= 0 {
		k = DefaultRRFK
	}
	fused := make(map[int64]*models.SearchResult)
	order := make([]int64, 0, len(vectorHits)+len(lexicalHits))

	for i, hit := range vectorHits {
		rank := i + 1
		r := &models.SearchResult{
			ChunkID:     hit.ID,
			Content:     hit.Content,
			VectorScore: hit.Score,
			VectorRank:  rank,
			Score:       1.0 / float64(k+rank),
		}
		fused[hit.ID] = r
		order = append(order, hit.ID)
	}
	for _, hit := range lexicalHits {
		if r, ok := fused[hit.ID]; ok {
			r.BM25Score = hit.Score
			r.BM25Rank = hit.Rank
			r.Score += 1.0 / float64(k+hit.Rank)
			continue
		}
		fused[hit.ID] = &models.SearchResult{
			ChunkID:   hit.ID,
			Content:   hit.Content,
			BM25Score: hit.Score,
			BM25Rank:  hit.Rank,
			Score:     1.0 / float64(k+hit.Rank),
		}
		order = append(order, hit.ID)
	}

	results := make([]models.SearchResult, 0, len(order))
	for _, id := range order {
		results = append(results, *fused[id])
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results
}
