package search

import (
	"math"
	"testing"

	"github.com/hyperjump/erabu/internal/lexical"
	"github.com/hyperjump/erabu/internal/store"
)

func TestFuseRRFSumsContributions(t *testing.T) {
	vector := []store.SearchHit{
		{ID: 1, Content: "both", Score: 0.9},
		{ID: 2, Content: "vector only", Score: 0.8},
	}
	lex := []lexical.Hit{
		{ID: 1, Content: "both", Score: 3.2, Rank: 1},
		{ID: 3, Content: "keyword only", Score: 1.1, Rank: 2},
	}
	results := FuseRRF(vector, lex, 60, 10)
	if len(results) != 3 {
		t.Fatalf("expected union of 3 documents, got %d", len(results))
	}

	// Document 1: rank 1 in both lists.
	want := 1.0/61.0 + 1.0/61.0
	if results[0].ChunkID != 1 {
		t.Fatalf("document in both lists should rank first, got %d", results[0].ChunkID)
	}
	if math.Abs(results[0].Score-want) > 1e-9 {
		t.Errorf("fused score should sum both contributions: got %f, want %f", results[0].Score, want)
	}
	if results[0].VectorRank != 1 || results[0].BM25Rank != 1 {
		t.Errorf("provenance ranks wrong: %+v", results[0])
	}
	if results[0].VectorScore != 0.9 || results[0].BM25Score != 3.2 {
		t.Errorf("provenance scores wrong: %+v", results[0])
	}
}

func TestFuseRRFPartialPresenceQualifies(t *testing.T) {
	lex := []lexical.Hit{{ID: 7, Content: "only keyword", Score: 2.0, Rank: 1}}
	results := FuseRRF(nil, lex, 60, 10)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if math.Abs(r.Score-1.0/61.0) > 1e-9 {
		t.Errorf("single-list score should be 1/(k+1), got %f", r.Score)
	}
	if r.VectorRank != 0 {
		t.Errorf("vector rank should be absent (0), got %d", r.VectorRank)
	}
}

func TestFuseRRFMonotonicity(t *testing.T) {
	// A document in both lists scores at least as high as either single
	// contribution alone, since contributions sum.
	vector := []store.SearchHit{{ID: 1, Content: "x", Score: 0.5}}
	lex := []lexical.Hit{{ID: 1, Content: "x", Score: 1.0, Rank: 1}}

	both := FuseRRF(vector, lex, 60, 10)[0].Score
	vecOnly := FuseRRF(vector, nil, 60, 10)[0].Score
	lexOnly := FuseRRF(nil, lex, 60, 10)[0].Score
	if both < vecOnly || both < lexOnly {
		t.Errorf("fused score %f below single contributions %f / %f", both, vecOnly, lexOnly)
	}
}

func TestFuseRRFTieBreakIsStable(t *testing.T) {
	// Two documents each at rank 1 in exactly one list have equal fused
	// scores; the vector-ranked document must come first (first-seen order).
	vector := []store.SearchHit{{ID: 10, Content: "v", Score: 0.9}}
	lex := []lexical.Hit{{ID: 20, Content: "l", Score: 5.0, Rank: 1}}
	for i := 0; i < 10; i++ {
		results := FuseRRF(vector, lex, 60, 10)
		if results[0].ChunkID != 10 || results[1].ChunkID != 20 {
			t.Fatalf("tie-break not deterministic: %+v", results)
		}
	}
}

func TestFuseRRFRespectsTopK(t *testing.T) {
	vector := []store.SearchHit{
		{ID: 1, Score: 0.9}, {ID: 2, Score: 0.8}, {ID: 3, Score: 0.7},
	}
	results := FuseRRF(vector, nil, 60, 2)
	if len(results) != 2 {
		t.Errorf("expected topK=2 results, got %d", len(results))
	}
}

func TestFuseRRFDefaultK(t *testing.T) {
	vector := []store.SearchHit{{ID: 1, Score: 0.9}}
	results := FuseRRF(vector, nil, 0, 10)
	if math.Abs(results[0].Score-1.0/61.0) > 1e-9 {
		t.Errorf("k<=0 should use the default of %d, got score %f", DefaultRRFK, results[0].Score)
	}
}

func TestFuseRRFSortedDescending(t *testing.T) {
	vector := []store.SearchHit{
		{ID: 1, Score: 0.9}, {ID: 2, Score: 0.8}, {ID: 3, Score: 0.7},
	}
	lex := []lexical.Hit{
		{ID: 3, Score: 4.0, Rank: 1}, {ID: 2, Score: 2.0, Rank: 2},
	}
	results := FuseRRF(vector, lex, 60, 10)
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted descending at %d: %f > %f", i, results[i].Score, results[i-1].Score)
		}
	}
}
