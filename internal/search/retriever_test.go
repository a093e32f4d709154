package search

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/hyperjump/erabu/internal/config"
	"github.com/hyperjump/erabu/internal/embedding"
	"github.com/hyperjump/erabu/internal/lexical"
	"github.com/hyperjump/erabu/internal/models"
	"github.com/hyperjump/erabu/internal/store"
)

func testSearchConfig() *config.SearchConfig {
	return &config.SearchConfig{
		DefaultTopK:     5,
		RRFK:            60,
		OverfetchFactor: 3,
		CandidateCap:    20,
	}
}

// newTestRetriever builds a retriever over a fresh SQLite store and a mock
// embedder, ingesting the given texts one chunk each.
func newTestRetriever(t *testing.T, texts []string) (*Retriever, store.VectorStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	emb := embedding.NewMockEmbedder(32)
	ctx := context.Background()
	if len(texts) > 0 {
		chunks := make([]*models.Chunk, len(texts))
		for i, text := range texts {
			vec, err := emb.Embed(ctx, text)
			if err != nil {
				t.Fatal(err)
			}
			chunks[i] = &models.Chunk{Content: text, Embedding: vec, Metadata: models.ChunkMetadata{ChunkIndex: i}}
		}
		if err := s.Add(ctx, chunks); err != nil {
			t.Fatal(err)
		}
	}

	r := NewRetriever(s, emb, lexical.NewIndex(s), testSearchConfig(), 0, nil)
	t.Cleanup(func() { r.Close() })
	return r, s
}

func TestQueryVectorModeSingleDocument(t *testing.T) {
	content := "Artificial intelligence is a field of computer science."
	r, _ := newTestRetriever(t, []string{content})

	results, err := r.Query(context.Background(), "What is AI?", 1, "vector")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 result, got %d", len(results))
	}
	if results[0].Content != content {
		t.Errorf("unexpected content: %q", results[0].Content)
	}
	if results[0].VectorRank != 1 || results[0].VectorScore <= 0 {
		t.Errorf("vector provenance missing: %+v", results[0])
	}
	if results[0].BM25Rank != 0 {
		t.Errorf("keyword provenance should be absent in vector mode: %+v", results[0])
	}
}

func TestQueryKeywordModeRanksLexicalMatchFirst(t *testing.T) {
	sqliteDoc := "The SQLite database keeps the whole corpus in one file."
	nnDoc := "Neural networks learn layered representations."
	r, _ := newTestRetriever(t, []string{sqliteDoc, nnDoc})

	results, err := r.Query(context.Background(), "sqlite", 5, "keyword")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].Content != sqliteDoc {
		t.Errorf("SQLite document should rank first, got %q", results[0].Content)
	}
	if results[0].BM25Score <= 0 {
		t.Errorf("expected positive bm25 score, got %f", results[0].BM25Score)
	}
	for _, res := range results[1:] {
		if res.Content == nnDoc && res.BM25Score >= results[0].BM25Score {
			t.Error("non-matching document should score lower")
		}
	}
}

func TestQueryHybridModeCarriesProvenance(t *testing.T) {
	r, _ := newTestRetriever(t, []string{
		"Modern technology changes the database landscape.",
		"Technology trends in neural networks.",
	})

	results, err := r.Query(context.Background(), "technology", 2, "hybrid")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected exactly 2 results, got %d", len(results))
	}
	for i, res := range results {
		if res.VectorRank == 0 && res.BM25Rank == 0 {
			t.Errorf("result %d carries no provenance: %+v", i, res)
		}
		if res.Score < 0 {
			t.Errorf("result %d has negative score", i)
		}
		if i > 0 && res.Score > results[i-1].Score {
			t.Error("fused scores should be sorted descending")
		}
	}
}

func TestQueryEmptyStoreAllModes(t *testing.T) {
	r, _ := newTestRetriever(t, nil)
	for _, mode := range []string{"vector", "keyword", "hybrid"} {
		results, err := r.Query(context.Background(), "anything", 5, mode)
		if err != nil {
			t.Errorf("mode %s on empty store should not error: %v", mode, err)
		}
		if len(results) != 0 {
			t.Errorf("mode %s on empty store should return no results, got %d", mode, len(results))
		}
	}
}

func TestQueryEmptyQuestion(t *testing.T) {
	r, _ := newTestRetriever(t, []string{"some content"})
	for _, q := range []string{"", "   ", "\n\t"} {
		results, err := r.Query(context.Background(), q, 5, "hybrid")
		if err != nil {
			t.Errorf("empty question should not error: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("empty question should yield no results, got %d", len(results))
		}
	}
}

func TestQueryInvalidMode(t *testing.T) {
	r, _ := newTestRetriever(t, []string{"content"})
	_, err := r.Query(context.Background(), "q", 5, "bogus")
	if !errors.Is(err, models.ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}

func TestQueryDeterministic(t *testing.T) {
	r, _ := newTestRetriever(t, []string{
		"The SQLite database keeps the whole corpus in one file.",
		"Neural networks learn layered representations.",
		"Hybrid retrieval mixes sparse and dense signals.",
	})
	ctx := context.Background()

	first, err := r.Query(ctx, "database retrieval", 3, "hybrid")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := r.Query(ctx, "database retrieval", 3, "hybrid")
		if err != nil {
			t.Fatal(err)
		}
		if len(again) != len(first) {
			t.Fatalf("result count changed: %d vs %d", len(again), len(first))
		}
		for j := range again {
			if again[j].ChunkID != first[j].ChunkID {
				t.Fatalf("order changed at %d: %d vs %d", j, again[j].ChunkID, first[j].ChunkID)
			}
			if math.Abs(again[j].Score-first[j].Score) > 1e-6 {
				t.Fatalf("score drifted at %d: %f vs %f", j, again[j].Score, first[j].Score)
			}
		}
	}
}

// failingEmbedder always errors, to exercise hybrid degradation.
type failingEmbedder struct{}

func (f *failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("model unavailable")
}
func (f *failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("model unavailable")
}
func (f *failingEmbedder) Dimensions() int { return 32 }
func (f *failingEmbedder) Type() string    { return "failing" }
func (f *failingEmbedder) Close() error    { return nil }

func TestHybridDegradesWhenVectorSearchFails(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	emb := embedding.NewMockEmbedder(32)
	vec, _ := emb.Embed(ctx, "sqlite database file")
	if err := s.Add(ctx, []*models.Chunk{{Content: "sqlite database file", Embedding: vec}}); err != nil {
		t.Fatal(err)
	}

	r := NewRetriever(s, &failingEmbedder{}, lexical.NewIndex(s), testSearchConfig(), 0, nil)
	defer r.Close()

	results, err := r.Query(ctx, "sqlite", 5, "hybrid")
	if err != nil {
		t.Fatalf("hybrid should degrade to keyword results, got error: %v", err)
	}
	if len(results) != 1 || results[0].BM25Rank != 1 {
		t.Errorf("expected the keyword hit to survive degradation: %+v", results)
	}

	// Vector mode has nothing to degrade to.
	if _, err := r.Query(ctx, "sqlite", 5, "vector"); err == nil {
		t.Error("vector mode should surface the embedder failure")
	}
}

func TestStats(t *testing.T) {
	r, _ := newTestRetriever(t, []string{"a chunk", "another chunk"})
	stats, err := r.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalDocuments != 2 {
		t.Errorf("expected 2 documents, got %d", stats.TotalDocuments)
	}
	if stats.EmbedderType != "mock" {
		t.Errorf("expected mock embedder, got %s", stats.EmbedderType)
	}
	if stats.DatabaseType != "sqlite-scan" {
		t.Errorf("expected sqlite-scan store, got %s", stats.DatabaseType)
	}
	if stats.Dimensions != 32 {
		t.Errorf("expected dimension 32, got %d", stats.Dimensions)
	}
}
