package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/hyperjump/erabu/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(path, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndGetByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chunk := &models.Chunk{
		Content:   "Artificial intelligence is a field of computer science.",
		Embedding: []float32{0.1, 0.2, 0.3},
		Metadata: models.ChunkMetadata{
			SourceDocument: "intro.txt",
			SourceHash:     "abc123",
			ChunkIndex:     0,
			CharStart:      0,
			CharEnd:        55,
		},
	}
	if err := s.Add(ctx, []*models.Chunk{chunk}); err != nil {
		t.Fatal(err)
	}
	if chunk.ID == 0 {
		t.Fatal("Add should assign an id")
	}

	got, err := s.GetByID(ctx, chunk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != chunk.Content {
		t.Errorf("round-trip content mismatch: %q", got.Content)
	}
	if got.Metadata.SourceDocument != "intro.txt" || got.Metadata.SourceHash != "abc123" {
		t.Errorf("metadata not round-tripped: %+v", got.Metadata)
	}
	if len(got.Embedding) != 3 {
		t.Errorf("embedding not round-tripped: %v", got.Embedding)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetByID(context.Background(), 999)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDimensionInference(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if s.Dimensions() != 0 {
		t.Fatalf("fresh store should have dimension 0, got %d", s.Dimensions())
	}
	err := s.Add(ctx, []*models.Chunk{{Content: "a", Embedding: []float32{1, 2}}})
	if err != nil {
		t.Fatal(err)
	}
	if s.Dimensions() != 2 {
		t.Errorf("expected dimension 2, got %d", s.Dimensions())
	}
}

func TestDimensionMismatchLeavesStoreUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Add(ctx, []*models.Chunk{{Content: "a", Embedding: []float32{1, 2, 3}}}); err != nil {
		t.Fatal(err)
	}

	err := s.Add(ctx, []*models.Chunk{
		{Content: "ok", Embedding: []float32{1, 1, 1}},
		{Content: "bad", Embedding: []float32{1, 1}},
	})
	if !errors.Is(err, models.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	count, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("mismatched batch must not be partially written, count = %d", count)
	}
}

func TestSearchEmptyStore(t *testing.T) {
	s := newTestStore(t)
	hits, err := s.Search(context.Background(), []float32{1, 2, 3}, 5)
	if err != nil {
		t.Fatalf("empty store search should not error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestSearchOrdersBySimilarity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chunks := []*models.Chunk{
		{Content: "near", Embedding: []float32{1, 0, 0}},
		{Content: "far", Embedding: []float32{0, 1, 1}},
		{Content: "exact", Embedding: []float32{0.9, 0.1, 0}},
	}
	if err := s.Add(ctx, chunks); err != nil {
		t.Fatal(err)
	}

	hits, err := s.Search(ctx, []float32{0.9, 0.1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Content != "exact" {
		t.Errorf("closest chunk should rank first, got %q", hits[0].Content)
	}
	if hits[0].Score < hits[1].Score {
		t.Error("hits should be ordered by descending similarity")
	}
	if math.Abs(hits[0].Score-1.0) > 1e-6 {
		t.Errorf("zero distance should score 1.0, got %f", hits[0].Score)
	}
	for _, h := range hits {
		if h.Score < 0 || h.Score > 1 {
			t.Errorf("similarity out of range: %f", h.Score)
		}
	}
}

func TestSearchQueryDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Add(ctx, []*models.Chunk{{Content: "a", Embedding: []float32{1, 2, 3}}}); err != nil {
		t.Fatal(err)
	}
	_, err := s.Search(ctx, []float32{1, 2}, 5)
	if !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestGetAllAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	batch := []*models.Chunk{
		{Content: "one", Embedding: []float32{1, 0}},
		{Content: "two", Embedding: []float32{0, 1}},
	}
	if err := s.Add(ctx, batch); err != nil {
		t.Fatal(err)
	}
	records, err := s.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0].Content != "one" || records[1].Content != "two" {
		t.Errorf("unexpected records: %+v", records)
	}
	count, _ := s.Count(ctx)
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Add(ctx, []*models.Chunk{{Content: "a", Embedding: []float32{1}}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	count, _ := s.Count(ctx)
	if count != 0 {
		t.Errorf("expected empty store after clear, got %d", count)
	}
}

func TestReopenKeepsDimensions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persist.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Add(ctx, []*models.Chunk{{Content: "a", Embedding: []float32{1, 2, 3, 4}}}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := NewSQLiteStore(path, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if s2.Dimensions() != 4 {
		t.Errorf("reopened store should keep dimension 4, got %d", s2.Dimensions())
	}
	err = s2.Add(ctx, []*models.Chunk{{Content: "b", Embedding: []float32{1, 2}}})
	if !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch after reopen, got %v", err)
	}
}

func TestStoreType(t *testing.T) {
	s := newTestStore(t)
	if s.Type() != "sqlite-scan" {
		t.Errorf("store without extension should report sqlite-scan, got %s", s.Type())
	}
}

func TestVectorCodecRoundTrip(t *testing.T) {
	in := []float32{0.5, -1.25, 3.75, 0}
	out := decodeVector(encodeVector(in))
	if len(out) != len(in) {
		t.Fatalf("length mismatch: %d", len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("index %d: %f != %f", i, in[i], out[i])
		}
	}
}
