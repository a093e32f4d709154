// Package lexical provides keyword (BM25-style) relevance ranking over the
// chunk corpus, independent of embeddings.
package lexical

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/hyperjump/erabu/internal/store"
)

// CorpusSource supplies the documents to index. Satisfied by store.VectorStore.
type CorpusSource interface {
	GetAll(ctx context.Context) ([]store.ChunkRecord, error)
}

// Hit is a single lexical search hit. Rank is the 1-based position in the
// lexical ranking; Score is the raw relevance (non-negative, unbounded above).
type Hit struct {
	ID      int64
	Content string
	Score   float64
	Rank    int
}

// Index ranks chunks by keyword relevance using an in-memory Bleve index with
// the standard analyzer (lowercase + tokenize, no stemming).
//
// The index is built lazily from CorpusSource.GetAll on the first search and
// cached. Freshness contract: the ingestion path calls Invalidate after every
// write, and the next search rebuilds — queries between a write and the next
// rebuild never see a half-updated index.
type Index struct {
	source CorpusSource

	mu       sync.Mutex
	idx      bleve.Index
	contents map[int64]string
	stale    bool
}

// indexedChunk is the document shape fed to Bleve.
type indexedChunk struct {
	Content string `json:"content"`
}

// NewIndex creates a lexical index over the given corpus source.
func NewIndex(source CorpusSource) *Index {
	return &Index{source: source, stale: true}
}

// Invalidate marks the cached index stale; the next search rebuilds it.
func (i *Index) Invalidate() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stale = true
}

// Search returns up to topK chunks ranked by keyword relevance. An empty or
// whitespace-only query, or an empty corpus, yields an empty result.
func (i *Index) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	if strings.TrimSpace(query) == "" || topK <= 0 {
		return nil, nil
	}
	idx, contents, err := i.ensureBuilt(ctx)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = topK
	results, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	hits := make([]Hit, 0, len(results.Hits))
	for rank, hit := range results.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt lexical doc id %q: %w", hit.ID, err)
		}
		hits = append(hits, Hit{
			ID:      id,
			Content: contents[id],
			Score:   hit.Score,
			Rank:    rank + 1,
		})
	}
	return hits, nil
}

// ensureBuilt returns the current index snapshot, rebuilding it from the
// corpus source when stale. Rebuilds are serialized; searches run on the
// returned snapshot outside the lock.
func (i *Index) ensureBuilt(ctx context.Context) (bleve.Index, map[int64]string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.stale && i.idx != nil {
		return i.idx, i.contents, nil
	}

	records, err := i.source.GetAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load corpus for lexical index: %w", err)
	}
	if i.idx != nil {
		_ = i.idx.Close()
		i.idx = nil
		i.contents = nil
	}
	i.stale = false
	if len(records) == 0 {
		return nil, nil, nil
	}

	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create lexical index: %w", err)
	}
	batch := idx.NewBatch()
	contents := make(map[int64]string, len(records))
	for _, rec := range records {
		contents[rec.ID] = rec.Content
		if err := batch.Index(strconv.FormatInt(rec.ID, 10), indexedChunk{Content: rec.Content}); err != nil {
			_ = idx.Close()
			return nil, nil, fmt.Errorf("failed to index chunk %d: %w", rec.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, nil, fmt.Errorf("failed to build lexical index: %w", err)
	}
	i.idx = idx
	i.contents = contents
	return idx, contents, nil
}

// buildMapping indexes the content field with the standard analyzer so that
// queries match exact lowercase tokens without stemming surprises.
func buildMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	im.DefaultMapping = docMapping
	return im
}

// Close releases the in-memory index.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.idx != nil {
		err := i.idx.Close()
		i.idx = nil
		return err
	}
	return nil
}
