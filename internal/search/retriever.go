package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/erabu/internal/config"
	"github.com/hyperjump/erabu/internal/embedding"
	"github.com/hyperjump/erabu/internal/lexical"
	"github.com/hyperjump/erabu/internal/models"
	"github.com/hyperjump/erabu/internal/store"
)

// Retriever is the single query entry point. It owns one embedder instance
// for its lifetime and holds the lazily-built lexical index. It is safe for
// concurrent queries; callers wanting request-level parallelism beyond one
// database connection pool should use one retriever per worker.
type Retriever struct {
	store        store.VectorStore
	embedder     embedding.Embedder
	lexical      *lexical.Index
	cfg          *config.SearchConfig
	embedTimeout time.Duration
	logger       *zap.Logger
}

// NewRetriever creates a retriever over the given components.
// embedTimeout bounds each embedding call; zero means no timeout.
// logger may be nil.
func NewRetriever(
	vs store.VectorStore,
	embedder embedding.Embedder,
	lex *lexical.Index,
	cfg *config.SearchConfig,
	embedTimeout time.Duration,
	logger *zap.Logger,
) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		store:        vs,
		embedder:     embedder,
		lexical:      lex,
		cfg:          cfg,
		embedTimeout: embedTimeout,
		logger:       logger,
	}
}

// Query runs a search in the given mode ("vector", "keyword", "hybrid"; empty
// defaults to hybrid). An unknown mode is a configuration error naming the
// accepted values. An empty or whitespace-only question returns an empty
// result without error. topK <= 0 uses the configured default.
func (r *Retriever) Query(ctx context.Context, question string, topK int, mode string) ([]models.SearchResult, error) {
	parsed, err := models.ParseMode(mode)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(question) == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = r.cfg.DefaultTopK
	}

	switch parsed {
	case models.ModeVector:
		return r.vectorSearch(ctx, question, topK)
	case models.ModeKeyword:
		return r.keywordSearch(ctx, question, topK)
	default:
		return r.hybridSearch(ctx, question, topK)
	}
}

// vectorSearch embeds the question and ranks chunks by embedding similarity.
func (r *Retriever) vectorSearch(ctx context.Context, question string, topK int) ([]models.SearchResult, error) {
	hits, err := r.vectorHits(ctx, question, topK)
	if err != nil {
		return nil, err
	}
	results := make([]models.SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = models.SearchResult{
			ChunkID:     hit.ID,
			Content:     hit.Content,
			Score:       hit.Score,
			VectorScore: hit.Score,
			VectorRank:  i + 1,
		}
	}
	return results, nil
}

// keywordSearch ranks chunks by lexical relevance only.
func (r *Retriever) keywordSearch(ctx context.Context, question string, topK int) ([]models.SearchResult, error) {
	hits, err := r.lexical.Search(ctx, question, topK)
	if err != nil {
		return nil, err
	}
	results := make([]models.SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = models.SearchResult{
			ChunkID:   hit.ID,
			Content:   hit.Content,
			Score:     hit.Score,
			BM25Score: hit.Score,
			BM25Rank:  hit.Rank,
		}
	}
	return results, nil
}

// hybridSearch runs the vector and lexical sub-searches concurrently, each
// over-fetching min(topK*factor, cap) candidates, and fuses the rankings with
// RRF. One failed sub-search degrades to the other's results (logged); only
// both failing fails the query.
func (r *Retriever) hybridSearch(ctx context.Context, question string, topK int) ([]models.SearchResult, error) {
	candidates := topK * r.cfg.OverfetchFactor
	if candidates > r.cfg.CandidateCap {
		candidates = r.cfg.CandidateCap
	}
	if candidates < topK {
		candidates = topK
	}

	var (
		vectorHits  []store.SearchHit
		lexicalHits []lexical.Hit
		vectorErr   error
		lexicalErr  error
		wg          sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorHits, vectorErr = r.vectorHits(ctx, question, candidates)
	}()
	go func() {
		defer wg.Done()
		lexicalHits, lexicalErr = r.lexical.Search(ctx, question, candidates)
	}()
	wg.Wait()

	if vectorErr != nil && lexicalErr != nil {
		return nil, fmt.Errorf("hybrid search failed: vector: %v; keyword: %w", vectorErr, lexicalErr)
	}
	if vectorErr != nil {
		r.logger.Warn("vector sub-search failed, degrading to keyword results", zap.Error(vectorErr))
	}
	if lexicalErr != nil {
		r.logger.Warn("keyword sub-search failed, degrading to vector results", zap.Error(lexicalErr))
	}

	return FuseRRF(vectorHits, lexicalHits, r.cfg.RRFK, topK), nil
}

// vectorHits embeds the question (bounded by the embed timeout) and queries
// the store's KNN index.
func (r *Retriever) vectorHits(ctx context.Context, question string, k int) ([]store.SearchHit, error) {
	embedCtx := ctx
	if r.embedTimeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, r.embedTimeout)
		defer cancel()
	}
	queryEmbedding, err := r.embedder.Embed(embedCtx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	hits, err := r.store.Search(ctx, queryEmbedding, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return hits, nil
}

// Stats reports the state of the retriever's backing components.
func (r *Retriever) Stats(ctx context.Context) (*models.Stats, error) {
	count, err := r.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	return &models.Stats{
		TotalDocuments: count,
		EmbedderType:   r.embedder.Type(),
		DatabaseType:   r.store.Type(),
		Dimensions:     r.store.Dimensions(),
	}, nil
}

// Close releases the retriever's owned resources (embedder and lexical cache).
// The vector store is owned by the caller.
func (r *Retriever) Close() error {
	lexErr := r.lexical.Close()
	if err := r.embedder.Close(); err != nil {
		return err
	}
	return lexErr
}
