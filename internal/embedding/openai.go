package embedding

import (
	"context"
	"fmt"
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

// embeddingsAPI is the slice of the OpenAI client used here, for test injection.
type embeddingsAPI interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// APIEmbedder calls an OpenAI-embeddings-compatible HTTP endpoint. It works
// against the OpenAI API itself as well as local servers speaking the same
// protocol (llama.cpp, Ollama, LM Studio).
type APIEmbedder struct {
	client     embeddingsAPI
	model      string
	dimensions int
	cache      *Cache
}

// APIConfig configures an APIEmbedder.
type APIConfig struct {
	// BaseURL of the embeddings server, e.g. "https://api.openai.com/v1" or
	// "http://localhost:8080/v1". Empty means the OpenAI default.
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	CacheSize  int
}

// NewAPIEmbedder creates an embedder backed by a remote embeddings API.
func NewAPIEmbedder(cfg APIConfig) (*APIEmbedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding API model must be set")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return &APIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		cache:      NewCache(cacheSize),
	}, nil
}

// Embed returns the embedding for a single text.
func (e *APIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	embs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embs[0], nil
}

// EmbedBatch embeds all texts in one API call. Providers do not guarantee
// response order matches request order, so entries are re-sorted by index
// before returning. A count mismatch fails the whole batch.
func (e *APIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings API call failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings API returned %d vectors for %d texts", len(resp.Data), len(texts))
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		if len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("embeddings API returned dimension %d, expected %d", len(d.Embedding), e.dimensions)
		}
		out[i] = d.Embedding
		e.cache.Put(texts[i], d.Embedding)
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *APIEmbedder) Dimensions() int {
	return e.dimensions
}

// Type returns the embedder type identifier.
func (e *APIEmbedder) Type() string {
	return "openai"
}

// Close is a no-op for APIEmbedder.
func (e *APIEmbedder) Close() error {
	return nil
}
