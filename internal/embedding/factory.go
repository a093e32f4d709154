package embedding

import (
	"fmt"

	"github.com/hyperjump/erabu/internal/config"
)

// NewEmbedder creates an embedder from config. Supported providers:
// "mock" (deterministic, no model), "onnx" (local in-process model, requires
// CGO), "openai" (remote OpenAI-compatible API).
func NewEmbedder(cfg *config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "mock", "":
		return NewMockEmbedder(cfg.Dimensions), nil
	case "onnx":
		return NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens, cfg.CacheSize)
	case "openai":
		return NewAPIEmbedder(APIConfig{
			BaseURL:    cfg.APIBase,
			APIKey:     cfg.APIKey(),
			Model:      cfg.APIModel,
			Dimensions: cfg.Dimensions,
			CacheSize:  cfg.CacheSize,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q (supported: mock, onnx, openai)", cfg.Provider)
	}
}
