// Package config provides configuration loading and structs for the erabu retriever.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the database path and the optional sqlite-vec extension.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	// VecExtensionPath points at the sqlite-vec loadable extension (vec0).
	// When empty or the extension fails to load, the store falls back to a
	// linear scan and logs degraded-mode operation.
	VecExtensionPath string `yaml:"vec_extension_path"`
}

// EmbeddingConfig holds embedder settings for the local and remote providers.
type EmbeddingConfig struct {
	// Provider selects the embedder: "mock", "onnx", or "openai".
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
	// APIBase is the base URL of an OpenAI-embeddings-compatible server
	// (e.g. http://localhost:8080/v1 for a local llama.cpp server).
	APIBase string `yaml:"api_base"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`
	APIModel  string `yaml:"api_model"`
	// TimeoutSeconds bounds one embedding call; remote APIs are the calls
	// most likely to hang.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the embedding timeout as a duration.
func (e *EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// APIKey reads the configured API key from the environment.
func (e *EmbeddingConfig) APIKey() string {
	return os.Getenv(e.APIKeyEnv)
}

// SearchConfig holds retrieval settings.
type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	// RRFK is the Reciprocal Rank Fusion constant (default 60, from the RRF paper).
	RRFK int `yaml:"rrf_k"`
	// OverfetchFactor and CandidateCap bound how many candidates each
	// sub-search contributes to fusion: min(topK*factor, cap).
	OverfetchFactor int `yaml:"overfetch_factor"`
	CandidateCap    int `yaml:"candidate_cap"`
}

// IngestConfig holds chunking settings for the ingestion path.
type IngestConfig struct {
	// ChunkingStrategy selects the chunker; "word" is the only shipped strategy.
	ChunkingStrategy string `yaml:"chunking_strategy"`
	ChunkSize        int    `yaml:"chunk_size"`
	ChunkOverlap     int    `yaml:"chunk_overlap"`
}

// WatchConfig holds directory watch settings for auto-ingesting transcript files.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Storage.VecExtensionPath != "" {
		cfg.Storage.VecExtensionPath = expandPath(cfg.Storage.VecExtensionPath, configDir)
	}
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate rejects configuration values that have no usable interpretation.
// Called by Load after defaults are applied, so only explicitly bad values
// can fail here.
func Validate(cfg *Config) error {
	if cfg.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive, got %d", cfg.Ingest.ChunkSize)
	}
	if cfg.Ingest.ChunkOverlap < 0 {
		return fmt.Errorf("ingest.chunk_overlap must not be negative, got %d", cfg.Ingest.ChunkOverlap)
	}
	if cfg.Ingest.ChunkingStrategy != "word" {
		return fmt.Errorf("unknown ingest.chunking_strategy %q (accepted values: word)", cfg.Ingest.ChunkingStrategy)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
