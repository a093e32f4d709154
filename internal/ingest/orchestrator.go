package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/erabu/internal/config"
	"github.com/hyperjump/erabu/internal/embedding"
	"github.com/hyperjump/erabu/internal/lexical"
	"github.com/hyperjump/erabu/internal/models"
	"github.com/hyperjump/erabu/internal/store"
)

// Orchestrator chunks raw text, embeds each chunk in one batch, and writes the
// result to the vector store.
type Orchestrator struct {
	store    store.VectorStore
	embedder embedding.Embedder
	lexical  *lexical.Index // optional; invalidated after each write
	chunker  Chunker
	logger   *zap.Logger // optional; when set, logs debug events
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a logger for debug output (text ingested, file skipped, etc.).
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithChunker replaces the default word chunker.
func WithChunker(c Chunker) Option {
	return func(o *Orchestrator) { o.chunker = c }
}

// NewOrchestrator creates an orchestrator with the given dependencies.
// lex may be nil; when set, its cache is invalidated after every write so the
// next keyword query sees the new documents.
func NewOrchestrator(
	vs store.VectorStore,
	embedder embedding.Embedder,
	lex *lexical.Index,
	cfg *config.IngestConfig,
	opts ...Option,
) (*Orchestrator, error) {
	chunker, err := newChunker(cfg)
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		store:    vs,
		embedder: embedder,
		lexical:  lex,
		chunker:  chunker,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// newChunker maps the configured strategy to a chunker. Config validation
// rejects unknown strategies earlier; this guards direct construction too.
func newChunker(cfg *config.IngestConfig) (Chunker, error) {
	switch cfg.ChunkingStrategy {
	case "", "word":
		return NewWordChunker(cfg.ChunkSize, cfg.ChunkOverlap), nil
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q (accepted values: word)", cfg.ChunkingStrategy)
	}
}

// Ingest chunks text, embeds all chunks in a single batch, and persists them.
// sourceDocument is recorded on each chunk's metadata when non-empty. The
// returned summary carries the SHA-256 hash of the full input so callers can
// detect re-ingestion of the same document; the orchestrator itself does not
// deduplicate.
func (o *Orchestrator) Ingest(ctx context.Context, text, sourceDocument string) (*models.IngestSummary, error) {
	hash := sha256.Sum256([]byte(text))
	summary := &models.IngestSummary{
		SourceHash: hex.EncodeToString(hash[:]),
	}
	pieces := o.chunker.Chunk(text)
	if len(pieces) == 0 {
		return summary, nil
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Content
	}
	embeddings, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(pieces) {
		return nil, fmt.Errorf("%w: %d chunks, %d embeddings",
			models.ErrEmbeddingMismatch, len(pieces), len(embeddings))
	}

	chunks := make([]*models.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = &models.Chunk{
			Content:   p.Content,
			Embedding: embeddings[i],
			Metadata: models.ChunkMetadata{
				SourceDocument:   sourceDocument,
				SourceHash:       summary.SourceHash,
				ChunkingStrategy: o.chunker.Strategy(),
				ChunkIndex:       p.ChunkIndex,
				CharStart:        p.CharStart,
				CharEnd:          p.CharEnd,
			},
		}
	}

	before, err := o.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if err := o.store.Add(ctx, chunks); err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}
	after, err := o.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if o.lexical != nil {
		o.lexical.Invalidate()
	}

	summary.ChunksProcessed = len(chunks)
	summary.NewDocumentsAdded = after - before
	if o.logger != nil {
		o.logger.Debug("ingested text",
			zap.String("source", sourceDocument),
			zap.Int("chunks", summary.ChunksProcessed),
			zap.String("source_hash", summary.SourceHash[:12]))
	}
	return summary, nil
}

// IngestFile reads a file and ingests its content as plain text. The file's
// base name is recorded as the source document. If allowedExts is non-empty,
// the file's extension must be in the list (case-insensitive).
func (o *Orchestrator) IngestFile(ctx context.Context, path string, allowedExts []string) (*models.IngestSummary, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return nil, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	summary, err := o.Ingest(ctx, string(content), filepath.Base(absPath))
	if err != nil {
		return nil, err
	}
	if o.logger != nil {
		o.logger.Debug("ingested file", zap.String("path", absPath), zap.Int("chunks", summary.ChunksProcessed))
	}
	return summary, nil
}

// IngestDirectory walks dir recursively and ingests each regular file whose
// extension is in allowedExts (if non-empty; otherwise all files). Returns the
// number of files ingested and the first error encountered, if any.
func (o *Orchestrator) IngestDirectory(ctx context.Context, dir string, allowedExts []string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		// Resolve symlinks so we only ingest regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil {
			return nil
		}
		if !finfo.Mode().IsRegular() {
			return nil
		}
		if _, ingestErr := o.IngestFile(ctx, path, allowedExts); ingestErr != nil {
			return ingestErr
		}
		n++
		return nil
	})
	return n, err
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
