package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hyperjump/erabu/internal/models"
)

const vecDriverName = "sqlite3_with_vec"

var (
	vecDriverOnce sync.Once
	vecDriverPath string
)

// registerVecDriver registers a go-sqlite3 driver that loads the sqlite-vec
// extension on every connection. database/sql drivers register process-wide,
// so one extension path applies per process.
func registerVecDriver(extPath string) {
	vecDriverOnce.Do(func() {
		vecDriverPath = extPath
		sql.Register(vecDriverName, &sqlite3.SQLiteDriver{
			Extensions: []string{extPath},
		})
	})
}

// SQLiteStore implements VectorStore on a single SQLite database. When the
// sqlite-vec extension is available KNN queries run against a vec0 virtual
// table; otherwise the store falls back to a linear scan over embedding BLOBs,
// which is correct but slow on large corpora, and says so at open time.
type SQLiteStore struct {
	db         *sql.DB
	nativeKNN  bool
	dimensions int
	mu         sync.Mutex // guards dimension inference and vec table creation
	logger     *zap.Logger
}

// NewSQLiteStore opens or creates the database at dbPath. vecExtensionPath
// points at the sqlite-vec loadable extension; when empty or the extension
// cannot be loaded the store runs in degraded linear-scan mode.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath, vecExtensionPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, native, err := openDatabase(dbPath, vecExtensionPath, logger)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStore{db: db, nativeKNN: native, logger: logger}
	if err := s.loadDimensions(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if s.nativeKNN && s.dimensions > 0 {
		if err := s.ensureVecTable(s.dimensions); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if !s.nativeKNN {
		logger.Warn("native KNN index unavailable, falling back to linear scan",
			zap.String("database", dbPath))
	}
	return s, nil
}

// openDatabase opens dbPath with the sqlite-vec driver when possible, probing
// for the vec0 module, and falls back to the plain driver otherwise.
func openDatabase(dbPath, vecExtensionPath string, logger *zap.Logger) (*sql.DB, bool, error) {
	if vecExtensionPath != "" {
		registerVecDriver(vecExtensionPath)
		if vecDriverPath == vecExtensionPath {
			db, err := sql.Open(vecDriverName, dbPath)
			if err == nil {
				var version string
				if probeErr := db.QueryRow("SELECT vec_version()").Scan(&version); probeErr == nil {
					logger.Debug("sqlite-vec loaded", zap.String("version", version))
					return db, true, nil
				}
				_ = db.Close()
			}
			logger.Warn("failed to load sqlite-vec extension",
				zap.String("extension", vecExtensionPath))
		} else {
			logger.Warn("sqlite-vec driver already registered with a different extension path",
				zap.String("registered", vecDriverPath),
				zap.String("requested", vecExtensionPath))
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open database: %w", err)
	}
	return db, false, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content TEXT NOT NULL,
		metadata TEXT,
		embedding BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteStore) loadDimensions() error {
	var value string
	err := s.db.QueryRow(`SELECT value FROM store_meta WHERE key = 'dimensions'`).Scan(&value)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read store dimensions: %w", err)
	}
	dims, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("corrupt dimensions metadata %q: %w", value, err)
	}
	s.dimensions = dims
	return nil
}

// ensureVecTable creates the vec0 virtual table for the given dimension and
// backfills any chunks inserted while running in fallback mode.
func (s *SQLiteStore) ensureVecTable(dims int) error {
	ddl := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors USING vec0(embedding float[%d])`, dims)
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to create vec0 table: %w", err)
	}
	_, err := s.db.Exec(`
		INSERT INTO chunk_vectors(rowid, embedding)
		SELECT id, embedding FROM chunks
		WHERE id NOT IN (SELECT rowid FROM chunk_vectors)`)
	if err != nil {
		return fmt.Errorf("failed to backfill vec0 table: %w", err)
	}
	return nil
}

// Add persists chunks in one transaction. The store's dimension is inferred
// from the first chunk of the first batch; any mismatch aborts the whole
// batch with models.ErrDimensionMismatch and no partial write.
func (s *SQLiteStore) Add(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dims := s.dimensions
	if dims == 0 {
		dims = len(chunks[0].Embedding)
		if dims == 0 {
			return fmt.Errorf("%w: first chunk has an empty embedding", models.ErrDimensionMismatch)
		}
	}
	for i, chunk := range chunks {
		if len(chunk.Embedding) != dims {
			return fmt.Errorf("%w: chunk %d has dimension %d, store expects %d",
				models.ErrDimensionMismatch, i, len(chunk.Embedding), dims)
		}
	}

	firstBatch := s.dimensions == 0
	if firstBatch && s.nativeKNN {
		if err := s.ensureVecTable(dims); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if firstBatch {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO store_meta (key, value) VALUES ('dimensions', ?)`,
			strconv.Itoa(dims),
		); err != nil {
			return fmt.Errorf("failed to persist dimensions: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (content, metadata, embedding, created_at) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, chunk := range chunks {
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		chunk.CreatedAt = now
		res, err := stmt.ExecContext(ctx,
			chunk.Content, string(metadataJSON), encodeVector(chunk.Embedding), chunk.CreatedAt)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		chunk.ID = id
		if s.nativeKNN {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO chunk_vectors (rowid, embedding) VALUES (?, ?)`,
				id, encodeVector(chunk.Embedding),
			); err != nil {
				return fmt.Errorf("failed to index vector: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.dimensions = dims
	return nil
}

// Search returns up to topK chunks by ascending L2 distance to query,
// scored as 1/(1+distance). An empty store returns an empty result.
func (s *SQLiteStore) Search(ctx context.Context, query []float32, topK int) ([]SearchHit, error) {
	if topK <= 0 {
		return nil, nil
	}
	if s.Dimensions() == 0 {
		return nil, nil
	}
	if len(query) != s.Dimensions() {
		return nil, fmt.Errorf("%w: query has dimension %d, store expects %d",
			models.ErrDimensionMismatch, len(query), s.Dimensions())
	}
	if s.nativeKNN {
		return s.searchNative(ctx, query, topK)
	}
	return s.searchScan(ctx, query, topK)
}

func (s *SQLiteStore) searchNative(ctx context.Context, query []float32, topK int) ([]SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.content, v.distance
		FROM chunk_vectors v
		JOIN chunks c ON c.id = v.rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance`,
		encodeVector(query), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var hit SearchHit
		var distance float64
		if err := rows.Scan(&hit.ID, &hit.Content, &distance); err != nil {
			return nil, err
		}
		hit.Score = similarityFromDistance(distance)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// searchScan is the degraded fallback: decode every embedding and rank by
// distance in application code.
func (s *SQLiteStore) searchScan(ctx context.Context, query []float32, topK int) ([]SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, embedding FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("vector scan failed: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var id int64
		var content string
		var blob []byte
		if err := rows.Scan(&id, &content, &blob); err != nil {
			return nil, err
		}
		vec := decodeVector(blob)
		if len(vec) != len(query) {
			continue
		}
		hits = append(hits, SearchHit{
			ID:      id,
			Content: content,
			Score:   similarityFromDistance(l2Distance(query, vec)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

// GetAll returns the id and content of every chunk in insertion order.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, content FROM chunks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ChunkRecord
	for rows.Next() {
		var rec ChunkRecord
		if err := rows.Scan(&rec.ID, &rec.Content); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetByID returns a chunk by id, including its embedding and metadata.
func (s *SQLiteStore) GetByID(ctx context.Context, id int64) (*models.Chunk, error) {
	var chunk models.Chunk
	var metadataJSON sql.NullString
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, content, metadata, embedding, created_at FROM chunks WHERE id = ?`, id,
	).Scan(&chunk.ID, &chunk.Content, &metadataJSON, &blob, &chunk.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chunk %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	chunk.Embedding = decodeVector(blob)
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &chunk, nil
}

// Count returns the total number of chunks.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// Clear removes all chunks and vectors. The store's dimension is retained.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return err
	}
	if s.nativeKNN {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_vectors`); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Dimensions returns the store's fixed vector dimension, 0 before the first Add.
func (s *SQLiteStore) Dimensions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dimensions
}

// Type identifies the active KNN path.
func (s *SQLiteStore) Type() string {
	if s.nativeKNN {
		return "sqlite-vec"
	}
	return "sqlite-scan"
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
