package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kyj44123-afk/cpla.ai-sub001/internal/models"
	cache "github.com/patrickmn/go-cache"
	"github.com/pgvector/pgvector-go"
)

type VectorStoreConfig struct {
	ConnString    string
	ChunkTable    string
	DocumentTable string
	VectorDim     int
	SearchLimit   int
	MetaCacheTTL  time.Duration
	AutoMigrate   bool
}

// VectorStore reads the chunk index written by the ingestion process.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
	meta   *cache.Cache
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.ChunkTable == "" {
		config.ChunkTable = "document_chunks"
	}
	if config.DocumentTable == "" {
		config.DocumentTable = "documents"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 5
	}
	if config.MetaCacheTTL == 0 {
		config.MetaCacheTTL = 10 * time.Minute
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
		meta:   cache.New(config.MetaCacheTTL, 2*config.MetaCacheTTL),
	}

	if config.AutoMigrate {
		if err := vs.initialize(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createDocuments := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			source TEXT,
			filename TEXT
		)`, vs.config.DocumentTable)

	if _, err := vs.pool.Exec(ctx, createDocuments); err != nil {
		return fmt.Errorf("failed to create document table: %w", err)
	}

	// seq records insertion order and breaks similarity ties
	createChunks := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			document_id TEXT NOT NULL REFERENCES %s (id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d)
		)`, vs.config.ChunkTable, vs.config.DocumentTable, vs.config.VectorDim)

	if _, err := vs.pool.Exec(ctx, createChunks); err != nil {
		return fmt.Errorf("failed to create chunk table: %w", err)
	}

	// Create vector index
	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING hnsw (embedding vector_cosine_ops)`,
		vs.config.ChunkTable, vs.config.ChunkTable)

	if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// NearestChunks returns the k chunks closest to vector by cosine
// similarity, most similar first. Equal scores keep insertion order.
func (vs *VectorStore) NearestChunks(ctx context.Context, vector []float32, k int) ([]models.ScoredChunk, error) {
	if k == 0 {
		k = vs.config.SearchLimit
	}

	query := fmt.Sprintf(`
		SELECT id, document_id, chunk_index, content, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1, seq
		LIMIT $2`,
		vs.config.ChunkTable)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.ScoredChunk
	for rows.Next() {
		var sc models.ScoredChunk
		err := rows.Scan(
			&sc.Chunk.ChunkID,
			&sc.Chunk.DocumentID,
			&sc.Chunk.ChunkIndex,
			&sc.Chunk.Text,
			&sc.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		chunks = append(chunks, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}

	return chunks, nil
}

// DocumentMeta resolves citation metadata for documentIDs. Unknown ids are
// absent from the result.
func (vs *VectorStore) DocumentMeta(ctx context.Context, documentIDs []string) (map[string]models.DocumentMeta, error) {
	out := make(map[string]models.DocumentMeta, len(documentIDs))

	var missing []string
	for _, id := range documentIDs {
		if v, ok := vs.meta.Get(id); ok {
			out[id] = v.(models.DocumentMeta)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	query := fmt.Sprintf(`
		SELECT id, title, COALESCE(source, ''), COALESCE(filename, '')
		FROM %s
		WHERE id = ANY($1)`,
		vs.config.DocumentTable)

	rows, err := vs.pool.Query(ctx, query, missing)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.DocumentMeta
		if err := rows.Scan(&m.DocumentID, &m.Title, &m.Source, &m.Filename); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		vs.meta.SetDefault(m.DocumentID, m)
		out[m.DocumentID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	return out, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}
