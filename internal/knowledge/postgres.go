package knowledge

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"golang.org/x/sync/errgroup"

	"github.com/conviai/convi/pkg/provider/embeddings"
)

const (
	// ingestConcurrency bounds parallel embedding and upsert calls during
	// Ingest.
	ingestConcurrency = 8

	// ingestBatchSize is how many chunks are embedded per provider call.
	ingestBatchSize = 64
)

// Compile-time interface check.
var _ Retriever = (*Store)(nil)

// Store is the PostgreSQL-backed knowledge retriever. Chunks are stored in a
// knowledge_chunks table with a pgvector HNSW index for fast approximate
// nearest-neighbour search.
//
// All methods are safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// NewStore creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and runs
// [Migrate] to ensure the schema exists.
//
// embeddingDimensions must match the output dimension of embedder (e.g., 1536
// for OpenAI text-embedding-3-small). When non-positive it falls back to
// embedder.Dimensions(). Changing this value after the first migration
// requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embedder embeddings.Provider, embeddingDimensions int) (*Store, error) {
	if embeddingDimensions <= 0 && embedder != nil {
		embeddingDimensions = embedder.Dimensions()
	}
	if embeddingDimensions <= 0 {
		return nil, fmt.Errorf("knowledge store: embedding dimensions must be positive, got %d", embeddingDimensions)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("knowledge store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("knowledge store: migrate: %w", err)
	}

	return &Store{pool: pool, embedder: embedder}, nil
}

// ddlKnowledgeChunks returns the DDL with the embedding dimension substituted.
// The vector dimension is baked into the column type at schema creation time.
func ddlKnowledgeChunks(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS knowledge_chunks (
    id          TEXT         NOT NULL,
    domain      TEXT         NOT NULL,
    content     TEXT         NOT NULL,
    source      TEXT         NOT NULL DEFAULT '',
    embedding   vector(%d),
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (domain, id)
);

CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_domain
    ON knowledge_chunks (domain);

CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_embedding
    ON knowledge_chunks USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the knowledge schema exists. It is idempotent
// (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and safe to call
// on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlKnowledgeChunks(embeddingDimensions)); err != nil {
		return fmt.Errorf("knowledge migrate: %w", err)
	}
	return nil
}

// Ingest embeds and upserts the given chunks. Chunks that already carry an
// Embedding are stored as-is; the rest are embedded via the provider's batch
// call, [ingestBatchSize] chunks per call with at most [ingestConcurrency]
// calls in flight, then upserted concurrently.
//
// On error no partial rollback is attempted: chunks written before the
// failure remain in the table (the operation is idempotent, so re-running
// Ingest after fixing the cause converges).
func (s *Store) Ingest(ctx context.Context, chunks []Chunk) error {
	chunks = slices.Clone(chunks)

	var missing []int
	for i := range chunks {
		if chunks[i].Embedding == nil {
			missing = append(missing, i)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ingestConcurrency)
	for start := 0; start < len(missing); start += ingestBatchSize {
		batch := missing[start:min(start+ingestBatchSize, len(missing))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for j, idx := range batch {
				texts[j] = chunks[idx].Content
			}
			vecs, err := s.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("knowledge store: embed batch of %d chunks: %w", len(texts), err)
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("knowledge store: embed batch returned %d vectors for %d chunks", len(vecs), len(texts))
			}
			for j, idx := range batch {
				chunks[idx].Embedding = vecs[j]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(ingestConcurrency)
	for i := range chunks {
		g.Go(func() error {
			return s.upsert(gctx, chunks[i])
		})
	}
	return g.Wait()
}

// upsert writes one embedded chunk, replacing any existing chunk with the
// same (domain, id).
func (s *Store) upsert(ctx context.Context, c Chunk) error {
	const q = `
		INSERT INTO knowledge_chunks (id, domain, content, source, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (domain, id) DO UPDATE SET
		    content   = EXCLUDED.content,
		    source    = EXCLUDED.source,
		    embedding = EXCLUDED.embedding`

	_, err := s.pool.Exec(ctx, q, c.ID, c.Domain, c.Content, c.Source, pgvector.NewVector(c.Embedding))
	if err != nil {
		return fmt.Errorf("knowledge store: upsert chunk %q: %w", c.ID, err)
	}
	return nil
}

// Retrieve implements [Retriever]. The query is embedded and the topK chunks
// in domain with the smallest cosine distance are returned, most similar
// first. Score is 1 − cosine distance.
func (s *Store) Retrieve(ctx context.Context, domain, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		return []Result{}, nil
	}

	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: embed query: %w", err)
	}

	const q = `
		SELECT id, domain, content, source, embedding,
		       embedding <=> $1 AS distance
		FROM   knowledge_chunks
		WHERE  domain = $2
		ORDER  BY distance
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(queryEmbedding), domain, topK)
	if err != nil {
		return nil, fmt.Errorf("knowledge store: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Result, error) {
		var (
			r        Result
			vec      pgvector.Vector
			distance float64
		)
		if err := row.Scan(&r.Chunk.ID, &r.Chunk.Domain, &r.Chunk.Content, &r.Chunk.Source, &vec, &distance); err != nil {
			return Result{}, err
		}
		r.Chunk.Embedding = vec.Slice()
		r.Score = 1 - distance
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge store: scan rows: %w", err)
	}
	if results == nil {
		results = []Result{}
	}
	return results, nil
}

// Ping verifies database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
