package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"repolens/pkg/models"
)

// Store persists chunk vectors and metadata in Postgres/pgvector.
type Store struct {
	pool *pgxpool.Pool
}

// Filters restricts a similarity search.
type Filters struct {
	Language   string // optional: "go"|"python"|...
	PathPrefix string // optional path prefix filter
}

// ChunkStore defines the vector-store surface the pipeline depends on.
type ChunkStore interface {
	Migrate(ctx context.Context, dim int) error
	UpsertBatch(ctx context.Context, chunks []models.Chunk) error
	MarkRevisionIndexed(ctx context.Context, revision string) error
	IsRevisionIndexed(ctx context.Context, revision string) (bool, error)
	Search(ctx context.Context, vec []float32, k int, f Filters) ([]models.Candidate, error)
}

// New creates a new Store instance connected to the given database URL.
func New(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Migrate applies the schema. The embedding column is NOT NULL: a chunk
// without an embedding cannot enter the index, so search can never surface
// one.
func (s *Store) Migrate(ctx context.Context, dim int) error {
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS chunks (
  id           TEXT PRIMARY KEY,
  path         TEXT NOT NULL,
  language     TEXT,
  kind         TEXT,
  content      TEXT,
  content_hash TEXT NOT NULL,
  line_start   INT NOT NULL,
  line_end     INT NOT NULL,
  token_count  INT,
  embedding    vector(%d) NOT NULL,
  created_at   TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS chunks_path_span_uidx
  ON chunks (path, line_start, line_end);

CREATE INDEX IF NOT EXISTS chunks_hash_idx
  ON chunks (content_hash);

CREATE INDEX IF NOT EXISTS chunks_language_idx
  ON chunks (language);

CREATE INDEX IF NOT EXISTS chunks_embedding_idx
  ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);

CREATE TABLE IF NOT EXISTS revisions (
  revision   TEXT PRIMARY KEY,
  indexed_at TIMESTAMP WITH TIME ZONE DEFAULT now()
);
`
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(q, dim)); err != nil {
		return &models.IndexStoreError{Op: "migrate", Err: err}
	}
	return nil
}

// UpsertBatch writes one batch of embedded chunks inside a single
// transaction: the whole batch commits or none of it does. Writes are
// idempotent, the same path and line span overwrites rather than duplicates.
func (s *Store) UpsertBatch(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if c.Embedding == nil {
			return &models.IndexStoreError{
				Op:  "upsert",
				Err: fmt.Errorf("chunk %s:%d-%d has no embedding", c.Path, c.StartLine, c.EndLine),
			}
		}
	}

	const q = `
		INSERT INTO chunks (
			id, path, language, kind, content, content_hash,
			line_start, line_end, token_count, embedding, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now())
		ON CONFLICT (path, line_start, line_end) DO UPDATE SET
			language     = EXCLUDED.language,
			kind         = EXCLUDED.kind,
			content      = EXCLUDED.content,
			content_hash = EXCLUDED.content_hash,
			token_count  = EXCLUDED.token_count,
			embedding    = EXCLUDED.embedding,
			created_at   = chunks.created_at;`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &models.IndexStoreError{Op: "upsert", Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, c := range chunks {
		_, err := tx.Exec(ctx, q,
			chunkID(c.Path, c.StartLine, c.EndLine), c.Path, c.Language, string(c.Kind),
			c.Content, c.ContentHash, c.StartLine, c.EndLine, c.TokenCount,
			pgvector.NewVector(c.Embedding),
		)
		if err != nil {
			return &models.IndexStoreError{Op: "upsert", Err: err}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return &models.IndexStoreError{Op: "upsert", Err: err}
	}
	return nil
}

// MarkRevisionIndexed records that a snapshot revision finished ingestion.
func (s *Store) MarkRevisionIndexed(ctx context.Context, revision string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO revisions (revision) VALUES ($1) ON CONFLICT (revision) DO NOTHING`, revision)
	if err != nil {
		return &models.IndexStoreError{Op: "mark revision", Err: err}
	}
	return nil
}

// IsRevisionIndexed reports whether a revision completed a prior run.
func (s *Store) IsRevisionIndexed(ctx context.Context, revision string) (bool, error) {
	var found string
	err := s.pool.QueryRow(ctx,
		`SELECT revision FROM revisions WHERE revision = $1`, revision).Scan(&found)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, &models.IndexStoreError{Op: "revision lookup", Err: err}
	}
	return true, nil
}

// Search runs a cosine similarity search restricted by the filters and
// returns up to k candidates with their raw similarity.
func (s *Store) Search(ctx context.Context, vec []float32, k int, f Filters) ([]models.Candidate, error) {
	args := []any{pgvector.NewVector(vec)}
	where := "TRUE"
	ai := 2
	if f.Language != "" {
		where += fmt.Sprintf(" AND language = $%d", ai)
		args = append(args, f.Language)
		ai++
	}
	if f.PathPrefix != "" {
		where += fmt.Sprintf(" AND path LIKE $%d || '%%'", ai)
		args = append(args, f.PathPrefix)
	}

	q := fmt.Sprintf(`
SELECT path, language, kind, content, content_hash, line_start, line_end, token_count,
       1 - (embedding <=> $1) AS score
FROM chunks
WHERE %s
ORDER BY embedding <=> $1, path, line_start
LIMIT %d;`, where, k)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		var c models.Chunk
		var kind string
		var score float64
		if err := rows.Scan(
			&c.Path, &c.Language, &kind, &c.Content, &c.ContentHash,
			&c.StartLine, &c.EndLine, &c.TokenCount, &score,
		); err != nil {
			return nil, err
		}
		c.Kind = models.ChunkKind(kind)
		out = append(out, models.Candidate{Chunk: c, RawScore: score})
	}
	return out, rows.Err()
}

// Ping checks the database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// chunkID derives a stable primary key from a chunk's file coordinates.
func chunkID(path string, start, end int) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s#%d:%d", path, start, end))
	return hex.EncodeToString(h[:])
}
