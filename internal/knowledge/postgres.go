package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgvector "github.com/pgvector/pgvector-go"
)

// Schema returns the DDL for the knowledge table. The vector dimension is
// part of the column type; changing it later needs a manual migration.
func Schema(dimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS knowledge (
    id         BIGSERIAL PRIMARY KEY,
    knowledge  TEXT      NOT NULL,
    lore_level INTEGER   NOT NULL DEFAULT 0,
    embedding  vector(%d) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_knowledge_lore_level
    ON knowledge (lore_level);

CREATE INDEX IF NOT EXISTS idx_knowledge_embedding
    ON knowledge USING hnsw (embedding vector_cosine_ops);
`, dimensions)
}

// DB is the subset of *pgxpool.Pool used by [PostgresIndex]. Connections
// must have the pgvector types registered (pgxvec.RegisterTypes).
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresIndex is an [Index] backed by a pgvector HNSW index.
type PostgresIndex struct {
	db         DB
	dimensions int
}

var _ Index = (*PostgresIndex)(nil)

// NewPostgresIndex creates a PostgresIndex for embeddings of the given
// dimension.
func NewPostgresIndex(db DB, dimensions int) *PostgresIndex {
	return &PostgresIndex{db: db, dimensions: dimensions}
}

// Migrate creates the vector extension, table and indexes.
func (p *PostgresIndex) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema(p.dimensions)); err != nil {
		return fmt.Errorf("knowledge: migrate: %w", err)
	}
	return nil
}

// Add implements [Index.Add].
func (p *PostgresIndex) Add(ctx context.Context, e Entry, embedding []float32) (int64, error) {
	if len(embedding) != p.dimensions {
		return 0, fmt.Errorf("knowledge: add: embedding has %d dimensions, index expects %d", len(embedding), p.dimensions)
	}
	const q = `INSERT INTO knowledge (knowledge, lore_level, embedding) VALUES ($1, $2, $3) RETURNING id`
	var id int64
	if err := p.db.QueryRow(ctx, q, e.Knowledge, e.LoreLevel, pgvector.NewVector(embedding)).Scan(&id); err != nil {
		return 0, fmt.Errorf("knowledge: add: %w", err)
	}
	return id, nil
}

// Search implements [Index.Search]. Scores are 1 minus the cosine distance.
func (p *PostgresIndex) Search(ctx context.Context, embedding []float32, maxLoreLevel, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = defaultTopK
	}
	const q = `
		SELECT id, knowledge, lore_level, 1 - (embedding <=> $1) AS score
		FROM   knowledge
		WHERE  lore_level <= $2
		ORDER  BY embedding <=> $1
		LIMIT  $3`

	rows, err := p.db.Query(ctx, q, pgvector.NewVector(embedding), maxLoreLevel, topK)
	if err != nil {
		return nil, fmt.Errorf("knowledge: search: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Result, error) {
		var r Result
		err := row.Scan(&r.ID, &r.Knowledge, &r.LoreLevel, &r.Score)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: scan rows: %w", err)
	}
	if results == nil {
		results = []Result{}
	}
	return results, nil
}
