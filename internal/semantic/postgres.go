package semantic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps facts in Postgres with the pgvector extension. Inserts
// deduplicate on the fact id; queries order by the `<=>` cosine distance
// operator with a per-user filter.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string, dim int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect semantic postgres: %w", err)
	}
	if err := initFactSchema(ctx, pool, dim); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initFactSchema(ctx context.Context, pool *pgxpool.Pool, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_facts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`, dim),
		`CREATE INDEX IF NOT EXISTS idx_memory_facts_user ON memory_facts (user_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init fact schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, fact Fact, embedding []float32) error {
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO memory_facts (id, user_id, content, embedding, created_at)
		 VALUES ($1, $2, $3, $4::vector, $5)
		 ON CONFLICT (id) DO NOTHING`,
		fact.ID,
		fact.UserID,
		fact.Content,
		vectorLiteral(embedding),
		fact.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("add fact: %w", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, userID string, embedding []float32, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, content, created_at, embedding <=> $2::vector AS distance
		 FROM memory_facts
		 WHERE user_id = $1
		 ORDER BY distance
		 LIMIT $3`,
		userID,
		vectorLiteral(embedding),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	out := make([]Fact, 0, limit)
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.ID, &f.UserID, &f.Content, &f.CreatedAt, &f.Distance); err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fact rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// vectorLiteral renders a float32 slice in pgvector input format.
func vectorLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = fmt.Sprintf("%f", val)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
