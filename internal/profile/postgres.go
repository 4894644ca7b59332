package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists profiles in Postgres for multi-instance deployments.
// The score update is a single upsert so concurrent deltas against the same
// row serialize on the row lock.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect profile postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping profile postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS profiles (
	user_id TEXT PRIMARY KEY,
	username TEXT NOT NULL DEFAULT 'Unknown',
	score INTEGER NOT NULL DEFAULT 0,
	summary TEXT NOT NULL DEFAULT '',
	last_interaction TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	if err != nil {
		return fmt.Errorf("init profile schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (Profile, error) {
	row := s.pool.QueryRow(ctx, `
SELECT user_id, username, score, summary, last_interaction, updated_at
FROM profiles WHERE user_id = $1`, userID)

	var (
		p    Profile
		last *time.Time
	)
	if err := row.Scan(&p.UserID, &p.Username, &p.Score, &p.Summary, &last, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return defaultProfile(userID), nil
		}
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	if last != nil {
		p.LastInteraction = last.UTC()
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *PostgresStore) UpdateKarma(ctx context.Context, userID string, delta int) (int, error) {
	var score int
	err := s.pool.QueryRow(ctx, `
INSERT INTO profiles (user_id, username, score, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (user_id) DO UPDATE SET
	score = profiles.score + EXCLUDED.score,
	updated_at = now()
RETURNING score`, userID, DefaultUsername, delta).Scan(&score)
	if err != nil {
		return 0, fmt.Errorf("update karma: %w", err)
	}
	return score, nil
}

func (s *PostgresStore) UpdateSummary(ctx context.Context, userID, summary string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO profiles (user_id, username, summary, last_interaction, updated_at)
VALUES ($1, $2, $3, now(), now())
ON CONFLICT (user_id) DO UPDATE SET
	summary = EXCLUDED.summary,
	last_interaction = now(),
	updated_at = now()`, userID, DefaultUsername, summary)
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetUsername(ctx context.Context, userID, username string) error {
	if username == "" {
		username = DefaultUsername
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO profiles (user_id, username, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE SET
	username = EXCLUDED.username,
	updated_at = now()`, userID, username)
	if err != nil {
		return fmt.Errorf("set username: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
