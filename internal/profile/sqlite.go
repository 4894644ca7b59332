package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists profiles in a local SQLite file. The connection pool is
// capped at one connection so writes never contend for the SQLite writer lock,
// and synchronous=FULL keeps every committed mutation on disk before the call
// returns.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create profile db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open profile db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=FULL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT 'Unknown',
			score INTEGER NOT NULL DEFAULT 0,
			summary TEXT NOT NULL DEFAULT '',
			last_interaction_ms INTEGER NOT NULL DEFAULT 0,
			updated_at_ms INTEGER NOT NULL DEFAULT 0
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init profile schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID string) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT user_id, username, score, summary, last_interaction_ms, updated_at_ms
FROM profiles WHERE user_id = ?`, userID)

	var (
		p                 Profile
		lastMS, updatedMS int64
	)
	if err := row.Scan(&p.UserID, &p.Username, &p.Score, &p.Summary, &lastMS, &updatedMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return defaultProfile(userID), nil
		}
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	if lastMS > 0 {
		p.LastInteraction = time.UnixMilli(lastMS).UTC()
	}
	if updatedMS > 0 {
		p.UpdatedAt = time.UnixMilli(updatedMS).UTC()
	}
	return p, nil
}

func (s *SQLiteStore) UpdateKarma(ctx context.Context, userID string, delta int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("update karma begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx, `
INSERT INTO profiles(user_id, username, score, summary, last_interaction_ms, updated_at_ms)
VALUES(?, ?, ?, '', 0, ?)
ON CONFLICT(user_id) DO UPDATE SET
	score = profiles.score + excluded.score,
	updated_at_ms = excluded.updated_at_ms`,
		userID, DefaultUsername, delta, now); err != nil {
		return 0, fmt.Errorf("update karma: %w", err)
	}

	var score int
	if err := tx.QueryRowContext(ctx, `SELECT score FROM profiles WHERE user_id = ?`, userID).Scan(&score); err != nil {
		return 0, fmt.Errorf("update karma read back: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("update karma commit: %w", err)
	}
	return score, nil
}

func (s *SQLiteStore) UpdateSummary(ctx context.Context, userID, summary string) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO profiles(user_id, username, score, summary, last_interaction_ms, updated_at_ms)
VALUES(?, ?, 0, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
	summary = excluded.summary,
	last_interaction_ms = excluded.last_interaction_ms,
	updated_at_ms = excluded.updated_at_ms`,
		userID, DefaultUsername, summary, now, now)
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetUsername(ctx context.Context, userID, username string) error {
	if username == "" {
		username = DefaultUsername
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO profiles(user_id, username, score, summary, last_interaction_ms, updated_at_ms)
VALUES(?, ?, 0, '', 0, ?)
ON CONFLICT(user_id) DO UPDATE SET
	username = excluded.username,
	updated_at_ms = excluded.updated_at_ms`,
		userID, username, now)
	if err != nil {
		return fmt.Errorf("set username: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
