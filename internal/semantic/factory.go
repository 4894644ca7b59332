package semantic

import (
	"context"
	"strings"
)

// NewStore creates a pgvector-backed store when a database URL is configured,
// otherwise a chromem store at chromemPath (in-process when the path is
// empty too). dim is the embedding width and only matters for Postgres.
func NewStore(ctx context.Context, databaseURL, chromemPath string, dim int) (Store, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresStore(ctx, databaseURL, dim)
	}
	return NewChromemStore(strings.TrimSpace(chromemPath))
}
