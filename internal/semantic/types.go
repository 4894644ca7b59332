package semantic

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"time"
)

// Fact is one durable long-term memory extracted from conversation.
type Fact struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	// Distance is the cosine distance to the query embedding, set on
	// query results only. Lower is closer.
	Distance float32 `json:"distance,omitempty"`
}

// FactID derives a stable id from content and owner, so the same fact
// extracted twice collapses onto one record.
func FactID(userID, content string) string {
	sum := md5.Sum([]byte(content + userID))
	return hex.EncodeToString(sum[:])
}

// Embedder produces embedding vectors for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is a persistent vector index over facts. Query returns candidates
// for one user ordered by ascending distance, with Distance populated;
// threshold filtering is the caller's concern.
type Store interface {
	Add(ctx context.Context, fact Fact, embedding []float32) error
	Query(ctx context.Context, userID string, embedding []float32, limit int) ([]Fact, error)
	Close() error
}
