package semantic

import (
	"context"
	"fmt"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemStore keeps facts in chromem-go, an embedded pure-Go vector
// database. Each user gets their own collection; a persistence path makes
// the index survive restarts.
type ChromemStore struct {
	db          *chromem.DB
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewChromemStore opens a persistent store at path, or a purely in-process
// one when path is empty.
func NewChromemStore(path string) (*ChromemStore, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}
	return &ChromemStore{
		db:          db,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (s *ChromemStore) collectionFor(userID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[userID]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[userID]; ok {
		return col, nil
	}

	name := "user_" + userID
	if userID == "" {
		name = "global"
	}
	// Embeddings are always supplied by the caller, so no embedding func.
	col, err := s.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.collections[userID] = col
	return col, nil
}

func (s *ChromemStore) Add(ctx context.Context, fact Fact, embedding []float32) error {
	col, err := s.collectionFor(fact.UserID)
	if err != nil {
		return err
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now().UTC()
	}
	doc := chromem.Document{
		ID:        fact.ID,
		Content:   fact.Content,
		Embedding: embedding,
		Metadata: map[string]string{
			"user_id":    fact.UserID,
			"created_at": fact.CreatedAt.Format(time.RFC3339),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

func (s *ChromemStore) Query(ctx context.Context, userID string, embedding []float32, limit int) ([]Fact, error) {
	col, err := s.collectionFor(userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	// chromem rejects nResults larger than the collection.
	if n := col.Count(); n < limit {
		if n == 0 {
			return nil, nil
		}
		limit = n
	}

	where := map[string]string{"user_id": userID}
	results, err := col.QueryEmbedding(ctx, embedding, limit, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]Fact, 0, len(results))
	for _, r := range results {
		created, _ := time.Parse(time.RFC3339, r.Metadata["created_at"])
		out = append(out, Fact{
			ID:        r.ID,
			UserID:    r.Metadata["user_id"],
			Content:   r.Content,
			CreatedAt: created,
			// chromem reports cosine similarity; convert to distance.
			Distance: 1 - r.Similarity,
		})
	}
	return out, nil
}

func (s *ChromemStore) Close() error { return nil }
