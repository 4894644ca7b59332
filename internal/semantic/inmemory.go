package semantic

import (
	"context"
	"math"
	"sort"
	"sync"
)

type storedFact struct {
	fact      Fact
	embedding []float32
}

// InMemoryStore is a brute-force vector index for local/dev use.
type InMemoryStore struct {
	mu    sync.RWMutex
	facts map[string]map[string]storedFact
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{facts: make(map[string]map[string]storedFact)}
}

func (s *InMemoryStore) Add(_ context.Context, fact Fact, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.facts[fact.UserID]
	if !ok {
		byID = make(map[string]storedFact)
		s.facts[fact.UserID] = byID
	}
	emb := make([]float32, len(embedding))
	copy(emb, embedding)
	byID[fact.ID] = storedFact{fact: fact, embedding: emb}
	return nil
}

func (s *InMemoryStore) Query(_ context.Context, userID string, embedding []float32, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := s.facts[userID]
	if len(byID) == 0 {
		return nil, nil
	}

	out := make([]Fact, 0, len(byID))
	for _, sf := range byID {
		f := sf.fact
		f.Distance = 1 - cosineSimilarity(embedding, sf.embedding)
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

// cosineSimilarity returns the cosine of the angle between a and b, or 0
// when either vector is empty, zero, or the lengths differ.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
