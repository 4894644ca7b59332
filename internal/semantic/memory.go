package semantic

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Memory is the recall surface over an embedder and a vector store. It
// enforces the validity threshold and shields callers from retrieval
// failures: a slow or broken backend degrades to an empty recall, never to
// a failed conversation turn.
type Memory struct {
	embedder     Embedder
	store        Store
	threshold    float32
	recallCount  int
	queryTimeout time.Duration
}

func NewMemory(embedder Embedder, store Store, threshold float32, recallCount int, queryTimeout time.Duration) *Memory {
	if recallCount <= 0 {
		recallCount = 2
	}
	if queryTimeout <= 0 {
		queryTimeout = 350 * time.Millisecond
	}
	return &Memory{
		embedder:     embedder,
		store:        store,
		threshold:    threshold,
		recallCount:  recallCount,
		queryTimeout: queryTimeout,
	}
}

// Remember embeds content and stores it as a fact. The same content for the
// same user maps to the same id, so repeats collapse onto one record.
func (m *Memory) Remember(ctx context.Context, userID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	emb, err := m.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed fact: %w", err)
	}
	fact := Fact{
		ID:        FactID(userID, content),
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.Add(ctx, fact, emb); err != nil {
		return fmt.Errorf("store fact: %w", err)
	}
	return nil
}

// Recall returns the user's facts relevant to query, at most recallCount of
// them, keeping only matches whose distance is below the threshold. It never
// fails the caller: errors and timeouts are logged and yield nil.
func (m *Memory) Recall(ctx context.Context, userID, query string) []Fact {
	return m.RecallN(ctx, userID, query, m.recallCount)
}

// RecallN is Recall with an explicit result count; k <= 0 falls back to the
// configured count.
func (m *Memory) RecallN(ctx context.Context, userID, query string, k int) []Fact {
	if k <= 0 {
		k = m.recallCount
	}
	ctx, cancel := context.WithTimeout(ctx, m.queryTimeout)
	defer cancel()

	emb, err := m.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("semantic: embed recall query for user %s: %v", userID, err)
		return nil
	}
	facts, err := m.store.Query(ctx, userID, emb, k)
	if err != nil {
		log.Printf("semantic: recall query for user %s: %v", userID, err)
		return nil
	}
	return FilterByThreshold(facts, m.threshold)
}

// FilterByThreshold keeps facts whose distance is strictly below threshold,
// preserving order. A match at exactly the threshold is not valid.
func FilterByThreshold(facts []Fact, threshold float32) []Fact {
	valid := make([]Fact, 0, len(facts))
	for _, f := range facts {
		if f.Distance < threshold {
			valid = append(valid, f)
		}
	}
	return valid
}

func (m *Memory) Close() error { return m.store.Close() }
