package profile

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps profiles in a map. It satisfies the durability contract
// only for the lifetime of the process; production deployments use the SQLite
// or Postgres store.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[string]Profile)}
}

func (s *InMemoryStore) Get(_ context.Context, userID string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return defaultProfile(userID), nil
	}
	return p, nil
}

func (s *InMemoryStore) UpdateKarma(_ context.Context, userID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.loadLocked(userID)
	p.Score += delta
	p.UpdatedAt = time.Now().UTC()
	s.profiles[userID] = p
	return p.Score, nil
}

func (s *InMemoryStore) UpdateSummary(_ context.Context, userID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	p := s.loadLocked(userID)
	p.Summary = summary
	p.LastInteraction = now
	p.UpdatedAt = now
	s.profiles[userID] = p
	return nil
}

func (s *InMemoryStore) SetUsername(_ context.Context, userID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.loadLocked(userID)
	if username != "" {
		p.Username = username
	}
	p.UpdatedAt = time.Now().UTC()
	s.profiles[userID] = p
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) loadLocked(userID string) Profile {
	p, ok := s.profiles[userID]
	if !ok {
		p = defaultProfile(userID)
	}
	return p
}
