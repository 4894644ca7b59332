package history

import "sync"

// Store keeps a bounded FIFO ring of recent turns per user, plus a short
// window of the most recent image references for image-edit lookups. State is
// volatile: it lives for the process lifetime and is created lazily on the
// first turn from a user.
type Store struct {
	mu        sync.RWMutex
	maxLen    int
	maxImages int
	users     map[string]*userHistory
}

type userHistory struct {
	ring   []Turn
	head   int
	count  int
	images []string
}

func NewStore(maxLen, maxImages int) *Store {
	if maxLen <= 0 {
		maxLen = 1
	}
	if maxImages <= 0 {
		maxImages = 1
	}
	return &Store{
		maxLen:    maxLen,
		maxImages: maxImages,
		users:     make(map[string]*userHistory),
	}
}

// Append inserts at the tail, evicting the oldest turn once the ring is full.
func (s *Store) Append(userID string, turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		u = &userHistory{ring: make([]Turn, s.maxLen)}
		s.users[userID] = u
	}

	if u.count < len(u.ring) {
		u.ring[(u.head+u.count)%len(u.ring)] = cloneTurn(turn)
		u.count++
	} else {
		u.ring[u.head] = cloneTurn(turn)
		u.head = (u.head + 1) % len(u.ring)
	}

	if len(turn.Images) > 0 {
		u.images = append(u.images, turn.Images...)
		if len(u.images) > s.maxImages {
			u.images = append([]string(nil), u.images[len(u.images)-s.maxImages:]...)
		}
	}
}

// Recent returns the last n turns in chronological order. A user with no
// history yields an empty slice.
func (s *Store) Recent(userID string, n int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok || n <= 0 || u.count == 0 {
		return nil
	}
	if n > u.count {
		n = u.count
	}

	out := make([]Turn, 0, n)
	start := u.count - n
	for i := start; i < u.count; i++ {
		out = append(out, cloneTurn(u.ring[(u.head+i)%len(u.ring)]))
	}
	return out
}

// RecentImages returns up to k of the user's most recent image references,
// most recent first.
func (s *Store) RecentImages(userID string, k int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok || k <= 0 || len(u.images) == 0 {
		return nil
	}
	if k > len(u.images) {
		k = len(u.images)
	}

	out := make([]string, 0, k)
	for i := len(u.images) - 1; i >= len(u.images)-k; i-- {
		out = append(out, u.images[i])
	}
	return out
}

// Len reports the current number of stored turns for a user.
func (s *Store) Len(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return 0
	}
	return u.count
}
