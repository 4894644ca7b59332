package userlock

import "sync"

// Registry hands out one mutex per user id so that history appends, profile
// mutations, and ingestion runs for the same user serialize, while unrelated
// users proceed fully in parallel.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		locks: make(map[string]*sync.Mutex),
	}
}

func (r *Registry) lockFor(userID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[userID] = l
	}
	return l
}

// Lock acquires the user's mutex and returns the matching unlock func.
func (r *Registry) Lock(userID string) func() {
	l := r.lockFor(userID)
	l.Lock()
	return l.Unlock
}

// Do runs fn while holding the user's mutex.
func (r *Registry) Do(userID string, fn func()) {
	unlock := r.Lock(userID)
	defer unlock()
	fn()
}
