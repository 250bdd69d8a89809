package service

import "sync"

// LoadingSet tracks per-certificate in-flight operations. Each id toggles
// independently.
type LoadingSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewLoadingSet creates an empty set.
func NewLoadingSet() *LoadingSet {
	return &LoadingSet{ids: make(map[string]struct{})}
}

// Acquire marks id loading. It returns false when id is already loading.
func (l *LoadingSet) Acquire(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.ids[id]; busy {
		return false
	}
	l.ids[id] = struct{}{}
	return true
}

// Release clears the loading mark for id.
func (l *LoadingSet) Release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.ids, id)
}

// IsLoading reports whether id is loading.
func (l *LoadingSet) IsLoading(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.ids[id]
	return busy
}

// Snapshot returns the loading map.
func (l *LoadingSet) Snapshot() map[string]bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]bool, len(l.ids))
	for id := range l.ids {
		out[id] = true
	}
	return out
}
