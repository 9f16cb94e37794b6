// Package reconcile merges optimistic local changes with server-confirmed
// ones into a single keyed view.
package reconcile

import (
	"sort"
	"sync"
)

// Set is a keyed collection where the latest write for a key wins. It is
// safe for concurrent use.
type Set[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
	order []K
	less  func(a, b V) bool
}

// New creates an empty set. When less is nil, Items returns values in
// first-insertion order.
func New[K comparable, V any](less func(a, b V) bool) *Set[K, V] {
	return &Set[K, V]{
		items: make(map[K]V),
		less:  less,
	}
}

// Upsert stores v under key and reports whether the key was new. A second
// delivery of the same key replaces the value but returns false.
func (s *Set[K, V]) Upsert(key K, v V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.items[key]
	s.items[key] = v
	if !exists {
		s.order = append(s.order, key)
	}
	return !exists
}

// Remove deletes key and reports whether it was present.
func (s *Set[K, V]) Remove(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[key]; !exists {
		return false
	}
	delete(s.items, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// RemoveIf deletes every entry for which drop returns true and returns how
// many were removed.
func (s *Set[K, V]) RemoveIf(drop func(K, V) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	removed := 0
	for _, k := range s.order {
		if drop(k, s.items[k]) {
			delete(s.items, k)
			removed++
			continue
		}
		kept = append(kept, k)
	}
	s.order = kept
	return removed
}

// Get returns the value stored under key.
func (s *Set[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

func (s *Set[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Items returns a snapshot of the values, sorted by less when set.
func (s *Set[K, V]) Items() []V {
	s.mu.RLock()
	out := make([]V, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.items[k])
	}
	s.mu.RUnlock()

	if s.less != nil {
		sort.SliceStable(out, func(i, j int) bool { return s.less(out[i], out[j]) })
	}
	return out
}

// Reset replaces the contents with values keyed by keyOf, as after a full
// reload from the server.
func (s *Set[K, V]) Reset(values []V, keyOf func(V) K) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[K]V, len(values))
	s.order = s.order[:0]
	for _, v := range values {
		k := keyOf(v)
		if _, exists := s.items[k]; !exists {
			s.order = append(s.order, k)
		}
		s.items[k] = v
	}
}
