package state

import (
	"context"
	"sync"

	"github.com/ajitpratap0/nebula-dispatch/pkg/stream"
)

// MemoryStore keeps snapshots in process. It backs tests and one-shot runs.
type MemoryStore struct {
	mu       sync.Mutex
	snapshot map[string]stream.State
	saves    int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshot: map[string]stream.State{}}
}

// Load implements Store.
func (s *MemoryStore) Load(context.Context) (map[string]stream.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]stream.State, len(s.snapshot))
	for k, v := range s.snapshot {
		out[k] = v.Clone()
	}
	return out, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, snapshot map[string]stream.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range snapshot {
		s.snapshot[k] = v.Clone()
	}
	s.saves++
	return nil
}

// Saves returns how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
