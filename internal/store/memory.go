package store

import (
	"context"
	"sync"
)

// MemoryStore is a map-backed Store for tests and ephemeral deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Load(_ context.Context, conversationID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[conversationID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) Save(_ context.Context, conversationID string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[conversationID] = rec
	return nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) (map[string]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Record)
	for id, rec := range s.records {
		if f.State != "" && rec.State != f.State {
			continue
		}
		if f.Tool != "" && rec.Tool != f.Tool {
			continue
		}
		out[id] = rec
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}
