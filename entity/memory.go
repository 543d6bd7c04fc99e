package entity

import (
	"context"
	"maps"
	"sync"
)

// MemoryRepository is an in-memory Repository, suitable for tests and small
// tools. Safe for concurrent use.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]Record)}
}

// FindByKey implements Repository.
func (r *MemoryRepository) FindByKey(_ context.Context, key string) (Record, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[key]
	if !ok {
		return nil, false, nil
	}
	// Copy so callers cannot mutate stored state.
	return maps.Clone(rec), true, nil
}

// Upsert implements Repository.
func (r *MemoryRepository) Upsert(_ context.Context, key string, fields Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[key] = maps.Clone(fields)
	return nil
}

// Len returns the number of stored records.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
