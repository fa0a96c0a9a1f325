package store

import (
	"context"
	"encoding/json"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu   sync.RWMutex
	docs map[Collection]map[string][]byte
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{docs: make(map[Collection]map[string][]byte)}
}

// Put stores an encoded copy of doc.
func (r *InMemoryRepository) Put(_ context.Context, doc Document) error {
	c, key, b, err := encode(doc)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	coll, ok := r.docs[c]
	if !ok {
		coll = make(map[string][]byte)
		r.docs[c] = coll
	}
	coll[key] = b
	return nil
}

// Get returns a copy of the stored document.
func (r *InMemoryRepository) Get(_ context.Context, c Collection, key string) (json.RawMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.docs[c][key]
	if !ok {
		return nil, ErrNotFound
	}
	cpy := make([]byte, len(b))
	copy(cpy, b)
	return cpy, nil
}

// Delete removes a document; deleting a missing key is not an error.
func (r *InMemoryRepository) Delete(_ context.Context, c Collection, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.docs[c], key)
	return nil
}

// Count returns the number of documents in c.
func (r *InMemoryRepository) Count(_ context.Context, c Collection) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.docs[c]), nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
