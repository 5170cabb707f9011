package docstore

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore keeps documents in process. Values are JSON-encoded on
// write, so callers never share maps with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[string][]byte{}}
}

func (m *MemoryStore) Get(ctx context.Context, path string) (Document, bool, error) {
	if err := ValidatePath(path); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	raw, ok := m.docs[path]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	doc, err := Decode(raw)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (m *MemoryStore) Set(ctx context.Context, path string, data Document, merge bool) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	incoming, err := Normalize(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next := incoming
	if raw, ok := m.docs[path]; ok && merge {
		current, err := Decode(raw)
		if err != nil {
			return err
		}
		next = Merge(current, incoming)
	}
	encoded, err := json.Marshal(next)
	if err != nil {
		return err
	}
	m.docs[path] = encoded
	return nil
}

// Len reports how many documents are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}
