package coprocessor

import (
	"context"
	"sync"

	"okinoko-cipher_duel/sdk"
)

// MemoryStore keeps records in a map. Used for ephemeral nodes and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[sdk.Handle]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[sdk.Handle]Record)}
}

func (m *MemoryStore) PutRecord(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Handle] = rec
	return nil
}

func (m *MemoryStore) GetRecord(_ context.Context, h sdk.Handle) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[h]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}
