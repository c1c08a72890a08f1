package blockstore

import (
	"context"
	"sync"

	"github.com/hupe1980/vecfs/layout"
)

// MemoryStore is an in-memory Backend.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks map[layout.BlockID][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blocks: make(map[layout.BlockID][]byte)}
}

// ReadBlock returns a copy of the stored block.
func (m *MemoryStore) ReadBlock(_ context.Context, id layout.BlockID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blocks[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteBlock stores a copy of data.
func (m *MemoryStore) WriteBlock(_ context.Context, id layout.BlockID, data []byte) error {
	if err := CheckBlock(data); err != nil {
		return err
	}
	copied := make([]byte, len(data))
	copy(copied, data)

	m.mu.Lock()
	m.blocks[id] = copied
	m.mu.Unlock()
	return nil
}

// DeleteBlock removes a block.
func (m *MemoryStore) DeleteBlock(_ context.Context, id layout.BlockID) error {
	m.mu.Lock()
	delete(m.blocks, id)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored blocks.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blocks)
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// Corrupt flips a byte of a stored block. Used to exercise integrity checks.
func (m *MemoryStore) Corrupt(id layout.BlockID, offset int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.blocks[id]
	if !ok || offset < 0 || offset >= len(data) {
		return false
	}
	data[offset] ^= 0xFF
	return true
}
