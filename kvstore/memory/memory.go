package memory

import (
	"context"
	"sync"

	"github.com/jeroenvanwissen/blockchain-go/multihash"
)

// Store is an in-memory block archive for tests and nodes run with
// -storage memory. Blocks are small and immutable once written, so a
// plain map under an RWMutex is enough.
type Store struct {
	mu     sync.RWMutex
	blocks map[string][]byte // keyed by multihash hex
}

// New creates a new in-memory archive.
func New() *Store {
	return &Store{blocks: make(map[string][]byte)}
}

// PutBlock stores a block's serialized form under its key.
func (s *Store) PutBlock(ctx context.Context, key multihash.BlockKey, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[key.Hex()] = data
	return nil
}

// GetBlock retrieves a block's serialized form. Unknown keys return
// (nil, nil).
func (s *Store) GetBlock(ctx context.Context, key multihash.BlockKey) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blocks[key.Hex()]
	if !ok {
		return nil, nil
	}
	return data, nil
}

// Close releases any resources.
func (s *Store) Close() error {
	return nil
}

// Len reports how many blocks the archive holds.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}
