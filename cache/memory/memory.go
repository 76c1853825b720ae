package memory

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is an in-memory LRU signature-verification cache.
type Cache struct {
	lru *lru.Cache[string, bool]
	mu  sync.RWMutex
}

// New creates a new in-memory LRU cache with the specified size.
func New(size int) (*Cache, error) {
	l, err := lru.New[string, bool](size)
	if err != nil {
		return nil, err
	}

	return &Cache{
		lru: l,
	}, nil
}

// Get retrieves the cached verification result for a transaction.
func (c *Cache) Get(txHash string) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lru.Get(txHash)
}

// Put stores a verification result for a transaction.
func (c *Cache) Put(txHash string, valid bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(txHash, valid)
	return nil
}

// Delete removes the cached result for a transaction.
func (c *Cache) Delete(txHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(txHash)
	return nil
}

// Clear removes all cached entries.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
	return nil
}
