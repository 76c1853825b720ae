package badger

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/jeroenvanwissen/blockchain-go/multihash"
)

// Store is a BadgerDB-backed block archive.
type Store struct {
	db *badger.DB
}

// Config holds configuration for BadgerDB.
type Config struct {
	DataDir string // Directory for data storage
}

// New opens (or creates) the archive at config.DataDir.
func New(config *Config) (*Store, error) {
	if config.DataDir == "" {
		return nil, fmt.Errorf("DataDir is required")
	}

	opts := badger.DefaultOptions(config.DataDir)
	opts = opts.WithLogger(nil) // Disable badger's verbose logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &Store{db: db}, nil
}

// PutBlock stores a block's serialized form under its key.
func (s *Store) PutBlock(ctx context.Context, key multihash.BlockKey, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key.Bytes(), data)
	})
}

// GetBlock retrieves a block's serialized form. Unknown keys return
// (nil, nil).
func (s *Store) GetBlock(ctx context.Context, key multihash.BlockKey) ([]byte, error) {
	var data []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key.Bytes())
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...) // Copy value
			return nil
		})
	})

	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return data, nil
}

// Close releases all BadgerDB resources.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RunGC runs BadgerDB garbage collection. Call periodically to reclaim
// space from blocks rewritten by chain replacements.
func (s *Store) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if err == badger.ErrNoRewrite {
		return nil // Not an error - just means no rewrite was needed
	}
	return err
}
