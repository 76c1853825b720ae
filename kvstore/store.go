package kvstore

import (
	"context"

	"github.com/jeroenvanwissen/blockchain-go/multihash"
)

// BlockArchive is cold storage for committed blocks: raw block JSON keyed
// by the multihash of the block hash. The ledger writes every block it
// commits; reads serve block-by-hash lookups without touching the
// snapshot. Chain replacement rewrites keys in place, so the archive
// needs no delete path.
type BlockArchive interface {
	// PutBlock stores a block's serialized form under its key
	PutBlock(ctx context.Context, key multihash.BlockKey, data []byte) error

	// GetBlock retrieves a block's serialized form
	// Returns nil if the key is unknown
	GetBlock(ctx context.Context, key multihash.BlockKey) ([]byte, error)

	// Close releases any resources
	Close() error
}
