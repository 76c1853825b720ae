package metadata

import (
	"context"
)

// BlockKind discriminates how a block was produced.
type BlockKind string

const (
	KindPow BlockKind = "pow"
	KindPos BlockKind = "pos"
)

// BlockMeta is the queryable row kept per block. Full blocks live in the
// snapshot and the archive; this store only answers height/hash/producer
// questions without deserializing chain data.
type BlockMeta struct {
	Height     uint32
	Hash       string
	PrevHash   string
	Kind       BlockKind
	Producer   string // coinbase payout address
	Timestamp  int64
	TxCount    int
	MerkleRoot string // merkle root over the block's transaction hashes
}

// Store defines the interface for storing block metadata.
// Implementations use SQLite or other relational databases.
type Store interface {
	// PutBlock stores block metadata
	PutBlock(ctx context.Context, meta *BlockMeta) error

	// GetByHeight retrieves block metadata by height
	GetByHeight(ctx context.Context, height uint32) (*BlockMeta, error)

	// GetByHash retrieves block metadata by block hash
	GetByHash(ctx context.Context, hash string) (*BlockMeta, error)

	// GetLatest returns the highest block stored
	GetLatest(ctx context.Context) (*BlockMeta, error)

	// DeleteFrom removes metadata at and above a height (for chain
	// replacement rewinds)
	DeleteFrom(ctx context.Context, height uint32) error

	// Close releases any resources
	Close() error
}
