package multihash

import (
	"encoding/hex"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	mh "github.com/multiformats/go-multihash"
)

// BlockKey wraps a SHA2-256 block hash as a multihash for archive keys.
// Format: <0x12><0x20><32 bytes> = 34 bytes total. Self-describing keys
// keep the archive readable if the consensus hash function ever changes.
type BlockKey []byte

// NewBlockKey parses a hex block hash and wraps it as a multihash.
func NewBlockKey(blockHash string) (BlockKey, error) {
	if len(blockHash) != 2*chainhash.HashSize {
		return nil, fmt.Errorf("invalid block hash length: got %d hex chars, expected %d", len(blockHash), 2*chainhash.HashSize)
	}
	raw, err := chainhash.NewHashFromHex(blockHash)
	if err != nil {
		return nil, fmt.Errorf("failed to parse block hash: %w", err)
	}
	return WrapHash(*raw)
}

// WrapHash wraps an existing 32-byte hash as a multihash.
func WrapHash(hash chainhash.Hash) (BlockKey, error) {
	h, err := mh.Encode(hash[:], mh.SHA2_256)
	if err != nil {
		return nil, fmt.Errorf("failed to encode hash: %w", err)
	}
	return BlockKey(h), nil
}

// Raw extracts the 32-byte hash from the multihash.
func (k BlockKey) Raw() (chainhash.Hash, error) {
	decoded, err := mh.Decode(mh.Multihash(k))
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("invalid multihash: %w", err)
	}

	if decoded.Code != mh.SHA2_256 {
		return chainhash.Hash{}, fmt.Errorf("expected sha2-256 hash, got 0x%x", decoded.Code)
	}
	if len(decoded.Digest) != chainhash.HashSize {
		return chainhash.Hash{}, fmt.Errorf("expected 32-byte digest, got %d bytes", len(decoded.Digest))
	}

	var raw chainhash.Hash
	copy(raw[:], decoded.Digest)
	return raw, nil
}

// Bytes returns the raw multihash bytes.
func (k BlockKey) Bytes() []byte {
	return []byte(k)
}

// Hex returns the hex-encoded multihash.
func (k BlockKey) Hex() string {
	return hex.EncodeToString(k)
}
