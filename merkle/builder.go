package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Root computes the merkle root over a block's transaction hashes.
// Levels pair left-to-right; an odd node is paired with itself. The root
// is informational (stored in block metadata for inclusion proofs) and is
// not part of the consensus block hash.
func Root(txHashes []string) (string, error) {
	level, err := decodeHashes(txHashes)
	if err != nil {
		return "", err
	}

	for len(level) > 1 {
		level = reduce(level)
	}

	return hex.EncodeToString(level[0][:]), nil
}

func decodeHashes(txHashes []string) ([][32]byte, error) {
	if len(txHashes) == 0 {
		return nil, fmt.Errorf("cannot build tree with zero transactions")
	}

	level := make([][32]byte, len(txHashes))
	for i, h := range txHashes {
		raw, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("failed to decode hash %d: %w", i, err)
		}
		if len(raw) != 32 {
			return nil, fmt.Errorf("invalid hash length at index %d: got %d, expected 32", i, len(raw))
		}
		copy(level[i][:], raw)
	}
	return level, nil
}

func reduce(level [][32]byte) [][32]byte {
	n := len(level)
	next := make([][32]byte, 0, (n+1)/2)

	for i := 0; i < n; i += 2 {
		left := level[i]
		right := left
		if i+1 < n {
			right = level[i+1]
		}
		next = append(next, hashPair(left, right))
	}
	return next
}

// hashPair hashes the concatenation of two nodes.
func hashPair(left, right [32]byte) [32]byte {
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
