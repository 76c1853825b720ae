package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func hashOf(data string) [32]byte {
	return sha256.Sum256([]byte(data))
}

func hexOf(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

func TestRootFourLeaves(t *testing.T) {
	leaves := [][32]byte{hashOf("tx1"), hashOf("tx2"), hashOf("tx3"), hashOf("tx4")}
	hashes := make([]string, len(leaves))
	for i, l := range leaves {
		hashes[i] = hexOf(l)
	}

	root, err := Root(hashes)
	if err != nil {
		t.Fatalf("Root failed: %v", err)
	}

	h01 := hashPair(leaves[0], leaves[1])
	h23 := hashPair(leaves[2], leaves[3])
	expected := hexOf(hashPair(h01, h23))

	if root != expected {
		t.Error("Root hash doesn't match expected value")
	}
}

func TestRootSingleLeaf(t *testing.T) {
	leaf := hashOf("single-tx")

	root, err := Root([]string{hexOf(leaf)})
	if err != nil {
		t.Fatalf("Root failed: %v", err)
	}

	if root != hexOf(leaf) {
		t.Error("Single tx root should equal txid")
	}
}

func TestRootOddCount(t *testing.T) {
	leaves := [][32]byte{hashOf("tx1"), hashOf("tx2"), hashOf("tx3")}
	hashes := []string{hexOf(leaves[0]), hexOf(leaves[1]), hexOf(leaves[2])}

	root, err := Root(hashes)
	if err != nil {
		t.Fatalf("Root failed: %v", err)
	}

	h01 := hashPair(leaves[0], leaves[1])
	h22 := hashPair(leaves[2], leaves[2])
	expected := hexOf(hashPair(h01, h22))

	if root != expected {
		t.Error("Root hash doesn't match expected value for odd count")
	}
}

func TestRootEmpty(t *testing.T) {
	if _, err := Root(nil); err == nil {
		t.Error("Should fail with empty transaction list")
	}
}

func TestRootRejectsBadHex(t *testing.T) {
	if _, err := Root([]string{"not-hex"}); err == nil {
		t.Error("Should fail on non-hex input")
	}
	if _, err := Root([]string{"abcd"}); err == nil {
		t.Error("Should fail on short hash")
	}
}
