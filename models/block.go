package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Block is a ledger block. The hash covers {timestamp, transactions,
// previous_hash, nonce} in canonical form; index and difficulty are
// deliberately excluded so that the retarget rule can be evaluated without
// re-hashing.
type Block struct {
	Index        uint32        `json:"index"`
	Timestamp    int64         `json:"timestamp"`
	PreviousHash string        `json:"previous_hash"`
	Nonce        uint64        `json:"nonce"`
	Difficulty   uint8         `json:"powDifficulty"`
	Transactions []Transaction `json:"transactions"`
	Hash         string        `json:"hash"`
}

// canonicalBlock is the hashed view of a block. Transactions are embedded
// in their own canonical form.
type canonicalBlock struct {
	Timestamp    int64           `json:"timestamp"`
	Transactions json.RawMessage `json:"transactions"`
	PreviousHash string          `json:"previous_hash"`
	Nonce        uint64          `json:"nonce"`
}

// CanonicalTxList serializes transactions into the form embedded in the
// block hash preimage. The PoW worker computes this once per job and reuses
// it for every nonce.
func CanonicalTxList(txs []Transaction) json.RawMessage {
	canon := make([]canonicalTx, len(txs))
	for i := range txs {
		canon[i] = txs[i].canonical()
	}
	b, _ := json.Marshal(canon)
	return b
}

// ComputeBlockHash hashes the canonical block form for a given nonce.
func ComputeBlockHash(timestamp int64, txList json.RawMessage, previousHash string, nonce uint64) string {
	b, _ := json.Marshal(canonicalBlock{
		Timestamp:    timestamp,
		Transactions: txList,
		PreviousHash: previousHash,
		Nonce:        nonce,
	})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ComputeHash returns the canonical hash of the block's current contents.
func (b *Block) ComputeHash() string {
	return ComputeBlockHash(b.Timestamp, CanonicalTxList(b.Transactions), b.PreviousHash, b.Nonce)
}

// IsProofOfStake reports whether the block carries a coinstake in slot 1.
// Everything else is proof-of-work.
func (b *Block) IsProofOfStake() bool {
	return len(b.Transactions) >= 2 && b.Transactions[1].IsCoinstake()
}

// IsProofOfWork is the complement of IsProofOfStake.
func (b *Block) IsProofOfWork() bool {
	return !b.IsProofOfStake()
}

// HashMeetsDifficulty reports whether a hex hash starts with the required
// number of zero nibbles.
func HashMeetsDifficulty(hash string, difficulty uint8) bool {
	return strings.HasPrefix(hash, strings.Repeat("0", int(difficulty)))
}

// HasValidPow checks the stored hash against the block's own difficulty.
func (b *Block) HasValidPow() bool {
	return HashMeetsDifficulty(b.Hash, b.Difficulty)
}

// HasValidTransactions reports whether every transaction passes structural
// validation.
func (b *Block) HasValidTransactions() bool {
	for i := range b.Transactions {
		if !b.Transactions[i].IsValid() {
			return false
		}
	}
	return true
}

// Producer returns the coinbase payout address, or "" for a malformed
// block. Used for metadata reporting only.
func (b *Block) Producer() string {
	if len(b.Transactions) == 0 || len(b.Transactions[0].Outputs) == 0 {
		return ""
	}
	return b.Transactions[0].Outputs[0].Address
}
