package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlock() *Block {
	b := &Block{
		Index:        1,
		Timestamp:    1_700_000_000_000,
		PreviousHash: "parent",
		Nonce:        42,
		Difficulty:   1,
		Transactions: []Transaction{NewCoinbase("miner1", 12_500, 1_700_000_000_000)},
	}
	b.Hash = b.ComputeHash()
	return b
}

func TestBlockHashIsDeterministic(t *testing.T) {
	b := testBlock()
	require.Equal(t, b.Hash, b.ComputeHash())
}

func TestBlockHashExcludesIndexAndDifficulty(t *testing.T) {
	b := testBlock()
	hash := b.ComputeHash()

	b.Index = 99
	b.Difficulty = 7
	require.Equal(t, hash, b.ComputeHash())

	b.Nonce++
	require.NotEqual(t, hash, b.ComputeHash())
}

func TestHashMeetsDifficulty(t *testing.T) {
	assert.True(t, HashMeetsDifficulty("000abc", 3))
	assert.True(t, HashMeetsDifficulty("000abc", 0))
	assert.False(t, HashMeetsDifficulty("000abc", 4))
	assert.False(t, HashMeetsDifficulty("abc", 1))
}

func TestBlockKindDiscrimination(t *testing.T) {
	pow := testBlock()
	assert.True(t, pow.IsProofOfWork())
	assert.False(t, pow.IsProofOfStake())

	pos := &Block{
		Transactions: []Transaction{
			NewCoinbase("staker", 10, 1),
			{
				Inputs: []TxInput{{PreviousTx: "aa", OutputIndex: 0, Signature: []byte("sig")}},
				Outputs: []TxOutput{
					{Address: "staker", Amount: 0},
					{Address: "staker", Amount: 100},
				},
			},
		},
	}
	assert.True(t, pos.IsProofOfStake())
	assert.False(t, pos.IsProofOfWork())

	// A lone coinbase pair without the zero marker stays PoW.
	two := &Block{
		Transactions: []Transaction{
			NewCoinbase("a", 10, 1),
			{
				Inputs:  []TxInput{{PreviousTx: "aa", OutputIndex: 0, Signature: []byte("sig")}},
				Outputs: []TxOutput{{Address: "b", Amount: 5}},
			},
		},
	}
	assert.True(t, two.IsProofOfWork())
}

func TestProducer(t *testing.T) {
	b := testBlock()
	assert.Equal(t, "miner1", b.Producer())
	assert.Equal(t, "", (&Block{}).Producer())
}

func TestCanonicalTxListMatchesComputeHash(t *testing.T) {
	b := testBlock()
	raw := CanonicalTxList(b.Transactions)
	require.Equal(t, b.Hash, ComputeBlockHash(b.Timestamp, raw, b.PreviousHash, b.Nonce))
}
