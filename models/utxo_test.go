package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyBlockAddsOutputs(t *testing.T) {
	set := NewUTXOSet()
	coinbase := NewCoinbase("miner1", 12_500, 1)
	b := &Block{Transactions: []Transaction{coinbase}}

	require.NoError(t, set.ApplyBlock(b))
	assert.Equal(t, uint64(12_500), set.Balance("miner1"))
	assert.Equal(t, 1, set.Size())
}

func TestApplyBlockSpendsInputs(t *testing.T) {
	set := NewUTXOSet()
	coinbase := NewCoinbase("alice", 100, 1)
	require.NoError(t, set.ApplyBlock(&Block{Transactions: []Transaction{coinbase}}))

	spend := Transaction{
		Inputs: []TxInput{{PreviousTx: coinbase.Hash(), OutputIndex: 0, Signature: []byte("sig")}},
		Outputs: []TxOutput{
			{Address: "bob", Amount: 60},
			{Address: "alice", Amount: 40},
		},
		Timestamp: 2,
	}
	require.NoError(t, set.ApplyBlock(&Block{Transactions: []Transaction{spend}}))

	assert.Equal(t, uint64(40), set.Balance("alice"))
	assert.Equal(t, uint64(60), set.Balance("bob"))
}

func TestApplyBlockRejectsUnknownInput(t *testing.T) {
	set := NewUTXOSet()
	spend := Transaction{
		Inputs:  []TxInput{{PreviousTx: "deadbeef", OutputIndex: 0, Signature: []byte("sig")}},
		Outputs: []TxOutput{{Address: "bob", Amount: 1}},
	}
	require.Error(t, set.ApplyBlock(&Block{Transactions: []Transaction{spend}}))
}

func TestApplyBlockRejectsDoubleSpendWithinBlock(t *testing.T) {
	set := NewUTXOSet()
	coinbase := NewCoinbase("alice", 100, 1)
	require.NoError(t, set.ApplyBlock(&Block{Transactions: []Transaction{coinbase}}))

	in := TxInput{PreviousTx: coinbase.Hash(), OutputIndex: 0, Signature: []byte("sig")}
	first := Transaction{Inputs: []TxInput{in}, Outputs: []TxOutput{{Address: "bob", Amount: 100}}, Nonce: 1}
	second := Transaction{Inputs: []TxInput{in}, Outputs: []TxOutput{{Address: "carol", Amount: 100}}, Nonce: 2}

	require.Error(t, set.ApplyBlock(&Block{Transactions: []Transaction{first, second}}))
}

func TestZeroAmountOutputsAreNotIndexed(t *testing.T) {
	set := NewUTXOSet()
	coinstake := Transaction{
		Inputs: []TxInput{},
		Outputs: []TxOutput{
			{Address: "staker", Amount: 0},
			{Address: "staker", Amount: 100},
		},
	}
	// No inputs to spend; just index outputs.
	require.NoError(t, set.ApplyBlock(&Block{Transactions: []Transaction{coinstake}}))
	assert.Equal(t, 1, set.Size())
	assert.Equal(t, uint64(100), set.Balance("staker"))
}

func TestAddressUTXOsDeterministicOrder(t *testing.T) {
	set := NewUTXOSet()
	for i := 0; i < 5; i++ {
		tx := NewCoinbase("alice", uint64(i+1), int64(i))
		require.NoError(t, set.ApplyBlock(&Block{Transactions: []Transaction{tx}}))
	}

	first := set.AddressUTXOs("alice")
	second := set.AddressUTXOs("alice")
	require.Equal(t, first, second)
	require.Len(t, first, 5)
}

func TestCloneIsIndependent(t *testing.T) {
	set := NewUTXOSet()
	coinbase := NewCoinbase("alice", 100, 1)
	require.NoError(t, set.ApplyBlock(&Block{Transactions: []Transaction{coinbase}}))

	clone := set.Clone()
	spend := Transaction{
		Inputs:  []TxInput{{PreviousTx: coinbase.Hash(), OutputIndex: 0, Signature: []byte("sig")}},
		Outputs: []TxOutput{{Address: "bob", Amount: 100}},
	}
	require.NoError(t, clone.ApplyBlock(&Block{Transactions: []Transaction{spend}}))

	assert.Equal(t, uint64(100), set.Balance("alice"))
	assert.Equal(t, uint64(0), clone.Balance("alice"))
}
