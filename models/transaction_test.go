package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionHashIsDeterministic(t *testing.T) {
	tx := Transaction{
		Inputs:    []TxInput{{PreviousTx: "aa", OutputIndex: 1}},
		Outputs:   []TxOutput{{Address: "bob", Amount: 5}},
		Timestamp: 1_700_000_000_000,
		Nonce:     7,
	}
	require.Equal(t, tx.Hash(), tx.Hash())
	require.Len(t, tx.Hash(), 64)
}

func TestTransactionHashIgnoresSignatures(t *testing.T) {
	tx := Transaction{
		Inputs:    []TxInput{{PreviousTx: "aa", OutputIndex: 1}},
		Outputs:   []TxOutput{{Address: "bob", Amount: 5}},
		Timestamp: 1_700_000_000_000,
	}
	before := tx.Hash()
	tx.Inputs[0].Signature = []byte("signed")
	require.Equal(t, before, tx.Hash())
}

func TestTransactionHashCoversFields(t *testing.T) {
	base := Transaction{
		Inputs:    []TxInput{{PreviousTx: "aa", OutputIndex: 1}},
		Outputs:   []TxOutput{{Address: "bob", Amount: 5}},
		Timestamp: 1_700_000_000_000,
		Nonce:     1,
	}

	bumped := base
	bumped.Nonce = 2
	assert.NotEqual(t, base.Hash(), bumped.Hash())

	later := base
	later.Timestamp++
	assert.NotEqual(t, base.Hash(), later.Hash())

	richer := base
	richer.Outputs = []TxOutput{{Address: "bob", Amount: 6}}
	assert.NotEqual(t, base.Hash(), richer.Hash())
}

func TestTransactionKinds(t *testing.T) {
	coinbase := NewCoinbase("miner1", 12_500, 1_700_000_000_000)
	assert.True(t, coinbase.IsCoinbase())
	assert.False(t, coinbase.IsCoinstake())
	assert.True(t, coinbase.IsValid())

	coinstake := Transaction{
		Inputs: []TxInput{{PreviousTx: "aa", OutputIndex: 0, Signature: []byte("sig")}},
		Outputs: []TxOutput{
			{Address: "staker", Amount: 0},
			{Address: "staker", Amount: 100},
		},
	}
	assert.True(t, coinstake.IsCoinstake())
	assert.False(t, coinstake.IsCoinbase())
	assert.True(t, coinstake.IsValid())

	normal := Transaction{
		Inputs:  []TxInput{{PreviousTx: "aa", OutputIndex: 0, Signature: []byte("sig")}},
		Outputs: []TxOutput{{Address: "bob", Amount: 5}},
	}
	assert.False(t, normal.IsCoinbase())
	assert.False(t, normal.IsCoinstake())
	assert.True(t, normal.IsValid())
}

func TestUnsignedInputIsInvalid(t *testing.T) {
	tx := Transaction{
		Inputs:  []TxInput{{PreviousTx: "aa", OutputIndex: 0}},
		Outputs: []TxOutput{{Address: "bob", Amount: 5}},
	}
	require.False(t, tx.IsValid())
}
