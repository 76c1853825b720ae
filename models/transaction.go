package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// TxInput spends a specific output of a prior confirmed transaction.
type TxInput struct {
	PreviousTx  string `json:"previous_tx"`
	OutputIndex uint32 `json:"output_index"`
	Signature   []byte `json:"signature,omitempty"`
}

// TxOutput assigns an amount in minor units to an address. Addresses are
// opaque strings to the ledger.
type TxOutput struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

// Transaction is a UTXO-model transaction. Three kinds are distinguished
// structurally:
//
//   - coinbase: no inputs, exactly one output
//   - coinstake: inputs present, >= 2 outputs, outputs[0].amount == 0
//   - normal: everything else; every input must carry a signature
type Transaction struct {
	Inputs    []TxInput  `json:"inputs"`
	Outputs   []TxOutput `json:"outputs"`
	Timestamp int64      `json:"timestamp"`
	Nonce     uint64     `json:"nonce"`
}

// canonicalInput is the hashed view of an input. Signatures are excluded:
// they sign the transaction hash, so including them would be circular.
type canonicalInput struct {
	PreviousTx  string `json:"previous_tx"`
	OutputIndex uint32 `json:"output_index"`
}

// canonicalTx is the hashed view of a transaction. Field order is fixed by
// declaration and the structure contains no maps, so encoding/json yields
// identical bytes on every platform.
type canonicalTx struct {
	Inputs    []canonicalInput `json:"inputs"`
	Outputs   []TxOutput       `json:"outputs"`
	Timestamp int64            `json:"timestamp"`
	Nonce     uint64           `json:"nonce"`
}

func (tx *Transaction) canonical() canonicalTx {
	inputs := make([]canonicalInput, len(tx.Inputs))
	for i, in := range tx.Inputs {
		inputs[i] = canonicalInput{PreviousTx: in.PreviousTx, OutputIndex: in.OutputIndex}
	}
	outputs := tx.Outputs
	if outputs == nil {
		outputs = []TxOutput{}
	}
	return canonicalTx{
		Inputs:    inputs,
		Outputs:   outputs,
		Timestamp: tx.Timestamp,
		Nonce:     tx.Nonce,
	}
}

// CanonicalBytes returns the deterministic serialization the transaction
// hash is computed over.
func (tx *Transaction) CanonicalBytes() []byte {
	// Marshalling a map-free struct cannot fail.
	b, _ := json.Marshal(tx.canonical())
	return b
}

// Hash returns the lowercase hex SHA-256 of the canonical serialization.
func (tx *Transaction) Hash() string {
	sum := sha256.Sum256(tx.CanonicalBytes())
	return hex.EncodeToString(sum[:])
}

// IsCoinbase reports whether the transaction mints new coins.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 0 && len(tx.Outputs) == 1
}

// IsCoinstake reports whether the transaction is the stake proof of a PoS
// block. outputs[0] is a zero-amount marker; outputs[1] returns the staked
// amount to the staker.
func (tx *Transaction) IsCoinstake() bool {
	return len(tx.Inputs) > 0 && len(tx.Outputs) >= 2 && tx.Outputs[0].Amount == 0
}

// IsValid checks structural validity. Coinbase transactions are valid by
// construction; every other input must carry a non-empty signature.
func (tx *Transaction) IsValid() bool {
	if tx.IsCoinbase() {
		return true
	}
	for _, in := range tx.Inputs {
		if len(in.Signature) == 0 {
			return false
		}
	}
	return true
}

// NewCoinbase builds a block reward transaction.
func NewCoinbase(address string, amount uint64, timestamp int64) Transaction {
	return Transaction{
		Inputs:    []TxInput{},
		Outputs:   []TxOutput{{Address: address, Amount: amount}},
		Timestamp: timestamp,
	}
}
