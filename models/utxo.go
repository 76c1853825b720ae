package models

import (
	"fmt"
	"sort"
)

// UTXO is an unspent transaction output together with its location.
type UTXO struct {
	TxHash      string   `json:"tx_hash"`
	OutputIndex uint32   `json:"output_index"`
	Output      TxOutput `json:"output"`
}

// Outpoint identifies an output by transaction hash and index.
type Outpoint struct {
	TxHash      string
	OutputIndex uint32
}

// UTXOSet is the per-address index of unspent outputs. It is owned by the
// ledger; callers outside the ledger only ever see copies. The set is the
// deterministic replay of all transactions in chain order.
type UTXOSet struct {
	entries   map[Outpoint]UTXO
	byAddress map[string]map[Outpoint]struct{}
}

// NewUTXOSet creates an empty index.
func NewUTXOSet() *UTXOSet {
	return &UTXOSet{
		entries:   make(map[Outpoint]UTXO),
		byAddress: make(map[string]map[Outpoint]struct{}),
	}
}

// Lookup returns the UTXO at an outpoint, if still unspent.
func (s *UTXOSet) Lookup(op Outpoint) (UTXO, bool) {
	u, ok := s.entries[op]
	return u, ok
}

func (s *UTXOSet) add(u UTXO) {
	op := Outpoint{TxHash: u.TxHash, OutputIndex: u.OutputIndex}
	s.entries[op] = u
	set, ok := s.byAddress[u.Output.Address]
	if !ok {
		set = make(map[Outpoint]struct{})
		s.byAddress[u.Output.Address] = set
	}
	set[op] = struct{}{}
}

func (s *UTXOSet) spend(op Outpoint) (UTXO, bool) {
	u, ok := s.entries[op]
	if !ok {
		return UTXO{}, false
	}
	delete(s.entries, op)
	if set, ok := s.byAddress[u.Output.Address]; ok {
		delete(set, op)
		if len(set) == 0 {
			delete(s.byAddress, u.Output.Address)
		}
	}
	return u, true
}

// ApplyBlock commits a block's transactions atomically: first every input
// is spent, then every new output is added. An input that does not resolve
// to an unspent output fails the whole block, leaving the set untouched
// only if the caller applied to a clone first.
func (s *UTXOSet) ApplyBlock(b *Block) error {
	for i := range b.Transactions {
		tx := &b.Transactions[i]
		for _, in := range tx.Inputs {
			op := Outpoint{TxHash: in.PreviousTx, OutputIndex: in.OutputIndex}
			if _, ok := s.spend(op); !ok {
				return fmt.Errorf("input %s:%d is not unspent", in.PreviousTx, in.OutputIndex)
			}
		}
	}
	for i := range b.Transactions {
		tx := &b.Transactions[i]
		txHash := tx.Hash()
		for idx, out := range tx.Outputs {
			if out.Amount == 0 {
				// Coinstake marker and elided change carry no value.
				continue
			}
			s.add(UTXO{TxHash: txHash, OutputIndex: uint32(idx), Output: out})
		}
	}
	return nil
}

// Balance sums the unspent outputs held by an address.
func (s *UTXOSet) Balance(address string) uint64 {
	var total uint64
	for op := range s.byAddress[address] {
		total += s.entries[op].Output.Amount
	}
	return total
}

// AddressUTXOs returns the address's unspent outputs in deterministic
// (tx hash, output index) order, so greedy selection is reproducible.
func (s *UTXOSet) AddressUTXOs(address string) []UTXO {
	set := s.byAddress[address]
	utxos := make([]UTXO, 0, len(set))
	for op := range set {
		utxos = append(utxos, s.entries[op])
	}
	sort.Slice(utxos, func(i, j int) bool {
		if utxos[i].TxHash != utxos[j].TxHash {
			return utxos[i].TxHash < utxos[j].TxHash
		}
		return utxos[i].OutputIndex < utxos[j].OutputIndex
	})
	return utxos
}

// Clone deep-copies the set. Appends validate against a clone and swap it
// in only on success.
func (s *UTXOSet) Clone() *UTXOSet {
	c := NewUTXOSet()
	for _, u := range s.entries {
		c.add(u)
	}
	return c
}

// Size returns the number of unspent outputs tracked.
func (s *UTXOSet) Size() int {
	return len(s.entries)
}
