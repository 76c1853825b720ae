package ledger

import (
	"fmt"

	"github.com/jeroenvanwissen/blockchain-go/config"
	"github.com/jeroenvanwissen/blockchain-go/models"
)

// AppendMinedBlock validates a locally produced block and commits it. On
// success the pending pool is cleared, the UTXO delta applied, and the
// snapshot persisted.
func (l *Ledger) AppendMinedBlock(b *models.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendBlockLocked(b)
}

// TryAppendPeerBlock runs the same validation path but is idempotent when
// the block is already part of the chain.
func (l *Ledger) TryAppendPeerBlock(b *models.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if int(b.Index) < len(l.chain) && l.chain[b.Index].Hash == b.Hash {
		return nil
	}
	return l.appendBlockLocked(b)
}

func (l *Ledger) appendBlockLocked(b *models.Block) error {
	parent := l.chain[len(l.chain)-1]
	if err := l.validateNextBlock(b, parent, l.utxo, l.findTxLocked, ExpectedDifficulty(l.chain)); err != nil {
		return err
	}

	staged := l.utxo.Clone()
	if err := staged.ApplyBlock(b); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransactions, err)
	}

	l.chain = append(l.chain, b)
	l.utxo = staged
	l.pending = nil

	if b.IsProofOfStake() {
		staker := b.Transactions[1].Outputs[1].Address
		if info, ok := l.stakes[staker]; ok {
			info.LastBlockTime = b.Timestamp
		}
	}

	l.persistLocked()
	l.notifySinksLocked(b)
	l.logger.Info("appended block",
		"index", b.Index,
		"hash", b.Hash,
		"kind", blockKind(b),
		"txs", len(b.Transactions))
	return nil
}

// ReplaceChain swaps in a strictly longer, fully valid chain. The UTXO
// index is rebuilt by replay and pending transactions already confirmed by
// the new chain are dropped. Everything happens under the replace-mutex.
func (l *Ledger) ReplaceChain(newChain []*models.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(newChain) <= len(l.chain) {
		return fmt.Errorf("%w: got %d, have %d", ErrChainTooShort, len(newChain), len(l.chain))
	}

	utxo, err := l.validateChain(newChain)
	if err != nil {
		return err
	}

	confirmed := make(map[string]struct{})
	for _, b := range newChain {
		for i := range b.Transactions {
			confirmed[b.Transactions[i].Hash()] = struct{}{}
		}
	}
	var remaining []*models.Transaction
	for _, tx := range l.pending {
		if _, ok := confirmed[tx.Hash()]; !ok {
			remaining = append(remaining, tx)
		}
	}

	oldLen := len(l.chain)
	l.chain = append([]*models.Block(nil), newChain...)
	l.utxo = utxo
	l.pending = remaining

	l.persistLocked()
	l.rebuildSinksLocked(uint32(0))
	l.logger.Info("replaced chain", "old_length", oldLen, "new_length", len(newChain))
	return nil
}

// IsChainValid runs the full validation pipeline from genesis equivalence
// through every inter-block link, without touching ledger state.
func (l *Ledger) IsChainValid(chain []*models.Block) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.validateChain(chain)
	return err == nil
}

// validateChain checks a whole chain and returns the UTXO index its replay
// produces.
func (l *Ledger) validateChain(chain []*models.Block) (*models.UTXOSet, error) {
	if len(chain) == 0 {
		return nil, ErrInvalidGenesis
	}

	genesis := Genesis()
	g := chain[0]
	if g.Hash != genesis.Hash || g.PreviousHash != "0" || g.Index != 0 {
		return nil, ErrInvalidGenesis
	}

	utxo := models.NewUTXOSet()
	if err := utxo.ApplyBlock(g); err != nil {
		return nil, fmt.Errorf("%w: genesis replay: %v", ErrInvalidTransactions, err)
	}

	txByHash := make(map[string]*models.Transaction)
	index := func(b *models.Block) {
		for i := range b.Transactions {
			txByHash[b.Transactions[i].Hash()] = &b.Transactions[i]
		}
	}
	index(g)
	findTx := func(hash string) *models.Transaction { return txByHash[hash] }

	for i := 1; i < len(chain); i++ {
		b := chain[i]
		if err := l.validateNextBlock(b, chain[i-1], utxo, findTx, ExpectedDifficulty(chain[:i])); err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		if err := utxo.ApplyBlock(b); err != nil {
			return nil, fmt.Errorf("block %d: %w: %v", i, ErrInvalidTransactions, err)
		}
		index(b)
	}
	return utxo, nil
}

// validateNextBlock checks a single block against its parent. The utxo set
// and findTx describe the state at the block's position; expected is the
// retarget output for that position.
func (l *Ledger) validateNextBlock(
	b *models.Block,
	parent *models.Block,
	utxo *models.UTXOSet,
	findTx func(string) *models.Transaction,
	expected uint8,
) error {
	if !b.HasValidTransactions() {
		return ErrInvalidTransactions
	}
	if b.PreviousHash != parent.Hash {
		return ErrWrongParent
	}
	if b.Index != parent.Index+1 {
		return fmt.Errorf("%w: got %d, expected %d", ErrWrongIndex, b.Index, parent.Index+1)
	}
	if b.Timestamp-parent.Timestamp < config.BlockTime.Milliseconds() {
		return fmt.Errorf("%w: delta %dms", ErrBlockTooSoon, b.Timestamp-parent.Timestamp)
	}

	if b.IsProofOfStake() {
		if b.ComputeHash() != b.Hash {
			return fmt.Errorf("%w: stored hash does not match contents", ErrBadStake)
		}
		return l.validateCoinstake(b, utxo, findTx)
	}

	// A PoW block at exactly the cutoff height (the transition block) is
	// accepted; PoW blocks above it are rejected. Whether any stake is
	// registered is not checked here.
	if b.Index > config.PowCutoff {
		return ErrPowAfterCutoff
	}
	if b.Difficulty != expected {
		return fmt.Errorf("%w: got %d, expected %d", ErrBadDifficulty, b.Difficulty, expected)
	}
	if b.ComputeHash() != b.Hash {
		return fmt.Errorf("%w: stored hash does not match contents", ErrBadProofOfWork)
	}
	if !b.HasValidPow() {
		return ErrBadProofOfWork
	}
	return nil
}

// validateCoinstake enforces the PoS rules on transactions[1]: minimum
// amount, an unspent funding output of equal amount and address, and
// maturity of the funding transaction.
func (l *Ledger) validateCoinstake(
	b *models.Block,
	utxo *models.UTXOSet,
	findTx func(string) *models.Transaction,
) error {
	cs := &b.Transactions[1]
	ret := cs.Outputs[1]

	if ret.Amount < config.MinStakeAmount {
		return fmt.Errorf("%w: staked %d below minimum %d", ErrBadStake, ret.Amount, config.MinStakeAmount)
	}

	in := cs.Inputs[0]
	prev, ok := utxo.Lookup(models.Outpoint{TxHash: in.PreviousTx, OutputIndex: in.OutputIndex})
	if !ok {
		return fmt.Errorf("%w: staked output is spent or unknown", ErrBadStake)
	}
	if prev.Output.Amount != ret.Amount {
		return fmt.Errorf("%w: staked %d but output holds %d", ErrBadStake, ret.Amount, prev.Output.Amount)
	}
	if prev.Output.Address != ret.Address {
		return fmt.Errorf("%w: stake does not return to the owning address", ErrBadStake)
	}

	prevTx := findTx(in.PreviousTx)
	if prevTx == nil {
		return fmt.Errorf("%w: funding transaction not found", ErrBadStake)
	}
	if l.now()-prevTx.Timestamp < config.MinStakeAge.Milliseconds() {
		return fmt.Errorf("%w: stake is immature", ErrBadStake)
	}
	return nil
}

func blockKind(b *models.Block) string {
	if b.IsProofOfStake() {
		return "pos"
	}
	return "pow"
}
