package ledger

import (
	"encoding/hex"
	"fmt"

	"github.com/jeroenvanwissen/blockchain-go/config"
	"github.com/jeroenvanwissen/blockchain-go/crypto"
	"github.com/jeroenvanwissen/blockchain-go/models"
)

// addressSigner marks locking and coinstake inputs for addresses whose
// keys this node does not hold (stake registrations arriving over gossip).
// Consensus validation only requires these inputs to carry a non-empty
// signature.
type addressSigner struct {
	address string
}

func (s addressSigner) Sign(hash []byte) ([]byte, error) {
	return []byte("stake:" + s.address), nil
}

func (s addressSigner) Address() string {
	return s.address
}

// signerFor prefers the node wallet when it controls the address.
func (l *Ledger) signerFor(address string) crypto.Signer {
	if l.signer != nil && l.signer.Address() == address {
		return l.signer
	}
	return addressSigner{address: address}
}

// Stake locks funds for proof-of-stake participation: a locking
// transaction returning the amount to the staker enters the pending pool,
// and the stake registry records the new weight basis.
func (l *Ledger) Stake(address string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount < config.MinStakeAmount {
		return fmt.Errorf("%w: %d < %d", ErrBelowMinimumStake, amount, config.MinStakeAmount)
	}
	if l.utxo.Balance(address) < amount {
		return fmt.Errorf("%w: %s holds %d", ErrInsufficientBalanceForStaking, address, l.utxo.Balance(address))
	}

	lock, err := l.createTransactionLocked(address, address, amount, l.signerFor(address))
	if err != nil {
		return err
	}
	l.pending = append(l.pending, lock)

	now := l.now()
	info, ok := l.stakes[address]
	if !ok {
		info = &models.StakeInfo{}
		l.stakes[address] = info
	}
	info.Amount += amount
	info.StakeStart = now
	info.LastBlockTime = now

	l.logger.Info("stake registered", "address", address, "amount", info.Amount)
	return nil
}

// Unstake releases part or all of a registered stake.
func (l *Ledger) Unstake(address string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, ok := l.stakes[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoStake, address)
	}
	if amount > info.Amount {
		return fmt.Errorf("%w: %d > %d", ErrInsufficientStake, amount, info.Amount)
	}

	info.Amount -= amount
	if info.Amount == 0 {
		delete(l.stakes, address)
	}
	l.logger.Info("stake released", "address", address, "amount", amount)
	return nil
}

// totalWeightLocked sums every registered stake's lottery weight.
func (l *Ledger) totalWeightLocked() uint64 {
	var total uint64
	for _, info := range l.stakes {
		total += info.Weight()
	}
	return total
}

// GenerateStakeBlock attempts one proposal: eligibility gates, then the
// weighted lottery, then coinstake assembly. A nil block with nil error
// means this attempt simply did not win.
func (l *Ledger) GenerateStakeBlock(address string) (*models.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generateStakeBlockLocked(address)
}

func (l *Ledger) generateStakeBlockLocked(address string) (*models.Block, error) {
	info, ok := l.stakes[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoStake, address)
	}

	now := l.now()
	if now-info.StakeStart < config.MinStakeAge.Milliseconds() {
		return nil, nil
	}
	if now-info.LastBlockTime < config.StakeCheckInterval.Milliseconds() {
		return nil, nil
	}

	if !l.detLottery {
		total := l.totalWeightLocked()
		if total == 0 {
			return nil, nil
		}
		probability := float64(info.Weight()) / float64(total)
		if l.rand() > probability {
			return nil, nil
		}
	}

	return l.buildStakeBlockLocked(address, info)
}

// buildStakeBlockLocked assembles coinbase + coinstake + pending into a
// block carrying the current retarget difficulty.
func (l *Ledger) buildStakeBlockLocked(address string, info *models.StakeInfo) (*models.Block, error) {
	now := l.now()
	reserved := l.pendingSpentLocked()
	var funding *models.UTXO
	for _, u := range l.utxo.AddressUTXOs(address) {
		if u.Output.Amount < info.Amount {
			continue
		}
		if _, taken := reserved[models.Outpoint{TxHash: u.TxHash, OutputIndex: u.OutputIndex}]; taken {
			continue
		}
		prevTx := l.findTxLocked(u.TxHash)
		if prevTx == nil || now-prevTx.Timestamp < config.MinStakeAge.Milliseconds() {
			continue
		}
		funding = &u
		break
	}
	if funding == nil {
		return nil, fmt.Errorf("%w: no mature output covering stake of %d", ErrBadStake, info.Amount)
	}

	parent := l.chain[len(l.chain)-1]
	ts := blockTimestamp(now, parent)

	coinstake := models.Transaction{
		Inputs: []models.TxInput{{PreviousTx: funding.TxHash, OutputIndex: funding.OutputIndex}},
		Outputs: []models.TxOutput{
			{Address: address, Amount: 0},
			{Address: address, Amount: funding.Output.Amount},
		},
		Timestamp: ts,
		Nonce:     l.nextNonce(),
	}
	hashBytes, err := hex.DecodeString(coinstake.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to decode coinstake hash: %w", err)
	}
	sig, err := l.signerFor(address).Sign(hashBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to sign coinstake: %w", err)
	}
	coinstake.Inputs[0].Signature = sig

	txs := []models.Transaction{
		models.NewCoinbase(address, config.PosBlockReward, ts),
		coinstake,
	}
	for _, p := range l.pending {
		txs = append(txs, *p)
	}

	b := &models.Block{
		Index:        parent.Index + 1,
		Timestamp:    ts,
		PreviousHash: parent.Hash,
		Nonce:        0,
		Difficulty:   ExpectedDifficulty(l.chain),
		Transactions: txs,
	}
	b.Hash = b.ComputeHash()
	return b, nil
}

// MinePending is the synchronous convenience used in tests: PoW search
// before the cutoff, one final transition PoW block when the miner has no
// registered stake, stake proposal otherwise.
func (l *Ledger) MinePending(miner string) (*models.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.chain) >= config.PowCutoff {
		if _, ok := l.stakes[miner]; ok {
			b, err := l.generateStakeBlockLocked(miner)
			if err != nil || b == nil {
				return nil, err
			}
			if err := l.appendBlockLocked(b); err != nil {
				return nil, err
			}
			return b, nil
		}
	}
	return l.minePowLocked(miner)
}

func (l *Ledger) minePowLocked(miner string) (*models.Block, error) {
	parent := l.chain[len(l.chain)-1]
	ts := blockTimestamp(l.now(), parent)

	txs := []models.Transaction{models.NewCoinbase(miner, config.PowBlockReward, ts)}
	for _, p := range l.pending {
		txs = append(txs, *p)
	}

	difficulty := ExpectedDifficulty(l.chain)
	rawTxs := models.CanonicalTxList(txs)

	var (
		nonce uint64
		hash  string
	)
	for {
		hash = models.ComputeBlockHash(ts, rawTxs, parent.Hash, nonce)
		if models.HashMeetsDifficulty(hash, difficulty) {
			break
		}
		nonce++
	}

	b := &models.Block{
		Index:        parent.Index + 1,
		Timestamp:    ts,
		PreviousHash: parent.Hash,
		Nonce:        nonce,
		Difficulty:   difficulty,
		Transactions: txs,
		Hash:         hash,
	}
	if err := l.appendBlockLocked(b); err != nil {
		return nil, err
	}
	return b, nil
}

// blockTimestamp applies the canonical rule for both PoW and PoS blocks:
// max(now, parent + BLOCK_TIME + 1ms).
func blockTimestamp(now int64, parent *models.Block) int64 {
	min := parent.Timestamp + config.BlockTime.Milliseconds() + 1
	if now > min {
		return now
	}
	return min
}
