package ledger_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachemem "github.com/jeroenvanwissen/blockchain-go/cache/memory"
	"github.com/jeroenvanwissen/blockchain-go/config"
	"github.com/jeroenvanwissen/blockchain-go/crypto"
	"github.com/jeroenvanwissen/blockchain-go/ledger"
	"github.com/jeroenvanwissen/blockchain-go/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger(t *testing.T) (*ledger.Ledger, clockwork.FakeClock, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chain.json")
	clk := clockwork.NewFakeClockAt(time.UnixMilli(config.GenesisTimestamp))
	sigs, err := cachemem.New(128)
	require.NoError(t, err)

	l, err := ledger.New(&ledger.Config{
		SnapshotPath: path,
		Logger:       quietLogger(),
		Clock:        clk,
		SigCache:     sigs,
	})
	require.NoError(t, err)
	return l, clk, path
}

func mineBlocks(t *testing.T, l *ledger.Ledger, miner string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := l.MinePending(miner)
		require.NoError(t, err)
	}
}

func TestGenesisOnly(t *testing.T) {
	l, _, _ := newTestLedger(t)

	require.Equal(t, 1, l.ChainLength())
	genesis := l.LatestBlock()
	assert.Equal(t, uint32(0), genesis.Index)
	assert.Equal(t, "0", genesis.PreviousHash)
	assert.True(t, genesis.IsProofOfWork())
	assert.Equal(t, config.GenesisAmount, l.Balance(config.GenesisAddress))
	assert.Equal(t, ledger.Genesis().Hash, genesis.Hash)
}

func TestPowRewardAccrual(t *testing.T) {
	l, _, _ := newTestLedger(t)

	mineBlocks(t, l, "miner1", 50)

	require.Equal(t, 51, l.ChainLength())
	assert.Equal(t, 50*config.PowBlockReward, l.TotalBalance("miner1"))
	assert.Equal(t, l.TotalBalance("miner1"), l.Balance("miner1"))

	chain := l.ChainSnapshot()
	for i := 1; i < len(chain); i++ {
		assert.Equal(t, chain[i-1].Hash, chain[i].PreviousHash)
		assert.Equal(t, uint32(i), chain[i].Index)
		assert.GreaterOrEqual(t, chain[i].Timestamp-chain[i-1].Timestamp, config.BlockTime.Milliseconds())
		assert.True(t, chain[i].HasValidPow())
	}
	assert.True(t, l.IsChainValid(chain))
}

func TestTransitionToPos(t *testing.T) {
	l, clk, _ := newTestLedger(t)

	mineBlocks(t, l, "miner1", config.PowCutoff)
	require.Equal(t, config.PowCutoff+1, l.ChainLength())
	assert.True(t, l.LatestBlock().IsProofOfWork(), "block at the cutoff is the PoW transition block")

	require.NoError(t, l.Stake("miner1", 100))
	stake := l.GetStake("miner1")
	require.NotNil(t, stake)
	assert.Equal(t, uint64(100), stake.Amount)

	// Let the stake and its funding outputs mature.
	clk.Advance(25 * time.Hour)

	block, err := l.MinePending("miner1")
	require.NoError(t, err)
	require.NotNil(t, block)

	head := l.LatestBlock()
	assert.True(t, head.IsProofOfStake())
	assert.Equal(t, uint32(config.PowCutoff+1), head.Index)
	assert.Equal(t, config.PosBlockReward, head.Transactions[0].Outputs[0].Amount)
	assert.True(t, l.IsChainValid(l.ChainSnapshot()))
}

func TestStakeBelowMinimum(t *testing.T) {
	l, _, _ := newTestLedger(t)
	mineBlocks(t, l, "miner1", 1)

	before := l.ChainLength()
	err := l.Stake("miner1", 50)
	require.ErrorIs(t, err, ledger.ErrBelowMinimumStake)
	assert.Equal(t, before, l.ChainLength())
	assert.Nil(t, l.GetStake("miner1"))
}

func TestStakeWithoutBalance(t *testing.T) {
	l, _, _ := newTestLedger(t)

	err := l.Stake("pauper", 100)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalanceForStaking)
	assert.Nil(t, l.GetStake("pauper"))
}

func TestUnstake(t *testing.T) {
	l, _, _ := newTestLedger(t)
	mineBlocks(t, l, "staker1", 1)
	require.NoError(t, l.Stake("staker1", 100))

	require.NoError(t, l.Unstake("staker1", 40))
	assert.Equal(t, uint64(60), l.GetStake("staker1").Amount)

	require.ErrorIs(t, l.Unstake("staker1", 100), ledger.ErrInsufficientStake)

	require.NoError(t, l.Unstake("staker1", 60))
	assert.Nil(t, l.GetStake("staker1"))

	require.ErrorIs(t, l.Unstake("staker1", 1), ledger.ErrNoStake)
}

func TestReplaceChainAcceptsLonger(t *testing.T) {
	a, _, _ := newTestLedger(t)
	b, _, _ := newTestLedger(t)

	mineBlocks(t, a, "alice", 3)
	mineBlocks(t, b, "bob", 2)

	require.NoError(t, b.ReplaceChain(a.ChainSnapshot()))
	assert.Equal(t, 4, b.ChainLength())
	assert.Equal(t, a.LatestBlock().Hash, b.LatestBlock().Hash)
	assert.Equal(t, 3*config.PowBlockReward, b.Balance("alice"))
	assert.Equal(t, uint64(0), b.Balance("bob"), "UTXO index rebuilt from the new chain")
	assert.Equal(t, b.TotalBalance("alice"), b.Balance("alice"))
}

func TestReplaceChainRejectsShorter(t *testing.T) {
	a, _, _ := newTestLedger(t)
	b, _, _ := newTestLedger(t)

	mineBlocks(t, a, "alice", 2)
	mineBlocks(t, b, "bob", 2)

	err := b.ReplaceChain(a.ChainSnapshot())
	require.ErrorIs(t, err, ledger.ErrChainTooShort)
	assert.Equal(t, "bob", b.LatestBlock().Producer())
}

func TestReplaceChainRejectsTampered(t *testing.T) {
	a, _, _ := newTestLedger(t)
	b, _, _ := newTestLedger(t)

	mineBlocks(t, a, "alice", 3)

	chain := a.ChainSnapshot()
	tampered := *chain[2]
	tampered.PreviousHash = "forged"
	chain[2] = &tampered

	require.Error(t, b.ReplaceChain(chain))
	assert.Equal(t, 1, b.ChainLength())
}

func TestReplaceChainKeepsUnconfirmedPending(t *testing.T) {
	a, _, _ := newTestLedger(t)
	b, _, _ := newTestLedger(t)
	mineBlocks(t, a, "alice", 2)

	// An orphan transaction: its input is unknown to the ledger, so deep
	// verification is skipped and it waits in the pending pool.
	orphan := &models.Transaction{
		Inputs:    []models.TxInput{{PreviousTx: "feed", OutputIndex: 0, Signature: []byte("sig")}},
		Outputs:   []models.TxOutput{{Address: "bob", Amount: 1}},
		Timestamp: config.GenesisTimestamp,
	}
	require.NoError(t, b.AddTransaction(orphan))

	require.NoError(t, b.ReplaceChain(a.ChainSnapshot()))
	pending := b.PendingSnapshot()
	require.Len(t, pending, 1)
	assert.Equal(t, orphan.Hash(), pending[0].Hash())
}

func TestTryAppendPeerBlockIdempotent(t *testing.T) {
	l, _, _ := newTestLedger(t)
	mineBlocks(t, l, "miner1", 2)

	head := l.LatestBlock()
	require.NoError(t, l.TryAppendPeerBlock(head))
	assert.Equal(t, 3, l.ChainLength())
}

func TestAppendRejectsWrongParent(t *testing.T) {
	l, _, _ := newTestLedger(t)
	mineBlocks(t, l, "miner1", 1)

	head := l.LatestBlock()
	forged := *head
	forged.Index = head.Index + 1
	forged.PreviousHash = "forged"

	err := l.TryAppendPeerBlock(&forged)
	require.ErrorIs(t, err, ledger.ErrWrongParent)
	assert.Equal(t, 2, l.ChainLength())
}

func TestAppendRejectsBlockTooSoon(t *testing.T) {
	l, _, _ := newTestLedger(t)
	head := l.LatestBlock()

	b := &models.Block{
		Index:        head.Index + 1,
		Timestamp:    head.Timestamp + 1_000,
		PreviousHash: head.Hash,
		Difficulty:   config.GenesisDifficulty,
		Transactions: []models.Transaction{models.NewCoinbase("miner1", config.PowBlockReward, head.Timestamp+1_000)},
	}
	b.Hash = b.ComputeHash()

	require.ErrorIs(t, l.AppendMinedBlock(b), ledger.ErrBlockTooSoon)
}

func TestAppendRejectsWrongDifficulty(t *testing.T) {
	l, _, _ := newTestLedger(t)
	head := l.LatestBlock()
	ts := head.Timestamp + config.BlockTime.Milliseconds() + 1

	b := &models.Block{
		Index:        head.Index + 1,
		Timestamp:    ts,
		PreviousHash: head.Hash,
		Difficulty:   config.GenesisDifficulty + 1,
		Transactions: []models.Transaction{models.NewCoinbase("miner1", config.PowBlockReward, ts)},
	}
	b.Hash = b.ComputeHash()

	require.ErrorIs(t, l.AppendMinedBlock(b), ledger.ErrBadDifficulty)
}

func TestPersistenceRoundTrip(t *testing.T) {
	l, _, path := newTestLedger(t)
	mineBlocks(t, l, "miner1", 2)
	want := l.LatestBlock().Hash

	restored, err := ledger.New(&ledger.Config{
		SnapshotPath: path,
		Logger:       quietLogger(),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, restored.ChainLength())
	assert.Equal(t, want, restored.LatestBlock().Hash)
	assert.Equal(t, l.Balance("miner1"), restored.Balance("miner1"))
	assert.Equal(t, restored.TotalBalance("miner1"), restored.Balance("miner1"))
}

func TestCorruptSnapshotIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	_, err := ledger.New(&ledger.Config{SnapshotPath: path, Logger: quietLogger()})
	require.Error(t, err)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "{broken", string(data), "corrupt snapshot must not be overwritten")
}

func TestCreateAndConfirmTransaction(t *testing.T) {
	l, _, _ := newTestLedger(t)

	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	mineBlocks(t, l, kp.Address(), 1)

	tx, err := l.CreateTransaction(kp.Address(), "bob", 500, kp)
	require.NoError(t, err)
	require.NoError(t, l.AddTransaction(tx))

	mineBlocks(t, l, kp.Address(), 1)

	assert.Equal(t, uint64(500), l.Balance("bob"))
	assert.Equal(t, 2*config.PowBlockReward-500, l.Balance(kp.Address()))
	assert.Empty(t, l.PendingSnapshot())
	assert.Equal(t, l.TotalBalance("bob"), l.Balance("bob"))
}

func TestCreateTransactionInsufficientFunds(t *testing.T) {
	l, _, _ := newTestLedger(t)

	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	mineBlocks(t, l, kp.Address(), 1)

	_, err = l.CreateTransaction(kp.Address(), "bob", config.PowBlockReward+1, kp)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
}

func TestAddTransactionRejectsBadSignature(t *testing.T) {
	l, _, _ := newTestLedger(t)

	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	mineBlocks(t, l, kp.Address(), 1)

	tx, err := l.CreateTransaction(kp.Address(), "bob", 500, kp)
	require.NoError(t, err)
	tx.Inputs[0].Signature = []byte("forged but present")

	require.ErrorIs(t, l.AddTransaction(tx), ledger.ErrInvalidTransactions)
}

func TestAddTransactionRejectsEmpty(t *testing.T) {
	l, _, _ := newTestLedger(t)

	err := l.AddTransaction(&models.Transaction{})
	require.ErrorIs(t, err, ledger.ErrInvalidTransactions)
}

func TestGenerateStakeBlockRequiresStake(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.GenerateStakeBlock("nobody")
	require.ErrorIs(t, err, ledger.ErrNoStake)
}

func TestGenerateStakeBlockWaitsForMaturity(t *testing.T) {
	l, _, _ := newTestLedger(t)
	mineBlocks(t, l, "staker1", 1)
	require.NoError(t, l.Stake("staker1", 100))

	block, err := l.GenerateStakeBlock("staker1")
	require.NoError(t, err)
	assert.Nil(t, block, "immature stake must not propose")
}

func TestExpectedDifficulty(t *testing.T) {
	mkChain := func(n int, spacing int64, difficulty uint8) []*models.Block {
		chain := make([]*models.Block, n)
		for i := range chain {
			chain[i] = &models.Block{
				Index:      uint32(i),
				Timestamp:  config.GenesisTimestamp + int64(i)*spacing,
				Difficulty: difficulty,
			}
		}
		return chain
	}

	// Shorter than the retarget window: genesis difficulty.
	assert.Equal(t, config.GenesisDifficulty, ledger.ExpectedDifficulty(mkChain(5, 600_001, 9)))

	// On pace: unchanged.
	assert.Equal(t, uint8(4), ledger.ExpectedDifficulty(mkChain(12, 600_001, 4)))

	// Too fast: one step up.
	assert.Equal(t, uint8(5), ledger.ExpectedDifficulty(mkChain(12, 100_000, 4)))

	// Too slow: one step down, floored at 1.
	assert.Equal(t, uint8(3), ledger.ExpectedDifficulty(mkChain(12, 3_000_000, 4)))
	assert.Equal(t, uint8(1), ledger.ExpectedDifficulty(mkChain(12, 3_000_000, 1)))
}
