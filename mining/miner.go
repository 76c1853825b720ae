package mining

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jeroenvanwissen/blockchain-go/config"
	"github.com/jeroenvanwissen/blockchain-go/ledger"
	"github.com/jeroenvanwissen/blockchain-go/models"
)

// Config holds miner configuration.
type Config struct {
	// TargetBlockTime spaces mining rounds. Defaults to the consensus
	// block time.
	TargetBlockTime time.Duration

	Logger *slog.Logger
	Clock  clockwork.Clock

	// OnBlock runs after a mined block is accepted locally, typically to
	// broadcast it. May be nil.
	OnBlock func(*models.Block)
}

// Miner drives the asynchronous PoW pipeline: it schedules rounds, hands
// jobs to the search worker, and submits finished blocks to the ledger.
// The CPU-bound search never runs on the caller's goroutine.
type Miner struct {
	ledger  *ledger.Ledger
	logger  *slog.Logger
	clock   clockwork.Clock
	target  time.Duration
	onBlock func(*models.Block)

	mu      sync.Mutex
	mining  bool
	address string
	timer   clockwork.Timer
	stopCh  chan struct{}
}

// New creates a miner bound to the ledger.
func New(l *ledger.Ledger, cfg *Config) *Miner {
	m := &Miner{
		ledger:  l,
		logger:  cfg.Logger,
		clock:   cfg.Clock,
		target:  cfg.TargetBlockTime,
		onBlock: cfg.OnBlock,
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.clock == nil {
		m.clock = clockwork.NewRealClock()
	}
	if m.target == 0 {
		m.target = config.BlockTime
	}
	return m
}

// Start begins mining for the address unless already mining or the chain
// has reached the PoW cutoff. When the head is younger than the target
// block time, the first round is delayed by the remainder.
func (m *Miner) Start(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mining {
		return
	}
	if m.ledger.ChainLength() >= config.PowCutoff {
		m.logger.Info("not mining: chain is past the proof-of-work cutoff")
		return
	}

	m.mining = true
	m.address = address
	m.stopCh = make(chan struct{})

	head := m.ledger.LatestBlock()
	delta := m.clock.Now().UnixMilli() - head.Timestamp
	if wait := m.target - time.Duration(delta)*time.Millisecond; wait > 0 {
		m.logger.Info("mining scheduled", "address", address, "delay", wait)
		m.timer = m.clock.AfterFunc(wait, m.startRound)
		return
	}
	go m.startRound()
}

// Stop cancels any scheduled round and terminates the worker. A result
// arriving after Stop is discarded.
func (m *Miner) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.mining {
		return
	}
	m.mining = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	close(m.stopCh)
	m.stopCh = nil
}

func (m *Miner) startRound() {
	m.mu.Lock()
	if !m.mining {
		m.mu.Unlock()
		return
	}
	address := m.address
	stop := m.stopCh
	m.mu.Unlock()

	head := m.ledger.LatestBlock()
	pending := m.ledger.PendingSnapshot()
	txs := make([]models.Transaction, len(pending))
	for i, p := range pending {
		txs[i] = *p
	}

	job := Job{
		MinerAddress: address,
		Reward:       config.PowBlockReward,
		Difficulty:   m.ledger.NextDifficulty(),
		Index:        head.Index + 1,
		PreviousHash: head.Hash,
		Pending:      txs,
		MinTimestamp: head.Timestamp + config.BlockTime.Milliseconds() + 1,
		Now:          m.clock.Now().UnixMilli(),
	}

	m.logger.Info("mining round started", "index", job.Index, "difficulty", job.Difficulty, "txs", len(txs))
	go m.consume(Mine(job, stop))
}

func (m *Miner) consume(events <-chan Event) {
	for ev := range events {
		switch ev.Kind {
		case EventProgress:
			m.logger.Debug("mining progress", "nonce", ev.Nonce)
		case EventBlock:
			m.submit(ev.Block)
		case EventError:
			m.logger.Error("mining round failed", "error", ev.Err)
			m.scheduleNext()
		}
	}
}

// submit rebuilds nothing: the worker's block, hash included, goes to the
// ledger as-is. Rejection ends the round, not the miner.
func (m *Miner) submit(b *models.Block) {
	m.mu.Lock()
	if !m.mining {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if err := m.ledger.AppendMinedBlock(b); err != nil {
		m.logger.Error("mined block rejected", "index", b.Index, "error", err)
	} else if m.onBlock != nil {
		m.onBlock(b)
	}
	m.scheduleNext()
}

func (m *Miner) scheduleNext() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.mining {
		return
	}
	if m.ledger.ChainLength() >= config.PowCutoff {
		m.logger.Info("mining finished: proof-of-work cutoff reached")
		m.mining = false
		close(m.stopCh)
		m.stopCh = nil
		return
	}
	m.timer = m.clock.AfterFunc(m.target, m.startRound)
}
