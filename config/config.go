package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Consensus constants. These are protocol parameters; changing any of them
// forks the chain.
const (
	// PowCutoff is the proof-of-work cutoff height: PoW blocks above this
	// index are rejected. One PoW block at exactly this index is tolerated
	// (the transition block); validation does not check whether a stake
	// exists.
	PowCutoff = 100

	// PowBlockReward is the coinbase payout for a proof-of-work block.
	PowBlockReward uint64 = 12_500

	// PosBlockReward is the coinbase payout for a proof-of-stake block.
	PosBlockReward uint64 = 10

	// MinStakeAmount is the smallest stake that can be locked or staked in
	// a coinstake.
	MinStakeAmount uint64 = 100

	// MinStakeAge is how long locked funds must mature before they can
	// propose blocks.
	MinStakeAge = 24 * time.Hour

	// StakeCheckInterval is how often an eligible staker attempts a
	// proposal, and the minimum spacing between wins for one address.
	StakeCheckInterval = time.Minute

	// BlockTime is the target spacing between consecutive blocks.
	BlockTime = 600 * time.Second

	// DifficultyAdjustmentInterval is the retarget window in blocks.
	DifficultyAdjustmentInterval = 10

	// DifficultyAdjustmentFactor bounds how far off the window may drift
	// before the difficulty moves.
	DifficultyAdjustmentFactor = 4

	// GenesisDifficulty is the difficulty of the fixed genesis block and of
	// chains shorter than the retarget window.
	GenesisDifficulty uint8 = 4

	// GenesisTimestamp is 2021-01-01T00:00:00Z in milliseconds.
	GenesisTimestamp int64 = 1_609_459_200_000

	GenesisAddress        = "genesis"
	GenesisAmount  uint64 = 1_000_000
)

// DefaultP2PPort is used when neither the P2P_PORT environment variable nor
// the -p2p-port flag is set.
const DefaultP2PPort = 5001

// Config holds node-level settings resolved from flags and environment.
type Config struct {
	P2PPort      int
	Peers        []string
	DataDir      string
	Storage      string // "badger" or "memory"
	Mine         bool
	MinerAddress string
	StakeAddress string
	LogLevel     string
}

// SnapshotPath returns the chain snapshot file location under DataDir.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.DataDir, "chain.json")
}

// PeerLogPath returns the persisted peer list location under DataDir.
func (c *Config) PeerLogPath() string {
	return filepath.Join(c.DataDir, "peers.json")
}

// MetadataPath returns the sqlite block metadata location under DataDir.
func (c *Config) MetadataPath() string {
	return filepath.Join(c.DataDir, "metadata.db")
}

// ArchivePath returns the badger block archive location under DataDir.
func (c *Config) ArchivePath() string {
	return filepath.Join(c.DataDir, "archive")
}

// PortFromEnv resolves the listen port from P2P_PORT, falling back to the
// default when unset or unparseable.
func PortFromEnv() int {
	if v := os.Getenv("P2P_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			return port
		}
	}
	return DefaultP2PPort
}
