package node

import (
	"fmt"
	"log/slog"

	"github.com/jeroenvanwissen/blockchain-go/cache"
	cachemem "github.com/jeroenvanwissen/blockchain-go/cache/memory"
	"github.com/jeroenvanwissen/blockchain-go/config"
	"github.com/jeroenvanwissen/blockchain-go/kvstore"
	"github.com/jeroenvanwissen/blockchain-go/kvstore/badger"
	kvmem "github.com/jeroenvanwissen/blockchain-go/kvstore/memory"
	"github.com/jeroenvanwissen/blockchain-go/ledger"
	"github.com/jeroenvanwissen/blockchain-go/metadata"
	"github.com/jeroenvanwissen/blockchain-go/metadata/sqlite"
	"github.com/jeroenvanwissen/blockchain-go/mining"
	"github.com/jeroenvanwissen/blockchain-go/p2p"
	"github.com/jeroenvanwissen/blockchain-go/staking"
)

const sigCacheSize = 8192

// Node wires the components in dependency order: config, ledger (which
// loads the snapshot), p2p server, then miner and staking service.
type Node struct {
	cfg    *config.Config
	logger *slog.Logger

	archive kvstore.BlockArchive
	meta    metadata.Store
	sigs    cache.SigCache

	Ledger *ledger.Ledger
	Server *p2p.Server
	Miner  *mining.Miner
	Staker *staking.Service
}

// New builds a node from configuration. Any failure here is fatal to
// startup; nothing is partially started.
func New(cfg *config.Config, logger *slog.Logger) (*Node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{cfg: cfg, logger: logger}

	var err error
	switch cfg.Storage {
	case "", "badger":
		n.archive, err = badger.New(&badger.Config{DataDir: cfg.ArchivePath()})
		if err != nil {
			return nil, fmt.Errorf("failed to open block archive: %w", err)
		}
	case "memory":
		n.archive = kvmem.New()
	default:
		return nil, fmt.Errorf("unknown storage type: %s (use 'memory' or 'badger')", cfg.Storage)
	}

	n.meta, err = sqlite.New(&sqlite.Config{DBPath: cfg.MetadataPath()})
	if err != nil {
		n.archive.Close()
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	n.sigs, err = cachemem.New(sigCacheSize)
	if err != nil {
		n.close()
		return nil, fmt.Errorf("failed to create signature cache: %w", err)
	}

	n.Ledger, err = ledger.New(&ledger.Config{
		SnapshotPath: cfg.SnapshotPath(),
		Logger:       logger,
		SigCache:     n.sigs,
		Archive:      n.archive,
		Metadata:     n.meta,
	})
	if err != nil {
		n.close()
		return nil, err
	}

	n.Server, err = p2p.New(n.Ledger, &p2p.Config{
		Port:        cfg.P2PPort,
		PeerLogPath: cfg.PeerLogPath(),
		Logger:      logger,
	})
	if err != nil {
		n.close()
		return nil, err
	}

	n.Miner = mining.New(n.Ledger, &mining.Config{
		Logger:  logger,
		OnBlock: n.Server.BroadcastBlock,
	})
	if cfg.StakeAddress != "" {
		n.Staker = staking.New(n.Ledger, cfg.StakeAddress, &staking.Config{
			Logger:  logger,
			OnBlock: n.Server.BroadcastBlock,
		})
	}
	return n, nil
}

// Start opens the listener, dials configured peers, and launches mining
// and staking as configured.
func (n *Node) Start() error {
	if err := n.Server.Start(); err != nil {
		return err
	}
	for _, peer := range n.cfg.Peers {
		n.Server.Connect(peer)
	}

	if n.cfg.Mine {
		n.Miner.Start(n.cfg.MinerAddress)
	}
	if n.Staker != nil {
		n.Staker.Start()
	}
	return nil
}

// Stop shuts everything down in reverse order.
func (n *Node) Stop() {
	if n.Staker != nil {
		n.Staker.Stop()
	}
	n.Miner.Stop()
	if err := n.Server.Stop(); err != nil {
		n.logger.Warn("p2p server shutdown", "error", err)
	}
	n.close()
}

func (n *Node) close() {
	if n.meta != nil {
		n.meta.Close()
	}
	if n.archive != nil {
		n.archive.Close()
	}
}
