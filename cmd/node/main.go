package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jeroenvanwissen/blockchain-go/config"
	"github.com/jeroenvanwissen/blockchain-go/node"
)

// splitAndTrim splits a string by delimiter and trims whitespace from each part
func splitAndTrim(s, delim string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, delim)
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func main() {
	// Parse flags
	p2pPort := flag.Int("p2p-port", config.PortFromEnv(), "P2P listen port (env P2P_PORT)")
	peers := flag.String("peers", "", "Comma-separated list of peer URLs to dial")
	dataDir := flag.String("data-dir", "./data", "Data directory for chain state")
	storageType := flag.String("storage", "badger", "Block archive storage: memory or badger")
	mine := flag.Bool("mine", false, "Run the proof-of-work miner")
	minerAddress := flag.String("miner-address", "", "Address mining rewards are paid to")
	stakeAddress := flag.String("stake-address", "", "Address to attempt stake proposals for")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	// Set up slog with the specified level
	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	peerList := splitAndTrim(*peers, ",")

	if *mine {
		if *minerAddress == "" {
			log.Fatal("-mine requires -miner-address")
		}
		if len(peerList) == 0 {
			log.Fatal("-mine requires at least one peer (-peers); a lone miner would fork itself off the network")
		}
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	cfg := &config.Config{
		P2PPort:      *p2pPort,
		Peers:        peerList,
		DataDir:      *dataDir,
		Storage:      *storageType,
		Mine:         *mine,
		MinerAddress: *minerAddress,
		StakeAddress: *stakeAddress,
		LogLevel:     *logLevel,
	}

	n, err := node.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to start node: %v", err)
	}

	if err := n.Start(); err != nil {
		log.Fatalf("Failed to start node: %v", err)
	}
	defer n.Stop()

	log.Printf("Node started | Height: %d | Port: %d", n.Ledger.ChainLength()-1, cfg.P2PPort)

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Status ticker to show we're alive and peer count
	statusTicker := time.NewTicker(5 * time.Minute)
	defer statusTicker.Stop()

	for {
		select {
		case <-sigCh:
			log.Println("Shutting down...")
			return

		case <-statusTicker.C:
			head := n.Ledger.LatestBlock()
			log.Printf("Status: height %d, %d peers, %d pending txs",
				head.Index, n.Server.PeerCount(), len(n.Ledger.PendingSnapshot()))
		}
	}
}
