package ledger

import (
	"github.com/jeroenvanwissen/blockchain-go/config"
	"github.com/jeroenvanwissen/blockchain-go/models"
)

// Genesis returns the fixed first block. Every node constructs the same
// block, so its hash is a network-wide constant.
func Genesis() *models.Block {
	b := &models.Block{
		Index:        0,
		Timestamp:    config.GenesisTimestamp,
		PreviousHash: "0",
		Nonce:        0,
		Difficulty:   config.GenesisDifficulty,
		Transactions: []models.Transaction{
			models.NewCoinbase(config.GenesisAddress, config.GenesisAmount, config.GenesisTimestamp),
		},
	}
	b.Hash = b.ComputeHash()
	return b
}
