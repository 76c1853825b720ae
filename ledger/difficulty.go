package ledger

import (
	"github.com/jeroenvanwissen/blockchain-go/config"
	"github.com/jeroenvanwissen/blockchain-go/models"
)

// ExpectedDifficulty computes the difficulty the next block must carry on
// top of the given chain. The window compares the head against the block
// DIFFICULTY_ADJUSTMENT_INTERVAL positions back; the result is recomputed
// for every new block so appends and full-chain validation agree.
func ExpectedDifficulty(chain []*models.Block) uint8 {
	if len(chain) <= config.DifficultyAdjustmentInterval {
		return config.GenesisDifficulty
	}

	head := chain[len(chain)-1]
	anchor := chain[len(chain)-1-config.DifficultyAdjustmentInterval]

	timeTaken := head.Timestamp - anchor.Timestamp
	timeExpected := config.BlockTime.Milliseconds() * int64(config.DifficultyAdjustmentInterval)

	if timeTaken < timeExpected/config.DifficultyAdjustmentFactor {
		return head.Difficulty + 1
	}
	if timeTaken > timeExpected*config.DifficultyAdjustmentFactor {
		if head.Difficulty > 1 {
			return head.Difficulty - 1
		}
		return 1
	}
	return head.Difficulty
}
