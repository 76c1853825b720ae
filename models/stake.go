package models

import (
	"math"
)

const msPerDay = 86_400_000

// StakeInfo tracks one address's locked stake. LastBlockTime only advances
// when the stake wins a block, which caps how fast the weight can grow.
type StakeInfo struct {
	Amount        uint64 `json:"amount"`
	StakeStart    int64  `json:"stake_start"`
	LastBlockTime int64  `json:"last_block_time"`
}

// Weight returns floor(amount * 1.1^d) where d is the number of whole days
// between stake start and the last block win. Weight is the staker's ticket
// count in the proposal lottery.
func (s *StakeInfo) Weight() uint64 {
	d := (s.LastBlockTime - s.StakeStart) / msPerDay
	if d < 0 {
		d = 0
	}
	return uint64(math.Floor(float64(s.Amount) * math.Pow(1.1, float64(d))))
}
