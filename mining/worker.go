package mining

import (
	"fmt"

	"github.com/jeroenvanwissen/blockchain-go/models"
)

// Job is the immutable description handed to a search worker. The worker
// shares no memory with the ledger; everything it needs rides in here.
type Job struct {
	MinerAddress string
	Reward       uint64
	Difficulty   uint8
	Index        uint32
	PreviousHash string
	Pending      []models.Transaction
	MinTimestamp int64
	Now          int64
}

// EventKind tags worker messages.
type EventKind int

const (
	// EventProgress reports the nonce reached, every progressInterval
	// attempts.
	EventProgress EventKind = iota

	// EventBlock delivers the completed block; the channel closes after.
	EventBlock

	// EventError reports a failed round; the channel closes after.
	EventError
)

// Event is the tagged union streamed back to the owning miner.
type Event struct {
	Kind  EventKind
	Nonce uint64
	Block *models.Block
	Err   error
}

const progressInterval = 100_000

// Mine starts the proof-of-work search in its own goroutine and returns
// the event channel. The search runs to completion unless stop closes; the
// hash it finds travels back verbatim inside the block.
func Mine(job Job, stop <-chan struct{}) <-chan Event {
	events := make(chan Event, 16)

	go func() {
		defer close(events)

		if int(job.Difficulty) > 64 {
			events <- Event{Kind: EventError, Err: fmt.Errorf("difficulty %d exceeds hash length", job.Difficulty)}
			return
		}

		ts := job.Now
		if job.MinTimestamp > ts {
			ts = job.MinTimestamp
		}

		txs := make([]models.Transaction, 0, len(job.Pending)+1)
		txs = append(txs, models.NewCoinbase(job.MinerAddress, job.Reward, ts))
		txs = append(txs, job.Pending...)
		rawTxs := models.CanonicalTxList(txs)

		for nonce := uint64(0); ; nonce++ {
			select {
			case <-stop:
				return
			default:
			}

			hash := models.ComputeBlockHash(ts, rawTxs, job.PreviousHash, nonce)
			if models.HashMeetsDifficulty(hash, job.Difficulty) {
				events <- Event{
					Kind:  EventBlock,
					Nonce: nonce,
					Block: &models.Block{
						Index:        job.Index,
						Timestamp:    ts,
						PreviousHash: job.PreviousHash,
						Nonce:        nonce,
						Difficulty:   job.Difficulty,
						Transactions: txs,
						Hash:         hash,
					},
				}
				return
			}

			if nonce > 0 && nonce%progressInterval == 0 {
				events <- Event{Kind: EventProgress, Nonce: nonce}
			}
		}
	}()

	return events
}
