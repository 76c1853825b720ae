package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/natefinch/atomic"

	"github.com/jeroenvanwissen/blockchain-go/merkle"
	"github.com/jeroenvanwissen/blockchain-go/metadata"
	"github.com/jeroenvanwissen/blockchain-go/models"
	"github.com/jeroenvanwissen/blockchain-go/multihash"
)

// loadSnapshot reads the persisted chain. A missing file returns
// (nil, nil) so the caller can start from genesis; a present-but-broken
// file is an error and is never overwritten.
func loadSnapshot(path string) ([]*models.Block, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var chain []*models.Block
	if err := json.Unmarshal(data, &chain); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("snapshot holds no blocks")
	}
	return chain, nil
}

// validateLoadedChain checks structural invariants of a loaded snapshot
// and rebuilds the UTXO index by replay. Stored hashes are trusted, not
// recomputed: they were captured at construction time.
func validateLoadedChain(chain []*models.Block) (*models.UTXOSet, error) {
	g := chain[0]
	if g.Index != 0 || g.PreviousHash != "0" {
		return nil, ErrInvalidGenesis
	}

	utxo := models.NewUTXOSet()
	if err := utxo.ApplyBlock(g); err != nil {
		return nil, fmt.Errorf("%w: genesis replay: %v", ErrInvalidTransactions, err)
	}

	for i := 1; i < len(chain); i++ {
		b := chain[i]
		if b.PreviousHash != chain[i-1].Hash {
			return nil, fmt.Errorf("%w: block %d", ErrBrokenLink, i)
		}
		if int(b.Index) != i {
			return nil, fmt.Errorf("%w: block %d carries index %d", ErrBrokenLink, i, b.Index)
		}
		if !b.HasValidTransactions() {
			return nil, fmt.Errorf("block %d: %w", i, ErrInvalidTransactions)
		}
		if err := utxo.ApplyBlock(b); err != nil {
			return nil, fmt.Errorf("block %d: %w: %v", i, ErrInvalidTransactions, err)
		}
	}
	return utxo, nil
}

// persistLocked writes the whole chain atomically. Append is already
// committed in memory when this runs; a write failure is logged so the
// operator can intervene, not propagated into consensus.
func (l *Ledger) persistLocked() {
	if l.snapshotPath == "" {
		return
	}

	data, err := json.MarshalIndent(l.chain, "", "  ")
	if err != nil {
		l.logger.Error("failed to encode snapshot", "error", err)
		return
	}
	if err := atomic.WriteFile(l.snapshotPath, bytes.NewReader(data)); err != nil {
		l.logger.Error("failed to write snapshot", "path", l.snapshotPath, "error", err)
	}
}

// notifySinksLocked feeds the optional archive and metadata stores after a
// block commits. Sink failures are logged, never consensus-fatal.
func (l *Ledger) notifySinksLocked(b *models.Block) {
	ctx := context.Background()

	if l.archive != nil {
		if err := l.archiveBlock(ctx, b); err != nil {
			l.logger.Warn("failed to archive block", "index", b.Index, "error", err)
		}
	}
	if l.meta != nil {
		if err := l.meta.PutBlock(ctx, blockMeta(b)); err != nil {
			l.logger.Warn("failed to store block metadata", "index", b.Index, "error", err)
		}
	}
}

// rebuildSinksLocked refreshes the sinks after a chain replacement.
func (l *Ledger) rebuildSinksLocked(from uint32) {
	if l.meta != nil {
		if err := l.meta.DeleteFrom(context.Background(), from); err != nil {
			l.logger.Warn("failed to rewind block metadata", "from", from, "error", err)
		}
	}
	for _, b := range l.chain {
		if b.Index >= from {
			l.notifySinksLocked(b)
		}
	}
}

func (l *Ledger) archiveBlock(ctx context.Context, b *models.Block) error {
	key, err := multihash.NewBlockKey(b.Hash)
	if err != nil {
		return err
	}
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return l.archive.PutBlock(ctx, key, data)
}

// ArchivedBlock fetches a block from the archive by hash. Returns nil when
// the node runs without an archive or the hash is unknown.
func (l *Ledger) ArchivedBlock(ctx context.Context, hash string) (*models.Block, error) {
	if l.archive == nil {
		return nil, nil
	}
	key, err := multihash.NewBlockKey(hash)
	if err != nil {
		return nil, err
	}
	data, err := l.archive.GetBlock(ctx, key)
	if err != nil || data == nil {
		return nil, err
	}
	var b models.Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode archived block: %w", err)
	}
	return &b, nil
}

func blockMeta(b *models.Block) *metadata.BlockMeta {
	kind := metadata.KindPow
	if b.IsProofOfStake() {
		kind = metadata.KindPos
	}

	hashes := make([]string, len(b.Transactions))
	for i := range b.Transactions {
		hashes[i] = b.Transactions[i].Hash()
	}
	root, err := merkle.Root(hashes)
	if err != nil {
		root = ""
	}

	return &metadata.BlockMeta{
		Height:     b.Index,
		Hash:       b.Hash,
		PrevHash:   b.PreviousHash,
		Kind:       kind,
		Producer:   b.Producer(),
		Timestamp:  b.Timestamp,
		TxCount:    len(b.Transactions),
		MerkleRoot: root,
	}
}
