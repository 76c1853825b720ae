package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jeroenvanwissen/blockchain-go/metadata"
)

// Store is a SQLite-backed implementation of metadata.Store.
type Store struct {
	db *sql.DB
}

// Config holds configuration for SQLite.
type Config struct {
	DBPath string // Path to SQLite database file
}

// New creates a new SQLite-backed metadata store.
func New(config *Config) (*Store, error) {
	if config.DBPath == "" {
		return nil, fmt.Errorf("DBPath is required")
	}

	db, err := sql.Open("sqlite3", config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	store := &Store{db: db}

	// Initialize schema
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the necessary tables
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS blocks (
		height       INTEGER PRIMARY KEY,
		hash         TEXT NOT NULL,
		prev_hash    TEXT NOT NULL,
		kind         TEXT NOT NULL,
		producer     TEXT NOT NULL DEFAULT '',
		timestamp    INTEGER NOT NULL,
		tx_count     INTEGER NOT NULL,
		merkle_root  TEXT NOT NULL DEFAULT '',
		created_at   INTEGER DEFAULT (strftime('%s', 'now'))
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_blocks_hash ON blocks(hash);
	CREATE INDEX IF NOT EXISTS idx_blocks_producer ON blocks(producer);
	`

	_, err := s.db.Exec(schema)
	return err
}

// PutBlock stores block metadata. A chain replacement re-inserts rows at
// already-used heights, so writes replace.
func (s *Store) PutBlock(ctx context.Context, meta *metadata.BlockMeta) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO blocks (height, hash, prev_hash, kind, producer, timestamp, tx_count, merkle_root)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.Height, meta.Hash, meta.PrevHash, string(meta.Kind), meta.Producer, meta.Timestamp, meta.TxCount, meta.MerkleRoot,
	)
	if err != nil {
		return fmt.Errorf("failed to insert block: %w", err)
	}
	return nil
}

func (s *Store) scanBlock(row *sql.Row) (*metadata.BlockMeta, error) {
	var meta metadata.BlockMeta
	var kind string

	err := row.Scan(&meta.Height, &meta.Hash, &meta.PrevHash, &kind, &meta.Producer, &meta.Timestamp, &meta.TxCount, &meta.MerkleRoot)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query block: %w", err)
	}

	meta.Kind = metadata.BlockKind(kind)
	return &meta, nil
}

// GetByHeight retrieves block metadata by height.
func (s *Store) GetByHeight(ctx context.Context, height uint32) (*metadata.BlockMeta, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT height, hash, prev_hash, kind, producer, timestamp, tx_count, merkle_root
		 FROM blocks WHERE height = ?`,
		height,
	)
	return s.scanBlock(row)
}

// GetByHash retrieves block metadata by block hash.
func (s *Store) GetByHash(ctx context.Context, hash string) (*metadata.BlockMeta, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT height, hash, prev_hash, kind, producer, timestamp, tx_count, merkle_root
		 FROM blocks WHERE hash = ?`,
		hash,
	)
	return s.scanBlock(row)
}

// GetLatest returns the highest block stored.
func (s *Store) GetLatest(ctx context.Context) (*metadata.BlockMeta, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT height, hash, prev_hash, kind, producer, timestamp, tx_count, merkle_root
		 FROM blocks ORDER BY height DESC LIMIT 1`,
	)
	return s.scanBlock(row)
}

// DeleteFrom removes metadata at and above a height.
func (s *Store) DeleteFrom(ctx context.Context, height uint32) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE height >= ?`, height)
	if err != nil {
		return fmt.Errorf("failed to delete blocks: %w", err)
	}
	return nil
}

// Close releases all database resources.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
