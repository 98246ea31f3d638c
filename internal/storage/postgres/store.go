package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mintWatch/internal/model"
)

// Store provides Postgres persistence for the watcher cursor and mint journal.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// PutMintBatch journals mints. Rows already present are left untouched.
func (s *Store) PutMintBatch(ctx context.Context, records []model.MintRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		detectedAt, err := time.Parse(time.RFC3339Nano, r.DetectedAt)
		if err != nil {
			detectedAt = time.Now().UTC()
		}
		batch.Queue(`
			INSERT INTO mints (
				chain_id, contract, block_number, log_index, tx_hash, token_id, owner, detected_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (contract, block_number, log_index) DO NOTHING
		`,
			int64(r.ChainID),
			r.Contract,
			int64(r.BlockNumber),
			int32(r.LogIndex),
			r.TxHash,
			r.TokenID,
			r.Owner,
			detectedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert mint: %w", err)
		}
	}
	return nil
}

// RecentMintKeys returns the keys of the newest limit mints journaled for contract, oldest first.
func (s *Store) RecentMintKeys(ctx context.Context, contract string, limit int) ([]model.EventKey, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT block_number, log_index FROM (
			SELECT block_number, log_index FROM mints
			WHERE contract = $1
			ORDER BY block_number DESC, log_index DESC
			LIMIT $2
		) recent
		ORDER BY block_number, log_index
	`, contract, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]model.EventKey, 0, limit)
	for rows.Next() {
		var block int64
		var index int32
		if err := rows.Scan(&block, &index); err != nil {
			return nil, err
		}
		keys = append(keys, model.EventKey{BlockNumber: uint64(block), LogIndex: uint32(index)})
	}
	return keys, rows.Err()
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM watcher_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO watcher_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}
