// Package postgres is a ChainStore and LeafStore backed by Postgres via
// pgx/v5, structured like a batch-oriented integrity-proof store but
// scoped down to the core's per-checkpoint chain tail and per-epoch leaf
// sequence.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mnemom/aip-core/internal/aiperr"
)

const schema = `
CREATE TABLE IF NOT EXISTS aip_chain_tails (
	session_id TEXT PRIMARY KEY,
	chain_hash TEXT NOT NULL,
	position   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS aip_leaves (
	epoch_id   BIGINT NOT NULL DEFAULT 0,
	leaf_index INTEGER NOT NULL,
	leaf_hash  TEXT NOT NULL,
	PRIMARY KEY (epoch_id, leaf_index)
);
`

// Store is a ChainStore and LeafStore backed by a Postgres connection pool.
type Store struct {
	pool    *pgxpool.Pool
	epochID int64
}

// Open connects to Postgres at connString and ensures the schema exists.
func Open(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() { s.pool.Close() }

// Tail implements the ChainStore collaborator interface.
func (s *Store) Tail(ctx context.Context, sessionID string) (*string, int, error) {
	var hash string
	var position int
	err := s.pool.QueryRow(ctx,
		`SELECT chain_hash, position FROM aip_chain_tails WHERE session_id = $1`, sessionID,
	).Scan(&hash, &position)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, aiperr.Structural("postgres: tail", fmt.Errorf("query chain tail: %w", err))
	}
	return &hash, position + 1, nil
}

// AppendChainHash implements the ChainStore collaborator interface.
func (s *Store) AppendChainHash(ctx context.Context, sessionID string, chainHash string) error {
	_, nextPos, err := s.Tail(ctx, sessionID)
	if err != nil {
		return err
	}
	position := 0
	if nextPos > 0 {
		position = nextPos
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO aip_chain_tails (session_id, chain_hash, position)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET chain_hash = excluded.chain_hash, position = excluded.position
	`, sessionID, chainHash, position)
	if err != nil {
		return aiperr.Structural("postgres: append chain hash", fmt.Errorf("upsert chain tail: %w", err))
	}
	return nil
}

// AppendLeaf implements the LeafStore collaborator interface, appending to
// the store's single open epoch.
func (s *Store) AppendLeaf(ctx context.Context, leafHash string) (int, []string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, nil, aiperr.Structural("postgres: append leaf", fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM aip_leaves WHERE epoch_id = $1`, s.epochID,
	).Scan(&count); err != nil {
		return 0, nil, aiperr.Structural("postgres: append leaf", fmt.Errorf("count: %w", err))
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO aip_leaves (epoch_id, leaf_index, leaf_hash) VALUES ($1, $2, $3)`,
		s.epochID, count, leafHash,
	); err != nil {
		return 0, nil, aiperr.Structural("postgres: append leaf", fmt.Errorf("insert: %w", err))
	}

	rows, err := tx.Query(ctx,
		`SELECT leaf_hash FROM aip_leaves WHERE epoch_id = $1 ORDER BY leaf_index ASC`, s.epochID)
	if err != nil {
		return 0, nil, aiperr.Structural("postgres: append leaf", fmt.Errorf("select: %w", err))
	}
	leaves, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, nil, aiperr.Structural("postgres: append leaf", fmt.Errorf("scan: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, nil, aiperr.Structural("postgres: append leaf", fmt.Errorf("commit: %w", err))
	}
	return count, leaves, nil
}

// CloseEpoch advances to a fresh, empty leaf sequence and returns the epoch
// id that was just closed, so a caller can compute and persist its final
// Merkle root before moving on.
func (s *Store) CloseEpoch() int64 {
	closed := s.epochID
	s.epochID++
	return closed
}

// Leaves returns every leaf hash recorded for a given epoch id, in order.
func (s *Store) Leaves(ctx context.Context, epochID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT leaf_hash FROM aip_leaves WHERE epoch_id = $1 ORDER BY leaf_index ASC`, epochID)
	if err != nil {
		return nil, aiperr.Structural("postgres: leaves", fmt.Errorf("query: %w", err))
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, aiperr.Structural("postgres: leaves", fmt.Errorf("scan: %w", err))
	}
	return out, nil
}
