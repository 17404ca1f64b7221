// Package sqlite is an embeddable, single-file ChainStore and LeafStore
// backed by modernc.org/sqlite — a pure-Go driver with no cgo requirement,
// for single-process or offline issuance where a Postgres server isn't
// available. Schema and query shape follow internal/store/postgres, scaled
// down to SQLite's simpler type affinities.
package sqlite

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/mnemom/aip-core/internal/aiperr"
)

const schema = `
CREATE TABLE IF NOT EXISTS aip_chain_tails (
	session_id   TEXT PRIMARY KEY,
	chain_hash   TEXT NOT NULL,
	position     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS aip_leaves (
	epoch_id   INTEGER NOT NULL DEFAULT 0,
	leaf_index INTEGER NOT NULL,
	leaf_hash  TEXT NOT NULL,
	PRIMARY KEY (epoch_id, leaf_index)
);
`

// Store is a ChainStore and LeafStore backed by a SQLite database file (or
// ":memory:" for an ephemeral, process-local database).
type Store struct {
	db      *sql.DB
	epochID int64
}

// Open opens (creating if necessary) a SQLite database at path and applies
// the schema. Callers own the returned Store and must call Close.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, aiperr.Structural("sqlite: open", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, aiperr.Structural("sqlite: apply schema", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Tail implements the ChainStore collaborator interface.
func (s *Store) Tail(ctx context.Context, sessionID string) (*string, int, error) {
	var hash string
	var position int
	err := s.db.QueryRowContext(ctx,
		`SELECT chain_hash, position FROM aip_chain_tails WHERE session_id = ?`, sessionID,
	).Scan(&hash, &position)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, aiperr.Structural("sqlite: tail", err)
	}
	return &hash, position + 1, nil
}

// AppendChainHash implements the ChainStore collaborator interface.
func (s *Store) AppendChainHash(ctx context.Context, sessionID string, chainHash string) error {
	_, currentPos, err := s.Tail(ctx, sessionID)
	if err != nil {
		return err
	}
	position := 0
	if currentPos > 0 {
		position = currentPos
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO aip_chain_tails (session_id, chain_hash, position)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET chain_hash = excluded.chain_hash, position = excluded.position
	`, sessionID, chainHash, position)
	if err != nil {
		return aiperr.Structural("sqlite: append chain hash", err)
	}
	return nil
}

// AppendLeaf implements the LeafStore collaborator interface, appending to
// the store's single open epoch.
func (s *Store) AppendLeaf(ctx context.Context, leafHash string) (int, []string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, aiperr.Structural("sqlite: append leaf", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM aip_leaves WHERE epoch_id = ?`, s.epochID,
	).Scan(&count); err != nil {
		return 0, nil, aiperr.Structural("sqlite: append leaf: count", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO aip_leaves (epoch_id, leaf_index, leaf_hash) VALUES (?, ?, ?)`,
		s.epochID, count, leafHash,
	); err != nil {
		return 0, nil, aiperr.Structural("sqlite: append leaf: insert", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT leaf_hash FROM aip_leaves WHERE epoch_id = ? ORDER BY leaf_index ASC`, s.epochID)
	if err != nil {
		return 0, nil, aiperr.Structural("sqlite: append leaf: select", err)
	}
	defer rows.Close()

	var leaves []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return 0, nil, aiperr.Structural("sqlite: append leaf: scan", err)
		}
		leaves = append(leaves, h)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, aiperr.Structural("sqlite: append leaf: rows", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, aiperr.Structural("sqlite: append leaf: commit", err)
	}
	return count, leaves, nil
}

// CloseEpoch advances to a fresh, empty leaf sequence and reports the
// epoch id that was just closed, so a caller can compute and persist its
// final Merkle root before moving on.
func (s *Store) CloseEpoch() int64 {
	closed := s.epochID
	s.epochID++
	return closed
}

// Leaves returns every leaf hash recorded for a given (closed or open)
// epoch id, in order.
func (s *Store) Leaves(ctx context.Context, epochID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT leaf_hash FROM aip_leaves WHERE epoch_id = ? ORDER BY leaf_index ASC`, epochID)
	if err != nil {
		return nil, aiperr.Structural("sqlite: leaves", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, aiperr.Structural("sqlite: leaves: scan", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
