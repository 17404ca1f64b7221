// Package memory is an in-process ChainStore and LeafStore, generalizing
// the mutex-guarded map pattern of the rate limiter's in-memory bucket
// store to per-session chain tails and a single open Merkle tree epoch.
// Method signatures match the root package's ChainStore/LeafStore
// collaborator interfaces exactly, so values here plug directly into
// aip.WithChainStore / aip.WithLeafStore. Suitable for tests, examples, and
// single-process offline issuance; a multi-instance deployment should use
// internal/store/postgres or internal/store/sqlite instead.
package memory

import (
	"context"
	"sync"
)

type chainTail struct {
	hash     string
	position int
}

// ChainStore tracks the most recently issued chain_hash and the next
// position per session.
type ChainStore struct {
	mu   sync.Mutex
	last map[string]chainTail
}

// NewChainStore constructs an empty ChainStore.
func NewChainStore() *ChainStore {
	return &ChainStore{last: make(map[string]chainTail)}
}

// Tail returns the previous chain_hash (nil if the session has never been
// seen) and the position the next checkpoint will occupy.
func (c *ChainStore) Tail(_ context.Context, sessionID string) (*string, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.last[sessionID]
	if !ok {
		return nil, 0, nil
	}
	hash := t.hash
	return &hash, t.position + 1, nil
}

// AppendChainHash records chainHash as the new tail for sessionID.
func (c *ChainStore) AppendChainHash(_ context.Context, sessionID string, chainHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	position := 0
	if t, ok := c.last[sessionID]; ok {
		position = t.position + 1
	}
	c.last[sessionID] = chainTail{hash: chainHash, position: position}
	return nil
}

// SessionCount reports how many distinct sessions have recorded a
// checkpoint, for diagnostics and tests.
func (c *ChainStore) SessionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}

// LeafStore accumulates Merkle leaf hashes for a single open tree epoch.
// Call CloseEpoch to start a fresh, empty sequence — the store itself
// never closes an epoch on its own.
type LeafStore struct {
	mu     sync.Mutex
	leaves []string
}

// NewLeafStore constructs an empty LeafStore.
func NewLeafStore() *LeafStore {
	return &LeafStore{}
}

// AppendLeaf appends leafHash and returns its index plus a snapshot of
// every leaf hash recorded so far, in order.
func (l *LeafStore) AppendLeaf(_ context.Context, leafHash string) (int, []string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.leaves = append(l.leaves, leafHash)
	out := make([]string, len(l.leaves))
	copy(out, l.leaves)
	return len(out) - 1, out, nil
}

// Leaves returns a snapshot of every leaf hash recorded in the current
// epoch, in order.
func (l *LeafStore) Leaves() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.leaves))
	copy(out, l.leaves)
	return out
}

// CloseEpoch clears the accumulated leaves, starting a fresh tree epoch,
// and returns the leaves that were just closed out.
func (l *LeafStore) CloseEpoch() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	closed := l.leaves
	l.leaves = nil
	return closed
}
