package aip

import (
	"context"
	"crypto/ed25519"
)

// Clock supplies the issued_at timestamp stamped onto every certificate and
// chain link. Swappable so tests can fix time instead of sleeping or
// tolerating skew.
type Clock interface {
	NowISO8601Milli() string
}

// IDGenerator mints certificate_id values. The default implementation draws
// from crypto/rand; a deployment wanting sequential or UUID-based ids can
// supply its own via WithIDGenerator.
type IDGenerator interface {
	GenerateCertificateID() (string, error)
}

// KeyStore resolves the signing key an Issuer uses, and the public key a
// Verifier checks a signature against, by key_id. Multiple key_ids let a
// deployment rotate keys without invalidating certificates already issued
// under an earlier key.
type KeyStore interface {
	SigningKey(ctx context.Context) (secret ed25519.PrivateKey, keyID string, err error)
	PublicKeyFor(ctx context.Context, keyID string) (ed25519.PublicKey, error)
}

// ChainStore tracks the most recently issued chain_hash and checkpoint
// count for each session, so IssueCheckpoint can thread prev_chain_hash and
// position through a session's checkpoints without the caller having to
// carry that state itself.
type ChainStore interface {
	// Tail returns the previous chain_hash (nil for a session with no prior
	// checkpoints) and the position the next checkpoint will occupy.
	Tail(ctx context.Context, sessionID string) (prevChainHash *string, nextPosition int, err error)
	AppendChainHash(ctx context.Context, sessionID string, chainHash string) error
}

// LeafStore accumulates Merkle leaf hashes for a tree epoch and reports each
// new leaf's index within the current, still-open tree. Implementations
// decide when a tree epoch closes (size, time, or both); IssueCheckpoint
// only needs the leaf's position in whatever sequence is currently open.
type LeafStore interface {
	AppendLeaf(ctx context.Context, leafHash string) (index int, allLeaves []string, err error)
}
