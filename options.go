package aip

import "log/slog"

// Option configures an Issuer.
type Option func(*resolvedOptions)

// resolvedOptions holds every extension point after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	clock       Clock
	ids         IDGenerator
	keys        KeyStore
	chains      ChainStore
	leaves      LeafStore
	logger      *slog.Logger
	signingSeed ed25519Seed
}

// ed25519Seed avoids importing crypto/ed25519 into this file's public
// surface just for a private field type; New does the conversion.
type ed25519Seed = []byte

// WithClock overrides the default wall-clock Clock. Tests typically supply
// a fixed clock here rather than asserting on a moving timestamp.
func WithClock(c Clock) Option {
	return func(o *resolvedOptions) { o.clock = c }
}

// WithIDGenerator overrides the default crypto/rand-backed certificate id
// generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *resolvedOptions) { o.ids = g }
}

// WithKeyStore overrides key resolution entirely. Mutually exclusive in
// effect with WithSigningKeySeed — if both are given, the KeyStore wins.
func WithKeyStore(ks KeyStore) Option {
	return func(o *resolvedOptions) { o.keys = ks }
}

// WithSigningKeySeed configures a single static signing key from a 32-byte
// Ed25519 seed, deriving its key_id from the public key. This
// is the common case for a single-process issuer; a deployment that rotates
// keys should implement KeyStore and use WithKeyStore instead.
func WithSigningKeySeed(seed []byte) Option {
	return func(o *resolvedOptions) { o.signingSeed = seed }
}

// WithChainStore overrides the default in-memory per-session chain-hash
// tracker. Supply a persistent implementation for anything beyond a single
// process's lifetime.
func WithChainStore(cs ChainStore) Option {
	return func(o *resolvedOptions) { o.chains = cs }
}

// WithLeafStore overrides the default in-memory Merkle leaf accumulator.
func WithLeafStore(ls LeafStore) Option {
	return func(o *resolvedOptions) { o.leaves = ls }
}

// WithLogger sets the structured logger for the Issuer. If not set, the
// default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}
