// Package keyderive derives per-key_id Ed25519 signing seeds from a single
// long-lived master secret via HKDF: one master secret, many independent
// signing keys, none of them persisted on their own.
package keyderive

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/mnemom/aip-core/internal/aiperr"
	"github.com/mnemom/aip-core/internal/signing"
)

const infoPrefix = "aip-core/signing-key/"

// DeriveSeed derives a 32-byte Ed25519 seed from master and label. The same
// (master, label) pair always yields the same seed; different labels from
// the same master yield independent, unrelated seeds.
func DeriveSeed(master []byte, label string) ([]byte, error) {
	if len(master) == 0 {
		return nil, aiperr.Structural("keyderive: derive seed", errEmptyMaster{})
	}
	reader := hkdf.New(sha256.New, master, nil, []byte(infoPrefix+label))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, seed); err != nil {
		return nil, aiperr.Structural("keyderive: derive seed", err)
	}
	return seed, nil
}

// DeriveKey derives a full Ed25519 key pair from master and label, along
// with its derived key_id.
func DeriveKey(master []byte, label string) (ed25519.PrivateKey, ed25519.PublicKey, string, error) {
	seed, err := DeriveSeed(master, label)
	if err != nil {
		return nil, nil, "", err
	}
	secret, err := signing.KeyFromSeed(seed)
	if err != nil {
		return nil, nil, "", err
	}
	public, err := signing.GetPublicKeyFromSecret(secret)
	if err != nil {
		return nil, nil, "", err
	}
	return secret, public, signing.KeyIDFromPublic(public), nil
}

type errEmptyMaster struct{}

func (errEmptyMaster) Error() string { return "keyderive: master secret must not be empty" }

// KeyStore wraps a single HKDF-derived signing key so it can be supplied
// directly to aip.WithKeyStore — the same SigningKey/PublicKeyFor shape the
// root package's KeyStore collaborator expects, satisfied structurally
// without importing it.
type KeyStore struct {
	secret ed25519.PrivateKey
	public ed25519.PublicKey
	keyID  string
}

// NewKeyStore derives a signing key from master and label and wraps it as a
// KeyStore. label distinguishes independent keys drawn from the same master
// secret (e.g. one per deployment or per rotation epoch).
func NewKeyStore(master []byte, label string) (*KeyStore, error) {
	secret, public, keyID, err := DeriveKey(master, label)
	if err != nil {
		return nil, err
	}
	return &KeyStore{secret: secret, public: public, keyID: keyID}, nil
}

// SigningKey returns the derived key and its key_id.
func (k *KeyStore) SigningKey(_ context.Context) (ed25519.PrivateKey, string, error) {
	return k.secret, k.keyID, nil
}

// PublicKeyFor resolves the derived public key for its own key_id only.
func (k *KeyStore) PublicKeyFor(_ context.Context, keyID string) (ed25519.PublicKey, error) {
	if keyID != k.keyID {
		return nil, aiperr.Structural("keyderive: public key for", fmt.Errorf("unknown key_id %q", keyID))
	}
	return k.public, nil
}
