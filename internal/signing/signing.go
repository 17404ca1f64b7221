// Package signing builds the canonical signed-payload string for a
// checkpoint and produces/verifies the Ed25519 signature over it.
package signing

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/mnemom/aip-core/internal/aiperr"
	"github.com/mnemom/aip-core/internal/canonical"
)

// PayloadFields holds exactly the seven fields the signed payload is built
// from. Field order here is irrelevant — BuildPayload canonicalizes by key,
// not by struct declaration order.
type PayloadFields struct {
	AgentID           string `json:"agent_id"`
	ChainHash         string `json:"chain_hash"`
	CheckpointID      string `json:"checkpoint_id"`
	InputCommitment   string `json:"input_commitment"`
	ThinkingBlockHash string `json:"thinking_block_hash"`
	Timestamp         string `json:"timestamp"`
	Verdict           string `json:"verdict"`
}

// BuildPayload canonicalizes the seven required fields into the exact
// string that is signed. Downstream
// code MUST sign/verify this string itself, never a re-parse of it.
func BuildPayload(f PayloadFields) (string, error) {
	b, err := canonical.Marshal(f)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Sign produces an Ed25519 signature over the UTF-8 bytes of payload,
// base64-encoded (standard alphabet, padded).
// Ed25519 signing is deterministic, so signing the same payload with the
// same key twice yields byte-identical signatures.
func Sign(payload string, secret ed25519.PrivateKey) string {
	sig := ed25519.Sign(secret, []byte(payload))
	return base64.StdEncoding.EncodeToString(sig)
}

// Verify checks an Ed25519 signature against a payload and public key. It
// is total: malformed base64, a public key of the wrong length, or a signature that
// simply does not verify all return false, never an error.
func Verify(sigB64, payload string, public ed25519.PublicKey) bool {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false
	}
	if len(sig) != ed25519.SignatureSize || len(public) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(public, []byte(payload), sig)
}

// LoadSigningKeyFromHex decodes a 64-hex-character Ed25519 seed into the
// 32 raw bytes used to derive a signing key.
func LoadSigningKeyFromHex(seedHex string) ([]byte, error) {
	b, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, aiperr.Encoding("signing: load signing key from hex", err)
	}
	if len(b) != ed25519.SeedSize {
		return nil, aiperr.Encoding("signing: load signing key from hex",
			fmt.Errorf("expected %d-byte seed, got %d", ed25519.SeedSize, len(b)))
	}
	return b, nil
}

// KeyFromSeed expands a 32-byte seed into a full ed25519.PrivateKey.
func KeyFromSeed(seed []byte) (ed25519.PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, aiperr.Structural("signing: key from seed",
			fmt.Errorf("expected %d-byte seed, got %d", ed25519.SeedSize, len(seed)))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// GetPublicKeyFromSecret derives the 32-byte public key from a secret key
// (either a raw seed or an expanded ed25519.PrivateKey).
func GetPublicKeyFromSecret(secret ed25519.PrivateKey) (ed25519.PublicKey, error) {
	switch len(secret) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(secret).Public().(ed25519.PublicKey), nil
	case ed25519.PrivateKeySize:
		return secret.Public().(ed25519.PublicKey), nil
	default:
		return nil, aiperr.Structural("signing: get public key from secret",
			fmt.Errorf("secret key has unexpected length %d", len(secret)))
	}
}

// EncodeHex and DecodeHex round-trip byte buffers, including the empty
// buffer and buffers at or beyond 64 bytes.
func EncodeHex(b []byte) string { return hex.EncodeToString(b) }

// DecodeHex decodes a hex string, failing with an EncodingError (not a
// bare error) on malformed input, consistent with every other constructive
// operation in this package.
func DecodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, aiperr.Encoding("signing: decode hex", err)
	}
	return b, nil
}

// EncodeBase64 and DecodeBase64 round-trip byte buffers using standard,
// padded base64 — the encoding used for Signature fields.
func EncodeBase64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// DecodeBase64 decodes a base64 string, failing with an EncodingError on
// malformed input.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, aiperr.Encoding("signing: decode base64", err)
	}
	return b, nil
}

// KeyIDFromPublic derives a key_id: "key-" followed by the first 8 hex
// characters of the public key.
func KeyIDFromPublic(public ed25519.PublicKey) string {
	return "key-" + hex.EncodeToString(public)[:8]
}
