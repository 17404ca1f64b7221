package aip

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/mnemom/aip-core/internal/aiperr"
	memorystore "github.com/mnemom/aip-core/internal/store/memory"
)

// SystemClock stamps timestamps from the wall clock, UTC, millisecond
// precision, ISO-8601 formatted.
type SystemClock struct{}

// NowISO8601Milli implements Clock.
func (SystemClock) NowISO8601Milli() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// CryptoIDGenerator mints certificate_id values as "cert-" followed by 8
// lowercase alphanumeric characters drawn from crypto/rand.
type CryptoIDGenerator struct{}

// GenerateCertificateID implements IDGenerator.
func (CryptoIDGenerator) GenerateCertificateID() (string, error) {
	suffix, err := randomAlnum(8)
	if err != nil {
		return "", aiperr.Structural("aip: generate certificate id", err)
	}
	return "cert-" + suffix, nil
}

func randomAlnum(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(out), nil
}

// newMemoryChainStore and newMemoryLeafStore wire the zero-config
// collaborators straight from internal/store/memory — fine for a single
// process; a multi-instance deployment should supply a persistent
// ChainStore/LeafStore instead (internal/store/postgres, internal/store/sqlite).
func newMemoryChainStore() *memorystore.ChainStore { return memorystore.NewChainStore() }

func newMemoryLeafStore() *memorystore.LeafStore { return memorystore.NewLeafStore() }

// staticKeyStore is the KeyStore used when a caller supplies a single
// signing key via WithSigningKeySeed rather than a full KeyStore implementation.
type staticKeyStore struct {
	secret ed25519.PrivateKey
	keyID  string
	public ed25519.PublicKey
}

func (s *staticKeyStore) SigningKey(_ context.Context) (ed25519.PrivateKey, string, error) {
	return s.secret, s.keyID, nil
}

func (s *staticKeyStore) PublicKeyFor(_ context.Context, keyID string) (ed25519.PublicKey, error) {
	if keyID != s.keyID {
		return nil, aiperr.Structural("aip: public key for", fmt.Errorf("unknown key_id %q", keyID))
	}
	return s.public, nil
}
