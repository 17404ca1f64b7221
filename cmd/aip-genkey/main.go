// aip-genkey generates an Ed25519 signing key for the attestation core.
//
// Usage (run from the repo root):
//
//	go run ./cmd/aip-genkey
//
// Writes:
//
//	data/aip_signing_key.hex   (mode 0600 — keep this secret; the 32-byte
//	                            seed, hex-encoded, as LoadSigningKeyFromHex
//	                            expects it)
//
// and prints the derived public key and key_id to stdout so they can be
// published alongside issued certificates.
//
// aip.New refuses to build an Issuer without a signing key source, and
// cmd/aip-mcp-server reads this file at startup unless AIP_MASTER_SECRET is
// set. Persist a key with this tool before first launch.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mnemom/aip-core/internal/signing"
)

func main() {
	dir := "data"
	path := filepath.Join(dir, "aip_signing_key.hex")

	if err := os.MkdirAll(dir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot create %s: %v\n", dir, err)
		os.Exit(1)
	}

	// Refuse to overwrite an existing key — prevents accidental invalidation
	// of every certificate already issued under it.
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "error: %s already exists — delete it first if you want to rotate keys\n", path)
		os.Exit(1)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: generate key: %v\n", err)
		os.Exit(1)
	}

	seedHex := signing.EncodeHex(priv.Seed())
	// #nosec G304 — path is a hardcoded dir + fixed filename, not user input.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: create %s: %v\n", path, err)
		os.Exit(1)
	}
	if _, err := fmt.Fprintln(f, seedHex); err != nil {
		_ = f.Close()
		fmt.Fprintf(os.Stderr, "error: write %s: %v\n", path, err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "error: close %s: %v\n", path, err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s\n", path)
	fmt.Printf("public key (hex): %s\n", signing.EncodeHex(pub))
	fmt.Printf("key_id: %s\n", signing.KeyIDFromPublic(pub))
	fmt.Println("publish the public key and key_id; keep the seed file secret.")
}
