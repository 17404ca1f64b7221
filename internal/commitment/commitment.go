// Package commitment computes input-commitment hashes: binding a verdict
// to the exact policy inputs (card, conscience values, window context,
// model, prompt template) it was produced from.
package commitment

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/mnemom/aip-core/internal/canonical"
	"github.com/mnemom/aip-core/internal/model"
)

// Compute hashes the canonical JSON encoding of an arbitrary value and
// returns the 64-hex SHA-256 digest. It is the primitive every commitment
// in this package (and the per-field commitments in the certificate
// envelope) is built from.
func Compute(v any) (string, error) {
	b, err := canonical.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// ComputeInputCommitment canonicalizes inputs, SHA-256s the bytes, and
// hex-encodes the result. This is the "combined_commitment" of the
// certificate envelope.
func ComputeInputCommitment(inputs model.CheckpointInputs) (string, error) {
	return Compute(inputs.Canonical())
}

// ComputeCardHash hashes only the card object, for envelope
// input_commitments.card_hash.
func ComputeCardHash(card model.Card) (string, error) {
	return Compute(card.CanonicalCard())
}

// ComputeValuesHash hashes only the conscience values sequence, for
// envelope input_commitments.values_hash.
func ComputeValuesHash(values []map[string]any) (string, error) {
	return Compute(valuesAsAny(values))
}

// ComputeContextHash hashes only the window context sequence, for envelope
// input_commitments.context_hash.
func ComputeContextHash(windowContext []map[string]any) (string, error) {
	return Compute(valuesAsAny(windowContext))
}

func valuesAsAny(values []map[string]any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
