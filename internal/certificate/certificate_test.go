package certificate_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemom/aip-core/internal/certificate"
	"github.com/mnemom/aip-core/internal/merkle"
	"github.com/mnemom/aip-core/internal/model"
)

type fixedClock struct{ at string }

func (f fixedClock) NowISO8601Milli() string { return f.at }

type fixedIDs struct{ id string }

func (f fixedIDs) GenerateCertificateID() (string, error) { return f.id, nil }

func genKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func fixtureInputs() model.CheckpointInputs {
	return model.CheckpointInputs{
		Card: model.Card{
			CardID: "card-offline-001",
			Values: []map[string]any{{"name": "no_harm", "weight": 1.0}},
		},
		ConscienceValues:      []map[string]any{{"name": "honesty", "score": 0.9}},
		ModelVersion:          "claude-3-opus-20240229",
		PromptTemplateVersion: "2.1.0",
	}
}

func fixtureBuildInput(secret ed25519.PrivateKey, keyID string) certificate.BuildInput {
	return certificate.BuildInput{
		Subject: certificate.Subject{
			CheckpointID: "ic-offline-001",
			AgentID:      "agent-offline-001",
			CardID:       "card-offline-001",
		},
		Inputs:            fixtureInputs(),
		Verdict:           "clear",
		Confidence:        0.97,
		ThinkingBlockHash: "abcd0000000000000000000000000000000000000000000000000000000000ab",
		Secret:            secret,
		KeyID:             keyID,
	}
}

func TestBuild_ProducesVerifiableCertificate(t *testing.T) {
	pub, priv := genKey(t)
	cert, err := certificate.Build(fixtureBuildInput(priv, "key-deadbeef"), fixedClock{at: "2025-01-15T10:00:00.000Z"}, fixedIDs{id: "cert-aaaaaaaa"})
	require.NoError(t, err)

	assert.Equal(t, "cert-aaaaaaaa", cert.CertificateID)
	assert.Equal(t, "2025-01-15T10:00:00.000Z", cert.IssuedAt)
	assert.Equal(t, "IntegrityCertificate", cert.Type)
	assert.Nil(t, cert.Proofs.Chain.PrevChainHash)
	assert.Nil(t, cert.Proofs.Merkle)
	assert.Nil(t, cert.Proofs.VerdictDerivation)

	outcome := certificate.Verify(cert, pub)
	assert.True(t, outcome.Valid())
	assert.True(t, outcome.SignatureOK)
	assert.True(t, outcome.ChainOK)
	assert.True(t, outcome.MerkleOK) // no merkle proof present: trivially true
	assert.True(t, outcome.CommitmentWellFormed)
	assert.True(t, outcome.VerdictDerivationOK)
}

func TestBuild_Deterministic(t *testing.T) {
	_, priv := genKey(t)
	in := fixtureBuildInput(priv, "key-deadbeef")
	c1, err := certificate.Build(in, fixedClock{at: "2025-01-15T10:00:00.000Z"}, fixedIDs{id: "cert-aaaaaaaa"})
	require.NoError(t, err)
	c2, err := certificate.Build(in, fixedClock{at: "2025-01-15T10:00:00.000Z"}, fixedIDs{id: "cert-aaaaaaaa"})
	require.NoError(t, err)
	assert.Equal(t, c1.InputCommitments.CombinedCommitment, c2.InputCommitments.CombinedCommitment)
	assert.Equal(t, c1.Proofs.Chain.ChainHash, c2.Proofs.Chain.ChainHash)
	assert.Equal(t, c1.Proofs.Signature.Value, c2.Proofs.Signature.Value)
}

func TestVerify_TamperedVerdictFailsChain(t *testing.T) {
	pub, priv := genKey(t)
	cert, err := certificate.Build(fixtureBuildInput(priv, "key-deadbeef"), fixedClock{at: "2025-01-15T10:00:00.000Z"}, fixedIDs{id: "cert-aaaaaaaa"})
	require.NoError(t, err)

	cert.Claims.Verdict = "concerning"

	outcome := certificate.Verify(cert, pub)
	assert.False(t, outcome.Valid())
	assert.False(t, outcome.ChainOK)
}

func TestVerify_WrongPublicKeyFailsSignature(t *testing.T) {
	_, priv := genKey(t)
	otherPub, _ := genKey(t)
	cert, err := certificate.Build(fixtureBuildInput(priv, "key-deadbeef"), fixedClock{at: "2025-01-15T10:00:00.000Z"}, fixedIDs{id: "cert-aaaaaaaa"})
	require.NoError(t, err)

	outcome := certificate.Verify(cert, otherPub)
	assert.False(t, outcome.SignatureOK)
	assert.False(t, outcome.Valid())
}

func TestVerify_MalformedCombinedCommitmentFailsWellFormedCheck(t *testing.T) {
	pub, priv := genKey(t)
	cert, err := certificate.Build(fixtureBuildInput(priv, "key-deadbeef"), fixedClock{at: "2025-01-15T10:00:00.000Z"}, fixedIDs{id: "cert-aaaaaaaa"})
	require.NoError(t, err)

	cert.InputCommitments.CombinedCommitment = "not-hex"
	outcome := certificate.Verify(cert, pub)
	assert.False(t, outcome.CommitmentWellFormed)
	assert.False(t, outcome.Valid())
}

func TestBuild_ChainsAcrossCheckpoints(t *testing.T) {
	_, priv := genKey(t)
	in1 := fixtureBuildInput(priv, "key-deadbeef")
	cert1, err := certificate.Build(in1, fixedClock{at: "2025-01-15T10:00:00.000Z"}, fixedIDs{id: "cert-aaaaaaaa"})
	require.NoError(t, err)

	in2 := fixtureBuildInput(priv, "key-deadbeef")
	in2.Subject.CheckpointID = "ic-offline-002"
	in2.PrevChainHash = &cert1.Proofs.Chain.ChainHash
	in2.Position = 1
	cert2, err := certificate.Build(in2, fixedClock{at: "2025-01-15T10:00:05.000Z"}, fixedIDs{id: "cert-bbbbbbbb"})
	require.NoError(t, err)

	require.NotNil(t, cert2.Proofs.Chain.PrevChainHash)
	assert.Equal(t, cert1.Proofs.Chain.ChainHash, *cert2.Proofs.Chain.PrevChainHash)
	assert.Equal(t, 1, cert2.Proofs.Chain.Position)
}

func TestBuild_WithMerkleProof_RoundTrips(t *testing.T) {
	pub, priv := genKey(t)
	in := fixtureBuildInput(priv, "key-deadbeef")

	// Build without merkle first to learn this checkpoint's leaf hash, the
	// way an Issuer does: the leaf covers the chain hash Build produces.
	dry, err := certificate.Build(in, fixedClock{at: "2025-01-15T10:00:00.000Z"}, fixedIDs{id: "cert-aaaaaaaa"})
	require.NoError(t, err)
	leafHash, err := merkle.ComputeLeafHash(certificate.LeafFor(dry))
	require.NoError(t, err)

	leaves := []string{leafHash, mustLeafHash(t, "other-1"), mustLeafHash(t, "other-2")}

	in.Merkle = &certificate.MerkleInput{LeafHashes: leaves, LeafIndex: 0}
	cert, err := certificate.Build(in, fixedClock{at: "2025-01-15T10:00:00.000Z"}, fixedIDs{id: "cert-aaaaaaaa"})
	require.NoError(t, err)

	require.NotNil(t, cert.Proofs.Merkle)
	assert.Equal(t, leafHash, cert.Proofs.Merkle.LeafHash)

	outcome := certificate.Verify(cert, pub)
	assert.True(t, outcome.MerkleOK)
	assert.True(t, outcome.Valid())
}

func TestBuild_MerkleLeafMismatchFails(t *testing.T) {
	_, priv := genKey(t)
	in := fixtureBuildInput(priv, "key-deadbeef")
	in.Merkle = &certificate.MerkleInput{LeafHashes: []string{mustLeafHash(t, "a"), mustLeafHash(t, "b")}, LeafIndex: 0}

	_, err := certificate.Build(in, fixedClock{at: "2025-01-15T10:00:00.000Z"}, fixedIDs{id: "cert-aaaaaaaa"})
	require.Error(t, err)
}

func mustLeafHash(t *testing.T, seed string) string {
	t.Helper()
	h, err := merkle.ComputeLeafHash(merkle.Leaf{CheckpointID: seed})
	require.NoError(t, err)
	return h
}

type mapKeyResolver map[string]ed25519.PublicKey

func (m mapKeyResolver) PublicKeyFor(_ context.Context, keyID string) (ed25519.PublicKey, error) {
	pub, ok := m[keyID]
	if !ok {
		return nil, assert.AnError
	}
	return pub, nil
}

func TestVerifyMany_MixedValidityInOrder(t *testing.T) {
	pubA, privA := genKey(t)
	pubB, _ := genKey(t)

	certA, err := certificate.Build(fixtureBuildInput(privA, "key-a"), fixedClock{at: "2025-01-15T10:00:00.000Z"}, fixedIDs{id: "cert-aaaaaaaa"})
	require.NoError(t, err)

	certBad := certA
	certBad.Proofs.Signature.KeyID = "key-unknown"

	resolver := mapKeyResolver{"key-a": pubA, "key-b": pubB}
	outcomes, err := certificate.VerifyMany(context.Background(), []certificate.IntegrityCertificate{certA, certBad}, resolver)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Valid())
	assert.False(t, outcomes[1].Valid())
}
