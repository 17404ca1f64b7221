package aip

import (
	"github.com/mnemom/aip-core/internal/certificate"
	"github.com/mnemom/aip-core/internal/model"
)

// Certificate is the offline-verifiable envelope produced by IssueCheckpoint
// and consumed by Verify. Aliased from internal/certificate so callers never
// import an internal package directly, per the no-cycle convention: aip
// (root) imports internal/*, never the reverse.
type Certificate = certificate.IntegrityCertificate

// Subject identifies who/what a certificate is about.
type Subject = certificate.Subject

// Concern is a single flagged issue within a checkpoint's verdict.
type Concern = certificate.Concern

// Claims holds the verdict and the evidence behind it.
type Claims = certificate.Claims

// InputCommitments is a certificate's input_commitments block.
type InputCommitments = certificate.InputCommitments

// Proofs bundles a certificate's signature, chain, and Merkle evidence.
type Proofs = certificate.Proofs

// SignatureProof is proofs.signature.
type SignatureProof = certificate.SignatureProof

// ChainProof is proofs.chain.
type ChainProof = certificate.ChainProof

// MerkleProof is proofs.merkle.
type MerkleProof = certificate.MerkleProof

// Verification holds offline-verification helper endpoints.
type Verification = certificate.Verification

// VerificationOutcome reports the five independent checks of the offline
// verification algorithm.
type VerificationOutcome = certificate.Outcome

// Card is the policy/value card a checkpoint was evaluated against.
type Card = model.Card

// CheckpointInputs is the full set of inputs a checkpoint's input
// commitment is computed over.
type CheckpointInputs = model.CheckpointInputs
