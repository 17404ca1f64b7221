// Package aip is the public API for issuing and verifying integrity
// attestation certificates for AI-agent reasoning checkpoints.
//
// Construct an Issuer and issue checkpoints:
//
//	issuer, err := aip.New(
//	    aip.WithSigningKeySeed(seed),
//	    aip.WithLogger(logger),
//	)
//	if err != nil { ... }
//	cert, err := issuer.IssueCheckpoint(ctx, aip.CheckpointRequest{...})
//
// Verify a certificate received from anywhere, entirely offline:
//
//	outcome := aip.Verify(cert, issuerPublicKey)
//	if !outcome.Valid() { ... }
//
// The import graph enforces a strict no-cycle rule: aip (root) imports
// internal/*, internal/* never imports aip.
package aip

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mnemom/aip-core/internal/certificate"
	"github.com/mnemom/aip-core/internal/merkle"
	"github.com/mnemom/aip-core/internal/signing"
	"github.com/mnemom/aip-core/internal/telemetry"
)

const instrumentationName = "github.com/mnemom/aip-core"

// Issuer issues and tracks integrity certificates for one or more sessions.
// Issuer has no public fields — use New() options to configure it.
type Issuer struct {
	clock   Clock
	ids     IDGenerator
	keys    KeyStore
	chains  ChainStore
	leaves  LeafStore
	logger  *slog.Logger
	metrics telemetry.PipelineMetrics
}

// New constructs an Issuer. At least one of WithKeyStore or
// WithSigningKeySeed must be supplied (the KeyStore wins when both are);
// every other option has a working zero-config default suitable for a
// single process.
func New(opts ...Option) (*Issuer, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	keys := o.keys
	if keys == nil {
		if o.signingSeed == nil {
			return nil, fmt.Errorf("aip: one of WithKeyStore or WithSigningKeySeed is required")
		}
		secret, err := signing.KeyFromSeed(o.signingSeed)
		if err != nil {
			return nil, fmt.Errorf("aip: signing key: %w", err)
		}
		public := secret.Public().(ed25519.PublicKey)
		keyID := signing.KeyIDFromPublic(public)
		keys = &staticKeyStore{secret: secret, keyID: keyID, public: public}
		logger.Info("aip: using static signing key", "key_id", keyID)
	}

	metrics, err := telemetry.NewPipelineMetrics(instrumentationName)
	if err != nil {
		return nil, fmt.Errorf("aip: telemetry: %w", err)
	}

	issuer := &Issuer{
		clock:   o.clock,
		ids:     o.ids,
		keys:    keys,
		chains:  o.chains,
		leaves:  o.leaves,
		logger:  logger,
		metrics: metrics,
	}
	if issuer.clock == nil {
		issuer.clock = SystemClock{}
	}
	if issuer.ids == nil {
		issuer.ids = CryptoIDGenerator{}
	}
	if issuer.chains == nil {
		issuer.chains = newMemoryChainStore()
	}
	if issuer.leaves == nil {
		issuer.leaves = newMemoryLeafStore()
	}

	logger.Info("aip: issuer initialized")
	return issuer, nil
}

// CheckpointRequest is everything IssueCheckpoint needs to attest one
// reasoning checkpoint.
type CheckpointRequest struct {
	SessionKey        string
	Subject           Subject
	Inputs            CheckpointInputs
	Verdict           string
	Concerns          []Concern
	Confidence        float64
	ReasoningSummary  string
	AnalysisModel     string
	AnalysisDuration  int64
	ThinkingBlockHash string
	// IncludeMerkleProof appends this checkpoint's leaf to the Issuer's
	// open tree epoch and attaches the resulting inclusion proof. Leave
	// false for callers that build proofs out of band from stored leaves.
	IncludeMerkleProof bool
	Verification       Verification
}

// IssueCheckpoint runs the end-to-end issuance flow: it
// resolves this session's chain tail, computes commitments, builds and
// signs the certificate, optionally extends the Merkle tree, and persists
// the new chain tail — all through the Issuer's collaborators, so a caller
// never touches internal/* directly.
func (iss *Issuer) IssueCheckpoint(ctx context.Context, req CheckpointRequest) (Certificate, error) {
	ctx, span := telemetry.Tracer(instrumentationName).Start(ctx, "aip.IssueCheckpoint",
		trace.WithAttributes(attribute.String("aip.session_key", req.SessionKey)))
	defer span.End()

	cert, err := iss.issueCheckpoint(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		iss.metrics.IssueFailed.Add(ctx, 1)
		return Certificate{}, err
	}
	iss.metrics.Issued.Add(ctx, 1)
	return cert, nil
}

func (iss *Issuer) issueCheckpoint(ctx context.Context, req CheckpointRequest) (Certificate, error) {
	if req.SessionKey == "" {
		return Certificate{}, fmt.Errorf("aip: issue checkpoint: SessionKey is required")
	}

	prevChainHash, position, err := iss.chains.Tail(ctx, req.SessionKey)
	if err != nil {
		return Certificate{}, fmt.Errorf("aip: issue checkpoint: chain tail: %w", err)
	}

	secret, keyID, err := iss.keys.SigningKey(ctx)
	if err != nil {
		return Certificate{}, fmt.Errorf("aip: issue checkpoint: signing key: %w", err)
	}

	cert, err := certificate.Build(certificate.BuildInput{
		Subject:           req.Subject,
		Inputs:            req.Inputs,
		Verdict:           req.Verdict,
		Concerns:          req.Concerns,
		Confidence:        req.Confidence,
		ReasoningSummary:  req.ReasoningSummary,
		AnalysisModel:     req.AnalysisModel,
		AnalysisDuration:  req.AnalysisDuration,
		ThinkingBlockHash: req.ThinkingBlockHash,
		PrevChainHash:     prevChainHash,
		Position:          position,
		Secret:            secret,
		KeyID:             keyID,
		Verification:      req.Verification,
	}, iss.clock, iss.ids)
	if err != nil {
		return Certificate{}, err
	}

	if req.IncludeMerkleProof {
		leafHash, err := merkle.ComputeLeafHash(certificate.LeafFor(cert))
		if err != nil {
			return Certificate{}, err
		}
		index, allLeaves, err := iss.leaves.AppendLeaf(ctx, leafHash)
		if err != nil {
			return Certificate{}, fmt.Errorf("aip: issue checkpoint: append leaf: %w", err)
		}
		proof, err := merkle.GenerateInclusionProof(allLeaves, index)
		if err != nil {
			return Certificate{}, err
		}
		cert.Proofs.Merkle = &MerkleProof{
			LeafHash:       proof.LeafHash,
			LeafIndex:      proof.LeafIndex,
			Root:           proof.Root,
			TreeSize:       proof.TreeSize,
			InclusionProof: proof.Siblings,
		}
	}

	if err := iss.chains.AppendChainHash(ctx, req.SessionKey, cert.Proofs.Chain.ChainHash); err != nil {
		return Certificate{}, fmt.Errorf("aip: issue checkpoint: append chain hash: %w", err)
	}

	iss.logger.Info("checkpoint issued",
		"checkpoint_id", cert.Subject.CheckpointID,
		"session", req.SessionKey,
		"verdict", cert.Claims.Verdict,
		"position", position,
	)
	return cert, nil
}

// PublicKey returns the Issuer's current public key and its key_id, for a
// caller that wants to publish it (e.g. under Certificate.Verification.KeysURL).
func (iss *Issuer) PublicKey(ctx context.Context) (ed25519.PublicKey, string, error) {
	secret, keyID, err := iss.keys.SigningKey(ctx)
	if err != nil {
		return nil, "", err
	}
	return secret.Public().(ed25519.PublicKey), keyID, nil
}

var (
	verifyMetricsOnce sync.Once
	verifyMetrics     telemetry.PipelineMetrics
)

func getVerifyMetrics() telemetry.PipelineMetrics {
	verifyMetricsOnce.Do(func() {
		// Errors here only happen if the global meter provider itself is
		// misconfigured; fall back to the zero-value PipelineMetrics, whose
		// nil counters are never dereferenced because recordOutcome returns
		// early when Verified is nil (NewPipelineMetrics returns a zero
		// PipelineMetrics on every error).
		m, err := telemetry.NewPipelineMetrics(instrumentationName)
		if err == nil {
			verifyMetrics = m
		}
	})
	return verifyMetrics
}

func recordOutcome(ctx context.Context, o VerificationOutcome) {
	m := getVerifyMetrics()
	if m.Verified == nil {
		return
	}
	if o.Valid() {
		m.Verified.Add(ctx, 1)
		return
	}
	m.VerifyFailed.Add(ctx, 1)
	for _, failed := range []struct {
		name string
		ok   bool
	}{
		{"signature", o.SignatureOK},
		{"chain", o.ChainOK},
		{"merkle", o.MerkleOK},
		{"commitment", o.CommitmentWellFormed},
		{"verdict_derivation", o.VerdictDerivationOK},
	} {
		if !failed.ok {
			m.ChecksFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("check", failed.name)))
		}
	}
}

// Verify checks a certificate entirely offline against the supplied public
// key: signature, chain link, Merkle inclusion (when present), commitment
// well-formedness, and the reserved verdict_derivation slot. It never
// returns an error — every check that cannot be evaluated contributes
// false to that specific check rather than aborting the rest.
func Verify(cert Certificate, public ed25519.PublicKey) VerificationOutcome {
	ctx, span := telemetry.Tracer(instrumentationName).Start(context.Background(), "aip.Verify")
	defer span.End()
	outcome := certificate.Verify(cert, public)
	recordOutcome(ctx, outcome)
	return outcome
}

// KeyResolver resolves a certificate's declared key_id to the public key a
// batch verification should check it against.
type KeyResolver = certificate.KeyResolver

// VerifyMany verifies a batch of certificates concurrently, resolving each
// one's key_id through resolver. Results are returned in input order.
func VerifyMany(ctx context.Context, certs []Certificate, resolver KeyResolver) ([]VerificationOutcome, error) {
	ctx, span := telemetry.Tracer(instrumentationName).Start(ctx, "aip.VerifyMany",
		trace.WithAttributes(attribute.Int("aip.certificate_count", len(certs))))
	defer span.End()

	outcomes, err := certificate.VerifyMany(ctx, certs, resolver)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	for _, o := range outcomes {
		recordOutcome(ctx, o)
	}
	return outcomes, nil
}
