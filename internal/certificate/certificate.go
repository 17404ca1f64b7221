// Package certificate assembles and offline-verifies the
// IntegrityCertificate envelope that packages a commitment, a chain link, a
// signature, and (optionally) a Merkle inclusion proof into one
// self-describing document.
package certificate

import (
	"context"
	"crypto/ed25519"
	"regexp"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mnemom/aip-core/internal/aiperr"
	"github.com/mnemom/aip-core/internal/chainlink"
	"github.com/mnemom/aip-core/internal/commitment"
	"github.com/mnemom/aip-core/internal/merkle"
	"github.com/mnemom/aip-core/internal/model"
	"github.com/mnemom/aip-core/internal/signing"
)

const (
	contextURI = "https://mnemom.ai/aip/v1"
	docType    = "IntegrityCertificate"
	docVersion = "1.0.0"
	sigAlgo    = "Ed25519"
)

// Clock supplies the issued_at timestamp, ISO-8601 UTC with millisecond
// precision and a trailing Z. Defined here (rather than
// imported from the root package) so this package has no dependency on its
// own caller — any type with this method satisfies it structurally.
type Clock interface {
	NowISO8601Milli() string
}

// IDGenerator mints certificate_id values ("cert-" + 8 lowercase alnum).
type IDGenerator interface {
	GenerateCertificateID() (string, error)
}

// Subject identifies who/what a certificate is about.
type Subject struct {
	CheckpointID string     `json:"checkpoint_id"`
	AgentID      string     `json:"agent_id"`
	SessionID    *uuid.UUID `json:"session_id,omitempty"`
	CardID       string     `json:"card_id"`
}

// Concern is a single flagged issue within a checkpoint's verdict.
type Concern struct {
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Claims holds the verdict and the evidence behind it.
type Claims struct {
	Verdict            string    `json:"verdict"`
	Concerns           []Concern `json:"concerns,omitempty"`
	Confidence         float64   `json:"confidence"`
	ReasoningSummary   string    `json:"reasoning_summary,omitempty"`
	AnalysisModel      string    `json:"analysis_model,omitempty"`
	AnalysisDurationMs int64     `json:"analysis_duration_ms,omitempty"`
}

// InputCommitments is the envelope's input_commitments block.
type InputCommitments struct {
	ThinkingBlockHash   string `json:"thinking_block_hash"`
	CardHash            string `json:"card_hash"`
	ValuesHash          string `json:"values_hash"`
	ContextHash         string `json:"context_hash"`
	ModelVersion        string `json:"model_version"`
	CombinedCommitment  string `json:"combined_commitment"`
}

// SignatureProof is proofs.signature.
type SignatureProof struct {
	Algorithm     string `json:"algorithm"`
	KeyID         string `json:"key_id"`
	Value         string `json:"value"`
	SignedPayload string `json:"signed_payload"`
}

// ChainProof is proofs.chain.
type ChainProof struct {
	ChainHash     string  `json:"chain_hash"`
	PrevChainHash *string `json:"prev_chain_hash"`
	Position      int     `json:"position"`
}

// MerkleProof is proofs.merkle, nil when the checkpoint has not yet been
// included in a tree epoch.
type MerkleProof struct {
	LeafHash       string            `json:"leaf_hash"`
	LeafIndex      int               `json:"leaf_index"`
	Root           string            `json:"root"`
	TreeSize       int               `json:"tree_size"`
	InclusionProof []merkle.Sibling  `json:"inclusion_proof"`
}

// Proofs bundles every proof type the envelope carries. VerdictDerivation
// is always nil in v1 — a reserved slot for a future proof type.
type Proofs struct {
	Signature          SignatureProof `json:"signature"`
	Chain              ChainProof     `json:"chain"`
	Merkle             *MerkleProof   `json:"merkle"`
	VerdictDerivation  *struct{}      `json:"verdict_derivation"`
}

// Verification holds the offline-verification helper endpoints a
// surrounding service may populate; the core never dereferences these.
type Verification struct {
	KeysURL        string `json:"keys_url,omitempty"`
	CertificateURL string `json:"certificate_url,omitempty"`
	VerifyURL      string `json:"verify_url,omitempty"`
}

// IntegrityCertificate is the wire-format envelope issued for a checkpoint.
type IntegrityCertificate struct {
	Context          string           `json:"@context"`
	Type             string           `json:"type"`
	Version          string           `json:"version"`
	CertificateID    string           `json:"certificate_id"`
	IssuedAt         string           `json:"issued_at"`
	Subject          Subject          `json:"subject"`
	Claims           Claims           `json:"claims"`
	InputCommitments InputCommitments `json:"input_commitments"`
	Proofs           Proofs           `json:"proofs"`
	Verification     Verification     `json:"verification"`
}

// MerkleInput supplies the leaf sequence and this checkpoint's position
// within it, when the checkpoint is being included in a tree epoch as part
// of issuance. Leave nil to build a certificate without a Merkle proof.
type MerkleInput struct {
	LeafHashes []string
	LeafIndex  int
}

// BuildInput is everything Build needs beyond the clock and id
// generator collaborators.
type BuildInput struct {
	Subject           Subject
	Inputs            model.CheckpointInputs
	Verdict           string
	Concerns          []Concern
	Confidence        float64
	ReasoningSummary  string
	AnalysisModel     string
	AnalysisDuration  int64
	ThinkingBlockHash string
	PrevChainHash     *string
	Position          int
	Secret            ed25519.PrivateKey
	KeyID             string
	Merkle            *MerkleInput
	Verification      Verification
}

// Build assembles a complete certificate from in, a pure function of its
// input plus the clock and random-id collaborators. Every other field is a
// copy or a deterministic derivation of the input.
func Build(in BuildInput, clock Clock, ids IDGenerator) (IntegrityCertificate, error) {
	if in.Secret == nil {
		return IntegrityCertificate{}, aiperr.Structural("certificate: build", errMissingSecret{})
	}

	issuedAt := clock.NowISO8601Milli()

	cardHash, err := commitment.ComputeCardHash(in.Inputs.Card)
	if err != nil {
		return IntegrityCertificate{}, err
	}
	valuesHash, err := commitment.ComputeValuesHash(in.Inputs.ConscienceValues)
	if err != nil {
		return IntegrityCertificate{}, err
	}
	contextHash, err := commitment.ComputeContextHash(in.Inputs.WindowContext)
	if err != nil {
		return IntegrityCertificate{}, err
	}
	combined, err := commitment.ComputeInputCommitment(in.Inputs)
	if err != nil {
		return IntegrityCertificate{}, err
	}

	chainHash := chainlink.ComputeHash(chainlink.Input{
		PrevChainHash:     in.PrevChainHash,
		CheckpointID:      in.Subject.CheckpointID,
		Verdict:           in.Verdict,
		ThinkingBlockHash: in.ThinkingBlockHash,
		InputCommitment:   combined,
		Timestamp:         issuedAt,
	})

	payload, err := signing.BuildPayload(signing.PayloadFields{
		AgentID:           in.Subject.AgentID,
		ChainHash:         chainHash,
		CheckpointID:      in.Subject.CheckpointID,
		InputCommitment:   combined,
		ThinkingBlockHash: in.ThinkingBlockHash,
		Timestamp:         issuedAt,
		Verdict:           in.Verdict,
	})
	if err != nil {
		return IntegrityCertificate{}, err
	}
	sig := signing.Sign(payload, in.Secret)

	var mp *MerkleProof
	if in.Merkle != nil {
		leaf := merkle.Leaf{
			CheckpointID:      in.Subject.CheckpointID,
			Verdict:           in.Verdict,
			ThinkingBlockHash: in.ThinkingBlockHash,
			ChainHash:         chainHash,
			Timestamp:         issuedAt,
		}
		leafHash, err := merkle.ComputeLeafHash(leaf)
		if err != nil {
			return IntegrityCertificate{}, err
		}
		if in.Merkle.LeafIndex < 0 || in.Merkle.LeafIndex >= len(in.Merkle.LeafHashes) {
			return IntegrityCertificate{}, aiperr.Index("certificate: build merkle proof", errLeafIndexRange{})
		}
		if in.Merkle.LeafHashes[in.Merkle.LeafIndex] != leafHash {
			return IntegrityCertificate{}, aiperr.Structural("certificate: build merkle proof", errLeafMismatch{})
		}
		proof, err := merkle.GenerateInclusionProof(in.Merkle.LeafHashes, in.Merkle.LeafIndex)
		if err != nil {
			return IntegrityCertificate{}, err
		}
		mp = &MerkleProof{
			LeafHash:       proof.LeafHash,
			LeafIndex:      proof.LeafIndex,
			Root:           proof.Root,
			TreeSize:       proof.TreeSize,
			InclusionProof: proof.Siblings,
		}
	}

	certID, err := ids.GenerateCertificateID()
	if err != nil {
		return IntegrityCertificate{}, aiperr.Structural("certificate: build", err)
	}

	return IntegrityCertificate{
		Context:       contextURI,
		Type:          docType,
		Version:       docVersion,
		CertificateID: certID,
		IssuedAt:      issuedAt,
		Subject:       in.Subject,
		Claims: Claims{
			Verdict:            in.Verdict,
			Concerns:           in.Concerns,
			Confidence:         in.Confidence,
			ReasoningSummary:   in.ReasoningSummary,
			AnalysisModel:      in.AnalysisModel,
			AnalysisDurationMs: in.AnalysisDuration,
		},
		InputCommitments: InputCommitments{
			ThinkingBlockHash:  in.ThinkingBlockHash,
			CardHash:           cardHash,
			ValuesHash:         valuesHash,
			ContextHash:        contextHash,
			ModelVersion:       in.Inputs.ModelVersion,
			CombinedCommitment: combined,
		},
		Proofs: Proofs{
			Signature: SignatureProof{
				Algorithm:     sigAlgo,
				KeyID:         in.KeyID,
				Value:         sig,
				SignedPayload: payload,
			},
			Chain: ChainProof{
				ChainHash:     chainHash,
				PrevChainHash: in.PrevChainHash,
				Position:      in.Position,
			},
			Merkle:            mp,
			VerdictDerivation: nil,
		},
		Verification: in.Verification,
	}, nil
}

// LeafFor derives the Merkle leaf content for an already-built certificate.
// Callers that want to include a checkpoint in a tree epoch compute this
// after Build (since the leaf covers the chain hash Build just produced),
// append ComputeLeafHash(LeafFor(cert)) to their leaf sequence, generate an
// inclusion proof, and attach it to cert.Proofs.Merkle themselves.
func LeafFor(cert IntegrityCertificate) merkle.Leaf {
	return merkle.Leaf{
		CheckpointID:      cert.Subject.CheckpointID,
		Verdict:           cert.Claims.Verdict,
		ThinkingBlockHash: cert.InputCommitments.ThinkingBlockHash,
		ChainHash:         cert.Proofs.Chain.ChainHash,
		Timestamp:         cert.IssuedAt,
	}
}

var commitmentHexPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Outcome reports the five independent checks of offline verification.
type Outcome struct {
	SignatureOK           bool
	ChainOK               bool
	MerkleOK              bool
	CommitmentWellFormed  bool
	VerdictDerivationOK   bool
}

// Valid reports whether every check passed.
func (o Outcome) Valid() bool {
	return o.SignatureOK && o.ChainOK && o.MerkleOK && o.CommitmentWellFormed && o.VerdictDerivationOK
}

// Verify runs the five-step offline verification algorithm against cert.
// It never returns an error: every check that cannot be evaluated (bad hex,
// bad base64) contributes false to that check rather than aborting the
// others, so a caller always learns exactly which checks failed. A
// certificate without a Merkle proof passes the Merkle check.
func Verify(cert IntegrityCertificate, public ed25519.PublicKey) Outcome {
	sigOK := signing.Verify(cert.Proofs.Signature.Value, cert.Proofs.Signature.SignedPayload, public)

	chainOK := chainlink.VerifyLink(chainlink.Input{
		PrevChainHash:     cert.Proofs.Chain.PrevChainHash,
		CheckpointID:      cert.Subject.CheckpointID,
		Verdict:           cert.Claims.Verdict,
		ThinkingBlockHash: cert.InputCommitments.ThinkingBlockHash,
		InputCommitment:   cert.InputCommitments.CombinedCommitment,
		Timestamp:         cert.IssuedAt,
	}, cert.Proofs.Chain.ChainHash)

	merkleOK := true
	if cert.Proofs.Merkle != nil {
		mp := cert.Proofs.Merkle
		merkleOK = merkle.VerifyInclusionProof(merkle.InclusionProof{
			LeafHash:  mp.LeafHash,
			LeafIndex: mp.LeafIndex,
			Siblings:  mp.InclusionProof,
			Root:      mp.Root,
			TreeSize:  mp.TreeSize,
		}, mp.LeafHash, mp.Root)
	}

	commitmentWellFormed := commitmentHexPattern.MatchString(cert.InputCommitments.CombinedCommitment)
	verdictDerivationOK := cert.Proofs.VerdictDerivation == nil

	return Outcome{
		SignatureOK:          sigOK,
		ChainOK:              chainOK,
		MerkleOK:             merkleOK,
		CommitmentWellFormed: commitmentWellFormed,
		VerdictDerivationOK:  verdictDerivationOK,
	}
}

// KeyResolver resolves the public key a certificate's signature should be
// checked against, by key_id. Implementations typically wrap a KeyStore
// collaborator.
type KeyResolver interface {
	PublicKeyFor(ctx context.Context, keyID string) (ed25519.PublicKey, error)
}

// VerifyMany verifies a batch of certificates concurrently, resolving each
// one's public key by its declared key_id, and returns one Outcome per
// certificate in input order. A key-resolution failure is reported as a
// zero Outcome (every check false), not an error, keeping VerifyMany total
// like the single-certificate Verify it wraps.
func VerifyMany(ctx context.Context, certs []IntegrityCertificate, keys KeyResolver) ([]Outcome, error) {
	outcomes := make([]Outcome, len(certs))
	g, gctx := errgroup.WithContext(ctx)
	for i, cert := range certs {
		i, cert := i, cert
		g.Go(func() error {
			public, err := keys.PublicKeyFor(gctx, cert.Proofs.Signature.KeyID)
			if err != nil {
				outcomes[i] = Outcome{}
				return nil
			}
			outcomes[i] = Verify(cert, public)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

type errMissingSecret struct{}

func (errMissingSecret) Error() string { return "certificate: secret signing key is required" }

type errLeafIndexRange struct{}

func (errLeafIndexRange) Error() string { return "certificate: merkle leaf index out of range" }

type errLeafMismatch struct{}

func (errLeafMismatch) Error() string {
	return "certificate: declared leaf index does not contain this checkpoint's leaf hash"
}
