// Package chainlink implements the per-session hash chain that binds
// each checkpoint to its predecessor.
package chainlink

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/mnemom/aip-core/internal/aiperr"
)

// genesisSentinel is the literal preimage token used in place of a previous
// chain hash at the start of a session.
const genesisSentinel = "genesis"

// Input is the tuple a chain hash is computed over. PrevChainHash is nil
// for the session genesis.
type Input struct {
	PrevChainHash     *string
	CheckpointID      string
	Verdict           string
	ThinkingBlockHash string
	InputCommitment   string
	Timestamp         string
}

func preimage(in Input) string {
	prev := genesisSentinel
	if in.PrevChainHash != nil {
		prev = *in.PrevChainHash
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		prev, in.CheckpointID, in.Verdict, in.ThinkingBlockHash, in.InputCommitment, in.Timestamp)
}

// ComputeHash returns the SHA-256 of the UTF-8 pipe-delimited preimage,
// hex-lowercased.
func ComputeHash(in Input) string {
	sum := sha256.Sum256([]byte(preimage(in)))
	return hex.EncodeToString(sum[:])
}

// VerifyLink does a constant-time comparison of the recomputed hash
// against the expected hex string. Total: never
// panics or errors on malformed input, only returns false.
func VerifyLink(in Input, expectedHex string) bool {
	got := ComputeHash(in)
	if len(got) != len(expectedHex) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expectedHex)) == 1
}

// Checkpoint is one link in an ordered chain, as consumed by VerifySequence.
type Checkpoint struct {
	PrevChainHash     *string
	ChainHash         string
	CheckpointID      string
	Verdict           string
	ThinkingBlockHash string
	InputCommitment   string
	Timestamp         string
}

// SequenceResult reports the outcome of verifying an ordered chain.
type SequenceResult struct {
	Valid         bool
	LinksVerified int
	BrokenAt      *int
	Details       string
}

// VerifySequence checks an ordered chain of checkpoints link by link. It
// reports the first broken index and stops; an empty sequence is trivially
// valid.
func VerifySequence(checkpoints []Checkpoint) SequenceResult {
	if len(checkpoints) == 0 {
		return SequenceResult{Valid: true, LinksVerified: 0}
	}

	if checkpoints[0].PrevChainHash != nil {
		idx := 0
		return SequenceResult{
			Valid:         false,
			LinksVerified: 0,
			BrokenAt:      &idx,
			Details:       "checkpoint 0 must have a nil prevChainHash (session genesis)",
		}
	}

	for i, cp := range checkpoints {
		if i >= 1 {
			prev := checkpoints[i-1]
			if cp.PrevChainHash == nil || *cp.PrevChainHash != prev.ChainHash {
				idx := i
				return SequenceResult{
					Valid:         false,
					LinksVerified: i,
					BrokenAt:      &idx,
					Details:       fmt.Sprintf("checkpoint %d's prevChainHash does not match checkpoint %d's chainHash", i, i-1),
				}
			}
		}

		recomputed := ComputeHash(Input{
			PrevChainHash:     cp.PrevChainHash,
			CheckpointID:      cp.CheckpointID,
			Verdict:           cp.Verdict,
			ThinkingBlockHash: cp.ThinkingBlockHash,
			InputCommitment:   cp.InputCommitment,
			Timestamp:         cp.Timestamp,
		})
		if recomputed != cp.ChainHash {
			idx := i
			return SequenceResult{
				Valid:         false,
				LinksVerified: i,
				BrokenAt:      &idx,
				Details:       fmt.Sprintf("checkpoint %d's chainHash does not match its recomputed hash", i),
			}
		}
	}

	return SequenceResult{Valid: true, LinksVerified: len(checkpoints)}
}

// mustHex validates a 64-char lowercase hex string; used by collaborators
// constructing Input values from untrusted storage. Kept here (rather than
// in the signing/merkle packages) because chain hashes are the one place a
// malformed predecessor hash must fail fast, not silently chain onto
// garbage.
func mustHex(s string) error {
	if len(s) != 64 {
		return aiperr.Encoding("chainlink: validate hex", fmt.Errorf("expected 64 hex chars, got %d", len(s)))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return aiperr.Encoding("chainlink: validate hex", err)
	}
	return nil
}

// ValidateHash is exported for collaborator implementations (e.g. a
// ChainStore reading a previous hash back from persistence) that want to
// fail fast on corrupt stored data rather than silently chaining a
// malformed genesis forward.
func ValidateHash(s string) error { return mustHex(s) }
