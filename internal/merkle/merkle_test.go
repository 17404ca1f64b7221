package merkle_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemom/aip-core/internal/merkle"
)

func leafHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func someLeaves(n int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = leafHash(string(rune('a' + i)))
	}
	return out
}

func TestRoot_Empty(t *testing.T) {
	root, err := merkle.Root(nil)
	require.NoError(t, err)
	expected := sha256.Sum256(nil)
	assert.Equal(t, hex.EncodeToString(expected[:]), root)
}

func TestRoot_SingleLeaf(t *testing.T) {
	leaves := someLeaves(1)
	root, err := merkle.Root(leaves)
	require.NoError(t, err)
	assert.Equal(t, leaves[0], root)
}

func TestRoot_Deterministic(t *testing.T) {
	leaves := someLeaves(4)
	r1, err := merkle.Root(leaves)
	require.NoError(t, err)
	r2, err := merkle.Root(leaves)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

func TestRoot_OrderMatters(t *testing.T) {
	leaves := someLeaves(3)
	reordered := []string{leaves[1], leaves[0], leaves[2]}

	r1, err := merkle.Root(leaves)
	require.NoError(t, err)
	r2, err := merkle.Root(reordered)
	require.NoError(t, err)
	assert.NotEqual(t, r1, r2)
}

func TestRoot_OddLeafCountDuplicatesLast(t *testing.T) {
	leaves := someLeaves(3)
	root, err := merkle.Root(leaves)
	require.NoError(t, err)
	assert.Len(t, root, 64)

	h01 := sha256Concat(leaves[0], leaves[1])
	h22 := sha256Concat(leaves[2], leaves[2])
	want := sha256Concat(h01, h22)
	assert.Equal(t, want, root)
}

func sha256Concat(aHex, bHex string) string {
	a, _ := hex.DecodeString(aHex)
	b, _ := hex.DecodeString(bHex)
	sum := sha256.Sum256(append(append([]byte{}, a...), b...))
	return hex.EncodeToString(sum[:])
}

func TestBuildTreeState(t *testing.T) {
	leaves := someLeaves(5)
	state, err := merkle.BuildTreeState(leaves)
	require.NoError(t, err)
	assert.Equal(t, 5, state.LeafCount)
	assert.Equal(t, 3, state.Depth) // ceil(log2(5)) = 3
	root, err := merkle.Root(leaves)
	require.NoError(t, err)
	assert.Equal(t, root, state.Root)
}

func TestBuildTreeState_EmptyDepthZero(t *testing.T) {
	state, err := merkle.BuildTreeState(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, state.LeafCount)
	assert.Equal(t, 0, state.Depth)
}

func TestGenerateAndVerifyInclusionProof_AllIndices(t *testing.T) {
	for n := 1; n <= 10; n++ {
		leaves := someLeaves(n)
		root, err := merkle.Root(leaves)
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			proof, err := merkle.GenerateInclusionProof(leaves, i)
			require.NoError(t, err)
			assert.True(t, merkle.VerifyInclusionProof(proof, leaves[i], root), "n=%d i=%d", n, i)
		}
	}
}

func TestGenerateInclusionProof_OutOfRange(t *testing.T) {
	leaves := someLeaves(3)
	_, err := merkle.GenerateInclusionProof(leaves, 3)
	require.Error(t, err)
	_, err = merkle.GenerateInclusionProof(leaves, -1)
	require.Error(t, err)
}

func TestVerifyInclusionProof_MalformedHexReturnsFalse(t *testing.T) {
	leaves := someLeaves(3)
	proof, err := merkle.GenerateInclusionProof(leaves, 1)
	require.NoError(t, err)

	assert.False(t, merkle.VerifyInclusionProof(proof, "not-hex", proof.Root))

	badProof := proof
	badProof.Siblings = append([]merkle.Sibling{}, proof.Siblings...)
	badProof.Siblings[0].Hash = "not-hex"
	assert.False(t, merkle.VerifyInclusionProof(badProof, leaves[1], proof.Root))
}

// Scenario D: growth invalidates a stale proof; a fresh proof over the
// grown tree verifies.
func TestScenario_MerkleGrowthInvalidatesStaleProof(t *testing.T) {
	five := someLeaves(5)
	root5, err := merkle.Root(five)
	require.NoError(t, err)

	proof, err := merkle.GenerateInclusionProof(five, 2)
	require.NoError(t, err)
	assert.True(t, merkle.VerifyInclusionProof(proof, five[2], root5))

	ten := append(append([]string{}, five...), someLeaves(10)[5:]...)
	root10, err := merkle.Root(ten)
	require.NoError(t, err)
	assert.NotEqual(t, root5, root10)

	assert.False(t, merkle.VerifyInclusionProof(proof, five[2], root10))

	freshProof, err := merkle.GenerateInclusionProof(ten, 2)
	require.NoError(t, err)
	assert.True(t, merkle.VerifyInclusionProof(freshProof, ten[2], root10))
}

// Scenario E: deletion is detected the same way growth is.
func TestScenario_DeletionInvalidatesProof(t *testing.T) {
	six := someLeaves(6)
	root6, err := merkle.Root(six)
	require.NoError(t, err)

	proof, err := merkle.GenerateInclusionProof(six, 3)
	require.NoError(t, err)
	assert.True(t, merkle.VerifyInclusionProof(proof, six[3], root6))

	five := append(append([]string{}, six[:3]...), six[4:]...)
	root5, err := merkle.Root(five)
	require.NoError(t, err)
	assert.NotEqual(t, root5, root6)

	assert.False(t, merkle.VerifyInclusionProof(proof, six[3], root5))
}

func TestComputeLeafHash_Deterministic(t *testing.T) {
	l := merkle.Leaf{
		CheckpointID:      "ic-offline-001",
		Verdict:           "review_needed",
		ThinkingBlockHash: "ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00",
		ChainHash:         "aa00bb00aa00bb00aa00bb00aa00bb00aa00bb00aa00bb00aa00bb00aa00bb00",
		Timestamp:         "2025-01-15T10:00:00.000Z",
	}
	h1, err := merkle.ComputeLeafHash(l)
	require.NoError(t, err)
	h2, err := merkle.ComputeLeafHash(l)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}
