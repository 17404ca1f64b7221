package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemom/aip-core/internal/store/memory"
)

func TestChainStore_TailStartsEmpty(t *testing.T) {
	cs := memory.NewChainStore()
	prev, pos, err := cs.Tail(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Nil(t, prev)
	assert.Equal(t, 0, pos)
}

func TestChainStore_AppendAdvancesTailAndPosition(t *testing.T) {
	cs := memory.NewChainStore()
	ctx := context.Background()

	require.NoError(t, cs.AppendChainHash(ctx, "session-1", "hash-a"))
	prev, pos, err := cs.Tail(ctx, "session-1")
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "hash-a", *prev)
	assert.Equal(t, 1, pos)

	require.NoError(t, cs.AppendChainHash(ctx, "session-1", "hash-b"))
	prev, pos, err = cs.Tail(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-b", *prev)
	assert.Equal(t, 2, pos)

	assert.Equal(t, 1, cs.SessionCount())
}

func TestChainStore_SessionsAreIndependent(t *testing.T) {
	cs := memory.NewChainStore()
	ctx := context.Background()
	require.NoError(t, cs.AppendChainHash(ctx, "session-1", "hash-a"))

	prev, pos, err := cs.Tail(ctx, "session-2")
	require.NoError(t, err)
	assert.Nil(t, prev)
	assert.Equal(t, 0, pos)
}

func TestLeafStore_AppendTracksIndexAndSequence(t *testing.T) {
	ls := memory.NewLeafStore()
	ctx := context.Background()

	idx, leaves, err := ls.AppendLeaf(ctx, "leaf-a")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, []string{"leaf-a"}, leaves)

	idx, leaves, err = ls.AppendLeaf(ctx, "leaf-b")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, []string{"leaf-a", "leaf-b"}, leaves)
}

func TestLeafStore_CloseEpochResetsSequence(t *testing.T) {
	ls := memory.NewLeafStore()
	ctx := context.Background()
	_, _, err := ls.AppendLeaf(ctx, "leaf-a")
	require.NoError(t, err)

	closed := ls.CloseEpoch()
	assert.Equal(t, []string{"leaf-a"}, closed)
	assert.Empty(t, ls.Leaves())

	idx, leaves, err := ls.AppendLeaf(ctx, "leaf-b")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, []string{"leaf-b"}, leaves)
}
