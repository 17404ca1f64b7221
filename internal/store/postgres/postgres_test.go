package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mnemom/aip-core/internal/store/postgres"
)

var testStore *postgres.Store

func TestMain(m *testing.M) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "aip",
			"POSTGRES_PASSWORD": "aip",
			"POSTGRES_DB":       "aip",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container port: %v\n", err)
		os.Exit(1)
	}

	dsn := fmt.Sprintf("postgres://aip:aip@%s:%s/aip?sslmode=disable", host, port.Port())

	testStore, err = postgres.Open(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testStore.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestStore_TailStartsEmpty(t *testing.T) {
	ctx := context.Background()
	prev, pos, err := testStore.Tail(ctx, "session-empty")
	require.NoError(t, err)
	assert.Nil(t, prev)
	assert.Equal(t, 0, pos)
}

func TestStore_AppendChainHashAdvancesTail(t *testing.T) {
	ctx := context.Background()
	session := "session-advance"

	require.NoError(t, testStore.AppendChainHash(ctx, session, "hash-a"))
	prev, pos, err := testStore.Tail(ctx, session)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "hash-a", *prev)
	assert.Equal(t, 1, pos)

	require.NoError(t, testStore.AppendChainHash(ctx, session, "hash-b"))
	prev, pos, err = testStore.Tail(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, "hash-b", *prev)
	assert.Equal(t, 2, pos)
}

func TestStore_AppendLeafTracksIndexAndSequence(t *testing.T) {
	ctx := context.Background()
	closed := testStore.CloseEpoch()
	_ = closed

	idx, leaves, err := testStore.AppendLeaf(ctx, "leaf-a")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, []string{"leaf-a"}, leaves)

	idx, leaves, err = testStore.AppendLeaf(ctx, "leaf-b")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, []string{"leaf-a", "leaf-b"}, leaves)
}

func TestStore_CloseEpochStartsFreshSequence(t *testing.T) {
	ctx := context.Background()
	testStore.CloseEpoch()

	_, _, err := testStore.AppendLeaf(ctx, "leaf-c")
	require.NoError(t, err)
	closed := testStore.CloseEpoch()

	closedLeaves, err := testStore.Leaves(ctx, closed)
	require.NoError(t, err)
	assert.Equal(t, []string{"leaf-c"}, closedLeaves)

	idx, leaves, err := testStore.AppendLeaf(ctx, "leaf-d")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, []string{"leaf-d"}, leaves)
}
