package anchor_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/atel-protocol/atel/pkg/anchor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *anchor.SQLiteRecordStore {
	t.Helper()
	store, err := anchor.OpenSQLiteRecordStore(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteRecordStore_AppendAndQuery(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	block := uint64(42)
	rec := anchor.Record{
		Hash:        "h1",
		TxHash:      "tx-1",
		Chain:       "mock",
		Timestamp:   time.Now().UnixMilli(),
		BlockNumber: &block,
		Metadata:    map[string]string{"task": "t-1"},
	}
	require.NoError(t, store.Append(ctx, rec))

	got, err := store.ByHash(ctx, "h1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.TxHash, got[0].TxHash)
	require.NotNil(t, got[0].BlockNumber)
	assert.Equal(t, block, *got[0].BlockNumber)
	assert.Equal(t, "t-1", got[0].Metadata["task"])

	missing, err := store.ByHash(ctx, "h2")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestSQLiteRecordStore_AppendIsIdempotentPerTxHash(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	rec := anchor.Record{Hash: "h1", TxHash: "tx-1", Chain: "mock", Timestamp: 1}
	require.NoError(t, store.Append(ctx, rec))
	require.NoError(t, store.Append(ctx, rec))

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Nil(t, all[0].BlockNumber)
}

func TestManager_WithStoreWritesThrough(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	m := anchor.NewManager().WithStore(store)
	require.NoError(t, m.Register(anchor.NewMockProvider("a")))

	rec, err := m.Anchor(ctx, "h1", "a", nil)
	require.NoError(t, err)

	persisted, err := store.ByHash(ctx, "h1")
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, rec.TxHash, persisted[0].TxHash)
}
