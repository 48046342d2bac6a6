package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"collabroom/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqliteStore {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "test.db"))
}

func TestSqliteStoreReadMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Read(context.Background(), "nope")
	require.ErrorIs(t, err, core.ErrSnapshotNotFound)
}

func TestSqliteStoreWriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "r1", &core.Snapshot{Data: []byte(`{"a":1}`)}))

	snap, err := store.Read(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), snap.Data)
}

func TestSqliteStoreUpsertReplaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "r1", &core.Snapshot{Data: []byte(`v1`)}))
	require.NoError(t, store.Write(ctx, "r1", &core.Snapshot{Data: []byte(`v2`)}))
	require.NoError(t, store.Write(ctx, "r2", &core.Snapshot{Data: []byte(`other`)}))

	snap, err := store.Read(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`v2`), snap.Data)

	snap, err = store.Read(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, []byte(`other`), snap.Data)
}
