package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafeo-db/grafeo/catalog"
	"github.com/grafeo-db/grafeo/storage"
)

func TestTransactionSnapshotMatchesManagerEpoch(t *testing.T) {
	store := storage.NewStore()
	mgr := NewManager(store, nil, catalog.NewSchemaManager())

	assert.Equal(t, uint64(0), mgr.CurrentEpoch())

	tx := mgr.Begin()
	_, err := tx.CreateNode(tx.Snapshot().Epoch)
	require.NoError(t, err)
	require.NoError(t, mgr.Commit(tx))

	assert.Equal(t, uint64(1), mgr.CurrentEpoch())

	tx2 := mgr.Begin()
	assert.Equal(t, uint64(1), tx2.Snapshot().Epoch, "a transaction begun after the commit reads the committed epoch")
	require.NoError(t, mgr.Abort(tx2))
}
