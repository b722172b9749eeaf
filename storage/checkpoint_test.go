package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafeo-db/grafeo/graph"
)

func TestCheckpointRoundTripsStoreState(t *testing.T) {
	dir := t.TempDir()
	wal, err := Open(dir, SyncFull)
	require.NoError(t, err)
	defer wal.Close()

	coord, err := NewCheckpointCoordinator(dir, wal)
	require.NoError(t, err)

	store := NewStore()
	id := store.Nodes.Allocate(1)
	require.NoError(t, store.Nodes.SetProperty(id, graph.PropertyKey(1), graph.String("ada")))

	require.NoError(t, coord.Checkpoint(store, 1))

	epoch, ok, err := coord.LatestEpoch()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), epoch)

	loaded, err := coord.Load(epoch)
	require.NoError(t, err)
	props, ok := loaded.Nodes.Properties(id)
	require.True(t, ok)
	assert.Equal(t, graph.String("ada"), props[graph.PropertyKey(1)])
}

func TestCheckpointCompactsWALSegments(t *testing.T) {
	dir := t.TempDir()
	wal, err := Open(dir, SyncFull)
	require.NoError(t, err)
	defer wal.Close()

	coord, err := NewCheckpointCoordinator(dir, wal)
	require.NoError(t, err)

	store := NewStore()
	store.Nodes.Allocate(1)
	_, err = wal.Append(RecCreateNode, 1, []byte("x"))
	require.NoError(t, err)

	require.NoError(t, coord.Checkpoint(store, 1))

	nums, err := segmentNumbers(dir)
	require.NoError(t, err)
	require.Len(t, nums, 1, "checkpointing must compact away segments whose data is now captured in the snapshot")

	var replayed int
	require.NoError(t, ReadAll(dir, func(Record) error { replayed++; return nil }))
	assert.Zero(t, replayed, "nothing should remain to replay immediately after a checkpoint")
}

func TestLatestEpochIsFalseForFreshDatabase(t *testing.T) {
	dir := t.TempDir()
	wal, err := Open(dir, SyncFull)
	require.NoError(t, err)
	defer wal.Close()

	coord, err := NewCheckpointCoordinator(dir, wal)
	require.NoError(t, err)

	_, ok, err := coord.LatestEpoch()
	require.NoError(t, err)
	assert.False(t, ok)
}
