package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafeo-db/grafeo/graph"
)

func appendOp(t *testing.T, wal *WAL, txID uint64, typ RecordType, op interface{}) {
	t.Helper()
	payload, err := EncodeOp(op)
	require.NoError(t, err)
	_, err = wal.Append(typ, txID, payload)
	require.NoError(t, err)
}

func appendCommit(t *testing.T, wal *WAL, txID uint64, epoch uint64) {
	t.Helper()
	appendOp(t, wal, txID, RecCommit, OpCommit{Epoch: epoch})
}

func TestRecoverReplaysOnlyCommittedTransactions(t *testing.T) {
	walDir := t.TempDir()
	wal, err := Open(walDir, SyncFull)
	require.NoError(t, err)

	// Transaction 1: committed, must be replayed.
	appendOp(t, wal, 1, RecCreateNode, OpCreateNode{ID: 0, Epoch: 1})
	appendCommit(t, wal, 1, 1)

	// Transaction 2: never committed (simulates a crash mid-transaction).
	appendOp(t, wal, 2, RecCreateNode, OpCreateNode{ID: 1, Epoch: 2})

	// Transaction 3: explicitly aborted, must not be replayed.
	appendOp(t, wal, 3, RecCreateNode, OpCreateNode{ID: 2, Epoch: 2})
	_, err = wal.Append(RecAbort, 3, nil)
	require.NoError(t, err)

	require.NoError(t, wal.Close())

	coord, err := NewCheckpointCoordinator(walDir, wal)
	require.NoError(t, err)

	store, epoch, err := Recover(walDir, coord)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), epoch)
	assert.Equal(t, 1, store.Nodes.Len(), "only the committed transaction's node should exist")

	_, ok := store.Nodes.Get(graph.NodeID(0))
	assert.True(t, ok)
}

func TestRecoverLoadsLatestCheckpointThenReplaysAfterIt(t *testing.T) {
	dir := t.TempDir()
	wal, err := Open(dir, SyncFull)
	require.NoError(t, err)

	coord, err := NewCheckpointCoordinator(dir, wal)
	require.NoError(t, err)

	store := NewStore()
	store.Nodes.Allocate(1)
	require.NoError(t, coord.Checkpoint(store, 1))

	// A second, later-committed transaction arrives after the checkpoint.
	appendOp(t, wal, 10, RecCreateNode, OpCreateNode{ID: 1, Epoch: 2})
	appendCommit(t, wal, 10, 2)
	require.NoError(t, wal.Close())

	recovered, epoch, err := Recover(dir, coord)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), epoch)
	assert.Equal(t, 2, recovered.Nodes.Len())
}

func TestRecoverStopsReplayAtCorruptFrame(t *testing.T) {
	dir := t.TempDir()
	wal, err := Open(dir, SyncFull)
	require.NoError(t, err)

	appendOp(t, wal, 1, RecCreateNode, OpCreateNode{ID: 0, Epoch: 1})
	appendCommit(t, wal, 1, 1)
	require.NoError(t, wal.Close())

	// Corrupt the trailing CRC of the log's last byte.
	path := filepath.Join(dir, "0000001.log")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	coord, err := NewCheckpointCoordinator(dir, wal)
	require.NoError(t, err)

	_, _, err = Recover(dir, coord)
	assert.Error(t, err, "a corrupt-but-complete frame must fail recovery rather than silently skip it")
}
