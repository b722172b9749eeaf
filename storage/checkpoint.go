package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/grafeo-db/grafeo/gerrors"
)

// dataSubdir is where arena snapshot files live, named by checkpoint epoch
// (spec §6: "P/data/ — arena snapshot files, one per arena-class, named by
// checkpoint epoch").
const dataSubdir = "data"

// CheckpointCoordinator flushes a consistent Store snapshot to disk each
// time Checkpoint is called (it runs no timer of its own) and emits the
// WAL Checkpoint record that lets recovery truncate
// everything before it (spec §4.2, §6). It adapts the teacher's
// WAL.CreateSnapshot/SaveSnapshot atomic-rename pattern
// (pkg/storage/wal.go) to Grafeo's arena-based Store and compresses with
// klauspost/compress/zstd, mirroring the compression badger already
// performs internally on its own SSTables.
type CheckpointCoordinator struct {
	mu   sync.Mutex
	dir  string
	wal  *WAL
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

// NewCheckpointCoordinator creates a coordinator writing snapshots under
// dir/data/ and emitting checkpoint records to wal.
func NewCheckpointCoordinator(dir string, wal *WAL) (*CheckpointCoordinator, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, gerrors.Wrap(gerrors.KindIO, "init zstd encoder", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, gerrors.Wrap(gerrors.KindIO, "init zstd decoder", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, dataSubdir), 0o755); err != nil {
		return nil, gerrors.Wrap(gerrors.KindIO, "create data directory", err)
	}
	return &CheckpointCoordinator{dir: dir, wal: wal, enc: enc, dec: dec}, nil
}

func (c *CheckpointCoordinator) path(epoch uint64) string {
	return filepath.Join(c.dir, dataSubdir, fmt.Sprintf("arena-%020d.snap.zst", epoch))
}

// Checkpoint captures store's state at the given epoch, writes it to disk
// via a temp-file-then-rename (matching the teacher's SaveSnapshot atomicity
// guarantee), appends a Checkpoint WAL record carrying epoch as watermark,
// and fsyncs the WAL so the checkpoint itself is durable before any later
// truncation relies on it.
func (c *CheckpointCoordinator) Checkpoint(store *Store, epoch uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := store.Snapshot(epoch)
	if err != nil {
		return err
	}
	compressed := c.enc.EncodeAll(raw, nil)

	final := c.path(epoch)
	tmp := final + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return gerrors.Wrap(gerrors.KindIO, "create snapshot temp file", err)
	}
	if _, err := f.Write(compressed); err != nil {
		f.Close()
		os.Remove(tmp)
		return gerrors.Wrap(gerrors.KindIO, "write snapshot", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return gerrors.Wrap(gerrors.KindIO, "sync snapshot", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return gerrors.Wrap(gerrors.KindIO, "close snapshot", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return gerrors.Wrap(gerrors.KindIO, "rename snapshot into place", err)
	}

	payload := make([]byte, 8)
	for i := 0; i < 8; i++ {
		payload[i] = byte(epoch >> (8 * uint(i)))
	}
	if _, err := c.wal.Append(RecCheckpoint, 0, payload); err != nil {
		return err
	}
	if err := c.wal.Sync(); err != nil {
		return err
	}

	// Everything durable up to this point is now captured in the snapshot
	// we just wrote; the WAL segments that hold it can be deleted.
	return c.wal.Compact()
}

// LatestEpoch returns the highest checkpoint epoch with a snapshot file on
// disk, and false if none exists yet (fresh database).
func (c *CheckpointCoordinator) LatestEpoch() (uint64, bool, error) {
	entries, err := os.ReadDir(filepath.Join(c.dir, dataSubdir))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, gerrors.Wrap(gerrors.KindIO, "list data directory", err)
	}

	var epochs []uint64
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "arena-") || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, "arena-"), ".snap.zst")
		n, err := strconv.ParseUint(numStr, 10, 64)
		if err != nil {
			continue
		}
		epochs = append(epochs, n)
	}
	if len(epochs) == 0 {
		return 0, false, nil
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })
	return epochs[len(epochs)-1], true, nil
}

// Load decompresses and decodes the snapshot for epoch back into a fresh
// *Store.
func (c *CheckpointCoordinator) Load(epoch uint64) (*Store, error) {
	raw, err := os.ReadFile(c.path(epoch))
	if err != nil {
		return nil, gerrors.Wrap(gerrors.KindIO, "read snapshot file", err)
	}
	decoded, err := c.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, gerrors.Wrap(gerrors.KindCorruption, "decompress snapshot", err)
	}
	store, _, err := Restore(decoded)
	return store, err
}
