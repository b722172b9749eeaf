// Package txn implements Grafeo's MVCC transaction manager: the global
// epoch counter, snapshot handles, per-transaction write sets, commit-time
// conflict detection, and the version-chain garbage collector (spec §4.1).
//
// No teacher analogue exists for epoch-based MVCC — the teacher mutates
// records in place under a single global mutex
// (`pkg/storage/transaction.go`'s `engine.mu.Lock()` around `Commit`),
// which this package keeps as the model for the commit latch while adding
// the snapshot-isolation machinery the teacher's in-place model has no need
// for.
package txn

import (
	"sort"
	"sync"
	"sync/atomic"
)

// EpochCounter hands out monotonically increasing epoch numbers. Epoch 0 is
// reserved as "before any commit"; the first committed transaction is
// assigned epoch 1.
type EpochCounter struct {
	next atomic.Uint64
}

// NewEpochCounter creates a counter starting at epoch 1.
func NewEpochCounter() *EpochCounter {
	c := &EpochCounter{}
	c.next.Store(1)
	return c
}

// Current returns the next epoch that would be assigned, without assigning
// it — i.e. the epoch of the most recent commit plus one.
func (c *EpochCounter) Current() uint64 { return c.next.Load() }

// Advance assigns and returns the next commit epoch.
func (c *EpochCounter) Advance() uint64 { return c.next.Add(1) - 1 }

// Snapshot pins a read epoch against the garbage collector: every version
// committed at or before Epoch remains visible to a reader holding this
// snapshot, so GC must never reclaim a version an active Snapshot could
// still need (spec §4.1: "reclamation driven by the oldest active reader's
// start epoch").
type Snapshot struct {
	Epoch uint64
	id    uint64
}

// SnapshotRegistry tracks every currently-open Snapshot so GC can compute
// the oldest one still pinning epochs.
type SnapshotRegistry struct {
	mu       sync.Mutex
	nextID   uint64
	active   map[uint64]uint64 // snapshot id -> pinned epoch
}

// NewSnapshotRegistry creates an empty registry.
func NewSnapshotRegistry() *SnapshotRegistry {
	return &SnapshotRegistry{active: make(map[uint64]uint64)}
}

// Open registers a new Snapshot pinned at epoch.
func (r *SnapshotRegistry) Open(epoch uint64) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.active[id] = epoch
	return Snapshot{Epoch: epoch, id: id}
}

// Close releases a Snapshot, allowing GC to reclaim versions only it was
// pinning.
func (r *SnapshotRegistry) Close(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, s.id)
}

// OldestActive returns the smallest pinned epoch among all open snapshots,
// and false if none are open (in which case GC may reclaim up to the
// latest committed epoch).
func (r *SnapshotRegistry) OldestActive() (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.active) == 0 {
		return 0, false
	}
	epochs := make([]uint64, 0, len(r.active))
	for _, e := range r.active {
		epochs = append(epochs, e)
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })
	return epochs[0], true
}
