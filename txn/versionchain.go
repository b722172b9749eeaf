package txn

import (
	"sync"

	"github.com/grafeo-db/grafeo/graph"
)

// Version is one committed revision of a node or edge's record and property
// set, tagged with the epoch it became visible at. A nil Record (with
// Tombstone set) represents a delete.
type Version struct {
	Epoch     uint64
	Record    interface{} // graph.NodeRecord or graph.EdgeRecord
	Props     map[graph.PropertyKey]graph.Value
	Tombstone bool
}

// Chain holds every retained version of a single entity, newest first. The
// arena's current record is always Chain's head; older entries exist only
// so a Snapshot opened before the newest commit keeps a consistent view.
type Chain struct {
	mu       sync.RWMutex
	versions []Version // sorted descending by Epoch
}

// NewChain creates an empty version chain.
func NewChain() *Chain { return &Chain{} }

// Push installs a new head version, committed at epoch.
func (c *Chain) Push(v Version) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions = append([]Version{v}, c.versions...)
}

// At returns the version visible to a reader at the given epoch: the
// newest version whose Epoch is <= atEpoch. ok is false if no such version
// exists (the entity did not exist yet at atEpoch).
func (c *Chain) At(atEpoch uint64) (Version, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, v := range c.versions {
		if v.Epoch <= atEpoch {
			return v, true
		}
	}
	return Version{}, false
}

// Compact drops every version older than keepFrom except the single newest
// version at or below it — that remaining one is still needed as the
// "most recent version visible to a reader pinned at keepFrom or later but
// before the next commit" baseline. Called by gc.go once keepFrom advances
// past a version's epoch and no open Snapshot can request it.
func (c *Chain) Compact(keepFrom uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cut := len(c.versions)
	for i, v := range c.versions {
		if v.Epoch <= keepFrom {
			cut = i + 1
			break
		}
	}
	if cut < len(c.versions) {
		c.versions = c.versions[:cut]
	}
}

// Len reports how many retained versions the chain holds, used by
// ChainTable.Compact.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.versions)
}

// ChainTable owns one Chain per entity id, created lazily on first write.
type ChainTable struct {
	mu     sync.Mutex
	chains map[uint64]*Chain
}

// NewChainTable creates an empty table.
func NewChainTable() *ChainTable {
	return &ChainTable{chains: make(map[uint64]*Chain)}
}

// Chain returns (creating if necessary) the version chain for id.
func (t *ChainTable) Chain(id uint64) *Chain {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.chains[id]
	if !ok {
		c = NewChain()
		t.chains[id] = c
	}
	return c
}

// Compact runs Chain.Compact(keepFrom) over every tracked chain, and drops
// chains that end up holding only a tombstone older than keepFrom (fully
// reclaimable).
func (t *ChainTable) Compact(keepFrom uint64) {
	t.mu.Lock()
	ids := make([]uint64, 0, len(t.chains))
	for id := range t.chains {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		c := t.Chain(id)
		c.Compact(keepFrom)
		if c.Len() == 1 {
			c.mu.RLock()
			onlyTombstone := c.versions[0].Tombstone && c.versions[0].Epoch <= keepFrom
			c.mu.RUnlock()
			if onlyTombstone {
				t.mu.Lock()
				delete(t.chains, id)
				t.mu.Unlock()
			}
		}
	}
}
